// Package store persists session and attempt metadata.
//
// The store package defines the repository interfaces the engine uses to
// track lab sessions and executed-statement attempts, together with a
// SQLite-backed implementation. Attempt records are append-only; a session's
// logical state (active or ended) lives here and is authoritative over the
// presence of its database file on disk.
package store
