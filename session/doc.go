// Package session orchestrates the lab session flow.
//
// The session service ties the lifecycle manager, the metadata store, the
// executors and the reaper together: it starts sessions idempotently (an
// already-active session is returned, never copied twice), runs lab and
// practice statements, records every attempt, grades practice submissions
// by fingerprint equality, and delegates teardown to the reaper.
package session
