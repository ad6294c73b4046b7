// Package reaper terminates lab sessions and reclaims their files.
//
// The reaper ends sessions in a fixed order: attempt history first, then the
// durable inactive mark, then best-effort deletion of the session database
// file with bounded retry. A file that cannot be deleted within the retry
// budget is logged as a leak and never fails the termination; the session's
// logical state in the store is authoritative. An orphan sweep clears
// session files that no active session record references.
package reaper
