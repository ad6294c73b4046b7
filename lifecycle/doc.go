// Package lifecycle manages the database files behind questions and labs.
//
// The lifecycle package turns author-supplied schema and seed SQL into
// immutable reference databases, copies a reference into a per-student
// session database on lab start, resets and deletes session copies, and
// introspects a database's schema for preview. Reference databases are
// rebuilt wholesale on every change, never patched in place, and no failure
// path leaves a partial file on disk.
package lifecycle
