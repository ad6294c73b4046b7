// Package authoring builds reference databases from instructor SQL.
//
// The authoring service wraps the lifecycle manager for the publish flow:
// it materializes a reference database from schema and seed SQL, runs the
// instructor's reference answer query in the read-only sandbox, and stores
// the resulting fingerprint alongside the question. The fingerprint is
// computed once here; student submissions are fingerprinted on demand and
// compared by equality.
package authoring
