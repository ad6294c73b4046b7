// Package sandbox provides bounded execution of untrusted SQL.
//
// The sandbox package implements the two query executors of the platform:
// a read-only sandbox for practice questions, which refuses anything but a
// single SELECT and opens the database file read-only, and a lab executor,
// which runs arbitrary statements against a student's private session
// database. Both bound wall-clock execution time and fold every failure
// into a well-formed ExecutionResult instead of returning an error across
// the API boundary.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, sandbox.ModeReadOnly, 5*time.Second)
//	result := executor.Execute(ctx, "/data/questions/q1.db", "SELECT * FROM t")
package sandbox
