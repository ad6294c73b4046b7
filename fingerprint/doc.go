// Package fingerprint computes canonical digests of query result sets.
//
// The fingerprint package normalizes a tabular result set into an
// order-independent canonical form and hashes it with SHA-256. A question's
// reference answer is fingerprinted once at authoring time; a student
// submission is fingerprinted on demand and compared by digest equality,
// so students never need an ORDER BY for their answer to match.
//
// Usage:
//
//	digest := fingerprint.Hash(result.Columns, result.Rows)
//	correct := digest == question.AnswerFingerprint
package fingerprint
