// Package security builds the security posture report exposed by
// Engine.SecurityReport.
//
// # What this package must NOT do
//
//   - Read secrets or key material. Inputs are settings and identifiers only.
//   - Import seccore or any sibling package.
package security
