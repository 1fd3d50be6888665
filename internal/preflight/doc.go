// Package preflight provides readiness checks for the paths and the blob
// server camliup depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll on start and refuses to run when the data
//     directory is unusable; server checks only produce warnings.
//   - The CLI "camliup status" command prints every result so the operator
//     can see why uploads are not moving.
package preflight
