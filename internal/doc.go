// Package internal contains helper utilities that are intentionally private to
// tokenforge: secure random refresh value generation and token fingerprinting.
//
// # What this package must NOT do
//
//   - Export types that appear in the public tokenforge API.
//   - Be imported by any package outside the tokenforge module.
package internal
