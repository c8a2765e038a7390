// Package internal contains helpers private to credflow: secure random
// tokens, session identifiers and one-time codes.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis-backed sliding-window rate limiting
//
// # What this package must NOT do
//
//   - Fall back to a non-cryptographic random source.
//   - Be imported by any package outside the credflow module.
package internal
