// Package rate implements Redis-backed sliding-window rate limiting.
//
// # Window semantics
//
// Each (category, key) pair owns a sorted set at ratelimit:{category}:{key}
// whose members are request timestamps in milliseconds. A Lua script trims
// members older than the window, counts the rest and admits the request only
// while the count is under the limit, so the check and the insert are one
// atomic step. The caller's clock is passed to the script.
//
// # What this package must NOT do
//
//   - Reveal remaining quota to callers.
//   - Keep counters in process memory.
package rate
