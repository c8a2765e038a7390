// Package kv is the secret store abstraction sessions and their per-user
// indexes are kept in: get, set with expiry, delete, set membership and an
// all-or-nothing batch.
//
// [RedisStore] implements [Store] on go-redis. Batches run inside
// MULTI/EXEC and every queued command's result is checked, so a partially
// applied batch is reported as a failure.
package kv
