package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps transport and server failures.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is the key-value contract used by the session manager.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	SMembers(ctx context.Context, key string) ([]string, error)
	// ReplaceIndexed overwrites key only while it still exists, adds member
	// to setKey and applies ttl to both, as one atomic step. It reports false
	// and writes nothing when key is gone.
	ReplaceIndexed(ctx context.Context, key, value, setKey, member string, ttl time.Duration) (bool, error)
	// Multi applies every operation queued by fn atomically.
	Multi(ctx context.Context, fn func(Batch)) error
	Ping(ctx context.Context) error
}

// Batch queues writes for a single Multi call.
type Batch interface {
	Set(key, value string, ttl time.Duration)
	Del(keys ...string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	Expire(key string, ttl time.Duration)
}
