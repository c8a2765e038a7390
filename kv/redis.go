package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var replaceIndexedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return 1
`)

// RedisStore implements Store over a go-redis client.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.redis.SMembers(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return members, nil
}

func (s *RedisStore) ReplaceIndexed(ctx context.Context, key, value, setKey, member string, ttl time.Duration) (bool, error) {
	n, err := replaceIndexedScript.Run(ctx, s.redis, []string{key, setKey}, value, member, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// Multi queues fn's operations into MULTI/EXEC. An error from EXEC or from
// any individual command fails the whole call.
func (s *RedisStore) Multi(ctx context.Context, fn func(Batch)) error {
	cmds, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(&redisBatch{ctx: ctx, pipe: pipe})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, cmd := range cmds {
		if cmdErr := cmd.Err(); cmdErr != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, cmd.Name(), cmdErr)
		}
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

type redisBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b *redisBatch) Set(key, value string, ttl time.Duration) {
	b.pipe.Set(b.ctx, key, value, ttl)
}

func (b *redisBatch) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.pipe.Del(b.ctx, keys...)
}

func (b *redisBatch) SAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	b.pipe.SAdd(b.ctx, key, args...)
}

func (b *redisBatch) SRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	b.pipe.SRem(b.ctx, key, args...)
}

func (b *redisBatch) Expire(key string, ttl time.Duration) {
	b.pipe.Expire(b.ctx, key, ttl)
}
