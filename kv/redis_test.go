package kv

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, NewRedisStore(rdb)
}

func TestGetMissingKey(t *testing.T) {
	_, s := newTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMultiAppliesAllOperations(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	err := s.Multi(ctx, func(b Batch) {
		b.Set("session:a", `{"id":"u1"}`, time.Hour)
		b.SAdd("user:u1:sessions", "a", "b")
		b.Expire("user:u1:sessions", time.Hour)
	})
	if err != nil {
		t.Fatalf("Multi failed: %v", err)
	}

	v, err := s.Get(ctx, "session:a")
	if err != nil || v != `{"id":"u1"}` {
		t.Fatalf("unexpected value %q err=%v", v, err)
	}
	members, err := s.SMembers(ctx, "user:u1:sessions")
	if err != nil {
		t.Fatalf("SMembers failed: %v", err)
	}
	sort.Strings(members)
	if len(members) != 2 || members[0] != "a" || members[1] != "b" {
		t.Fatalf("unexpected members %v", members)
	}
	if ttl := mr.TTL("user:u1:sessions"); ttl != time.Hour {
		t.Fatalf("expected index ttl of 1h, got %v", ttl)
	}

	if err := s.Multi(ctx, func(b Batch) {
		b.Del("session:a")
		b.SRem("user:u1:sessions", "a")
	}); err != nil {
		t.Fatalf("Multi delete failed: %v", err)
	}
	if mr.Exists("session:a") {
		t.Fatal("expected session key removed")
	}
	members, _ = s.SMembers(ctx, "user:u1:sessions")
	if len(members) != 1 || members[0] != "b" {
		t.Fatalf("unexpected members after SRem %v", members)
	}
}

func TestMultiReportsCommandFailure(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	// A string key cannot take SADD; EXEC succeeds but the command fails.
	mr.Set("user:u1:sessions", "not-a-set")
	err := s.Multi(ctx, func(b Batch) {
		b.Set("session:x", "{}", time.Minute)
		b.SAdd("user:u1:sessions", "x")
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr, s := newTestStore(t)
	mr.Close()

	if err := s.Set(context.Background(), "k", "v", time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Ping, got %v", err)
	}
}

func TestReplaceIndexedSkipsMissingKey(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.ReplaceIndexed(ctx, "session:a", `{"id":"u1"}`, "user:u1:sessions", "a", time.Hour)
	if err != nil {
		t.Fatalf("ReplaceIndexed failed: %v", err)
	}
	if ok {
		t.Fatal("expected no write for a missing key")
	}
	if mr.Exists("session:a") || mr.Exists("user:u1:sessions") {
		t.Fatalf("expected nothing written, got %v", mr.Keys())
	}

	mr.Set("session:a", "old")
	ok, err = s.ReplaceIndexed(ctx, "session:a", "new", "user:u1:sessions", "a", time.Hour)
	if err != nil || !ok {
		t.Fatalf("expected replace, got ok=%v err=%v", ok, err)
	}
	if v, _ := mr.Get("session:a"); v != "new" {
		t.Fatalf("unexpected value %q", v)
	}
	if ttl := mr.TTL("session:a"); ttl != time.Hour {
		t.Fatalf("expected key ttl %v, got %v", time.Hour, ttl)
	}
	if ok, _ := mr.SIsMember("user:u1:sessions", "a"); !ok {
		t.Fatal("expected member indexed")
	}
	if ttl := mr.TTL("user:u1:sessions"); ttl != time.Hour {
		t.Fatalf("expected index ttl %v, got %v", time.Hour, ttl)
	}
}
