package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeLockStore struct {
	values map[string]string
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}}
}

func (f *fakeLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(ctx context.Context, key string) (string, error) {
	value, exists := f.values[key]
	if !exists {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeLockStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockAcquireIsExclusive(t *testing.T) {
	store := newFakeLockStore()
	first, err := NewRedisLock(store, "cron", time.Minute)
	if err != nil {
		t.Fatalf("build lock: %v", err)
	}
	second, err := NewRedisLock(store, "cron", time.Minute)
	if err != nil {
		t.Fatalf("build lock: %v", err)
	}

	ctx := context.Background()
	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("second acquire must lose: ok=%v err=%v", ok, err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseSkipsForeignOwner(t *testing.T) {
	store := newFakeLockStore()
	lock, err := NewRedisLock(store, "cron", time.Minute)
	if err != nil {
		t.Fatalf("build lock: %v", err)
	}

	ctx := context.Background()
	if ok, err := lock.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	// Simulate TTL expiry plus re-acquisition by another instance.
	store.values["cron"] = "someone-else"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["cron"] != "someone-else" {
		t.Fatal("release must not delete a lock owned by another instance")
	}
}

func TestRedisLockReleaseWithoutAcquire(t *testing.T) {
	lock, err := NewRedisLock(newFakeLockStore(), "cron", 0)
	if err != nil {
		t.Fatalf("build lock: %v", err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release without acquire must be a no-op, got %v", err)
	}
}
