package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyStore implements ports.IdempotencyStore. It is the fast path of
// the duplicate guard; the Postgres table behind it remains authoritative.
type IdempotencyStore struct {
	client *goredis.Client
	prefix string
}

// NewIdempotencyStore creates a Redis-backed idempotency store.
func NewIdempotencyStore(client *goredis.Client) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		prefix: "idem:",
	}
}

// Seen reports whether key was already marked and is still within its TTL.
func (s *IdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis idempotency check: %w", err)
	}
	return n > 0, nil
}

// Claim acquires the in-flight marker for key via SETNX. Exactly one of any
// set of concurrent callers gets true; the marker expires after ttl in case
// the holder dies without releasing.
func (s *IdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+"claim:"+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis idempotency claim: %w", err)
	}
	return ok, nil
}

// Release drops an in-flight claim after an attempt that moved no money.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+"claim:"+key).Err(); err != nil {
		return fmt.Errorf("redis idempotency release: %w", err)
	}
	return nil
}

// Mark records key with the given TTL. SET NX keeps the original expiry when
// two instances race on the same key.
func (s *IdempotencyStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	err := s.client.SetArgs(ctx, s.prefix+key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err != nil && err != goredis.Nil {
		return fmt.Errorf("redis idempotency mark: %w", err)
	}
	return nil
}
