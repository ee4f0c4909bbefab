package postgres

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger-engine/internal/core/domain"
)

// IdempotencyRepo is the durable layer of the idempotency guard. The Redis
// layer answers first; this table is the source of truth when Redis has been
// flushed or restarted.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create records a consumed key. A primary-key conflict means a concurrent
// request recorded the same key first, which callers treat as a duplicate.
func (r *IdempotencyRepo) Create(ctx context.Context, rec *domain.IdempotencyRecord) error {
	query := `INSERT INTO idempotency_keys (key, user_id, operation, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, rec.Key, rec.UserID, rec.Operation, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}

// Exists reports whether an unexpired record for key is present.
func (r *IdempotencyRepo) Exists(ctx context.Context, key string, now time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM idempotency_keys WHERE key = $1 AND expires_at > $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, key, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return exists, nil
}

// PurgeExpired deletes records past their expiry and returns how many were
// removed.
func (r *IdempotencyRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM idempotency_keys WHERE expires_at <= $1`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
