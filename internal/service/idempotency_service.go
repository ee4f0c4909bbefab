package service

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IdempotencyServiceImpl implements ports.IdempotencyService with a Redis
// fast path over a durable Postgres table. Redis answering "seen" is final;
// Redis being down or empty falls through to the table.
type IdempotencyServiceImpl struct {
	store         ports.IdempotencyStore
	repo          ports.IdempotencyRepository
	windowSeconds int64
	ttl           time.Duration
	log           zerolog.Logger
}

// NewIdempotencyService creates a new IdempotencyServiceImpl.
func NewIdempotencyService(
	store ports.IdempotencyStore,
	repo ports.IdempotencyRepository,
	windowSeconds int64,
	ttl time.Duration,
	log zerolog.Logger,
) *IdempotencyServiceImpl {
	return &IdempotencyServiceImpl{
		store:         store,
		repo:          repo,
		windowSeconds: windowSeconds,
		ttl:           ttl,
		log:           log,
	}
}

// KeyFor returns the caller-supplied key scoped to its user, or a
// window-bucketed key derived from the operation fingerprint when the caller
// sent none.
func (s *IdempotencyServiceImpl) KeyFor(userID uuid.UUID, operation string, amount int64, recipient string, clientKey *string) string {
	if clientKey != nil && *clientKey != "" {
		return domain.ClientIdempotencyKey(userID, *clientKey)
	}
	return domain.DeriveIdempotencyKey(userID, operation, amount, recipient, s.windowSeconds, time.Now().UTC())
}

// claimTTL bounds how long a crashed holder can keep a key hostage.
const claimTTL = 2 * time.Minute

// Claim reports whether the caller may proceed under key. A key consumed by
// a finished operation, or currently claimed by a concurrent request, is a
// duplicate. The SETNX claim arbitrates the window between two identical
// in-flight requests: check-then-act would let both through. Redis being
// down degrades to the durable check alone, same as the fast path.
func (s *IdempotencyServiceImpl) Claim(ctx context.Context, key string) (bool, error) {
	seen, err := s.store.Seen(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
	} else if seen {
		return false, nil
	}

	exists, err := s.repo.Exists(ctx, key, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("db idempotency check: %w", err)
	}
	if exists {
		return false, nil
	}

	acquired, err := s.store.Claim(ctx, key, claimTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency claim failed, proceeding on durable check only")
		return true, nil
	}
	return acquired, nil
}

// Release frees an in-flight claim after an attempt that moved no money. A
// failure here only delays the caller's retry until the claim TTL expires.
func (s *IdempotencyServiceImpl) Release(ctx context.Context, key string) {
	if err := s.store.Release(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency claim")
	}
}

// Record persists the key in both layers. Called only once the operation hit
// a terminal state (or durably committed a debit), so failed attempts never
// burn a key.
func (s *IdempotencyServiceImpl) Record(ctx context.Context, key string, userID uuid.UUID, operation string) error {
	now := time.Now().UTC()
	rec := &domain.IdempotencyRecord{
		Key:       key,
		UserID:    userID,
		Operation: operation,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("record idempotency key: %w", err)
	}

	// Best-effort: the table already holds the truth.
	if err := s.store.Mark(ctx, key, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to mark idempotency key in redis")
	}
	return nil
}
