package service

import (
	"context"
	"time"

	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

// ProjectionServiceImpl fans committed wallet events out to role-specific
// balance mirrors on a bounded worker pool. Delivery is best-effort: a failed
// projection write is logged and dropped, never retried into the money path.
type ProjectionServiceImpl struct {
	repo  ports.ProjectionRepository
	pool  *ants.Pool
	roles []string
	log   zerolog.Logger
}

// NewProjectionService creates the worker pool. workers bounds concurrent
// projection writes across all roles.
func NewProjectionService(repo ports.ProjectionRepository, workers int, roles []string, log zerolog.Logger) (*ProjectionServiceImpl, error) {
	pool, err := ants.NewPool(workers, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &ProjectionServiceImpl{
		repo:  repo,
		pool:  pool,
		roles: roles,
		log:   log,
	}, nil
}

// Notify schedules one projection write per configured role. It returns
// immediately; the transfer path never waits on mirrors.
func (s *ProjectionServiceImpl) Notify(event domain.WalletEvent) {
	for _, role := range s.roles {
		role := role
		err := s.pool.Submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := s.repo.Upsert(ctx, role, event.WalletID, event.NewBalance, event.OccurredAt); err != nil {
				s.log.Error().Err(err).
					Str("role", role).
					Str("wallet_id", event.WalletID.String()).
					Msg("projection update failed")
			}
		})
		if err != nil {
			s.log.Error().Err(err).Str("role", role).Msg("failed to submit projection task")
		}
	}
}

// Close releases the worker pool.
func (s *ProjectionServiceImpl) Close() {
	s.pool.Release()
}
