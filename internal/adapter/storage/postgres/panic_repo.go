package postgres

import (
	"context"
	"fmt"

	"wallet-ledger-engine/internal/core/domain"
)

// PanicStateRepo implements ports.PanicStateRepository against a singleton
// row. The table's CHECK (id = 1) keeps it a singleton at the schema level.
type PanicStateRepo struct {
	pool Pool
}

// NewPanicStateRepo creates a new PanicStateRepo.
func NewPanicStateRepo(pool Pool) *PanicStateRepo {
	return &PanicStateRepo{pool: pool}
}

// Get reads the current freeze state. It always hits the database so every
// mutating request sees the latest operator decision.
func (r *PanicStateRepo) Get(ctx context.Context) (*domain.PanicState, error) {
	query := `SELECT active, activated_by, reason, activated_at FROM panic_state WHERE id = 1`

	s := &domain.PanicState{}
	err := r.pool.QueryRow(ctx, query).Scan(&s.Active, &s.ActivatedBy, &s.Reason, &s.ActivatedAt)
	if err != nil {
		return nil, fmt.Errorf("get panic state: %w", err)
	}
	return s, nil
}

// Set overwrites the freeze state.
func (r *PanicStateRepo) Set(ctx context.Context, state *domain.PanicState) error {
	query := `INSERT INTO panic_state (id, active, activated_by, reason, activated_at, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			activated_by = EXCLUDED.activated_by,
			reason = EXCLUDED.reason,
			activated_at = EXCLUDED.activated_at,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, state.Active, state.ActivatedBy, state.Reason, state.ActivatedAt)
	if err != nil {
		return fmt.Errorf("set panic state: %w", err)
	}
	return nil
}
