package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectionRepo implements ports.ProjectionRepository. Projections are
// eventually consistent mirrors; last write wins per (role, wallet).
type ProjectionRepo struct {
	pool Pool
}

// NewProjectionRepo creates a new ProjectionRepo.
func NewProjectionRepo(pool Pool) *ProjectionRepo {
	return &ProjectionRepo{pool: pool}
}

// Upsert writes the role-specific view of a wallet's balance. Stale updates
// are dropped by the updated_at guard so out-of-order workers cannot regress
// a fresher projection.
func (r *ProjectionRepo) Upsert(ctx context.Context, role string, walletID uuid.UUID, balance int64, updatedAt time.Time) error {
	query := `INSERT INTO balance_projections (role, wallet_id, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role, wallet_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at
		WHERE balance_projections.updated_at <= EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query, role, walletID, balance, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert balance projection: %w", err)
	}
	return nil
}
