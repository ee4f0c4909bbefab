package postgres

import (
	"context"
	"fmt"

	"wallet-ledger-engine/internal/core/domain"

	"github.com/google/uuid"
)

// SuspiciousActivityRepo implements ports.SuspiciousActivityRepository.
type SuspiciousActivityRepo struct {
	pool Pool
}

// NewSuspiciousActivityRepo creates a new SuspiciousActivityRepo.
func NewSuspiciousActivityRepo(pool Pool) *SuspiciousActivityRepo {
	return &SuspiciousActivityRepo{pool: pool}
}

// Create inserts a new fraud finding.
func (r *SuspiciousActivityRepo) Create(ctx context.Context, a *domain.SuspiciousActivity) error {
	query := `INSERT INTO suspicious_activities (id, wallet_id, user_id, flags, severity, description, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.WalletID, a.UserID, a.Flags, a.Severity, a.Description, a.Acknowledged, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert suspicious activity: %w", err)
	}
	return nil
}

// ListUnacknowledged fetches unreviewed findings, newest first.
func (r *SuspiciousActivityRepo) ListUnacknowledged(ctx context.Context) ([]domain.SuspiciousActivity, error) {
	query := `SELECT id, wallet_id, user_id, flags, severity, description, acknowledged, created_at
		FROM suspicious_activities WHERE NOT acknowledged ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list suspicious activities: %w", err)
	}
	defer rows.Close()

	var findings []domain.SuspiciousActivity
	for rows.Next() {
		a := domain.SuspiciousActivity{}
		err := rows.Scan(
			&a.ID, &a.WalletID, &a.UserID, &a.Flags, &a.Severity, &a.Description, &a.Acknowledged, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan suspicious activity: %w", err)
		}
		findings = append(findings, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suspicious activities: %w", err)
	}
	return findings, nil
}

// Acknowledge marks a finding as reviewed. Returns false when the finding is
// missing or already acknowledged.
func (r *SuspiciousActivityRepo) Acknowledge(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE suspicious_activities SET acknowledged = TRUE WHERE id = $1 AND NOT acknowledged`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("acknowledge suspicious activity: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
