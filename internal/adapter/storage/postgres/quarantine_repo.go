package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QuarantineRepo implements ports.QuarantineRepository.
type QuarantineRepo struct {
	pool Pool
}

// NewQuarantineRepo creates a new QuarantineRepo.
func NewQuarantineRepo(pool Pool) *QuarantineRepo {
	return &QuarantineRepo{pool: pool}
}

// Create inserts a new quarantine hold.
func (r *QuarantineRepo) Create(ctx context.Context, q *domain.QuarantinedTransaction) error {
	query := `INSERT INTO quarantined_transactions (id, original_transaction_id, risk_score, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		q.ID, q.OriginalTransactionID, q.RiskScore, q.Reason, q.Status, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quarantined transaction: %w", err)
	}
	return nil
}

// GetByID fetches a quarantine hold by its UUID.
func (r *QuarantineRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.QuarantinedTransaction, error) {
	query := `SELECT id, original_transaction_id, risk_score, reason, status, reviewed_by, reviewed_at, created_at
		FROM quarantined_transactions WHERE id = $1`

	q := &domain.QuarantinedTransaction{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&q.ID, &q.OriginalTransactionID, &q.RiskScore, &q.Reason, &q.Status,
		&q.ReviewedBy, &q.ReviewedAt, &q.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get quarantined transaction: %w", err)
	}
	return q, nil
}

// ListPending fetches all unresolved holds, oldest first.
func (r *QuarantineRepo) ListPending(ctx context.Context) ([]domain.QuarantinedTransaction, error) {
	query := `SELECT id, original_transaction_id, risk_score, reason, status, reviewed_by, reviewed_at, created_at
		FROM quarantined_transactions WHERE status = 'PENDING' ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending quarantine: %w", err)
	}
	defer rows.Close()

	var holds []domain.QuarantinedTransaction
	for rows.Next() {
		q := domain.QuarantinedTransaction{}
		err := rows.Scan(
			&q.ID, &q.OriginalTransactionID, &q.RiskScore, &q.Reason, &q.Status,
			&q.ReviewedBy, &q.ReviewedAt, &q.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan quarantined transaction: %w", err)
		}
		holds = append(holds, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quarantined transactions: %w", err)
	}
	return holds, nil
}

// MarkResolved flips a pending hold to the decided status. It guards on
// status = 'PENDING' so a second reviewer cannot re-resolve the same hold;
// the false return tells the caller the decision already happened.
func (r *QuarantineRepo) MarkResolved(ctx context.Context, id uuid.UUID, status domain.QuarantineStatus, reviewerID uuid.UUID) (bool, error) {
	query := `UPDATE quarantined_transactions
		SET status = $1, reviewed_by = $2, reviewed_at = NOW()
		WHERE id = $3 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, status, reviewerID, id)
	if err != nil {
		return false, fmt.Errorf("resolve quarantined transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
