package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction.
func (r *TransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, type, status, sender_id, receiver_id, amount, fee_amount,
		currency, description, metadata, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.Type, t.Status, t.SenderID, t.ReceiverID, t.Amount, t.FeeAmount,
		t.Currency, t.Description, t.Metadata, t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT id, type, status, sender_id, receiver_id, amount, fee_amount,
		currency, description, metadata, created_at, completed_at
		FROM transactions WHERE id = $1`

	t := &domain.Transaction{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Type, &t.Status, &t.SenderID, &t.ReceiverID, &t.Amount, &t.FeeAmount,
		&t.Currency, &t.Description, &t.Metadata, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// UpdateStatus moves a transaction to a new status, stamping completion time
// for terminal states.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = $1,
		completed_at = CASE WHEN $1 IN ('COMPLETED', 'FAILED', 'REJECTED') THEN NOW() ELSE completed_at END
		WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// ActivitySince aggregates the user's outbound volume and operation count
// since the given instant. Only debiting operations count toward the rolling
// window, and failed attempts are excluded.
func (r *TransactionRepo) ActivitySince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, int64, error) {
	query := `SELECT COALESCE(SUM(t.amount), 0), COUNT(*)
		FROM transactions t
		JOIN wallets w ON w.id = t.sender_id
		WHERE w.owner_id = $1
		  AND t.type IN ('TRANSFER', 'WITHDRAW')
		  AND t.status != 'FAILED'
		  AND t.created_at >= $2`

	var total, count int64
	err := r.pool.QueryRow(ctx, query, userID, since).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate activity: %w", err)
	}
	return total, count, nil
}
