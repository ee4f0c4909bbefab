package postgres

import (
	"context"
	"fmt"

	"wallet-ledger-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `id, transaction_id, wallet_id, actor_type, amount,
	balance_before, balance_after, prev_hash, entry_hash, validation_status, created_at`

// LedgerRepo implements ports.LedgerRepository. The ledger is append-only:
// there are no update or delete statements in this file on purpose.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Append inserts a ledger entry within the same database transaction as the
// balance mutation it records.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, transaction_id, wallet_id, actor_type, amount,
		balance_before, balance_after, prev_hash, entry_hash, validation_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.TransactionID, e.WalletID, e.ActorType, e.Amount,
		e.BalanceBefore, e.BalanceAfter, e.PrevHash, e.Hash, e.ValidationStatus, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ListByWallet fetches a wallet's ledger entries, newest first, paginated.
func (r *LedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE wallet_id = $1`, walletID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, walletID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries by wallet: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// List fetches ledger entries across all wallets, newest first, paginated.
func (r *LedgerRepo) List(ctx context.Context, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries`).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListChain returns a wallet's entire chain in append order for verification.
// Ordering is by the insertion sequence, not created_at: two entries landing
// in the same microsecond would otherwise tie and verify in arbitrary order.
func (r *LedgerRepo) ListChain(ctx context.Context, walletID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE wallet_id = $1 ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list ledger chain: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e := domain.LedgerEntry{}
		err := rows.Scan(
			&e.ID, &e.TransactionID, &e.WalletID, &e.ActorType, &e.Amount,
			&e.BalanceBefore, &e.BalanceAfter, &e.PrevHash, &e.Hash, &e.ValidationStatus, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
