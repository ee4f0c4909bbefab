package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, owner_id, public_code, balance, currency, pin_hash,
	is_blocked, blocked_reason, blocked_at, last_ledger_hash, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.OwnerID, &w.PublicCode, &w.Balance, &w.Currency, &w.PinHash,
		&w.IsBlocked, &w.BlockedReason, &w.BlockedAt, &w.LastLedgerHash,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// Create inserts a new wallet into the database.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, owner_id, public_code, balance, currency, pin_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.OwnerID, w.PublicCode, w.Balance, w.Currency, w.PinHash,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID.
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByOwnerID fetches a wallet by the owning user's ID.
func (r *WalletRepo) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, ownerID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by owner id: %w", err)
	}
	return w, nil
}

// GetByPublicCode fetches a wallet by its human-shareable public code.
func (r *WalletRepo) GetByPublicCode(ctx context.Context, code string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE public_code = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		return nil, fmt.Errorf("get wallet by public code: %w", err)
	}
	return w, nil
}

// DebitCAS subtracts amount from the wallet's balance, guarded by the balance
// the caller last observed. When no row matches the balance has moved under
// us and domain.ErrBalanceConflict is returned so the caller can reload and
// retry. Returns the new balance and the wallet's current ledger chain head.
func (r *WalletRepo) DebitCAS(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount, expectedBalance int64) (int64, string, error) {
	query := `UPDATE wallets SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance = $3
		RETURNING balance, COALESCE(last_ledger_hash, 'GENESIS')`

	var newBalance int64
	var chainHead string
	err := tx.QueryRow(ctx, query, amount, walletID, expectedBalance).Scan(&newBalance, &chainHead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", domain.ErrBalanceConflict
		}
		return 0, "", fmt.Errorf("debit wallet: %w", err)
	}
	return newBalance, chainHead, nil
}

// Credit adds amount to the wallet's balance unconditionally. Credits never
// risk overdraft, so no compare-and-swap guard is needed.
func (r *WalletRepo) Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (int64, string, error) {
	query := `UPDATE wallets SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance, COALESCE(last_ledger_hash, 'GENESIS')`

	var newBalance int64
	var chainHead string
	err := tx.QueryRow(ctx, query, amount, walletID).Scan(&newBalance, &chainHead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", fmt.Errorf("credit wallet: wallet not found: %s", walletID)
		}
		return 0, "", fmt.Errorf("credit wallet: %w", err)
	}
	return newBalance, chainHead, nil
}

// CreditCAS adds amount guarded by the caller's last observed balance. Used
// for compensation refunds where the refund must land on the exact state the
// failed debit left behind.
func (r *WalletRepo) CreditCAS(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount, expectedBalance int64) (int64, string, error) {
	query := `UPDATE wallets SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance = $3
		RETURNING balance, COALESCE(last_ledger_hash, 'GENESIS')`

	var newBalance int64
	var chainHead string
	err := tx.QueryRow(ctx, query, amount, walletID, expectedBalance).Scan(&newBalance, &chainHead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", domain.ErrBalanceConflict
		}
		return 0, "", fmt.Errorf("credit wallet cas: %w", err)
	}
	return newBalance, chainHead, nil
}

// SetChainHead records the hash of the wallet's newest ledger entry. Must run
// in the same transaction as the balance mutation and ledger append.
func (r *WalletRepo) SetChainHead(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, hash string) error {
	query := `UPDATE wallets SET last_ledger_hash = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, hash, walletID)
	if err != nil {
		return fmt.Errorf("set chain head: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set chain head: wallet not found: %s", walletID)
	}
	return nil
}

// SetBlocked marks a wallet blocked, recording why and when.
func (r *WalletRepo) SetBlocked(ctx context.Context, walletID uuid.UUID, reason string) error {
	query := `UPDATE wallets SET is_blocked = TRUE, blocked_reason = $1,
		blocked_at = NOW(), updated_at = NOW()
		WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, reason, walletID)
	if err != nil {
		return fmt.Errorf("set wallet blocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set wallet blocked: wallet not found: %s", walletID)
	}
	return nil
}
