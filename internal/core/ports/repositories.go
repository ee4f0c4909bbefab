package ports

import (
	"context"
	"time"

	"wallet-ledger-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets. Balance
// mutations are compare-and-swap UPDATEs; methods accepting pgx.Tx must run
// inside a transaction so the mutation commits atomically with its ledger
// entry.
type WalletRepository interface {
	Create(ctx context.Context, w *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	GetByPublicCode(ctx context.Context, code string) (*domain.Wallet, error)
	// DebitCAS subtracts amount only if the stored balance equals
	// expectedBalance and the result stays non-negative. Returns the new
	// balance and the wallet's current chain head, or
	// domain.ErrBalanceConflict when the guard fails.
	DebitCAS(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount, expectedBalance int64) (int64, string, error)
	// Credit unconditionally adds amount to the wallet.
	Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) (int64, string, error)
	// CreditCAS adds amount only if the stored balance equals
	// expectedBalance. It is the compensation primitive for undoing a debit.
	CreditCAS(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount, expectedBalance int64) (int64, string, error)
	SetChainHead(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, hash string) error
	SetBlocked(ctx context.Context, walletID uuid.UUID, reason string) error
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error
	// ActivitySince aggregates a user's outbound volume and operation count
	// over the fraud rolling window.
	ActivitySince(ctx context.Context, userID uuid.UUID, since time.Time) (total int64, count int64, err error)
}

// LedgerRepository persists the append-only hash chain. There are no update
// or delete operations by contract.
type LedgerRepository interface {
	Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error)
	List(ctx context.Context, page, pageSize int) ([]domain.LedgerEntry, int64, error)
	// ListChain returns a wallet's full chain in append order for
	// verification.
	ListChain(ctx context.Context, walletID uuid.UUID) ([]domain.LedgerEntry, error)
}

// QuarantineRepository holds transactions deferred to human review.
type QuarantineRepository interface {
	Create(ctx context.Context, q *domain.QuarantinedTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.QuarantinedTransaction, error)
	ListPending(ctx context.Context) ([]domain.QuarantinedTransaction, error)
	// MarkResolved flips a pending row to the decided status. Returns false
	// when the row was already resolved (or missing), so double reviews
	// cannot replay funds.
	MarkResolved(ctx context.Context, id uuid.UUID, status domain.QuarantineStatus, reviewerID uuid.UUID) (bool, error)
}

// SuspiciousActivityRepository records fraud findings for operator review.
type SuspiciousActivityRepository interface {
	Create(ctx context.Context, a *domain.SuspiciousActivity) error
	ListUnacknowledged(ctx context.Context) ([]domain.SuspiciousActivity, error)
	Acknowledge(ctx context.Context, id uuid.UUID) (bool, error)
}

// FeeRuleRepository reads the external fee schedule.
type FeeRuleRepository interface {
	// GetActive returns the active rule for (operation type, currency), or
	// nil when none exists (zero fee).
	GetActive(ctx context.Context, opType domain.TransactionType, currency string) (*domain.FeeRule, error)
}

// PanicStateRepository persists the singleton emergency-freeze row. Every
// mutating call reads current state from the store; nothing is cached across
// requests.
type PanicStateRepository interface {
	Get(ctx context.Context) (*domain.PanicState, error)
	Set(ctx context.Context, state *domain.PanicState) error
}

// IdempotencyRepository is the durable layer of the idempotency guard.
type IdempotencyRepository interface {
	Create(ctx context.Context, rec *domain.IdempotencyRecord) error
	Exists(ctx context.Context, key string, now time.Time) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// ProjectionRepository stores role-specific mirrored wallet views.
type ProjectionRepository interface {
	Upsert(ctx context.Context, role string, walletID uuid.UUID, balance int64, updatedAt time.Time) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
