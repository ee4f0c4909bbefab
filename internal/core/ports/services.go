package ports

import (
	"context"
	"time"

	"wallet-ledger-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Storage-backed helpers ---

// IdempotencyStore is the Redis fast path of the idempotency guard. It must
// be globally visible since duplicate submissions can land on any instance.
type IdempotencyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
	// Claim atomically acquires the in-flight marker for key. Returns false
	// when another request already holds it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees an in-flight claim so a retry can proceed before the
	// claim TTL expires.
	Release(ctx context.Context, key string) error
}

// AlertBus carries operator-facing events. Publishing a CRITICAL alert must
// never fail silently.
type AlertBus interface {
	Publish(ctx context.Context, alert domain.Alert) error
}

// --- Service Ports (Business Logic) ---

// TransferService orchestrates the money-movement state machine.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*OperationResult, error)
	Deposit(ctx context.Context, req DepositRequest) (*OperationResult, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*OperationResult, error)
}

// TransferRequest holds validated input for a wallet-to-wallet transfer.
// Recipient is a canonical owner id or a short public code.
type TransferRequest struct {
	SenderID       uuid.UUID
	Recipient      string
	Amount         int64
	Description    *string
	Pin            *string
	IdempotencyKey *string
}

// DepositRequest holds validated input for crediting a user's own wallet.
type DepositRequest struct {
	UserID         uuid.UUID
	Amount         int64
	Description    *string
	IdempotencyKey *string
}

// WithdrawRequest holds validated input for debiting a user's own wallet.
type WithdrawRequest struct {
	UserID         uuid.UUID
	Amount         int64
	Description    *string
	Pin            *string
	IdempotencyKey *string
}

// OperationResult is the outcome of a completed (or quarantined) operation.
type OperationResult struct {
	Transaction         *domain.Transaction
	NewBalance          int64
	RecipientNewBalance *int64
	Quarantined         bool
}

// IdempotencyService deduplicates retried operation requests.
type IdempotencyService interface {
	// KeyFor returns the caller-supplied key scoped to the user, or a
	// window-bucketed derived key when the caller sent none.
	KeyFor(userID uuid.UUID, operation string, amount int64, recipient string, clientKey *string) string
	// Claim atomically claims key for one in-flight operation. False means a
	// duplicate: either a finished operation consumed the key or a concurrent
	// request holds it right now.
	Claim(ctx context.Context, key string) (bool, error)
	// Release frees an in-flight claim after an attempt that moved no money,
	// so the caller's retry is not rejected as a duplicate.
	Release(ctx context.Context, key string)
	// Record persists the key once the operation reached a terminal state.
	Record(ctx context.Context, key string, userID uuid.UUID, operation string) error
}

// FeeService computes transaction fees from the fee schedule.
type FeeService interface {
	ComputeFee(ctx context.Context, opType domain.TransactionType, currency string, amount int64) (int64, error)
}

// FraudService screens operations against rolling activity windows and owns
// the suspicious-activity review queue.
type FraudService interface {
	Evaluate(ctx context.Context, userID, walletID uuid.UUID, amount int64) (*domain.FraudEvaluation, error)
	ListSuspicious(ctx context.Context) ([]domain.SuspiciousActivity, error)
	Acknowledge(ctx context.Context, id uuid.UUID) error
}

// PanicService owns the global emergency freeze.
type PanicService interface {
	// Guard returns ErrPanicActive while the freeze is on. It is the first
	// check of every mutating entry point.
	Guard(ctx context.Context) error
	Activate(ctx context.Context, operatorID uuid.UUID, reason string) error
	Deactivate(ctx context.Context, operatorID uuid.UUID) error
	State(ctx context.Context) (*domain.PanicState, error)
}

// LedgerAppendParams carries one balance mutation into the ledger. PrevHash
// is the chain head returned by the wallet mutation in the same database
// transaction.
type LedgerAppendParams struct {
	TransactionID    uuid.UUID
	WalletID         uuid.UUID
	ActorType        domain.ActorType
	Amount           int64
	BalanceBefore    int64
	BalanceAfter     int64
	PrevHash         string
	ValidationStatus domain.ValidationStatus
}

// LedgerService writes and verifies the hash-chained audit trail.
type LedgerService interface {
	Append(ctx context.Context, tx pgx.Tx, p LedgerAppendParams) (*domain.LedgerEntry, error)
	Feed(ctx context.Context, walletID *uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error)
	// VerifyWallet recomputes a wallet's chain from genesis and returns the
	// first broken entry, or nil when the chain is intact.
	VerifyWallet(ctx context.Context, walletID uuid.UUID) (*domain.LedgerEntry, error)
}

// QuarantineService holds flagged transactions for human review and replays
// or voids them.
type QuarantineService interface {
	Hold(ctx context.Context, transactionID uuid.UUID, riskScore int, reason string) (*domain.QuarantinedTransaction, error)
	Resolve(ctx context.Context, id uuid.UUID, decision domain.QuarantineStatus, reviewerID uuid.UUID) error
	ListPending(ctx context.Context) ([]domain.QuarantinedTransaction, error)
}

// ProjectionService fans wallet events out to role-specific mirrors.
// Delivery is asynchronous and best-effort.
type ProjectionService interface {
	Notify(event domain.WalletEvent)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Role   string
}

// PinService handles wallet PIN hashing (Argon2id).
type PinService interface {
	Hash(pin string) (string, error)
	Verify(pin string, hash string) (bool, error)
}
