package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrBalanceConflict is returned by compare-and-swap balance updates when the
// stored balance no longer matches the expected value.
var ErrBalanceConflict = errors.New("wallet balance changed concurrently")

// Wallet represents a user's currency wallet. Balance is in integer minor
// units and is mutated only through the wallet store's CAS operations.
type Wallet struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	PublicCode     string     `json:"public_code"` // short human-readable code for recipient resolution
	Balance        int64      `json:"balance"`
	Currency       string     `json:"currency"`
	PinHash        *string    `json:"-"` // Argon2id, never exposed
	IsBlocked      bool       `json:"is_blocked"`
	BlockedReason  *string    `json:"blocked_reason,omitempty"`
	BlockedAt      *time.Time `json:"blocked_at,omitempty"`
	LastLedgerHash *string    `json:"-"` // head of this wallet's ledger hash chain
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CanDebit reports whether the wallet currently holds at least amount.
func (w *Wallet) CanDebit(amount int64) bool {
	return w.Balance >= amount
}

// ChainHead returns the current hash-chain head, or the genesis value for a
// wallet with no ledger entries yet.
func (w *Wallet) ChainHead() string {
	if w.LastLedgerHash == nil {
		return GenesisHash
	}
	return *w.LastLedgerHash
}
