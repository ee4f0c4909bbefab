package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash anchors the first entry of every wallet's chain.
const GenesisHash = "GENESIS"

// ActorType identifies which side of a transaction a ledger entry records.
type ActorType string

const (
	ActorSender   ActorType = "SENDER"
	ActorReceiver ActorType = "RECEIVER"
)

// ValidationStatus marks how the mutation passed fraud validation.
type ValidationStatus string

const (
	ValidationStatusClean    ValidationStatus = "CLEAN"
	ValidationStatusFlagged  ValidationStatus = "FLAGGED"
	ValidationStatusReviewed ValidationStatus = "REVIEWED"
)

// LedgerEntry is the append-only, hash-chained record of one balance
// mutation. Entries are never updated or deleted; each wallet has its own
// chain whose head lives on the wallet row.
type LedgerEntry struct {
	ID               uuid.UUID        `json:"id"`
	TransactionID    uuid.UUID        `json:"transaction_id"`
	WalletID         uuid.UUID        `json:"wallet_id"`
	ActorType        ActorType        `json:"actor_type"`
	Amount           int64            `json:"amount"`
	BalanceBefore    int64            `json:"balance_before"`
	BalanceAfter     int64            `json:"balance_after"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	Hash             string           `json:"hash"`
	PrevHash         string           `json:"prev_hash"`
	CreatedAt        time.Time        `json:"created_at"`
}

// ComputeHash derives the entry hash from its content plus the previous
// chain hash. Any post-append mutation of a hashed field breaks the chain.
// The timestamp is hashed at microsecond precision, the most a timestamptz
// column retains, so an entry still verifies after a database round-trip.
func (e *LedgerEntry) ComputeHash() string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%d|%d|%d",
		e.PrevHash,
		e.TransactionID,
		e.WalletID,
		e.Amount,
		e.BalanceBefore,
		e.BalanceAfter,
		e.CreatedAt.UTC().UnixMicro(),
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifyChain recomputes a wallet's chain from genesis. Entries must be in
// append order. It returns the first entry whose stored hash or link does
// not match, or nil if the chain is intact.
func VerifyChain(entries []LedgerEntry) *LedgerEntry {
	prev := GenesisHash
	for i := range entries {
		e := &entries[i]
		if e.PrevHash != prev {
			return e
		}
		if e.ComputeHash() != e.Hash {
			return e
		}
		prev = e.Hash
	}
	return nil
}
