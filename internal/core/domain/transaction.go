package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending     TransactionStatus = "PENDING"
	TransactionStatusCompleted   TransactionStatus = "COMPLETED"
	TransactionStatusFailed      TransactionStatus = "FAILED"
	TransactionStatusQuarantined TransactionStatus = "QUARANTINED"
	TransactionStatusRejected    TransactionStatus = "REJECTED"
)

// Transaction records a single money movement. It is created PENDING and
// moves to a terminal state, or to QUARANTINED from which a human reviewer
// resolves it.
type Transaction struct {
	ID          uuid.UUID              `json:"id"`
	SenderID    *uuid.UUID             `json:"sender_id,omitempty"`   // nil for deposits
	ReceiverID  *uuid.UUID             `json:"receiver_id,omitempty"` // nil for withdrawals
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency"`
	Type        TransactionType        `json:"type"`
	Status      TransactionStatus      `json:"status"`
	FeeAmount   int64                  `json:"fee_amount"`
	Description *string                `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"` // open audit annotations
	CreatedAt   time.Time              `json:"created_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted ||
		t.Status == TransactionStatusFailed ||
		t.Status == TransactionStatusRejected
}

// NetAmount is the amount the receiving side is credited after the fee.
func (t *Transaction) NetAmount() int64 {
	return t.Amount - t.FeeAmount
}
