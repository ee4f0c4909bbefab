package domain

import (
	"time"

	"github.com/google/uuid"
)

// Alert kinds published to the operator alert bus.
const (
	AlertCriticalInconsistency = "critical_inconsistency"
	AlertFraudFlag             = "fraud_flag"
	AlertQuarantineHold        = "quarantine_hold"
	AlertPanicActivated        = "panic_activated"
	AlertPanicDeactivated      = "panic_deactivated"
)

// Alert is an operator-facing event. CRITICAL alerts must never be dropped
// silently.
type Alert struct {
	Kind          string                 `json:"kind"`
	Severity      Severity               `json:"severity"`
	Message       string                 `json:"message"`
	WalletID      *uuid.UUID             `json:"wallet_id,omitempty"`
	UserID        *uuid.UUID             `json:"user_id,omitempty"`
	TransactionID *uuid.UUID             `json:"transaction_id,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// WalletEventKind classifies a wallet balance mutation for projections.
type WalletEventKind string

const (
	WalletEventDebit  WalletEventKind = "DEBIT"
	WalletEventCredit WalletEventKind = "CREDIT"
)

// WalletEvent is emitted after a committed balance mutation. Role-specific
// projections consume it asynchronously; projection failures never affect
// the transfer path.
type WalletEvent struct {
	WalletID   uuid.UUID       `json:"wallet_id"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	Kind       WalletEventKind `json:"kind"`
	Amount     int64           `json:"amount"`
	NewBalance int64           `json:"new_balance"`
	Currency   string          `json:"currency"`
	OccurredAt time.Time       `json:"occurred_at"`
}
