package dto

import (
	"time"

	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
)

// OperationRequest is the request body for a wallet money operation.
type OperationRequest struct {
	Operation      string  `json:"operation" binding:"required,oneof=TRANSFER DEPOSIT WITHDRAW"`
	Amount         int64   `json:"amount" binding:"required,gt=0"`
	RecipientID    *string `json:"recipient_id,omitempty" binding:"omitempty,max=64,safe_id"`
	Pin            *string `json:"pin,omitempty" binding:"omitempty,min=4,max=8,numeric"`
	Description    *string `json:"description,omitempty" binding:"omitempty,max=500"`
	IdempotencyKey *string `json:"idempotency_key,omitempty" binding:"omitempty,max=100,safe_id"`
}

// OperationResponse is the response body for a completed or quarantined
// operation.
type OperationResponse struct {
	TransactionID       string `json:"transaction_id"`
	Status              string `json:"status"`
	Amount              int64  `json:"amount"`
	Fee                 int64  `json:"fee"`
	NewBalance          int64  `json:"new_balance"`
	RecipientNewBalance *int64 `json:"recipient_new_balance,omitempty"`
	Quarantined         bool   `json:"quarantined"`
}

// BalanceResponse is the response for a wallet balance query.
type BalanceResponse struct {
	WalletID   string `json:"wallet_id"`
	PublicCode string `json:"public_code"`
	Balance    int64  `json:"balance"`
	Currency   string `json:"currency"`
	Blocked    bool   `json:"blocked"`
}

// PanicToggleRequest flips the emergency freeze.
type PanicToggleRequest struct {
	Active bool   `json:"active"`
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// PanicStateResponse describes the current freeze state.
type PanicStateResponse struct {
	Active      bool    `json:"active"`
	ActivatedBy *string `json:"activated_by,omitempty"`
	Reason      *string `json:"reason,omitempty"`
	ActivatedAt *string `json:"activated_at,omitempty"`
}

// QuarantineResolveRequest carries a reviewer decision.
type QuarantineResolveRequest struct {
	Decision string `json:"decision" binding:"required,oneof=APPROVED REJECTED"`
}

// QuarantineResponse is one held transaction in the review queue.
type QuarantineResponse struct {
	ID                    string `json:"id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	RiskScore             int    `json:"risk_score"`
	Reason                string `json:"reason"`
	Status                string `json:"status"`
	CreatedAt             string `json:"created_at"`
}

// SuspiciousActivityResponse is one fraud finding awaiting review.
type SuspiciousActivityResponse struct {
	ID          string   `json:"id"`
	WalletID    string   `json:"wallet_id"`
	UserID      string   `json:"user_id"`
	Flags       []string `json:"flags"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	CreatedAt   string   `json:"created_at"`
}

// LedgerEntryResponse is one entry of the audit trail.
type LedgerEntryResponse struct {
	ID               string `json:"id"`
	TransactionID    string `json:"transaction_id"`
	WalletID         string `json:"wallet_id"`
	ActorType        string `json:"actor_type"`
	Amount           int64  `json:"amount"`
	BalanceBefore    int64  `json:"balance_before"`
	BalanceAfter     int64  `json:"balance_after"`
	ValidationStatus string `json:"validation_status"`
	Hash             string `json:"hash"`
	PrevHash         string `json:"prev_hash"`
	CreatedAt        string `json:"created_at"`
}

// LedgerFeedResponse wraps a paginated ledger feed.
type LedgerFeedResponse struct {
	Items      []LedgerEntryResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// ChainVerifyResponse reports the outcome of a chain verification.
type ChainVerifyResponse struct {
	WalletID      string  `json:"wallet_id"`
	Intact        bool    `json:"intact"`
	BrokenEntryID *string `json:"broken_entry_id,omitempty"`
}

// FromOperationResult maps a service result to the wire shape.
func FromOperationResult(r *ports.OperationResult) OperationResponse {
	return OperationResponse{
		TransactionID:       r.Transaction.ID.String(),
		Status:              string(r.Transaction.Status),
		Amount:              r.Transaction.Amount,
		Fee:                 r.Transaction.FeeAmount,
		NewBalance:          r.NewBalance,
		RecipientNewBalance: r.RecipientNewBalance,
		Quarantined:         r.Quarantined,
	}
}

// FromLedgerEntry maps a domain ledger entry to the wire shape.
func FromLedgerEntry(e domain.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:               e.ID.String(),
		TransactionID:    e.TransactionID.String(),
		WalletID:         e.WalletID.String(),
		ActorType:        string(e.ActorType),
		Amount:           e.Amount,
		BalanceBefore:    e.BalanceBefore,
		BalanceAfter:     e.BalanceAfter,
		ValidationStatus: string(e.ValidationStatus),
		Hash:             e.Hash,
		PrevHash:         e.PrevHash,
		CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// FromQuarantined maps a held transaction to the wire shape.
func FromQuarantined(q domain.QuarantinedTransaction) QuarantineResponse {
	return QuarantineResponse{
		ID:                    q.ID.String(),
		OriginalTransactionID: q.OriginalTransactionID.String(),
		RiskScore:             q.RiskScore,
		Reason:                q.Reason,
		Status:                string(q.Status),
		CreatedAt:             q.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// FromSuspiciousActivity maps a fraud finding to the wire shape.
func FromSuspiciousActivity(a domain.SuspiciousActivity) SuspiciousActivityResponse {
	return SuspiciousActivityResponse{
		ID:          a.ID.String(),
		WalletID:    a.WalletID.String(),
		UserID:      a.UserID.String(),
		Flags:       a.Flags,
		Severity:    string(a.Severity),
		Description: a.Description,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
