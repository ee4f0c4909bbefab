package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuarantineStatus is the review state of a held transaction.
type QuarantineStatus string

const (
	QuarantineStatusPending  QuarantineStatus = "PENDING"
	QuarantineStatusApproved QuarantineStatus = "APPROVED"
	QuarantineStatusRejected QuarantineStatus = "REJECTED"
)

// QuarantinedTransaction holds a flagged transaction for human review. The
// underlying transfer is debited but not credited until a reviewer decides.
type QuarantinedTransaction struct {
	ID                    uuid.UUID        `json:"id"`
	OriginalTransactionID uuid.UUID        `json:"original_transaction_id"`
	RiskScore             int              `json:"risk_score"`
	Reason                string           `json:"reason"`
	Status                QuarantineStatus `json:"status"`
	ReviewedBy            *uuid.UUID       `json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}

// IsResolved returns true once a reviewer has decided.
func (q *QuarantinedTransaction) IsResolved() bool {
	return q.Status != QuarantineStatusPending
}
