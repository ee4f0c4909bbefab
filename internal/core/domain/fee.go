package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeType selects how a fee rule computes its fee.
type FeeType string

const (
	FeeTypeFixed      FeeType = "FIXED"
	FeeTypePercentage FeeType = "PERCENTAGE"
)

// FeeRule is one active fee schedule row keyed by (operation type, currency).
// FeeValue is minor units for fixed rules and a rate (e.g. 0.015) for
// percentage rules.
type FeeRule struct {
	ID            uuid.UUID       `json:"id"`
	OperationType TransactionType `json:"operation_type"`
	Currency      string          `json:"currency"`
	FeeType       FeeType         `json:"fee_type"`
	FeeValue      decimal.Decimal `json:"fee_value"`
	Active        bool            `json:"active"`
}

// Apply computes the fee for amount in minor units, rounding percentage fees
// down so the fee never exceeds the exact share.
func (r *FeeRule) Apply(amount int64) int64 {
	switch r.FeeType {
	case FeeTypeFixed:
		return r.FeeValue.IntPart()
	case FeeTypePercentage:
		return decimal.NewFromInt(amount).Mul(r.FeeValue).Floor().IntPart()
	default:
		return 0
	}
}
