package service

import (
	"context"
	"fmt"

	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
)

// FeeServiceImpl implements ports.FeeService against the external fee
// schedule. A missing rule means zero fee, never an error.
type FeeServiceImpl struct {
	rules ports.FeeRuleRepository
}

// NewFeeService creates a new FeeServiceImpl.
func NewFeeService(rules ports.FeeRuleRepository) *FeeServiceImpl {
	return &FeeServiceImpl{rules: rules}
}

// ComputeFee returns the fee in minor units for the given operation.
func (s *FeeServiceImpl) ComputeFee(ctx context.Context, opType domain.TransactionType, currency string, amount int64) (int64, error) {
	rule, err := s.rules.GetActive(ctx, opType, currency)
	if err != nil {
		return 0, fmt.Errorf("fetch fee rule: %w", err)
	}
	if rule == nil {
		return 0, nil
	}
	return rule.Apply(amount), nil
}
