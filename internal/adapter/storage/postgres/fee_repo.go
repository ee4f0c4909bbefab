package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// FeeRuleRepo implements ports.FeeRuleRepository.
type FeeRuleRepo struct {
	pool Pool
}

// NewFeeRuleRepo creates a new FeeRuleRepo.
func NewFeeRuleRepo(pool Pool) *FeeRuleRepo {
	return &FeeRuleRepo{pool: pool}
}

// GetActive returns the active rule for (operation type, currency), or nil
// when none is configured, which callers treat as a zero fee.
func (r *FeeRuleRepo) GetActive(ctx context.Context, opType domain.TransactionType, currency string) (*domain.FeeRule, error) {
	query := `SELECT id, operation_type, currency, fee_type, fee_value, active
		FROM fee_rules WHERE operation_type = $1 AND currency = $2 AND active
		ORDER BY updated_at DESC LIMIT 1`

	rule := &domain.FeeRule{}
	err := r.pool.QueryRow(ctx, query, opType, currency).Scan(
		&rule.ID, &rule.OperationType, &rule.Currency, &rule.FeeType, &rule.FeeValue, &rule.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active fee rule: %w", err)
	}
	return rule, nil
}
