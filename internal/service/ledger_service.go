package service

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
	"wallet-ledger-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	repo ports.LedgerRepository
	log  zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(repo ports.LedgerRepository, log zerolog.Logger) *LedgerServiceImpl {
	return &LedgerServiceImpl{repo: repo, log: log}
}

// Append writes one hash-chained entry inside the caller's database
// transaction. PrevHash must be the chain head the balance mutation returned
// in the same transaction, which makes the chain untouchable by concurrent
// writers.
func (s *LedgerServiceImpl) Append(ctx context.Context, tx pgx.Tx, p ports.LedgerAppendParams) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{
		ID:               uuid.New(),
		TransactionID:    p.TransactionID,
		WalletID:         p.WalletID,
		ActorType:        p.ActorType,
		Amount:           p.Amount,
		BalanceBefore:    p.BalanceBefore,
		BalanceAfter:     p.BalanceAfter,
		ValidationStatus: p.ValidationStatus,
		PrevHash:         p.PrevHash,
		CreatedAt:        time.Now().UTC(),
	}
	entry.Hash = entry.ComputeHash()

	if err := s.repo.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

// Feed returns ledger entries newest first, optionally scoped to one wallet.
func (s *LedgerServiceImpl) Feed(ctx context.Context, walletID *uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var entries []domain.LedgerEntry
	var total int64
	var err error
	if walletID != nil {
		entries, total, err = s.repo.ListByWallet(ctx, *walletID, page, pageSize)
	} else {
		entries, total, err = s.repo.List(ctx, page, pageSize)
	}
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("ledger feed: %w", err))
	}
	return entries, total, nil
}

// VerifyWallet recomputes a wallet's chain from genesis. It returns the first
// broken entry, or nil when the chain is intact.
func (s *LedgerServiceImpl) VerifyWallet(ctx context.Context, walletID uuid.UUID) (*domain.LedgerEntry, error) {
	chain, err := s.repo.ListChain(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load ledger chain: %w", err))
	}

	broken := domain.VerifyChain(chain)
	if broken != nil {
		s.log.Error().
			Str("wallet_id", walletID.String()).
			Str("entry_id", broken.ID.String()).
			Msg("ledger chain verification failed")
	}
	return broken, nil
}
