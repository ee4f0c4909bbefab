package service

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
	"wallet-ledger-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// QuarantineServiceImpl implements ports.QuarantineService. A quarantined
// transfer has its debit committed and its credit deferred; resolution either
// replays the credit (approve) or refunds the sender (reject). Both paths
// write REVIEWED ledger entries so the money trail stays complete.
type QuarantineServiceImpl struct {
	qRepo      ports.QuarantineRepository
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
	ledger     ports.LedgerService
	transactor ports.DBTransactor
	alerts     ports.AlertBus
	projection ports.ProjectionService
	log        zerolog.Logger
}

// NewQuarantineService creates a new QuarantineServiceImpl.
func NewQuarantineService(
	qRepo ports.QuarantineRepository,
	txRepo ports.TransactionRepository,
	walletRepo ports.WalletRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	alerts ports.AlertBus,
	projection ports.ProjectionService,
	log zerolog.Logger,
) *QuarantineServiceImpl {
	return &QuarantineServiceImpl{
		qRepo:      qRepo,
		txRepo:     txRepo,
		walletRepo: walletRepo,
		ledger:     ledger,
		transactor: transactor,
		alerts:     alerts,
		projection: projection,
		log:        log,
	}
}

// Hold records a quarantine entry for a transaction whose debit already
// committed.
func (s *QuarantineServiceImpl) Hold(ctx context.Context, transactionID uuid.UUID, riskScore int, reason string) (*domain.QuarantinedTransaction, error) {
	hold := &domain.QuarantinedTransaction{
		ID:                    uuid.New(),
		OriginalTransactionID: transactionID,
		RiskScore:             riskScore,
		Reason:                reason,
		Status:                domain.QuarantineStatusPending,
		CreatedAt:             time.Now().UTC(),
	}
	if err := s.qRepo.Create(ctx, hold); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create quarantine hold: %w", err))
	}

	if err := s.alerts.Publish(ctx, domain.Alert{
		Kind:          domain.AlertQuarantineHold,
		Severity:      domain.SeverityHigh,
		Message:       reason,
		TransactionID: &transactionID,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to publish quarantine alert")
	}

	s.log.Warn().
		Str("transaction_id", transactionID.String()).
		Int("risk_score", riskScore).
		Msg("transaction quarantined")
	return hold, nil
}

// Resolve applies a reviewer decision exactly once. The status flip is a
// guarded UPDATE, so two reviewers racing on the same hold cannot both move
// money.
func (s *QuarantineServiceImpl) Resolve(ctx context.Context, id uuid.UUID, decision domain.QuarantineStatus, reviewerID uuid.UUID) error {
	if decision != domain.QuarantineStatusApproved && decision != domain.QuarantineStatusRejected {
		return apperror.Validation("decision must be APPROVED or REJECTED")
	}

	hold, err := s.qRepo.GetByID(ctx, id)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("load quarantine hold: %w", err))
	}
	if hold == nil {
		return apperror.ErrNotFound("quarantined transaction")
	}

	txn, err := s.txRepo.GetByID(ctx, hold.OriginalTransactionID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("load quarantined transaction: %w", err))
	}
	if txn == nil {
		return apperror.ErrNotFound("transaction")
	}

	resolved, err := s.qRepo.MarkResolved(ctx, id, decision, reviewerID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("resolve quarantine hold: %w", err))
	}
	if !resolved {
		return apperror.ErrQuarantineAlreadyResolved()
	}

	if decision == domain.QuarantineStatusApproved {
		return s.replayCredit(ctx, txn)
	}
	return s.refundSender(ctx, txn)
}

// replayCredit delivers the deferred credit to the receiver.
func (s *QuarantineServiceImpl) replayCredit(ctx context.Context, txn *domain.Transaction) error {
	if txn.ReceiverID == nil {
		return apperror.InternalError(fmt.Errorf("quarantined transaction %s has no receiver", txn.ID))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	net := txn.NetAmount()
	newBalance, chainHead, err := s.walletRepo.Credit(ctx, dbTx, *txn.ReceiverID, net)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("replay credit: %w", err))
	}

	entry, err := s.ledger.Append(ctx, dbTx, ports.LedgerAppendParams{
		TransactionID:    txn.ID,
		WalletID:         *txn.ReceiverID,
		ActorType:        domain.ActorReceiver,
		Amount:           net,
		BalanceBefore:    newBalance - net,
		BalanceAfter:     newBalance,
		PrevHash:         chainHead,
		ValidationStatus: domain.ValidationStatusReviewed,
	})
	if err != nil {
		return apperror.InternalError(err)
	}
	if err := s.walletRepo.SetChainHead(ctx, dbTx, *txn.ReceiverID, entry.Hash); err != nil {
		return apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit replay credit: %w", err))
	}

	if err := s.txRepo.UpdateStatus(ctx, txn.ID, domain.TransactionStatusCompleted); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to complete approved transaction")
	}

	s.notify(ctx, *txn.ReceiverID, domain.WalletEventCredit, net, newBalance, txn.Currency)

	s.log.Info().
		Str("transaction_id", txn.ID.String()).
		Int64("amount", net).
		Msg("quarantined transaction approved, credit replayed")
	return nil
}

// refundSender returns the full debited amount, fee included, since the
// platform never delivered the transfer.
func (s *QuarantineServiceImpl) refundSender(ctx context.Context, txn *domain.Transaction) error {
	if txn.SenderID == nil {
		return apperror.InternalError(fmt.Errorf("quarantined transaction %s has no sender", txn.ID))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	newBalance, chainHead, err := s.walletRepo.Credit(ctx, dbTx, *txn.SenderID, txn.Amount)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("refund sender: %w", err))
	}

	entry, err := s.ledger.Append(ctx, dbTx, ports.LedgerAppendParams{
		TransactionID:    txn.ID,
		WalletID:         *txn.SenderID,
		ActorType:        domain.ActorSender,
		Amount:           txn.Amount,
		BalanceBefore:    newBalance - txn.Amount,
		BalanceAfter:     newBalance,
		PrevHash:         chainHead,
		ValidationStatus: domain.ValidationStatusReviewed,
	})
	if err != nil {
		return apperror.InternalError(err)
	}
	if err := s.walletRepo.SetChainHead(ctx, dbTx, *txn.SenderID, entry.Hash); err != nil {
		return apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit refund: %w", err))
	}

	if err := s.txRepo.UpdateStatus(ctx, txn.ID, domain.TransactionStatusRejected); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to mark rejected transaction")
	}

	s.notify(ctx, *txn.SenderID, domain.WalletEventCredit, txn.Amount, newBalance, txn.Currency)

	s.log.Info().
		Str("transaction_id", txn.ID.String()).
		Int64("amount", txn.Amount).
		Msg("quarantined transaction rejected, sender refunded")
	return nil
}

// ListPending returns unresolved holds for the review surface.
func (s *QuarantineServiceImpl) ListPending(ctx context.Context) ([]domain.QuarantinedTransaction, error) {
	holds, err := s.qRepo.ListPending(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list pending quarantine: %w", err))
	}
	return holds, nil
}

func (s *QuarantineServiceImpl) notify(ctx context.Context, walletID uuid.UUID, kind domain.WalletEventKind, amount, newBalance int64, currency string) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil || wallet == nil {
		return
	}
	s.projection.Notify(domain.WalletEvent{
		WalletID:   walletID,
		OwnerID:    wallet.OwnerID,
		Kind:       kind,
		Amount:     amount,
		NewBalance: newBalance,
		Currency:   currency,
		OccurredAt: time.Now().UTC(),
	})
}
