package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-engine/config"
	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
	"wallet-ledger-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransferServiceImpl implements ports.TransferService. Every balance
// mutation is an optimistic compare-and-swap committed in one database
// transaction with its ledger entry and chain-head update, so no partial
// mutation is ever visible.
type TransferServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	idemp      ports.IdempotencyService
	fees       ports.FeeService
	fraud      ports.FraudService
	panicSvc   ports.PanicService
	ledger     ports.LedgerService
	quarantine ports.QuarantineService
	pins       ports.PinService
	alerts     ports.AlertBus
	projection ports.ProjectionService
	transactor ports.DBTransactor
	platform   config.PlatformConfig
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	idemp ports.IdempotencyService,
	fees ports.FeeService,
	fraud ports.FraudService,
	panicSvc ports.PanicService,
	ledger ports.LedgerService,
	quarantine ports.QuarantineService,
	pins ports.PinService,
	alerts ports.AlertBus,
	projection ports.ProjectionService,
	transactor ports.DBTransactor,
	platform config.PlatformConfig,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		idemp:      idemp,
		fees:       fees,
		fraud:      fraud,
		panicSvc:   panicSvc,
		ledger:     ledger,
		quarantine: quarantine,
		pins:       pins,
		alerts:     alerts,
		projection: projection,
		transactor: transactor,
		platform:   platform,
		log:        log,
	}
}

// Transfer moves money between two wallets. The debit and credit commit in
// separate short transactions; a failed credit is compensated by refunding
// the sender, and a failed compensation raises a critical alert.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.OperationResult, error) {
	if err := s.panicSvc.Guard(ctx); err != nil {
		return nil, err
	}
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, err
	}

	idempKey := s.idemp.KeyFor(req.SenderID, string(domain.TransactionTypeTransfer), req.Amount, req.Recipient, req.IdempotencyKey)
	acquired, err := s.idemp.Claim(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !acquired {
		return nil, apperror.ErrDuplicateRequest()
	}
	// The claim stays held once money moved; attempts that mutate nothing
	// release it so the caller's retry is not rejected.
	keyBurned := false
	defer func() {
		if !keyBurned {
			s.idemp.Release(ctx, idempKey)
		}
	}()

	sender, err := s.walletRepo.GetByOwnerID(ctx, req.SenderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load sender wallet: %w", err))
	}
	if sender == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	receiver, err := s.resolveRecipient(ctx, req.Recipient)
	if err != nil {
		return nil, err
	}
	if sender.ID == receiver.ID {
		return nil, apperror.ErrSelfTransfer()
	}
	if sender.IsBlocked || receiver.IsBlocked {
		return nil, apperror.ErrWalletBlocked()
	}
	if sender.Currency != receiver.Currency {
		return nil, apperror.ErrCurrencyMismatch()
	}
	if err := s.verifyPin(sender, req.Pin); err != nil {
		return nil, err
	}
	if !sender.CanDebit(req.Amount) {
		return nil, apperror.ErrInsufficientFunds()
	}

	eval, err := s.fraud.Evaluate(ctx, req.SenderID, sender.ID, req.Amount)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if eval.ShouldBlock {
		if err := s.walletRepo.SetBlocked(ctx, sender.ID, "volume threshold exceeded"); err != nil {
			s.log.Error().Err(err).Str("wallet_id", sender.ID.String()).Msg("failed to block wallet")
		}
		return nil, apperror.ErrFraudBlocked()
	}

	fee, err := s.fees.ComputeFee(ctx, domain.TransactionTypeTransfer, sender.Currency, req.Amount)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if fee >= req.Amount {
		return nil, apperror.Validation("fee consumes the whole amount")
	}

	txn := &domain.Transaction{
		ID:          uuid.New(),
		SenderID:    &sender.ID,
		ReceiverID:  &receiver.ID,
		Amount:      req.Amount,
		Currency:    sender.Currency,
		Type:        domain.TransactionTypeTransfer,
		Status:      domain.TransactionStatusPending,
		FeeAmount:   fee,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	validation := domain.ValidationStatusClean
	if !eval.Clean() {
		validation = domain.ValidationStatusFlagged
	}

	senderBalance, err := s.debitWithRetry(ctx, txn, sender, req.Amount, validation)
	if err != nil {
		return nil, err
	}
	keyBurned = true
	s.notify(sender, domain.WalletEventDebit, req.Amount, senderBalance)

	if eval.ShouldHold {
		// Debit is committed; the credit waits for a reviewer. The key is
		// recorded now because the money already moved.
		if err := s.txRepo.UpdateStatus(ctx, txn.ID, domain.TransactionStatusQuarantined); err != nil {
			s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to mark transaction quarantined")
		}
		txn.Status = domain.TransactionStatusQuarantined
		if _, err := s.quarantine.Hold(ctx, txn.ID, eval.RiskScore, fmt.Sprintf("fraud flags: %v", eval.Flags)); err != nil {
			return nil, err
		}
		s.recordKey(ctx, idempKey, req.SenderID, domain.TransactionTypeTransfer)

		return &ports.OperationResult{
			Transaction: txn,
			NewBalance:  senderBalance,
			Quarantined: true,
		}, nil
	}

	net := txn.NetAmount()
	receiverBalance, err := s.creditReceiver(ctx, txn, receiver, net, validation)
	if err != nil {
		refunded, compErr := s.compensate(ctx, txn, sender, req.Amount, senderBalance, err)
		// A committed refund leaves no net mutation, so the key is usable again.
		keyBurned = !refunded
		return nil, compErr
	}
	s.notify(receiver, domain.WalletEventCredit, net, receiverBalance)

	if err := s.txRepo.UpdateStatus(ctx, txn.ID, domain.TransactionStatusCompleted); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to mark transaction completed")
	}
	txn.Status = domain.TransactionStatusCompleted
	s.recordKey(ctx, idempKey, req.SenderID, domain.TransactionTypeTransfer)

	s.log.Info().
		Str("transaction_id", txn.ID.String()).
		Int64("amount", req.Amount).
		Int64("fee", fee).
		Msg("transfer completed")

	return &ports.OperationResult{
		Transaction:         txn,
		NewBalance:          senderBalance,
		RecipientNewBalance: &receiverBalance,
	}, nil
}

// Deposit credits a user's own wallet.
func (s *TransferServiceImpl) Deposit(ctx context.Context, req ports.DepositRequest) (*ports.OperationResult, error) {
	if err := s.panicSvc.Guard(ctx); err != nil {
		return nil, err
	}
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, err
	}

	idempKey := s.idemp.KeyFor(req.UserID, string(domain.TransactionTypeDeposit), req.Amount, "", req.IdempotencyKey)
	acquired, err := s.idemp.Claim(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !acquired {
		return nil, apperror.ErrDuplicateRequest()
	}
	keyBurned := false
	defer func() {
		if !keyBurned {
			s.idemp.Release(ctx, idempKey)
		}
	}()

	wallet, err := s.walletRepo.GetByOwnerID(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if wallet.IsBlocked {
		return nil, apperror.ErrWalletBlocked()
	}

	fee, err := s.fees.ComputeFee(ctx, domain.TransactionTypeDeposit, wallet.Currency, req.Amount)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if fee >= req.Amount {
		return nil, apperror.Validation("fee consumes the whole amount")
	}

	txn := &domain.Transaction{
		ID:          uuid.New(),
		ReceiverID:  &wallet.ID,
		Amount:      req.Amount,
		Currency:    wallet.Currency,
		Type:        domain.TransactionTypeDeposit,
		Status:      domain.TransactionStatusPending,
		FeeAmount:   fee,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	net := txn.NetAmount()
	newBalance, err := s.creditReceiver(ctx, txn, wallet, net, domain.ValidationStatusClean)
	if err != nil {
		s.failTransaction(ctx, txn.ID)
		return nil, apperror.TransientStoreError(err)
	}
	keyBurned = true
	s.notify(wallet, domain.WalletEventCredit, net, newBalance)

	if err := s.txRepo.UpdateStatus(ctx, txn.ID, domain.TransactionStatusCompleted); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to mark deposit completed")
	}
	txn.Status = domain.TransactionStatusCompleted
	s.recordKey(ctx, idempKey, req.UserID, domain.TransactionTypeDeposit)

	return &ports.OperationResult{Transaction: txn, NewBalance: newBalance}, nil
}

// Withdraw debits a user's own wallet. The full amount is debited; the fee
// is carved out of it before payout.
func (s *TransferServiceImpl) Withdraw(ctx context.Context, req ports.WithdrawRequest) (*ports.OperationResult, error) {
	if err := s.panicSvc.Guard(ctx); err != nil {
		return nil, err
	}
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, err
	}

	idempKey := s.idemp.KeyFor(req.UserID, string(domain.TransactionTypeWithdraw), req.Amount, "", req.IdempotencyKey)
	acquired, err := s.idemp.Claim(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !acquired {
		return nil, apperror.ErrDuplicateRequest()
	}
	keyBurned := false
	defer func() {
		if !keyBurned {
			s.idemp.Release(ctx, idempKey)
		}
	}()

	wallet, err := s.walletRepo.GetByOwnerID(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if wallet.IsBlocked {
		return nil, apperror.ErrWalletBlocked()
	}
	if err := s.verifyPin(wallet, req.Pin); err != nil {
		return nil, err
	}
	if !wallet.CanDebit(req.Amount) {
		return nil, apperror.ErrInsufficientFunds()
	}

	eval, err := s.fraud.Evaluate(ctx, req.UserID, wallet.ID, req.Amount)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if eval.ShouldBlock {
		if err := s.walletRepo.SetBlocked(ctx, wallet.ID, "volume threshold exceeded"); err != nil {
			s.log.Error().Err(err).Str("wallet_id", wallet.ID.String()).Msg("failed to block wallet")
		}
		return nil, apperror.ErrFraudBlocked()
	}

	fee, err := s.fees.ComputeFee(ctx, domain.TransactionTypeWithdraw, wallet.Currency, req.Amount)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if fee >= req.Amount {
		return nil, apperror.Validation("fee consumes the whole amount")
	}

	txn := &domain.Transaction{
		ID:          uuid.New(),
		SenderID:    &wallet.ID,
		Amount:      req.Amount,
		Currency:    wallet.Currency,
		Type:        domain.TransactionTypeWithdraw,
		Status:      domain.TransactionStatusPending,
		FeeAmount:   fee,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	validation := domain.ValidationStatusClean
	if !eval.Clean() {
		validation = domain.ValidationStatusFlagged
	}

	newBalance, err := s.debitWithRetry(ctx, txn, wallet, req.Amount, validation)
	if err != nil {
		return nil, err
	}
	keyBurned = true
	s.notify(wallet, domain.WalletEventDebit, req.Amount, newBalance)

	if err := s.txRepo.UpdateStatus(ctx, txn.ID, domain.TransactionStatusCompleted); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("failed to mark withdrawal completed")
	}
	txn.Status = domain.TransactionStatusCompleted
	s.recordKey(ctx, idempKey, req.UserID, domain.TransactionTypeWithdraw)

	return &ports.OperationResult{Transaction: txn, NewBalance: newBalance}, nil
}

// debitWithRetry runs the CAS debit loop. Each attempt commits the debit, its
// ledger entry and the chain head in one database transaction. A lost race
// reloads the wallet, re-checks funds and tries again up to the configured
// bound.
func (s *TransferServiceImpl) debitWithRetry(ctx context.Context, txn *domain.Transaction, wallet *domain.Wallet, amount int64, validation domain.ValidationStatus) (int64, error) {
	expected := wallet.Balance

	for attempt := 0; attempt <= s.platform.CASRetries; attempt++ {
		newBalance, err := s.debitOnce(ctx, txn, wallet.ID, amount, expected, validation)
		if err == nil {
			return newBalance, nil
		}
		if !errors.Is(err, domain.ErrBalanceConflict) {
			s.failTransaction(ctx, txn.ID)
			return 0, apperror.TransientStoreError(err)
		}

		// Lost the race: reload and re-validate before retrying.
		fresh, err := s.walletRepo.GetByID(ctx, wallet.ID)
		if err != nil {
			s.failTransaction(ctx, txn.ID)
			return 0, apperror.InternalError(fmt.Errorf("reload wallet: %w", err))
		}
		if fresh == nil {
			s.failTransaction(ctx, txn.ID)
			return 0, apperror.ErrNotFound("wallet")
		}
		if fresh.IsBlocked {
			s.failTransaction(ctx, txn.ID)
			return 0, apperror.ErrWalletBlocked()
		}
		if !fresh.CanDebit(amount) {
			s.failTransaction(ctx, txn.ID)
			return 0, apperror.ErrInsufficientFunds()
		}
		expected = fresh.Balance
	}

	s.failTransaction(ctx, txn.ID)
	return 0, apperror.ErrBalanceConflict()
}

func (s *TransferServiceImpl) debitOnce(ctx context.Context, txn *domain.Transaction, walletID uuid.UUID, amount, expected int64, validation domain.ValidationStatus) (int64, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	newBalance, chainHead, err := s.walletRepo.DebitCAS(ctx, dbTx, walletID, amount, expected)
	if err != nil {
		return 0, err
	}

	entry, err := s.ledger.Append(ctx, dbTx, ports.LedgerAppendParams{
		TransactionID:    txn.ID,
		WalletID:         walletID,
		ActorType:        domain.ActorSender,
		Amount:           -amount,
		BalanceBefore:    newBalance + amount,
		BalanceAfter:     newBalance,
		PrevHash:         chainHead,
		ValidationStatus: validation,
	})
	if err != nil {
		return 0, err
	}
	if err := s.walletRepo.SetChainHead(ctx, dbTx, walletID, entry.Hash); err != nil {
		return 0, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit debit: %w", err)
	}
	return newBalance, nil
}

// creditReceiver commits the credit leg with its ledger entry and chain head.
func (s *TransferServiceImpl) creditReceiver(ctx context.Context, txn *domain.Transaction, wallet *domain.Wallet, amount int64, validation domain.ValidationStatus) (int64, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	newBalance, chainHead, err := s.walletRepo.Credit(ctx, dbTx, wallet.ID, amount)
	if err != nil {
		return 0, err
	}

	entry, err := s.ledger.Append(ctx, dbTx, ports.LedgerAppendParams{
		TransactionID:    txn.ID,
		WalletID:         wallet.ID,
		ActorType:        domain.ActorReceiver,
		Amount:           amount,
		BalanceBefore:    newBalance - amount,
		BalanceAfter:     newBalance,
		PrevHash:         chainHead,
		ValidationStatus: validation,
	})
	if err != nil {
		return 0, err
	}
	if err := s.walletRepo.SetChainHead(ctx, dbTx, wallet.ID, entry.Hash); err != nil {
		return 0, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit credit: %w", err)
	}
	return newBalance, nil
}

// compensate refunds a committed debit after the credit leg failed. The
// refund is CAS-guarded on the balance the debit left behind; when that guard
// fails too, the system is inconsistent and a CRITICAL alert fires. The bool
// reports whether the refund committed, leaving no net balance change.
func (s *TransferServiceImpl) compensate(ctx context.Context, txn *domain.Transaction, sender *domain.Wallet, amount, debitedBalance int64, creditErr error) (bool, error) {
	s.log.Error().Err(creditErr).
		Str("transaction_id", txn.ID.String()).
		Msg("credit leg failed, compensating sender")

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return false, s.critical(ctx, txn, sender, fmt.Errorf("begin compensation tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	newBalance, chainHead, err := s.walletRepo.CreditCAS(ctx, dbTx, sender.ID, amount, debitedBalance)
	if err != nil {
		return false, s.critical(ctx, txn, sender, fmt.Errorf("compensation refund: %w", err))
	}

	entry, err := s.ledger.Append(ctx, dbTx, ports.LedgerAppendParams{
		TransactionID:    txn.ID,
		WalletID:         sender.ID,
		ActorType:        domain.ActorSender,
		Amount:           amount,
		BalanceBefore:    debitedBalance,
		BalanceAfter:     newBalance,
		PrevHash:         chainHead,
		ValidationStatus: domain.ValidationStatusClean,
	})
	if err != nil {
		return false, s.critical(ctx, txn, sender, err)
	}
	if err := s.walletRepo.SetChainHead(ctx, dbTx, sender.ID, entry.Hash); err != nil {
		return false, s.critical(ctx, txn, sender, err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return false, s.critical(ctx, txn, sender, fmt.Errorf("commit compensation: %w", err))
	}

	s.failTransaction(ctx, txn.ID)
	s.notify(sender, domain.WalletEventCredit, amount, newBalance)

	s.log.Warn().
		Str("transaction_id", txn.ID.String()).
		Int64("amount", amount).
		Msg("transfer compensated, sender refunded")
	return true, apperror.TransientStoreError(creditErr)
}

// critical reports a debit whose credit and compensation both failed. The
// caller gets an opaque error; the detail goes to operators.
func (s *TransferServiceImpl) critical(ctx context.Context, txn *domain.Transaction, sender *domain.Wallet, cause error) error {
	s.log.Error().Err(cause).
		Str("transaction_id", txn.ID.String()).
		Str("wallet_id", sender.ID.String()).
		Msg("compensation failed, funds inconsistency")

	if err := s.alerts.Publish(ctx, domain.Alert{
		Kind:          domain.AlertCriticalInconsistency,
		Severity:      domain.SeverityCritical,
		Message:       cause.Error(),
		WalletID:      &sender.ID,
		TransactionID: &txn.ID,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to publish critical inconsistency alert")
	}
	return apperror.CriticalInconsistency(cause)
}

func (s *TransferServiceImpl) validateAmount(amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}
	if amount > s.platform.MaxAmount {
		return apperror.ErrAmountCapExceeded()
	}
	return nil
}

// resolveRecipient accepts a canonical owner UUID or a short public wallet
// code.
func (s *TransferServiceImpl) resolveRecipient(ctx context.Context, recipient string) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	var err error
	if ownerID, parseErr := uuid.Parse(recipient); parseErr == nil {
		wallet, err = s.walletRepo.GetByOwnerID(ctx, ownerID)
	} else {
		wallet, err = s.walletRepo.GetByPublicCode(ctx, recipient)
	}
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("resolve recipient: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("recipient wallet")
	}
	return wallet, nil
}

func (s *TransferServiceImpl) verifyPin(wallet *domain.Wallet, pin *string) error {
	if wallet.PinHash == nil {
		return nil
	}
	if pin == nil {
		return apperror.ErrInvalidPin()
	}
	ok, err := s.pins.Verify(*pin, *wallet.PinHash)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("verify pin: %w", err))
	}
	if !ok {
		return apperror.ErrInvalidPin()
	}
	return nil
}

func (s *TransferServiceImpl) failTransaction(ctx context.Context, id uuid.UUID) {
	if err := s.txRepo.UpdateStatus(ctx, id, domain.TransactionStatusFailed); err != nil {
		s.log.Error().Err(err).Str("transaction_id", id.String()).Msg("failed to mark transaction failed")
	}
}

func (s *TransferServiceImpl) recordKey(ctx context.Context, key string, userID uuid.UUID, op domain.TransactionType) {
	if err := s.idemp.Record(ctx, key, userID, string(op)); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to record idempotency key")
	}
}

func (s *TransferServiceImpl) notify(wallet *domain.Wallet, kind domain.WalletEventKind, amount, newBalance int64) {
	s.projection.Notify(domain.WalletEvent{
		WalletID:   wallet.ID,
		OwnerID:    wallet.OwnerID,
		Kind:       kind,
		Amount:     amount,
		NewBalance: newBalance,
		Currency:   wallet.Currency,
		OccurredAt: time.Now().UTC(),
	})
}
