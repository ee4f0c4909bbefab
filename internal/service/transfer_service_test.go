package service

import (
	"context"
	"errors"
	"testing"

	"wallet-ledger-engine/config"
	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
	"wallet-ledger-engine/internal/core/ports/mocks"
	"wallet-ledger-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockTx satisfies pgx.Tx for service-level tests; only Commit and Rollback
// are ever called outside the repositories.
type mockTx struct{ pgx.Tx }

func (mockTx) Commit(context.Context) error   { return nil }
func (mockTx) Rollback(context.Context) error { return nil }

type transferDeps struct {
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	idemp      *mocks.MockIdempotencyService
	fees       *mocks.MockFeeService
	fraud      *mocks.MockFraudService
	panicSvc   *mocks.MockPanicService
	ledger     *mocks.MockLedgerService
	quarantine *mocks.MockQuarantineService
	pins       *mocks.MockPinService
	alerts     *mocks.MockAlertBus
	projection *mocks.MockProjectionService
	transactor *mocks.MockDBTransactor
}

func setupTransferService(t *testing.T) (*TransferServiceImpl, *transferDeps) {
	ctrl := gomock.NewController(t)
	d := &transferDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		idemp:      mocks.NewMockIdempotencyService(ctrl),
		fees:       mocks.NewMockFeeService(ctrl),
		fraud:      mocks.NewMockFraudService(ctrl),
		panicSvc:   mocks.NewMockPanicService(ctrl),
		ledger:     mocks.NewMockLedgerService(ctrl),
		quarantine: mocks.NewMockQuarantineService(ctrl),
		pins:       mocks.NewMockPinService(ctrl),
		alerts:     mocks.NewMockAlertBus(ctrl),
		projection: mocks.NewMockProjectionService(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
	}
	svc := NewTransferService(
		d.walletRepo, d.txRepo, d.idemp, d.fees, d.fraud, d.panicSvc,
		d.ledger, d.quarantine, d.pins, d.alerts, d.projection, d.transactor,
		config.PlatformConfig{MaxAmount: 1_000_000_00, CASRetries: 2, DefaultCurrency: "USD"},
		zerolog.Nop(),
	)
	return svc, d
}

func testWallet(balance int64) *domain.Wallet {
	return &domain.Wallet{
		ID:       uuid.New(),
		OwnerID:  uuid.New(),
		Balance:  balance,
		Currency: "USD",
	}
}

func cleanEval() *domain.FraudEvaluation {
	return &domain.FraudEvaluation{Severity: domain.SeverityLow}
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestTransfer_Success(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(10_000)
	receiver := testWallet(500)
	req := ports.TransferRequest{
		SenderID:  sender.OwnerID,
		Recipient: "WLT-RECV01",
		Amount:    2_000,
	}

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(sender.OwnerID, "TRANSFER", int64(2_000), "WLT-RECV01", nil).Return("idem-key")
	d.idemp.EXPECT().Claim(ctx, "idem-key").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-RECV01").Return(receiver, nil)
	d.fraud.EXPECT().Evaluate(ctx, sender.OwnerID, sender.ID, int64(2_000)).Return(cleanEval(), nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeTransfer, "USD", int64(2_000)).Return(int64(20), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	// Debit leg.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().DebitCAS(ctx, gomock.Any(), sender.ID, int64(2_000), int64(10_000)).
		Return(int64(8_000), "prevhash-s", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, p ports.LedgerAppendParams) (*domain.LedgerEntry, error) {
			assert.Equal(t, sender.ID, p.WalletID)
			assert.Equal(t, int64(-2_000), p.Amount)
			assert.Equal(t, int64(10_000), p.BalanceBefore)
			assert.Equal(t, int64(8_000), p.BalanceAfter)
			assert.Equal(t, "prevhash-s", p.PrevHash)
			assert.Equal(t, domain.ValidationStatusClean, p.ValidationStatus)
			return &domain.LedgerEntry{Hash: "hash-s"}, nil
		})
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), sender.ID, "hash-s").Return(nil)

	// Credit leg: net amount is 2000 - 20 fee.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().Credit(ctx, gomock.Any(), receiver.ID, int64(1_980)).
		Return(int64(2_480), "prevhash-r", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, p ports.LedgerAppendParams) (*domain.LedgerEntry, error) {
			assert.Equal(t, receiver.ID, p.WalletID)
			assert.Equal(t, int64(1_980), p.Amount)
			assert.Equal(t, int64(500), p.BalanceBefore)
			assert.Equal(t, int64(2_480), p.BalanceAfter)
			return &domain.LedgerEntry{Hash: "hash-r"}, nil
		})
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), receiver.ID, "hash-r").Return(nil)

	d.projection.EXPECT().Notify(gomock.Any()).Times(2)
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.TransactionStatusCompleted).Return(nil)
	d.idemp.EXPECT().Record(ctx, "idem-key", sender.OwnerID, "TRANSFER").Return(nil)

	result, err := svc.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(8_000), result.NewBalance)
	require.NotNil(t, result.RecipientNewBalance)
	assert.Equal(t, int64(2_480), *result.RecipientNewBalance)
	assert.False(t, result.Quarantined)
	assert.Equal(t, domain.TransactionStatusCompleted, result.Transaction.Status)
	assert.Equal(t, int64(20), result.Transaction.FeeAmount)
}

func TestTransfer_PanicActive(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	d.panicSvc.EXPECT().Guard(ctx).Return(apperror.ErrPanicActive())

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: uuid.New(), Recipient: "x", Amount: 100})
	assert.Equal(t, "OPS_001", appErrCode(t, err))
}

func TestTransfer_InvalidAmount(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	d.panicSvc.EXPECT().Guard(ctx).Return(nil).Times(2)

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: uuid.New(), Recipient: "x", Amount: 0})
	assert.Equal(t, "VAL_002", appErrCode(t, err))

	_, err = svc.Transfer(ctx, ports.TransferRequest{SenderID: uuid.New(), Recipient: "x", Amount: 2_000_000_00})
	assert.Equal(t, "VAL_005", appErrCode(t, err))
}

func TestTransfer_DuplicateRequest(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()
	senderID := uuid.New()

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(senderID, "TRANSFER", int64(100), "x", nil).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(false, nil)

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: senderID, Recipient: "x", Amount: 100})
	assert.Equal(t, "PAY_003", appErrCode(t, err))
}

func TestTransfer_SelfTransfer(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()
	sender := testWallet(1_000)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(sender.OwnerID, "TRANSFER", int64(100), sender.OwnerID.String(), nil).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil).Times(2)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{
		SenderID:  sender.OwnerID,
		Recipient: sender.OwnerID.String(),
		Amount:    100,
	})
	assert.Equal(t, "VAL_003", appErrCode(t, err))
}

func TestTransfer_BlockedWallet(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(1_000)
	sender.IsBlocked = true
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 100})
	assert.Equal(t, "SEC_001", appErrCode(t, err))
}

func TestTransfer_CurrencyMismatch(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(1_000)
	receiver := testWallet(0)
	receiver.Currency = "EUR"

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 100})
	assert.Equal(t, "VAL_004", appErrCode(t, err))
}

func TestTransfer_InvalidPin(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	pinHash := "$argon2id$..."
	sender := testWallet(1_000)
	sender.PinHash = &pinHash
	receiver := testWallet(0)
	pin := "0000"

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.pins.EXPECT().Verify("0000", pinHash).Return(false, nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{
		SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 100, Pin: &pin,
	})
	assert.Equal(t, "SEC_003", appErrCode(t, err))
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(50)
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 100})
	assert.Equal(t, "PAY_001", appErrCode(t, err))
}

func TestTransfer_FraudBlocked(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(100_000)
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.fraud.EXPECT().Evaluate(ctx, sender.OwnerID, sender.ID, int64(50_000)).Return(&domain.FraudEvaluation{
		Flags:       []string{domain.FlagHighVolume},
		Severity:    domain.SeverityCritical,
		RiskScore:   50,
		ShouldBlock: true,
	}, nil)
	d.walletRepo.EXPECT().SetBlocked(ctx, sender.ID, gomock.Any()).Return(nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 50_000})
	assert.Equal(t, "SEC_002", appErrCode(t, err))
}

func TestTransfer_QuarantineHold(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(100_000)
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.fraud.EXPECT().Evaluate(ctx, sender.OwnerID, sender.ID, int64(60_000)).Return(&domain.FraudEvaluation{
		Flags:      []string{domain.FlagHighAmount},
		Severity:   domain.SeverityHigh,
		RiskScore:  40,
		ShouldHold: true,
	}, nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeTransfer, "USD", int64(60_000)).Return(int64(600), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	// Debit commits with a flagged ledger entry; the credit never runs.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().DebitCAS(ctx, gomock.Any(), sender.ID, int64(60_000), int64(100_000)).
		Return(int64(40_000), "ph", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, p ports.LedgerAppendParams) (*domain.LedgerEntry, error) {
			assert.Equal(t, domain.ValidationStatusFlagged, p.ValidationStatus)
			return &domain.LedgerEntry{Hash: "h"}, nil
		})
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), sender.ID, "h").Return(nil)
	d.projection.EXPECT().Notify(gomock.Any())

	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.TransactionStatusQuarantined).Return(nil)
	d.quarantine.EXPECT().Hold(ctx, gomock.Any(), 40, gomock.Any()).
		Return(&domain.QuarantinedTransaction{ID: uuid.New()}, nil)
	d.idemp.EXPECT().Record(ctx, "k", sender.OwnerID, "TRANSFER").Return(nil)

	result, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 60_000})
	require.NoError(t, err)
	assert.True(t, result.Quarantined)
	assert.Equal(t, int64(40_000), result.NewBalance)
	assert.Nil(t, result.RecipientNewBalance)
	assert.Equal(t, domain.TransactionStatusQuarantined, result.Transaction.Status)
}

func TestTransfer_CASConflictRetriesThenSucceeds(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(10_000)
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.fraud.EXPECT().Evaluate(ctx, sender.OwnerID, sender.ID, int64(2_000)).Return(cleanEval(), nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeTransfer, "USD", int64(2_000)).Return(int64(0), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	// First attempt loses the race.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().DebitCAS(ctx, gomock.Any(), sender.ID, int64(2_000), int64(10_000)).
		Return(int64(0), "", domain.ErrBalanceConflict)

	// Reload shows a concurrent debit landed; retry against the fresh balance.
	fresh := *sender
	fresh.Balance = 9_000
	d.walletRepo.EXPECT().GetByID(ctx, sender.ID).Return(&fresh, nil)

	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().DebitCAS(ctx, gomock.Any(), sender.ID, int64(2_000), int64(9_000)).
		Return(int64(7_000), "ph", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).Return(&domain.LedgerEntry{Hash: "h1"}, nil)
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), sender.ID, "h1").Return(nil)

	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().Credit(ctx, gomock.Any(), receiver.ID, int64(2_000)).Return(int64(2_000), "rh", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).Return(&domain.LedgerEntry{Hash: "h2"}, nil)
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), receiver.ID, "h2").Return(nil)

	d.projection.EXPECT().Notify(gomock.Any()).Times(2)
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.TransactionStatusCompleted).Return(nil)
	d.idemp.EXPECT().Record(ctx, "k", sender.OwnerID, "TRANSFER").Return(nil)

	result, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 2_000})
	require.NoError(t, err)
	assert.Equal(t, int64(7_000), result.NewBalance)
}

func TestTransfer_CASRetriesExhausted(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(10_000)
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.fraud.EXPECT().Evaluate(ctx, sender.OwnerID, sender.ID, int64(2_000)).Return(cleanEval(), nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeTransfer, "USD", int64(2_000)).Return(int64(0), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	// CASRetries is 2, so 3 attempts total, each losing the race.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil).Times(3)
	d.walletRepo.EXPECT().DebitCAS(ctx, gomock.Any(), sender.ID, int64(2_000), gomock.Any()).
		Return(int64(0), "", domain.ErrBalanceConflict).Times(3)
	d.walletRepo.EXPECT().GetByID(ctx, sender.ID).Return(sender, nil).Times(3)

	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.TransactionStatusFailed).Return(nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 2_000})
	assert.Equal(t, "PAY_004", appErrCode(t, err))
}

func TestTransfer_ReloadShowsInsufficientFunds(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(10_000)
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.fraud.EXPECT().Evaluate(ctx, sender.OwnerID, sender.ID, int64(2_000)).Return(cleanEval(), nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeTransfer, "USD", int64(2_000)).Return(int64(0), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().DebitCAS(ctx, gomock.Any(), sender.ID, int64(2_000), int64(10_000)).
		Return(int64(0), "", domain.ErrBalanceConflict)

	// A concurrent withdrawal drained the wallet below the amount.
	drained := *sender
	drained.Balance = 500
	d.walletRepo.EXPECT().GetByID(ctx, sender.ID).Return(&drained, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.TransactionStatusFailed).Return(nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 2_000})
	assert.Equal(t, "PAY_001", appErrCode(t, err))
}

func TestTransfer_CreditFailureCompensates(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(10_000)
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.fraud.EXPECT().Evaluate(ctx, sender.OwnerID, sender.ID, int64(2_000)).Return(cleanEval(), nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeTransfer, "USD", int64(2_000)).Return(int64(0), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	// Debit commits.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().DebitCAS(ctx, gomock.Any(), sender.ID, int64(2_000), int64(10_000)).
		Return(int64(8_000), "ph", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).Return(&domain.LedgerEntry{Hash: "h1"}, nil)
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), sender.ID, "h1").Return(nil)
	d.projection.EXPECT().Notify(gomock.Any())

	// Credit leg fails.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().Credit(ctx, gomock.Any(), receiver.ID, int64(2_000)).
		Return(int64(0), "", errors.New("receiver row gone"))

	// Compensation refunds the sender, guarded on the debited balance.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().CreditCAS(ctx, gomock.Any(), sender.ID, int64(2_000), int64(8_000)).
		Return(int64(10_000), "h1", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, p ports.LedgerAppendParams) (*domain.LedgerEntry, error) {
			assert.Equal(t, int64(2_000), p.Amount)
			assert.Equal(t, int64(8_000), p.BalanceBefore)
			assert.Equal(t, int64(10_000), p.BalanceAfter)
			return &domain.LedgerEntry{Hash: "h2"}, nil
		})
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), sender.ID, "h2").Return(nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.TransactionStatusFailed).Return(nil)
	d.projection.EXPECT().Notify(gomock.Any())

	// The refund committed, so the retry is not locked out.
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 2_000})
	assert.Equal(t, "SYS_002", appErrCode(t, err))
}

func TestTransfer_CompensationFailureRaisesCriticalAlert(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(10_000)
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.fraud.EXPECT().Evaluate(ctx, sender.OwnerID, sender.ID, int64(2_000)).Return(cleanEval(), nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeTransfer, "USD", int64(2_000)).Return(int64(0), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().DebitCAS(ctx, gomock.Any(), sender.ID, int64(2_000), int64(10_000)).
		Return(int64(8_000), "ph", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).Return(&domain.LedgerEntry{Hash: "h1"}, nil)
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), sender.ID, "h1").Return(nil)
	d.projection.EXPECT().Notify(gomock.Any())

	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().Credit(ctx, gomock.Any(), receiver.ID, int64(2_000)).
		Return(int64(0), "", errors.New("receiver row gone"))

	// The refund guard fails too: someone touched the sender balance in
	// between. Operators must hear about it.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().CreditCAS(ctx, gomock.Any(), sender.ID, int64(2_000), int64(8_000)).
		Return(int64(0), "", domain.ErrBalanceConflict)
	d.alerts.EXPECT().Publish(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, alert domain.Alert) error {
			assert.Equal(t, domain.AlertCriticalInconsistency, alert.Kind)
			assert.Equal(t, domain.SeverityCritical, alert.Severity)
			return nil
		})

	// No release: the debit stands, so a retry must not pass the gate.
	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 2_000})
	assert.Equal(t, "SYS_003", appErrCode(t, err))
}

func TestDeposit_Success(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	wallet := testWallet(500)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(wallet.OwnerID, "DEPOSIT", int64(1_000), "", nil).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, wallet.OwnerID).Return(wallet, nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeDeposit, "USD", int64(1_000)).Return(int64(0), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().Credit(ctx, gomock.Any(), wallet.ID, int64(1_000)).Return(int64(1_500), "ph", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).Return(&domain.LedgerEntry{Hash: "h"}, nil)
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), wallet.ID, "h").Return(nil)
	d.projection.EXPECT().Notify(gomock.Any())

	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.TransactionStatusCompleted).Return(nil)
	d.idemp.EXPECT().Record(ctx, "k", wallet.OwnerID, "DEPOSIT").Return(nil)

	result, err := svc.Deposit(ctx, ports.DepositRequest{UserID: wallet.OwnerID, Amount: 1_000})
	require.NoError(t, err)
	assert.Equal(t, int64(1_500), result.NewBalance)
	assert.Equal(t, domain.TransactionStatusCompleted, result.Transaction.Status)
}

func TestDeposit_CreditFailureMarksFailed(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	wallet := testWallet(500)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, wallet.OwnerID).Return(wallet, nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeDeposit, "USD", int64(1_000)).Return(int64(0), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().Credit(ctx, gomock.Any(), wallet.ID, int64(1_000)).
		Return(int64(0), "", errors.New("connection reset"))
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.TransactionStatusFailed).Return(nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Deposit(ctx, ports.DepositRequest{UserID: wallet.OwnerID, Amount: 1_000})
	assert.Equal(t, "SYS_002", appErrCode(t, err))
}

func TestWithdraw_Success(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	wallet := testWallet(5_000)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(wallet.OwnerID, "WITHDRAW", int64(1_000), "", nil).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, wallet.OwnerID).Return(wallet, nil)
	d.fraud.EXPECT().Evaluate(ctx, wallet.OwnerID, wallet.ID, int64(1_000)).Return(cleanEval(), nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeWithdraw, "USD", int64(1_000)).Return(int64(50), nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	// The full amount leaves the wallet; the fee is carved out of the payout.
	d.transactor.EXPECT().Begin(ctx).Return(mockTx{}, nil)
	d.walletRepo.EXPECT().DebitCAS(ctx, gomock.Any(), wallet.ID, int64(1_000), int64(5_000)).
		Return(int64(4_000), "ph", nil)
	d.ledger.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).Return(&domain.LedgerEntry{Hash: "h"}, nil)
	d.walletRepo.EXPECT().SetChainHead(ctx, gomock.Any(), wallet.ID, "h").Return(nil)
	d.projection.EXPECT().Notify(gomock.Any())

	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.TransactionStatusCompleted).Return(nil)
	d.idemp.EXPECT().Record(ctx, "k", wallet.OwnerID, "WITHDRAW").Return(nil)

	result, err := svc.Withdraw(ctx, ports.WithdrawRequest{UserID: wallet.OwnerID, Amount: 1_000})
	require.NoError(t, err)
	assert.Equal(t, int64(4_000), result.NewBalance)
	assert.Equal(t, int64(50), result.Transaction.FeeAmount)
}

func TestWithdraw_WalletNotFound(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()
	userID := uuid.New()

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, userID).Return(nil, nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Withdraw(ctx, ports.WithdrawRequest{UserID: userID, Amount: 1_000})
	assert.Equal(t, "PAY_002", appErrCode(t, err))
}

func TestTransfer_FeeConsumesWholeAmount(t *testing.T) {
	svc, d := setupTransferService(t)
	ctx := context.Background()

	sender := testWallet(10_000)
	receiver := testWallet(0)

	d.panicSvc.EXPECT().Guard(ctx).Return(nil)
	d.idemp.EXPECT().KeyFor(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k")
	d.idemp.EXPECT().Claim(ctx, "k").Return(true, nil)
	d.walletRepo.EXPECT().GetByOwnerID(ctx, sender.OwnerID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByPublicCode(ctx, "WLT-R").Return(receiver, nil)
	d.fraud.EXPECT().Evaluate(ctx, sender.OwnerID, sender.ID, int64(10)).Return(cleanEval(), nil)
	d.fees.EXPECT().ComputeFee(ctx, domain.TransactionTypeTransfer, "USD", int64(10)).Return(int64(10), nil)
	d.idemp.EXPECT().Release(ctx, "k")

	_, err := svc.Transfer(ctx, ports.TransferRequest{SenderID: sender.OwnerID, Recipient: "WLT-R", Amount: 10})
	assert.Equal(t, "VAL_001", appErrCode(t, err))
}
