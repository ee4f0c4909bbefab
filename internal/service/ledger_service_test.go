package service

import (
	"context"
	"errors"
	"testing"

	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
	"wallet-ledger-engine/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupLedgerService(t *testing.T) (*LedgerServiceImpl, *mocks.MockLedgerRepository) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockLedgerRepository(ctrl)
	return NewLedgerService(repo, zerolog.Nop()), repo
}

func TestLedgerAppend_HashCoversChain(t *testing.T) {
	svc, repo := setupLedgerService(t)
	ctx := context.Background()

	params := ports.LedgerAppendParams{
		TransactionID:    uuid.New(),
		WalletID:         uuid.New(),
		ActorType:        domain.ActorSender,
		Amount:           -500,
		BalanceBefore:    1_000,
		BalanceAfter:     500,
		PrevHash:         domain.GenesisHash,
		ValidationStatus: domain.ValidationStatusClean,
	}

	repo.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) error {
			assert.Equal(t, e.ComputeHash(), e.Hash)
			assert.Equal(t, domain.GenesisHash, e.PrevHash)
			return nil
		})

	entry, err := svc.Append(ctx, mockTx{}, params)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.Hash)
	assert.Equal(t, params.WalletID, entry.WalletID)
	assert.Equal(t, int64(-500), entry.Amount)
}

func TestLedgerAppend_RepoError(t *testing.T) {
	svc, repo := setupLedgerService(t)
	ctx := context.Background()

	repo.EXPECT().Append(ctx, gomock.Any(), gomock.Any()).Return(errors.New("duplicate entry hash"))

	_, err := svc.Append(ctx, mockTx{}, ports.LedgerAppendParams{PrevHash: domain.GenesisHash})
	assert.Error(t, err)
}

func TestLedgerFeed_ClampsPaging(t *testing.T) {
	svc, repo := setupLedgerService(t)
	ctx := context.Background()

	repo.EXPECT().List(ctx, 1, 20).Return([]domain.LedgerEntry{}, int64(0), nil)

	_, _, err := svc.Feed(ctx, nil, 0, 1_000)
	require.NoError(t, err)
}

func TestLedgerFeed_ScopedToWallet(t *testing.T) {
	svc, repo := setupLedgerService(t)
	ctx := context.Background()
	walletID := uuid.New()

	repo.EXPECT().ListByWallet(ctx, walletID, 2, 10).
		Return([]domain.LedgerEntry{{ID: uuid.New()}}, int64(11), nil)

	entries, total, err := svc.Feed(ctx, &walletID, 2, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(11), total)
}

func TestLedgerVerifyWallet_IntactChain(t *testing.T) {
	svc, repo := setupLedgerService(t)
	ctx := context.Background()
	walletID := uuid.New()

	first := domain.LedgerEntry{
		ID:            uuid.New(),
		WalletID:      walletID,
		Amount:        1_000,
		BalanceBefore: 0,
		BalanceAfter:  1_000,
		PrevHash:      domain.GenesisHash,
	}
	first.Hash = first.ComputeHash()
	second := domain.LedgerEntry{
		ID:            uuid.New(),
		WalletID:      walletID,
		Amount:        -300,
		BalanceBefore: 1_000,
		BalanceAfter:  700,
		PrevHash:      first.Hash,
	}
	second.Hash = second.ComputeHash()

	repo.EXPECT().ListChain(ctx, walletID).Return([]domain.LedgerEntry{first, second}, nil)

	broken, err := svc.VerifyWallet(ctx, walletID)
	require.NoError(t, err)
	assert.Nil(t, broken)
}

func TestLedgerVerifyWallet_DetectsTampering(t *testing.T) {
	svc, repo := setupLedgerService(t)
	ctx := context.Background()
	walletID := uuid.New()

	first := domain.LedgerEntry{
		ID:            uuid.New(),
		WalletID:      walletID,
		Amount:        1_000,
		BalanceBefore: 0,
		BalanceAfter:  1_000,
		PrevHash:      domain.GenesisHash,
	}
	first.Hash = first.ComputeHash()
	second := domain.LedgerEntry{
		ID:            uuid.New(),
		WalletID:      walletID,
		Amount:        -300,
		BalanceBefore: 1_000,
		BalanceAfter:  700,
		PrevHash:      first.Hash,
	}
	second.Hash = second.ComputeHash()
	// Rewrite history after the fact.
	second.Amount = -200

	repo.EXPECT().ListChain(ctx, walletID).Return([]domain.LedgerEntry{first, second}, nil)

	broken, err := svc.VerifyWallet(ctx, walletID)
	require.NoError(t, err)
	require.NotNil(t, broken)
	assert.Equal(t, second.ID, broken.ID)
}
