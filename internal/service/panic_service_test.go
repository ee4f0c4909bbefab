package service

import (
	"context"
	"testing"
	"time"

	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupPanicService(t *testing.T) (*PanicServiceImpl, *mocks.MockPanicStateRepository, *mocks.MockAlertBus) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockPanicStateRepository(ctrl)
	alerts := mocks.NewMockAlertBus(ctrl)
	return NewPanicService(repo, alerts, zerolog.Nop()), repo, alerts
}

func TestPanicGuard(t *testing.T) {
	svc, repo, _ := setupPanicService(t)
	ctx := context.Background()

	repo.EXPECT().Get(ctx).Return(&domain.PanicState{Active: false}, nil)
	require.NoError(t, svc.Guard(ctx))

	repo.EXPECT().Get(ctx).Return(&domain.PanicState{Active: true}, nil)
	err := svc.Guard(ctx)
	assert.Equal(t, "OPS_001", appErrCode(t, err))
}

func TestPanicActivate(t *testing.T) {
	svc, repo, alerts := setupPanicService(t)
	ctx := context.Background()
	operatorID := uuid.New()

	repo.EXPECT().Get(ctx).Return(&domain.PanicState{Active: false}, nil)
	repo.EXPECT().Set(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, state *domain.PanicState) error {
			assert.True(t, state.Active)
			require.NotNil(t, state.ActivatedBy)
			assert.Equal(t, operatorID, *state.ActivatedBy)
			require.NotNil(t, state.Reason)
			assert.Equal(t, "suspected intrusion", *state.Reason)
			return nil
		})
	alerts.EXPECT().Publish(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, alert domain.Alert) error {
			assert.Equal(t, domain.AlertPanicActivated, alert.Kind)
			assert.Equal(t, domain.SeverityCritical, alert.Severity)
			return nil
		})

	require.NoError(t, svc.Activate(ctx, operatorID, "suspected intrusion"))
}

func TestPanicActivate_AlreadyActiveIsNoop(t *testing.T) {
	svc, repo, _ := setupPanicService(t)
	ctx := context.Background()

	active := &domain.PanicState{Active: true}
	repo.EXPECT().Get(ctx).Return(active, nil)

	require.NoError(t, svc.Activate(ctx, uuid.New(), "again"))
}

func TestPanicDeactivate(t *testing.T) {
	svc, repo, alerts := setupPanicService(t)
	ctx := context.Background()
	operatorID := uuid.New()
	now := time.Now().UTC()

	repo.EXPECT().Get(ctx).Return(&domain.PanicState{Active: true, ActivatedAt: &now}, nil)
	repo.EXPECT().Set(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, state *domain.PanicState) error {
			assert.False(t, state.Active)
			return nil
		})
	alerts.EXPECT().Publish(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, alert domain.Alert) error {
			assert.Equal(t, domain.AlertPanicDeactivated, alert.Kind)
			return nil
		})

	require.NoError(t, svc.Deactivate(ctx, operatorID))
}

func TestPanicDeactivate_AlreadyInactiveIsNoop(t *testing.T) {
	svc, repo, _ := setupPanicService(t)
	ctx := context.Background()

	repo.EXPECT().Get(ctx).Return(&domain.PanicState{Active: false}, nil)

	require.NoError(t, svc.Deactivate(ctx, uuid.New()))
}
