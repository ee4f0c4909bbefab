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

// PanicServiceImpl implements ports.PanicService. The state is read from the
// store on every Guard call so all instances converge on an operator decision
// without coordination.
type PanicServiceImpl struct {
	repo   ports.PanicStateRepository
	alerts ports.AlertBus
	log    zerolog.Logger
}

// NewPanicService creates a new PanicServiceImpl.
func NewPanicService(repo ports.PanicStateRepository, alerts ports.AlertBus, log zerolog.Logger) *PanicServiceImpl {
	return &PanicServiceImpl{repo: repo, alerts: alerts, log: log}
}

// Guard returns ErrPanicActive while the emergency freeze is on. Read paths
// never call it.
func (s *PanicServiceImpl) Guard(ctx context.Context) error {
	state, err := s.repo.Get(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read panic state: %w", err))
	}
	if state.Active {
		return apperror.ErrPanicActive()
	}
	return nil
}

// Activate turns the freeze on. Activating an already active freeze is a
// no-op that refreshes nothing.
func (s *PanicServiceImpl) Activate(ctx context.Context, operatorID uuid.UUID, reason string) error {
	state, err := s.repo.Get(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read panic state: %w", err))
	}
	if state.Active {
		return nil
	}

	now := time.Now().UTC()
	newState := &domain.PanicState{
		Active:      true,
		ActivatedBy: &operatorID,
		Reason:      &reason,
		ActivatedAt: &now,
	}
	if err := s.repo.Set(ctx, newState); err != nil {
		return apperror.InternalError(fmt.Errorf("persist panic state: %w", err))
	}

	s.log.Warn().
		Str("operator_id", operatorID.String()).
		Str("reason", reason).
		Msg("emergency freeze activated")

	if err := s.alerts.Publish(ctx, domain.Alert{
		Kind:     domain.AlertPanicActivated,
		Severity: domain.SeverityCritical,
		Message:  reason,
		UserID:   &operatorID,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to publish panic activation alert")
	}
	return nil
}

// Deactivate turns the freeze off.
func (s *PanicServiceImpl) Deactivate(ctx context.Context, operatorID uuid.UUID) error {
	state, err := s.repo.Get(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read panic state: %w", err))
	}
	if !state.Active {
		return nil
	}

	if err := s.repo.Set(ctx, &domain.PanicState{Active: false}); err != nil {
		return apperror.InternalError(fmt.Errorf("persist panic state: %w", err))
	}

	s.log.Warn().
		Str("operator_id", operatorID.String()).
		Msg("emergency freeze deactivated")

	if err := s.alerts.Publish(ctx, domain.Alert{
		Kind:     domain.AlertPanicDeactivated,
		Severity: domain.SeverityHigh,
		Message:  "emergency freeze lifted",
		UserID:   &operatorID,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to publish panic deactivation alert")
	}
	return nil
}

// State returns the current freeze state for the oversight surface.
func (s *PanicServiceImpl) State(ctx context.Context) (*domain.PanicState, error) {
	state, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read panic state: %w", err))
	}
	return state, nil
}
