package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wallet-ledger-engine/config"
	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
	"wallet-ledger-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FraudServiceImpl implements ports.FraudService. Screening is graduated:
// only CRITICAL findings block, HIGH findings defer to human review, and the
// rest are recorded without touching the operation.
type FraudServiceImpl struct {
	txRepo  ports.TransactionRepository
	susRepo ports.SuspiciousActivityRepository
	alerts  ports.AlertBus
	cfg     config.FraudConfig
	log     zerolog.Logger
}

// NewFraudService creates a new FraudServiceImpl.
func NewFraudService(
	txRepo ports.TransactionRepository,
	susRepo ports.SuspiciousActivityRepository,
	alerts ports.AlertBus,
	cfg config.FraudConfig,
	log zerolog.Logger,
) *FraudServiceImpl {
	return &FraudServiceImpl{
		txRepo:  txRepo,
		susRepo: susRepo,
		alerts:  alerts,
		cfg:     cfg,
		log:     log,
	}
}

// Evaluate screens one outbound operation against the user's rolling activity
// window. The pending amount itself counts toward the volume check so the
// operation that crosses the threshold is the one that gets caught.
func (s *FraudServiceImpl) Evaluate(ctx context.Context, userID, walletID uuid.UUID, amount int64) (*domain.FraudEvaluation, error) {
	since := time.Now().UTC().Add(-s.cfg.Window)
	total, count, err := s.txRepo.ActivitySince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("fraud activity window: %w", err)
	}

	eval := &domain.FraudEvaluation{
		Severity: domain.SeverityLow,
		Total24h: total,
		Count24h: count,
	}

	if amount > s.cfg.HighAmountThreshold {
		eval.Flags = append(eval.Flags, domain.FlagHighAmount)
		eval.Escalate(domain.SeverityHigh)
		eval.RiskScore += 40
	}
	if count+1 > s.cfg.FrequencyThreshold {
		eval.Flags = append(eval.Flags, domain.FlagHighFrequency)
		eval.Escalate(domain.SeverityMedium)
		eval.RiskScore += 25
	}
	if total+amount > s.cfg.VolumeThreshold {
		eval.Flags = append(eval.Flags, domain.FlagHighVolume)
		eval.Escalate(domain.SeverityCritical)
		eval.RiskScore += 50
	}

	if eval.Clean() {
		return eval, nil
	}

	eval.ShouldBlock = eval.Severity == domain.SeverityCritical
	eval.ShouldHold = eval.Severity == domain.SeverityHigh

	activity := &domain.SuspiciousActivity{
		ID:          uuid.New(),
		WalletID:    walletID,
		UserID:      userID,
		Flags:       eval.Flags,
		Severity:    eval.Severity,
		Description: fmt.Sprintf("flags=%s amount=%d window_total=%d window_count=%d", strings.Join(eval.Flags, ","), amount, total, count),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.susRepo.Create(ctx, activity); err != nil {
		// Recording must not kill a legitimate operation; the alert below
		// still tells operators something fired.
		s.log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to record suspicious activity")
	}

	if err := s.alerts.Publish(ctx, domain.Alert{
		Kind:     domain.AlertFraudFlag,
		Severity: eval.Severity,
		Message:  activity.Description,
		WalletID: &walletID,
		UserID:   &userID,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to publish fraud alert")
	}

	s.log.Warn().
		Str("user_id", userID.String()).
		Strs("flags", eval.Flags).
		Str("severity", string(eval.Severity)).
		Msg("fraud screening raised flags")

	return eval, nil
}

// ListSuspicious returns unacknowledged findings for the oversight surface.
func (s *FraudServiceImpl) ListSuspicious(ctx context.Context) ([]domain.SuspiciousActivity, error) {
	findings, err := s.susRepo.ListUnacknowledged(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list suspicious activities: %w", err))
	}
	return findings, nil
}

// Acknowledge marks a finding as reviewed.
func (s *FraudServiceImpl) Acknowledge(ctx context.Context, id uuid.UUID) error {
	ok, err := s.susRepo.Acknowledge(ctx, id)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("acknowledge suspicious activity: %w", err))
	}
	if !ok {
		return apperror.ErrNotFound("suspicious activity")
	}
	return nil
}
