package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades a fraud finding.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Fraud flag names. Flags are graduated and non-exclusive.
const (
	FlagHighAmount    = "high_amount"
	FlagHighFrequency = "high_frequency"
	FlagHighVolume    = "high_volume"
)

// SuspiciousActivity records a fraud finding for operator review. Low and
// medium findings never block the triggering operation.
type SuspiciousActivity struct {
	ID           uuid.UUID `json:"id"`
	WalletID     uuid.UUID `json:"wallet_id"`
	UserID       uuid.UUID `json:"user_id"`
	Flags        []string  `json:"flags"`
	Severity     Severity  `json:"severity"`
	Description  string    `json:"description"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}

// FraudEvaluation is the outcome of screening one operation against the
// actor's rolling activity window.
type FraudEvaluation struct {
	Flags       []string
	Severity    Severity
	RiskScore   int
	ShouldBlock bool // only critical severity forces a hard block
	ShouldHold  bool // high severity defers to human review
	Total24h    int64
	Count24h    int64
}

// Clean reports that no flag was raised.
func (e *FraudEvaluation) Clean() bool {
	return len(e.Flags) == 0
}

// severityRank orders severities for escalation.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Escalate raises the evaluation's severity if s outranks the current one.
func (e *FraudEvaluation) Escalate(s Severity) {
	if severityRank[s] > severityRank[e.Severity] {
		e.Severity = s
	}
}
