package domain

import (
	"time"

	"github.com/google/uuid"
)

// PanicState is the process-wide emergency freeze. Lifecycle is strictly
// operator-driven in both directions; there is no automatic timeout.
type PanicState struct {
	Active      bool       `json:"active"`
	ActivatedBy *uuid.UUID `json:"activated_by,omitempty"`
	Reason      *string    `json:"reason,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}
