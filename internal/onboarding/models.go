package onboarding

import (
	"time"

	"github.com/google/uuid"
)

// Failure is a chain that exhausted its retry budget. It keeps what the
// chain was built from so it can be scheduled again.
type Failure struct {
	ID          uuid.UUID  `json:"id"`
	Chain       string     `json:"chain"`
	DID         string     `json:"did"`
	Step        string     `json:"step"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error"`
	VC          string     `json:"-"`
	AttributeID string     `json:"attribute_id,omitempty"`
	FailedAt    time.Time  `json:"failed_at"`
	RetriedAt   *time.Time `json:"retried_at,omitempty"`
}
