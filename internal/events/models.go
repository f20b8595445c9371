package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names an outbox event.
type Type string

const (
	CredentialMaterialized Type = "credential.materialized"
	CredentialRevoked      Type = "credential.revoked"
	CredentialDeleted      Type = "credential.deleted"
	AccreditationGranted   Type = "accreditation.granted"
	ChainFailed            Type = "onboarding.chain_failed"
)

// Event is one outbox row. PublishedAt is nil until the relay has delivered it.
type Event struct {
	ID          uuid.UUID
	Type        Type
	AggregateID string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// NewEvent marshals payload into a new unpublished event.
func NewEvent(eventType Type, aggregateID string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     raw,
		CreatedAt:   now,
	}, nil
}

// CredentialPayload is carried by credential events.
type CredentialPayload struct {
	CredentialID   string   `json:"credential_id"`
	Types          []string `json:"types"`
	HolderDID      string   `json:"holder_did,omitempty"`
	RevocationType string   `json:"revocation_type,omitempty"`
	RequestID      string   `json:"request_id,omitempty"`
}

// GrantPayload is carried by accreditation.granted.
type GrantPayload struct {
	AttributeID string   `json:"attribute_id"`
	Kind        string   `json:"kind"`
	GrantIDs    []string `json:"grant_ids"`
	RequestID   string   `json:"request_id,omitempty"`
}

// ChainFailurePayload is carried by onboarding.chain_failed.
type ChainFailurePayload struct {
	Chain    string `json:"chain"`
	Step     string `json:"step"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
	DID      string `json:"did"`
}
