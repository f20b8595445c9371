package nonce

import (
	"encoding/json"
	"time"
)

// Record correlates an authorization request with its later callback.
// A record validates exactly once.
type Record struct {
	Nonce     string          `json:"nonce"`
	State     json.RawMessage `json:"state,omitempty"`
	DID       string          `json:"did"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	SpentAt   *time.Time      `json:"spent_at,omitempty"`
}

// IsExpired reports whether the record is past its TTL at now.
func (r *Record) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// IsSpent reports whether the record was already consumed.
func (r *Record) IsSpent() bool {
	return r.SpentAt != nil
}

// AuthorizationState is the state stored for an accepted authorization
// request.
type AuthorizationState struct {
	ResponseType             string   `json:"response_type"`
	PresentationDefinitionID string   `json:"definition_id,omitempty"`
	ClientID                 string   `json:"client_id"`
	RedirectURI              string   `json:"redirect_uri"`
	ClientState              string   `json:"client_state,omitempty"`
	CredentialTypes          []string `json:"credential_types,omitempty"`
}

// PreAuthorizedState is the state stored behind a pre-authorized code minted
// for a direct accreditation offer.
type PreAuthorizedState struct {
	CredentialType string `json:"credential_type"`
	HolderDID      string `json:"holder_did"`
	UserPin        string `json:"user_pin,omitempty"`
}
