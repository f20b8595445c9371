package credentials

import (
	"encoding/json"
	"regexp"
	"slices"
	"time"
)

// RevocationType names the mechanism an issued credential is revoked by.
type RevocationType string

const (
	RevocationNone        RevocationType = ""
	RevocationStatusList  RevocationType = "StatusList2021"
	RevocationLedgerEntry RevocationType = "EbsiAccreditationEntry"
)

// Status is the externally visible revocation state.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Locator points at the revocation entry of a credential. Status list
// credentials set ListID and Index; ledger accreditation entries set
// AccreditationID.
type Locator struct {
	ListID          int64  `json:"list_id,omitempty"`
	Index           *int   `json:"index,omitempty"`
	AccreditationID string `json:"accreditation_id,omitempty"`
}

var revisionPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// RevisionID extracts the ledger revision id from an accreditation entry id.
func (l *Locator) RevisionID() (string, bool) {
	if l == nil {
		return "", false
	}
	rev := revisionPattern.FindString(l.AccreditationID)
	return rev, rev != ""
}

// IssuedCredential is the audit record of a credential this gateway issued.
type IssuedCredential struct {
	ID             string         `json:"id"`
	Types          []string       `json:"types"`
	Hash           string         `json:"hash"`
	IssuedAt       time.Time      `json:"issued_at"`
	HolderDID      string         `json:"holder_did"`
	Revoked        bool           `json:"revoked"`
	RevocationType RevocationType `json:"revocation_type,omitempty"`
	Locator        *Locator       `json:"revocation_locator,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	// AttributeID is the reserved ledger attribute of an accreditation
	// credential. Grants derived from it share the id.
	AttributeID string `json:"attribute_id,omitempty"`
}

// Revocable reports whether the credential carries a revocation mechanism.
func (c *IssuedCredential) Revocable() bool {
	return c.RevocationType != RevocationNone && c.Locator != nil
}

// HasType reports whether t is one of the credential's types.
func (c *IssuedCredential) HasType(t string) bool {
	return slices.Contains(c.Types, t)
}

// Status returns the revocation state.
func (c *IssuedCredential) Status() Status {
	if c.Revoked {
		return StatusRevoked
	}
	return StatusActive
}

// MarshalLocator encodes the locator for storage. A nil locator is NULL.
func MarshalLocator(l *Locator) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// UnmarshalLocator is the inverse of MarshalLocator.
func UnmarshalLocator(raw []byte) (*Locator, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var l Locator
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
