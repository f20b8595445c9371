package credentials

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the part of an issued VC JWT the gateway reads. Signatures are
// never verified here.
type Claims struct {
	ID        string
	Types     []string
	IssuerDID string
	Subject   Subject
	Status    *CredentialStatus
	IssuedAt  time.Time
	ExpiresAt *time.Time
	Raw       string
}

// Subject holds the credentialSubject fields used by the accreditation
// cascade.
type Subject struct {
	ID                  string          `json:"id"`
	ReservedAttributeID string          `json:"reservedAttributeId"`
	AccreditedFor       []AccreditedFor `json:"accreditedFor"`
}

// AccreditedFor is one (types, schema) pair an accreditation covers.
type AccreditedFor struct {
	SchemaID string   `json:"schemaId"`
	Schema   string   `json:"schema"`
	Types    []string `json:"types"`
}

// SchemaAddress returns whichever schema field is set.
func (a AccreditedFor) SchemaAddress() string {
	if a.SchemaID != "" {
		return a.SchemaID
	}
	return a.Schema
}

// CredentialStatus is the credentialStatus claim.
type CredentialStatus struct {
	ID                   string      `json:"id"`
	Type                 string      `json:"type"`
	StatusPurpose        string      `json:"statusPurpose"`
	StatusListIndex      json.Number `json:"statusListIndex"`
	StatusListCredential string      `json:"statusListCredential"`
}

type vcClaims struct {
	jwt.RegisteredClaims
	VC struct {
		ID                string          `json:"id"`
		Type              []string        `json:"type"`
		Issuer            json.RawMessage `json:"issuer"`
		IssuanceDate      string          `json:"issuanceDate"`
		ExpirationDate    string          `json:"expirationDate"`
		CredentialSubject Subject         `json:"credentialSubject"`
		CredentialStatus  json.RawMessage `json:"credentialStatus"`
	} `json:"vc"`
}

var ErrMalformedCredential = errors.New("malformed credential")

// ParseJWT reads the claims of a JWT-encoded verifiable credential.
func ParseJWT(token string) (*Claims, error) {
	var raw vcClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}
	c := &Claims{
		ID:      raw.VC.ID,
		Types:   raw.VC.Type,
		Subject: raw.VC.CredentialSubject,
		Raw:     token,
	}
	if c.ID == "" {
		c.ID = raw.ID
	}
	if c.ID == "" {
		return nil, fmt.Errorf("%w: missing credential id", ErrMalformedCredential)
	}
	if c.Subject.ID == "" {
		c.Subject.ID = raw.Subject
	}
	c.IssuerDID = issuerDID(raw.VC.Issuer)
	if c.IssuerDID == "" {
		c.IssuerDID = raw.Issuer
	}

	switch {
	case raw.IssuedAt != nil:
		c.IssuedAt = raw.IssuedAt.UTC()
	case raw.NotBefore != nil:
		c.IssuedAt = raw.NotBefore.UTC()
	default:
		if t, err := time.Parse(time.RFC3339, raw.VC.IssuanceDate); err == nil {
			c.IssuedAt = t.UTC()
		}
	}
	if raw.ExpiresAt != nil {
		exp := raw.ExpiresAt.UTC()
		c.ExpiresAt = &exp
	} else if t, err := time.Parse(time.RFC3339, raw.VC.ExpirationDate); err == nil {
		exp := t.UTC()
		c.ExpiresAt = &exp
	}

	status, err := parseStatus(raw.VC.CredentialStatus)
	if err != nil {
		return nil, err
	}
	c.Status = status
	return c, nil
}

// issuer is either a DID string or an object with an id.
func issuerDID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// credentialStatus may be a single object or a list; the first entry wins.
func parseStatus(raw json.RawMessage) (*CredentialStatus, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []CredentialStatus
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: credentialStatus: %w", ErrMalformedCredential, err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		return &list[0], nil
	}
	var status CredentialStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("%w: credentialStatus: %w", ErrMalformedCredential, err)
	}
	return &status, nil
}

// Revocation derives the revocation mechanism from the credentialStatus
// claim.
func (c *Claims) Revocation() (RevocationType, *Locator) {
	if c.Status == nil {
		return RevocationNone, nil
	}
	switch c.Status.Type {
	case "StatusList2021Entry":
		listID, ok := lastPathInt(c.Status.StatusListCredential)
		if !ok {
			return RevocationNone, nil
		}
		index, err := strconv.Atoi(c.Status.StatusListIndex.String())
		if err != nil {
			return RevocationNone, nil
		}
		return RevocationStatusList, &Locator{ListID: listID, Index: &index}
	case string(RevocationLedgerEntry):
		if c.Status.ID == "" {
			return RevocationNone, nil
		}
		return RevocationLedgerEntry, &Locator{AccreditationID: c.Status.ID}
	}
	return RevocationNone, nil
}

// Hash is the hex SHA-256 of the encoded credential.
func (c *Claims) Hash() string {
	sum := sha256.Sum256([]byte(c.Raw))
	return hex.EncodeToString(sum[:])
}

// HolderDID is the credential subject.
func (c *Claims) HolderDID() string {
	return c.Subject.ID
}

// Credential builds the record stored for these claims. issuedAt is used
// when the token carries no issuance time.
func (c *Claims) Credential(issuedAt time.Time) *IssuedCredential {
	revType, locator := c.Revocation()
	cred := &IssuedCredential{
		ID:             c.ID,
		Types:          c.Types,
		Hash:           c.Hash(),
		IssuedAt:       c.IssuedAt,
		HolderDID:      c.HolderDID(),
		RevocationType: revType,
		Locator:        locator,
		ExpiresAt:      c.ExpiresAt,
		AttributeID:    c.Subject.ReservedAttributeID,
	}
	if cred.IssuedAt.IsZero() {
		cred.IssuedAt = issuedAt
	}
	return cred
}

func lastPathInt(u string) (int64, bool) {
	u = strings.TrimRight(u, "/")
	i := strings.LastIndex(u, "/")
	id, err := strconv.ParseInt(u[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
