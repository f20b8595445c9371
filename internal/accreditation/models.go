package accreditation

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"vcissuer/internal/catalog"
	"vcissuer/internal/ledger"
)

// Grant records that the operator may issue credentials of Kind, restricted
// to AccreditedFor and SchemaAddress when those are set. AttributeID is the
// ledger attribute of the accreditation that produced the grant.
type Grant struct {
	ID            uuid.UUID                 `json:"id"`
	Kind          catalog.AccreditationKind `json:"kind"`
	AccreditedFor []string                  `json:"accredited_for"`
	SchemaAddress string                    `json:"schema_address,omitempty"`
	AttributeID   string                    `json:"attribute_id"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// Unrestricted reports whether the grant covers every credential type.
func (g Grant) Unrestricted() bool {
	return len(g.AccreditedFor) == 0 && g.SchemaAddress == ""
}

// WhitelistEntry allows DID to receive a credential of Kind through direct
// accreditation issuance, backed by GrantIDs.
type WhitelistEntry struct {
	ID       uuid.UUID                 `json:"id"`
	Kind     catalog.AccreditationKind `json:"kind"`
	DID      string                    `json:"did"`
	GrantIDs []uuid.UUID               `json:"grant_ids"`
}

// TermsOfUse records the (types, schema) scope an accreditation credential
// was issued under.
type TermsOfUse struct {
	ID            uuid.UUID `json:"id"`
	Types         []string  `json:"types"`
	SchemaAddress string    `json:"schema_address,omitempty"`
	AttributeID   string    `json:"attribute_id"`
	CredentialID  string    `json:"credential_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Removal counts the rows dropped with an accreditation attribute.
type Removal struct {
	Grants    int `json:"grants"`
	Terms     int `json:"terms_of_use"`
	Whitelist int `json:"whitelist_entries"`
}

// Empty reports whether nothing was removed.
func (r Removal) Empty() bool {
	return r.Grants == 0 && r.Terms == 0 && r.Whitelist == 0
}

// ProxyRegistration is the revocation proxy registered on the ledger. There
// is at most one.
type ProxyRegistration struct {
	ProxyID      string    `json:"proxy_id"`
	StatusListID int64     `json:"status_list_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// DirectOffer is the result of direct accreditation issuance: a
// pre-authorized code the whitelisted entity redeems for Kind.
type DirectOffer struct {
	Kind              catalog.AccreditationKind
	DID               string
	PreAuthorizedCode string
}

// KindOf returns the accreditation kind among types, if any.
func KindOf(types []string) (catalog.AccreditationKind, bool) {
	for _, t := range types {
		if k, ok := catalog.ParseAccreditationKind(t); ok {
			return k, true
		}
	}
	return "", false
}

// issuerTypeFor maps a kind to the ledger issuer type registered for its
// holder. Only attest and accredit kinds register trusted issuers.
func issuerTypeFor(kind catalog.AccreditationKind) (string, bool) {
	switch kind {
	case catalog.KindAttest:
		return ledger.IssuerTypeTrustedIssuer, true
	case catalog.KindAccredit:
		return ledger.IssuerTypeTao, true
	}
	return "", false
}

func distinctKinds(grants []Grant) []catalog.AccreditationKind {
	var kinds []catalog.AccreditationKind
	for _, g := range grants {
		if !slices.Contains(kinds, g.Kind) {
			kinds = append(kinds, g.Kind)
		}
	}
	return kinds
}
