package catalog

import (
	"encoding/json"
	"slices"

	strutil "vcissuer/pkg/platform/strings"
)

// ResponseType is the token the wallet returns during authorization.
type ResponseType string

const (
	ResponseVPToken ResponseType = "vp_token"
	ResponseIDToken ResponseType = "id_token"
)

// Valid reports whether r is a supported response type.
func (r ResponseType) Valid() bool {
	return r == ResponseVPToken || r == ResponseIDToken
}

// RevocationPolicy selects how issued credentials of a flow can be revoked.
type RevocationPolicy string

const (
	RevocationNone       RevocationPolicy = "none"
	RevocationStatusList RevocationPolicy = "bitstring-status-list"
	// RevocationLedgerEntry is reserved for synthesized accreditation flows.
	RevocationLedgerEntry RevocationPolicy = "ledger-accreditation-entry"
)

// Configurable reports whether operators may assign p to an issuance flow.
func (p RevocationPolicy) Configurable() bool {
	return p == RevocationNone || p == RevocationStatusList
}

// AccreditationKind is the credential type of a trust-chain credential.
type AccreditationKind string

const (
	KindOnboard    AccreditationKind = "VerifiableAuthorisationToOnboard"
	KindAttest     AccreditationKind = "VerifiableAccreditationToAttest"
	KindAccredit   AccreditationKind = "VerifiableAccreditationToAccredit"
	KindTrustChain AccreditationKind = "VerifiableAuthorisationForTrustChain"
)

// RootKind is the accreditation the operator issues itself to enter the
// trust chain. It is always issuable.
const RootKind = KindTrustChain

// AccreditationKinds lists every kind in trust-chain order.
var AccreditationKinds = []AccreditationKind{KindTrustChain, KindAccredit, KindAttest, KindOnboard}

// ParseAccreditationKind maps a credential type to its kind.
func ParseAccreditationKind(s string) (AccreditationKind, bool) {
	k := AccreditationKind(s)
	return k, slices.Contains(AccreditationKinds, k)
}

// Reserved credential types every issued credential carries alongside its
// specific type.
const (
	TypeVerifiableCredential    = "VerifiableCredential"
	TypeVerifiableAttestation   = "VerifiableAttestation"
	TypeVerifiableAccreditation = "VerifiableAccreditation"
)

// ReservedTypes are never matched against issuance flows.
var ReservedTypes = []string{TypeVerifiableCredential, TypeVerifiableAttestation, TypeVerifiableAccreditation}

// WithoutReserved drops the reserved base types, keeping order.
func WithoutReserved(types []string) []string {
	return strutil.Without(types, ReservedTypes...)
}

// AttestationSchema is the schema address of synthesized accreditation flows.
const AttestationSchema = "https://api-pilot.ebsi.eu/trusted-schemas-registry/v2/schemas/0x23039e6356ea6b703ce672e7cfac0b42765b150f63df78e2bd18ae785787f6a2"

// IssuanceFlow describes how one credential type is issued.
type IssuanceFlow struct {
	CredentialType           string           `json:"credential_type" yaml:"credential_type"`
	Scope                    string           `json:"scope" yaml:"scope"`
	ResponseType             ResponseType     `json:"response_type" yaml:"response_type"`
	Deferred                 bool             `json:"deferred" yaml:"deferred"`
	SchemaAddress            string           `json:"schema_address" yaml:"schema_address"`
	PresentationDefinitionID string           `json:"presentation_definition_id,omitempty" yaml:"presentation_definition_id"`
	Revocation               RevocationPolicy `json:"revocation" yaml:"revocation"`
	ExpirySeconds            int              `json:"expiry_seconds" yaml:"expiry_seconds"`
	TermsOfUseID             string           `json:"terms_of_use_id,omitempty" yaml:"terms_of_use_id"`
}

// VerifyFlow maps a presentation scope to its definition.
type VerifyFlow struct {
	Scope                    string       `json:"scope" yaml:"scope"`
	ResponseType             ResponseType `json:"response_type" yaml:"response_type"`
	PresentationDefinitionID string       `json:"presentation_definition_id" yaml:"presentation_definition_id"`
}

// PresentationDefinition is an opaque DIF presentation definition.
type PresentationDefinition struct {
	ID      string          `json:"id" yaml:"id"`
	Scope   string          `json:"scope" yaml:"scope"`
	Content json.RawMessage `json:"content" yaml:"-"`
}

// SupportedCredential is one entry of the issuer metadata.
type SupportedCredential struct {
	Format string   `json:"format"`
	Types  []string `json:"types"`
}

// accreditationFlow synthesizes the issuance flow of an accreditation kind.
func accreditationFlow(kind AccreditationKind) IssuanceFlow {
	return IssuanceFlow{
		CredentialType: string(kind),
		Scope:          "openid",
		ResponseType:   ResponseIDToken,
		SchemaAddress:  AttestationSchema,
		Revocation:     RevocationLedgerEntry,
	}
}
