package ledger

import "encoding/json"

// DID document relationships registered by the onboarding chain.
const (
	RelationshipAuthentication  = "authentication"
	RelationshipAssertionMethod = "assertionMethod"
)

// Issuer types accepted by addTrustedIssuer.
const (
	IssuerTypeTrustedIssuer = "TrustedIssuer"
	IssuerTypeTao           = "Tao"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

type onboardDIDParams struct {
	VC  string `json:"vc"`
	DID string `json:"did"`
	URL string `json:"url"`
}

type didParams struct {
	DID string `json:"did"`
	URL string `json:"url"`
}

type relationshipParams struct {
	Name string `json:"name"`
	DID  string `json:"did"`
	URL  string `json:"url"`
}

type trustedIssuerDataParams struct {
	DID string `json:"did"`
	VC  string `json:"vc"`
	URL string `json:"url"`
}

type issuerProxyParams struct {
	DID        string `json:"did"`
	Prefix     string `json:"prefix"`
	TestSuffix string `json:"testSuffix"`
	URL        string `json:"url"`
}

// TrustedIssuer registers an accredited entity under this issuer's
// accreditation attribute.
type TrustedIssuer struct {
	URL            string `json:"url"`
	DID            string `json:"did"`
	TaoDID         string `json:"taoDid"`
	TaoAttributeID string `json:"taoAttributeId"`
	IssuerType     string `json:"issuerType"`
}

// Revocation revokes one revision of an accreditation attribute.
type Revocation struct {
	URL            string `json:"url"`
	DID            string `json:"did"`
	TaoDID         string `json:"taoDid"`
	TaoAttributeID string `json:"taoAttributeId"`
	RevisionID     string `json:"revisionId"`
}

// VCRequest asks the ledger wallet to redeem a credential offer.
type VCRequest struct {
	CredentialOffer string   `json:"credentialOffer"`
	VCType          []string `json:"vcType"`
	URL             string   `json:"url"`
	DID             string   `json:"did"`
	ExternalAddr    string   `json:"externalAddr"`
	PinCode         *int     `json:"pinCode,omitempty"`
}

type resolveOfferParams struct {
	CredentialOffer string `json:"credentialOffer"`
}

type deferredVCParams struct {
	Issuer          string `json:"issuer"`
	AcceptanceToken string `json:"acceptanceToken"`
}

// Attribute is a trusted issuer registry attribute.
type Attribute struct {
	DID       string `json:"did"`
	Attribute struct {
		Hash       string `json:"hash"`
		Body       string `json:"body"`
		IssuerType string `json:"issuerType"`
		Tao        string `json:"tao"`
		RootTao    string `json:"rootTao"`
	} `json:"attribute"`
}

// Filled reports whether the attribute already carries a credential.
func (a Attribute) Filled() bool {
	return a.Attribute.Body != ""
}

// HexPrefixed returns id with a 0x prefix.
func HexPrefixed(id string) string {
	if len(id) >= 2 && id[0] == '0' && (id[1] == 'x' || id[1] == 'X') {
		return id
	}
	return "0x" + id
}
