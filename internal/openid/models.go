package openid

import (
	"encoding/json"
	"net/url"

	"vcissuer/internal/credentials"
	"vcissuer/pkg/platform/upstream"
)

const (
	GrantAuthorizationCode = "authorization_code"
	GrantPreAuthorizedCode = "urn:ietf:params:oauth:grant-type:pre-authorized_code"

	// OfferScheme prefixes credential offer deep links.
	OfferScheme = "openid-credential-offer://"

	FormatJWTVC = "jwt_vc"
)

// AuthorizeRequest is the wallet's authorization request.
type AuthorizeRequest struct {
	ResponseType         string `json:"response_type" validate:"required"`
	Scope                string `json:"scope" validate:"required"`
	ClientID             string `json:"client_id" validate:"required"`
	RedirectURI          string `json:"redirect_uri" validate:"required"`
	State                string `json:"state"`
	Nonce                string `json:"nonce"`
	CodeChallenge        string `json:"code_challenge"`
	CodeChallengeMethod  string `json:"code_challenge_method"`
	AuthorizationDetails string `json:"authorization_details"`
	ClientMetadata       string `json:"client_metadata"`
	IssuerState          string `json:"issuer_state"`
	Request              string `json:"request"`
}

// AuthorizeRequestFromQuery reads an authorization request from query
// parameters.
func AuthorizeRequestFromQuery(q url.Values) AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType:         q.Get("response_type"),
		Scope:                q.Get("scope"),
		ClientID:             q.Get("client_id"),
		RedirectURI:          q.Get("redirect_uri"),
		State:                q.Get("state"),
		Nonce:                q.Get("nonce"),
		CodeChallenge:        q.Get("code_challenge"),
		CodeChallengeMethod:  q.Get("code_challenge_method"),
		AuthorizationDetails: q.Get("authorization_details"),
		ClientMetadata:       q.Get("client_metadata"),
		IssuerState:          q.Get("issuer_state"),
		Request:              q.Get("request"),
	}
}

func (r AuthorizeRequest) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("response_type", r.ResponseType)
	set("scope", r.Scope)
	set("client_id", r.ClientID)
	set("redirect_uri", r.RedirectURI)
	set("nonce", r.Nonce)
	set("code_challenge", r.CodeChallenge)
	set("code_challenge_method", r.CodeChallengeMethod)
	set("authorization_details", r.AuthorizationDetails)
	set("client_metadata", r.ClientMetadata)
	set("issuer_state", r.IssuerState)
	set("request", r.Request)
	return v
}

// AuthorizationDetail is one entry of authorization_details.
type AuthorizationDetail struct {
	Type      string   `json:"type"`
	Format    string   `json:"format"`
	Types     []string `json:"types"`
	Locations []string `json:"locations,omitempty"`
}

// DirectPostRequest is the wallet's response to an authorization request.
type DirectPostRequest struct {
	VPToken                string `json:"vp_token"`
	IDToken                string `json:"id_token"`
	PresentationSubmission string `json:"presentation_submission"`
	State                  string `json:"state"`
}

func (r *DirectPostRequest) DecodeForm(form url.Values) {
	r.VPToken = form.Get("vp_token")
	r.IDToken = form.Get("id_token")
	r.PresentationSubmission = form.Get("presentation_submission")
	r.State = form.Get("state")
}

// UnmarshalJSON accepts presentation_submission as an object or a string.
func (r *DirectPostRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		VPToken                string          `json:"vp_token"`
		IDToken                string          `json:"id_token"`
		PresentationSubmission json.RawMessage `json:"presentation_submission"`
		State                  string          `json:"state"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.VPToken, r.IDToken, r.State = raw.VPToken, raw.IDToken, raw.State
	r.PresentationSubmission = ""
	if len(raw.PresentationSubmission) > 0 && string(raw.PresentationSubmission) != "null" {
		var s string
		if err := json.Unmarshal(raw.PresentationSubmission, &s); err == nil {
			r.PresentationSubmission = s
		} else {
			r.PresentationSubmission = string(raw.PresentationSubmission)
		}
	}
	return nil
}

// TokenRequest is an OAuth token request.
type TokenRequest struct {
	GrantType         string `json:"grant_type" validate:"required"`
	ClientID          string `json:"client_id"`
	Code              string `json:"code"`
	CodeVerifier      string `json:"code_verifier"`
	PreAuthorizedCode string `json:"pre-authorized_code"`
	UserPin           string `json:"user_pin"`
}

func (r *TokenRequest) DecodeForm(form url.Values) {
	r.GrantType = form.Get("grant_type")
	r.ClientID = form.Get("client_id")
	r.Code = form.Get("code")
	r.CodeVerifier = form.Get("code_verifier")
	r.PreAuthorizedCode = form.Get("pre-authorized_code")
	r.UserPin = form.Get("user_pin")
}

func (r TokenRequest) values() url.Values {
	v := url.Values{"grant_type": {r.GrantType}}
	for k, val := range map[string]string{
		"client_id":           r.ClientID,
		"code":                r.Code,
		"code_verifier":       r.CodeVerifier,
		"pre-authorized_code": r.PreAuthorizedCode,
		"user_pin":            r.UserPin,
	} {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

// CredentialRequest is a wallet's credential request.
type CredentialRequest struct {
	Types  []string        `json:"types" validate:"required"`
	Format string          `json:"format"`
	Proof  json.RawMessage `json:"proof"`
}

// credentialResponse is the part of a signer credential response the gateway
// reads. A deferred response carries only an acceptance token.
type credentialResponse struct {
	Format          string `json:"format"`
	Credential      string `json:"credential"`
	AcceptanceToken string `json:"acceptance_token"`
}

// IssueResult is the outcome of a credential or deferred credential request.
// Response is relayed to the wallet unchanged.
type IssueResult struct {
	Response   *upstream.Response
	Credential *credentials.IssuedCredential
	Deferred   bool
}

// CredentialOffer is an OpenID4VCI credential offer.
type CredentialOffer struct {
	CredentialIssuer string              `json:"credential_issuer"`
	Credentials      []OfferedCredential `json:"credentials"`
	Grants           map[string]any      `json:"grants"`
}

type OfferedCredential struct {
	Format string   `json:"format"`
	Types  []string `json:"types"`
}

type authorizationCodeGrant struct {
	IssuerState string `json:"issuer_state"`
}

type preAuthorizedGrant struct {
	PreAuthorizedCode string `json:"pre-authorized_code"`
	UserPinRequired   bool   `json:"user_pin_required"`
}

// OfferRequest selects what a credential offer contains. Without a
// pre-authorized code the offer uses the authorization code grant.
type OfferRequest struct {
	Types             []string
	PreAuthorizedCode string
	UserPinRequired   bool
}

// Offer is a rendered credential offer.
type Offer struct {
	Offer CredentialOffer `json:"offer"`
	URI   string          `json:"credential_offer"`
}

// IssuerMetadata is served at /.well-known/openid-credential-issuer.
type IssuerMetadata struct {
	CredentialIssuer           string               `json:"credential_issuer"`
	AuthorizationServer        string               `json:"authorization_server"`
	CredentialEndpoint         string               `json:"credential_endpoint"`
	DeferredCredentialEndpoint string               `json:"deferred_credential_endpoint"`
	CredentialsSupported       []supportedForWallet `json:"credentials_supported"`
}

type supportedForWallet struct {
	Format  string    `json:"format"`
	Types   []string  `json:"types"`
	Display []display `json:"display,omitempty"`
}

type display struct {
	Name   string `json:"name"`
	Locale string `json:"locale"`
}
