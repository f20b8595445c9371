// Package signer is the client of the external signing and authorization
// service. Responses are returned unparsed so callers can relay them.
package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vcissuer/internal/issuerkey"
	"vcissuer/pkg/platform/upstream"
)

// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	issuerURL string
	issuerDID string
	keys      *issuerkey.Keys
	http      *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New builds a signer client. issuerURL and issuerDID identify this gateway
// on every request.
func New(baseURL, issuerURL, issuerDID string, keys *issuerkey.Keys, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		issuerURL: issuerURL,
		issuerDID: issuerDID,
		keys:      keys,
		http: &http.Client{
			Timeout: timeout,
			// redirects issued by the authorization endpoints are relayed to
			// the wallet, not followed
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CredentialRequest asks the signer to issue one credential.
type CredentialRequest struct {
	Types            []string        `json:"types"`
	Format           string          `json:"format,omitempty"`
	Proof            json.RawMessage `json:"proof,omitempty"`
	CredentialSchema string          `json:"credentialSchema,omitempty"`
	CredentialStatus any             `json:"credentialStatus,omitempty"`
	ExpiresIn        int64           `json:"expiresIn,omitempty"`
	TermsOfUse       string          `json:"termsOfUse,omitempty"`
}

// StatusListRequest asks the signer to wrap an encoded list in a signed
// StatusList2021Credential.
type StatusListRequest struct {
	ID          string `json:"id"`
	EncodedList string `json:"encodedList"`
	Purpose     string `json:"statusPurpose"`
}

type keyedPayload struct {
	IssuerURI     string          `json:"issuerUri"`
	IssuerDID     string          `json:"issuerDid"`
	PrivateKeyJWK json.RawMessage `json:"privateKeyJwk"`
	PublicKeyJWK  json.RawMessage `json:"publicKeyJwk"`
}

func (c *Client) keyed() keyedPayload {
	return keyedPayload{
		IssuerURI:     c.issuerURL,
		IssuerDID:     c.issuerDID,
		PrivateKeyJWK: c.keys.PrivateJSON(),
		PublicKeyJWK:  c.keys.PublicJSON(),
	}
}

// Authorize forwards an authorization request. params carries the
// wallet's parameters plus the gateway's requested_response_type and
// definition_id.
func (c *Client) Authorize(ctx context.Context, params url.Values) (*upstream.Response, error) {
	q := cloneValues(params)
	q.Set("issuerUri", c.issuerURL)
	q.Set("privateKeyJwk", string(c.keys.PrivateJSON()))
	q.Set("publicKeyJwk", string(c.keys.PublicJSON()))
	return c.get(ctx, "/auth/authorize", q, "")
}

// DirectPost forwards a wallet's direct_post response as a form.
func (c *Client) DirectPost(ctx context.Context, form url.Values) (*upstream.Response, error) {
	f := cloneValues(form)
	f.Set("issuerUri", c.issuerURL)
	f.Set("privateKeyJwk", string(c.keys.PrivateJSON()))
	return c.postForm(ctx, "/auth/direct_post", f)
}

// Token forwards a token request as a form.
func (c *Client) Token(ctx context.Context, form url.Values) (*upstream.Response, error) {
	f := cloneValues(form)
	f.Set("issuerUri", c.issuerURL)
	f.Set("privateKeyJwk", string(c.keys.PrivateJSON()))
	f.Set("publicKeyJwk", string(c.keys.PublicJSON()))
	return c.postForm(ctx, "/auth/token", f)
}

// AuthorizationMetadata fetches the authorization server metadata.
func (c *Client) AuthorizationMetadata(ctx context.Context) (*upstream.Response, error) {
	return c.get(ctx, "/auth/.well-known/openid-configuration", url.Values{"issuerUri": {c.issuerURL}}, "")
}

// IssueCredential requests a credential on behalf of the bearer.
func (c *Client) IssueCredential(ctx context.Context, bearer string, req CredentialRequest) (*upstream.Response, error) {
	payload := struct {
		CredentialRequest
		keyedPayload
	}{req, c.keyed()}
	return c.postJSON(ctx, "/credentials", bearer, payload)
}

// DeferredCredential exchanges an acceptance token for the credential.
func (c *Client) DeferredCredential(ctx context.Context, bearer string) (*upstream.Response, error) {
	return c.postJSON(ctx, "/credential_deferred", bearer, c.keyed())
}

// StatusListCredential signs a status list credential.
func (c *Client) StatusListCredential(ctx context.Context, req StatusListRequest) (*upstream.Response, error) {
	payload := struct {
		StatusListRequest
		keyedPayload
	}{req, c.keyed()}
	return c.postJSON(ctx, "/credentials/status", "", payload)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, bearer string) (*upstream.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build signer request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*upstream.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build signer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, path, bearer string, payload any) (*upstream.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal signer request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build signer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*upstream.Response, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("signer url not configured")
	}
	resp, err := upstream.Do(c.http, req)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return resp, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		if len(vs) == 0 || (len(vs) == 1 && vs[0] == "") {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}
