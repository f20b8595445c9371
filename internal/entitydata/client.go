// Package entitydata is the client of the operator's entity-data backend,
// which supplies credential subject data and deferred issuance codes.
package entitydata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"vcissuer/internal/platform/config"
	"vcissuer/pkg/platform/sentinel"
	"vcissuer/pkg/platform/upstream"
)

// Mode selects how requests are served.
type Mode string

const (
	ModeRemote   Mode = "remote"
	ModeMock     Mode = "mock"
	ModeDisabled Mode = "disabled"
)

// ErrNotConfigured is returned in ModeDisabled.
var ErrNotConfigured = fmt.Errorf("entity data backend not configured: %w", sentinel.ErrUnavailable)

// Client is safe for concurrent use.
type Client struct {
	mode    Mode
	baseURL string
	http    *http.Client
	auth    *authorizer
}

// New picks the mode from cfg: a URL selects the remote backend; without one,
// Mock selects canned development responses and anything else disables the
// client.
func New(cfg config.EntityDataConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	c := &Client{baseURL: cfg.URL, http: httpClient}
	switch {
	case cfg.URL != "":
		c.mode = ModeRemote
		c.auth = newAuthorizer(ParseCredentials(cfg.Auth), httpClient)
	case cfg.Mock:
		c.mode = ModeMock
	default:
		c.mode = ModeDisabled
	}
	return c
}

func (c *Client) Mode() Mode {
	return c.mode
}

// ExternalData fetches the subject data for a credential type.
func (c *Client) ExternalData(ctx context.Context, vcType, userID, pin string) (*upstream.Response, error) {
	switch c.mode {
	case ModeMock:
		return mockJSON(http.StatusOK, map[string]any{
			"vc_type": vcType,
			"user_id": userID,
			"data": map[string]any{
				"id":          userID,
				"firstName":   "Jane",
				"familyName":  "Doe",
				"dateOfBirth": "1990-01-01",
			},
		})
	case ModeDisabled:
		return nil, ErrNotConfigured
	}
	q := url.Values{"vc_type": {vcType}}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if pin != "" {
		q.Set("pin", pin)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/credentials/external-data?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build entity data request: %w", err)
	}
	return c.do(req)
}

// RegisterDeferred registers a deferred issuance with the backend.
func (c *Client) RegisterDeferred(ctx context.Context, body json.RawMessage) (*upstream.Response, error) {
	switch c.mode {
	case ModeMock:
		return mockJSON(http.StatusOK, map[string]string{"code": uuid.NewString()})
	case ModeDisabled:
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/deferred/registry", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build entity data request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// ExchangeDeferred redeems a deferred code.
func (c *Client) ExchangeDeferred(ctx context.Context, code string) (*upstream.Response, error) {
	switch c.mode {
	case ModeMock:
		return mockJSON(http.StatusOK, map[string]string{"acceptance_token": code})
	case ModeDisabled:
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/deferred/exchange/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, fmt.Errorf("build entity data request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*upstream.Response, error) {
	if err := c.auth.apply(req); err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	resp, err := upstream.Do(c.http, req)
	if err != nil {
		return nil, fmt.Errorf("entity data: %w", err)
	}
	return resp, nil
}

func mockJSON(status int, v any) (*upstream.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &upstream.Response{
		Status: status,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   body,
	}, nil
}
