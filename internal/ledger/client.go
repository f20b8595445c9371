// Package ledger talks to the EBSI-style ledger: a JSON-RPC gateway for
// writes and wallet operations, plus the DID and trusted issuer registries
// for reads.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"vcissuer/internal/ledger/metrics"
	"vcissuer/internal/platform/config"
	"vcissuer/pkg/platform/circuit"
	"vcissuer/pkg/platform/upstream"
)

const (
	serviceName       = "ledger"
	registryCacheSize = 1024
)

// Client is safe for concurrent use.
type Client struct {
	rpcURL  string
	didrURL string
	tirURL  string
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	nextID  atomic.Int64

	fresh     *expirable.LRU[string, lookup]
	lastKnown *lru.Cache[string, lookup]
	group     singleflight.Group
	breaker   *circuit.Breaker
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New builds a ledger client from cfg.
func New(cfg config.LedgerConfig, opts ...Option) *Client {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = config.RegistryCacheTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	lastKnown, _ := lru.New[string, lookup](registryCacheSize)
	c := &Client{
		rpcURL:    cfg.RPCURL,
		didrURL:   cfg.DIDRURL,
		tirURL:    cfg.TIRURL,
		http:      &http.Client{Timeout: timeout},
		logger:    slog.Default(),
		tracer:    otel.Tracer("vcissuer/ledger"),
		fresh:     expirable.NewLRU[string, lookup](registryCacheSize, nil, ttl),
		lastKnown: lastKnown,
		breaker:   circuit.New("ledger-registry"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes one JSON-RPC method and returns its result. A non-200 response
// is an *upstream.Error whose body is the RPC error data.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "ledger."+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	start := time.Now()

	result, err := c.call(ctx, method, params)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.metrics.ObserveRPC(method, outcome, time.Since(start))
	return result, err
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.rpcURL == "" {
		return nil, fmt.Errorf("ledger rpc url not configured")
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := upstream.Do(c.http, req)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", method, err)
	}
	var decoded rpcResponse
	decodeErr := json.Unmarshal(resp.Body, &decoded)
	if resp.Status != http.StatusOK {
		upErr := resp.AsError(serviceName)
		if decodeErr == nil && decoded.Error != nil && len(decoded.Error.Data) > 0 {
			upErr.Body = decoded.Error.Data
		}
		return nil, fmt.Errorf("ledger %s: %w", method, upErr)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, decodeErr)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("ledger %s: %w", method, &upstream.Error{
			Service: serviceName,
			Status:  http.StatusBadGateway,
			Body:    decoded.Error.Data,
		})
	}
	return decoded.Result, nil
}

// OnboardDID registers did on the DID registry using an onboarding credential.
func (c *Client) OnboardDID(ctx context.Context, vc, did, url string) error {
	_, err := c.Call(ctx, "onboardDid", onboardDIDParams{VC: vc, DID: did, URL: url})
	return err
}

func (c *Client) AddVerificationMethod(ctx context.Context, did, url string) error {
	_, err := c.Call(ctx, "addVerificationMethod", didParams{DID: did, URL: url})
	return err
}

func (c *Client) AddVerificationRelationship(ctx context.Context, name, did, url string) error {
	_, err := c.Call(ctx, "addVerificationRelationship", relationshipParams{Name: name, DID: did, URL: url})
	return err
}

func (c *Client) SetTrustedIssuerData(ctx context.Context, did, vc, url string) error {
	_, err := c.Call(ctx, "setTrustedIssuerData", trustedIssuerDataParams{DID: did, VC: vc, URL: url})
	return err
}

// AddIssuerProxy registers the status list proxy and returns its proxy id.
func (c *Client) AddIssuerProxy(ctx context.Context, did, prefix, testSuffix, url string) (string, error) {
	result, err := c.Call(ctx, "addIssuerProxy", issuerProxyParams{
		DID:        did,
		Prefix:     prefix,
		TestSuffix: testSuffix,
		URL:        url,
	})
	if err != nil {
		return "", err
	}
	return resultString(result), nil
}

func (c *Client) AddTrustedIssuer(ctx context.Context, p TrustedIssuer) (json.RawMessage, error) {
	p.TaoAttributeID = HexPrefixed(p.TaoAttributeID)
	return c.Call(ctx, "addTrustedIssuer", p)
}

func (c *Client) RevokeAccreditation(ctx context.Context, p Revocation) (json.RawMessage, error) {
	p.TaoAttributeID = HexPrefixed(p.TaoAttributeID)
	return c.Call(ctx, "revokeAccreditation", p)
}

// RequestVC asks the ledger wallet to redeem a credential offer for did.
func (c *Client) RequestVC(ctx context.Context, p VCRequest) (json.RawMessage, error) {
	return c.Call(ctx, "requestVC", p)
}

func (c *Client) ResolveCredentialOffer(ctx context.Context, offer string) (json.RawMessage, error) {
	return c.Call(ctx, "resolveCredentialOffer", resolveOfferParams{CredentialOffer: offer})
}

func (c *Client) RequestDeferredVC(ctx context.Context, issuer, acceptanceToken string) (json.RawMessage, error) {
	return c.Call(ctx, "requestDeferredVC", deferredVCParams{Issuer: issuer, AcceptanceToken: acceptanceToken})
}

// resultString unquotes a JSON string result and passes anything else through.
func resultString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

