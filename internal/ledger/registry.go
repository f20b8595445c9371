package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"vcissuer/pkg/platform/sentinel"
	"vcissuer/pkg/platform/upstream"
)

// lookup is a cached registry answer. A definitive 404 is cached as
// found=false.
type lookup struct {
	found bool
	body  json.RawMessage
}

// DIDRegistered reports whether did resolves on the DID registry. A 404 is a
// definitive "no"; any other non-success status is an error.
func (c *Client) DIDRegistered(ctx context.Context, did string) (bool, error) {
	res, err := c.read(ctx, "didr", c.didrURL+"/"+url.PathEscape(did))
	if err != nil {
		return false, err
	}
	return res.found, nil
}

// IssuerAttribute reads one attribute of did on the trusted issuer registry.
// found is false when the registry answered 404.
func (c *Client) IssuerAttribute(ctx context.Context, did, attributeID string) (Attribute, bool, error) {
	res, err := c.read(ctx, "tir", c.tirURL+"/"+url.PathEscape(did)+"/attributes/"+url.PathEscape(attributeID))
	if err != nil || !res.found {
		return Attribute{}, false, err
	}
	var attr Attribute
	if err := json.Unmarshal(res.body, &attr); err != nil {
		return Attribute{}, false, fmt.Errorf("decode issuer attribute: %w", err)
	}
	return attr, true, nil
}

// Forget drops cached answers for did, so reads after a registration see the
// new state.
func (c *Client) Forget(did string) {
	didKey := c.didrURL + "/" + url.PathEscape(did)
	tirPrefix := c.tirURL + "/" + url.PathEscape(did) + "/"
	matches := func(key string) bool {
		return key == didKey || strings.HasPrefix(key, tirPrefix)
	}
	for _, key := range c.fresh.Keys() {
		if matches(key) {
			c.fresh.Remove(key)
		}
	}
	for _, key := range c.lastKnown.Keys() {
		if matches(key) {
			c.lastKnown.Remove(key)
		}
	}
}

// read serves a registry GET from the fresh cache, coalesces concurrent
// misses, and falls back to the last known answer while the breaker is open.
func (c *Client) read(ctx context.Context, registry, target string) (lookup, error) {
	if res, ok := c.fresh.Get(target); ok {
		c.metrics.IncrementRegistryRead(registry, "cache")
		return res, nil
	}
	v, err, _ := c.group.Do(target, func() (any, error) {
		return c.fetch(ctx, registry, target)
	})
	if err == nil {
		res := v.(lookup)
		c.recordSuccess(ctx)
		c.fresh.Add(target, res)
		c.lastKnown.Add(target, res)
		c.metrics.IncrementRegistryRead(registry, "upstream")
		return res, nil
	}
	if !errors.Is(err, sentinel.ErrUnavailable) {
		return lookup{}, err
	}
	useFallback, change := c.breaker.RecordFailure()
	if change.Opened {
		c.metrics.SetBreakerOpen(true)
		c.logger.WarnContext(ctx, "ledger registry circuit opened", "registry", registry, "error", err)
	}
	if useFallback {
		if res, ok := c.lastKnown.Get(target); ok {
			c.metrics.IncrementRegistryRead(registry, "fallback")
			return res, nil
		}
	}
	return lookup{}, err
}

func (c *Client) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.SetBreakerOpen(false)
		c.logger.InfoContext(ctx, "ledger registry circuit closed")
	}
}

func (c *Client) fetch(ctx context.Context, registry, target string) (lookup, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.registry."+registry)
	defer span.End()
	span.SetAttributes(attribute.String("http.url", target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return lookup{}, fmt.Errorf("build %s request: %w", registry, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := upstream.Do(c.http, req)
	if err != nil {
		return lookup{}, fmt.Errorf("ledger %s: %w", registry, err)
	}
	switch {
	case resp.Status == http.StatusOK:
		return lookup{found: true, body: resp.Body}, nil
	case resp.Status == http.StatusNotFound:
		return lookup{found: false}, nil
	default:
		return lookup{}, fmt.Errorf("ledger %s: %w", registry, resp.AsError(serviceName))
	}
}
