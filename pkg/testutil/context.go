package testutil

import (
	"context"
	"time"

	"vcissuer/pkg/requestcontext"
)

// FixedContext returns a background context with a pinned request time, so
// nonce expiry and issuance dates are deterministic.
func FixedContext(now time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), now)
}
