package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcissuer/internal/onboarding"
	"vcissuer/pkg/platform/sentinel"
)

func TestInMemoryFailures(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Now()

	older := onboarding.Failure{ID: uuid.New(), Chain: onboarding.ChainDIDOnboarding, FailedAt: now.Add(-time.Minute)}
	newer := onboarding.Failure{ID: uuid.New(), Chain: onboarding.ChainTrustedEntity, AttributeID: "0xattr", FailedAt: now}
	require.NoError(t, s.SaveFailure(ctx, newer))
	require.NoError(t, s.SaveFailure(ctx, older))

	pending, err := s.ListPendingFailures(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID, "oldest first")

	require.NoError(t, s.MarkRetried(ctx, older.ID, now))
	pending, err = s.ListPendingFailures(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "0xattr", pending[0].AttributeID)

	assert.ErrorIs(t, s.MarkRetried(ctx, uuid.New(), now), sentinel.ErrNotFound)
}
