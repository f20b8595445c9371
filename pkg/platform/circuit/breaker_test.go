package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBreakerStartsClosed(t *testing.T) {
	b := New("ledger-registry")
	assert.Equal(t, "ledger-registry", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.False(t, b.IsOpen())
}

// registry outage: reads keep failing, then the ledger recovers.
func TestBreakerRegistryOutage(t *testing.T) {
	b := New("ledger-registry", WithFailureThreshold(3), WithSuccessThreshold(2))

	for i := 0; i < 2; i++ {
		fallback, change := b.RecordFailure()
		require.False(t, fallback, "failure %d", i+1)
		require.False(t, change.Opened)
	}
	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)
	assert.Equal(t, StateOpen, b.State())

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "already open")

	primary, change := b.RecordSuccess()
	assert.False(t, primary)
	assert.False(t, change.Closed)

	primary, change = b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreakerCountersReset(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		record   func(b *Breaker)
		wantOpen bool
	}{
		{
			name:     "success clears the failure streak",
			failures: 3,
			record: func(b *Breaker) {
				b.RecordFailure()
				b.RecordFailure()
				b.RecordSuccess()
				b.RecordFailure()
				b.RecordFailure()
			},
			wantOpen: false,
		},
		{
			name:     "failure while open clears the success streak",
			failures: 1,
			record: func(b *Breaker) {
				b.RecordFailure()
				b.RecordSuccess()
				b.RecordSuccess()
				b.RecordFailure()
				b.RecordSuccess()
				b.RecordSuccess()
			},
			wantOpen: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("test", WithFailureThreshold(tt.failures), WithSuccessThreshold(3))
			tt.record(b)
			assert.Equal(t, tt.wantOpen, b.IsOpen())
		})
	}
}

func TestBreakerReset(t *testing.T) {
	b := New("test", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}
