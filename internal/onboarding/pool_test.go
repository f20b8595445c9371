package onboarding_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcissuer/internal/events"
	eventstore "vcissuer/internal/events/store"
	"vcissuer/internal/onboarding"
	"vcissuer/internal/platform/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func poolConfig() config.OnboardingConfig {
	return config.OnboardingConfig{
		Workers:    2,
		QueueSize:  8,
		MaxRetries: 3,
		RetryDelay: 0,
		DrainAfter: 5 * time.Second,
	}
}

type stepLog struct {
	mu    sync.Mutex
	names []string
}

func (l *stepLog) step(name string, err error) onboarding.Step {
	return onboarding.Step{Name: name, Run: func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.names = append(l.names, name)
		return err
	}}
}

func (l *stepLog) calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func TestPoolRunsStepsInOrder(t *testing.T) {
	pool := onboarding.NewPool(poolConfig(), onboarding.WithLogger(discardLogger()))
	pool.Start(context.Background())

	log := &stepLog{}
	require.NoError(t, pool.Submit(onboarding.Chain{
		Name:  "did_onboarding",
		DID:   "did:ebsi:z1",
		Steps: []onboarding.Step{log.step("one", nil), log.step("two", onboarding.ErrSkipped), log.step("three", nil)},
	}))
	require.NoError(t, pool.Shutdown(context.Background()))

	assert.Equal(t, []string{"one", "two", "three"}, log.calls())
	assert.Zero(t, pool.Pending())
}

func TestPoolRetryBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("step succeeding on a retry continues the chain", func(t *testing.T) {
		pool := onboarding.NewPool(poolConfig(), onboarding.WithLogger(discardLogger()))
		pool.Start(ctx)

		attempts := 0
		log := &stepLog{}
		flaky := onboarding.Step{Name: "flaky", Run: func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("ledger busy")
			}
			return nil
		}}
		require.NoError(t, pool.Submit(onboarding.Chain{Name: "c", DID: "did:ebsi:z1", Steps: []onboarding.Step{flaky, log.step("after", nil)}}))
		require.NoError(t, pool.Shutdown(ctx))

		assert.Equal(t, 3, attempts)
		assert.Equal(t, []string{"after"}, log.calls())
	})

	t.Run("exhausted budget fails the chain and publishes the failure", func(t *testing.T) {
		st := eventstore.NewInMemory()
		pool := onboarding.NewPool(poolConfig(),
			onboarding.WithLogger(discardLogger()),
			onboarding.WithEvents(events.NewPublisher(st)),
		)
		pool.Start(ctx)

		log := &stepLog{}
		require.NoError(t, pool.Submit(onboarding.Chain{
			Name:      "trusted_entity",
			DID:       "did:ebsi:z1",
			RequestID: "req-1",
			Steps:     []onboarding.Step{log.step("broken", errors.New("rpc error")), log.step("never", nil)},
		}))
		require.NoError(t, pool.Shutdown(ctx))

		// first attempt plus three retries
		assert.Equal(t, []string{"broken", "broken", "broken", "broken"}, log.calls())

		failed := st.ByType(events.ChainFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, "did:ebsi:z1", failed[0].AggregateID)
		var payload events.ChainFailurePayload
		require.NoError(t, json.Unmarshal(failed[0].Payload, &payload))
		assert.Equal(t, events.ChainFailurePayload{
			Chain:    "trusted_entity",
			Step:     "broken",
			Attempts: 4,
			Error:    "rpc error",
			DID:      "did:ebsi:z1",
		}, payload)
	})
}

func TestPoolSubmit(t *testing.T) {
	t.Run("full queue rejects", func(t *testing.T) {
		cfg := poolConfig()
		cfg.QueueSize = 1
		pool := onboarding.NewPool(cfg, onboarding.WithLogger(discardLogger()))

		require.NoError(t, pool.Submit(onboarding.Chain{Name: "a"}))
		assert.ErrorIs(t, pool.Submit(onboarding.Chain{Name: "b"}), onboarding.ErrQueueFull)
		assert.EqualValues(t, 1, pool.Pending())
	})

	t.Run("closed pool rejects", func(t *testing.T) {
		pool := onboarding.NewPool(poolConfig(), onboarding.WithLogger(discardLogger()))
		pool.Start(context.Background())
		require.NoError(t, pool.Shutdown(context.Background()))

		assert.ErrorIs(t, pool.Submit(onboarding.Chain{Name: "late"}), onboarding.ErrClosed)
		require.NoError(t, pool.Shutdown(context.Background()))
	})
}

func TestPoolSubmitterCancellationDoesNotStopChains(t *testing.T) {
	reqCtx, cancel := context.WithCancel(context.Background())
	pool := onboarding.NewPool(poolConfig(), onboarding.WithLogger(discardLogger()))
	pool.Start(reqCtx)
	cancel()

	var sawErr error
	require.NoError(t, pool.Submit(onboarding.Chain{Name: "c", Steps: []onboarding.Step{{
		Name: "check",
		Run: func(ctx context.Context) error {
			sawErr = ctx.Err()
			return nil
		},
	}}}))
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.NoError(t, sawErr)
}

func TestPoolDrainDeadline(t *testing.T) {
	cfg := poolConfig()
	cfg.DrainAfter = 20 * time.Millisecond
	st := eventstore.NewInMemory()
	pool := onboarding.NewPool(cfg,
		onboarding.WithLogger(discardLogger()),
		onboarding.WithEvents(events.NewPublisher(st)),
	)
	pool.Start(context.Background())

	started := make(chan struct{})
	require.NoError(t, pool.Submit(onboarding.Chain{Name: "slow", Steps: []onboarding.Step{{
		Name: "wait",
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}}}))
	<-started

	err := pool.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, st.ByType(events.ChainFailed), "aborted chains are not reported as failed")
}
