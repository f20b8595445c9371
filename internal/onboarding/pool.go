// Package onboarding registers the operator on the ledger. Registration runs
// as chains of ordered steps on a worker pool; each step is retried on a
// fixed delay before the chain is given up on.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"vcissuer/internal/events"
	"vcissuer/internal/onboarding/metrics"
	"vcissuer/internal/platform/config"
	"vcissuer/pkg/requestcontext"
)

var (
	ErrQueueFull = errors.New("onboarding queue is full")
	ErrClosed    = errors.New("onboarding pool is shut down")
)

// ErrSkipped is returned by a step that found its work already done.
var ErrSkipped = errors.New("step already satisfied")

// Step is one ordered unit of a chain.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Chain is an ordered list of steps for one DID. VC and AttributeID are the
// inputs the steps were built from; a failed chain is rebuilt from them.
type Chain struct {
	Name        string
	DID         string
	Steps       []Step
	RequestID   string
	VC          string
	AttributeID string
}

// Emitter writes outbox events.
type Emitter interface {
	Emit(ctx context.Context, eventType events.Type, aggregateID string, payload any) error
}

// FailureStore persists chains that ran out of retries.
type FailureStore interface {
	SaveFailure(ctx context.Context, f Failure) error
	ListPendingFailures(ctx context.Context) ([]Failure, error)
	MarkRetried(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Pool executes chains on a fixed number of workers. Chains are independent;
// the steps of a chain run in order. Once accepted a chain is not cancelled
// until Shutdown's drain deadline passes.
type Pool struct {
	cfg     config.OnboardingConfig
	queue   chan Chain
	logger  *slog.Logger
	metrics  *metrics.Metrics
	events   Emitter
	failures FailureStore

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	queued  *atomic.Int64
	running *atomic.Int64

	stop func()
	done chan struct{}
}

type PoolOption func(*Pool)

func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithEvents publishes chain failures to the outbox.
func WithEvents(e Emitter) PoolOption {
	return func(p *Pool) {
		p.events = e
	}
}

// WithFailures records failed chains so they can be retried later.
func WithFailures(store FailureStore) PoolOption {
	return func(p *Pool) {
		p.failures = store
	}
}

func NewPool(cfg config.OnboardingConfig, opts ...PoolOption) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	p := &Pool{
		cfg:     cfg,
		queue:   make(chan Chain, cfg.QueueSize),
		logger:  slog.Default(),
		queued:  atomic.NewInt64(0),
		running: atomic.NewInt64(0),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Steps run on a context detached from ctx's
// cancellation; only Shutdown stops them.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.started.Load() {
		return
	}
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.stop = cancel
	p.started.Store(true)

	var g errgroup.Group
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			for chain := range p.queue {
				p.metrics.SetQueueDepth(p.queued.Dec())
				p.metrics.SetRunning(p.running.Inc())
				p.execute(workCtx, chain)
				p.metrics.SetRunning(p.running.Dec())
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(p.done)
	}()
}

// Submit enqueues a chain without blocking.
func (p *Pool) Submit(chain Chain) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	depth := p.queued.Inc()
	select {
	case p.queue <- chain:
		p.metrics.SetQueueDepth(depth)
		return nil
	default:
		p.queued.Dec()
		return ErrQueueFull
	}
}

// Pending is the number of queued plus running chains.
func (p *Pool) Pending() int64 {
	return p.queued.Load() + p.running.Load()
}

// Shutdown stops accepting chains and waits for the queue to drain. When ctx
// ends or DrainAfter elapses first, running steps are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	if !p.started.Load() {
		return nil
	}
	if p.cfg.DrainAfter > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.DrainAfter)
		defer cancel()
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		abandoned := p.Pending()
		p.stop()
		<-p.done
		p.logger.Warn("onboarding drain deadline reached", "abandoned_chains", abandoned)
		return fmt.Errorf("drain onboarding pool: %w", ctx.Err())
	}
}

func (p *Pool) execute(ctx context.Context, chain Chain) {
	ctx = requestcontext.WithRequestID(ctx, chain.RequestID)
	start := time.Now()
	for _, step := range chain.Steps {
		attempts, err := p.runStep(ctx, chain, step)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			p.metrics.IncrementChain(chain.Name, "aborted")
			p.logger.WarnContext(ctx, "onboarding chain aborted by shutdown",
				"request_id", chain.RequestID,
				"chain", chain.Name,
				"step", step.Name,
				"did", chain.DID,
			)
			return
		}
		p.fail(ctx, chain, step, attempts, err)
		return
	}
	p.metrics.IncrementChain(chain.Name, "completed")
	p.logger.InfoContext(ctx, "onboarding chain completed",
		"request_id", chain.RequestID,
		"chain", chain.Name,
		"did", chain.DID,
		"duration", time.Since(start),
	)
}

// runStep retries step up to MaxRetries times after the first attempt.
func (p *Pool) runStep(ctx context.Context, chain Chain, step Step) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		began := time.Now()
		err := step.Run(ctx)
		if errors.Is(err, ErrSkipped) {
			p.metrics.ObserveStep(chain.Name, step.Name, true, time.Since(began))
			p.logger.DebugContext(ctx, "onboarding step skipped",
				"request_id", chain.RequestID,
				"chain", chain.Name,
				"step", step.Name,
			)
			return nil
		}
		p.metrics.ObserveStep(chain.Name, step.Name, err == nil, time.Since(began))
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.RetryDelay), p.cfg.MaxRetries),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		p.logger.WarnContext(ctx, "onboarding step failed, retrying",
			"request_id", chain.RequestID,
			"chain", chain.Name,
			"step", step.Name,
			"attempt", attempts,
			"retry_in", wait,
			"error", err,
		)
	}
	err := backoff.RetryNotify(op, policy, notify)
	return attempts, err
}

func (p *Pool) fail(ctx context.Context, chain Chain, step Step, attempts int, err error) {
	p.metrics.IncrementChain(chain.Name, "failed")
	p.logger.ErrorContext(ctx, "onboarding chain failed",
		"request_id", chain.RequestID,
		"chain", chain.Name,
		"step", step.Name,
		"did", chain.DID,
		"attempts", attempts,
		"error", err,
	)
	if p.failures != nil {
		failure := Failure{
			ID:          uuid.New(),
			Chain:       chain.Name,
			DID:         chain.DID,
			Step:        step.Name,
			Attempts:    attempts,
			Error:       err.Error(),
			VC:          chain.VC,
			AttributeID: chain.AttributeID,
			FailedAt:    time.Now(),
		}
		if saveErr := p.failures.SaveFailure(ctx, failure); saveErr != nil {
			p.logger.ErrorContext(ctx, "failed to record chain failure",
				"request_id", chain.RequestID,
				"chain", chain.Name,
				"error", saveErr,
			)
		}
	}
	if p.events == nil {
		return
	}
	if emitErr := p.events.Emit(ctx, events.ChainFailed, chain.DID, events.ChainFailurePayload{
		Chain:    chain.Name,
		Step:     step.Name,
		Attempts: attempts,
		Error:    err.Error(),
		DID:      chain.DID,
	}); emitErr != nil {
		p.logger.ErrorContext(ctx, "failed to publish chain failure",
			"request_id", chain.RequestID,
			"chain", chain.Name,
			"error", emitErr,
		)
	}
}
