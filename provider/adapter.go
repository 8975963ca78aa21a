package provider

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/arcreliability/engine/opserr"
)

// TransientError wraps a Backend error that retry/backoff should cover
// (network failures, 5xx, explicit rate-limit responses). Anything else
// returned from a Backend is treated as permanent and not retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// Config controls Adapter policy. Zero values are replaced with the
// defaults noted per field.
type Config struct {
	// CostCeilingUSD is the per-process hard cost limit. Default 10.
	CostCeilingUSD float64

	// ModelDowngradeThresholdUSD is the cumulative cost at which the
	// adapter starts serving downgraded models. Default 5.
	ModelDowngradeThresholdUSD float64

	// RetryAttempts caps retries for transient failures. Default 3.
	RetryAttempts int

	// RetryBackoff lists the backoff delay per attempt, in order.
	// Default [1s, 2s, 4s]; the last value repeats if attempts exceed
	// the list length.
	RetryBackoff []time.Duration

	// RateLimitMaxWait bounds how long a caller suspends on bucket
	// exhaustion before failing with RateLimited. Default 30s.
	RateLimitMaxWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.CostCeilingUSD <= 0 {
		c.CostCeilingUSD = 10
	}
	if c.ModelDowngradeThresholdUSD <= 0 {
		c.ModelDowngradeThresholdUSD = 5
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if len(c.RetryBackoff) == 0 {
		c.RetryBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	}
	if c.RateLimitMaxWait <= 0 {
		c.RateLimitMaxWait = 30 * time.Second
	}
	return c
}

// Adapter is the single point of contact with LLM providers. It wraps a
// set of named Backends with a shared cost ceiling, per-backend rate
// limiting, retry-with-backoff, and automatic model downgrade.
type Adapter struct {
	cfg      Config
	backends map[string]Backend
	limiter  Limiter

	mu            sync.Mutex
	cumulativeUSD float64
	usage         TokenUsage

	batches   map[string]*batchState
	batchesMu sync.Mutex
}

// New creates an Adapter. limiter may be nil, in which case an unbounded
// in-memory limiter is used (effectively no rate limiting).
func New(cfg Config, limiter Limiter, backends ...Backend) *Adapter {
	if limiter == nil {
		limiter = NewMemoryLimiter(1<<30, 1<<30)
	}
	m := make(map[string]Backend, len(backends))
	for _, b := range backends {
		m[b.Name()] = b
	}
	return &Adapter{
		cfg:      cfg.withDefaults(),
		backends: m,
		limiter:  limiter,
		batches:  make(map[string]*batchState),
	}
}

// Call issues a synchronous completion request against the named
// backend, applying cost ceiling, rate limiting, retry, and downgrade
// policy.
func (a *Adapter) Call(ctx context.Context, backendName string, req Request, opts ...Option) (*Response, error) {
	backend, ok := a.backends[backendName]
	if !ok {
		return nil, opserr.New("provider", "call", opserr.CodeProviderPermanent,
			"unknown backend "+backendName)
	}

	if err := a.checkCostCeiling(); err != nil {
		return nil, err
	}

	ok2, err := a.limiter.Acquire(ctx, backendName, a.cfg.RateLimitMaxWait)
	if err != nil {
		return nil, opserr.New("provider", "call", opserr.CodeProviderTransient,
			"rate limiter error").WithCause(err)
	}
	if !ok2 {
		return nil, opserr.New("provider", "call", opserr.CodeRateLimited,
			"bucket exhausted after bounded wait").WithCause(opserr.ErrRateLimited)
	}

	effectiveReq := req
	downgraded := false
	if a.cumulativeCost() >= a.cfg.ModelDowngradeThresholdUSD {
		if cheaper := backend.DowngradeModel(req.Model); cheaper != "" {
			effectiveReq.Model = cheaper
			downgraded = true
		}
	}

	resp, err := a.callWithRetry(ctx, backend, effectiveReq, opts...)
	if err != nil {
		return nil, err
	}
	resp.Downgraded = downgraded

	a.recordUsage(resp.Usage, resp.CostUSD)
	return resp, nil
}

func (a *Adapter) callWithRetry(ctx context.Context, backend Backend, req Request, opts ...Option) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.RetryAttempts; attempt++ {
		resp, err := backend.Complete(ctx, req, opts...)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, opserr.New("provider", "call", opserr.CodeProviderPermanent,
				"non-transient provider error").WithCause(err)
		}
		if attempt == a.cfg.RetryAttempts {
			break
		}

		delay := a.cfg.RetryBackoff[minInt(attempt, len(a.cfg.RetryBackoff)-1)]
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, opserr.New("provider", "call", opserr.CodeProviderTransient,
		"exhausted retry budget").WithCause(lastErr)
}

func (a *Adapter) checkCostCeiling() error {
	if a.cumulativeCost() >= a.cfg.CostCeilingUSD {
		return opserr.New("provider", "call", opserr.CodeCostCeiling,
			"per-process cost ceiling exceeded").WithCause(opserr.ErrCostCeiling)
	}
	return nil
}

func (a *Adapter) cumulativeCost() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cumulativeUSD
}

func (a *Adapter) recordUsage(usage TokenUsage, costUSD float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage = a.usage.Add(usage)
	a.cumulativeUSD += costUSD
}

// Usage returns a snapshot of the process-wide token and cost counters.
func (a *Adapter) Usage() Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Usage{Tokens: a.usage, CostUSD: a.cumulativeUSD}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// backoffFor returns an exponential delay of 2^attempt * 100ms. Nothing
// in this package calls it: callWithRetry takes its delays from
// Config.RetryBackoff, and Poll does not wait between calls.
func backoffFor(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
}
