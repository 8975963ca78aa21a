package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_CallSuccess(t *testing.T) {
	backend := &mockBackend{name: "anthropic", responses: []*Response{
		{Content: "hello", Usage: TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, CostUSD: 0.01},
	}}
	a := New(Config{}, nil, backend)

	resp, err := a.Call(context.Background(), "anthropic", Request{Model: "claude-sonnet"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.False(t, resp.Downgraded)
	assert.Equal(t, 0.01, a.Usage().CostUSD)
}

func TestAdapter_UnknownBackend(t *testing.T) {
	a := New(Config{}, nil)
	_, err := a.Call(context.Background(), "nope", Request{Model: "x"})
	require.Error(t, err)
}

func TestAdapter_RetriesTransientThenSucceeds(t *testing.T) {
	backend := &mockBackend{
		name: "anthropic",
		errs: []error{&TransientError{Err: errTransientNetwork}, &TransientError{Err: errTransientNetwork}},
		responses: []*Response{
			nil, nil,
			{Content: "recovered"},
		},
	}
	a := New(Config{RetryBackoff: []time.Duration{time.Millisecond, time.Millisecond}}, nil, backend)

	resp, err := a.Call(context.Background(), "anthropic", Request{Model: "claude-sonnet"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 3, backend.calls)
}

func TestAdapter_NonTransientErrorNotRetried(t *testing.T) {
	backend := &mockBackend{name: "anthropic", errs: []error{errTransientNetwork}}
	a := New(Config{}, nil, backend)

	_, err := a.Call(context.Background(), "anthropic", Request{Model: "claude-sonnet"})
	require.Error(t, err)
	assert.Equal(t, 1, backend.calls)
}

func TestAdapter_CostCeilingFailsFast(t *testing.T) {
	backend := &mockBackend{name: "anthropic", responses: []*Response{
		{Content: "x", CostUSD: 11},
	}}
	a := New(Config{CostCeilingUSD: 10}, nil, backend)

	_, err := a.Call(context.Background(), "anthropic", Request{Model: "claude-sonnet"})
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "anthropic", Request{Model: "claude-sonnet"})
	require.Error(t, err)
}

func TestAdapter_DowngradesModelPastThreshold(t *testing.T) {
	backend := &mockBackend{
		name:        "anthropic",
		downgradeTo: "claude-haiku",
		responses: []*Response{
			{Content: "x", CostUSD: 6},
			{Content: "y"},
		},
	}
	a := New(Config{ModelDowngradeThresholdUSD: 5}, nil, backend)

	_, err := a.Call(context.Background(), "anthropic", Request{Model: "claude-sonnet"})
	require.NoError(t, err)

	resp, err := a.Call(context.Background(), "anthropic", Request{Model: "claude-sonnet"})
	require.NoError(t, err)
	assert.True(t, resp.Downgraded)
	assert.Equal(t, "claude-haiku", resp.ModelID)
}

func TestAdapter_RateLimiterExhaustedFailsWithRateLimited(t *testing.T) {
	backend := &mockBackend{name: "anthropic"}
	limiter := NewMemoryLimiter(1, 0.001)
	a := New(Config{RateLimitMaxWait: 10 * time.Millisecond}, limiter, backend)

	_, err := a.Call(context.Background(), "anthropic", Request{Model: "x"})
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "anthropic", Request{Model: "x"})
	require.Error(t, err)
}

func TestAdapter_SubmitBatchAndPoll(t *testing.T) {
	backend := &mockBackend{name: "anthropic", responses: []*Response{
		{Content: "a"}, {Content: "b"},
	}}
	a := New(Config{}, nil, backend)

	handle, err := a.SubmitBatch(context.Background(), "anthropic", []BatchJob{
		{ID: "j1", Request: Request{Model: "x"}},
		{ID: "j2", Request: Request{Model: "x"}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, _, _ := a.Poll(handle)
		return status == BatchCompleted
	}, time.Second, 5*time.Millisecond)

	_, results, _ := a.Poll(handle)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
}
