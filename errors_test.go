package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreliability/engine/opserr"
)

func TestError_ErrorStringVariesWithCauseAndContext(t *testing.T) {
	bare := &Error{Op: "Engine.Run", Kind: KindInput}
	assert.Equal(t, "engine: Engine.Run: input", bare.Error())

	withCause := &Error{Op: "Engine.Run", Kind: KindInput, Err: errors.New("bad record")}
	assert.Contains(t, withCause.Error(), "Engine.Run")
	assert.Contains(t, withCause.Error(), "bad record")

	withContext := withCause.WithContext(map[string]any{"run_id": "r1"})
	assert.Contains(t, withContext.Error(), "context:")
	assert.Contains(t, withContext.Error(), "run_id")
	// WithContext must not mutate the receiver.
	assert.NotContains(t, withCause.Error(), "context:")
}

func TestError_UnwrapReachesUnderlyingCause(t *testing.T) {
	cause := errors.New("root cause")
	e := &Error{Op: "NewEngine", Kind: KindConfiguration, Err: cause}
	assert.Same(t, cause, errors.Unwrap(e))
	assert.True(t, errors.Is(e, cause))
}

func TestError_IsMatchesOnKindAndOptionallyOp(t *testing.T) {
	e := &Error{Op: "Engine.Run", Kind: KindProvider, Err: errors.New("boom")}

	assert.True(t, e.Is(&Error{Kind: KindProvider}))
	assert.True(t, e.Is(&Error{Kind: KindProvider, Op: "Engine.Run"}))
	assert.False(t, e.Is(&Error{Kind: KindProvider, Op: "NewEngine"}))
	assert.False(t, e.Is(&Error{Kind: KindInput}))
	assert.False(t, e.Is(nil))
}

func TestError_IsDelegatesToWrappedErrorWhenTargetIsNotAnEngineError(t *testing.T) {
	e := &Error{Op: "Engine.Run", Kind: KindProvider, Err: opserr.ErrCostCeiling}
	assert.True(t, errors.Is(e, opserr.ErrCostCeiling))
}

func TestWrapOpErr_NilPassesThrough(t *testing.T) {
	assert.NoError(t, wrapOpErr("Engine.Run", nil))
}

func TestWrapOpErr_ClassifiesOpserrByCode(t *testing.T) {
	cases := []struct {
		code string
		want string
	}{
		{opserr.CodeInputUnparsable, KindInput},
		{opserr.CodeUnknownDomain, KindInput},
		{opserr.CodeProviderTransient, KindProvider},
		{opserr.CodeProviderPermanent, KindProvider},
		{opserr.CodeRateLimited, KindProvider},
		{opserr.CodeCostCeiling, KindProvider},
		{opserr.CodeJudgementMalformed, KindJudgement},
		{opserr.CodePersistenceWrite, KindPersistence},
		{opserr.CodeCancelled, KindCancellation},
		{"SOMETHING_UNMAPPED", KindInternal},
	}
	for _, c := range cases {
		t.Run(c.code, func(t *testing.T) {
			src := opserr.New("judge", "evaluate", c.code, "boom")
			wrapped := wrapOpErr("Engine.Run", src)
			var engErr *Error
			require.True(t, errors.As(wrapped, &engErr))
			assert.Equal(t, c.want, engErr.Kind)
			assert.Equal(t, "Engine.Run", engErr.Op)
		})
	}
}

func TestWrapOpErr_ContextCancellationBecomesKindCancellation(t *testing.T) {
	wrapped := wrapOpErr("Engine.Run", context.Canceled)
	var engErr *Error
	require.True(t, errors.As(wrapped, &engErr))
	assert.Equal(t, KindCancellation, engErr.Kind)

	wrapped = wrapOpErr("Engine.Run", context.DeadlineExceeded)
	require.True(t, errors.As(wrapped, &engErr))
	assert.Equal(t, KindCancellation, engErr.Kind)
}

func TestWrapOpErr_UnrecognisedErrorBecomesKindInternal(t *testing.T) {
	wrapped := wrapOpErr("Engine.Run", errors.New("programmer error"))
	var engErr *Error
	require.True(t, errors.As(wrapped, &engErr))
	assert.Equal(t, KindInternal, engErr.Kind)
}

func TestNewConfigurationError_WrapsWithKindConfiguration(t *testing.T) {
	e := NewConfigurationError("NewEngine", ErrScenarioDirRequired)
	assert.Equal(t, KindConfiguration, e.Kind)
	assert.Equal(t, "NewEngine", e.Op)
	assert.ErrorIs(t, e, ErrScenarioDirRequired)
}

// recordingCloser counts Close calls and optionally returns an error, so
// tests can assert CloseWithLog always invokes Close exactly once and
// never panics regardless of the outcome.
type recordingCloser struct {
	calls int
	err   error
}

func (c *recordingCloser) Close() error {
	c.calls++
	return c.err
}

func TestCloseWithLog_NilCloserIsNoOp(t *testing.T) {
	CloseWithLog(nil, slog.Default(), "nothing")
}

func TestCloseWithLog_LogsFailureButDoesNotPanic(t *testing.T) {
	c := &recordingCloser{err: fmt.Errorf("disk full")}
	CloseWithLog(c, slog.Default(), "event log")
	assert.Equal(t, 1, c.calls)
}

func TestCloseWithLog_FallsBackToDefaultLoggerWhenNil(t *testing.T) {
	c := &recordingCloser{}
	CloseWithLog(c, nil, "event log")
	assert.Equal(t, 1, c.calls)
}
