// Package opserr provides structured error types shared by every engine
// component.
//
// # Overview
//
// Errors carry a component, an operation, a stable code, an optional
// cause, and a classification used for recovery planning:
//
//   - CodeInputUnparsable / CodeUnknownDomain: semantic, not retried.
//   - CodeProviderTransient / CodeRateLimited: transient, retried with backoff.
//   - CodeProviderPermanent / CodeCostCeiling: permanent, fatal for the run.
//   - CodeJudgementMalformed: semantic, retried once with a tighter prompt.
//   - CodePersistenceWrite: permanent, fatal for the run.
//   - CodeCancelled: permanent, the run stops cleanly.
//
// # Usage
//
//	err := opserr.New("provider", "call", opserr.CodeRateLimited, "token bucket exhausted").
//	    WithCause(cause).
//	    WithDetails(map[string]any{"provider": "anthropic", "model": "claude-haiku"})
//
//	if errors.Is(err, opserr.ErrRateLimited) {
//	    // back off and retry within the bounded wait
//	}
//
//	var opErr *opserr.Error
//	if errors.As(err, &opErr) {
//	    fmt.Printf("component=%s code=%s class=%s\n", opErr.Component, opErr.Code, opErr.Class)
//	}
package opserr
