package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/arcreliability/engine/opserr"
)

// Sentinel errors for conditions the engine facade itself detects,
// before any component gets a chance to produce an opserr.Error.
var (
	// ErrNoBackendsConfigured indicates NewEngine was called without any
	// provider.Backend to route judge/predictor calls through.
	ErrNoBackendsConfigured = errors.New("no provider backends configured")

	// ErrDomainRequired indicates a run was started without a domain.
	ErrDomainRequired = errors.New("run options must name a domain")

	// ErrRunCancelled indicates the caller's context was cancelled mid-run.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrScenarioDirRequired indicates NewEngine was called without a
	// scenario bundle directory.
	ErrScenarioDirRequired = errors.New("scenario directory is required")
)

// Error kinds categorise failures crossing the Engine.Run boundary.
// These map onto the taxonomy every component already raises as
// opserr.Error codes; Kind is the coarser, caller-facing grouping.
const (
	KindInput         = "input"
	KindProvider      = "provider"
	KindJudgement     = "judgement"
	KindPersistence   = "persistence"
	KindCancellation  = "cancellation"
	KindConfiguration = "configuration"
	KindInternal      = "internal"
)

// Error is the engine facade's structured error type: the operation
// that failed, a coarse Kind, the underlying error (often an
// *opserr.Error from whichever component raised it first), and
// optional context for the caller.
type Error struct {
	// Op is the operation that failed (e.g. "Engine.Run", "NewEngine").
	Op string

	// Kind categorises the error (KindInput, KindProvider, ...).
	Kind string

	// Err is the underlying error.
	Err error

	// Context carries additional debugging information.
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("engine: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("engine: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind (and Op when the target specifies one), then
// delegates to the wrapped error so errors.Is(err, opserr.ErrCostCeiling)
// still works through an *Error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy of e with ctx merged into Context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewConfigurationError wraps err as a KindConfiguration engine.Error.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// wrapOpErr classifies err against the opserr taxonomy and wraps it as
// an engine.Error for the Run boundary. Non-opserr errors (context
// cancellation, programmer errors) fall back to KindInternal.
func wrapOpErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *opserr.Error
	if errors.As(err, &opErr) {
		return &Error{Op: op, Kind: kindForCode(opErr.Code), Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, Kind: KindCancellation, Err: err}
	}
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

func kindForCode(code string) string {
	switch code {
	case opserr.CodeInputUnparsable, opserr.CodeUnknownDomain:
		return KindInput
	case opserr.CodeProviderTransient, opserr.CodeProviderPermanent, opserr.CodeRateLimited, opserr.CodeCostCeiling:
		return KindProvider
	case opserr.CodeJudgementMalformed:
		return KindJudgement
	case opserr.CodePersistenceWrite:
		return KindPersistence
	case opserr.CodeCancelled:
		return KindCancellation
	default:
		return KindInternal
	}
}

// CloseWithLog closes closer and logs any error at warning level,
// intended for defer statements where a cleanup failure should not be
// silently dropped. If logger is nil, slog.Default() is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource", "resource", name, "error", err)
	}
}
