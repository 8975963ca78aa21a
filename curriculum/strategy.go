package curriculum

import "context"

// StrategyRequest is the snapshot handed to a strategy provider: current
// curriculum state plus the most recent iteration summary.
type StrategyRequest struct {
	Domain      string             `json:"domain"`
	Iteration   int                `json:"iteration"`
	PassRates   map[string]float64 `json:"pass_rates"`
	Mastered    []string           `json:"mastered"`
	OverallRate float64            `json:"overall_rate"`
}

// StrategyResponse is the wire shape an out-of-process strategy provider
// returns: only a focus tag and rationale cross the boundary, and
// GRPCStrategyProvider pairs them with identityApply, which leaves
// outputs unchanged.
type StrategyResponse struct {
	FocusArea string `json:"focus_area"`
	Rationale string `json:"rationale"`
}

// StrategyProvider is the external collaborator the flywheel controller
// treats as a black box: given current state + summary, it returns an
// ImprovementStrategy. Implementations may be deterministic rewriters or
// LLM-backed; the controller only requires determinism for identical
// inputs and bounded latency.
type StrategyProvider interface {
	Choose(ctx context.Context, req StrategyRequest) (ImprovementStrategy, error)
}

// FuncStrategyProvider adapts a plain function to StrategyProvider, for
// in-process deterministic rewriters and tests.
type FuncStrategyProvider func(ctx context.Context, req StrategyRequest) (ImprovementStrategy, error)

func (f FuncStrategyProvider) Choose(ctx context.Context, req StrategyRequest) (ImprovementStrategy, error) {
	return f(ctx, req)
}
