// Package judge is the dual-track judge engine: it evaluates normalised
// agent outputs against evaluation scenarios, either with bounded
// concurrent calls (fast track) or an async provider batch job (batch
// track), and produces immutable JudgementResults.
package judge

import "time"

// State is a scenario's position in the per-evaluation state machine:
// queued -> dispatched -> {succeeded | rate_limited->dispatched |
// transient_error->dispatched | permanent_error->failed}; in
// verification mode, succeeded -> verifying -> verified.
type State string

const (
	StateQueued           State = "queued"
	StateDispatched       State = "dispatched"
	StateSucceeded        State = "succeeded"
	StateRateLimited      State = "rate_limited"
	StateTransientError   State = "transient_error"
	StatePermanentError   State = "permanent_error"
	StateFailed           State = "failed"
	StateVerifying        State = "verifying"
	StateVerified         State = "verified"
)

// Result is the immutable outcome of evaluating one (scenario, output)
// pair. Invariant: Passed is true iff Score >= the scenario's effective
// pass threshold.
type Result struct {
	ScenarioID string  `json:"scenario_id"`
	OutputID   string  `json:"output_id"`
	Passed     bool    `json:"passed"`
	Score      float64 `json:"score"`
	Reward     float64 `json:"reward"`
	Feedback   string  `json:"feedback"`
	Evidence   []string `json:"evidence"`
	Confidence float64 `json:"confidence"`
	ModelID    string  `json:"model_id"`
	Latency    time.Duration `json:"latency"`
	CostUSD    float64 `json:"cost_usd"`

	// Verified is true when a low-confidence judgement was re-run
	// through the verification pass.
	Verified bool `json:"verified"`

	State State `json:"state"`
}

// BiasWarning flags a post-hoc bias diagnostic. These never mutate
// results; they are recorded alongside the aggregate summary.
type BiasWarning struct {
	Kind    string  `json:"kind"`
	Metric  float64 `json:"metric"`
	Message string  `json:"message"`
}

// Summary aggregates a completed evaluation run.
type Summary struct {
	Total      int           `json:"total"`
	Passed     int           `json:"passed"`
	PassRate   float64       `json:"pass_rate"`
	MeanScore  float64       `json:"mean_score"`
	MeanCost   float64       `json:"mean_cost"`
	Warnings   []BiasWarning `json:"warnings"`
}

// newSentinelResult builds the sentinel JudgementResult for an isolated
// scenario failure: passed=false, score=0, confidence=0, with a
// diagnostic feedback string. One failure never aborts the batch.
func newSentinelResult(scenarioID, outputID, reason string) Result {
	return Result{
		ScenarioID: scenarioID,
		OutputID:   outputID,
		Passed:     false,
		Score:      0,
		Reward:     -1,
		Feedback:   "evaluation failed: " + reason,
		Confidence: 0,
		State:      StateFailed,
	}
}
