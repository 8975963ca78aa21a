// Package curriculum is the ACL flywheel controller (C8): a stateful
// iteration loop that picks a curriculum of scenario categories via a
// bandit scheduler, evaluates, applies an improvement strategy, and
// decides when to stop.
package curriculum

import "time"

// Defaults mirror the configuration options named in the system
// contract (rule/llm weights live in the predictor package).
const (
	DefaultMaxIterations    = 30
	DefaultPassRateTarget   = 0.91
	DefaultPlateauDelta     = 0.005
	DefaultExplorationEps   = 0.05
	DefaultMasteryThreshold = 0.95
	DefaultSmoothingAlpha   = 0.3

	// consecutiveForMastery / consecutiveForPlateau count the iterations
	// a condition must hold before it takes effect.
	consecutiveForMastery = 2
	consecutiveForPlateau = 2
)

// TerminationReason names why a flywheel run stopped.
type TerminationReason string

const (
	ReasonTargetReached TerminationReason = "target_reached"
	ReasonMaxIterations TerminationReason = "max_iterations"
	ReasonCostBudget    TerminationReason = "cost_budget"
	ReasonPlateau       TerminationReason = "plateau"
	ReasonCancelled     TerminationReason = "cancelled"
	ReasonFatalError    TerminationReason = "fatal_error"
)

// CategoryStats tracks one category's per-iteration bandit bookkeeping.
type CategoryStats struct {
	Category           string    `json:"category"`
	PassRateHistory    []float64 `json:"pass_rate_history"`
	LearningProgress   float64   `json:"learning_progress"`
	Mastered           bool      `json:"mastered"`
	consecutiveMastery int
}

// lastPassRate returns the most recent recorded pass rate, or 0 if none.
func (c CategoryStats) lastPassRate() float64 {
	if len(c.PassRateHistory) == 0 {
		return 0
	}
	return c.PassRateHistory[len(c.PassRateHistory)-1]
}

// State is the CurriculumState data-model entity: owned exclusively by
// the controller, mutated in place each iteration, persisted on every
// transition.
type State struct {
	Domain          string                   `json:"domain"`
	Iteration       int                      `json:"iteration"`
	Categories      map[string]*CategoryStats `json:"categories"`
	LastStrategy    string                   `json:"last_strategy"`
	CumulativeCost  float64                  `json:"cumulative_cost"`
	WallClock       time.Duration            `json:"wall_clock"`
	consecutivePlateau int
	plateauPassRate    float64
}

// NewState initialises curriculum state for a domain at iteration 0.
func NewState(domain string) *State {
	return &State{Domain: domain, Categories: map[string]*CategoryStats{}}
}

// FocusCategories returns the top-k categories by learning progress
// among those not yet mastered, used for reporting.
func (s *State) FocusCategories(k int) []string {
	cats := make([]*CategoryStats, 0, len(s.Categories))
	for _, c := range s.Categories {
		if !c.Mastered {
			cats = append(cats, c)
		}
	}
	for i := 1; i < len(cats); i++ {
		for j := i; j > 0 && cats[j].LearningProgress > cats[j-1].LearningProgress; j-- {
			cats[j], cats[j-1] = cats[j-1], cats[j]
		}
	}
	if k > len(cats) {
		k = len(cats)
	}
	out := make([]string, 0, k)
	for _, c := range cats[:k] {
		out = append(out, c.Category)
	}
	return out
}

// MasteredCategories returns the set of categories currently mastered.
func (s *State) MasteredCategories() []string {
	var out []string
	for name, c := range s.Categories {
		if c.Mastered {
			out = append(out, name)
		}
	}
	return out
}

// ImprovementStrategy is the outcome of a strategy-provider call: a
// focus-tagged rationale plus an Apply function rewriting outputs.
type ImprovementStrategy struct {
	FocusArea string
	Rationale string
	Apply     func(outputs []string, feedback []string) []string
}

// IterationSummary is the per-category + aggregate pass-rate snapshot a
// strategy provider and the bandit scheduler both consume.
type IterationSummary struct {
	OverallPassRate float64
	PerCategory     map[string]float64
	Cost            float64
}

// Report is the FlywheelReport output contract: per-iteration pass
// rates, curriculum trace, total cost, and termination reason.
type Report struct {
	Iterations        int
	PassRateHistory   []float64
	MasteredCategories []string
	TotalCost         float64
	TerminationReason TerminationReason
	Complete          bool
}
