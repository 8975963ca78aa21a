package curriculum

import (
	"context"
	"log/slog"

	"github.com/arcreliability/engine/opserr"
)

// Config controls one flywheel run.
type Config struct {
	MaxIterations    int
	PassRateTarget   float64
	PlateauDelta     float64
	Epsilon          float64
	MasteryThreshold float64
	BatchSize        int
	CostBudgetUSD    float64
}

func (c Config) withDefaults() Config {
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.PassRateTarget == 0 {
		c.PassRateTarget = DefaultPassRateTarget
	}
	if c.PlateauDelta == 0 {
		c.PlateauDelta = DefaultPlateauDelta
	}
	if c.Epsilon == 0 {
		c.Epsilon = DefaultExplorationEps
	}
	if c.MasteryThreshold == 0 {
		c.MasteryThreshold = DefaultMasteryThreshold
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	return c
}

// Evaluator runs one iteration's judge pass for the chosen curriculum
// categories and returns the resulting per-category pass rates and cost.
// strategy is the improvement strategy chosen at the end of the prior
// iteration (zero value on the first iteration); an Evaluator that wants
// to act on it applies strategy.Apply to its output set before judging.
// The controller is agnostic to how evaluation actually happens (fast
// track, batch track, scenario selection) — that's composed by the
// caller wiring judge/scenario/pattern together.
type Evaluator interface {
	Evaluate(ctx context.Context, categories []string, strategy ImprovementStrategy) (IterationSummary, error)
}

// Checkpointer persists curriculum state between iterations, enabling
// crash recovery: on restart the most recent checkpoint is loaded and
// the interrupted iteration is replayed from scratch.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, state *State) error
	LoadCheckpoint(ctx context.Context, domain string) (*State, error)
}

// Controller is the ACL flywheel controller (C8).
type Controller struct {
	cfg      Config
	bandit   *bandit
	eval     Evaluator
	strategy StrategyProvider
	ckpt     Checkpointer
	logger   *slog.Logger
	rng      func() float64
}

// New constructs a flywheel controller. rng is injectable for
// deterministic tests; nil uses the package's default sequence.
func New(cfg Config, eval Evaluator, strategy StrategyProvider, ckpt Checkpointer, logger *slog.Logger, rng func() float64) *Controller {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		bandit:   newBandit(cfg.Epsilon, cfg.MasteryThreshold, DefaultSmoothingAlpha, rng),
		eval:     eval,
		strategy: strategy,
		ckpt:     ckpt,
		logger:   logger,
		rng:      rng,
	}
}

// Run executes the flywheel loop for a domain, resuming from the most
// recent checkpoint if the checkpointer has one. categories seeds the
// curriculum with every category the scenario bank knows about for this
// domain (categories already present in a resumed checkpoint are left
// untouched). boost supplies the pattern learner's per-category
// sampling boost.
func (c *Controller) Run(ctx context.Context, domain string, categories []string, boost map[string]float64) (*State, Report, error) {
	state, err := c.loadOrInit(ctx, domain)
	if err != nil {
		return nil, Report{}, err
	}
	for _, cat := range categories {
		if _, ok := state.Categories[cat]; !ok {
			state.Categories[cat] = &CategoryStats{Category: cat}
		}
	}

	var history []float64
	var lastStrategy ImprovementStrategy
	reason := ReasonMaxIterations
	complete := false

	for state.Iteration < c.cfg.MaxIterations {
		select {
		case <-ctx.Done():
			if err := c.checkpoint(ctx, state); err != nil {
				c.logger.Error("checkpoint failed on cancellation", "error", err)
			}
			return state, c.report(state, history, ReasonCancelled, false), nil
		default:
		}

		if c.allMastered(state) {
			complete = true
			reason = ReasonTargetReached
			break
		}

		weights := c.bandit.weights(state.Categories, boost)
		categories := c.bandit.sample(weights, c.cfg.BatchSize)
		if len(categories) == 0 {
			complete = true
			reason = ReasonTargetReached
			break
		}

		summary, err := c.eval.Evaluate(ctx, categories, lastStrategy)
		if err != nil {
			if err := c.checkpoint(ctx, state); err != nil {
				c.logger.Error("checkpoint failed after evaluation error", "error", err)
			}
			return state, c.report(state, history, ReasonFatalError, false), opserr.New("curriculum", "run",
				opserr.CodeProviderTransient, "iteration evaluation failed").WithCause(err)
		}

		state.CumulativeCost += summary.Cost
		for cat, pr := range summary.PerCategory {
			stats, ok := state.Categories[cat]
			if !ok {
				stats = &CategoryStats{Category: cat}
				state.Categories[cat] = stats
			}
			c.bandit.updateCategory(stats, pr)
		}

		history = append(history, summary.OverallPassRate)
		state.Iteration++

		if err := c.checkpoint(ctx, state); err != nil {
			return state, c.report(state, history, ReasonFatalError, false), opserr.New("curriculum", "run",
				opserr.CodePersistenceWrite, "checkpoint write failed").WithCause(err)
		}

		if summary.OverallPassRate >= c.cfg.PassRateTarget {
			complete = true
			reason = ReasonTargetReached
			break
		}
		if state.CumulativeCost > c.cfg.CostBudgetUSD && c.cfg.CostBudgetUSD > 0 {
			reason = ReasonCostBudget
			break
		}
		if c.plateaued(state, summary.OverallPassRate) {
			reason = ReasonPlateau
			break
		}

		strategyResp, err := c.strategy.Choose(ctx, StrategyRequest{
			Domain:      domain,
			Iteration:   state.Iteration,
			PassRates:   summary.PerCategory,
			Mastered:    state.MasteredCategories(),
			OverallRate: summary.OverallPassRate,
		})
		if err != nil {
			if err := c.checkpoint(ctx, state); err != nil {
				c.logger.Error("checkpoint failed after strategy error", "error", err)
			}
			return state, c.report(state, history, ReasonFatalError, false), opserr.New("curriculum", "run",
				opserr.CodeProviderTransient, "strategy provider failed").WithCause(err)
		}
		state.LastStrategy = strategyResp.FocusArea
		lastStrategy = strategyResp
	}

	return state, c.report(state, history, reason, complete), nil
}

func (c *Controller) loadOrInit(ctx context.Context, domain string) (*State, error) {
	if c.ckpt != nil {
		if s, err := c.ckpt.LoadCheckpoint(ctx, domain); err == nil && s != nil {
			return s, nil
		}
	}
	return NewState(domain), nil
}

func (c *Controller) checkpoint(ctx context.Context, state *State) error {
	if c.ckpt == nil {
		return nil
	}
	return c.ckpt.SaveCheckpoint(ctx, state)
}

func (c *Controller) allMastered(state *State) bool {
	if len(state.Categories) == 0 {
		return false
	}
	for _, cat := range state.Categories {
		if !cat.Mastered {
			return false
		}
	}
	return true
}

// plateaued implements the two-consecutive-iteration |ΔPR| < plateauDelta
// termination condition.
func (c *Controller) plateaued(state *State, overallPassRate float64) bool {
	delta := overallPassRate - state.plateauPassRate
	if delta < 0 {
		delta = -delta
	}
	state.plateauPassRate = overallPassRate
	if delta < c.cfg.PlateauDelta {
		state.consecutivePlateau++
	} else {
		state.consecutivePlateau = 0
	}
	return state.consecutivePlateau >= consecutiveForPlateau
}

func (c *Controller) report(state *State, history []float64, reason TerminationReason, complete bool) Report {
	return Report{
		Iterations:         len(history),
		PassRateHistory:    history,
		MasteredCategories: state.MasteredCategories(),
		TotalCost:          state.CumulativeCost,
		TerminationReason:  reason,
		Complete:           complete,
	}
}
