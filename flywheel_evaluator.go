package engine

import (
	"context"

	"github.com/arcreliability/engine/curriculum"
	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/pattern"
	"github.com/arcreliability/engine/scenario"
	"github.com/arcreliability/engine/store"
	"github.com/arcreliability/engine/trace"
)

// flywheelEvaluator adapts the judge engine into curriculum.Evaluator:
// one iteration means rewriting the previous iteration's failing outputs
// with the chosen strategy's Apply (when it has one), filtering the
// bundle down to the chosen categories, re-judging the run's output set,
// and folding the results back into cost accounting, persistence, and
// the pattern bank.
type flywheelEvaluator struct {
	judgeEng     *judge.Engine
	bank         *pattern.Bank
	domain       string
	bundle       *scenario.Bundle
	outputs      []trace.Output
	eventLog     *store.EventLog
	ledger       *store.CostLedger
	lastFeedback map[string]string
}

func (f *flywheelEvaluator) Evaluate(ctx context.Context, categories []string, strategy curriculum.ImprovementStrategy) (curriculum.IterationSummary, error) {
	if strategy.Apply != nil && len(f.lastFeedback) > 0 {
		f.applyStrategy(strategy)
	}

	scenarios := f.bundle.Filter(categories, nil, nil)

	results, summary, err := f.judgeEng.Evaluate(ctx, scenarios, f.outputs, judge.ModeAuto)
	if err != nil {
		return curriculum.IterationSummary{}, err
	}

	for _, r := range results {
		if err := f.eventLog.Append(store.EventJudgement, r); err != nil {
			return curriculum.IterationSummary{}, err
		}
	}

	cost := 0.0
	for _, r := range results {
		cost += r.CostUSD
	}
	if err := f.ledger.Record(cost, "flywheel_iteration"); err != nil {
		return curriculum.IterationSummary{}, err
	}

	categoryByScenario := make(map[string]string, len(scenarios))
	for _, s := range scenarios {
		categoryByScenario[s.ID] = s.Category
	}
	frameworkByOutput := make(map[string]string, len(f.outputs))
	for _, o := range f.outputs {
		frameworkByOutput[o.ID] = string(o.Framework)
	}
	f.bank.Observe(f.domain, results, categoryByScenario, frameworkByOutput)

	f.lastFeedback = make(map[string]string, len(results))
	for _, r := range results {
		if !r.Passed {
			f.lastFeedback[r.OutputID] = r.Feedback
		}
	}

	perCategory := perCategoryPassRate(results, categoryByScenario)

	return curriculum.IterationSummary{
		OverallPassRate: summary.PassRate,
		PerCategory:     perCategory,
		Cost:            cost,
	}, nil
}

// applyStrategy rewrites each failing output's response in place using
// the prior iteration's feedback for that output, so the next judge pass
// evaluates the improved response rather than replaying the same
// failure forever.
func (f *flywheelEvaluator) applyStrategy(strategy curriculum.ImprovementStrategy) {
	contents := make([]string, len(f.outputs))
	feedback := make([]string, len(f.outputs))
	for i, o := range f.outputs {
		contents[i] = o.Response
		feedback[i] = f.lastFeedback[o.ID]
	}

	rewritten := strategy.Apply(contents, feedback)
	if len(rewritten) != len(f.outputs) {
		return
	}
	for i := range f.outputs {
		f.outputs[i].Response = rewritten[i]
	}
}

func perCategoryPassRate(results []judge.Result, categoryByScenario map[string]string) map[string]float64 {
	passed := make(map[string]int)
	total := make(map[string]int)
	for _, r := range results {
		cat := categoryByScenario[r.ScenarioID]
		total[cat]++
		if r.Passed {
			passed[cat]++
		}
	}
	out := make(map[string]float64, len(total))
	for cat, n := range total {
		if n == 0 {
			continue
		}
		out[cat] = float64(passed[cat]) / float64(n)
	}
	return out
}
