package curriculum

import (
	"math"
)

// bandit computes per-category sampling weights and draws a curriculum
// batch by weighted sampling without replacement.
type bandit struct {
	epsilon          float64
	masteryThreshold float64
	alpha            float64
	rng              func() float64
}

func newBandit(epsilon, masteryThreshold, alpha float64, rng func() float64) *bandit {
	if epsilon == 0 {
		epsilon = DefaultExplorationEps
	}
	if masteryThreshold == 0 {
		masteryThreshold = DefaultMasteryThreshold
	}
	if alpha == 0 {
		alpha = DefaultSmoothingAlpha
	}
	if rng == nil {
		rng = deterministicSequence()
	}
	return &bandit{epsilon: epsilon, masteryThreshold: masteryThreshold, alpha: alpha, rng: rng}
}

// updateCategory folds a new pass-rate observation into a category's
// stats: TD-error learning progress with exponential smoothing, and the
// two-consecutive-iteration mastery flag.
func (b *bandit) updateCategory(c *CategoryStats, newPassRate float64) {
	prev := c.lastPassRate()
	tdError := math.Abs(newPassRate - prev)
	if len(c.PassRateHistory) == 0 {
		c.LearningProgress = tdError
	} else {
		c.LearningProgress = b.alpha*tdError + (1-b.alpha)*c.LearningProgress
	}
	c.PassRateHistory = append(c.PassRateHistory, newPassRate)

	if newPassRate >= b.masteryThreshold {
		c.consecutiveMastery++
	} else {
		c.consecutiveMastery = 0
	}
	c.Mastered = c.consecutiveMastery >= consecutiveForMastery
}

// weights computes w_c = (1 - mastered_c) * (epsilon + LP_c + boost_c)
// for every category, returning an unnormalised map.
func (b *bandit) weights(categories map[string]*CategoryStats, boost map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(categories))
	for name, c := range categories {
		if c.Mastered {
			out[name] = 0
			continue
		}
		out[name] = b.epsilon + c.LearningProgress + boost[name]
	}
	return out
}

// sample draws n categories by weighted sampling without replacement.
// If every category is mastered (all weights zero), returns nil —
// callers treat this as a termination signal, not an error.
func (b *bandit) sample(weights map[string]float64, n int) []string {
	remaining := make(map[string]float64, len(weights))
	for k, v := range weights {
		remaining[k] = v
	}

	var out []string
	for len(out) < n && len(remaining) > 0 {
		var total float64
		for _, w := range remaining {
			total += w
		}
		if total <= 0 {
			break
		}

		names := sortedKeys(remaining)
		target := b.rng() * total
		var cum float64
		chosen := names[len(names)-1]
		for _, name := range names {
			cum += remaining[name]
			if target <= cum {
				chosen = name
				break
			}
		}
		out = append(out, chosen)
		delete(remaining, chosen)
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// deterministicSequence is the default rng when none is supplied: a
// fixed low-discrepancy sequence, good enough for tests and for callers
// that don't care about sampling randomness but do want determinism.
func deterministicSequence() func() float64 {
	state := 0.0
	return func() float64 {
		state += 0.61803398875
		if state >= 1 {
			state -= 1
		}
		return state
	}
}
