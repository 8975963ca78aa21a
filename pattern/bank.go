package pattern

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arcreliability/engine/judge"
)

// Bank is the pattern learner and scenario bank (C7): observes failures,
// clusters them into Patterns, and proposes weighted scenario sets for
// the next curriculum iteration. Safe for concurrent use.
type Bank struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
	nextID   int
	now      func() time.Time
}

// New constructs an empty Bank. now is injectable for deterministic
// tests; production callers should pass time.Now.
func New(now func() time.Time) *Bank {
	if now == nil {
		now = time.Now
	}
	return &Bank{patterns: map[string]*Pattern{}, now: now}
}

// Observe ingests a batch of judgement results for the given domain,
// extracting failures and clustering them against existing patterns.
// Re-observing a known pattern increments its count rather than creating
// a duplicate; observing it under a second distinct domain promotes it
// to TierLongTerm.
func (b *Bank) Observe(domain string, results []judge.Result, scenarioCategory map[string]string, scenarioFramework map[string]string) {
	failures := make([]Failure, 0)
	for _, r := range results {
		if r.Passed {
			continue
		}
		failures = append(failures, Failure{
			ScenarioID: r.ScenarioID,
			Category:   scenarioCategory[r.ScenarioID],
			Framework:  scenarioFramework[r.ScenarioID],
			Evidence:   r.Evidence,
		})
	}
	b.observeFailures(domain, failures)
}

func (b *Bank) observeFailures(domain string, failures []Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range failures {
		tokens := tokenize(f.Evidence)
		match := b.findMatch(f.Category, f.Framework, tokens)
		now := b.now()
		if match != nil {
			match.Count++
			match.LastSeen = now
			if !containsStr(match.ScenarioIDs, f.ScenarioID) {
				match.ScenarioIDs = append(match.ScenarioIDs, f.ScenarioID)
			}
			match.Tokens = unionTokens(match.Tokens, tokens)
			if domain != "" && !containsStr(match.Domains, domain) {
				match.Domains = append(match.Domains, domain)
			}
			continue
		}
		b.nextID++
		p := &Pattern{
			ID:          patternID(b.nextID),
			Category:    f.Category,
			Framework:   f.Framework,
			ScenarioIDs: []string{f.ScenarioID},
			Tokens:      tokens,
			Count:       1,
			FirstSeen:   now,
			LastSeen:    now,
		}
		if domain != "" {
			p.Domains = []string{domain}
		}
		b.patterns[p.ID] = p
	}
}

// Working returns the patterns currently in the ephemeral working tier.
func (b *Bank) Working() []Pattern { return b.tier(TierWorking) }

// Mission returns the patterns that have been promoted to the
// run-scoped mission tier.
func (b *Bank) Mission() []Pattern { return b.tier(TierMission) }

// LongTerm returns the patterns recognised across more than one domain.
func (b *Bank) LongTerm() []Pattern { return b.tier(TierLongTerm) }

func (b *Bank) tier(t Tier) []Pattern {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Pattern
	for _, p := range b.patterns {
		if p.Tier() == t {
			out = append(out, *p)
		}
	}
	return out
}

// findMatch must be called with b.mu held.
func (b *Bank) findMatch(category, framework string, tokens []string) *Pattern {
	for _, p := range b.patterns {
		if p.Category != category || p.Framework != framework {
			continue
		}
		if jaccard(p.Tokens, tokens) >= overlapThreshold {
			return p
		}
	}
	return nil
}

// EmergingPatterns returns every known pattern, most frequent first.
func (b *Bank) EmergingPatterns() []Pattern {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Pattern, 0, len(b.patterns))
	for _, p := range b.patterns {
		out = append(out, *p)
	}
	// insertion sort by descending count, stable on ID for determinism.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && (out[j].Count > out[j-1].Count ||
			(out[j].Count == out[j-1].Count && out[j].ID < out[j-1].ID)); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// WeightedScenarios overlays pattern-derived boosts onto a base sampling
// weight map: scenarios implicated by a boosted pattern receive
// +patternBoost, scenarios untouched by any pattern keep their base
// weight unchanged.
func (b *Bank) WeightedScenarios(base map[string]float64, patternBoost float64) map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]float64, len(base))
	for id, w := range base {
		out[id] = w
	}
	for _, p := range b.patterns {
		if !p.Boosted() {
			continue
		}
		for _, sid := range p.ScenarioIDs {
			if _, ok := out[sid]; ok {
				out[sid] += patternBoost
			}
		}
	}
	return out
}

func tokenize(evidence []string) []string {
	seen := map[string]bool{}
	var tokens []string
	for _, e := range evidence {
		for _, w := range strings.Fields(strings.ToLower(e)) {
			w = strings.Trim(w, ".,;:!?\"'()")
			if w == "" || seen[w] {
				continue
			}
			seen[w] = true
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func unionTokens(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range append(append([]string{}, a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// jaccard computes |A∩B| / |A∪B| over two token sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := map[string]int{}
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	var inter, union int
	for _, v := range set {
		union++
		if v == 3 {
			inter++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func patternID(n int) string {
	return fmt.Sprintf("pattern-%d", n)
}
