package predictor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/trace"
)

// Digest summarises a batch of outputs and their judgements into the
// compact form the LLM risk estimator reasons over. Expanding a digest
// (see expand) adds the per-scenario feedback text that the compact form
// omits, for the confidence-gated re-run.
type Digest struct {
	FrameworkCounts map[string]int     `json:"framework_counts"`
	ToolUsage       map[string]int     `json:"tool_usage"`
	ErrorPatterns   []string           `json:"error_patterns"`
	MeanLatencyMS   float64            `json:"mean_latency_ms"`
	MeanScore       float64            `json:"mean_score"`
	PassRate        float64            `json:"pass_rate"`
	FailedScenarios []string           `json:"failed_scenarios"`
	expanded        bool
	feedback        []string
}

// buildDigest constructs the compact analysis digest from the outputs
// under evaluation and the judgements already produced for them.
func buildDigest(outputs []trace.Output, results []judge.Result) Digest {
	d := Digest{
		FrameworkCounts: map[string]int{},
		ToolUsage:       map[string]int{},
	}

	var latencySum float64
	for _, o := range outputs {
		d.FrameworkCounts[string(o.Framework)]++
		for _, step := range o.Trace {
			if step.Kind == trace.StepToolCall {
				name := toolName(step.Payload)
				d.ToolUsage[name]++
			}
		}
		if o.Metrics != nil {
			latencySum += float64(o.Metrics.LatencyMS)
		}
	}
	if len(outputs) > 0 {
		d.MeanLatencyMS = latencySum / float64(len(outputs))
	}

	var scoreSum float64
	var passed int
	seenErr := map[string]bool{}
	for _, r := range results {
		scoreSum += r.Score
		if r.Passed {
			passed++
		} else {
			d.FailedScenarios = append(d.FailedScenarios, r.ScenarioID)
			key := errorPattern(r.Feedback)
			if key != "" && !seenErr[key] {
				seenErr[key] = true
				d.ErrorPatterns = append(d.ErrorPatterns, key)
			}
		}
	}
	if len(results) > 0 {
		d.MeanScore = scoreSum / float64(len(results))
		d.PassRate = float64(passed) / float64(len(results))
	}

	sort.Strings(d.FailedScenarios)
	sort.Strings(d.ErrorPatterns)
	return d
}

// expand widens a digest with per-scenario feedback text, used for the
// one confidence-gated re-run when the compact digest yields confidence
// below threshold.
func (d Digest) expand(results []judge.Result) Digest {
	expanded := d
	expanded.expanded = true
	for _, r := range results {
		if !r.Passed {
			expanded.feedback = append(expanded.feedback, fmt.Sprintf("%s: %s", r.ScenarioID, r.Feedback))
		}
	}
	return expanded
}

func (d Digest) describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "frameworks: %v\n", d.FrameworkCounts)
	fmt.Fprintf(&b, "tool usage: %v\n", d.ToolUsage)
	fmt.Fprintf(&b, "mean latency ms: %.1f\n", d.MeanLatencyMS)
	fmt.Fprintf(&b, "mean judge score: %.3f\n", d.MeanScore)
	fmt.Fprintf(&b, "pass rate: %.3f\n", d.PassRate)
	if len(d.ErrorPatterns) > 0 {
		fmt.Fprintf(&b, "recurring error patterns: %s\n", strings.Join(d.ErrorPatterns, "; "))
	}
	if len(d.FailedScenarios) > 0 {
		fmt.Fprintf(&b, "failed scenarios: %s\n", strings.Join(d.FailedScenarios, ", "))
	}
	if d.expanded && len(d.feedback) > 0 {
		fmt.Fprintf(&b, "detailed feedback:\n%s\n", strings.Join(d.feedback, "\n"))
	}
	return b.String()
}

// completeness scores how much signal the digest actually carries,
// feeding into overall confidence: an empty digest, or one whose outputs
// carry only the generic (unrecognised) framework, is weaker evidence
// than a populated one with recognised frameworks.
func (d Digest) completeness() float64 {
	score := 0.0
	if len(d.FrameworkCounts) > 0 {
		score += 0.3
	}
	if len(d.ToolUsage) > 0 {
		score += 0.2
	}
	if len(d.ErrorPatterns) > 0 || d.PassRate == 1.0 {
		score += 0.2
	}
	unknown := d.FrameworkCounts[string(trace.FrameworkGeneric)]
	total := 0
	for _, c := range d.FrameworkCounts {
		total += c
	}
	if total > 0 && unknown == 0 {
		score += 0.3
	} else if total > 0 {
		score += 0.3 * (1 - float64(unknown)/float64(total))
	}
	if score > 1 {
		score = 1
	}
	return score
}

func toolName(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return "unknown"
	}
	if name, ok := m["name"].(string); ok && name != "" {
		return name
	}
	if name, ok := m["tool"].(string); ok && name != "" {
		return name
	}
	return "unknown"
}

// errorPattern reduces a feedback string to a short clustering key so
// repeated failures of the same kind collapse into one pattern entry.
func errorPattern(feedback string) string {
	feedback = strings.ToLower(strings.TrimSpace(feedback))
	if feedback == "" {
		return ""
	}
	words := strings.Fields(feedback)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}
