package judge

import (
	"math"
	"strings"

	"github.com/arcreliability/engine/trace"
)

const (
	lengthBiasThreshold = 0.3
	styleBiasStdThreshold = 0.15
)

// checkBiases computes the two post-hoc diagnostics over a completed
// result set. These never mutate results; callers record the warnings
// alongside the aggregate summary.
func checkBiases(results []Result, outputs map[string]trace.Output) []BiasWarning {
	var warnings []BiasWarning

	if w := checkLengthBias(results, outputs); w != nil {
		warnings = append(warnings, *w)
	}
	if w := checkStyleBias(results, outputs); w != nil {
		warnings = append(warnings, *w)
	}
	return warnings
}

// checkLengthBias computes the Pearson correlation between score and
// output length; |ρ| > 0.3 surfaces a warning.
func checkLengthBias(results []Result, outputs map[string]trace.Output) *BiasWarning {
	var lengths, scores []float64
	for _, r := range results {
		out, ok := outputs[r.OutputID]
		if !ok {
			continue
		}
		lengths = append(lengths, float64(len(out.Response)))
		scores = append(scores, r.Score)
	}
	if len(lengths) < 2 {
		return nil
	}

	rho := pearsonCorrelation(lengths, scores)
	if math.Abs(rho) > lengthBiasThreshold {
		return &BiasWarning{
			Kind:    "LengthBias",
			Metric:  rho,
			Message: "score correlates with output length beyond the acceptable threshold",
		}
	}
	return nil
}

// checkStyleBias buckets outputs into style clusters (presence of lists,
// code, or numerics) and flags when the variance of mean score across
// clusters exceeds 0.15 std.
func checkStyleBias(results []Result, outputs map[string]trace.Output) *BiasWarning {
	clusterScores := make(map[string][]float64)
	for _, r := range results {
		out, ok := outputs[r.OutputID]
		if !ok {
			continue
		}
		clusterScores[styleCluster(out.Response)] = append(clusterScores[styleCluster(out.Response)], r.Score)
	}
	if len(clusterScores) < 2 {
		return nil
	}

	var means []float64
	for _, scores := range clusterScores {
		means = append(means, mean(scores))
	}

	std := stddev(means)
	if std > styleBiasStdThreshold {
		return &BiasWarning{
			Kind:    "StyleBias",
			Metric:  std,
			Message: "mean score varies across output-style clusters beyond the acceptable threshold",
		}
	}
	return nil
}

// styleCluster classifies an output's surface style. Order matters:
// code fences take priority over list markers, which take priority over
// a numeric-heavy classification.
func styleCluster(text string) string {
	switch {
	case strings.Contains(text, "```"):
		return "code"
	case strings.Contains(text, "\n- ") || strings.Contains(text, "\n* "):
		return "list"
	case countDigits(text) > len(text)/10:
		return "numeric"
	default:
		return "prose"
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sumSq float64
	for _, x := range xs {
		sumSq += (x - m) * (x - m)
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func pearsonCorrelation(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}
	mx, my := mean(xs), mean(ys)

	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
