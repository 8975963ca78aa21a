package predictor

import "math"

// calibrateFromLogprobs mirrors the judge engine's softmax-margin
// calibration: the further apart the risk-decision token's competing
// logprobs are, the more confident the estimate.
func calibrateFromLogprobs(riskLP, safeLP float64) float64 {
	riskP := math.Exp(riskLP)
	safeP := math.Exp(safeLP)
	denom := riskP + safeP
	if denom == 0 {
		return 0
	}
	margin := math.Abs(riskP-safeP) / denom
	return margin
}

// overallConfidence folds the logprob margin (when available), digest
// completeness, and known-framework recognition into a single figure.
// Each term contributes at most its weight; an unavailable logprob
// margin is simply dropped rather than treated as zero evidence, so a
// digest-only estimate isn't unfairly penalised.
func overallConfidence(logprobMargin *float64, completeness float64, knownFrameworkFraction float64) float64 {
	var sum, weight float64

	if logprobMargin != nil {
		sum += *logprobMargin * 0.5
		weight += 0.5
	}

	sum += completeness * 0.3
	weight += 0.3

	sum += knownFrameworkFraction * 0.2
	weight += 0.2

	if weight == 0 {
		return 0
	}
	return sum / weight
}
