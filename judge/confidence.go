package judge

import "math"

// defaultVerificationThreshold (τ) is the confidence floor below which a
// judgement is sent through the verification pass. Matches the
// recognised "verification_threshold" config option, default 0.6.
const defaultVerificationThreshold = 0.6

// calibrateFromLogprobs computes a softmax-margin confidence from the
// PASS/FAIL decision token's logprobs, when the provider returned them.
// A larger margin between the two candidate probabilities means the
// model was more decisive.
func calibrateFromLogprobs(passLogProb, failLogProb float64) float64 {
	passP := math.Exp(passLogProb)
	failP := math.Exp(failLogProb)
	sum := passP + failP
	if sum == 0 {
		return 0
	}
	margin := math.Abs(passP-failP) / sum
	return margin
}

// calibrateFromSelfConsistency is the fallback confidence heuristic used
// when the provider does not return decision-token logprobs. It compares
// the primary judgement's pass/fail decision against a cheap secondary
// sampling pass at higher temperature: full agreement yields high
// confidence, disagreement yields low confidence, both scaled slightly
// by how far the two scores are from each other so a near-miss on score
// (e.g. 0.52 vs 0.48, same decision) doesn't read as fully confident.
func calibrateFromSelfConsistency(primaryPassed, secondaryPassed bool, primaryScore, secondaryScore float64) float64 {
	scoreAgreement := 1 - math.Min(1, math.Abs(primaryScore-secondaryScore))
	if primaryPassed == secondaryPassed {
		return 0.6 + 0.4*scoreAgreement
	}
	return 0.3 * scoreAgreement
}

// findDecisionLogprobs scans a logprob list for PASS/FAIL tokens. Leading
// whitespace is stripped first, since providers often tokenize
// "PASS"/"FAIL" with it; a token then matches on its first four
// characters being exactly "PASS"/"pass" or "FAIL"/"fail" (mixed case
// such as "Pass" does not match).
func findDecisionLogprobs(logprobs []tokenLogprob) (passLP, failLP float64, found bool) {
	for _, lp := range logprobs {
		switch normalizeDecisionToken(lp.Token) {
		case "pass":
			passLP = lp.LogProb
			found = true
		case "fail":
			failLP = lp.LogProb
			found = true
		}
	}
	return passLP, failLP, found
}

// tokenLogprob mirrors provider.Logprob without importing the provider
// package's Response type directly into the confidence calculations,
// keeping this file pure and independently testable.
type tokenLogprob struct {
	Token   string
	LogProb float64
}

func normalizeDecisionToken(token string) string {
	t := token
	for len(t) > 0 && (t[0] == ' ' || t[0] == '\n' || t[0] == '\t') {
		t = t[1:]
	}
	switch {
	case len(t) >= 4 && (t[:4] == "PASS" || t[:4] == "pass"):
		return "pass"
	case len(t) >= 4 && (t[:4] == "FAIL" || t[:4] == "fail"):
		return "fail"
	default:
		return ""
	}
}
