package predictor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arcreliability/engine/opserr"
	"github.com/arcreliability/engine/provider"
)

// riskResponse is the expected JSON shape from the risk-estimation call.
type riskResponse struct {
	RiskScore float64 `json:"risk_score"`
	Rationale string  `json:"rationale"`
}

// parseRiskResponse mirrors the judge engine's fence-stripping,
// brace-scanning JSON extraction.
func parseRiskResponse(content string) (riskResponse, error) {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return riskResponse{}, opserr.New("predictor", "parse", opserr.CodeJudgementMalformed,
			"no JSON object found in risk estimator response").
			WithDetails(map[string]any{"content": content})
	}

	var resp riskResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &resp); err != nil {
		return riskResponse{}, opserr.New("predictor", "parse", opserr.CodeJudgementMalformed,
			"risk estimator response is not valid JSON").WithCause(err).
			WithDetails(map[string]any{"content": content})
	}

	if resp.RiskScore < 0 || resp.RiskScore > 1 {
		return riskResponse{}, opserr.New("predictor", "parse", opserr.CodeJudgementMalformed,
			fmt.Sprintf("risk score %.3f is outside [0,1]", resp.RiskScore))
	}

	return resp, nil
}

// findDecisionLogprobs scans returned logprobs for the final
// RISK_DECISION token pair, mirroring the judge engine's PASS/FAIL scan.
func findDecisionLogprobs(logprobs []provider.Logprob) (riskLP, safeLP float64, ok bool) {
	for _, lp := range logprobs {
		tok := strings.ToUpper(strings.TrimSpace(lp.Token))
		switch {
		case strings.HasPrefix(tok, "HIGH"):
			riskLP = lp.LogProb
			ok = true
		case strings.HasPrefix(tok, "LOW"):
			safeLP = lp.LogProb
			ok = true
		}
	}
	return riskLP, safeLP, ok
}
