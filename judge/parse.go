package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arcreliability/engine/opserr"
)

// judgeResponse is the expected JSON shape from the judge model.
type judgeResponse struct {
	Passed   bool     `json:"passed"`
	Score    float64  `json:"score"`
	Feedback string   `json:"feedback"`
	Evidence []string `json:"evidence"`
	Reward   float64  `json:"reward"`
}

// parseJudgeResponse extracts the structured judgement from raw model
// output. It strips markdown code fences and locates the JSON object by
// its outermost braces before unmarshalling, mirroring how judges
// commonly wrap JSON in prose.
func parseJudgeResponse(content string) (judgeResponse, error) {
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
		return judgeResponse{}, opserr.New("judge", "parse", opserr.CodeJudgementMalformed,
			"no JSON object found in judge response").
			WithDetails(map[string]any{"content": content})
	}

	var resp judgeResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &resp); err != nil {
		return judgeResponse{}, opserr.New("judge", "parse", opserr.CodeJudgementMalformed,
			"judge response is not valid JSON").WithCause(err).
			WithDetails(map[string]any{"content": content})
	}

	if resp.Feedback == "" {
		return judgeResponse{}, opserr.New("judge", "parse", opserr.CodeJudgementMalformed,
			"judge response is missing feedback")
	}
	if resp.Score < 0 || resp.Score > 1 {
		return judgeResponse{}, opserr.New("judge", "parse", opserr.CodeJudgementMalformed,
			fmt.Sprintf("judge score %.3f is outside [0,1]", resp.Score))
	}

	return resp, nil
}
