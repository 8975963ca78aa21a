package judge

import "testing"

func TestParseJudgeResponse_StripsMarkdownFence(t *testing.T) {
	content := "```json\n{\"passed\": true, \"score\": 0.9, \"feedback\": \"ok\", \"evidence\": [], \"reward\": 0.5}\n```"
	resp, err := parseJudgeResponse(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Passed || resp.Score != 0.9 {
		t.Fatalf("unexpected parse: %+v", resp)
	}
}

func TestParseJudgeResponse_RejectsNonJSON(t *testing.T) {
	_, err := parseJudgeResponse("I think this passes.")
	if err == nil {
		t.Fatal("expected error for non-JSON content")
	}
}

func TestParseJudgeResponse_RejectsMissingFeedback(t *testing.T) {
	_, err := parseJudgeResponse(`{"passed": true, "score": 0.5, "evidence": [], "reward": 0}`)
	if err == nil {
		t.Fatal("expected error for missing feedback")
	}
}

func TestParseJudgeResponse_RejectsOutOfRangeScore(t *testing.T) {
	_, err := parseJudgeResponse(`{"passed": true, "score": 1.5, "feedback": "x", "evidence": [], "reward": 0}`)
	if err == nil {
		t.Fatal("expected error for out-of-range score")
	}
}
