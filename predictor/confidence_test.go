package predictor

import "testing"

func TestCalibrateFromLogprobs_WidebMarginYieldsHighConfidence(t *testing.T) {
	c := calibrateFromLogprobs(-0.01, -6.0)
	if c < 0.9 {
		t.Fatalf("expected high confidence for wide margin, got %v", c)
	}
}

func TestCalibrateFromLogprobs_NarrowMarginYieldsLowConfidence(t *testing.T) {
	c := calibrateFromLogprobs(-1.0, -1.05)
	if c > 0.2 {
		t.Fatalf("expected low confidence for narrow margin, got %v", c)
	}
}

func TestOverallConfidence_DropsMissingLogprobTermInsteadOfZeroing(t *testing.T) {
	withLP := 0.9
	withLogprobs := overallConfidence(&withLP, 0.5, 0.5)
	withoutLogprobs := overallConfidence(nil, 0.5, 0.5)
	if withoutLogprobs <= 0 {
		t.Fatalf("expected nonzero confidence without logprobs, got %v", withoutLogprobs)
	}
	if withLogprobs == withoutLogprobs {
		t.Fatalf("expected logprob term to change the result")
	}
}
