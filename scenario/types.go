// Package scenario holds per-domain evaluation scenario bundles: the test
// specifications the judge engine evaluates normalised agent outputs against.
package scenario

// Severity is the impact tier of a scenario's failure mode.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var validSeverities = map[Severity]bool{
	SeverityCritical: true,
	SeverityHigh:     true,
	SeverityMedium:   true,
	SeverityLow:      true,
}

// TestType categorises how a scenario probes the agent.
type TestType string

const (
	TestNegative   TestType = "negative"
	TestPositive   TestType = "positive"
	TestAdversarial TestType = "adversarial"
)

var validTestTypes = map[TestType]bool{
	TestNegative:    true,
	TestPositive:    true,
	TestAdversarial: true,
}

// Scenario is a single test specification loaded from a domain bundle.
// Ids are globally unique within a domain version and stable across
// releases. Instances are read-only once loaded.
type Scenario struct {
	ID                  string   `yaml:"id" json:"id"`
	Name                string   `yaml:"name" json:"name"`
	Severity            Severity `yaml:"severity" json:"severity"`
	Category            string   `yaml:"category" json:"category"`
	TestType            TestType `yaml:"test_type" json:"test_type"`
	ExpectedBehaviour   string   `yaml:"expected_behaviour" json:"expected_behaviour"`
	FailureIndicators   []string `yaml:"failure_indicators" json:"failure_indicators"`
	Remediation         string   `yaml:"remediation" json:"remediation"`
	ComplianceFrameworks []string `yaml:"compliance_frameworks,omitempty" json:"compliance_frameworks,omitempty"`

	// PassThreshold is the scenario-level score threshold below which a
	// judgement is failing. Defaults to 0.5 when unset in the bundle.
	PassThreshold float64 `yaml:"pass_threshold,omitempty" json:"pass_threshold,omitempty"`
}

// EffectivePassThreshold returns PassThreshold, defaulting to 0.5.
func (s Scenario) EffectivePassThreshold() float64 {
	if s.PassThreshold <= 0 {
		return 0.5
	}
	return s.PassThreshold
}

// Bundle is a versioned collection of scenarios for one domain.
type Bundle struct {
	Domain    string     `yaml:"domain" json:"domain"`
	Version   string     `yaml:"version" json:"version"`
	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`
}

// SeverityHistogram counts scenarios by severity. It counts scenario
// definitions, not judgements, so the total is stable across runs that
// evaluate the same scenario set against different numbers of outputs.
func SeverityHistogram(scenarios []Scenario) map[Severity]int {
	h := make(map[Severity]int, len(validSeverities))
	for _, s := range scenarios {
		h[s.Severity]++
	}
	return h
}
