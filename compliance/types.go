// Package compliance is a pure-function rule engine that checks an
// agent's declared configuration against deterministic compliance rules:
// PII protection, security controls, audit requirements, and data
// handling. Identical input always produces an identical RuleReport.
package compliance

// Severity mirrors scenario.Severity's enum for violations raised by
// this engine.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityWeight implements the severity-weighted mean used to roll
// sub-scores into the aggregate rule score.
var severityWeight = map[Severity]float64{
	SeverityCritical: 1.0,
	SeverityHigh:     0.75,
	SeverityMedium:   0.5,
	SeverityLow:      0.25,
}

// Violation is one rule failure surfaced by a check.
type Violation struct {
	Kind     string   `json:"kind"`
	Severity Severity `json:"severity"`
	Evidence string   `json:"evidence"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Name       string      `json:"name"`
	Violations []Violation `json:"violations"`
	Score      float64     `json:"score"`
}

// RuleReport aggregates every check's result into a single score.
type RuleReport struct {
	Checks     []CheckResult `json:"checks"`
	Violations []Violation   `json:"violations"`

	// Score is the severity-weighted mean of all sub-scores, in [0, 1].
	Score float64 `json:"score"`
}

// AgentConfig is the declared configuration this engine inspects. Only
// the fields the four checks read are modeled; unknown input fields are
// ignored rather than rejected.
type AgentConfig struct {
	HasPIIDetectionTool    bool `json:"has_pii_detection_tool"`
	HasDataProtectionSection bool `json:"has_data_protection_section"`

	HasInputValidation bool `json:"has_input_validation"`
	HasAccessControl   bool `json:"has_access_control"`
	HasEncryptionFlag  bool `json:"has_encryption_flag"`

	HasAuditLogging       bool `json:"has_audit_logging"`
	HasApprovalWorkflow   bool `json:"has_approval_workflow"`
	RetentionPolicySet    bool `json:"retention_policy_set"`

	HasEncryptionAtRest    bool `json:"has_encryption_at_rest"`
	HasEncryptionInTransit bool `json:"has_encryption_in_transit"`
	HasDataClassification  bool `json:"has_data_classification"`
}

// asCELInput converts the config to the map CEL programs evaluate
// against.
func (c AgentConfig) asCELInput() map[string]any {
	return map[string]any{
		"has_pii_detection_tool":     c.HasPIIDetectionTool,
		"has_data_protection_section": c.HasDataProtectionSection,
		"has_input_validation":       c.HasInputValidation,
		"has_access_control":         c.HasAccessControl,
		"has_encryption_flag":        c.HasEncryptionFlag,
		"has_audit_logging":          c.HasAuditLogging,
		"has_approval_workflow":      c.HasApprovalWorkflow,
		"retention_policy_set":       c.RetentionPolicySet,
		"has_encryption_at_rest":     c.HasEncryptionAtRest,
		"has_encryption_in_transit":  c.HasEncryptionInTransit,
		"has_data_classification":    c.HasDataClassification,
	}
}
