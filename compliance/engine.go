package compliance

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/arcreliability/engine/opserr"
)

// rule compiles a single boolean CEL expression that evaluates to true
// when the configuration VIOLATES the rule.
type rule struct {
	kind       string
	severity   Severity
	expression string
	evidence   string
}

// check groups the rules that make up one named compliance dimension.
type check struct {
	name  string
	rules []rule
}

var checks = []check{
	{
		name: "pii_protection",
		rules: []rule{
			{
				kind:       "missing_pii_detection",
				severity:   SeverityHigh,
				expression: "!has_pii_detection_tool",
				evidence:   "no PII-detection or masking tool declared",
			},
			{
				kind:       "missing_data_protection_section",
				severity:   SeverityHigh,
				expression: "!has_data_protection_section",
				evidence:   "no data_protection configuration section present",
			},
		},
	},
	{
		name: "security_controls",
		rules: []rule{
			{
				kind:       "missing_input_validation",
				severity:   SeverityCritical,
				expression: "!has_input_validation",
				evidence:   "no input validation configured",
			},
			{
				kind:       "missing_access_control",
				severity:   SeverityCritical,
				expression: "!has_access_control",
				evidence:   "no access control configured",
			},
			{
				kind:       "missing_encryption_flag",
				severity:   SeverityHigh,
				expression: "!has_encryption_flag",
				evidence:   "no encryption flag set",
			},
		},
	},
	{
		name: "audit_requirements",
		rules: []rule{
			{
				kind:       "missing_audit_logging",
				severity:   SeverityHigh,
				expression: "!has_audit_logging",
				evidence:   "no audit logging configured",
			},
			{
				kind:       "missing_approval_workflow",
				severity:   SeverityMedium,
				expression: "!has_approval_workflow",
				evidence:   "no approval workflow for value-threshold actions",
			},
			{
				kind:       "retention_unset",
				severity:   SeverityMedium,
				expression: "!retention_policy_set",
				evidence:   "retention policy is unset",
			},
		},
	},
	{
		name: "data_handling",
		rules: []rule{
			{
				kind:       "missing_encryption_at_rest_or_in_transit",
				severity:   SeverityCritical,
				expression: "!has_encryption_at_rest || !has_encryption_in_transit",
				evidence:   "encryption at rest and/or in transit is missing",
			},
			{
				kind:       "missing_data_classification",
				severity:   SeverityMedium,
				expression: "!has_data_classification",
				evidence:   "no data classification declared",
			},
		},
	},
}

// Engine evaluates compiled CEL programs for every check. Compilation
// happens once at construction; evaluation is then pure and
// side-effect-free.
type Engine struct {
	env      *cel.Env
	programs map[string]cel.Program // rule.kind -> compiled program
}

// NewEngine compiles every rule's CEL expression against a boolean
// attribute environment. Returns an error if any expression fails to
// compile, since a broken rule can never be satisfied deterministically.
func NewEngine() (*Engine, error) {
	decls := make([]cel.EnvOption, 0)
	for key := range AgentConfig{}.asCELInput() {
		decls = append(decls, cel.Variable(key, cel.BoolType))
	}

	env, err := cel.NewEnv(decls...)
	if err != nil {
		return nil, opserr.New("compliance", "new_engine", opserr.CodeUnknownDomain,
			"failed to build CEL environment").WithCause(err)
	}

	programs := make(map[string]cel.Program)
	for _, c := range checks {
		for _, r := range c.rules {
			ast, issues := env.Compile(r.expression)
			if issues != nil && issues.Err() != nil {
				return nil, opserr.New("compliance", "new_engine", opserr.CodeUnknownDomain,
					fmt.Sprintf("rule %s failed to compile: %s", r.kind, r.expression)).WithCause(issues.Err())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return nil, opserr.New("compliance", "new_engine", opserr.CodeUnknownDomain,
					fmt.Sprintf("rule %s failed to build program", r.kind)).WithCause(err)
			}
			programs[r.kind] = prg
		}
	}

	return &Engine{env: env, programs: programs}, nil
}

// CheckAll runs every check against cfg and returns the aggregated
// report. Deterministic: identical cfg always produces an identical
// report.
func (e *Engine) CheckAll(cfg AgentConfig) (*RuleReport, error) {
	input := cfg.asCELInput()
	report := &RuleReport{}

	var weightedSum, weightTotal float64

	for _, c := range checks {
		result := CheckResult{Name: c.name}
		violatedWeight := 0.0

		for _, r := range c.rules {
			prg := e.programs[r.kind]
			out, _, err := prg.Eval(input)
			if err != nil {
				return nil, opserr.New("compliance", "check_all", opserr.CodeUnknownDomain,
					fmt.Sprintf("rule %s failed to evaluate", r.kind)).WithCause(err)
			}
			violated, ok := out.Value().(bool)
			if !ok {
				return nil, opserr.New("compliance", "check_all", opserr.CodeUnknownDomain,
					fmt.Sprintf("rule %s did not evaluate to a boolean", r.kind))
			}
			if violated {
				v := Violation{Kind: r.kind, Severity: r.severity, Evidence: r.evidence}
				result.Violations = append(result.Violations, v)
				report.Violations = append(report.Violations, v)
				violatedWeight += severityWeight[r.severity]
			}
		}

		maxPossibleWeight := 0.0
		dominant := severityWeight[SeverityLow]
		for _, r := range c.rules {
			maxPossibleWeight += severityWeight[r.severity]
			if w := severityWeight[r.severity]; w > dominant {
				dominant = w
			}
		}
		if maxPossibleWeight > 0 {
			result.Score = 1 - (violatedWeight / maxPossibleWeight)
		} else {
			result.Score = 1
		}

		report.Checks = append(report.Checks, result)
		// The aggregate rule score is the severity-weighted mean of each
		// check's sub-score, weighted by that check's most severe rule.
		weightedSum += result.Score * dominant
		weightTotal += dominant
	}

	if weightTotal > 0 {
		report.Score = weightedSum / weightTotal
	}

	return report, nil
}
