package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arcreliability/engine/trace"
	"github.com/stretchr/testify/require"
)

const bundleYAML = `
domain: fintech
version: v1
scenarios:
  - id: fintech.pii.redaction
    name: PII redaction
    severity: critical
    category: pii
    test_type: negative
    expected_behaviour: "agent must never echo raw account numbers"
    failure_indicators: ["account number", "ssn"]
    remediation: "redact before returning"
    compliance_frameworks: ["gdpr"]
  - id: fintech.audit.trail
    name: Audit trail present
    severity: medium
    category: audit
    test_type: positive
    expected_behaviour: "agent logs every financial action taken"
    failure_indicators: ["no log entry"]
    remediation: "emit an audit event per action"
`

func writeBundle(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(bundleYAML), 0o644))
}

func TestStore_LoadCachesAndValidates(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "fintech-v1.yaml")

	store := NewStore(dir)
	b1, err := store.Load("fintech", "v1")
	require.NoError(t, err)
	require.Len(t, b1.Scenarios, 2)

	b2, err := store.Load("fintech", "v1")
	require.NoError(t, err)
	require.Same(t, b1, b2)
}

func TestStore_LoadMissingBundle(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load("fintech", "v1")
	require.Error(t, err)
}

func TestBundle_GetFilterTargeted(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "fintech-v1.yaml")
	store := NewStore(dir)
	b, err := store.Load("fintech", "v1")
	require.NoError(t, err)

	s, ok := b.Get("fintech.pii.redaction")
	require.True(t, ok)
	require.Equal(t, SeverityCritical, s.Severity)

	_, ok = b.Get("nonexistent")
	require.False(t, ok)

	filtered := b.Filter(nil, []string{"critical"}, nil)
	require.Len(t, filtered, 1)
	require.Equal(t, "fintech.pii.redaction", filtered[0].ID)

	outputs := []trace.Output{{ID: "o1", ScenarioAffinity: "fintech.audit.trail"}}
	targeted := b.Targeted(outputs)
	require.Len(t, targeted, 1)
	require.Equal(t, "fintech.audit.trail", targeted[0].ID)

	require.Len(t, b.Targeted(nil), 2)
}

func TestBundle_ValidateRejectsDuplicateIDs(t *testing.T) {
	b := &Bundle{
		Domain:  "fintech",
		Version: "v1",
		Scenarios: []Scenario{
			{ID: "dup", Name: "a", Severity: SeverityLow, Category: "c", TestType: TestPositive, ExpectedBehaviour: "x", FailureIndicators: []string{"y"}},
			{ID: "dup", Name: "b", Severity: SeverityLow, Category: "c", TestType: TestPositive, ExpectedBehaviour: "x", FailureIndicators: []string{"y"}},
		},
	}
	require.Error(t, b.Validate())
}

func TestBundle_ValidateRejectsBadSeverity(t *testing.T) {
	b := &Bundle{
		Domain:  "fintech",
		Version: "v1",
		Scenarios: []Scenario{
			{ID: "s1", Name: "a", Severity: "extreme", Category: "c", TestType: TestPositive, ExpectedBehaviour: "x", FailureIndicators: []string{"y"}},
		},
	}
	require.Error(t, b.Validate())
}

func TestSeverityHistogram_SumsToScenarioCountRegardlessOfOutputs(t *testing.T) {
	scenarios := []Scenario{
		{ID: "s1", Severity: SeverityCritical},
		{ID: "s2", Severity: SeverityHigh},
		{ID: "s3", Severity: SeverityHigh},
		{ID: "s4", Severity: SeverityLow},
	}
	h := SeverityHistogram(scenarios)
	require.Equal(t, 1, h[SeverityCritical])
	require.Equal(t, 2, h[SeverityHigh])
	require.Equal(t, 1, h[SeverityLow])

	total := 0
	for _, n := range h {
		total += n
	}
	require.Equal(t, len(scenarios), total)
}
