package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/trace"
)

func TestDefaultConfig_SetsBuiltInDefaults(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "./runs", cfg.PersistenceDir)
	assert.Equal(t, "arcreliability", cfg.EtcdNamespace)
	assert.Empty(t, cfg.ScenarioDir)
}

func TestOptions_EachMutatesOnlyItsOwnField(t *testing.T) {
	backend := &stubBackend{name: "stub"}
	cfg := defaultConfig()

	for _, opt := range []Option{
		WithScenarioDir("scenarios"),
		WithPersistenceDir("runs2"),
		WithBackends(backend),
		WithProviderConfig(provider.Config{CostCeilingUSD: 5}),
		WithJudgeConfig(judge.Config{Model: "gpt-test"}),
	} {
		opt(&cfg)
	}

	assert.Equal(t, "scenarios", cfg.ScenarioDir)
	assert.Equal(t, "runs2", cfg.PersistenceDir)
	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, "stub", cfg.Backends[0].Name())
	assert.Equal(t, 5.0, cfg.ProviderConfig.CostCeilingUSD)
	assert.Equal(t, "gpt-test", cfg.JudgeConfig.Model)
}

func TestWithEtcdCheckpointer_SetsAllThreeFields(t *testing.T) {
	cfg := defaultConfig()
	WithEtcdCheckpointer(nil, "custom-ns", 30)(&cfg)
	assert.Equal(t, "custom-ns", cfg.EtcdNamespace)
	assert.Equal(t, int64(30), cfg.EtcdTTLSec)
	assert.Nil(t, cfg.EtcdClient)
}

// stubBackend satisfies provider.Backend for option-wiring tests that
// never actually issue a call.
type stubBackend struct{ name string }

func (b *stubBackend) Name() string                       { return b.name }
func (b *stubBackend) CostPerToken(model string) float64  { return 0 }
func (b *stubBackend) DowngradeModel(model string) string { return "" }
func (b *stubBackend) Complete(ctx context.Context, req provider.Request, opts ...provider.Option) (*provider.Response, error) {
	return &provider.Response{}, nil
}

func TestDiscoverYAMLConfig_MissingFileReturnsNilWithoutError(t *testing.T) {
	t.Chdir(t.TempDir())
	y, err := discoverYAMLConfig()
	require.NoError(t, err)
	assert.Nil(t, y)
}

func TestDiscoverYAMLConfig_ParsesPresentFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.yaml"), []byte(
		"scenario_dir: /scenarios\npersistence_dir: /runs\ncost_ceiling_usd: 7.5\n",
	), 0o644))
	t.Chdir(dir)

	y, err := discoverYAMLConfig()
	require.NoError(t, err)
	require.NotNil(t, y)
	assert.Equal(t, "/scenarios", y.ScenarioDir)
	assert.Equal(t, 7.5, y.CostCeilingUSD)
}

func TestDiscoverYAMLConfig_MalformedFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.yaml"), []byte("not: [valid: yaml"), 0o644))
	t.Chdir(dir)

	_, err := discoverYAMLConfig()
	assert.Error(t, err)
}

func TestApplyYAMLConfig_NilIsNoOp(t *testing.T) {
	cfg := defaultConfig()
	before := cfg
	applyYAMLConfig(&cfg, nil)
	assert.Equal(t, before, cfg)
}

func TestApplyYAMLConfig_OnlyOverridesFieldsYAMLSet(t *testing.T) {
	cfg := defaultConfig()
	cfg.JudgeConfig.Model = "preexisting-model"

	y := &yamlConfig{
		CostCeilingUSD:           12,
		ProviderRetryBackoffSecs: []int{1, 2, 4},
		FastTrackCeiling:         25,
		Backend:                  "anthropic",
	}
	applyYAMLConfig(&cfg, y)

	assert.Equal(t, 12.0, cfg.ProviderConfig.CostCeilingUSD)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, cfg.ProviderConfig.RetryBackoff)
	assert.Equal(t, 25, cfg.JudgeConfig.FastTrackCeiling)
	assert.Equal(t, "anthropic", cfg.JudgeConfig.Backend)
	assert.Equal(t, "anthropic", cfg.PredictorConfig.Backend)
	// Model was never set in YAML, so the pre-existing value survives.
	assert.Equal(t, "preexisting-model", cfg.JudgeConfig.Model)
}

func TestRunOptions_WithDefaultsFillsVersionAndForceMode(t *testing.T) {
	o := RunOptions{Domain: "finance"}.withDefaults()
	assert.Equal(t, "latest", o.Version)
	assert.Equal(t, judge.ModeAuto, o.ForceMode)
}

func TestRunOptions_WithDefaultsLeavesExplicitValuesAlone(t *testing.T) {
	o := RunOptions{Domain: "finance", Version: "v3", ForceMode: judge.ModeBatchTrack}.withDefaults()
	assert.Equal(t, "v3", o.Version)
	assert.Equal(t, judge.ModeBatchTrack, o.ForceMode)
}

func TestNewRunOptions_AppliesOptionsThenDefaults(t *testing.T) {
	records := []trace.Record{trace.NewStringRecord("hi")}
	o := NewRunOptions(
		WithDomain("finance"),
		WithRecords(records),
	)
	assert.Equal(t, "finance", o.Domain)
	assert.Equal(t, "latest", o.Version)
	assert.Equal(t, judge.ModeAuto, o.ForceMode)
	assert.Equal(t, records, o.Records)
}

func TestWithFlywheel_SetsFlagAndCategories(t *testing.T) {
	o := NewRunOptions(WithDomain("finance"), WithFlywheel("pii", "audit"))
	assert.True(t, o.RunFlywheel)
	assert.Equal(t, []string{"pii", "audit"}, o.FlywheelCategories)
}
