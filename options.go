package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"

	"github.com/arcreliability/engine/compliance"
	"github.com/arcreliability/engine/curriculum"
	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/predictor"
	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/trace"
)

// Config wires every component the engine orchestrates. Construct it
// with functional Options; NewEngine applies built-in defaults, then an
// engine.yaml discovered in the current directory (if any), then the
// explicit Options, in that priority order.
type Config struct {
	ScenarioDir    string
	PersistenceDir string

	Backends []provider.Backend
	Limiter  provider.Limiter

	ProviderConfig   provider.Config
	JudgeConfig      judge.Config
	PredictorConfig  predictor.Config
	CurriculumConfig curriculum.Config

	StrategyProvider curriculum.StrategyProvider

	EtcdClient    *clientv3.Client
	EtcdNamespace string
	EtcdTTLSec    int64

	Logger *slog.Logger
}

func defaultConfig() Config {
	return Config{
		PersistenceDir: "./runs",
		EtcdNamespace:  "arcreliability",
	}
}

// Option configures the engine under construction.
type Option func(*Config)

// WithScenarioDir sets the directory scenario bundles are loaded from.
func WithScenarioDir(dir string) Option {
	return func(c *Config) { c.ScenarioDir = dir }
}

// WithPersistenceDir sets the root directory under which per-run
// artifacts (events.jsonl, checkpoints/, final_report.json) are written.
func WithPersistenceDir(dir string) Option {
	return func(c *Config) { c.PersistenceDir = dir }
}

// WithBackends registers the provider backends the adapter routes calls
// through. The core spec requires running against at least two.
func WithBackends(backends ...provider.Backend) Option {
	return func(c *Config) { c.Backends = backends }
}

// WithLimiter overrides the adapter's rate limiter. Nil leaves the
// adapter's in-memory default.
func WithLimiter(limiter provider.Limiter) Option {
	return func(c *Config) { c.Limiter = limiter }
}

// WithProviderConfig overrides provider.Adapter policy (cost ceiling,
// downgrade threshold, retry/backoff).
func WithProviderConfig(cfg provider.Config) Option {
	return func(c *Config) { c.ProviderConfig = cfg }
}

// WithJudgeConfig overrides judge.Engine policy.
func WithJudgeConfig(cfg judge.Config) Option {
	return func(c *Config) { c.JudgeConfig = cfg }
}

// WithPredictorConfig overrides predictor.Engine policy.
func WithPredictorConfig(cfg predictor.Config) Option {
	return func(c *Config) { c.PredictorConfig = cfg }
}

// WithCurriculumConfig overrides the ACL flywheel controller's policy.
func WithCurriculumConfig(cfg curriculum.Config) Option {
	return func(c *Config) { c.CurriculumConfig = cfg }
}

// WithStrategyProvider sets the improvement-strategy collaborator the
// flywheel controller consults between iterations. Required only when
// a run requests the flywheel.
func WithStrategyProvider(sp curriculum.StrategyProvider) Option {
	return func(c *Config) { c.StrategyProvider = sp }
}

// WithEtcdCheckpointer enables keyed, lease-backed curriculum checkpoints
// in etcd instead of the default per-iteration files on disk.
func WithEtcdCheckpointer(client *clientv3.Client, namespace string, ttlSeconds int64) Option {
	return func(c *Config) {
		c.EtcdClient = client
		c.EtcdNamespace = namespace
		c.EtcdTTLSec = ttlSeconds
	}
}

// WithLogger sets the structured logger every component logs through.
// Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// yamlConfig holds the settings loaded from an engine.yaml at the run
// root: directories, thresholds, concurrency, retry, cost and curriculum
// settings, and backend/model names. It has no rule/llm weight fields,
// and confidence_threshold is parsed but applyYAMLConfig does not apply it.
type yamlConfig struct {
	ScenarioDir    string `yaml:"scenario_dir"`
	PersistenceDir string `yaml:"persistence_dir"`

	ConfidenceThreshold      float64 `yaml:"confidence_threshold"`
	VerificationThreshold    float64 `yaml:"verification_threshold"`
	FastTrackCeiling         int     `yaml:"fast_track_ceiling"`
	FastTrackParallelism     int     `yaml:"fast_track_parallelism"`
	ProviderRetryAttempts    int     `yaml:"provider_retry_attempts"`
	ProviderRetryBackoffSecs []int   `yaml:"provider_retry_backoff_seconds"`

	CostCeilingUSD             float64 `yaml:"cost_ceiling_usd"`
	ModelDowngradeThresholdUSD float64 `yaml:"model_downgrade_threshold_usd"`

	MaxIterations      int     `yaml:"max_iterations"`
	PassRateTarget     float64 `yaml:"pass_rate_target"`
	PlateauDelta       float64 `yaml:"plateau_delta"`
	ExplorationEpsilon float64 `yaml:"exploration_epsilon"`
	MasteryThreshold   float64 `yaml:"mastery_threshold"`

	Backend             string `yaml:"backend"`
	Model               string `yaml:"model"`
	VerificationBackend string `yaml:"verification_backend"`
	VerificationModel   string `yaml:"verification_model"`
}

// discoverYAMLConfig loads ./engine.yaml (or engine.yml) if present. A
// missing file is not an error — Options and built-in defaults still
// apply.
func discoverYAMLConfig() (*yamlConfig, error) {
	for _, name := range []string{"engine.yaml", "engine.yml"} {
		data, err := os.ReadFile(name)
		if err != nil {
			continue
		}
		var y yamlConfig
		if err := yaml.Unmarshal(data, &y); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return &y, nil
	}
	return nil, nil
}

// applyYAMLConfig layers discovered YAML settings onto cfg. It only
// fills fields the YAML document actually set (non-zero), so it never
// clobbers a built-in default the YAML left unspecified, and a later
// explicit Option still overrides it.
func applyYAMLConfig(cfg *Config, y *yamlConfig) {
	if y == nil {
		return
	}
	if y.ScenarioDir != "" {
		cfg.ScenarioDir = y.ScenarioDir
	}
	if y.PersistenceDir != "" {
		cfg.PersistenceDir = y.PersistenceDir
	}
	if y.CostCeilingUSD > 0 {
		cfg.ProviderConfig.CostCeilingUSD = y.CostCeilingUSD
	}
	if y.ModelDowngradeThresholdUSD > 0 {
		cfg.ProviderConfig.ModelDowngradeThresholdUSD = y.ModelDowngradeThresholdUSD
	}
	if y.ProviderRetryAttempts > 0 {
		cfg.ProviderConfig.RetryAttempts = y.ProviderRetryAttempts
	}
	if len(y.ProviderRetryBackoffSecs) > 0 {
		backoff := make([]time.Duration, len(y.ProviderRetryBackoffSecs))
		for i, s := range y.ProviderRetryBackoffSecs {
			backoff[i] = time.Duration(s) * time.Second
		}
		cfg.ProviderConfig.RetryBackoff = backoff
	}
	if y.FastTrackCeiling > 0 {
		cfg.JudgeConfig.FastTrackCeiling = y.FastTrackCeiling
	}
	if y.FastTrackParallelism > 0 {
		cfg.JudgeConfig.FastTrackParallelism = y.FastTrackParallelism
	}
	if y.VerificationThreshold > 0 {
		cfg.JudgeConfig.VerificationThreshold = y.VerificationThreshold
	}
	if y.Backend != "" {
		cfg.JudgeConfig.Backend = y.Backend
		cfg.PredictorConfig.Backend = y.Backend
	}
	if y.Model != "" {
		cfg.JudgeConfig.Model = y.Model
		cfg.PredictorConfig.Model = y.Model
	}
	if y.VerificationBackend != "" {
		cfg.JudgeConfig.VerificationBackend = y.VerificationBackend
	}
	if y.VerificationModel != "" {
		cfg.JudgeConfig.VerificationModel = y.VerificationModel
	}
	if y.MaxIterations > 0 {
		cfg.CurriculumConfig.MaxIterations = y.MaxIterations
	}
	if y.PassRateTarget > 0 {
		cfg.CurriculumConfig.PassRateTarget = y.PassRateTarget
	}
	if y.PlateauDelta > 0 {
		cfg.CurriculumConfig.PlateauDelta = y.PlateauDelta
	}
	if y.ExplorationEpsilon > 0 {
		cfg.CurriculumConfig.Epsilon = y.ExplorationEpsilon
	}
	if y.MasteryThreshold > 0 {
		cfg.CurriculumConfig.MasteryThreshold = y.MasteryThreshold
	}
}

// RunOptions parameterises a single Engine.Run invocation.
type RunOptions struct {
	// RunID names the run's persistence subdirectory. Defaults to a
	// timestamp-derived id when empty.
	RunID string

	// Domain selects the scenario bundle domain (e.g. "finance").
	Domain string

	// Version selects the scenario bundle version. Defaults to "latest".
	Version string

	// Records is the raw batch handed to the trace normaliser.
	Records []trace.Record

	// AgentConfig feeds the compliance rule engine and, through it, the
	// reliability predictor.
	AgentConfig compliance.AgentConfig

	// ForceMode overrides the judge engine's fast/batch track selection.
	// Empty defers to the |S| <= F rule.
	ForceMode judge.Mode

	// RunFlywheel drives the ACL controller on top of the single-pass
	// evaluation once it completes.
	RunFlywheel bool

	// FlywheelCategories seeds the curriculum with scenario categories.
	// Empty means every category present in the loaded bundle.
	FlywheelCategories []string
}

// RunOption configures a RunOptions value before Engine.Run executes.
type RunOption func(*RunOptions)

// WithRunID pins the persistence subdirectory name for this run.
func WithRunID(id string) RunOption {
	return func(o *RunOptions) { o.RunID = id }
}

// WithDomain selects the scenario bundle domain.
func WithDomain(domain string) RunOption {
	return func(o *RunOptions) { o.Domain = domain }
}

// WithVersion selects the scenario bundle version.
func WithVersion(version string) RunOption {
	return func(o *RunOptions) { o.Version = version }
}

// WithRecords sets the raw batch handed to the trace normaliser.
func WithRecords(records []trace.Record) RunOption {
	return func(o *RunOptions) { o.Records = records }
}

// WithAgentConfig sets the compliance/predictor agent configuration.
func WithAgentConfig(cfg compliance.AgentConfig) RunOption {
	return func(o *RunOptions) { o.AgentConfig = cfg }
}

// WithForceMode overrides judge track selection.
func WithForceMode(mode judge.Mode) RunOption {
	return func(o *RunOptions) { o.ForceMode = mode }
}

// WithFlywheel enables the ACL controller for this run, seeded with the
// given categories (empty seeds from every category in the bundle).
func WithFlywheel(categories ...string) RunOption {
	return func(o *RunOptions) {
		o.RunFlywheel = true
		o.FlywheelCategories = categories
	}
}

// NewRunOptions builds a RunOptions from functional RunOptions, applying
// the same defaulting Engine.Run relies on internally.
func NewRunOptions(opts ...RunOption) RunOptions {
	var o RunOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.withDefaults()
}

func (o RunOptions) withDefaults() RunOptions {
	if o.Version == "" {
		o.Version = "latest"
	}
	if o.ForceMode == "" {
		o.ForceMode = judge.ModeAuto
	}
	if o.RunID == "" {
		o.RunID = fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return o
}

// runPath joins the configured persistence root with a run's subdirectory.
func runPath(root, runID string) string {
	return filepath.Join(root, runID)
}
