// Package swarmconfig loads the immutable run configuration: the role
// roster, orchestration strategy, timeouts, budget caps, and merge policy
// that together form the manifest's non-task half. Loading follows the
// teacher's two-layer pattern (internal/config's yaml.v3 file parse,
// cmd/cobra_cli.go's viper env binding) but validates fail-fast: malformed
// or out-of-range configuration returns an error at startup instead of
// silently substituting defaults (per the Open Question decision recorded
// in DESIGN.md).
package swarmconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"swarmcoord/internal/swarm/decompose"
	"swarmcoord/internal/swarm/role"
)

// SwarmConfig is the full set of values loaded once at startup and held
// immutable for the life of a run.
type SwarmConfig struct {
	Roles []role.Spec `yaml:"roles"`

	OrchestrationStrategy decompose.Mode `yaml:"orchestration_strategy"`
	MaxTasks              int            `yaml:"max_tasks"`

	HeartbeatTimeoutSeconds float64 `yaml:"heartbeat_timeout_seconds"`
	SilenceTimeoutSeconds   float64 `yaml:"silence_timeout_seconds"`
	TaskMaxDurationSeconds  float64 `yaml:"task_max_duration_seconds"`
	PollIntervalSeconds     float64 `yaml:"poll_interval_seconds"`
	MaxRuntimeSeconds       float64 `yaml:"max_runtime_seconds"`
	MaxTaskAttempts         int     `yaml:"max_task_attempts"`
	// MaxAgentRestarts caps how many times one agent slot may be respawned,
	// whether from a silent process exit or a watchdog heartbeat-lag
	// restart. Once an agent's restart count reaches this cap, the
	// coordinator leaves it exited rather than respawning it again, so a
	// crash-looping backend can't consume the run's wall-clock budget
	// indefinitely.
	MaxAgentRestarts int `yaml:"max_agent_restarts"`

	TokenCap              int64   `yaml:"token_cap"`
	CostCapUSD            float64 `yaml:"cost_cap_usd"`
	BudgetReserveRatio    float64 `yaml:"budget_reserve_ratio"`
	CharsPerTokenFallback float64 `yaml:"chars_per_token_fallback"`
	CostPerThousandTokens float64 `yaml:"cost_per_thousand_tokens"`
	TokenEncoding         string  `yaml:"token_encoding"`

	AuthorityRole    string   `yaml:"authority_role"`
	QualityThreshold float64  `yaml:"quality_threshold"`
	ReviewRoles      []string `yaml:"review_roles"`

	Debug bool `yaml:"debug"`
}

// defaults applied only to fields genuinely absent from the file — this is
// the one place the loader fills a hole rather than erroring.
func defaults() SwarmConfig {
	return SwarmConfig{
		OrchestrationStrategy:   decompose.ModeHierarchical,
		MaxTasks:                64,
		HeartbeatTimeoutSeconds: 30,
		SilenceTimeoutSeconds:   120,
		TaskMaxDurationSeconds:  1800,
		PollIntervalSeconds:     0.1,
		MaxRuntimeSeconds:       3600,
		MaxTaskAttempts:         3,
		MaxAgentRestarts:        5,
		BudgetReserveRatio:      0.1,
		CharsPerTokenFallback:   4,
		TokenEncoding:           "cl100k_base",
		QualityThreshold:        0.7,
	}
}

// envBindings lists every field that may be overridden by environment
// variable, each bound to its SWARMCOORD_-prefixed name with viper.BindEnv.
var envBindings = map[string]string{
	"orchestration_strategy":    "SWARMCOORD_ORCHESTRATION_STRATEGY",
	"max_tasks":                 "SWARMCOORD_MAX_TASKS",
	"heartbeat_timeout_seconds": "SWARMCOORD_HEARTBEAT_TIMEOUT_SECONDS",
	"silence_timeout_seconds":   "SWARMCOORD_SILENCE_TIMEOUT_SECONDS",
	"task_max_duration_seconds": "SWARMCOORD_TASK_MAX_DURATION_SECONDS",
	"poll_interval_seconds":     "SWARMCOORD_POLL_INTERVAL_SECONDS",
	"max_runtime_seconds":       "SWARMCOORD_MAX_RUNTIME_SECONDS",
	"max_task_attempts":         "SWARMCOORD_MAX_TASK_ATTEMPTS",
	"max_agent_restarts":        "SWARMCOORD_MAX_AGENT_RESTARTS",
	"token_cap":                 "SWARMCOORD_TOKEN_CAP",
	"cost_cap_usd":              "SWARMCOORD_COST_CAP_USD",
	"budget_reserve_ratio":      "SWARMCOORD_BUDGET_RESERVE_RATIO",
	"authority_role":            "SWARMCOORD_AUTHORITY_ROLE",
	"quality_threshold":         "SWARMCOORD_QUALITY_THRESHOLD",
	"debug":                     "SWARMCOORD_DEBUG",
}

// Load reads path (YAML) into defaults(), applies any bound environment
// variable overrides via viper, then validates the merged result.
// path == "" loads only defaults + env.
func Load(path string) (SwarmConfig, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return SwarmConfig{}, fmt.Errorf("swarmconfig: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return SwarmConfig{}, fmt.Errorf("swarmconfig: parse %s: %w", path, err)
		}
	}

	v := viper.New()
	for field, env := range envBindings {
		if err := v.BindEnv(field, env); err != nil {
			return SwarmConfig{}, fmt.Errorf("swarmconfig: bind %s: %w", env, err)
		}
	}
	applyEnvOverrides(&cfg, v)

	if err := Validate(cfg); err != nil {
		return SwarmConfig{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *SwarmConfig, v *viper.Viper) {
	if s := v.GetString("orchestration_strategy"); s != "" {
		cfg.OrchestrationStrategy = decompose.Mode(s)
	}
	if v.IsSet("max_tasks") {
		cfg.MaxTasks = v.GetInt("max_tasks")
	}
	if v.IsSet("heartbeat_timeout_seconds") {
		cfg.HeartbeatTimeoutSeconds = v.GetFloat64("heartbeat_timeout_seconds")
	}
	if v.IsSet("silence_timeout_seconds") {
		cfg.SilenceTimeoutSeconds = v.GetFloat64("silence_timeout_seconds")
	}
	if v.IsSet("task_max_duration_seconds") {
		cfg.TaskMaxDurationSeconds = v.GetFloat64("task_max_duration_seconds")
	}
	if v.IsSet("poll_interval_seconds") {
		cfg.PollIntervalSeconds = v.GetFloat64("poll_interval_seconds")
	}
	if v.IsSet("max_runtime_seconds") {
		cfg.MaxRuntimeSeconds = v.GetFloat64("max_runtime_seconds")
	}
	if v.IsSet("max_task_attempts") {
		cfg.MaxTaskAttempts = v.GetInt("max_task_attempts")
	}
	if v.IsSet("max_agent_restarts") {
		cfg.MaxAgentRestarts = v.GetInt("max_agent_restarts")
	}
	if v.IsSet("token_cap") {
		cfg.TokenCap = v.GetInt64("token_cap")
	}
	if v.IsSet("cost_cap_usd") {
		cfg.CostCapUSD = v.GetFloat64("cost_cap_usd")
	}
	if v.IsSet("budget_reserve_ratio") {
		cfg.BudgetReserveRatio = v.GetFloat64("budget_reserve_ratio")
	}
	if s := v.GetString("authority_role"); s != "" {
		cfg.AuthorityRole = s
	}
	if v.IsSet("quality_threshold") {
		cfg.QualityThreshold = v.GetFloat64("quality_threshold")
	}
	if v.IsSet("debug") {
		cfg.Debug = v.GetBool("debug")
	}
}

// Validate fails fast on anything that would make the run meaningless:
// no roles, an authority role absent from the roster, an out-of-range
// attempt cap, or an unknown orchestration strategy.
func Validate(cfg SwarmConfig) error {
	if len(cfg.Roles) == 0 {
		return fmt.Errorf("swarmconfig: at least one role is required")
	}
	if cfg.MaxTaskAttempts < 1 {
		return fmt.Errorf("swarmconfig: max_task_attempts must be >= 1, got %d", cfg.MaxTaskAttempts)
	}
	if cfg.MaxAgentRestarts < 0 {
		return fmt.Errorf("swarmconfig: max_agent_restarts must be >= 0, got %d", cfg.MaxAgentRestarts)
	}
	if cfg.QualityThreshold < 0 || cfg.QualityThreshold > 1 {
		return fmt.Errorf("swarmconfig: quality_threshold must be in [0,1], got %v", cfg.QualityThreshold)
	}
	if cfg.BudgetReserveRatio < 0 || cfg.BudgetReserveRatio > 1 {
		return fmt.Errorf("swarmconfig: budget_reserve_ratio must be in [0,1], got %v", cfg.BudgetReserveRatio)
	}
	switch cfg.OrchestrationStrategy {
	case decompose.ModeManual, decompose.ModeFast, decompose.ModeParallel, decompose.ModeHierarchical, decompose.ModeLLM:
	default:
		return fmt.Errorf("swarmconfig: unknown orchestration_strategy %q", cfg.OrchestrationStrategy)
	}
	if cfg.AuthorityRole != "" {
		found := false
		for _, r := range cfg.Roles {
			if r.RoleID == cfg.AuthorityRole {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("swarmconfig: authority_role %q is not in the role roster", cfg.AuthorityRole)
		}
	}
	for _, rid := range cfg.ReviewRoles {
		found := false
		for _, r := range cfg.Roles {
			if r.RoleID == rid {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("swarmconfig: review_roles entry %q is not in the role roster", rid)
		}
	}
	seen := map[string]bool{}
	for _, r := range cfg.Roles {
		if strings.TrimSpace(r.RoleID) == "" {
			return fmt.Errorf("swarmconfig: role with empty role_id")
		}
		if seen[r.RoleID] {
			return fmt.Errorf("swarmconfig: duplicate role_id %q", r.RoleID)
		}
		seen[r.RoleID] = true
	}
	return nil
}
