package coreapi

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime tunable for the agent. It follows a three-layer
// priority: defaults (lowest), environment variables (SSHAGENT_*,
// medium), then functional options passed to NewConfig (highest).
type Config struct {
	// ErrorThresholdPerStep is T_planner: the error count at which a step
	// earns a planner-notification escalation.
	ErrorThresholdPerStep int `json:"error_threshold_per_step"`
	// HumanEscalationThreshold is T_human; must be >= ErrorThresholdPerStep.
	HumanEscalationThreshold int `json:"human_escalation_threshold"`
	// EscalationCooldown suppresses duplicate (step, type) requests.
	EscalationCooldown time.Duration `json:"escalation_cooldown"`
	// MaxRetriesPerCommand bounds the Executor's autocorrection loop.
	MaxRetriesPerCommand int `json:"max_retries_per_command"`
	// AutoCorrectionEnabled toggles the Autocorrection Engine entirely.
	AutoCorrectionEnabled bool `json:"auto_correction_enabled"`
	// DryRunMode stubs Execute calls and suppresses rollback.
	DryRunMode bool `json:"dry_run_mode"`
	// MaxRetentionDays bounds the Tracker's CleanupOldRecords window.
	MaxRetentionDays int `json:"max_retention_days"`
	// MaxSteps bounds the Planner's accepted plan size (1..50).
	MaxSteps int `json:"max_steps"`
	// CommandTimeout is the per-command timeout setting. It is validated
	// here but not passed to the Subtask Generator, whose subtasks use its
	// own 30s default.
	CommandTimeout time.Duration `json:"command_timeout"`
	// ModelTimeout is the model-call timeout setting. No component reads
	// it from Config: the Planner takes its timeout from planner.Config,
	// and the Subtask Generator and Autocorrection Engine set none.
	ModelTimeout time.Duration `json:"model_timeout"`
	// StateSnapshotInterval is the State Manager's auto-save period.
	StateSnapshotInterval time.Duration `json:"state_snapshot_interval"`

	logger Logger
}

// DefaultConfig returns the agent's baseline defaults.
func DefaultConfig() *Config {
	return &Config{
		ErrorThresholdPerStep:    4,
		HumanEscalationThreshold: 6,
		EscalationCooldown:       5 * time.Minute,
		MaxRetriesPerCommand:     2,
		AutoCorrectionEnabled:    true,
		DryRunMode:               false,
		MaxRetentionDays:         7,
		MaxSteps:                 10,
		CommandTimeout:           30 * time.Second,
		ModelTimeout:             60 * time.Second,
		StateSnapshotInterval:    30 * time.Second,
		logger:                   NoOpLogger{},
	}
}

// Option configures a Config at construction time, taking priority over
// both defaults and environment variables.
type Option func(*Config)

// WithLogger attaches a logger used to report how configuration was
// assembled (which env vars were honored, validation failures).
func WithLogger(l Logger) Option {
	return func(c *Config) { c.logger = l }
}

// WithErrorThresholdPerStep overrides T_planner.
func WithErrorThresholdPerStep(n int) Option {
	return func(c *Config) { c.ErrorThresholdPerStep = n }
}

// WithHumanEscalationThreshold overrides T_human.
func WithHumanEscalationThreshold(n int) Option {
	return func(c *Config) { c.HumanEscalationThreshold = n }
}

// WithMaxSteps overrides the Planner's plan-size ceiling.
func WithMaxSteps(n int) Option {
	return func(c *Config) { c.MaxSteps = n }
}

// WithDryRun toggles dry-run mode.
func WithDryRun(enabled bool) Option {
	return func(c *Config) { c.DryRunMode = enabled }
}

// WithCommandTimeout overrides the default per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Config) { c.CommandTimeout = d }
}

// NewConfig builds a Config from defaults, then environment variables, then
// the supplied options, and validates the result.
func NewConfig(opts ...Option) (*Config, error) {
	c := DefaultConfig()
	if err := c.loadFromEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFromEnv overlays SSHAGENT_<SETTING> environment variables onto the
// defaults.
func (c *Config) loadFromEnv() error {
	if v := os.Getenv("SSHAGENT_ERROR_THRESHOLD_PER_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewFrameworkError("Config.loadFromEnv", "config", ErrInvalidConfig).WithID("SSHAGENT_ERROR_THRESHOLD_PER_STEP")
		}
		c.ErrorThresholdPerStep = n
	}
	if v := os.Getenv("SSHAGENT_HUMAN_ESCALATION_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewFrameworkError("Config.loadFromEnv", "config", ErrInvalidConfig).WithID("SSHAGENT_HUMAN_ESCALATION_THRESHOLD")
		}
		c.HumanEscalationThreshold = n
	}
	if v := os.Getenv("SSHAGENT_ESCALATION_COOLDOWN_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewFrameworkError("Config.loadFromEnv", "config", ErrInvalidConfig).WithID("SSHAGENT_ESCALATION_COOLDOWN_MINUTES")
		}
		c.EscalationCooldown = time.Duration(n) * time.Minute
	}
	if v := os.Getenv("SSHAGENT_MAX_RETRIES_PER_COMMAND"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewFrameworkError("Config.loadFromEnv", "config", ErrInvalidConfig).WithID("SSHAGENT_MAX_RETRIES_PER_COMMAND")
		}
		c.MaxRetriesPerCommand = n
	}
	if v := os.Getenv("SSHAGENT_AUTO_CORRECTION_ENABLED"); v != "" {
		c.AutoCorrectionEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SSHAGENT_DRY_RUN_MODE"); v != "" {
		c.DryRunMode = v == "true" || v == "1"
	}
	if v := os.Getenv("SSHAGENT_MAX_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewFrameworkError("Config.loadFromEnv", "config", ErrInvalidConfig).WithID("SSHAGENT_MAX_RETENTION_DAYS")
		}
		c.MaxRetentionDays = n
	}
	if v := os.Getenv("SSHAGENT_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewFrameworkError("Config.loadFromEnv", "config", ErrInvalidConfig).WithID("SSHAGENT_MAX_STEPS")
		}
		c.MaxSteps = n
	}
	if v := os.Getenv("SSHAGENT_COMMAND_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewFrameworkError("Config.loadFromEnv", "config", ErrInvalidConfig).WithID("SSHAGENT_COMMAND_TIMEOUT_SECONDS")
		}
		c.CommandTimeout = time.Duration(n) * time.Second
	}
	return nil
}

// Validate enforces the accepted bounds for each option.
func (c *Config) Validate() error {
	var problems []string
	if c.ErrorThresholdPerStep < 1 {
		problems = append(problems, "error_threshold_per_step must be >= 1")
	}
	if c.HumanEscalationThreshold < c.ErrorThresholdPerStep {
		problems = append(problems, "human_escalation_threshold must be >= error_threshold_per_step")
	}
	if c.EscalationCooldown < 0 {
		problems = append(problems, "escalation_cooldown_minutes must be >= 0")
	}
	if c.MaxRetriesPerCommand < 0 {
		problems = append(problems, "max_retries_per_command must be >= 0")
	}
	if c.MaxRetentionDays < 1 {
		problems = append(problems, "max_retention_days must be >= 1")
	}
	if c.MaxSteps < 1 || c.MaxSteps > 50 {
		problems = append(problems, "max_steps must be within 1..50")
	}
	if c.CommandTimeout <= 0 {
		problems = append(problems, "command_timeout_seconds must be >= 1")
	}
	if len(problems) > 0 {
		return NewFrameworkError("Config.Validate", "config", fmt.Errorf("%v", problems))
	}
	return nil
}

// EscalationTierThreshold returns T3, the emergency-stop threshold
// (T_human + 2 in the escalation tier table).
func (c *Config) EscalationTierThreshold() int {
	return c.HumanEscalationThreshold + 2
}
