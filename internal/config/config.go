// Package config loads Autonoma's configuration: defaults applied
// programmatically, then a .autonoma.yaml file, then AUTONOMA_* environment
// variables, via spf13/viper.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// AgentConfig describes how to spawn one role's CLI subprocess.
type AgentConfig struct {
	Path           string   `mapstructure:"path"`
	BaseArgs       []string `mapstructure:"base_args"`
	PromptViaStdin bool     `mapstructure:"prompt_via_stdin"`
}

// VerificationConfig controls the build/test/lint/typecheck commands a
// developer's work is checked against. Empty commands are skipped; when
// every field is empty the orchestrator falls back to project-scanner
// detection.
type VerificationConfig struct {
	BuildCmd     []string `mapstructure:"build_cmd"`
	TestCmd      []string `mapstructure:"test_cmd"`
	LintCmd      []string `mapstructure:"lint_cmd"`
	TypeCheckCmd []string `mapstructure:"type_check_cmd"`
}

// RetryConfig bounds how many times a task or CEO-approval round may retry
// before escalating.
type RetryConfig struct {
	MaxTaskRetries      int `mapstructure:"max_task_retries"`
	MaxCEOApprovalTries int `mapstructure:"max_ceo_approval_tries"`
}

// ConcurrencyConfig bounds how many developer subprocesses may run at once
// within a parallel batch.
type ConcurrencyConfig struct {
	MaxParallelDevelopers int `mapstructure:"max_parallel_developers"`
}

// ObservabilityConfig selects and configures the trace backend.
type ObservabilityConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

// ProjectConfig identifies the working directory an orchestration runs
// against and the human-readable name recorded in status.json.
type ProjectConfig struct {
	Name       string `mapstructure:"name"`
	WorkingDir string `mapstructure:"working_dir"`
}

// GuidanceConfig controls the external guidance.txt rendezvous poll.
type GuidanceConfig struct {
	PollInterval string `mapstructure:"poll_interval"`
}

// Config is Autonoma's full configuration.
type Config struct {
	Project       ProjectConfig                `mapstructure:"project"`
	Agents        map[string]AgentConfig       `mapstructure:"agents"`
	Verification  VerificationConfig           `mapstructure:"verification"`
	Retry         RetryConfig                  `mapstructure:"retry"`
	Concurrency   ConcurrencyConfig            `mapstructure:"concurrency"`
	Observability ObservabilityConfig          `mapstructure:"observability"`
	Guidance      GuidanceConfig               `mapstructure:"guidance"`
}

// Load reads configuration from .autonoma.yaml (if present) and
// AUTONOMA_*-prefixed environment variables, applies defaults, and returns
// the populated Config.
func Load() (*Config, error) {
	viper.SetEnvPrefix("AUTONOMA")
	viper.AutomaticEnv()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Project.WorkingDir == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Project.WorkingDir = wd
		}
	}

	if cfg.Agents == nil {
		cfg.Agents = make(map[string]AgentConfig)
	}
	for _, role := range []string{"ceo", "staff-engineer", "developer", "qa"} {
		if _, ok := cfg.Agents[role]; !ok {
			cfg.Agents[role] = AgentConfig{
				Path:           "claude",
				BaseArgs:       []string{"--print", "--output-format", "stream-json"},
				PromptViaStdin: true,
			}
		}
	}

	if cfg.Retry.MaxTaskRetries == 0 {
		cfg.Retry.MaxTaskRetries = 2
	}
	if cfg.Retry.MaxCEOApprovalTries == 0 {
		cfg.Retry.MaxCEOApprovalTries = 3
	}

	if cfg.Concurrency.MaxParallelDevelopers == 0 {
		cfg.Concurrency.MaxParallelDevelopers = 4
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "autonoma"
	}

	if cfg.Guidance.PollInterval == "" {
		cfg.Guidance.PollInterval = "5s"
	}
}

// Validate runs cheap structural checks that apply regardless of whether an
// orchestration is about to start.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Guidance.PollInterval); err != nil {
		return fmt.Errorf("config: invalid guidance.poll_interval: %w", err)
	}
	if c.Retry.MaxTaskRetries < 0 {
		return fmt.Errorf("config: retry.max_task_retries must be >= 0")
	}
	if c.Concurrency.MaxParallelDevelopers < 1 {
		return fmt.Errorf("config: concurrency.max_parallel_developers must be >= 1")
	}
	return nil
}

// ValidateForRun performs the additional checks required before actually
// starting an orchestration (start/resume/adopt), beyond the cheap
// structural checks Validate always runs.
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Project.WorkingDir == "" {
		return fmt.Errorf("config: project.working_dir is required")
	}

	info, err := os.Stat(c.Project.WorkingDir)
	if err != nil {
		return fmt.Errorf("config: working directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: working directory %q is not a directory", c.Project.WorkingDir)
	}

	for _, role := range []string{"ceo", "staff-engineer", "developer", "qa"} {
		if _, ok := c.Agents[role]; !ok {
			return fmt.Errorf("config: missing agent configuration for role %q", role)
		}
	}

	return nil
}
