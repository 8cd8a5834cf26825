// Package config handles configuration loading and management for
// templar. It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/templar-ci/templar/pkg/models"
)

// Config holds all configuration for templar.
type Config struct {
	Templates TemplatesConfig `mapstructure:"templates"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Scripts   ScriptsConfig   `mapstructure:"scripts"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Output    OutputConfig    `mapstructure:"output"`
}

// TemplatesConfig locates the template registry.
type TemplatesConfig struct {
	Root string `mapstructure:"root"`
}

// WorkspaceConfig controls where run workspaces are created. An empty
// Root selects the default cache location.
type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

// EngineConfig selects the external template generator.
type EngineConfig struct {
	Bin  string   `mapstructure:"bin"`
	Args []string `mapstructure:"args"`
}

// TimeoutsConfig holds the timeout budget per pipeline concern.
type TimeoutsConfig struct {
	Generate time.Duration `mapstructure:"generate"`
	Step     time.Duration `mapstructure:"step"`
	Script   time.Duration `mapstructure:"script"`
	Run      time.Duration `mapstructure:"run"`
}

// CleanupConfig holds the workspace retention policy.
type CleanupConfig struct {
	OnSuccess bool `mapstructure:"on_success"`
	OnFailure bool `mapstructure:"on_failure"`
}

// ScriptsConfig controls functional script execution.
type ScriptsConfig struct {
	FunctionalTests bool     `mapstructure:"functional_tests"`
	Allowlist       []string `mapstructure:"allowlist"`
}

// BatchConfig holds multi-template run settings.
type BatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// OutputConfig holds console output settings.
type OutputConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (TEMPLAR_*)
// 2. Project config (.templar.yaml in current directory or parent)
// 3. User config (~/.config/templar/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("templates.root", "TEMPLAR_TEMPLATES")
	v.BindEnv("workspace.root", "TEMPLAR_WORKSPACES")
	v.BindEnv("engine.bin", "TEMPLAR_ENGINE")
	v.BindEnv("scripts.functional_tests", "TEMPLAR_FUNCTIONAL_TESTS")
	v.BindEnv("batch.workers", "TEMPLAR_WORKERS")
	v.BindEnv("output.verbose", "TEMPLAR_DEBUG")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in paths.
	cfg.Templates.Root = expandEnv(cfg.Templates.Root)
	cfg.Workspace.Root = expandEnv(cfg.Workspace.Root)
	cfg.Engine.Bin = expandEnv(cfg.Engine.Bin)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Templates.Root = expandEnv(cfg.Templates.Root)
	cfg.Workspace.Root = expandEnv(cfg.Workspace.Root)
	cfg.Engine.Bin = expandEnv(cfg.Engine.Bin)

	return cfg, nil
}

// RunConfig converts the loaded configuration into the per-run
// settings the verification pipeline consumes. Parameters are resolved
// separately per invocation.
func (c *Config) RunConfig() models.RunConfig {
	return models.RunConfig{
		CleanupOnSuccess: c.Cleanup.OnSuccess,
		CleanupOnFailure: c.Cleanup.OnFailure,
		GenerateTimeout:  c.Timeouts.Generate,
		StepTimeout:      c.Timeouts.Step,
		ScriptTimeout:    c.Timeouts.Script,
		RunTimeout:       c.Timeouts.Run,
		FunctionalTests:  c.Scripts.FunctionalTests,
		ScriptAllowlist:  models.Allowlist(c.Scripts.Allowlist),
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if
// it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Registry and workspace locations
	v.SetDefault("templates.root", "templates")
	v.SetDefault("workspace.root", "")

	// Generator defaults; an empty bin falls back to DefaultEngineBin
	v.SetDefault("engine.bin", "")
	v.SetDefault("engine.args", []string{})

	// Timeout defaults
	v.SetDefault("timeouts.generate", "2m")
	v.SetDefault("timeouts.step", "5m")
	v.SetDefault("timeouts.script", "1m")
	v.SetDefault("timeouts.run", "30m")

	// Retention defaults: successful workspaces go, failed ones stay
	v.SetDefault("cleanup.on_success", true)
	v.SetDefault("cleanup.on_failure", false)

	// Script execution is inspect-only unless opted in
	v.SetDefault("scripts.functional_tests", false)
	v.SetDefault("scripts.allowlist", []string{})

	// Batch defaults
	v.SetDefault("batch.workers", 4)

	// Output defaults
	v.SetDefault("output.verbose", false)
}

// getUserConfigDir returns the XDG config directory for templar.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "templar")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "templar")
	}
	return filepath.Join(home, ".config", "templar")
}

// findProjectConfig searches for .templar.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".templar.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Templates: TemplatesConfig{
			Root: "templates",
		},
		Workspace: WorkspaceConfig{
			Root: "",
		},
		Engine: EngineConfig{
			Bin:  "",
			Args: []string{},
		},
		Timeouts: TimeoutsConfig{
			Generate: 2 * time.Minute,
			Step:     5 * time.Minute,
			Script:   1 * time.Minute,
			Run:      30 * time.Minute,
		},
		Cleanup: CleanupConfig{
			OnSuccess: true,
			OnFailure: false,
		},
		Scripts: ScriptsConfig{
			FunctionalTests: false,
			Allowlist:       []string{},
		},
		Batch: BatchConfig{
			Workers: 4,
		},
		Output: OutputConfig{
			Verbose: false,
		},
	}
}
