package config

import (
	"os"
)

// DefaultEngineBin is the generator invoked when nothing else names
// one.
const DefaultEngineBin = "templar-gen"

// EngineSource represents where the generator binary was resolved
// from.
type EngineSource string

const (
	EngineSourceEnv     EngineSource = "environment"
	EngineSourceConfig  EngineSource = "config_file"
	EngineSourceDefault EngineSource = "default"
)

// ResolveEngine returns the generator binary to invoke.
// It checks in order: environment variable, config file, built-in
// default.
func ResolveEngine(cfg *Config) string {
	bin, _ := ResolveEngineWithSource(cfg)
	return bin
}

// ResolveEngineWithSource returns the generator binary and where it
// was sourced from.
func ResolveEngineWithSource(cfg *Config) (string, EngineSource) {
	if bin := os.Getenv("TEMPLAR_ENGINE"); bin != "" {
		return bin, EngineSourceEnv
	}

	if cfg != nil && cfg.Engine.Bin != "" {
		return os.ExpandEnv(cfg.Engine.Bin), EngineSourceConfig
	}

	return DefaultEngineBin, EngineSourceDefault
}
