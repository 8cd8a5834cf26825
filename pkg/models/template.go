package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPlaceholderPattern matches the {{name}} markers most template
// engines leave behind when a parameter was never substituted.
const DefaultPlaceholderPattern = `\{\{[^{}]*\}\}`

// ParameterSpec describes a single parameter a template accepts.
type ParameterSpec struct {
	// Name is the parameter identifier used for substitution.
	Name string `json:"name" yaml:"name"`
	// Default is the value used when no override is supplied.
	Default string `json:"default" yaml:"default"`
	// Description explains what the parameter controls.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Targets lists generated files expected to contain the resolved
	// value. Empty means any scanned file may satisfy the check.
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// BuildStep is one toolchain invocation a template declares for building
// its generated output.
type BuildStep struct {
	// Name identifies the step in reports.
	Name string `json:"name"`
	// Command is the argv to execute, command first.
	Command []string `json:"command"`
	// Timeout overrides the configured per-step timeout when non-zero.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// ScriptSpec declares a helper script shipped with a template.
type ScriptSpec struct {
	// Name identifies the script in reports and allowlists.
	Name string `json:"name" yaml:"name"`
	// Path is the script location relative to the workspace root.
	Path string `json:"path" yaml:"path"`
}

// ToolchainRequirement pins the build toolchain a template expects to
// find on the host.
type ToolchainRequirement struct {
	// Name is the executable probed on PATH.
	Name string `json:"name" yaml:"name"`
	// MinVersion is the minimum acceptable version, if any.
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty"`
	// VersionArgs are the arguments used to probe the version.
	// Defaults to ["--version"] when empty.
	VersionArgs []string `json:"version_args,omitempty" yaml:"version_args,omitempty"`
}

// TemplateRef identifies a template and carries everything a
// verification run needs to exercise it.
type TemplateRef struct {
	// Name is the unique template identifier.
	Name string `json:"name"`
	// Dir is the template source directory on disk.
	Dir string `json:"dir"`
	// Description is a short human-readable summary.
	Description string `json:"description,omitempty"`
	// Parameters lists the parameters the template accepts.
	Parameters []ParameterSpec `json:"parameters,omitempty"`
	// PlaceholderPattern is the regular expression used to detect
	// unresolved substitution markers in generated files.
	PlaceholderPattern string `json:"placeholder_pattern,omitempty"`
	// ExpectedArtifacts are glob patterns that must each match at least
	// one file after a successful build.
	ExpectedArtifacts []string `json:"expected_artifacts,omitempty"`
	// Toolchain is the build toolchain requirement, if any.
	Toolchain *ToolchainRequirement `json:"toolchain,omitempty"`
	// BuildSteps are run in order inside the generated workspace.
	BuildSteps []BuildStep `json:"build_steps,omitempty"`
	// Scripts are the helper scripts the template is expected to ship.
	Scripts []ScriptSpec `json:"scripts,omitempty"`
}

// ParameterDefaults returns the declared default value for every
// parameter, keyed by name.
func (t TemplateRef) ParameterDefaults() map[string]string {
	defaults := make(map[string]string, len(t.Parameters))
	for _, p := range t.Parameters {
		defaults[p.Name] = p.Default
	}
	return defaults
}

// Parameter returns the spec for the named parameter and whether it is
// declared.
func (t TemplateRef) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Validate checks structural invariants of the reference. It does not
// touch the filesystem.
func (t TemplateRef) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name is empty")
	}
	if t.Dir == "" {
		return fmt.Errorf("template %q has no source directory", t.Name)
	}
	seen := make(map[string]bool, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.Name == "" {
			return fmt.Errorf("template %q declares a parameter with no name", t.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("template %q declares parameter %q twice", t.Name, p.Name)
		}
		seen[p.Name] = true
	}
	for i, s := range t.BuildSteps {
		if len(s.Command) == 0 {
			return fmt.Errorf("template %q build step %d (%s) has an empty command", t.Name, i, s.Name)
		}
	}
	for _, s := range t.Scripts {
		if s.Path == "" {
			return fmt.Errorf("template %q script %q has no path", t.Name, s.Name)
		}
		if filepath.IsAbs(s.Path) || strings.Contains(s.Path, "..") {
			return fmt.Errorf("template %q script %q path must stay inside the workspace", t.Name, s.Name)
		}
	}
	return nil
}

// Allowlist is the explicit set of script names approved for execution.
// Only scripts named here may ever be run by the functional check.
type Allowlist []string

// Contains reports whether the named script is approved.
func (a Allowlist) Contains(name string) bool {
	for _, n := range a {
		if n == name {
			return true
		}
	}
	return false
}
