package models

import "time"

// Status classifies the outcome of a verification step or a whole run.
type Status string

const (
	// StatusPass indicates the check found nothing wrong.
	StatusPass Status = "PASS"
	// StatusWarn indicates a non-fatal finding worth review.
	StatusWarn Status = "WARN"
	// StatusFail indicates a defect that makes the template unusable.
	StatusFail Status = "FAIL"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusWarn, StatusFail:
		return true
	default:
		return false
	}
}

// severity orders statuses from best to worst.
func (s Status) severity() int {
	switch s {
	case StatusWarn:
		return 1
	case StatusFail:
		return 2
	default:
		return 0
	}
}

// Step names used in verification outcomes.
const (
	StepValidate      = "validate"
	StepGenerate      = "generate"
	StepStaticCheck   = "static-check"
	StepBuild         = "build"
	StepArtifactCheck = "artifact-check"
	StepScriptCheck   = "script-check"
	StepCleanup       = "cleanup"
	StepRunTimeout    = "run-timeout"
)

// StepOutcome records what a single pipeline stage observed.
type StepOutcome struct {
	// Step is the stage name, one of the Step constants.
	Step string `json:"step"`
	// Status is the verdict for this stage.
	Status Status `json:"status"`
	// Messages are the human-readable findings, one per defect.
	Messages []string `json:"messages,omitempty"`
	// StartedAt is when the stage began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the stage ended.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the stage ran.
func (o StepOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// CommandResult captures a single subprocess invocation.
type CommandResult struct {
	// Name identifies the invocation in reports.
	Name string `json:"name"`
	// Command is the argv that was executed.
	Command []string `json:"command"`
	// ExitCode is the process exit code, or -1 if it never exited
	// normally.
	ExitCode int `json:"exit_code"`
	// Stdout holds captured standard output, possibly truncated.
	Stdout string `json:"stdout,omitempty"`
	// Stderr holds captured standard error, possibly truncated.
	Stderr string `json:"stderr,omitempty"`
	// DurationMs is the wall-clock run time in milliseconds.
	DurationMs int64 `json:"duration_ms"`
	// TimedOut is true if the invocation hit its timeout and was killed.
	TimedOut bool `json:"timed_out,omitempty"`
	// Truncated is true if either output stream hit the capture cap.
	Truncated bool `json:"truncated,omitempty"`
}

// OK reports whether the command completed normally with exit code zero.
func (r CommandResult) OK() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// BuildReport aggregates the build step invocations of one run.
type BuildReport struct {
	// Steps holds one entry per executed build step, in order. Steps
	// after the first failure are not executed and not listed.
	Steps []CommandResult `json:"steps"`
}

// OK reports whether every executed build step succeeded.
func (b BuildReport) OK() bool {
	for _, s := range b.Steps {
		if !s.OK() {
			return false
		}
	}
	return true
}

// TimedOut reports whether any build step was killed on timeout.
func (b BuildReport) TimedOut() bool {
	for _, s := range b.Steps {
		if s.TimedOut {
			return true
		}
	}
	return false
}

// ExitStatus returns the exit code of the last executed step, or zero
// when no steps ran.
func (b BuildReport) ExitStatus() int {
	if len(b.Steps) == 0 {
		return 0
	}
	return b.Steps[len(b.Steps)-1].ExitCode
}

// RunConfig is the per-run configuration snapshot. All knobs a run
// consumes are carried here so the recorded result explains itself.
type RunConfig struct {
	// Parameters are the fully resolved template parameters for this
	// run, defaults already merged with overrides.
	Parameters map[string]string `json:"parameters,omitempty"`
	// CleanupOnSuccess removes the workspace when the run does not fail.
	CleanupOnSuccess bool `json:"cleanup_on_success"`
	// CleanupOnFailure removes the workspace even when the run fails.
	CleanupOnFailure bool `json:"cleanup_on_failure"`
	// GenerateTimeout bounds the template engine invocation.
	GenerateTimeout time.Duration `json:"generate_timeout"`
	// StepTimeout bounds each build step unless the step overrides it.
	StepTimeout time.Duration `json:"step_timeout"`
	// ScriptTimeout bounds each functional script invocation.
	ScriptTimeout time.Duration `json:"script_timeout"`
	// RunTimeout bounds the whole verification run when non-zero.
	RunTimeout time.Duration `json:"run_timeout"`
	// FunctionalTests enables execution of allowlisted helper scripts.
	FunctionalTests bool `json:"functional_tests"`
	// ScriptAllowlist names the scripts approved for execution.
	ScriptAllowlist Allowlist `json:"script_allowlist,omitempty"`
}

// Worse returns the more severe of two statuses.
func Worse(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Derive computes the overall status for a set of step outcomes:
// FAIL if any step failed, else WARN if any step warned, else PASS.
func Derive(steps []StepOutcome) Status {
	overall := StatusPass
	for _, s := range steps {
		overall = Worse(overall, s.Status)
	}
	return overall
}

// VerificationResult is the complete record of one verification run.
// It is always produced, even when the run aborts early.
type VerificationResult struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`
	// Template is the reference that was verified.
	Template TemplateRef `json:"template"`
	// Config is the configuration snapshot the run used.
	Config RunConfig `json:"config"`
	// Workspace is the retained workspace path, empty when the
	// workspace was removed.
	Workspace string `json:"workspace,omitempty"`
	// Steps holds one outcome per executed stage, in execution order.
	Steps []StepOutcome `json:"steps"`
	// Overall is the derived verdict for the run.
	Overall Status `json:"overall"`
	// Aborted is true when an abort-class failure stopped the pipeline.
	Aborted bool `json:"aborted,omitempty"`
	// GeneratedFiles lists workspace-relative paths produced by the
	// template engine, sorted.
	GeneratedFiles []string `json:"generated_files,omitempty"`
	// Build holds the build step invocations, if the build stage ran.
	Build *BuildReport `json:"build,omitempty"`
	// Artifacts lists the files matched by the expected artifact
	// patterns, sorted.
	Artifacts []string `json:"artifacts,omitempty"`
	// ScriptRuns holds the functional script invocations, if any ran.
	ScriptRuns []CommandResult `json:"script_runs,omitempty"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the run finished.
	FinishedAt time.Time `json:"finished_at"`
	// DurationMs is the total run time in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// NewResult starts a result record for a run.
func NewResult(runID string, ref TemplateRef, cfg RunConfig) *VerificationResult {
	return &VerificationResult{
		RunID:     runID,
		Template:  ref,
		Config:    cfg,
		StartedAt: time.Now().UTC(),
	}
}

// AddStep appends a stage outcome. Must not be called after Finalize.
func (r *VerificationResult) AddStep(o StepOutcome) {
	r.Steps = append(r.Steps, o)
}

// Finalize stamps the end time and derives the overall verdict. The
// result is immutable afterwards.
func (r *VerificationResult) Finalize() {
	r.FinishedAt = time.Now().UTC()
	r.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	r.Overall = Derive(r.Steps)
}

// Failed reports whether the overall verdict is FAIL.
func (r *VerificationResult) Failed() bool {
	return r.Overall == StatusFail
}
