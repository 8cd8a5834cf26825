// Package orchestrator sequences a single verification run: workspace,
// generation, static checks, build, artifact check, script check,
// cleanup. Abort-class failures stop the pipeline; step-class failures
// are recorded and the remaining stages still run, so one invocation
// surfaces as many defects as possible.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/templar-ci/templar/internal/artifacts"
	"github.com/templar-ci/templar/internal/build"
	"github.com/templar-ci/templar/internal/engine"
	"github.com/templar-ci/templar/internal/exec"
	"github.com/templar-ci/templar/internal/scripts"
	"github.com/templar-ci/templar/internal/staticcheck"
	"github.com/templar-ci/templar/internal/workspace"
	"github.com/templar-ci/templar/pkg/models"
)

// State identifies where a run is in its lifecycle.
type State string

const (
	StateCreated          State = "CREATED"
	StateValidating       State = "VALIDATING"
	StateGenerating       State = "GENERATING"
	StateStaticChecking   State = "STATIC_CHECKING"
	StateBuilding         State = "BUILDING"
	StateArtifactChecking State = "ARTIFACT_CHECKING"
	StateScriptChecking   State = "SCRIPT_CHECKING"
	StateFinalized        State = "FINALIZED"
	StateAborted          State = "ABORTED"
)

// toolchainProbeTimeout bounds the toolchain version probe.
const toolchainProbeTimeout = 10 * time.Second

// Config wires an Orchestrator.
type Config struct {
	// Workspaces creates and destroys run directories.
	Workspaces workspace.Provider
	// Engine resolves and materializes templates.
	Engine engine.Engine
	// Runner executes build steps, scripts, and toolchain probes.
	Runner exec.Runner
	// Verbose enables state transition logging.
	Verbose bool
}

// Orchestrator coordinates verification runs. It is safe for
// concurrent use; each run keeps its own state.
type Orchestrator struct {
	workspaces workspace.Provider
	engine     engine.Engine
	runner     exec.Runner
	builder    *build.Orchestrator
	scripts    *scripts.Verifier
	verbose    bool
}

// New creates an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		workspaces: cfg.Workspaces,
		engine:     cfg.Engine,
		runner:     cfg.Runner,
		builder:    build.New(cfg.Runner),
		scripts:    scripts.New(cfg.Runner),
		verbose:    cfg.Verbose,
	}
}

// runCtx carries the mutable state of one run between steps.
type runCtx struct {
	ref       models.TemplateRef
	cfg       models.RunConfig
	result    *models.VerificationResult
	state     State
	workspace string
	files     []string
	buildOK   bool
}

// pipelineStep declares one stage: the outcome name it records, the
// state the run enters, whether a failure aborts the run, and an
// optional precondition.
type pipelineStep struct {
	name   string
	state  State
	aborts bool
	when   func(*runCtx) bool
	run    func(context.Context, *runCtx) (models.Status, []string)
}

// Run verifies one template end to end and always returns a complete
// result, whatever happened on the way.
func (o *Orchestrator) Run(ctx context.Context, ref models.TemplateRef, cfg models.RunConfig) *models.VerificationResult {
	runID := uuid.New().String()
	result := models.NewResult(runID, ref, cfg)
	rc := &runCtx{ref: ref, cfg: cfg, result: result, state: StateCreated}

	steps := []pipelineStep{
		{name: models.StepValidate, state: StateValidating, aborts: true, run: o.stepValidate},
		{name: models.StepGenerate, state: StateGenerating, aborts: true, run: o.stepGenerate},
		{name: models.StepStaticCheck, state: StateStaticChecking, run: o.stepStaticCheck},
		{name: models.StepBuild, state: StateBuilding, run: o.stepBuild},
		{
			name:  models.StepArtifactCheck,
			state: StateArtifactChecking,
			// Artifact expectations are only meaningful after a
			// successful build.
			when: func(rc *runCtx) bool { return rc.buildOK },
			run:  o.stepArtifactCheck,
		},
		{name: models.StepScriptCheck, state: StateScriptChecking, run: o.stepScriptCheck},
	}

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			result.AddStep(timeoutOutcome(err))
			break
		}
		if st.when != nil && !st.when(rc) {
			continue
		}

		o.transition(rc, st.state)
		outcome := o.runStep(ctx, st, rc)
		result.AddStep(outcome)

		if st.aborts && outcome.Status == models.StatusFail {
			result.Aborted = true
			o.transition(rc, StateAborted)
			break
		}
	}

	o.cleanup(rc)
	if !result.Aborted {
		o.transition(rc, StateFinalized)
	}
	result.Finalize()
	return result
}

// runStep executes one stage with timing and panic containment. A
// panic is recorded as a failure of the stage, never as a crash of the
// run.
func (o *Orchestrator) runStep(ctx context.Context, st pipelineStep, rc *runCtx) (outcome models.StepOutcome) {
	outcome = models.StepOutcome{Step: st.name, StartedAt: time.Now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[orchestrator] step %s panicked: %v", st.name, r)
			outcome.Status = models.StatusFail
			outcome.Messages = append(outcome.Messages, fmt.Sprintf("internal error in %s: %v", st.name, r))
		}
		outcome.FinishedAt = time.Now().UTC()
	}()

	status, msgs := st.run(ctx, rc)
	outcome.Status = status
	outcome.Messages = msgs
	return outcome
}

// stepValidate checks the reference, probes the toolchain, and creates
// the workspace. Failure here aborts the run.
func (o *Orchestrator) stepValidate(ctx context.Context, rc *runCtx) (models.Status, []string) {
	if err := rc.ref.Validate(); err != nil {
		return models.StatusFail, []string{err.Error()}
	}

	status := models.StatusPass
	var msgs []string

	for _, name := range unknownParameters(rc.ref, rc.cfg.Parameters) {
		status = models.StatusWarn
		msgs = append(msgs, fmt.Sprintf("parameter %q is not declared by the template", name))
	}

	if rc.ref.Toolchain != nil {
		if msg := o.probeToolchain(ctx, rc.ref.Toolchain); msg != "" {
			status = models.StatusWarn
			msgs = append(msgs, msg)
		}
	}

	ws, err := o.workspaces.Create(rc.result.RunID, rc.ref.Name)
	if err != nil {
		return models.StatusFail, append(msgs, err.Error())
	}
	rc.workspace = ws
	rc.result.Workspace = ws
	return status, msgs
}

// stepGenerate materializes the template into the workspace. Failure
// here aborts the run.
func (o *Orchestrator) stepGenerate(ctx context.Context, rc *runCtx) (models.Status, []string) {
	genCtx := ctx
	if rc.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, rc.cfg.GenerateTimeout)
		defer cancel()
	}

	files, err := o.engine.Materialize(genCtx, rc.ref, rc.workspace, rc.cfg.Parameters)
	if err != nil {
		return models.StatusFail, []string{err.Error()}
	}
	rc.files = files
	rc.result.GeneratedFiles = files
	return models.StatusPass, nil
}

// stepStaticCheck scans generated files. Unresolved placeholders are
// hard failures; a parameter value that never surfaced is advisory.
func (o *Orchestrator) stepStaticCheck(ctx context.Context, rc *runCtx) (models.Status, []string) {
	placeholders := staticcheck.CheckUnresolvedPlaceholders(rc.workspace, rc.files, rc.ref.PlaceholderPattern)

	targets := make(map[string][]string)
	for _, p := range rc.ref.Parameters {
		if len(p.Targets) > 0 {
			targets[p.Name] = p.Targets
		}
	}
	injection := staticcheck.CheckParameterInjection(rc.workspace, rc.files, rc.cfg.Parameters, targets)

	msgs := append(placeholders, injection...)
	switch {
	case len(placeholders) > 0:
		return models.StatusFail, msgs
	case len(injection) > 0:
		return models.StatusWarn, msgs
	default:
		return models.StatusPass, nil
	}
}

// stepBuild runs the declared build steps with an explicit environment.
func (o *Orchestrator) stepBuild(ctx context.Context, rc *runCtx) (models.Status, []string) {
	if len(rc.ref.BuildSteps) == 0 {
		rc.buildOK = true
		return models.StatusPass, []string{"no build steps declared"}
	}

	report, err := o.builder.Run(ctx, rc.workspace, rc.ref.BuildSteps, build.Options{
		StepTimeout: rc.cfg.StepTimeout,
		Env:         o.runEnv(rc),
	})
	rc.result.Build = &report
	if err != nil {
		return models.StatusFail, []string{fmt.Sprintf("build interrupted: %v", err)}
	}

	rc.buildOK = report.OK()
	if rc.buildOK {
		return models.StatusPass, nil
	}
	return models.StatusFail, buildMessages(report)
}

// stepArtifactCheck verifies the expected artifact patterns against
// the built workspace.
func (o *Orchestrator) stepArtifactCheck(ctx context.Context, rc *runCtx) (models.Status, []string) {
	inv, err := artifacts.Check(rc.workspace, rc.ref.ExpectedArtifacts)
	if err != nil {
		return models.StatusFail, []string{err.Error()}
	}
	rc.result.Artifacts = inv.Found

	if inv.OK() {
		return models.StatusPass, nil
	}
	msgs := make([]string, 0, len(inv.Missing))
	for _, pattern := range inv.Missing {
		msgs = append(msgs, fmt.Sprintf("no artifact matches pattern %q", pattern))
	}
	return models.StatusFail, msgs
}

// stepScriptCheck statically checks every declared script and, when
// functional tests are enabled, executes the allowlisted ones.
func (o *Orchestrator) stepScriptCheck(ctx context.Context, rc *runCtx) (models.Status, []string) {
	findings := o.scripts.CheckStatic(rc.workspace, rc.ref.Scripts, rc.ref.PlaceholderPattern)
	failures := findings.Failures
	warnings := findings.Warnings
	var notes []string

	if rc.cfg.FunctionalTests {
		rep := o.scripts.Execute(ctx, rc.workspace, rc.ref.Scripts, rc.cfg.ScriptAllowlist, scripts.ExecOptions{
			Timeout: rc.cfg.ScriptTimeout,
			Env:     o.runEnv(rc),
		})
		rc.result.ScriptRuns = rep.Results
		for _, res := range rep.Results {
			switch {
			case res.TimedOut:
				failures = append(failures, fmt.Sprintf("script %q timed out after %s", res.Name, rc.cfg.ScriptTimeout))
			case res.ExitCode != 0:
				failures = append(failures, fmt.Sprintf("script %q exited %d", res.Name, res.ExitCode))
			}
		}
		for _, name := range rep.Skipped {
			notes = append(notes, fmt.Sprintf("script %q not on allowlist, not executed", name))
		}
	}

	msgs := append(append(failures, warnings...), notes...)
	switch {
	case len(failures) > 0:
		return models.StatusFail, msgs
	case len(warnings) > 0:
		return models.StatusWarn, msgs
	default:
		return models.StatusPass, msgs
	}
}

// cleanup applies the retention policy after all verification stages.
// A cleanup failure is recorded as a WARN outcome; the verification
// verdict itself never hinges on workspace removal.
func (o *Orchestrator) cleanup(rc *runCtx) {
	if rc.workspace == "" {
		return
	}

	verdict := models.Derive(rc.result.Steps)
	remove := rc.cfg.CleanupOnSuccess
	if verdict == models.StatusFail {
		remove = rc.cfg.CleanupOnFailure
	}
	if !remove {
		return
	}

	start := time.Now().UTC()
	if err := o.workspaces.Destroy(rc.workspace); err != nil {
		log.Printf("[orchestrator] cleanup of %s failed: %v", rc.workspace, err)
		rc.result.AddStep(models.StepOutcome{
			Step:       models.StepCleanup,
			Status:     models.StatusWarn,
			Messages:   []string{fmt.Sprintf("remove workspace: %v", err)},
			StartedAt:  start,
			FinishedAt: time.Now().UTC(),
		})
		return
	}
	rc.result.Workspace = ""
}

// runEnv builds the explicit child environment for builds and scripts.
// Ambient state is passed deliberately, never assumed.
func (o *Orchestrator) runEnv(rc *runCtx) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env,
		"TEMPLAR_RUN_ID="+rc.result.RunID,
		"TEMPLAR_TEMPLATE="+rc.ref.Name,
		"TEMPLAR_WORKSPACE="+rc.workspace,
	)
	return env
}

// transition moves the run to its next state.
func (o *Orchestrator) transition(rc *runCtx, next State) {
	if o.verbose {
		log.Printf("[run %s] %s -> %s", shortID(rc.result.RunID), rc.state, next)
	}
	rc.state = next
}

// timeoutOutcome records a run-level deadline or cancellation.
func timeoutOutcome(err error) models.StepOutcome {
	msg := "run canceled"
	if err == context.DeadlineExceeded {
		msg = "run timeout exceeded"
	}
	now := time.Now().UTC()
	return models.StepOutcome{
		Step:       models.StepRunTimeout,
		Status:     models.StatusFail,
		Messages:   []string{msg},
		StartedAt:  now,
		FinishedAt: now,
	}
}

// buildMessages summarizes the failing entries of a build report.
func buildMessages(report models.BuildReport) []string {
	var msgs []string
	for _, s := range report.Steps {
		switch {
		case s.TimedOut:
			msgs = append(msgs, fmt.Sprintf("step %q timed out after %dms", s.Name, s.DurationMs))
		case s.ExitCode == -1 && s.Stdout == "" && s.Stderr != "":
			msgs = append(msgs, fmt.Sprintf("step %q failed to start: %s", s.Name, s.Stderr))
		case s.ExitCode != 0:
			msgs = append(msgs, fmt.Sprintf("step %q exited %d", s.Name, s.ExitCode))
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "build failed")
	}
	return msgs
}

// unknownParameters returns resolved parameter names the template does
// not declare, sorted.
func unknownParameters(ref models.TemplateRef, params map[string]string) []string {
	var unknown []string
	for name := range params {
		if _, ok := ref.Parameter(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
