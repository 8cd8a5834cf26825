// Package build runs a template instance's declared build steps inside
// its workspace, in order, stopping at the first failure.
package build

import (
	"context"
	"time"

	"github.com/templar-ci/templar/internal/exec"
	"github.com/templar-ci/templar/pkg/models"
)

// Options controls one build run.
type Options struct {
	// StepTimeout bounds each step that does not declare its own.
	StepTimeout time.Duration
	// Env is the complete environment passed to every step. The
	// orchestrator passes ambient state explicitly; nothing is
	// inherited implicitly here.
	Env []string
	// MaxOutput caps captured output per stream per step.
	MaxOutput int
}

// Orchestrator executes build steps through an exec.Runner.
type Orchestrator struct {
	runner exec.Runner
}

// New creates a build orchestrator.
func New(runner exec.Runner) *Orchestrator {
	return &Orchestrator{runner: runner}
}

// Run executes the steps in order inside dir. It stops at the first
// step that times out, exits non-zero, or fails to start; later steps
// are not attempted. All of those are recorded in the report, not
// returned as errors. The error reports context cancellation only.
func (o *Orchestrator) Run(ctx context.Context, dir string, steps []models.BuildStep, opts Options) (models.BuildReport, error) {
	var report models.BuildReport

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		timeout := opts.StepTimeout
		if step.Timeout > 0 {
			timeout = step.Timeout
		}

		res, err := o.runner.Run(ctx, step.Command[0], step.Command[1:], exec.Options{
			Dir:       dir,
			Env:       opts.Env,
			Timeout:   timeout,
			MaxOutput: opts.MaxOutput,
		})
		if err != nil {
			report.Steps = append(report.Steps, models.CommandResult{
				Name:       step.Name,
				Command:    step.Command,
				ExitCode:   -1,
				Stderr:     err.Error(),
				DurationMs: res.Duration.Milliseconds(),
			})
			return report, nil
		}

		report.Steps = append(report.Steps, models.CommandResult{
			Name:       step.Name,
			Command:    step.Command,
			ExitCode:   res.ExitCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
			DurationMs: res.Duration.Milliseconds(),
			TimedOut:   res.TimedOut,
			Truncated:  res.Truncated(),
		})

		if res.Canceled {
			return report, ctx.Err()
		}
		if res.TimedOut || res.ExitCode != 0 {
			break
		}
	}
	return report, nil
}
