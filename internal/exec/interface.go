// Package exec runs external commands with bounded output capture,
// per-invocation timeouts, and full process tree termination.
package exec

import (
	"context"
	"time"
)

// DefaultMaxOutput is the per-stream capture cap applied when Options
// does not set one.
const DefaultMaxOutput = 1 << 20 // 1 MiB

// Options controls a single command invocation.
type Options struct {
	// Dir is the working directory. Empty means the caller's.
	Dir string
	// Env is the complete environment for the child. Nil inherits the
	// parent environment; callers that care pass it explicitly.
	Env []string
	// Timeout kills the process tree when exceeded. Zero means no
	// per-invocation timeout; the context still applies.
	Timeout time.Duration
	// MaxOutput caps each captured stream in bytes. Zero means
	// DefaultMaxOutput.
	MaxOutput int
}

// Result reports what a single invocation did. A non-zero exit code is
// recorded here, not returned as an error.
type Result struct {
	// ExitCode is the process exit code, or -1 if the process never
	// exited normally (killed, signaled, failed to start).
	ExitCode int
	// Stdout is the captured standard output, possibly truncated.
	Stdout string
	// Stderr is the captured standard error, possibly truncated.
	Stderr string
	// Duration is the wall-clock time the invocation took.
	Duration time.Duration
	// TimedOut is true when Options.Timeout expired and the process
	// tree was killed.
	TimedOut bool
	// Canceled is true when the context was canceled before the
	// process finished.
	Canceled bool
	// Signal names the signal that terminated the process, if any.
	Signal string
	// StdoutTruncated and StderrTruncated flag streams that hit the
	// capture cap.
	StdoutTruncated bool
	StderrTruncated bool
}

// Truncated reports whether either stream hit the capture cap.
func (r Result) Truncated() bool {
	return r.StdoutTruncated || r.StderrTruncated
}

// Runner executes external commands. The abstraction allows scripting
// command behavior in tests.
type Runner interface {
	// Run executes name with args and waits for completion. The
	// returned error covers start and plumbing failures only; command
	// failures are reported through Result.
	Run(ctx context.Context, name string, args []string, opts Options) (Result, error)
}
