package exec

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// ExecRunner implements Runner using os/exec. Children are started in
// their own process group so a timeout kills the whole tree, not just
// the immediate child.
type ExecRunner struct{}

// NewRunner creates a new ExecRunner.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes a command and waits for it, enforcing the timeout and
// capture caps from opts.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	maxOutput := opts.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	stdout := newCappedBuffer(maxOutput)
	stderr := newCappedBuffer(maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureCommandProcess(cmd)

	start := time.Now()
	res := Result{ExitCode: -1}

	if err := cmd.Start(); err != nil {
		res.Duration = time.Since(start)
		return res, err
	}

	var timeoutCh <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-timeoutCh:
		res.TimedOut = true
		terminateCommandProcess(cmd)
		waitErr = <-waitDone
	case <-ctx.Done():
		res.Canceled = true
		terminateCommandProcess(cmd)
		waitErr = <-waitDone
	}

	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.StdoutTruncated = stdout.Truncated()
	res.StderrTruncated = stderr.Truncated()

	if waitErr == nil {
		res.ExitCode = 0
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			res.Signal = status.Signal().String()
		} else {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, nil
	}
	return res, waitErr
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
