// Package scripts verifies the helper scripts a template ships:
// static checks always, execution only for allowlisted names.
package scripts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/templar-ci/templar/internal/exec"
	"github.com/templar-ci/templar/pkg/models"
)

// docCommentWindow is how many leading lines are searched for a
// documentation comment.
const docCommentWindow = 10

// Verifier checks helper scripts inside a generated workspace.
type Verifier struct {
	runner exec.Runner
}

// New creates a script verifier.
func New(runner exec.Runner) *Verifier {
	return &Verifier{runner: runner}
}

// StaticFindings separates hard failures from advisory warnings.
type StaticFindings struct {
	// Failures make the template unusable: missing script, not
	// executable, unresolved placeholder inside.
	Failures []string
	// Warnings are quality findings: missing documentation comment.
	Warnings []string
}

// CheckStatic inspects each declared script without running it.
func (v *Verifier) CheckStatic(root string, specs []models.ScriptSpec, placeholderPattern string) StaticFindings {
	var findings StaticFindings

	re, reErr := regexp.Compile(placeholderPattern)

	for _, spec := range specs {
		path := filepath.Join(root, spec.Path)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				findings.Failures = append(findings.Failures, fmt.Sprintf("script %q: %s not found", spec.Name, spec.Path))
			} else {
				findings.Failures = append(findings.Failures, fmt.Sprintf("script %q: stat %s: %v", spec.Name, spec.Path, err))
			}
			continue
		}
		if info.Mode().Perm()&0111 == 0 {
			findings.Failures = append(findings.Failures, fmt.Sprintf("script %q: %s is not executable", spec.Name, spec.Path))
		}

		data, err := os.ReadFile(path)
		if err != nil {
			findings.Failures = append(findings.Failures, fmt.Sprintf("script %q: read %s: %v", spec.Name, spec.Path, err))
			continue
		}
		if reErr == nil {
			if m := re.Find(data); m != nil {
				findings.Failures = append(findings.Failures, fmt.Sprintf("script %q: unresolved placeholder %q in %s", spec.Name, string(m), spec.Path))
			}
		}
		if !hasDocComment(data) {
			findings.Warnings = append(findings.Warnings, fmt.Sprintf("script %q: %s has no documentation comment", spec.Name, spec.Path))
		}
	}
	return findings
}

// ExecOptions controls functional script execution.
type ExecOptions struct {
	// Timeout bounds each script invocation.
	Timeout time.Duration
	// Env is the base environment for scripts. TEMPLAR_PORT is
	// appended per invocation.
	Env []string
	// MaxOutput caps captured output per stream.
	MaxOutput int
}

// ExecReport is the outcome of the functional script pass.
type ExecReport struct {
	// Results holds one entry per executed script.
	Results []models.CommandResult
	// Skipped names declared scripts that were not on the allowlist
	// and therefore never ran.
	Skipped []string
}

// Execute runs the declared scripts whose names appear on the
// allowlist. The gate is enforced here, regardless of what callers
// filtered earlier: a script missing from the allowlist is never
// executed. Each script gets a fresh OS-assigned port in TEMPLAR_PORT
// so concurrent runs do not collide.
func (v *Verifier) Execute(ctx context.Context, root string, specs []models.ScriptSpec, allow models.Allowlist, opts ExecOptions) ExecReport {
	var report ExecReport

	for _, spec := range specs {
		if !allow.Contains(spec.Name) {
			report.Skipped = append(report.Skipped, spec.Name)
			continue
		}

		env := append([]string{}, opts.Env...)
		port, err := ephemeralPort()
		if err == nil {
			env = append(env, fmt.Sprintf("TEMPLAR_PORT=%d", port))
		}

		cmd := "./" + filepath.ToSlash(spec.Path)
		res, runErr := v.runner.Run(ctx, cmd, nil, exec.Options{
			Dir:       root,
			Env:       env,
			Timeout:   opts.Timeout,
			MaxOutput: opts.MaxOutput,
		})

		result := models.CommandResult{
			Name:       spec.Name,
			Command:    []string{cmd},
			ExitCode:   res.ExitCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
			DurationMs: res.Duration.Milliseconds(),
			TimedOut:   res.TimedOut,
			Truncated:  res.Truncated(),
		}
		if runErr != nil {
			result.ExitCode = -1
			result.Stderr = runErr.Error()
		}
		report.Results = append(report.Results, result)
	}
	return report
}

// hasDocComment reports whether the leading lines carry a comment
// beyond the shebang.
func hasDocComment(data []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() && line < docCommentWindow {
		line++
		text := strings.TrimSpace(scanner.Text())
		if line == 1 && strings.HasPrefix(text, "#!") {
			continue
		}
		if isComment(text) {
			return true
		}
	}
	return false
}

// isComment reports whether a trimmed line is a non-empty comment.
func isComment(line string) bool {
	if body, ok := strings.CutPrefix(line, "#"); ok {
		return strings.TrimSpace(body) != ""
	}
	if body, ok := strings.CutPrefix(line, "//"); ok {
		return strings.TrimSpace(body) != ""
	}
	return false
}

// ephemeralPort asks the OS for a currently free TCP port.
func ephemeralPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
