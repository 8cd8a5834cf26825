// Package engine adapts the external template generator CLI behind a
// narrow interface. The generator is treated as an opaque black box:
// templar invokes it, bounds it, and inspects only what lands on disk.
package engine

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/templar-ci/templar/internal/exec"
	"github.com/templar-ci/templar/internal/registry"
	"github.com/templar-ci/templar/pkg/models"
)

// GenerationError reports a failed or misbehaving generator invocation.
type GenerationError struct {
	// Template is the template being materialized.
	Template string
	// Detail summarizes what went wrong, including trailing generator
	// output when available.
	Detail string
	// Err is the underlying cause, if any.
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generate %s: %s: %v", e.Template, e.Detail, e.Err)
	}
	return fmt.Sprintf("generate %s: %s", e.Template, e.Detail)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Engine resolves template names and materializes template instances.
type Engine interface {
	// Resolve looks up a template by name.
	Resolve(name string) (models.TemplateRef, error)
	// Materialize renders the template into dest with the given
	// parameters and returns the sorted, dest-relative list of files
	// it produced.
	Materialize(ctx context.Context, ref models.TemplateRef, dest string, params map[string]string) ([]string, error)
}

// CLIEngine shells out to a generator binary. The invocation contract
// is: <bin> <args...> --template <dir> --output <dest> --param k=v ...
type CLIEngine struct {
	registry *registry.Registry
	runner   exec.Runner
	bin      string
	args     []string
	timeout  time.Duration
}

// Option configures a CLIEngine.
type Option func(*CLIEngine)

// WithTimeout bounds each generator invocation.
func WithTimeout(d time.Duration) Option {
	return func(e *CLIEngine) { e.timeout = d }
}

// WithBaseArgs inserts fixed arguments before the per-run ones.
func WithBaseArgs(args []string) Option {
	return func(e *CLIEngine) { e.args = args }
}

// NewCLIEngine creates an engine around the given generator binary.
func NewCLIEngine(reg *registry.Registry, runner exec.Runner, bin string, opts ...Option) *CLIEngine {
	e := &CLIEngine{
		registry: reg,
		runner:   runner,
		bin:      bin,
		timeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve looks up a template in the registry.
func (e *CLIEngine) Resolve(name string) (models.TemplateRef, error) {
	return e.registry.Resolve(name)
}

// Materialize invokes the generator and inventories what it wrote.
func (e *CLIEngine) Materialize(ctx context.Context, ref models.TemplateRef, dest string, params map[string]string) ([]string, error) {
	args := append([]string{}, e.args...)
	args = append(args, "--template", ref.Dir, "--output", dest)

	// Sorted parameter order keeps invocations reproducible.
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--param", k+"="+params[k])
	}

	res, err := e.runner.Run(ctx, e.bin, args, exec.Options{Timeout: e.timeout})
	if err != nil {
		return nil, &GenerationError{Template: ref.Name, Detail: "generator failed to start", Err: err}
	}
	if res.TimedOut {
		return nil, &GenerationError{Template: ref.Name, Detail: fmt.Sprintf("generator timed out after %s", e.timeout)}
	}
	if res.Canceled {
		return nil, &GenerationError{Template: ref.Name, Detail: "generator canceled", Err: ctx.Err()}
	}
	if res.ExitCode != 0 {
		return nil, &GenerationError{
			Template: ref.Name,
			Detail:   fmt.Sprintf("generator exited %d: %s", res.ExitCode, tail(res.Stderr, 400)),
		}
	}

	files, err := ListFiles(dest)
	if err != nil {
		return nil, &GenerationError{Template: ref.Name, Detail: "inventory generated files", Err: err}
	}
	if len(files) == 0 {
		return nil, &GenerationError{Template: ref.Name, Detail: "generator exited 0 but produced no files"}
	}
	return files, nil
}

// Verify CLIEngine implements Engine at compile time.
var _ Engine = (*CLIEngine)(nil)

// ListFiles walks root and returns the sorted, root-relative paths of
// every regular file under it.
func ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// tail returns at most n trailing bytes of s, trimmed.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
