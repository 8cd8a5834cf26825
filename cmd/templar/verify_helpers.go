package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/templar-ci/templar/internal/config"
	"github.com/templar-ci/templar/internal/engine"
	"github.com/templar-ci/templar/internal/exec"
	"github.com/templar-ci/templar/internal/orchestrator"
	"github.com/templar-ci/templar/internal/registry"
	"github.com/templar-ci/templar/internal/workspace"
	"github.com/templar-ci/templar/pkg/models"
)

// parseParams converts repeated --param key=value flags into a map.
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

// resolveParams merges the template's declared defaults with operator
// overrides. Overrides win; unknown keys are passed through so the
// pipeline can warn about them.
func resolveParams(ref models.TemplateRef, overrides map[string]string) map[string]string {
	params := ref.ParameterDefaults()
	for k, v := range overrides {
		params[k] = v
	}
	return params
}

// newVerifier wires the verification pipeline from loaded configuration:
// registry, generator engine, workspace manager, orchestrator. A
// non-empty engineOverride beats the configured and environment-derived
// generator binary.
func newVerifier(cfg *config.Config, engineOverride string, verbose bool) (*registry.Registry, *orchestrator.Orchestrator, error) {
	runner := exec.NewRunner()
	reg := registry.New(cfg.Templates.Root)

	bin := engineOverride
	if bin == "" {
		bin = config.ResolveEngine(cfg)
	}
	eng := engine.NewCLIEngine(reg, runner, bin,
		engine.WithTimeout(cfg.Timeouts.Generate),
		engine.WithBaseArgs(cfg.Engine.Args),
	)

	workspaces, err := workspace.NewManager(cfg.Workspace.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare workspace root: %w", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		Workspaces: workspaces,
		Engine:     eng,
		Runner:     runner,
		Verbose:    verbose,
	})
	return reg, orch, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM so a
// run in flight can record its interruption and clean up.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()
	return ctx, cancel
}
