package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/templar-ci/templar/internal/config"
	"github.com/templar-ci/templar/internal/registry"
	"github.com/templar-ci/templar/internal/report"
	"github.com/templar-ci/templar/internal/watch"
	"github.com/templar-ci/templar/pkg/models"
)

var (
	verifyParams          []string
	verifyOutput          string
	verifyVerbose         bool
	verifyNoCleanup       bool
	verifyFunctionalTests bool
	verifyAllow           []string
	verifyWatch           bool
	verifyEngine          string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <template>",
	Short: "Verify a single template end to end",
	Long: `Verify one template: generate it into a fresh workspace, scan the
output for unresolved placeholders, run its build steps, and check
that the expected artifacts exist.

Parameters default to the values declared in template.yaml; override
them with repeated --param flags:

  templar verify go-service --param project_name=shop --param port=9090

The workspace is removed afterwards according to the cleanup policy.
Pass --no-cleanup to always keep it for inspection; the retained path
is printed with the summary.

Helper scripts shipped by the template are checked statically by
default. --functional-tests additionally executes the scripts named
by the allowlist (configuration scripts.allowlist, extended per run
with repeated --allow flags) inside the workspace.

--watch re-runs verification whenever the template source directory
changes, for iterating on a template locally. Ctrl-C exits.

Exit status is 0 when the verdict is PASS or WARN and 1 on FAIL.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringArrayVar(&verifyParams, "param", nil, "Template parameter as key=value (repeatable)")
	verifyCmd.Flags().StringVarP(&verifyOutput, "output", "o", "", "Write the JSON result to this file")
	verifyCmd.Flags().BoolVarP(&verifyVerbose, "verbose", "v", false, "Log pipeline state transitions")
	verifyCmd.Flags().BoolVar(&verifyNoCleanup, "no-cleanup", false, "Keep the workspace regardless of verdict")
	verifyCmd.Flags().BoolVar(&verifyFunctionalTests, "functional-tests", false, "Execute allowlisted helper scripts")
	verifyCmd.Flags().StringArrayVar(&verifyAllow, "allow", nil, "Script name to allowlist for execution (repeatable)")
	verifyCmd.Flags().BoolVar(&verifyWatch, "watch", false, "Re-verify whenever the template source changes")
	verifyCmd.Flags().StringVar(&verifyEngine, "engine", "", "Generator binary (overrides configuration)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	templateName := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyVerifyFlags(cfg)

	overrides, err := parseParams(verifyParams)
	if err != nil {
		return err
	}

	reg, orch, err := newVerifier(cfg, verifyEngine, cfg.Output.Verbose)
	if err != nil {
		return err
	}

	ref, err := reg.Resolve(templateName)
	if err != nil {
		return err
	}

	runCfg := cfg.RunConfig()
	runCfg.Parameters = resolveParams(ref, overrides)

	ctx, cancel := signalContext()
	defer cancel()

	res := verifyOnce(ctx, orch, ref, runCfg)

	if verifyWatch {
		return watchAndReverify(ctx, reg, orch, templateName, overrides, cfg)
	}

	if res.Overall == models.StatusFail {
		return fmt.Errorf("template %s failed verification", ref.Name)
	}
	return nil
}

// applyVerifyFlags overlays command-line flags onto the loaded
// configuration for this invocation.
func applyVerifyFlags(cfg *config.Config) {
	if verifyVerbose {
		cfg.Output.Verbose = true
	}
	if verifyNoCleanup {
		cfg.Cleanup.OnSuccess = false
		cfg.Cleanup.OnFailure = false
	}
	if verifyFunctionalTests {
		cfg.Scripts.FunctionalTests = true
	}
	cfg.Scripts.Allowlist = append(cfg.Scripts.Allowlist, verifyAllow...)
}

// verifyOnce runs one verification under the run-level timeout, prints
// the summary, and writes the JSON result when requested.
func verifyOnce(ctx context.Context, orch verifier, ref models.TemplateRef, runCfg models.RunConfig) *models.VerificationResult {
	if runCfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runCfg.RunTimeout)
		defer cancel()
	}
	res := orch.Run(ctx, ref, runCfg)
	report.PrintResult(os.Stdout, res)

	if verifyOutput != "" {
		if err := report.Write(verifyOutput, res); err != nil {
			fmt.Fprintf(os.Stderr, "write result: %v\n", err)
		} else {
			fmt.Printf("result written to %s\n", verifyOutput)
		}
	}
	return res
}

// verifier is the slice of the orchestrator the verify loop needs.
type verifier interface {
	Run(ctx context.Context, ref models.TemplateRef, cfg models.RunConfig) *models.VerificationResult
}

// watchAndReverify blocks watching the template source directory and
// re-runs verification after each debounced change. The template is
// re-resolved every cycle so manifest edits take effect too.
func watchAndReverify(ctx context.Context, reg *registry.Registry, orch verifier, templateName string, overrides map[string]string, cfg *config.Config) error {
	ref, err := reg.Resolve(templateName)
	if err != nil {
		return err
	}

	w, err := watch.New(ref.Dir, watch.DefaultDebounce)
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Printf("watching %s for changes (Ctrl-C to stop)\n", ref.Dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-w.Changes():
			if !ok {
				return nil
			}
			fmt.Printf("\nchange detected: %s\n", path)

			ref, err := reg.Resolve(templateName)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload template: %v\n", err)
				continue
			}
			runCfg := cfg.RunConfig()
			runCfg.Parameters = resolveParams(ref, overrides)
			verifyOnce(ctx, orch, ref, runCfg)
		}
	}
}
