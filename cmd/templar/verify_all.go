package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/templar-ci/templar/internal/batch"
	"github.com/templar-ci/templar/internal/config"
	"github.com/templar-ci/templar/internal/report"
	"github.com/templar-ci/templar/internal/tui"
	"github.com/templar-ci/templar/pkg/models"
)

var (
	verifyAllWorkers         int
	verifyAllTUI             bool
	verifyAllOutput          string
	verifyAllVerbose         bool
	verifyAllNoCleanup       bool
	verifyAllFunctionalTests bool
	verifyAllParams          []string
)

var verifyAllCmd = &cobra.Command{
	Use:   "verify-all",
	Short: "Verify every registered template in parallel",
	Long: `Verify all templates under the registry root. Runs are distributed
across a worker pool (batch.workers, default 4); each template gets
its own isolated workspace and its own run-level timeout, so one
broken template never blocks the rest.

--param overrides apply to every template that declares the key;
undeclared keys surface as warnings on the affected runs.

With --tui a live board replaces the line-per-event output: one row
per template with a spinner while it runs and its verdict when done.
The board stays open after the batch finishes; press q to exit.

Exit status is 0 when every template passed or warned and 1 when any
template failed.`,
	Args: cobra.NoArgs,
	RunE: runVerifyAll,
}

func init() {
	verifyAllCmd.Flags().IntVar(&verifyAllWorkers, "workers", 0, "Concurrent verification runs (0 uses configuration)")
	verifyAllCmd.Flags().BoolVar(&verifyAllTUI, "tui", false, "Show a live progress board instead of line output")
	verifyAllCmd.Flags().StringVarP(&verifyAllOutput, "output", "o", "", "Write the JSON batch report to this file")
	verifyAllCmd.Flags().BoolVarP(&verifyAllVerbose, "verbose", "v", false, "Log pipeline state transitions")
	verifyAllCmd.Flags().BoolVar(&verifyAllNoCleanup, "no-cleanup", false, "Keep workspaces regardless of verdict")
	verifyAllCmd.Flags().BoolVar(&verifyAllFunctionalTests, "functional-tests", false, "Execute allowlisted helper scripts")
	verifyAllCmd.Flags().StringArrayVar(&verifyAllParams, "param", nil, "Template parameter as key=value, applied to every template (repeatable)")
}

func runVerifyAll(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyVerifyAllFlags(cfg)

	overrides, err := parseParams(verifyAllParams)
	if err != nil {
		return err
	}

	// The TUI owns the terminal; transition logging would corrupt it.
	verbose := cfg.Output.Verbose && !verifyAllTUI

	reg, orch, err := newVerifier(cfg, "", verbose)
	if err != nil {
		return err
	}

	refs, err := reg.List()
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return fmt.Errorf("no templates under %s", reg.Root())
	}

	runCfg := cfg.RunConfig()
	run := func(ctx context.Context, ref models.TemplateRef, cfg models.RunConfig) *models.VerificationResult {
		cfg.Parameters = resolveParams(ref, overrides)
		return orch.Run(ctx, ref, cfg)
	}

	coord := batch.New(batch.Config{
		Workers:    cfg.Batch.Workers,
		RunTimeout: cfg.Timeouts.Run,
		Run:        run,
	})

	ctx, cancel := signalContext()
	defer cancel()

	var results map[string]*models.VerificationResult
	if verifyAllTUI {
		results, err = runBatchWithTUI(ctx, coord, refs, runCfg)
		if err != nil {
			return err
		}
		report.PrintBatch(os.Stdout, results)
	} else {
		done := make(chan struct{})
		go func() {
			defer close(done)
			consumeEventsHeadless(coord.Events())
		}()
		results = coord.RunAll(ctx, refs, runCfg)
		<-done
		fmt.Println()
		report.PrintBatch(os.Stdout, results)
	}

	if verifyAllOutput != "" {
		if err := report.WriteBatch(verifyAllOutput, results); err != nil {
			fmt.Fprintf(os.Stderr, "write batch report: %v\n", err)
		} else {
			fmt.Printf("batch report written to %s\n", verifyAllOutput)
		}
	}

	if failed := countFailed(results); failed > 0 {
		return fmt.Errorf("%d of %d templates failed verification", failed, len(results))
	}
	return nil
}

// applyVerifyAllFlags overlays command-line flags onto the loaded
// configuration for this invocation.
func applyVerifyAllFlags(cfg *config.Config) {
	if verifyAllWorkers > 0 {
		cfg.Batch.Workers = verifyAllWorkers
	}
	if verifyAllVerbose {
		cfg.Output.Verbose = true
	}
	if verifyAllNoCleanup {
		cfg.Cleanup.OnSuccess = false
		cfg.Cleanup.OnFailure = false
	}
	if verifyAllFunctionalTests {
		cfg.Scripts.FunctionalTests = true
	}
}

// consumeEventsHeadless prints batch progress to stdout, one line per
// event.
func consumeEventsHeadless(events <-chan batch.Event) {
	for event := range events {
		switch event.Type {
		case batch.EventRunStarted:
			fmt.Printf("[STARTED] %s\n", event.Template)
		case batch.EventRunFinished:
			if event.Result == nil {
				continue
			}
			fmt.Printf("[%s] %s (%dms)\n", event.Result.Overall, event.Template, event.Result.DurationMs)
		}
	}
}

// runBatchWithTUI drives the batch behind a live board. The board owns
// the terminal until the user quits, even after the batch completes.
func runBatchWithTUI(ctx context.Context, coord *batch.Coordinator, refs []models.TemplateRef, runCfg models.RunConfig) (results map[string]*models.VerificationResult, retErr error) {
	// Suppress log output while the TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in TUI batch: %v", r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	program, _ := tui.NewProgram(names)

	go forwardEventsToTUI(program, coord.Events())

	batchDone := make(chan map[string]*models.VerificationResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				batchDone <- map[string]*models.VerificationResult{}
			}
		}()
		batchDone <- coord.RunAll(ctx, refs, runCfg)
	}()

	tuiDone := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				tuiDone <- fmt.Errorf("panic in TUI: %v", r)
			}
		}()
		_, err := program.Run()
		tuiDone <- err
	}()

	select {
	case results = <-batchDone:
		program.Send(tui.BatchDoneMsg{Overall: batch.Overall(results)})
		// Wait for the user to quit so they can read the board.
		if err := <-tuiDone; err != nil {
			return results, err
		}
		return results, nil

	case err := <-tuiDone:
		// The user quit mid-batch. Cancel the remaining runs and let
		// the workers drain so every template still gets a result.
		cancel()
		results = <-batchDone
		return results, err
	}
}

// forwardEventsToTUI converts batch events to board messages.
func forwardEventsToTUI(program *tea.Program, events <-chan batch.Event) {
	for event := range events {
		switch event.Type {
		case batch.EventRunStarted:
			program.Send(tui.RunStartedMsg{Template: event.Template})
		case batch.EventRunFinished:
			program.Send(tui.RunFinishedMsg{Template: event.Template, Result: event.Result})
		}
	}
}

// countFailed counts results with a FAIL verdict.
func countFailed(results map[string]*models.VerificationResult) int {
	n := 0
	for _, res := range results {
		if res.Overall == models.StatusFail {
			n++
		}
	}
	return n
}
