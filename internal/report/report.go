// Package report persists verification results as JSON and renders
// them for the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/templar-ci/templar/pkg/models"
)

// BatchReport aggregates the results of a multi-template batch.
type BatchReport struct {
	// GeneratedAt is when the batch finished.
	GeneratedAt time.Time `json:"generated_at"`
	// Overall is the worst verdict across all runs.
	Overall models.Status `json:"overall"`
	// Runs holds every run, ordered by template name.
	Runs []*models.VerificationResult `json:"runs"`
}

// Write persists a single result to path, creating parent directories
// as needed.
func Write(path string, res *models.VerificationResult) error {
	return writeJSON(path, res)
}

// WriteBatch persists a batch report to path. Runs are ordered by
// template name so reports diff cleanly.
func WriteBatch(path string, results map[string]*models.VerificationResult) error {
	rep := BatchReport{
		GeneratedAt: time.Now().UTC(),
		Overall:     models.StatusPass,
		Runs:        make([]*models.VerificationResult, 0, len(results)),
	}
	for _, name := range sortedNames(results) {
		res := results[name]
		rep.Overall = models.Worse(rep.Overall, res.Overall)
		rep.Runs = append(rep.Runs, res)
	}
	return writeJSON(path, rep)
}

// Load reads a previously written result.
func Load(path string) (*models.VerificationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report file: %w", err)
	}

	var res models.VerificationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &res, nil
}

// writeJSON marshals v and replaces path via a temp-file rename so a
// reader never observes a half-written report.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write report file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace report file: %w", err)
	}
	return nil
}

// PrintResult renders one run for the console: a verdict line, then a
// line per step with its messages.
func PrintResult(w io.Writer, res *models.VerificationResult) {
	fmt.Fprintf(w, "%s %s %s (%s) run %s\n",
		glyph(res.Overall), res.Template.Name, statusString(res.Overall),
		formatMs(res.DurationMs), shortID(res.RunID))

	for _, step := range res.Steps {
		fmt.Fprintf(w, "  %s %s (%s)\n", glyph(step.Status), step.Step, step.Duration().Round(time.Millisecond))
		for _, msg := range step.Messages {
			fmt.Fprintf(w, "      - %s\n", msg)
		}
	}

	if res.Workspace != "" {
		fmt.Fprintf(w, "  workspace retained: %s\n", res.Workspace)
	}
}

// PrintBatch renders a one-line-per-template summary followed by the
// totals.
func PrintBatch(w io.Writer, results map[string]*models.VerificationResult) {
	names := sortedNames(results)

	width := 0
	for _, name := range names {
		if len(name) > width {
			width = len(name)
		}
	}

	var passed, warned, failed int
	for _, name := range names {
		res := results[name]
		switch res.Overall {
		case models.StatusFail:
			failed++
		case models.StatusWarn:
			warned++
		default:
			passed++
		}

		fmt.Fprintf(w, "%s %-*s %s (%s)\n", glyph(res.Overall), width, name, statusString(res.Overall), formatMs(res.DurationMs))
		if res.Overall == models.StatusPass {
			continue
		}
		for _, step := range res.Steps {
			if step.Status == models.StatusPass {
				continue
			}
			for _, msg := range step.Messages {
				fmt.Fprintf(w, "      - %s: %s\n", step.Step, msg)
			}
		}
	}

	fmt.Fprintf(w, "\n%d templates: %d passed, %d warned, %d failed\n", len(names), passed, warned, failed)
}

func sortedNames(results map[string]*models.VerificationResult) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func glyph(s models.Status) string {
	switch s {
	case models.StatusPass:
		return color.New(color.FgGreen).Sprint("✓")
	case models.StatusWarn:
		return color.New(color.FgYellow).Sprint("⚠")
	default:
		return color.New(color.FgRed).Sprint("✗")
	}
}

func statusString(s models.Status) string {
	switch s {
	case models.StatusPass:
		return color.GreenString(string(s))
	case models.StatusWarn:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
