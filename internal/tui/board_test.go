package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/templar-ci/templar/pkg/models"
)

func finishedResult(name string, overall models.Status) *models.VerificationResult {
	res := models.NewResult("run-"+name, models.TemplateRef{Name: name, Dir: "/t/" + name}, models.RunConfig{})
	switch overall {
	case models.StatusFail:
		res.AddStep(models.StepOutcome{
			Step:     models.StepBuild,
			Status:   models.StatusFail,
			Messages: []string{`step "compile" exited 2`},
		})
	case models.StatusWarn:
		res.AddStep(models.StepOutcome{
			Step:     models.StepValidate,
			Status:   models.StatusWarn,
			Messages: []string{`parameter "extra" is not declared by the template`},
		})
	default:
		res.AddStep(models.StepOutcome{Step: models.StepValidate, Status: models.StatusPass})
	}
	res.Finalize()
	return res
}

func TestNewBoard(t *testing.T) {
	board := New([]string{"go-service", "py-lib"})

	if board == nil {
		t.Fatal("New returned nil")
	}
	if len(board.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(board.rows))
	}
	if board.rows[0].template != "go-service" || board.rows[0].phase != phaseQueued {
		t.Errorf("row 0 = %+v, want queued go-service", board.rows[0])
	}
}

func TestBoard_Update_Quit(t *testing.T) {
	board := New([]string{"go-service"})

	model, cmd := board.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	updated := model.(*Board)
	if !updated.quitting {
		t.Error("quitting should be true after Ctrl+C")
	}
	if cmd == nil {
		t.Error("Expected quit command")
	}
}

func TestBoard_Update_RunLifecycle(t *testing.T) {
	board := New([]string{"go-service"})

	model, _ := board.Update(RunStartedMsg{Template: "go-service"})
	updated := model.(*Board)
	if updated.rows[0].phase != phaseRunning {
		t.Errorf("phase = %v, want running", updated.rows[0].phase)
	}

	res := finishedResult("go-service", models.StatusPass)
	model, _ = updated.Update(RunFinishedMsg{Template: "go-service", Result: res})
	updated = model.(*Board)
	if updated.rows[0].phase != phaseFinished {
		t.Errorf("phase = %v, want finished", updated.rows[0].phase)
	}
	if updated.rows[0].result != res {
		t.Error("result not attached to row")
	}
}

func TestBoard_Update_UnknownTemplateGetsARow(t *testing.T) {
	board := New([]string{"go-service"})

	model, _ := board.Update(RunStartedMsg{Template: "surprise"})

	updated := model.(*Board)
	if len(updated.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(updated.rows))
	}
	if updated.rows[1].template != "surprise" {
		t.Errorf("row 1 = %q, want surprise", updated.rows[1].template)
	}
}

func TestBoard_View(t *testing.T) {
	board := New([]string{"go-service", "py-lib", "rust-cli"})

	model, _ := board.Update(RunStartedMsg{Template: "go-service"})
	model, _ = model.(*Board).Update(RunFinishedMsg{
		Template: "go-service",
		Result:   finishedResult("go-service", models.StatusFail),
	})
	model, _ = model.(*Board).Update(RunStartedMsg{Template: "py-lib"})
	board = model.(*Board)

	view := board.View()

	for _, want := range []string{
		"Verifying templates",
		"go-service",
		"FAIL",
		`build: step "compile" exited 2`,
		"py-lib",
		"running",
		"rust-cli",
		"queued",
		"Press q to quit",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestBoard_View_Done(t *testing.T) {
	board := New([]string{"go-service"})

	model, _ := board.Update(RunFinishedMsg{
		Template: "go-service",
		Result:   finishedResult("go-service", models.StatusPass),
	})
	model, _ = model.(*Board).Update(BatchDoneMsg{Overall: models.StatusPass})
	board = model.(*Board)

	view := board.View()
	if !strings.Contains(view, "batch PASS") {
		t.Errorf("view missing batch verdict:\n%s", view)
	}
	if !strings.Contains(view, "Press q to exit") {
		t.Errorf("view missing exit hint:\n%s", view)
	}
}

func TestBoard_View_QuittingIsEmpty(t *testing.T) {
	board := New([]string{"go-service"})
	model, _ := board.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	if view := model.(*Board).View(); view != "" {
		t.Errorf("view = %q, want empty while quitting", view)
	}
}

func TestFirstDiagnostic(t *testing.T) {
	pass := finishedResult("a", models.StatusPass)
	if got := firstDiagnostic(pass); got != "" {
		t.Errorf("firstDiagnostic(pass) = %q, want empty", got)
	}

	warn := finishedResult("b", models.StatusWarn)
	if got := firstDiagnostic(warn); !strings.Contains(got, "validate:") {
		t.Errorf("firstDiagnostic(warn) = %q, want validate message", got)
	}
}
