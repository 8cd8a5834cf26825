package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/templar-ci/templar/pkg/models"
)

// Status icons for template rows.
const (
	iconQueued = "[○]"
	iconPass   = "[✓]"
	iconWarn   = "[⚠]"
	iconFail   = "[✗]"
)

// RunStartedMsg is sent when a template's verification starts.
type RunStartedMsg struct {
	Template string
}

// RunFinishedMsg is sent when a template's verification finishes.
type RunFinishedMsg struct {
	Template string
	Result   *models.VerificationResult
}

// BatchDoneMsg signals that the whole batch has completed.
type BatchDoneMsg struct {
	Overall models.Status
}

// rowPhase tracks where a template is in its lifecycle.
type rowPhase int

const (
	phaseQueued rowPhase = iota
	phaseRunning
	phaseFinished
)

// row is the display state for one template.
type row struct {
	template  string
	phase     rowPhase
	result    *models.VerificationResult
	startedAt time.Time
}

// Board is the bubbletea model for batch verification progress.
type Board struct {
	// rows holds one entry per template, in submission order.
	rows []*row
	// spin animates running rows.
	spin spinner.Model
	// width is the terminal width.
	width int
	// quitting indicates the board is shutting down.
	quitting bool
	// done indicates the batch has completed.
	done bool
	// overall is the batch verdict, valid once done.
	overall models.Status

	titleStyle   lipgloss.Style
	queuedStyle  lipgloss.Style
	runningStyle lipgloss.Style
	passStyle    lipgloss.Style
	warnStyle    lipgloss.Style
	failStyle    lipgloss.Style
	dimStyle     lipgloss.Style
}

// New creates a Board with one queued row per template, kept in the
// given order.
func New(templates []string) *Board {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	rows := make([]*row, 0, len(templates))
	for _, name := range templates {
		rows = append(rows, &row{template: name, phase: phaseQueued})
	}

	return &Board{
		rows: rows,
		spin: sp,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")),

		queuedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")), // Gray

		runningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")), // Blue

		passStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green

		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")), // Orange

		failStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (b *Board) Init() tea.Cmd {
	return b.spin.Tick
}

// Update implements tea.Model.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			b.quitting = true
			return b, tea.Quit
		}

	case tea.WindowSizeMsg:
		b.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		b.spin, cmd = b.spin.Update(msg)
		return b, cmd

	case RunStartedMsg:
		r := b.findOrCreateRow(msg.Template)
		r.phase = phaseRunning
		r.startedAt = time.Now()

	case RunFinishedMsg:
		r := b.findOrCreateRow(msg.Template)
		r.phase = phaseFinished
		r.result = msg.Result

	case BatchDoneMsg:
		b.done = true
		b.overall = msg.Overall
	}

	return b, nil
}

// View implements tea.Model.
func (b *Board) View() string {
	if b.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(b.titleStyle.Render("Verifying templates"))
	sb.WriteString("\n\n")

	width := 0
	for _, r := range b.rows {
		if len(r.template) > width {
			width = len(r.template)
		}
	}

	for _, r := range b.rows {
		sb.WriteString(b.viewRow(r, width))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(b.viewFooter())
	return sb.String()
}

// viewRow renders a single template line.
func (b *Board) viewRow(r *row, width int) string {
	name := fmt.Sprintf("%-*s", width, r.template)

	switch r.phase {
	case phaseRunning:
		elapsed := time.Since(r.startedAt).Round(time.Second)
		return fmt.Sprintf(" %s %s %s",
			b.runningStyle.Render(b.spin.View()), name,
			b.dimStyle.Render(fmt.Sprintf("running %s", elapsed)))

	case phaseFinished:
		icon, style := b.verdictStyle(r.result.Overall)
		line := fmt.Sprintf(" %s %s %s %s",
			style.Render(icon), name,
			style.Render(string(r.result.Overall)),
			b.dimStyle.Render(formatMs(r.result.DurationMs)))
		if diag := firstDiagnostic(r.result); diag != "" {
			line += "\n      " + b.dimStyle.Render(diag)
		}
		return line

	default:
		return fmt.Sprintf(" %s %s %s",
			b.queuedStyle.Render(iconQueued), name,
			b.dimStyle.Render("queued"))
	}
}

// viewFooter renders the footer with help text.
func (b *Board) viewFooter() string {
	if b.done {
		icon, style := b.verdictStyle(b.overall)
		return fmt.Sprintf("%s %s | Press q to exit",
			style.Render(icon), style.Render("batch "+string(b.overall)))
	}
	return b.dimStyle.Render("Press q to quit")
}

// verdictStyle maps a status to its icon and style.
func (b *Board) verdictStyle(s models.Status) (string, lipgloss.Style) {
	switch s {
	case models.StatusPass:
		return iconPass, b.passStyle
	case models.StatusWarn:
		return iconWarn, b.warnStyle
	default:
		return iconFail, b.failStyle
	}
}

// findOrCreateRow finds a row by template name or appends a new one.
func (b *Board) findOrCreateRow(template string) *row {
	for _, r := range b.rows {
		if r.template == template {
			return r
		}
	}
	r := &row{template: template, phase: phaseQueued}
	b.rows = append(b.rows, r)
	return r
}

// firstDiagnostic returns the first message of the first non-passing
// step, empty when the run passed clean.
func firstDiagnostic(res *models.VerificationResult) string {
	for _, step := range res.Steps {
		if step.Status == models.StatusPass {
			continue
		}
		if len(step.Messages) > 0 {
			return fmt.Sprintf("%s: %s", step.Step, step.Messages[0])
		}
	}
	return ""
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

// NewProgram creates a bubbletea program for the board. The returned
// program receives progress via Send().
func NewProgram(templates []string) (*tea.Program, *Board) {
	board := New(templates)
	p := tea.NewProgram(board, tea.WithAltScreen())
	return p, board
}
