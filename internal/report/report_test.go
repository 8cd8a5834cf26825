package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/templar-ci/templar/pkg/models"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func sampleResult(name string, overall models.Status) *models.VerificationResult {
	res := models.NewResult("0b1c2d3e-0000-0000-0000-000000000000", models.TemplateRef{Name: name, Dir: "/t/" + name}, models.RunConfig{})
	res.AddStep(models.StepOutcome{Step: models.StepValidate, Status: models.StatusPass})
	switch overall {
	case models.StatusFail:
		res.AddStep(models.StepOutcome{
			Step:     models.StepBuild,
			Status:   models.StatusFail,
			Messages: []string{`step "compile" exited 2`},
		})
	case models.StatusWarn:
		res.AddStep(models.StepOutcome{
			Step:     models.StepStaticCheck,
			Status:   models.StatusWarn,
			Messages: []string{`parameter "port" value "8080" not found in any scanned file`},
		})
	}
	res.Finalize()
	return res
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "nested", "run.json")
	want := sampleResult("go-service", models.StatusFail)

	if err := Write(path, want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Template.Name != want.Template.Name {
		t.Errorf("Template.Name = %q, want %q", got.Template.Name, want.Template.Name)
	}
	if got.Overall != want.Overall {
		t.Errorf("Overall = %q, want %q", got.Overall, want.Overall)
	}
	if len(got.Steps) != len(want.Steps) {
		t.Errorf("len(Steps) = %d, want %d", len(got.Steps), len(want.Steps))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Contains(data, []byte(`"overall": "FAIL"`)) {
		t.Error("report JSON is not indented with expected fields")
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("Load() error = nil for missing file")
	}
}

func TestWriteBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.json")
	results := map[string]*models.VerificationResult{
		"zeta":  sampleResult("zeta", models.StatusPass),
		"alpha": sampleResult("alpha", models.StatusFail),
	}

	if err := WriteBatch(path, results); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	body := string(data)
	if !strings.Contains(body, `"overall": "FAIL"`) {
		t.Error("batch overall is not the worst verdict")
	}
	if strings.Index(body, `"alpha"`) > strings.Index(body, `"zeta"`) {
		t.Error("runs are not ordered by template name")
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	res := sampleResult("go-service", models.StatusFail)
	res.Workspace = "/tmp/workspaces/go-service-0001"

	PrintResult(&buf, res)

	out := buf.String()
	for _, want := range []string{
		"✗ go-service FAIL",
		"run 0b1c2d3e",
		"✓ validate",
		"✗ build",
		`- step "compile" exited 2`,
		"workspace retained: /tmp/workspaces/go-service-0001",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintResult_PassHasNoRetainedWorkspace(t *testing.T) {
	var buf bytes.Buffer
	PrintResult(&buf, sampleResult("go-service", models.StatusPass))

	if strings.Contains(buf.String(), "workspace retained") {
		t.Errorf("output mentions a retained workspace:\n%s", buf.String())
	}
}

func TestPrintBatch(t *testing.T) {
	var buf bytes.Buffer
	results := map[string]*models.VerificationResult{
		"zeta":  sampleResult("zeta", models.StatusPass),
		"alpha": sampleResult("alpha", models.StatusFail),
		"mid":   sampleResult("mid", models.StatusWarn),
	}

	PrintBatch(&buf, results)

	out := buf.String()
	if !strings.Contains(out, "3 templates: 1 passed, 1 warned, 1 failed") {
		t.Errorf("totals line missing:\n%s", out)
	}
	if strings.Index(out, "alpha") > strings.Index(out, "zeta") {
		t.Errorf("templates not sorted:\n%s", out)
	}
	if !strings.Contains(out, `- build: step "compile" exited 2`) {
		t.Errorf("failing step detail missing:\n%s", out)
	}
	// Passing runs stay single-line.
	if strings.Contains(out, "- validate:") {
		t.Errorf("passing steps should not be expanded:\n%s", out)
	}
}
