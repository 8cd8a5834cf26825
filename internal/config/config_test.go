package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/templar-ci/templar/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Templates.Root != "templates" {
		t.Errorf("expected templates root 'templates', got %q", cfg.Templates.Root)
	}

	if cfg.Workspace.Root != "" {
		t.Errorf("expected empty workspace root, got %q", cfg.Workspace.Root)
	}

	if cfg.Timeouts.Generate != 2*time.Minute {
		t.Errorf("expected generate timeout 2m, got %v", cfg.Timeouts.Generate)
	}

	if cfg.Timeouts.Step != 5*time.Minute {
		t.Errorf("expected step timeout 5m, got %v", cfg.Timeouts.Step)
	}

	if cfg.Timeouts.Script != time.Minute {
		t.Errorf("expected script timeout 1m, got %v", cfg.Timeouts.Script)
	}

	if cfg.Timeouts.Run != 30*time.Minute {
		t.Errorf("expected run timeout 30m, got %v", cfg.Timeouts.Run)
	}

	if !cfg.Cleanup.OnSuccess {
		t.Error("expected cleanup.on_success to be true")
	}

	if cfg.Cleanup.OnFailure {
		t.Error("expected cleanup.on_failure to be false")
	}

	if cfg.Scripts.FunctionalTests {
		t.Error("expected scripts.functional_tests to be false")
	}

	if cfg.Batch.Workers != 4 {
		t.Errorf("expected batch workers 4, got %d", cfg.Batch.Workers)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
templates:
  root: /srv/templates
workspace:
  root: /var/tmp/templar
engine:
  bin: scaffold
  args: ["--quiet"]
timeouts:
  generate: 90s
  step: 10m
  script: 2m
  run: 1h
cleanup:
  on_success: false
  on_failure: true
scripts:
  functional_tests: true
  allowlist: [smoke, migrate]
batch:
  workers: 8
output:
  verbose: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Templates.Root != "/srv/templates" {
		t.Errorf("expected templates root '/srv/templates', got %q", cfg.Templates.Root)
	}

	if cfg.Workspace.Root != "/var/tmp/templar" {
		t.Errorf("expected workspace root '/var/tmp/templar', got %q", cfg.Workspace.Root)
	}

	if cfg.Engine.Bin != "scaffold" {
		t.Errorf("expected engine bin 'scaffold', got %q", cfg.Engine.Bin)
	}

	if len(cfg.Engine.Args) != 1 || cfg.Engine.Args[0] != "--quiet" {
		t.Errorf("expected engine args ['--quiet'], got %v", cfg.Engine.Args)
	}

	if cfg.Timeouts.Generate != 90*time.Second {
		t.Errorf("expected generate timeout 90s, got %v", cfg.Timeouts.Generate)
	}

	if cfg.Timeouts.Run != time.Hour {
		t.Errorf("expected run timeout 1h, got %v", cfg.Timeouts.Run)
	}

	if cfg.Cleanup.OnSuccess {
		t.Error("expected cleanup.on_success to be false")
	}

	if !cfg.Cleanup.OnFailure {
		t.Error("expected cleanup.on_failure to be true")
	}

	if !cfg.Scripts.FunctionalTests {
		t.Error("expected scripts.functional_tests to be true")
	}

	if len(cfg.Scripts.Allowlist) != 2 || cfg.Scripts.Allowlist[0] != "smoke" {
		t.Errorf("expected allowlist [smoke migrate], got %v", cfg.Scripts.Allowlist)
	}

	if cfg.Batch.Workers != 8 {
		t.Errorf("expected batch workers 8, got %d", cfg.Batch.Workers)
	}

	if !cfg.Output.Verbose {
		t.Error("expected output.verbose to be true")
	}
}

func TestLoadFromPath_PartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("batch:\n  workers: 2\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Batch.Workers != 2 {
		t.Errorf("expected batch workers 2, got %d", cfg.Batch.Workers)
	}
	if cfg.Templates.Root != "templates" {
		t.Errorf("expected default templates root, got %q", cfg.Templates.Root)
	}
	if cfg.Timeouts.Step != 5*time.Minute {
		t.Errorf("expected default step timeout, got %v", cfg.Timeouts.Step)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadFromPath_ExpandsEnv(t *testing.T) {
	t.Setenv("TEMPLAR_TEST_ROOT", "/opt/templates")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("templates:\n  root: ${TEMPLAR_TEST_ROOT}/live\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Templates.Root != "/opt/templates/live" {
		t.Errorf("expected expanded root, got %q", cfg.Templates.Root)
	}
}

func TestLoad_EnvOverridesProject(t *testing.T) {
	tmpDir := t.TempDir()
	// Isolate from any real user config.
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Chdir(tmpDir)

	projectConfig := "templates:\n  root: project-templates\nbatch:\n  workers: 7\n"
	if err := os.WriteFile(filepath.Join(tmpDir, ".templar.yaml"), []byte(projectConfig), 0644); err != nil {
		t.Fatalf("failed to write project config: %v", err)
	}
	t.Setenv("TEMPLAR_TEMPLATES", "env-templates")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Templates.Root != "env-templates" {
		t.Errorf("expected env override 'env-templates', got %q", cfg.Templates.Root)
	}
	// Project value survives where no env var competes.
	if cfg.Batch.Workers != 7 {
		t.Errorf("expected project workers 7, got %d", cfg.Batch.Workers)
	}
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	tmpDir := t.TempDir()
	xdg := filepath.Join(tmpDir, "xdg")
	t.Setenv("XDG_CONFIG_HOME", xdg)

	userDir := filepath.Join(xdg, "templar")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatalf("failed to create user config dir: %v", err)
	}
	userConfig := "batch:\n  workers: 2\ntimeouts:\n  run: 10m\n"
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(userConfig), 0644); err != nil {
		t.Fatalf("failed to write user config: %v", err)
	}

	projectDir := filepath.Join(tmpDir, "project")
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(projectDir, ".templar.yaml"), []byte("batch:\n  workers: 9\n"), 0644); err != nil {
		t.Fatalf("failed to write project config: %v", err)
	}
	t.Chdir(projectDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Batch.Workers != 9 {
		t.Errorf("expected project workers 9, got %d", cfg.Batch.Workers)
	}
	// User value survives where the project file is silent.
	if cfg.Timeouts.Run != 10*time.Minute {
		t.Errorf("expected user run timeout 10m, got %v", cfg.Timeouts.Run)
	}
}

func TestFindProjectConfig_WalksUp(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	if err := os.WriteFile(filepath.Join(tmpDir, ".templar.yaml"), []byte("batch:\n  workers: 3\n"), 0644); err != nil {
		t.Fatalf("failed to write project config: %v", err)
	}
	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}
	t.Chdir(nested)

	got := GetProjectConfigPath()
	want := filepath.Join(tmpDir, ".templar.yaml")
	// Resolve symlinks so macOS /private/tmp aliases compare equal.
	gotResolved, _ := filepath.EvalSymlinks(got)
	wantResolved, _ := filepath.EvalSymlinks(want)
	if gotResolved != wantResolved {
		t.Errorf("GetProjectConfigPath() = %q, want %q", got, want)
	}
}

func TestRunConfig(t *testing.T) {
	cfg := Default()
	cfg.Cleanup.OnFailure = true
	cfg.Scripts.FunctionalTests = true
	cfg.Scripts.Allowlist = []string{"smoke"}
	cfg.Timeouts.Script = 45 * time.Second

	rc := cfg.RunConfig()

	if !rc.CleanupOnSuccess || !rc.CleanupOnFailure {
		t.Errorf("cleanup flags = %v/%v, want true/true", rc.CleanupOnSuccess, rc.CleanupOnFailure)
	}
	if rc.GenerateTimeout != 2*time.Minute || rc.StepTimeout != 5*time.Minute {
		t.Errorf("timeouts = %v/%v, want 2m/5m", rc.GenerateTimeout, rc.StepTimeout)
	}
	if rc.ScriptTimeout != 45*time.Second {
		t.Errorf("script timeout = %v, want 45s", rc.ScriptTimeout)
	}
	if rc.RunTimeout != 30*time.Minute {
		t.Errorf("run timeout = %v, want 30m", rc.RunTimeout)
	}
	if !rc.FunctionalTests {
		t.Error("functional tests flag not carried over")
	}
	if !rc.ScriptAllowlist.Contains("smoke") {
		t.Errorf("allowlist = %v, want smoke allowed", rc.ScriptAllowlist)
	}
	if rc.Parameters != nil {
		t.Errorf("parameters = %v, want nil until resolved per run", rc.Parameters)
	}
}

func TestResolveEngine(t *testing.T) {
	t.Run("default when nothing configured", func(t *testing.T) {
		t.Setenv("TEMPLAR_ENGINE", "")
		os.Unsetenv("TEMPLAR_ENGINE")

		bin, source := ResolveEngineWithSource(Default())
		if bin != DefaultEngineBin {
			t.Errorf("bin = %q, want %q", bin, DefaultEngineBin)
		}
		if source != EngineSourceDefault {
			t.Errorf("source = %q, want %q", source, EngineSourceDefault)
		}
	})

	t.Run("config file wins over default", func(t *testing.T) {
		t.Setenv("TEMPLAR_ENGINE", "")
		os.Unsetenv("TEMPLAR_ENGINE")

		cfg := Default()
		cfg.Engine.Bin = "scaffold"
		bin, source := ResolveEngineWithSource(cfg)
		if bin != "scaffold" {
			t.Errorf("bin = %q, want scaffold", bin)
		}
		if source != EngineSourceConfig {
			t.Errorf("source = %q, want %q", source, EngineSourceConfig)
		}
	})

	t.Run("environment wins over config", func(t *testing.T) {
		t.Setenv("TEMPLAR_ENGINE", "/usr/local/bin/scaffold")

		cfg := Default()
		cfg.Engine.Bin = "other"
		bin, source := ResolveEngineWithSource(cfg)
		if bin != "/usr/local/bin/scaffold" {
			t.Errorf("bin = %q, want env value", bin)
		}
		if source != EngineSourceEnv {
			t.Errorf("source = %q, want %q", source, EngineSourceEnv)
		}
	})

	t.Run("nil config resolves to default", func(t *testing.T) {
		t.Setenv("TEMPLAR_ENGINE", "")
		os.Unsetenv("TEMPLAR_ENGINE")

		if bin := ResolveEngine(nil); bin != DefaultEngineBin {
			t.Errorf("bin = %q, want %q", bin, DefaultEngineBin)
		}
	})
}
