package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestManager_Create_UniquePaths(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	paths := make(map[string]bool, n)
	errs := make([]error, 0)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, err := m.Create(fmt.Sprintf("run%04d", i), "go-service")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			paths[path] = true
		}(i)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("Create failed %d times, first: %v", len(errs), errs[0])
	}
	if len(paths) != n {
		t.Errorf("got %d unique paths, want %d", len(paths), n)
	}
	for path := range paths {
		if !strings.HasPrefix(path, m.Root()+string(filepath.Separator)) {
			t.Errorf("path %s is not under root %s", path, m.Root())
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			t.Errorf("path %s is not a directory: %v", path, err)
		}
	}
}

func TestManager_Create_ConflictRefused(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	fixed := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	// Pre-create the exact path the first Create will derive.
	name := fmt.Sprintf("go-service-%s-0001-run00001", fixed.Format("20060102-150405"))
	if err := os.Mkdir(filepath.Join(m.Root(), name), 0755); err != nil {
		t.Fatalf("pre-create: %v", err)
	}

	_, err = m.Create("run00001-extra", "go-service")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Create() error = %v, want ErrConflict", err)
	}
}

func TestManager_Destroy_Idempotent(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	path, err := m.Create("run1", "svc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, "main.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if err := m.Destroy(path); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("workspace still exists after Destroy")
	}
	if err := m.Destroy(path); err != nil {
		t.Errorf("second Destroy() error = %v, want nil", err)
	}
}

func TestManager_Destroy_OutsideRootRefused(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	outside := t.TempDir()
	sentinel := filepath.Join(outside, "keep.txt")
	if err := os.WriteFile(sentinel, []byte("do not remove"), 0644); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}

	if err := m.Destroy(outside); err == nil {
		t.Fatal("Destroy() = nil, want refusal for path outside root")
	}
	if _, err := os.Stat(sentinel); err != nil {
		t.Errorf("sentinel was removed: %v", err)
	}
}

func TestManager_Destroy_RootRefused(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Destroy(m.Root()); err == nil {
		t.Error("Destroy(root) = nil, want refusal")
	}
	if _, err := os.Stat(m.Root()); err != nil {
		t.Errorf("root was removed: %v", err)
	}
}

func TestManager_Destroy_SymlinkEscapeRefused(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	outside := t.TempDir()
	sentinel := filepath.Join(outside, "keep.txt")
	if err := os.WriteFile(sentinel, []byte("do not remove"), 0644); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}
	link := filepath.Join(m.Root(), "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if err := m.Destroy(link); err == nil {
		t.Fatal("Destroy() = nil, want refusal for symlink escaping root")
	}
	if _, err := os.Stat(sentinel); err != nil {
		t.Errorf("sentinel was removed through symlink: %v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"go-service", "go-service"},
		{"api/v2 server", "api-v2-server"},
		{"weird!!name", "weird--name"},
		{"--edges--", "edges"},
		{"", "template"},
		{"///", "template"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sanitizeName(tt.in); got != tt.want {
				t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
