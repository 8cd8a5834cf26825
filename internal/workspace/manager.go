// Package workspace creates and destroys the isolated directories
// verification runs generate into.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConflict is returned when a freshly derived workspace path already
// exists on disk. Creation never reuses or overwrites an existing
// directory.
var ErrConflict = errors.New("workspace path already exists")

// Provider defines the interface for workspace management. The
// abstraction allows faking workspace behavior in tests.
type Provider interface {
	// Create makes a fresh workspace directory for one run and returns
	// its absolute path.
	Create(runID, template string) (string, error)
	// Destroy removes a workspace previously returned by Create.
	// Destroying a path that is already gone is not an error.
	Destroy(path string) error
	// Root returns the directory all workspaces live under.
	Root() string
}

// Verify Manager implements Provider at compile time.
var _ Provider = (*Manager)(nil)

// Manager hands out unique workspace directories under a single root
// and refuses to remove anything outside it.
type Manager struct {
	root string
	mu   sync.Mutex
	seq  uint64
	now  func() time.Time
}

// NewManager creates a Manager rooted at root. An empty root defaults
// to ~/.cache/templar/workspaces. The root is created if missing.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		root = filepath.Join(home, ".cache", "templar", "workspaces")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &Manager{root: abs, now: time.Now}, nil
}

// Root returns the directory all workspaces live under.
func (m *Manager) Root() string {
	return m.root
}

// Create makes a fresh directory for one verification run. The name
// combines the template name, a UTC timestamp, a process-local sequence
// number, and a random suffix so concurrent runs of the same template
// never collide. If the derived path exists anyway, Create fails with
// ErrConflict rather than reuse it.
func (m *Manager) Create(runID, template string) (string, error) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	now := m.now().UTC()
	m.mu.Unlock()

	suffix := runID
	if suffix == "" {
		suffix = uuid.New().String()
	}
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}

	name := fmt.Sprintf("%s-%s-%04d-%s", sanitizeName(template), now.Format("20060102-150405"), seq%10000, suffix)
	path := filepath.Join(m.root, name)

	if err := os.Mkdir(path, 0755); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("create workspace %s: %w", path, ErrConflict)
		}
		return "", fmt.Errorf("create workspace %s: %w", path, err)
	}
	return path, nil
}

// Destroy removes the workspace at path. The path must resolve to a
// proper subdirectory of the manager root; anything else is refused
// untouched. A path that no longer exists is treated as already
// destroyed.
func (m *Manager) Destroy(path string) error {
	cleanTarget := filepath.Clean(path)

	resolvedTarget, err := filepath.EvalSymlinks(cleanTarget)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Fail closed when the target cannot be resolved.
		return fmt.Errorf("resolve workspace %s: %w", path, err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(m.root)
	if err != nil {
		return fmt.Errorf("resolve workspace root %s: %w", m.root, err)
	}

	if !isSubpath(resolvedTarget, resolvedRoot) {
		return fmt.Errorf("refusing to remove %s: not under workspace root %s", path, m.root)
	}
	return os.RemoveAll(cleanTarget)
}

// isSubpath returns true if target is a proper subpath of root. Both
// paths must already be cleaned and resolved.
func isSubpath(target, root string) bool {
	rootWithSep := root
	if !strings.HasSuffix(rootWithSep, string(filepath.Separator)) {
		rootWithSep = root + string(filepath.Separator)
	}
	return strings.HasPrefix(target, rootWithSep) && len(target) > len(root)
}

// sanitizeName converts a template name into a filesystem-safe
// directory prefix.
func sanitizeName(name string) string {
	if name == "" {
		return "template"
	}
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, name)
	mapped = strings.Trim(mapped, "-")
	if mapped == "" {
		return "template"
	}
	return mapped
}
