// Package registry discovers templates and loads their manifests.
// Every immediate subdirectory of the registry root that contains a
// template.yaml file is a template.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/templar-ci/templar/pkg/models"
)

// ManifestName is the file each template directory must carry.
const ManifestName = "template.yaml"

// ErrNotFound is returned when a template name resolves to nothing
// under the registry root.
var ErrNotFound = errors.New("template not found")

// Registry reads template manifests from a directory tree.
type Registry struct {
	root string
}

// New creates a Registry rooted at root.
func New(root string) *Registry {
	return &Registry{root: root}
}

// Root returns the directory templates are discovered under.
func (r *Registry) Root() string {
	return r.root
}

// manifest mirrors the template.yaml layout. Durations are strings in
// the file ("90s", "2m") and converted on load.
type manifest struct {
	Name               string                       `yaml:"name"`
	Description        string                       `yaml:"description"`
	Parameters         []models.ParameterSpec       `yaml:"parameters"`
	PlaceholderPattern string                       `yaml:"placeholder_pattern"`
	Artifacts          []string                     `yaml:"artifacts"`
	Toolchain          *models.ToolchainRequirement `yaml:"toolchain"`
	Build              []manifestBuildStep          `yaml:"build"`
	Scripts            []models.ScriptSpec          `yaml:"scripts"`
}

type manifestBuildStep struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Timeout string   `yaml:"timeout"`
}

// List returns every template under the root, sorted by name.
// Subdirectories without a manifest are skipped silently; a directory
// with a broken manifest fails the listing so defects never hide.
func (r *Registry) List() ([]models.TemplateRef, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("read registry root %s: %w", r.root, err)
	}

	var refs []models.TemplateRef
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
			continue
		}
		ref, err := r.load(dir, e.Name())
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Resolve looks up a single template by name.
func (r *Registry) Resolve(name string) (models.TemplateRef, error) {
	if name == "" {
		return models.TemplateRef{}, fmt.Errorf("resolve template: %w", ErrNotFound)
	}
	dir := filepath.Join(r.root, name)
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
		if os.IsNotExist(err) {
			return models.TemplateRef{}, fmt.Errorf("resolve template %q: %w", name, ErrNotFound)
		}
		return models.TemplateRef{}, fmt.Errorf("resolve template %q: %w", name, err)
	}
	return r.load(dir, name)
}

// load parses one manifest and fills in defaults.
func (r *Registry) load(dir, dirName string) (models.TemplateRef, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return models.TemplateRef{}, fmt.Errorf("read manifest for %s: %w", dirName, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return models.TemplateRef{}, fmt.Errorf("parse manifest for %s: %w", dirName, err)
	}

	ref := models.TemplateRef{
		Name:               m.Name,
		Dir:                dir,
		Description:        m.Description,
		Parameters:         m.Parameters,
		PlaceholderPattern: m.PlaceholderPattern,
		ExpectedArtifacts:  m.Artifacts,
		Toolchain:          m.Toolchain,
		Scripts:            m.Scripts,
	}
	if ref.Name == "" {
		ref.Name = dirName
	}
	if ref.PlaceholderPattern == "" {
		ref.PlaceholderPattern = models.DefaultPlaceholderPattern
	}

	for i, step := range m.Build {
		bs := models.BuildStep{Name: step.Name, Command: step.Command}
		if bs.Name == "" {
			bs.Name = fmt.Sprintf("step-%d", i+1)
		}
		if step.Timeout != "" {
			d, err := time.ParseDuration(step.Timeout)
			if err != nil {
				return models.TemplateRef{}, fmt.Errorf("parse manifest for %s: build step %q timeout: %w", dirName, bs.Name, err)
			}
			bs.Timeout = d
		}
		ref.BuildSteps = append(ref.BuildSteps, bs)
	}

	if err := ref.Validate(); err != nil {
		return models.TemplateRef{}, fmt.Errorf("manifest for %s: %w", dirName, err)
	}
	return ref, nil
}
