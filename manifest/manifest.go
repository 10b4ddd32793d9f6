// Package manifest handles wren.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a wren.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Source   Source   `toml:"source"`
	Heap     Heap     `toml:"heap"`
	Language Language `toml:"language"`
	Dist     Dist     `toml:"dist"`

	// Dir is the directory containing the wren.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures module search and the entry script.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// Heap tunes the collector. Sizes are in bytes; zero keeps the VM
// default.
type Heap struct {
	InitialSize   int `toml:"initial-size"`
	MinSize       int `toml:"min-size"`
	GrowthPercent int `toml:"growth-percent"`
}

// Language holds syntax toggles.
type Language struct {
	TrailingSemicolons bool `toml:"trailing-semicolons"`
}

// Dist configures the optional chunk store used as a module fallback.
type Dist struct {
	Store string `toml:"store"` // database path, relative to Dir
}

// Load parses a wren.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "wren.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"."}
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a wren.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "wren.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) validate() error {
	if m.Heap.InitialSize < 0 {
		return fmt.Errorf("heap.initial-size cannot be negative")
	}
	if m.Heap.MinSize < 0 {
		return fmt.Errorf("heap.min-size cannot be negative")
	}
	if m.Heap.GrowthPercent < 0 {
		return fmt.Errorf("heap.growth-percent cannot be negative")
	}
	return nil
}

// SourceDirPaths returns absolute paths for the configured source
// directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// EntryPath returns the absolute path of the entry script, or "" when
// no entry is configured.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}

// StorePath returns the absolute path of the configured chunk store,
// or "" when dist is not configured.
func (m *Manifest) StorePath() string {
	if m.Dist.Store == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Dist.Store)
}
