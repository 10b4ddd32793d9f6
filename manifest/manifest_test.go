package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "orbit"
version = "0.3.0"

[source]
dirs = ["src", "lib"]
entry = "src/main.wren"

[heap]
initial-size = 1048576
min-size = 524288
growth-percent = 75

[language]
trailing-semicolons = true

[dist]
store = ".wren/chunks.db"
`
	if err := os.WriteFile(filepath.Join(dir, "wren.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "orbit" {
		t.Errorf("project name = %q, want orbit", m.Project.Name)
	}
	if m.Project.Version != "0.3.0" {
		t.Errorf("project version = %q, want 0.3.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Source.Entry != "src/main.wren" {
		t.Errorf("source entry = %q, want src/main.wren", m.Source.Entry)
	}
	if m.Heap.InitialSize != 1048576 {
		t.Errorf("heap initial-size = %d, want 1048576", m.Heap.InitialSize)
	}
	if m.Heap.MinSize != 524288 {
		t.Errorf("heap min-size = %d, want 524288", m.Heap.MinSize)
	}
	if m.Heap.GrowthPercent != 75 {
		t.Errorf("heap growth-percent = %d, want 75", m.Heap.GrowthPercent)
	}
	if !m.Language.TrailingSemicolons {
		t.Error("language trailing-semicolons = false, want true")
	}
	if m.Dist.Store != ".wren/chunks.db" {
		t.Errorf("dist store = %q, want .wren/chunks.db", m.Dist.Store)
	}

	wantEntry := filepath.Join(m.Dir, "src/main.wren")
	if m.EntryPath() != wantEntry {
		t.Errorf("EntryPath = %q, want %q", m.EntryPath(), wantEntry)
	}
	wantStore := filepath.Join(m.Dir, ".wren/chunks.db")
	if m.StorePath() != wantStore {
		t.Errorf("StorePath = %q, want %q", m.StorePath(), wantStore)
	}
}

func TestLoadManifest_Defaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "minimal"
`
	if err := os.WriteFile(filepath.Join(dir, "wren.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "." {
		t.Errorf("source dirs = %v, want [.]", m.Source.Dirs)
	}
	if m.Heap.InitialSize != 0 {
		t.Errorf("heap initial-size = %d, want 0", m.Heap.InitialSize)
	}
	if m.Language.TrailingSemicolons {
		t.Error("trailing-semicolons defaulted to true")
	}
	if m.EntryPath() != "" {
		t.Errorf("EntryPath = %q, want empty", m.EntryPath())
	}
	if m.StorePath() != "" {
		t.Errorf("StorePath = %q, want empty", m.StorePath())
	}
}

func TestLoadManifest_Invalid(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[heap]
initial-size = -1
`
	if err := os.WriteFile(filepath.Join(dir, "wren.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("expected validation error for negative heap size")
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing wren.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	tomlContent := `
[project]
name = "found"
`
	if err := os.WriteFile(filepath.Join(root, "wren.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil for a project with a manifest")
	}
	if m.Project.Name != "found" {
		t.Errorf("project name = %q, want found", m.Project.Name)
	}

	none, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad (no manifest): %v", err)
	}
	if none != nil {
		t.Error("FindAndLoad found a manifest where none exists")
	}
}
