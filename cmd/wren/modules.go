package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/wren/dist"
	"github.com/chazu/wren/manifest"
	"github.com/chazu/wren/vm"
)

// moduleLoader resolves and loads imports for the CLI. Resolution is
// relative to the importing module; loading tries the filesystem
// first, then the manifest's chunk store if one is configured.
type moduleLoader struct {
	rootDir    string
	searchDirs []string
	store      *dist.Store
}

func newModuleLoader(m *manifest.Manifest, scriptPath string) *moduleLoader {
	l := &moduleLoader{rootDir: "."}
	if scriptPath != "" {
		l.rootDir = filepath.Dir(scriptPath)
	}
	if m != nil {
		l.searchDirs = m.SourceDirPaths()
		if path := m.StorePath(); path != "" {
			store, err := dist.OpenStore(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "wren: warning: %v\n", err)
			} else {
				l.store = store
			}
		}
	}
	return l
}

// resolve canonicalizes an import name. Imports starting with "./" or
// "../" are joined onto the importing module's directory; everything
// else is a logical name looked up through the search path.
func (l *moduleLoader) resolve(_ *vm.VM, importer, name string) string {
	if !strings.HasPrefix(name, "./") && !strings.HasPrefix(name, "../") {
		return name
	}
	return filepath.ToSlash(filepath.Join(filepath.Dir(importer), name))
}

// load finds the source for a resolved module name.
func (l *moduleLoader) load(_ *vm.VM, name string) (string, bool) {
	for _, dir := range append([]string{l.rootDir}, l.searchDirs...) {
		path := filepath.Join(dir, filepath.FromSlash(name)+".wren")
		if source, err := os.ReadFile(path); err == nil {
			return string(source), true
		}
	}

	if l.store != nil {
		chunk, err := l.store.ByModule(name)
		if err == nil {
			return chunk.Source, true
		}
		if !errors.Is(err, dist.ErrChunkNotFound) {
			fmt.Fprintf(os.Stderr, "wren: warning: %v\n", err)
		}
	}
	return "", false
}
