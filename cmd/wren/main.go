// Wren CLI - runs scripts, hosts a REPL, and dumps bytecode.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/wren/manifest"
	"github.com/chazu/wren/vm"
)

// Version can be overridden at build time via -ldflags.
var Version = "0.1.0"

// sysexits.h codes for the two script failure modes.
const (
	exitDataErr  = 65 // compile error
	exitSoftware = 70 // runtime error
)

var errColor = color.New(color.FgRed, color.Bold)
var traceColor = color.New(color.FgYellow)

func main() {
	version := flag.Bool("version", false, "Print the version and exit")
	flag.BoolVar(version, "v", false, "Print the version and exit")
	dump := flag.Bool("dump", false, "Print compiled bytecode instead of running")
	verbosity := flag.Int("verbose", 0, "Log verbosity (0 = quiet)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wren [options] [script]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the script, or starts a REPL when no script is given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  wren                  # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  wren script.wren      # Run a script\n")
		fmt.Fprintf(os.Stderr, "  wren --dump x.wren    # Show its bytecode\n")
	}
	flag.Parse()

	if *version {
		fmt.Printf("wren %s\n", Version)
		return
	}

	commonlog.Configure(*verbosity, nil)

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "wren: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) > 1 {
		flag.Usage()
		os.Exit(64)
	}

	if len(args) == 0 && !*dump && m != nil && m.EntryPath() != "" {
		args = []string{m.EntryPath()}
	}

	if len(args) == 0 {
		if *dump {
			fmt.Fprintln(os.Stderr, "wren: --dump needs a script")
			os.Exit(64)
		}
		runREPL(m)
		return
	}

	path := args[0]
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wren: cannot read %s: %v\n", path, err)
		os.Exit(66)
	}

	machine := newVM(m, path)
	defer machine.Free()

	if *dump {
		text, ok := machine.DumpSource("main", string(source))
		if !ok {
			os.Exit(exitDataErr)
		}
		fmt.Print(text)
		return
	}

	switch machine.Interpret("main", string(source)) {
	case vm.ResultCompileError:
		os.Exit(exitDataErr)
	case vm.ResultRuntimeError:
		os.Exit(exitSoftware)
	}
}

// newVM builds a VM configured for the CLI: stdout writes, colored
// diagnostics on stderr, and the module resolution chain rooted at the
// running script.
func newVM(m *manifest.Manifest, scriptPath string) *vm.VM {
	loader := newModuleLoader(m, scriptPath)

	config := vm.Config{
		WriteFn: func(_ *vm.VM, text string) {
			fmt.Print(text)
		},
		ErrorFn:         reportError,
		ResolveModuleFn: loader.resolve,
		LoadModuleFn:    loader.load,
	}
	if m != nil {
		config.InitialHeapSize = m.Heap.InitialSize
		config.MinHeapSize = m.Heap.MinSize
		config.HeapGrowthPercent = m.Heap.GrowthPercent
		config.TrailingSemicolons = m.Language.TrailingSemicolons
	}
	return vm.NewVM(config)
}

func reportError(_ *vm.VM, kind vm.ErrorKind, module string, line int, message string) {
	switch kind {
	case vm.ErrorCompile:
		errColor.Fprintf(os.Stderr, "[%s line %d] %s\n", module, line, message)
	case vm.ErrorRuntime:
		errColor.Fprintf(os.Stderr, "%s\n", message)
	case vm.ErrorStackTrace:
		traceColor.Fprintf(os.Stderr, "[%s line %d] in %s\n", module, line, message)
	}
}
