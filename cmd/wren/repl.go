package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/chazu/wren/manifest"
)

var promptColor = color.New(color.FgCyan)

// runREPL reads a line at a time into a shared "repl" module.
// Expressions echo their value; statements just run.
func runREPL(m *manifest.Manifest) {
	machine := newVM(m, "")
	defer machine.Free()

	fmt.Printf("wren %s\n", Version)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		promptColor.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// An expression is rerun wrapped in a print so its value shows
		// the way the script itself would display it.
		if machine.CompilesAsExpression("repl", line) {
			machine.Interpret("repl", "System.print("+line+")")
			continue
		}
		machine.Interpret("repl", line)
	}
}
