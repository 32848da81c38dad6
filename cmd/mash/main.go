// Command mash is the interactive shell's entry point: load configuration,
// build a Shell, and run either the REPL or a script depending on how
// stdin/argv were given to us.
package main

import (
	"flag"
	"fmt"
	"os"

	"mash"
)

func main() {
	interactive := flag.Bool("i", false, "force interactive mode regardless of stdin")
	flag.Parse()

	cfg := mash.LoadConfig()
	sh := mash.NewShell(cfg)
	sh.Boot()

	args := flag.Args()
	if len(args) > 0 {
		os.Exit(runScriptFile(sh, args[0], args[1:]))
	}

	if *interactive {
		os.Exit(sh.RunInteractive())
	}
	if mash.IsInteractive() {
		os.Exit(sh.RunInteractive())
	}
	os.Exit(sh.RunScript(os.Stdin))
}

func runScriptFile(sh *mash.Shell, path string, positional []string) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mash: %s\n", err)
		return 1
	}
	defer f.Close()
	sh.SetScript(path, positional)
	return sh.RunScript(f)
}
