package mash

import (
	"fmt"
	"io"
)

// modifyOutcome is the result of a cmd-modifying built-in: either the
// rewritten command should still execute, or the line is a no-op.
type modifyOutcome int

const (
	doExecute modifyOutcome = iota
	notExecute
)

// applyModifyBuiltin implements ifok/ifnot per spec §4.4/§9: if argv[1] is
// --help, print help and suppress execution; otherwise evaluate $result
// and either drop the leading token (letting the rest of argv execute) or
// suppress execution entirely.
func (sh *Shell) applyModifyBuiltin(name string, argv []string, stdout, stderr io.Writer) ([]string, modifyOutcome) {
	if len(argv) > 1 && argv[1] == "--help" {
		fmt.Fprintf(stdout, "%s: run the rest of the command only if the previous result matches\n", name)
		if name == "ifok" {
			fmt.Fprintln(stdout, "usage: ifok command [args...]  -- runs command if $result == 0")
		} else {
			fmt.Fprintln(stdout, "usage: ifnot command [args...] -- runs command if $result != 0")
		}
		return nil, notExecute
	}

	succeeded := sh.LastExitStatus == 0
	shouldRun := (name == "ifok" && succeeded) || (name == "ifnot" && !succeeded)
	if !shouldRun {
		return nil, notExecute
	}
	if len(argv) < 2 {
		fmt.Fprintf(stderr, "mash: %s: missing command\n", name)
		return nil, notExecute
	}
	return argv[1:], doExecute
}
