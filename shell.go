// Package mash implements an interactive POSIX-style command shell: a
// table-driven lexer/parser (see the parser subpackage), a fork/exec
// execution engine, and a job table with signal-driven lifecycle tracking.
package mash

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"mash/parser"
)

// Shell holds every piece of process-wide state the original shell kept as
// package-level singletons, as the fields of one value threaded through the
// REPL. This makes the shell testable without forking a real process and
// removes initialisation-order hazards between the pieces.
type Shell struct {
	mu sync.RWMutex

	CWD               string
	PreviousDir       string
	DirStack          []string
	ShellPID          int
	LastBackgroundPID int
	LastExitStatus    int
	StartTime         time.Time
	ScriptName        string
	PositionalParams  []string

	Aliases map[string]string
	Jobs    *JobTable

	Config *Config
	Log    *log.Logger
	debug  bool

	SessionID uuid.UUID

	sigint  chan struct{}
	sigtstp chan struct{}

	lines lineSource

	exiting  bool
	exitCode int
}

// NewShell builds a Shell rooted at the process's current working directory,
// mirroring global_state.go's GetGlobalState initialisation without the
// sync.Once singleton.
func NewShell(cfg *Config) *Shell {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = os.Getenv("HOME")
		if cwd == "" {
			cwd = "/"
		}
	}

	prevDir := os.Getenv("OLDPWD")
	if prevDir == "" {
		prevDir = os.Getenv("HOME")
		if prevDir == "" || prevDir == cwd {
			prevDir = filepath.Dir(cwd)
		}
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}

	logger := log.New(os.Stderr, "", 0)

	sh := &Shell{
		CWD:               cwd,
		PreviousDir:       prevDir,
		DirStack:          []string{cwd},
		ShellPID:          os.Getpid(),
		LastBackgroundPID: 0,
		LastExitStatus:    0,
		StartTime:         time.Now(),
		ScriptName:        "mash",
		PositionalParams:  nil,
		Aliases:           make(map[string]string),
		Jobs:              NewJobTable(),
		Config:            cfg,
		Log:               logger,
		debug:             os.Getenv("MASH_DEBUG") != "",
		SessionID:         uuid.New(),
		sigint:            make(chan struct{}, 1),
		sigtstp:           make(chan struct{}, 1),
	}

	home := os.Getenv("HOME")
	if home == "" {
		if u, err := os.UserHomeDir(); err == nil {
			home = u
			os.Setenv("HOME", home)
		}
	}
	os.Setenv("PWD", cwd)
	os.Setenv("OLDPWD", prevDir)
	sh.setResult(0)

	return sh
}

// trace writes a debug line gated by MASH_DEBUG, tagged with the session id
// so interleaved sessions in a shared log stream stay distinguishable.
func (sh *Shell) trace(format string, args ...any) {
	if !sh.debug {
		return
	}
	sh.Log.Printf("mash[%s]: "+format, append([]any{sh.SessionID.String()[:8]}, args...)...)
}

// Diagnostic prints a user-visible error to stderr with the shell's
// standard "mash: ..." prefix, or "mash: context: ..." when context is
// non-empty.
func (sh *Shell) Diagnostic(context string, err error) {
	if context == "" {
		fmt.Fprintf(os.Stderr, "mash: %s\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "mash: %s: %s\n", context, err)
}

func (sh *Shell) setResult(status int) {
	sh.mu.Lock()
	sh.LastExitStatus = status
	sh.mu.Unlock()
	os.Setenv("result", fmt.Sprint(status))
}

// UpdateCWD records a directory change, updating PreviousDir, the dir stack
// top and the PWD/OLDPWD environment variables, mirroring
// GlobalState.UpdateCWD.
func (sh *Shell) UpdateCWD(newCWD string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.CWD != newCWD {
		sh.PreviousDir = sh.CWD
	}
	sh.CWD = newCWD
	if len(sh.DirStack) > 0 {
		sh.DirStack[0] = newCWD
	}
	os.Setenv("OLDPWD", sh.PreviousDir)
	os.Setenv("PWD", sh.CWD)
}

// SetScript records the script name and positional parameters for a
// non-interactive run, exposed as $0/$1../$#/$@ via ExpandVar.
func (sh *Shell) SetScript(name string, positional []string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.ScriptName = name
	sh.PositionalParams = positional
}

func (sh *Shell) getCWD() string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.CWD
}

// --- parser.Expander ---

// ExpandVar implements parser.Expander. Special variables are resolved
// against shell state; everything else is a process-environment lookup.
func (sh *Shell) ExpandVar(name string) (string, bool) {
	switch name {
	case "?":
		sh.mu.RLock()
		defer sh.mu.RUnlock()
		return fmt.Sprint(sh.LastExitStatus), true
	case "$":
		sh.mu.RLock()
		defer sh.mu.RUnlock()
		return fmt.Sprint(sh.ShellPID), true
	case "!":
		sh.mu.RLock()
		defer sh.mu.RUnlock()
		if sh.LastBackgroundPID == 0 {
			return "", true
		}
		return fmt.Sprint(sh.LastBackgroundPID), true
	case "#":
		sh.mu.RLock()
		defer sh.mu.RUnlock()
		return fmt.Sprint(len(sh.PositionalParams)), true
	case "@", "*":
		sh.mu.RLock()
		defer sh.mu.RUnlock()
		out := ""
		for i, p := range sh.PositionalParams {
			if i > 0 {
				out += " "
			}
			out += p
		}
		return out, true
	case "0":
		sh.mu.RLock()
		defer sh.mu.RUnlock()
		return sh.ScriptName, true
	case "PPID":
		return fmt.Sprint(os.Getppid()), true
	case "RANDOM":
		return fmt.Sprint(pseudoRandom()), true
	case "SECONDS":
		sh.mu.RLock()
		defer sh.mu.RUnlock()
		return fmt.Sprint(int(time.Since(sh.StartTime).Seconds())), true
	}
	if len(name) == 1 && name[0] >= '1' && name[0] <= '9' {
		idx := int(name[0] - '0')
		sh.mu.RLock()
		defer sh.mu.RUnlock()
		if idx < 1 || idx > len(sh.PositionalParams) {
			return "", true
		}
		return sh.PositionalParams[idx-1], true
	}
	return os.LookupEnv(name)
}

// ExpandAlias implements parser.Expander. depth is the number of alias
// expansions already performed for the command currently being parsed; the
// parser enforces the recursion bound, this just looks the name up.
func (sh *Shell) ExpandAlias(name string, depth int) (string, bool) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	body, ok := sh.Aliases[name]
	return body, ok
}

// Home implements parser.Expander.
func (sh *Shell) Home() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return "/"
}

// Glob implements parser.Expander, delegating to globPattern (glob.go).
func (sh *Shell) Glob(pattern string) []string {
	return globPattern(pattern)
}

// ExpandCommand implements parser.Expander by parsing and executing src as
// a nested line with stdout captured, per cmd_substitution.go.
func (sh *Shell) ExpandCommand(src string) (string, error) {
	return sh.runCaptured(src)
}

var _ parser.Expander = (*Shell)(nil)
