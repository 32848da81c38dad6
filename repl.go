package mash

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"mash/parser"
)

// lineSource abstracts where the next physical line of input comes from:
// an interactive readline terminal, or a plain scanner over a script file.
// Both the continuation-prompt path and the here-document body path pull
// from the same source, since both are "more lines of this same input
// stream" in the original shell.
type lineSource interface {
	ReadLine(prompt string) (string, bool)
}

type replLineSource struct{ term *readline.Instance }

func (r replLineSource) ReadLine(prompt string) (string, bool) {
	r.term.SetPrompt(prompt)
	line, err := r.term.Readline()
	if err != nil {
		return "", false
	}
	return line, true
}

type scannerLineSource struct{ s *bufio.Scanner }

func (r scannerLineSource) ReadLine(prompt string) (string, bool) {
	if !r.s.Scan() {
		return "", false
	}
	return r.s.Text(), true
}

func (sh *Shell) requestContinuation(prompt string) (string, bool) {
	return sh.lines.ReadLine(prompt)
}

func (sh *Shell) readHereDocLine(prompt string) (string, bool) {
	return sh.lines.ReadLine(prompt)
}

// IsInteractive infers interactivity from whether stdin is a terminal,
// per spec §6 ("infers interactive from whether stdin is seekable" —
// concretely, a tty check, since a seekable regular file is the
// non-interactive script case this same check distinguishes).
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Boot performs startup per spec §6: install signal handlers, initialise
// the job table (done in NewShell), source env/.mashrc if present,
// populate HOME/PWD.
func (sh *Shell) Boot() {
	sh.installSignalHandlers()
	if home := sh.Home(); home != "" {
		os.Setenv("HOME", home)
	}
	os.Setenv("PWD", sh.getCWD())
	sh.sourceRCFile()
}

func (sh *Shell) sourceRCFile() {
	path := sh.Config.RCFile
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	sh.runBuiltin("source", []string{"source", path}, os.Stdin, os.Stdout, os.Stderr)
}

// RunInteractive drives the REPL: readline prompt, parse, execute, job
// table maintenance, repeat until EOF or `exit`.
func (sh *Shell) RunInteractive() int {
	term, err := readline.NewEx(&readline.Config{
		HistoryFile:     sh.Config.HistoryFile,
		HistoryLimit:    sh.Config.HistoryLimit,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mash: %s\n", err)
		return 1
	}
	defer term.Close()
	sh.lines = replLineSource{term: term}

	p := parser.New(sh, sh.requestContinuation, sh.readHereDocLine)

	for {
		sh.pollSignals()
		for _, line := range sh.Jobs.Update() {
			fmt.Println(line)
		}

		raw, ok := sh.lines.ReadLine(sh.RenderPrompt())
		if !ok {
			fmt.Println()
			return sh.LastExitStatus
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}

		sh.runLine(p, raw)
		if sh.exiting {
			return sh.exitCode
		}
	}
}

// RunScript executes commands read from r (a non-interactive script),
// returning the exit status of the last pipeline run.
func (sh *Shell) RunScript(r io.Reader) int {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sh.lines = scannerLineSource{s: sc}

	p := parser.New(sh, sh.requestContinuation, sh.readHereDocLine)

	for {
		line, ok := sh.lines.ReadLine("")
		if !ok {
			return sh.LastExitStatus
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		sh.runLine(p, line)
		if sh.exiting {
			return sh.exitCode
		}
	}
}

func (sh *Shell) runLine(p *parser.Parser, raw string) {
	parsed, err := p.Parse(raw)
	if err != nil {
		var synErr *parser.SyntaxError
		if errors.As(err, &synErr) {
			sh.Diagnostic("", synErr)
			return
		}
		sh.Diagnostic("", err)
		return
	}

	status := sh.LastExitStatus
	for _, pl := range parsed.Pipelines {
		if !pipelineRunPolicyAllows(pl.Policy, status) {
			continue
		}
		code, _, err := sh.LaunchPipeline(pl)
		if err != nil {
			sh.Diagnostic("", err)
			code = 1
		}
		status = code
		sh.setResult(status)
		if sh.exiting {
			return
		}
	}
}
