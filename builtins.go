package mash

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"mash/parser"
)

// builtinClass is the three-way classification from spec §4.4.
type builtinClass int

const (
	builtinNone builtinClass = iota // not a built-in: external command
	builtinModify
	builtinShellOnly
	builtinChildSafe
)

var builtinClasses = map[string]builtinClass{
	"ifok":  builtinModify,
	"ifnot": builtinModify,

	"cd":     builtinShellOnly,
	"export": builtinShellOnly,
	"alias":  builtinShellOnly,
	"source": builtinShellOnly,
	"exit":   builtinShellOnly,
	"jobs":   builtinShellOnly,
	"fg":     builtinShellOnly,
	"bg":     builtinShellOnly,
	"disown": builtinShellOnly,
	"wait":   builtinShellOnly,
	"kill":   builtinShellOnly,

	"echo":  builtinChildSafe,
	"pwd":   builtinChildSafe,
	"sleep": builtinChildSafe,
	"math":  builtinChildSafe,
	"help":  builtinChildSafe,
	"color": builtinChildSafe,
	"test":  builtinChildSafe,
}

func classify(name string) builtinClass {
	return builtinClasses[name]
}

// helpOrder is the list of built-in names the help built-in prints, in
// order; color and test are not included.
var helpOrder = []string{
	"cd", "pwd", "echo", "export", "alias", "source", "exit", "help",
	"sleep", "math", "ifok", "ifnot",
	"jobs", "fg", "bg", "kill", "wait", "disown",
}

// runBuiltin dispatches to the named built-in's implementation. It is
// called both for shell-resident execution (directly against sh) and from
// a goroutine-backed pipeline stage, in which case mutations to sh are
// still visible to the real shell: Go has no fork-style address-space
// isolation, so unlike the reference implementation, a shell-only
// built-in piped alongside other commands (e.g. `cd /tmp | true`) does
// mutate the real shell's state. This is called out as a deliberate,
// documented deviation rather than silently diverging from spec.
func (sh *Shell) runBuiltin(name string, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	switch name {
	case "cd":
		return sh.builtinCd(argv, stderr)
	case "pwd":
		return sh.builtinPwd(stdout)
	case "echo":
		return sh.builtinEcho(argv, stdout)
	case "export":
		return sh.builtinExport(argv, stdout, stderr)
	case "alias":
		return sh.builtinAlias(argv, stdout, stderr)
	case "source":
		return sh.builtinSource(argv, stdout, stderr)
	case "exit":
		return sh.builtinExit(argv)
	case "help":
		return sh.builtinHelp(stdout)
	case "sleep":
		return sh.builtinSleep(argv, stderr)
	case "math":
		return sh.builtinMath(argv, stdout, stderr)
	case "color":
		return sh.builtinColor(argv, stdout, stderr)
	case "test":
		return sh.builtinTest(argv)
	case "jobs":
		return sh.builtinJobs(argv, stdout)
	case "fg":
		return sh.builtinFg(argv, stdout, stderr)
	case "bg":
		return sh.builtinBg(argv, stdout, stderr)
	case "kill":
		return sh.builtinKill(argv, stdout, stderr)
	case "wait":
		return sh.builtinWait(argv, stdout)
	case "disown":
		return sh.builtinDisown(argv, stderr)
	}
	fmt.Fprintf(stderr, "mash: %s: command not found\n", name)
	return 127
}

func (sh *Shell) builtinCd(argv []string, stderr io.Writer) int {
	target := ""
	if len(argv) > 1 {
		target = argv[1]
	}
	switch target {
	case "":
		target = sh.Home()
	case "-":
		sh.mu.RLock()
		target = sh.PreviousDir
		sh.mu.RUnlock()
	}
	if err := os.Chdir(target); err != nil {
		fmt.Fprintf(stderr, "mash: cd: %s\n", err)
		return 1
	}
	abs, err := os.Getwd()
	if err != nil {
		abs = target
	}
	sh.UpdateCWD(abs)
	return 0
}

func (sh *Shell) builtinPwd(stdout io.Writer) int {
	fmt.Fprintln(stdout, sh.getCWD())
	return 0
}

func (sh *Shell) builtinEcho(argv []string, stdout io.Writer) int {
	args := argv[1:]
	newline := true
	if len(args) > 0 && args[0] == "-n" {
		newline = false
		args = args[1:]
	}
	fmt.Fprint(stdout, strings.Join(args, " "))
	if newline {
		fmt.Fprintln(stdout)
	}
	return 0
}

func (sh *Shell) builtinExport(argv []string, stdout, stderr io.Writer) int {
	if len(argv) < 2 {
		for _, e := range os.Environ() {
			fmt.Fprintf(stdout, "export %s\n", e)
		}
		return 0
	}
	for _, assignment := range argv[1:] {
		parts := strings.SplitN(assignment, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(stderr, "mash: export: usage: export NAME=VALUE\n")
			return 1
		}
		if err := os.Setenv(parts[0], parts[1]); err != nil {
			fmt.Fprintf(stderr, "mash: export: %s\n", err)
			return 1
		}
	}
	return 0
}

func (sh *Shell) builtinAlias(argv []string, stdout, stderr io.Writer) int {
	if len(argv) < 2 {
		for _, a := range sh.ListAliases() {
			fmt.Fprintln(stdout, a)
		}
		return 0
	}
	decl := strings.Join(argv[1:], " ")
	parts := strings.SplitN(decl, "=", 2)
	if len(parts) != 2 {
		fmt.Fprintf(stderr, "mash: alias: usage: alias NAME=VALUE\n")
		return 1
	}
	name := strings.TrimSpace(parts[0])
	body := strings.Trim(strings.TrimSpace(parts[1]), "'\"")
	sh.SetAlias(name, body)
	return 0
}

func (sh *Shell) builtinSource(argv []string, stdout, stderr io.Writer) int {
	if len(argv) < 2 {
		fmt.Fprintln(stderr, "mash: source: usage: source file")
		return 1
	}
	data, err := os.ReadFile(argv[1])
	if err != nil {
		fmt.Fprintf(stderr, "mash: source: %s\n", err)
		return 1
	}
	p := parser.New(sh, sh.requestContinuation, sh.readHereDocLine)
	status := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		parsed, err := p.Parse(line)
		if err != nil {
			fmt.Fprintf(stderr, "mash: source: %s\n", err)
			continue
		}
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
		}
	}
	sh.setResult(status)
	return status
}

func (sh *Shell) builtinExit(argv []string) int {
	code := sh.LastExitStatus
	if len(argv) > 1 {
		if n, err := strconv.Atoi(argv[1]); err == nil {
			code = n
		}
	}
	sh.mu.Lock()
	sh.exiting = true
	sh.exitCode = code
	sh.mu.Unlock()
	return code
}

func (sh *Shell) builtinHelp(stdout io.Writer) int {
	fmt.Fprintln(stdout, "mash built-in commands:")
	for _, name := range helpOrder {
		fmt.Fprintf(stdout, "  %s\n", name)
	}
	return 0
}

func (sh *Shell) builtinSleep(argv []string, stderr io.Writer) int {
	if len(argv) < 2 {
		fmt.Fprintln(stderr, "mash: sleep: usage: sleep seconds")
		return 1
	}
	secs, err := strconv.ParseFloat(argv[1], 64)
	if err != nil {
		fmt.Fprintf(stderr, "mash: sleep: %s\n", err)
		return 1
	}
	time.Sleep(time.Duration(secs * float64(time.Second)))
	return 0
}

func (sh *Shell) builtinMath(argv []string, stdout, stderr io.Writer) int {
	if len(argv) != 4 {
		fmt.Fprintln(stderr, "mash: math: usage: math LHS OP RHS")
		return 1
	}
	lhs, err1 := strconv.ParseFloat(argv[1], 64)
	rhs, err2 := strconv.ParseFloat(argv[3], 64)
	if err1 != nil || err2 != nil {
		fmt.Fprintln(stderr, "mash: math: operands must be numbers")
		return 1
	}
	var result float64
	switch argv[2] {
	case "+":
		result = lhs + rhs
	case "-":
		result = lhs - rhs
	case "*":
		result = lhs * rhs
	case "/":
		if rhs == 0 {
			fmt.Fprintln(stderr, "mash: math: division by zero")
			return 1
		}
		result = lhs / rhs
	default:
		fmt.Fprintf(stderr, "mash: math: unknown operator %q\n", argv[2])
		return 1
	}
	if result == float64(int64(result)) {
		fmt.Fprintln(stdout, int64(result))
	} else {
		fmt.Fprintln(stdout, result)
	}
	return 0
}

var ansiColors = map[string]string{
	"red": "\033[31m", "green": "\033[32m", "blue": "\033[34m",
	"pink": "\033[35m", "none": "\033[0m",
}

func (sh *Shell) builtinColor(argv []string, stdout, stderr io.Writer) int {
	if len(argv) < 3 {
		fmt.Fprintln(stderr, "mash: color: usage: color NAME text...")
		return 1
	}
	esc, ok := ansiColors[argv[1]]
	if !ok {
		fmt.Fprintf(stderr, "mash: color: unknown color %q\n", argv[1])
		return 1
	}
	fmt.Fprintf(stdout, "%s%s%s\n", esc, strings.Join(argv[2:], " "), ansiColors["none"])
	return 0
}

// builtinTest implements the handful of POSIX test(1) operators actually
// exercisable from a shell script without control structures: file
// existence/type, string comparison and emptiness, integer comparison.
func (sh *Shell) builtinTest(argv []string) int {
	args := argv[1:]
	if len(args) == 2 {
		switch args[0] {
		case "-f":
			info, err := os.Stat(args[1])
			if err == nil && !info.IsDir() {
				return 0
			}
			return 1
		case "-d":
			info, err := os.Stat(args[1])
			if err == nil && info.IsDir() {
				return 0
			}
			return 1
		case "-z":
			if args[1] == "" {
				return 0
			}
			return 1
		case "-n":
			if args[1] != "" {
				return 0
			}
			return 1
		}
	}
	if len(args) == 3 {
		switch args[1] {
		case "=":
			return boolToStatus(args[0] == args[2])
		case "!=":
			return boolToStatus(args[0] != args[2])
		case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
			a, err1 := strconv.Atoi(args[0])
			b, err2 := strconv.Atoi(args[2])
			if err1 != nil || err2 != nil {
				return 2
			}
			switch args[1] {
			case "-eq":
				return boolToStatus(a == b)
			case "-ne":
				return boolToStatus(a != b)
			case "-lt":
				return boolToStatus(a < b)
			case "-le":
				return boolToStatus(a <= b)
			case "-gt":
				return boolToStatus(a > b)
			case "-ge":
				return boolToStatus(a >= b)
			}
		}
	}
	return 2
}

func boolToStatus(b bool) int {
	if b {
		return 0
	}
	return 1
}

func pipelineRunPolicyAllows(policy parser.PrevStatusPolicy, prevStatus int) bool {
	switch policy {
	case parser.OnSuccess:
		return prevStatus == 0
	case parser.OnFailure:
		return prevStatus != 0
	default:
		return true
	}
}
