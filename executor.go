package mash

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"mash/parser"
)

// stage is one forked-or-goroutined participant in a pipeline: either a
// real external process or a builtin running in its own goroutine, wired
// to the same stdin/stdout/stderr plumbing either way.
type stage struct {
	cmd  *exec.Cmd // nil for an in-process builtin
	pid  int       // real pid, or a synthetic negative id for a builtin stage
	done chan struct{}
	code int
	err  error

	cancel func() // signals a goroutine-backed builtin to stop
}

func (s *stage) wait() (int, error) {
	<-s.done
	return s.code, s.err
}

func (s *stage) signal(sig syscall.Signal) error {
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Signal(sig)
	}
	if s.cancel != nil && (sig == syscall.SIGINT || sig == syscall.SIGTERM || sig == syscall.SIGKILL) {
		s.cancel()
	}
	return nil
}

// Synthetic pids start below -(1<<30), so -pid is past any pid the kernel
// hands out and kill(-pid, sig) on one reaches no process.
var syntheticPid int32 = -1 << 30

func nextSyntheticPid() int {
	return int(atomic.AddInt32(&syntheticPid, -1))
}

// LaunchPipeline is the executor's entry point, implementing the three
// routes of launch_pipeline (spec §4.3): a cmd-modifying built-in, a
// shell-resident built-in running synchronously, or a real pipeline.
// It returns the exit status to record as $result and, for a backgrounded
// pipeline, the Job added to the table.
func (sh *Shell) LaunchPipeline(pl *parser.Pipeline) (int, *Job, error) {
	if pl.Head == nil || len(pl.Head.Argv) == 0 {
		return sh.LastExitStatus, nil, nil
	}

	name := pl.Head.Argv[0]
	if name == "ifok" || name == "ifnot" {
		newArgv, outcome := sh.applyModifyBuiltin(name, pl.Head.Argv, os.Stdout, os.Stderr)
		if outcome == notExecute {
			return sh.LastExitStatus, nil, nil
		}
		pl.Head.Argv = newArgv
		if len(pl.Head.Argv) == 0 {
			return 0, nil, nil
		}
		name = pl.Head.Argv[0]
	}

	unredirected := pl.Len() == 1 && pl.Head.OutputFile == "" && pl.Head.InputFile == "" &&
		!pl.Head.MergeStderr && pl.Head.OutputBuffer == nil && pl.Head.InputFD != parser.FDHereDoc &&
		!pl.Background

	if unredirected && classify(name) == builtinShellOnly {
		code := sh.runBuiltin(name, pl.Head.Argv, os.Stdin, os.Stdout, os.Stderr)
		return code, nil, nil
	}

	return sh.execPipeline(pl)
}

// execPipeline implements exec_pipeline: plumbs pipes between commands,
// starts every stage, feeds a here-document if the head expects one,
// captures output into an OutputBuffer if the tail has one, and either
// waits (foreground) or registers a Job and returns immediately
// (background).
func (sh *Shell) execPipeline(pl *parser.Pipeline) (int, *Job, error) {
	var cmds []*parser.Command
	for c := pl.Head; c != nil; c = c.Next {
		cmds = append(cmds, c)
	}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	stdins := make([]io.Reader, len(cmds))
	stdouts := make([]io.Writer, len(cmds))

	stdins[0] = os.Stdin
	if cmds[0].InputFile != "" {
		f, err := os.Open(cmds[0].InputFile)
		if err != nil {
			closeAll()
			return 1, nil, fmt.Errorf("%s: %w", cmds[0].InputFile, err)
		}
		closers = append(closers, f)
		stdins[0] = f
	}

	var feedPipeW *os.File
	if cmds[0].InputFD == parser.FDHereDoc {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return 1, nil, err
		}
		closers = append(closers, r)
		stdins[0] = r
		feedPipeW = w
	}

	for i := 0; i < len(cmds)-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return 1, nil, err
		}
		closers = append(closers, r, w)
		stdouts[i] = w
		stdins[i+1] = r
	}

	tail := len(cmds) - 1
	var captureR *os.File
	stdouts[tail] = os.Stdout
	if cmds[tail].OutputFile != "" {
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		f, err := os.OpenFile(cmds[tail].OutputFile, flags, 0o666)
		if err != nil {
			closeAll()
			return 1, nil, fmt.Errorf("%s: %w", cmds[tail].OutputFile, err)
		}
		closers = append(closers, f)
		stdouts[tail] = f
	} else if cmds[tail].OutputBuffer != nil {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return 1, nil, err
		}
		closers = append(closers, w)
		captureR = r
		stdouts[tail] = w
	}

	stages := make([]*stage, len(cmds))
	var pgid int
	for i, c := range cmds {
		stderr := io.Writer(os.Stderr)
		if c.MergeStderr {
			stderr = stdouts[tail]
		}
		st, err := sh.startStage(c, stdins[i], stdouts[i], stderr, pgid)
		if err != nil {
			closeAll()
			for _, s := range stages[:i] {
				s.signal(syscall.SIGTERM)
			}
			return 1, nil, err
		}
		stages[i] = st
		if i == 0 && st.pid > 0 {
			pgid = st.pid
		}
	}

	// The parent no longer needs the ends of the pipes it handed to
	// children; keep only the feed-pipe write end and the capture-pipe
	// read end open. A goroutine-backed builtin shares the parent's file
	// descriptors, so its ends are closed once that stage has finished.
	closeFor := func(st *stage, c io.Closer) {
		if st.cmd != nil {
			c.Close()
			return
		}
		go func() {
			<-st.done
			c.Close()
		}()
	}
	for i := 0; i < len(cmds)-1; i++ {
		if c, ok := stdouts[i].(io.Closer); ok {
			closeFor(stages[i], c)
		}
		if c, ok := stdins[i+1].(io.Closer); ok {
			closeFor(stages[i+1], c)
		}
	}
	if captureR != nil {
		closeFor(stages[tail], stdouts[tail].(io.Closer))
	}
	if f, ok := stdins[0].(io.Closer); ok && f != os.Stdin {
		if feedPipeW == nil {
			f.Close()
		}
	}

	if feedPipeW != nil {
		body := cmds[0].HereDocBody
		if len(body) > maxHereDocFeed {
			sh.Diagnostic("", fmt.Errorf("here-document exceeds maximum size, truncating"))
			body = body[:maxHereDocFeed]
		}
		go func() {
			io.WriteString(feedPipeW, body)
			feedPipeW.Close()
		}()
	}

	var captureWG sync.WaitGroup
	if captureR != nil && cmds[tail].OutputBuffer != nil {
		captureWG.Add(1)
		go func() {
			defer captureWG.Done()
			data, _ := io.ReadAll(captureR)
			captureR.Close()
			cmds[tail].OutputBuffer.Data = data
		}()
	}

	job := &Job{
		Pid:       stages[0].pid,
		EndPid:    stages[tail].pid,
		Command:   pl.String(),
		State:     Running,
		Execution: Foreground,
		done:      make(chan struct{}),
	}
	for _, s := range stages {
		job.pids = append(job.pids, s.pid)
	}

	if pl.Background {
		job.Execution = Background
		sh.LastBackgroundPID = job.Pid
		sh.Jobs.Add(job)
		go func() {
			job.ExitCode = sh.waitPipeline(stages)
			captureWG.Wait()
			closeAll()
			close(job.done)
		}()
		return 0, job, nil
	}

	sh.Jobs.Add(job)
	if err := sh.takeTerminal(job.Pid); err != nil {
		sh.trace("takeTerminal: %v", err)
	}
	code := sh.waitPipeline(stages)
	job.ExitCode = code
	close(job.done)
	sh.releaseTerminal()
	captureWG.Wait()
	closeAll()
	sh.Jobs.Remove(job)
	return code, nil, nil
}

const maxHereDocFeed = 1 << 20

// startStage starts one pipeline participant: a real subprocess for an
// external command, or a goroutine for a built-in (see runBuiltin's doc
// comment for the fork-semantics caveat this implies).
func (sh *Shell) startStage(c *parser.Command, stdin io.Reader, stdout, stderr io.Writer, pgid int) (*stage, error) {
	name := ""
	if len(c.Argv) > 0 {
		name = c.Argv[0]
	}

	if classify(name) != builtinNone && c.Search != parser.SearchPathOnly {
		return sh.startBuiltinStage(c, stdin, stdout, stderr)
	}

	path, err := resolvePath(name, sh.getCWD())
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, c.Argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Dir = sh.getCWD()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	st := &stage{cmd: cmd, pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		st.code = exitCodeOf(err)
		st.err = nil
		close(st.done)
	}()
	return st, nil
}

func (sh *Shell) startBuiltinStage(c *parser.Command, stdin io.Reader, stdout, stderr io.Writer) (*stage, error) {
	st := &stage{pid: nextSyntheticPid(), done: make(chan struct{})}
	stopped := make(chan struct{})
	st.cancel = func() {
		select {
		case <-stopped:
		default:
			close(stopped)
		}
	}
	go func() {
		defer close(st.done)
		st.code = sh.runBuiltin(c.Argv[0], c.Argv, stdin, stdout, stderr)
	}()
	return st, nil
}

// waitPipeline implements wait_pipeline: every stage is waited on so no
// process is left a zombie, but the reported status is the tail's.
func (sh *Shell) waitPipeline(stages []*stage) int {
	code := 0
	for i, s := range stages {
		c, _ := s.wait()
		if i == len(stages)-1 {
			code = c
		}
	}
	return code
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return 1
}

// resolvePath implements the path resolution order from spec §4.3:
// absolute path, then CWD-relative, then each $PATH entry.
func resolvePath(name, cwd string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty command")
	}
	if strings.HasPrefix(name, "/") {
		if isExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("%s: not found", name)
	}
	if strings.Contains(name, "/") {
		candidate := cwd + "/" + name
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	for _, dir := range strings.Split(os.Getenv("PATH"), ":") {
		if dir == "" {
			continue
		}
		candidate := dir + "/" + name
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: command not found", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// takeTerminal hands the controlling terminal to pgid per spec §4.6: ignore
// SIGTTOU/SIGTTIN, tcsetpgrp to the job's process group, and the caller is
// expected to call releaseTerminal once the job stops being foreground.
func (sh *Shell) takeTerminal(pgid int) error {
	if pgid <= 0 || !IsInteractive() {
		return nil
	}
	signal.Ignore(syscall.SIGTTOU, syscall.SIGTTIN)
	return unix.IoctlSetPointerInt(int(os.Stdin.Fd()), unix.TIOCSPGRP, pgid)
}

// releaseTerminal reclaims the terminal for the shell's own process group
// and restores default handling of SIGTTOU/SIGTTIN.
func (sh *Shell) releaseTerminal() {
	if !IsInteractive() {
		return
	}
	unix.IoctlSetPointerInt(int(os.Stdin.Fd()), unix.TIOCSPGRP, syscall.Getpgrp())
	signal.Reset(syscall.SIGTTOU, syscall.SIGTTIN)
}

// runCaptured executes src as a nested pipeline with stdout captured into
// memory, for command substitution ($(...)).
func (sh *Shell) runCaptured(src string) (string, error) {
	p := parser.New(sh, sh.requestContinuation, sh.readHereDocLine)
	line, err := p.Parse(src)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, pl := range line.Pipelines {
		if pl.Head != nil {
			buf := &parser.OutputBuffer{}
			for c := pl.Head; c != nil; c = c.Next {
				c.OutputBuffer = buf
			}
		}
		_, _, err := sh.LaunchPipeline(pl)
		if err != nil {
			return out.String(), err
		}
		if pl.Head != nil {
			tail := pl.Head
			for tail.Next != nil {
				tail = tail.Next
			}
			if tail.OutputBuffer != nil {
				out.Write(tail.OutputBuffer.Data)
			}
		}
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// BringToForeground implements fg: resumes a stopped job (or adopts an
// already-running background one), hands it the terminal, blocks until its
// pipeline finishes, then reclaims the terminal. Returns the job's exit
// code.
func (sh *Shell) BringToForeground(j *Job) int {
	if j.State == Stopped {
		syscall.Kill(-j.Pid, syscall.SIGCONT)
	}
	j.State = Running
	j.Execution = Foreground
	if err := sh.takeTerminal(j.Pid); err != nil {
		sh.trace("takeTerminal: %v", err)
	}
	<-j.done
	sh.releaseTerminal()
	sh.Jobs.Remove(j)
	return j.ExitCode
}

// ContinueInBackground implements bg: resumes a stopped job without taking
// the terminal or waiting for it.
func (sh *Shell) ContinueInBackground(j *Job) {
	syscall.Kill(-j.Pid, syscall.SIGCONT)
	j.State = Running
	j.Execution = Background
}
