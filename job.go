package mash

import (
	"fmt"
	"sync"
	"syscall"

	ps "github.com/mitchellh/go-ps"
)

// JobState is one of the three lifecycle states spec §3 names for a job.
type JobState int

const (
	Running JobState = iota
	Stopped
	Done
)

func (s JobState) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Execution distinguishes a job launched to wait for versus one returned to
// the prompt immediately.
type Execution int

const (
	Foreground Execution = iota
	Background
)

// Job is one tracked pipeline: its head and tail pids, its position and
// relevance in the table, its lifecycle state, and the literal command line
// that produced it.
type Job struct {
	Pid       int
	EndPid    int
	Pos       int
	Relevance int
	State     JobState
	Execution Execution
	Command   string

	pids []int // every pid in the pipeline, in stage order

	ExitCode int
	done     chan struct{} // closed once the pipeline's final wait completes
}

// JobTable is the shell's ordered set of active jobs. Ordering is
// insertion-order; relevance (which job is "current"/"previous") is
// maintained independently per the invariants in spec §3/§4.5.
type JobTable struct {
	mu      sync.Mutex
	jobs    []*Job
	nextPos int
}

// NewJobTable returns an empty job table.
func NewJobTable() *JobTable {
	return &JobTable{nextPos: 1}
}

// Add inserts job, assigning pos = max(existing pos)+1, bumping every
// existing job's relevance (foreground adds bump all, background adds bump
// only background jobs' relevance, preserving foreground bias), and gives
// the new job relevance 0 if foreground or the count of existing foreground
// jobs otherwise.
func (jt *JobTable) Add(j *Job) {
	jt.mu.Lock()
	defer jt.mu.Unlock()

	maxPos := 0
	fgCount := 0
	for _, existing := range jt.jobs {
		if existing.Pos > maxPos {
			maxPos = existing.Pos
		}
		if existing.Execution == Foreground {
			fgCount++
		}
		if j.Execution == Foreground || existing.Execution == Background {
			existing.Relevance++
		}
	}
	j.Pos = maxPos + 1
	if j.Execution == Foreground {
		j.Relevance = 0
	} else {
		j.Relevance = fgCount
	}
	jt.jobs = append(jt.jobs, j)
}

// remove must be called with jt.mu held.
func (jt *JobTable) remove(j *Job) {
	idx := -1
	for i, existing := range jt.jobs {
		if existing == j {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	jt.jobs = append(jt.jobs[:idx], jt.jobs[idx+1:]...)

	negative := false
	for _, existing := range jt.jobs {
		existing.Relevance--
		if existing.Relevance < 0 {
			negative = true
		}
	}
	if negative {
		for _, existing := range jt.jobs {
			existing.Relevance++
		}
	}
}

// Remove unlinks j from the table, decrementing every surviving relevance
// and restoring the invariant if that produces a negative value.
func (jt *JobTable) Remove(j *Job) {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	jt.remove(j)
}

// RemoveDone removes every job currently in the Done state, in table order.
func (jt *JobTable) RemoveDone() {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	for _, j := range append([]*Job(nil), jt.jobs...) {
		if j.State == Done {
			jt.remove(j)
		}
	}
}

// ByPos returns the job at the given position, or nil.
func (jt *JobTable) ByPos(pos int) *Job {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	for _, j := range jt.jobs {
		if j.Pos == pos {
			return j
		}
	}
	return nil
}

// ByRelevance returns the job with the given relevance (0 = current,
// 1 = previous), or nil.
func (jt *JobTable) ByRelevance(r int) *Job {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	for _, j := range jt.jobs {
		if j.Relevance == r {
			return j
		}
	}
	return nil
}

// AnyStopped reports whether any job is currently Stopped.
func (jt *JobTable) AnyStopped() bool {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	for _, j := range jt.jobs {
		if j.State == Stopped {
			return true
		}
	}
	return false
}

// All returns a snapshot of the table in insertion order.
func (jt *JobTable) All() []*Job {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	return append([]*Job(nil), jt.jobs...)
}

// Len reports the number of tracked jobs.
func (jt *JobTable) Len() int {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	return len(jt.jobs)
}

// Update probes every Running job's liveness via go-ps (a portable process
// table lookup) and kill(pid, 0) (the precise POSIX existence check); a job
// whose head process is gone is marked Done, its completion line is
// printed, and it is swept by RemoveDone. Returns the notification lines
// printed, so the REPL can display them.
func (jt *JobTable) Update() []string {
	jt.mu.Lock()
	candidates := append([]*Job(nil), jt.jobs...)
	jt.mu.Unlock()

	var lines []string
	for _, j := range candidates {
		if j.State != Running {
			continue
		}
		if j.Pid < 0 {
			// A builtin head has a synthetic pid; its pipeline's
			// completion is signalled by closing j.done instead.
			select {
			case <-j.done:
			default:
				continue
			}
		} else if processAlive(j.Pid) {
			continue
		}
		jt.mu.Lock()
		j.State = Done
		jt.mu.Unlock()
		lines = append(lines, fmt.Sprintf("[%d]+ Done %s", j.Pos, j.Command))
	}
	jt.RemoveDone()
	return lines
}

// processAlive reports a process alive when kill(pid, 0) succeeds or fails
// with anything other than ESRCH (a zombie that still answers kill(2) thus
// counts as alive). Only after ESRCH is go-ps's process table consulted as
// a second check.
func processAlive(pid int) bool {
	if err := syscall.Kill(pid, 0); err == nil {
		return true
	} else if err != syscall.ESRCH {
		return true
	}
	proc, err := ps.FindProcess(pid)
	return err == nil && proc != nil
}

// WaitAll blocks, via the caller-supplied wait function, until the table is
// empty or any job is stopped. tick is called once per poll and should
// perform one Update pass plus a brief sleep.
func (jt *JobTable) WaitAll(tick func() []string) []string {
	var lines []string
	for jt.Len() > 0 && !jt.AnyStopped() {
		lines = append(lines, tick()...)
	}
	return lines
}

// StopCurrent sends SIGTSTP to the current (relevance 0) job's process
// group and marks it Stopped.
func (jt *JobTable) StopCurrent() *Job {
	j := jt.ByRelevance(0)
	if j == nil {
		return nil
	}
	syscall.Kill(-j.Pid, syscall.SIGTSTP)
	jt.mu.Lock()
	j.State = Stopped
	jt.mu.Unlock()
	return j
}

// EndCurrent sends SIGINT to the current job's process group and removes
// it from the table.
func (jt *JobTable) EndCurrent() *Job {
	j := jt.ByRelevance(0)
	if j == nil {
		return nil
	}
	syscall.Kill(-j.Pid, syscall.SIGINT)
	jt.Remove(j)
	return j
}
