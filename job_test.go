package mash

import (
	"os/exec"
	"testing"
)

func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start sleep: %v", err)
	}
	return cmd
}

func TestJobTableAddAssignsRelevanceAndPosition(t *testing.T) {
	jt := NewJobTable()

	fg := startSleeper(t)
	defer fg.Process.Kill()
	j1 := &Job{Pid: fg.Process.Pid, Command: "sleep 5", Execution: Foreground, State: Running}
	jt.Add(j1)
	if j1.Pos != 1 || j1.Relevance != 0 {
		t.Fatalf("first foreground job: got pos=%d relevance=%d, want pos=1 relevance=0", j1.Pos, j1.Relevance)
	}

	bg := startSleeper(t)
	defer bg.Process.Kill()
	j2 := &Job{Pid: bg.Process.Pid, Command: "sleep 5 &", Execution: Background, State: Running}
	jt.Add(j2)
	if j2.Pos != 2 {
		t.Fatalf("second job pos = %d, want 2", j2.Pos)
	}
	if j1.Relevance != 0 {
		t.Fatalf("existing current job's relevance shifted on a background add: got %d, want 0", j1.Relevance)
	}

	fg2 := startSleeper(t)
	defer fg2.Process.Kill()
	j3 := &Job{Pid: fg2.Process.Pid, Command: "sleep 5", Execution: Foreground, State: Running}
	jt.Add(j3)
	if j3.Relevance != 0 {
		t.Fatalf("newest foreground job should be current (relevance 0), got %d", j3.Relevance)
	}
	if j1.Relevance != 1 {
		t.Fatalf("prior current job should become previous (relevance 1) after a foreground add, got %d", j1.Relevance)
	}
}

func TestJobTableRemoveRestoresInvariant(t *testing.T) {
	jt := NewJobTable()

	cmds := make([]*exec.Cmd, 3)
	jobs := make([]*Job, 3)
	for i := range cmds {
		cmds[i] = startSleeper(t)
		defer cmds[i].Process.Kill()
		jobs[i] = &Job{Pid: cmds[i].Process.Pid, Command: "sleep 5", Execution: Foreground, State: Running}
		jt.Add(jobs[i])
	}

	if jobs[2].Relevance != 0 || jobs[1].Relevance != 1 || jobs[0].Relevance != 2 {
		t.Fatalf("unexpected relevances after three adds: %d %d %d", jobs[0].Relevance, jobs[1].Relevance, jobs[2].Relevance)
	}

	jt.Remove(jobs[2])
	if jt.ByRelevance(0) != jobs[1] {
		t.Fatalf("removing the current job should promote the previous job to current")
	}
	if jt.ByRelevance(1) != jobs[0] {
		t.Fatalf("relevance chain should shift down by one after removal")
	}
}

func TestJobTableUpdateMarksDoneAndSweeps(t *testing.T) {
	jt := NewJobTable()

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start true: %v", err)
	}
	cmd.Wait()

	j := &Job{Pid: cmd.Process.Pid, Command: "true", Execution: Background, State: Running}
	jt.Add(j)

	lines := jt.Update()
	if len(lines) != 1 {
		t.Fatalf("expected one completion notification, got %d: %v", len(lines), lines)
	}
	if jt.Len() != 0 {
		t.Fatalf("completed job should have been swept from the table, %d remain", jt.Len())
	}
}

func TestResolveJobspec(t *testing.T) {
	sh := NewShell(DefaultConfig())

	cmd := startSleeper(t)
	defer cmd.Process.Kill()
	j := &Job{Pid: cmd.Process.Pid, Command: "sleep 5", Execution: Background, State: Running}
	sh.Jobs.Add(j)

	for _, spec := range []string{"%%", "%+", "%1"} {
		got, ok := sh.resolveJobspec(spec)
		if !ok || got != j {
			t.Errorf("resolveJobspec(%q) = (%v, %v), want the current job", spec, got, ok)
		}
	}

	if _, ok := sh.resolveJobspec("1234"); ok {
		t.Errorf("a bare pid-shaped string should not resolve as a jobspec")
	}
}
