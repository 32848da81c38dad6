package mash

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mash/parser"
)

// noLines always reports EOF; none of these tests need continuation lines or
// here-documents.
func noLines(string) (string, bool) { return "", false }

func runLine(t *testing.T, sh *Shell, src string) int {
	t.Helper()
	p := parser.New(sh, noLines, noLines)
	line, err := p.Parse(src)
	if err != nil {
		t.Fatalf("parse(%q): %v", src, err)
	}
	status := 0
	for _, pl := range line.Pipelines {
		if !pipelineRunPolicyAllows(pl.Policy, status) {
			continue
		}
		code, _, err := sh.LaunchPipeline(pl)
		if err != nil {
			t.Fatalf("launch(%q): %v", src, err)
		}
		status = code
	}
	return status
}

func withCapturedStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	old := os.Stdout
	os.Stdout = w
	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	os.Stdout = old
	w.Close()
	out := <-done
	return out
}

func TestLaunchPipelineSimpleCommand(t *testing.T) {
	sh := newTestShell(t)
	out := withCapturedStdout(t, func() {
		if code := runLine(t, sh, "echo hello"); code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	})
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("output = %q, want %q", out, "hello")
	}
}

func TestLaunchPipelineExternalPipe(t *testing.T) {
	sh := newTestShell(t)
	out := withCapturedStdout(t, func() {
		if code := runLine(t, sh, "echo one two three | wc -w"); code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	})
	if strings.TrimSpace(out) != "3" {
		t.Errorf("word count output = %q, want %q", strings.TrimSpace(out), "3")
	}
}

func TestLaunchPipelineRedirection(t *testing.T) {
	sh := newTestShell(t)
	tempDir, err := os.MkdirTemp("", "mash-exec-test")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(tempDir)

	target := filepath.Join(tempDir, "out.txt")
	if code := runLine(t, sh, "echo redirected > "+target); code != 0 {
		t.Fatalf("redirect exit code = %d", code)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading redirected file: %v", err)
	}
	if strings.TrimSpace(string(data)) != "redirected" {
		t.Errorf("file contents = %q, want %q", string(data), "redirected")
	}
}

func TestLaunchPipelineCommandSubstitution(t *testing.T) {
	sh := newTestShell(t)
	out := withCapturedStdout(t, func() {
		if code := runLine(t, sh, "echo $(echo nested)"); code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	})
	if strings.TrimSpace(out) != "nested" {
		t.Errorf("output = %q, want %q", strings.TrimSpace(out), "nested")
	}
}

func TestLaunchPipelineBackgroundJobTracked(t *testing.T) {
	sh := newTestShell(t)
	p := parser.New(sh, noLines, noLines)
	line, err := p.Parse("sleep 0.2 &")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(line.Pipelines) != 1 {
		t.Fatalf("expected one pipeline, got %d", len(line.Pipelines))
	}
	code, job, err := sh.LaunchPipeline(line.Pipelines[0])
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if code != 0 {
		t.Errorf("backgrounding should report 0 immediately, got %d", code)
	}
	if job == nil {
		t.Fatal("expected a tracked job for a backgrounded pipeline")
	}
	if sh.Jobs.Len() != 1 {
		t.Fatalf("job table len = %d, want 1", sh.Jobs.Len())
	}

	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background job never completed")
	}
}

func TestPipelineRunPolicySequencing(t *testing.T) {
	sh := newTestShell(t)
	out := withCapturedStdout(t, func() {
		runLine(t, sh, "false && echo should-not-print; true && echo should-print")
	})
	if strings.Contains(out, "should-not-print") {
		t.Errorf("&& after a failing command should have been skipped, got %q", out)
	}
	if !strings.Contains(out, "should-print") {
		t.Errorf("&& after a succeeding command should have run, got %q", out)
	}
}
