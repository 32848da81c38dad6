package mash

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func newTestShell(t *testing.T) *Shell {
	t.Helper()
	return NewShell(DefaultConfig())
}

func TestBuiltinCdWithDash(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "mash-cd-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)
	tempDir, _ = filepath.EvalSymlinks(tempDir)

	subDir := filepath.Join(tempDir, "subdir")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	originalDir, _ := os.Getwd()
	defer os.Chdir(originalDir)
	os.Chdir(tempDir)

	sh := newTestShell(t)
	sh.UpdateCWD(tempDir)

	var stderr bytes.Buffer
	if code := sh.builtinCd([]string{"cd", "subdir"}, &stderr); code != 0 {
		t.Fatalf("cd subdir failed: %s", stderr.String())
	}
	if sh.getCWD() != subDir {
		t.Fatalf("cwd = %q, want %q", sh.getCWD(), subDir)
	}

	if code := sh.builtinCd([]string{"cd", "-"}, &stderr); code != 0 {
		t.Fatalf("cd - failed: %s", stderr.String())
	}
	if sh.getCWD() != tempDir {
		t.Fatalf("cd - landed in %q, want %q", sh.getCWD(), tempDir)
	}
}

func TestBuiltinEcho(t *testing.T) {
	sh := newTestShell(t)
	var out bytes.Buffer

	sh.builtinEcho([]string{"echo", "hello", "world"}, &out)
	if out.String() != "hello world\n" {
		t.Errorf("echo output = %q, want %q", out.String(), "hello world\n")
	}

	out.Reset()
	sh.builtinEcho([]string{"echo", "-n", "no newline"}, &out)
	if out.String() != "no newline" {
		t.Errorf("echo -n output = %q, want %q", out.String(), "no newline")
	}
}

func TestBuiltinAliasRoundTrip(t *testing.T) {
	sh := newTestShell(t)
	var out, errBuf bytes.Buffer

	if code := sh.builtinAlias([]string{"alias", "ll='ls", "-la'"}, &out, &errBuf); code != 0 {
		t.Fatalf("alias set failed: %s", errBuf.String())
	}
	body, ok := sh.ExpandAlias("ll", 0)
	if !ok || body != "ls -la" {
		t.Errorf("alias ll expanded to (%q, %v), want (%q, true)", body, ok, "ls -la")
	}

	out.Reset()
	sh.builtinAlias([]string{"alias"}, &out, &errBuf)
	if out.String() != "ll='ls -la'\n" {
		t.Errorf("alias listing = %q, want %q", out.String(), "ll='ls -la'\n")
	}
}

func TestBuiltinExport(t *testing.T) {
	sh := newTestShell(t)
	var out, errBuf bytes.Buffer

	if code := sh.builtinExport([]string{"export", "FOO=bar"}, &out, &errBuf); code != 0 {
		t.Fatalf("export failed: %s", errBuf.String())
	}
	if v := os.Getenv("FOO"); v != "bar" {
		t.Errorf("FOO = %q, want %q", v, "bar")
	}
}

func TestBuiltinMath(t *testing.T) {
	sh := newTestShell(t)

	cases := []struct {
		argv []string
		want string
	}{
		{[]string{"math", "2", "+", "3"}, "5\n"},
		{[]string{"math", "10", "/", "4"}, "2.5\n"},
		{[]string{"math", "6", "*", "7"}, "42\n"},
	}
	for _, tc := range cases {
		var out, errBuf bytes.Buffer
		if code := sh.builtinMath(tc.argv, &out, &errBuf); code != 0 {
			t.Fatalf("math %v failed: %s", tc.argv, errBuf.String())
		}
		if out.String() != tc.want {
			t.Errorf("math %v = %q, want %q", tc.argv, out.String(), tc.want)
		}
	}

	var out, errBuf bytes.Buffer
	if code := sh.builtinMath([]string{"math", "1", "/", "0"}, &out, &errBuf); code == 0 {
		t.Errorf("math division by zero should fail, got exit 0")
	}
}

func TestBuiltinTest(t *testing.T) {
	sh := newTestShell(t)

	cases := []struct {
		argv []string
		want int
	}{
		{[]string{"test", "-z", ""}, 0},
		{[]string{"test", "-n", "x"}, 0},
		{[]string{"test", "a", "=", "a"}, 0},
		{[]string{"test", "a", "!=", "b"}, 0},
		{[]string{"test", "3", "-lt", "5"}, 0},
		{[]string{"test", "3", "-gt", "5"}, 1},
	}
	for _, tc := range cases {
		if got := sh.builtinTest(tc.argv); got != tc.want {
			t.Errorf("test %v = %d, want %d", tc.argv[1:], got, tc.want)
		}
	}
}

func TestBuiltinExitSetsExitingFlag(t *testing.T) {
	sh := newTestShell(t)
	code := sh.builtinExit([]string{"exit", "7"})
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
	if !sh.exiting || sh.exitCode != 7 {
		t.Fatalf("exiting=%v exitCode=%d, want true/7", sh.exiting, sh.exitCode)
	}
}

func TestRunBuiltinUnknownCommand(t *testing.T) {
	sh := newTestShell(t)
	var out, errBuf bytes.Buffer
	code := sh.runBuiltin("frobnicate", []string{"frobnicate"}, nil, &out, &errBuf)
	if code != 127 {
		t.Errorf("unknown builtin exit code = %d, want 127", code)
	}
}
