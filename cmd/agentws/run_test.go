package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, workspacePath string, args ...string) (string, string, int) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	fullArgs := append([]string{"agentws", "--workspace", workspacePath}, args...)
	code := Run(strings.NewReader(""), &stdout, &stderr, fullArgs, map[string]string{})

	return stdout.String(), stderr.String(), code
}

func Test_FsWrite_Then_FsRead_Round_Trips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "workspace.zip")

	if _, stderr, code := runCLI(t, path, "fs-write", "~/a.txt", "hello"); code != 0 {
		t.Fatalf("fs-write failed: code=%d stderr=%s", code, stderr)
	}

	stdout, stderr, code := runCLI(t, path, "fs-read", "~/a.txt")
	if code != 0 {
		t.Fatalf("fs-read failed: code=%d stderr=%s", code, stderr)
	}

	if !strings.Contains(stdout, `"ok": true`) {
		t.Fatalf("expected ok:true envelope, got %s", stdout)
	}

	if !strings.Contains(stdout, `"content": "hello"`) {
		t.Fatalf("expected content %q in envelope, got %s", "hello", stdout)
	}
}

func Test_History_After_Write_Lists_One_Entry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "workspace.zip")

	if _, stderr, code := runCLI(t, path, "fs-write", "~/a.txt", "v1"); code != 0 {
		t.Fatalf("fs-write failed: code=%d stderr=%s", code, stderr)
	}

	stdout, stderr, code := runCLI(t, path, "history")
	if code != 0 {
		t.Fatalf("history failed: code=%d stderr=%s", code, stderr)
	}

	if !strings.Contains(stdout, `"tool": "fs_write"`) {
		t.Fatalf("expected fs_write entry in history output, got %s", stdout)
	}
}

func Test_Unknown_Command_Exits_Nonzero(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "workspace.zip")

	_, _, code := runCLI(t, path, "bogus-command")
	if code == 0 {
		t.Fatalf("expected nonzero exit for unknown command")
	}
}
