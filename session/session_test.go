package session_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentws/agentws/session"
	"github.com/agentws/agentws/tools"
	"github.com/agentws/agentws/workspace"
)

const sandboxRunArg = "__sandbox-run"

// TestMain lets this test binary masquerade as the sandbox child process:
// when re-invoked with the hidden __sandbox-run argument (the child's OS
// environment is scrubbed, so an env var cannot carry the signal), it reads
// a SandboxRequest from stdin and writes a canned SandboxResponse instead of
// running the real test suite. The request's entry path picks the canned
// behaviour. This is the standard os/exec self-fork pattern for testing
// code that spawns a separate OS process.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == sandboxRunArg {
		runHelper()
		return
	}

	os.Exit(m.Run())
}

func runHelper() {
	var req struct {
		ZipBase64 string            `json:"zipBase64"`
		EntryPath string            `json:"entryPath"`
		Argv      []string          `json:"argv"`
		Env       map[string]string `json:"env"`
		TimeoutMs int               `json:"timeoutMs"`
	}

	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintf(os.Stdout, `{"ok":false,"error":%q,"exitCode":1}`, err.Error())
		os.Exit(1)
	}

	switch req.EntryPath {
	case "~/hang.ts":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "~/fail.ts":
		fmt.Fprint(os.Stdout, `{"ok":false,"error":"boom","exitCode":1}`)
		os.Exit(1)
	default:
		resp := map[string]any{
			"ok":        true,
			"stdout":    "hello from sandbox\n",
			"stderr":    "",
			"exitCode":  0,
			"zipBase64": req.ZipBase64,
		}

		data, _ := json.Marshal(resp)
		fmt.Fprint(os.Stdout, string(data))
		os.Exit(0)
	}
}

func testSelfExe(t *testing.T) string {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	return exe
}

func openTestSession(t *testing.T, opts ...session.Option) (*session.Session, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.zip")

	s, err := session.Open(path, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return s, path
}

func Test_Open_Creates_Empty_Workspace_File_When_Missing(t *testing.T) {
	t.Parallel()

	_, path := openTestSession(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected workspace file to be created, stat failed: %v", err)
	}
}

func Test_Open_Reloads_Previously_Persisted_Workspace(t *testing.T) {
	t.Parallel()

	s, path := openTestSession(t)

	if err := s.Write("~/notes.txt", "hello", tools.EncodingText, true); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reopened, err := session.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	data, err := reopened.Read("~/notes.txt", tools.EncodingText, 1<<20)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if data != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}
}

func Test_Write_Records_History_Entry_And_Persists(t *testing.T) {
	t.Parallel()

	s, _ := openTestSession(t)

	if err := s.Write("~/a.txt", "one", tools.EncodingText, true); err != nil {
		t.Fatalf("Write: %v", err)
	}

	st, err := s.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	if len(st.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(st.Entries))
	}

	if st.Entries[0].Tool != "fs_write" {
		t.Fatalf("got tool %q, want fs_write", st.Entries[0].Tool)
	}
}

func Test_Undo_Then_Redo_Round_Trips_Content(t *testing.T) {
	t.Parallel()

	s, _ := openTestSession(t)

	if err := s.Write("~/a.txt", "v1", tools.EncodingText, true); err != nil {
		t.Fatalf("Write v1: %v", err)
	}

	if err := s.Write("~/a.txt", "v2", tools.EncodingText, true); err != nil {
		t.Fatalf("Write v2: %v", err)
	}

	if _, err := s.Undo(1); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	data, err := s.Read("~/a.txt", tools.EncodingText, 1<<20)
	if err != nil {
		t.Fatalf("Read after undo: %v", err)
	}

	if data != "v1" {
		t.Fatalf("after undo got %q, want v1", data)
	}

	if _, err := s.Redo(1); err != nil {
		t.Fatalf("Redo: %v", err)
	}

	data, err = s.Read("~/a.txt", tools.EncodingText, 1<<20)
	if err != nil {
		t.Fatalf("Read after redo: %v", err)
	}

	if data != "v2" {
		t.Fatalf("after redo got %q, want v2", data)
	}
}

func Test_Restore_Reverts_To_Named_Entry(t *testing.T) {
	t.Parallel()

	s, _ := openTestSession(t)

	if err := s.Write("~/a.txt", "v1", tools.EncodingText, true); err != nil {
		t.Fatalf("Write v1: %v", err)
	}

	st, err := s.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	firstID := st.Entries[0].ID

	if err := s.Write("~/a.txt", "v2", tools.EncodingText, true); err != nil {
		t.Fatalf("Write v2: %v", err)
	}

	if err := s.Write("~/a.txt", "v3", tools.EncodingText, true); err != nil {
		t.Fatalf("Write v3: %v", err)
	}

	if err := s.Restore(firstID); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	data, err := s.Read("~/a.txt", tools.EncodingText, 1<<20)
	if err != nil {
		t.Fatalf("Read after restore: %v", err)
	}

	if data != "v1" {
		t.Fatalf("after restore got %q, want v1", data)
	}
}

func Test_Diff_Reports_Added_File(t *testing.T) {
	t.Parallel()

	s, _ := openTestSession(t)

	if err := s.Write("~/a.txt", "one", tools.EncodingText, true); err != nil {
		t.Fatalf("Write: %v", err)
	}

	st, err := s.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	diff, err := s.Diff(st.Entries[0].ID, 10, 10)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if len(diff.Files) != 1 || diff.Files[0].Path != "/a.txt" {
		t.Fatalf("got files %+v, want single /a.txt entry", diff.Files)
	}
}

func Test_Mkdir_And_Delete_Round_Trip(t *testing.T) {
	t.Parallel()

	s, _ := openTestSession(t)

	if err := s.Mkdir("~/dir", false); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	if _, _, err := s.Stat("~/dir"); err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if err := s.Delete("~/dir"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, ok, _ := s.Stat("~/dir"); ok {
		t.Fatalf("expected /dir to be gone after Delete")
	}
}

func Test_Execute_Runs_Separate_Process_And_Imports_Returned_Workspace(t *testing.T) {
	t.Parallel()

	exe := testSelfExe(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.zip")

	s, err := session.Open(path, session.WithSelfExecutable(exe))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	result, err := s.Execute(session.ExecuteRequest{EntryPath: "~/main.ts", TimeoutMs: 500})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !result.Ok {
		t.Fatalf("got Ok=false, error=%q", result.Error)
	}

	if result.Stdout != "hello from sandbox\n" {
		t.Fatalf("got stdout %q", result.Stdout)
	}
}

func Test_Execute_Reports_Timeout_On_Wall_Clock_Expiry(t *testing.T) {
	t.Parallel()

	exe := testSelfExe(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.zip")

	s, err := session.Open(
		path,
		session.WithSelfExecutable(exe),
		session.WithSandboxTimeoutSlack(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	result, err := s.Execute(session.ExecuteRequest{EntryPath: "~/hang.ts", TimeoutMs: 50})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.Ok {
		t.Fatalf("expected Ok=false on timeout")
	}

	if result.ExitCode != 124 {
		t.Fatalf("got exit code %d, want 124", result.ExitCode)
	}
}

func Test_Execute_Surfaces_Child_Reported_Failure(t *testing.T) {
	t.Parallel()

	exe := testSelfExe(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.zip")

	s, err := session.Open(path, session.WithSelfExecutable(exe))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	result, err := s.Execute(session.ExecuteRequest{EntryPath: "~/fail.ts", TimeoutMs: 500})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.Ok {
		t.Fatalf("expected Ok=false")
	}

	if result.Error != "boom" {
		t.Fatalf("got error %q, want boom", result.Error)
	}
}

func Test_RunChild_Executes_Bundled_Script_Against_Supplied_Workspace(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	if err := ws.WriteFile("/main.ts", []byte(`
		const fs = require("fs");
		fs.writeFileSync("/out.txt", "done");
		console.log("ran");
	`), true); err != nil {
		t.Fatalf("seeding workspace: %v", err)
	}

	zipBytes, err := ws.ExportZipBuffer()
	if err != nil {
		t.Fatalf("ExportZipBuffer: %v", err)
	}

	reqJSON, err := json.Marshal(map[string]any{
		"zipBase64": base64.StdEncoding.EncodeToString(zipBytes),
		"entryPath": "/main.ts",
		"timeoutMs": 500,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	var stdout bufferWriter

	exitCode := session.RunChild(bytes.NewReader(reqJSON), &stdout)
	if exitCode != 0 {
		t.Fatalf("got exit code %d, want 0 (stdout: %s)", exitCode, stdout.data)
	}

	var resp struct {
		Ok        bool   `json:"ok"`
		Stdout    string `json:"stdout"`
		ZipBase64 string `json:"zipBase64"`
	}

	if err := json.Unmarshal(stdout.data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, stdout.data)
	}

	if !resp.Ok {
		t.Fatalf("expected ok response, got %s", stdout.data)
	}

	if resp.Stdout != "ran\n" {
		t.Fatalf("got stdout %q, want %q", resp.Stdout, "ran\n")
	}

	outZip, err := base64.StdEncoding.DecodeString(resp.ZipBase64)
	if err != nil {
		t.Fatalf("decoding returned zip: %v", err)
	}

	outWs := workspace.New()
	if err := outWs.ImportZip(outZip); err != nil {
		t.Fatalf("ImportZip: %v", err)
	}

	data, err := outWs.ReadFile("/out.txt")
	if err != nil {
		t.Fatalf("ReadFile /out.txt: %v", err)
	}

	if string(data) != "done" {
		t.Fatalf("got %q, want %q", data, "done")
	}
}

type bufferWriter struct {
	data []byte
}

func (b *bufferWriter) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
