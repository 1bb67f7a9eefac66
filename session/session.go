// Package session implements the Host Session: the single owner of a
// workspace's in-memory state and the reserved-namespace history beside it.
// It loads/persists the ZIP container, wraps every mutating Tools Facade
// call with before/after snapshot capture and a Time Machine record, and
// spawns the separate-process sandbox executor for js_exec.
package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/agentws/agentws/history"
	"github.com/agentws/agentws/internal/metrics"
	"github.com/agentws/agentws/pathnorm"
	"github.com/agentws/agentws/tools"
	"github.com/agentws/agentws/workspace"
)

// ErrProtocolFailure is returned when the sandbox child's response cannot be
// parsed or is structurally invalid.
var ErrProtocolFailure = errors.New("session: malformed sandbox response")

// Option configures a Session constructed by Open.
type Option func(*Session)

// WithMetrics registers m to receive per-call instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithSelfExecutable overrides the binary path re-invoked for sandboxed
// execution; tests use this to point at a test-built stub.
func WithSelfExecutable(path string) Option {
	return func(s *Session) { s.selfExe = path }
}

// WithSandboxTimeoutSlack overrides the extra wall-clock allowance added on
// top of the request's inner script timeout (spec.md §5: "scriptTimeout +
// small slack").
func WithSandboxTimeoutSlack(d time.Duration) Option {
	return func(s *Session) { s.timeoutSlack = d }
}

// Session mediates every operation against one workspace backed by a ZIP
// file on disk, per spec.md §4.8.
type Session struct {
	path string
	ws   *workspace.Workspace
	tf   *tools.Facade
	tm   *history.TimeMachine

	metrics      *metrics.Metrics
	selfExe      string
	timeoutSlack time.Duration
}

// Open loads the ZIP at path, or creates and persists an empty workspace if
// it does not yet exist.
func Open(path string, opts ...Option) (*Session, error) {
	ws := workspace.New()

	data, err := os.ReadFile(path)

	switch {
	case err == nil:
		if err := ws.ImportZip(data); err != nil {
			return nil, fmt.Errorf("session: opening %q: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Empty workspace persisted below.
	default:
		return nil, fmt.Errorf("session: opening %q: %w", path, err)
	}

	selfExe, exeErr := os.Executable()
	if exeErr != nil {
		selfExe = ""
	}

	s := &Session{
		path:         path,
		ws:           ws,
		tf:           tools.New(ws),
		tm:           history.New(ws),
		selfExe:      selfExe,
		timeoutSlack: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(s)
	}

	if errors.Is(err, os.ErrNotExist) {
		if err := s.persist(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// persist serializes the workspace and atomically writes it to s.path.
func (s *Session) persist() error {
	buf, err := s.ws.ExportZipBuffer()
	if err != nil {
		return fmt.Errorf("session: exporting workspace: %w", err)
	}

	if err := atomicWrite(s.path, buf); err != nil {
		return err
	}

	return nil
}

func (s *Session) observe(op string, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveTool(op, err, time.Since(start))
	}
}

func (s *Session) record(tool string, before, after history.Snapshot) {
	if _, err := s.tm.Record(tool, "", before, after); err != nil {
		// Per spec.md §7: TM recording failure is swallowed so that primary
		// user operations are never blocked.
		_ = err
	}

	if s.metrics != nil {
		if st, err := s.tm.State(); err == nil {
			s.metrics.SetHistoryEntries(len(st.Entries))
		}
	}
}

func snapshotPath(ws *workspace.Workspace, p string) history.Snapshot {
	snap := history.Snapshot{Files: map[string][]byte{}, Dirs: map[string]struct{}{}}
	p = pathnorm.Normalize(p)

	if data, err := ws.ReadFile(p); err == nil {
		snap.Files[p] = data
	}

	if st, ok := ws.Stat(p); ok && st.Type == workspace.TypeDir {
		snap.Dirs[p] = struct{}{}
	}

	return snap
}

func fullSnapshot(ws *workspace.Workspace) history.Snapshot {
	return history.Snapshot{Files: ws.Files(), Dirs: ws.Dirs()}
}

// Read implements fs_read.
func (s *Session) Read(p string, enc tools.Encoding, maxBytes int64) (string, error) {
	defer s.observeDefer(metrics.OpRead, time.Now())
	return s.tf.Read(p, enc, maxBytes)
}

// ReadLines implements fs_read_lines.
func (s *Session) ReadLines(p string, startLine, endLine int, maxBytes int64) (*tools.ReadLinesResult, error) {
	defer s.observeDefer(metrics.OpReadLines, time.Now())
	return s.tf.ReadLines(p, startLine, endLine, maxBytes)
}

// Search implements fs_search.
func (s *Session) Search(opts tools.SearchOptions) (*tools.SearchSummary, error) {
	defer s.observeDefer(metrics.OpSearch, time.Now())
	return s.tf.Search(opts)
}

// List implements fs_list.
func (s *Session) List(p string) ([]string, error) {
	defer s.observeDefer(metrics.OpList, time.Now())
	return s.tf.List(p)
}

// Stat implements fs_stat.
func (s *Session) Stat(p string) (workspace.Stat, bool, error) {
	defer s.observeDefer(metrics.OpStat, time.Now())
	return s.tf.Stat(p)
}

// observeDefer is a tiny helper for read-only ops: it records the call's
// latency and counts it with outcome "ok". The op's error is not captured,
// so a failed read is counted as "ok" too.
func (s *Session) observeDefer(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveTool(op, nil, time.Since(start))
	}
}

// Write implements fs_write: a mutating TF call wrapped with snapshot
// capture, TM recording, and atomic persistence.
func (s *Session) Write(p, content string, enc tools.Encoding, overwrite bool) error {
	start := time.Now()

	before := snapshotPath(s.ws, p)

	err := s.tf.Write(p, content, enc, overwrite)

	s.observe(metrics.OpWrite, err, start)

	if err != nil {
		return err
	}

	after := snapshotPath(s.ws, p)
	s.record("fs_write", before, after)

	return s.persist()
}

// PatchLines implements fs_patch_lines.
func (s *Session) PatchLines(p, replacement string, startLine, endLine int) error {
	start := time.Now()

	before := snapshotPath(s.ws, p)

	err := s.tf.PatchLines(p, replacement, startLine, endLine)

	s.observe(metrics.OpPatchLines, err, start)

	if err != nil {
		return err
	}

	after := snapshotPath(s.ws, p)
	s.record("fs_patch_lines", before, after)

	return s.persist()
}

// Mkdir implements fs_mkdir.
func (s *Session) Mkdir(p string, recursive bool) error {
	start := time.Now()

	before := snapshotPath(s.ws, p)

	err := s.tf.Mkdir(p, recursive)

	s.observe(metrics.OpMkdir, err, start)

	if err != nil {
		return err
	}

	after := snapshotPath(s.ws, p)
	s.record("fs_mkdir", before, after)

	return s.persist()
}

// Delete implements fs_delete.
func (s *Session) Delete(p string) error {
	start := time.Now()

	before := snapshotPath(s.ws, p)

	err := s.tf.Delete(p)

	s.observe(metrics.OpDelete, err, start)

	if err != nil {
		return err
	}

	after := snapshotPath(s.ws, p)
	s.record("fs_delete", before, after)

	return s.persist()
}

// ExecuteRequest configures one js_exec call.
type ExecuteRequest struct {
	EntryPath string
	Argv      []string
	Env       map[string]string
	TimeoutMs int
}

// ExecuteResult is the outcome of js_exec.
type ExecuteResult struct {
	Ok            bool
	Stdout        string
	Stderr        string
	ExitCode      int
	Error         string
	CorrelationID string
}

// Execute implements js_exec: it serializes the whole workspace to a ZIP,
// runs the bundler and executor in a separate OS process subject to a
// wall-clock timeout, imports any returned ZIP back into the workspace, and
// records the whole-mapping before/after as one TM entry.
func (s *Session) Execute(req ExecuteRequest) (*ExecuteResult, error) {
	start := time.Now()
	correlationID := uuid.NewString()

	before := fullSnapshot(s.ws)

	sandboxReq := SandboxRequest{
		EntryPath: req.EntryPath,
		Argv:      req.Argv,
		Env:       req.Env,
		TimeoutMs: req.TimeoutMs,
	}
	sandboxReq.applyDefaults()

	zipBytes, err := s.ws.ExportZipBuffer()
	if err != nil {
		return nil, fmt.Errorf("session: exporting workspace for execute: %w", err)
	}

	wallClock := time.Duration(sandboxReq.TimeoutMs)*time.Millisecond + s.timeoutSlack

	resp, spawnErr := spawnSandbox(s.selfExe, sandboxReq, zipBytes, wallClock)

	result := &ExecuteResult{CorrelationID: correlationID}

	if spawnErr != nil {
		if errors.Is(spawnErr, errSandboxTimeout) {
			result.Ok = false
			result.ExitCode = exitCodeWallClockTimeout
			result.Error = "execution timed out"

			s.observeExecute("timeout")
			s.observe(metrics.OpExecute, spawnErr, start)

			return result, nil
		}

		s.observe(metrics.OpExecute, spawnErr, start)

		return nil, fmt.Errorf("%w: %v", ErrProtocolFailure, spawnErr)
	}

	result.Ok = resp.Ok
	result.Stdout = resp.Stdout
	result.Stderr = resp.Stderr
	result.ExitCode = resp.ExitCode
	result.Error = resp.Error

	if !resp.Ok {
		s.observeExecute("error")
		s.observe(metrics.OpExecute, nil, start)

		return result, nil
	}

	outZip, err := base64.StdEncoding.DecodeString(resp.ZipBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding returned zip: %v", ErrProtocolFailure, err)
	}

	if err := s.ws.ImportZip(outZip); err != nil {
		return nil, fmt.Errorf("session: importing executed workspace: %w", err)
	}

	after := fullSnapshot(s.ws)
	s.record("js_exec:"+correlationID, before, after)

	s.observeExecute("ok")
	s.observe(metrics.OpExecute, nil, start)

	if err := s.persist(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Session) observeExecute(result string) {
	if s.metrics != nil {
		s.metrics.ObserveExecute(result)
	}
}

// History returns the current Time Machine state for listing.
func (s *Session) History() (*history.State, error) {
	return s.tm.State()
}

// Diff implements :diff.
func (s *Session) Diff(id string, maxFiles, maxPreviewLines int) (*history.DiffResult, error) {
	return s.tm.Diff(id, maxFiles, maxPreviewLines)
}

// Undo implements :undo.
func (s *Session) Undo(steps int) (int, error) {
	applied, err := s.tm.Undo(steps)
	if err != nil {
		return applied, err
	}

	return applied, s.persist()
}

// Redo implements :redo.
func (s *Session) Redo(steps int) (int, error) {
	applied, err := s.tm.Redo(steps)
	if err != nil {
		return applied, err
	}

	return applied, s.persist()
}

// Restore implements :restore.
func (s *Session) Restore(id string) error {
	if err := s.tm.Restore(id); err != nil {
		return err
	}

	return s.persist()
}

