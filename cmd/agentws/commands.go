package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/agentws/agentws/history"
	"github.com/agentws/agentws/session"
	"github.com/agentws/agentws/tools"
	"github.com/agentws/agentws/workspace"
)

const maxReadBytes = 64 << 20

// envelope is the CLI's one external-interface contract (spec.md §7): every
// command emits exactly one of these as JSON to stdout, never plain text or
// bare JSON.
type envelope struct {
	Ok    bool           `json:"ok"`
	Error string         `json:"error,omitempty"`
	Code  string         `json:"code,omitempty"`
	Data  map[string]any `json:"-"`
}

// MarshalJSON flattens Data's keys alongside ok/error/code so a success
// envelope reads as {"ok":true,"path":...} rather than a nested "data" key.
func (e envelope) MarshalJSON() ([]byte, error) {
	merged := map[string]any{"ok": e.Ok}

	if e.Error != "" {
		merged["error"] = e.Error
	}

	if e.Code != "" {
		merged["code"] = e.Code
	}

	for k, v := range e.Data {
		merged[k] = v
	}

	return json.Marshal(merged)
}

// execFailedError wraps a js_exec result that completed but reported
// ok:false (a blocked import, a bundle failure, a script timeout, or an
// uncaught guest exception), so dispatch's generic error handling can still
// produce a {ok:false,...} envelope for it.
type execFailedError struct {
	exitCode int
	message  string
}

func (e *execFailedError) Error() string { return e.message }

// errorCode classifies err into one of spec.md §7's error kinds.
func errorCode(err error) string {
	var execErr *execFailedError
	if errors.As(err, &execErr) {
		switch {
		case execErr.exitCode == 124:
			return "timeout"
		case strings.Contains(execErr.message, "blocked"):
			return "access-denied"
		case strings.Contains(execErr.message, "bundle"):
			return "bundle-failure"
		default:
			return ""
		}
	}

	switch {
	case errors.Is(err, workspace.ErrNotFound):
		return "not-found"
	case errors.Is(err, workspace.ErrNotADirectory):
		return "not-a-directory"
	case errors.Is(err, workspace.ErrNonEmpty):
		return "non-empty"
	case errors.Is(err, workspace.ErrAlreadyExists):
		return "already-exists"
	case errors.Is(err, workspace.ErrCorruptArchive):
		return "corrupt-archive"
	case errors.Is(err, tools.ErrTooLarge):
		return "too-large"
	case errors.Is(err, tools.ErrAccessDenied), errors.Is(err, tools.ErrUnsupportedEncoding):
		return "access-denied"
	case errors.Is(err, session.ErrProtocolFailure):
		return "protocol-failure"
	case errors.Is(err, history.ErrEntryNotFound), errors.Is(err, history.ErrCursorOutOfRange):
		return "not-found"
	default:
		return ""
	}
}

func dispatch(sess *session.Session, cfg Config, args []string, stdout, stderr io.Writer) int {
	cmd, rest := args[0], args[1:]

	var (
		data map[string]any
		err  error
	)

	switch cmd {
	case "fs-read":
		data, err = cmdFsRead(sess, rest)
	case "fs-read-lines":
		data, err = cmdFsReadLines(sess, rest)
	case "fs-write":
		data, err = cmdFsWrite(sess, rest, os.Stdin)
	case "fs-patch-lines":
		data, err = cmdFsPatchLines(sess, rest, os.Stdin)
	case "fs-list":
		data, err = cmdFsList(sess, rest)
	case "fs-stat":
		data, err = cmdFsStat(sess, rest)
	case "fs-mkdir":
		data, err = cmdFsMkdir(sess, rest)
	case "fs-delete":
		data, err = cmdFsDelete(sess, rest)
	case "fs-search":
		data, err = cmdFsSearch(sess, rest)
	case "exec":
		data, err = cmdExec(sess, cfg, rest, stderr)
	case "history":
		data, err = cmdHistory(sess)
	case "diff":
		data, err = cmdDiff(sess, rest)
	case "undo":
		data, err = cmdUndo(sess, rest)
	case "redo":
		data, err = cmdRedo(sess, rest)
	case "restore":
		data, err = cmdRestore(sess, rest)
	default:
		writeEnvelope(stdout, envelope{Ok: false, Error: "unknown command " + strconv.Quote(cmd)})
		return 1
	}

	if err != nil {
		writeEnvelope(stdout, envelope{Ok: false, Error: err.Error(), Code: errorCode(err)})
		return 1
	}

	writeEnvelope(stdout, envelope{Ok: true, Data: data})

	return 0
}

func writeEnvelope(w io.Writer, env envelope) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(env)
}

func requireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return errors.New("usage: agentws " + usage)
	}

	return nil
}

func cmdFsRead(sess *session.Session, args []string) (map[string]any, error) {
	if err := requireArgs(args, 1, "fs-read <path> [enc]"); err != nil {
		return nil, err
	}

	enc := tools.EncodingText
	if len(args) > 1 {
		enc = tools.Encoding(args[1])
	}

	content, err := sess.Read(args[0], enc, maxReadBytes)
	if err != nil {
		return nil, err
	}

	return map[string]any{"path": args[0], "content": content, "enc": string(enc)}, nil
}

func cmdFsReadLines(sess *session.Session, args []string) (map[string]any, error) {
	if err := requireArgs(args, 3, "fs-read-lines <path> <start> <end>"); err != nil {
		return nil, err
	}

	start, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, err
	}

	end, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, err
	}

	result, err := sess.ReadLines(args[0], start, end, maxReadBytes)
	if err != nil {
		return nil, err
	}

	return map[string]any{"result": result}, nil
}

func readContentArg(arg string, stdin io.Reader) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}

	return arg, nil
}

func cmdFsWrite(sess *session.Session, args []string, stdin io.Reader) (map[string]any, error) {
	if err := requireArgs(args, 2, "fs-write <path> <content|-> [enc]"); err != nil {
		return nil, err
	}

	content, err := readContentArg(args[1], stdin)
	if err != nil {
		return nil, err
	}

	enc := tools.EncodingText
	if len(args) > 2 {
		enc = tools.Encoding(args[2])
	}

	if err := sess.Write(args[0], content, enc, true); err != nil {
		return nil, err
	}

	return map[string]any{"path": args[0]}, nil
}

func cmdFsPatchLines(sess *session.Session, args []string, stdin io.Reader) (map[string]any, error) {
	if err := requireArgs(args, 4, "fs-patch-lines <path> <start> <end> <replacement|->"); err != nil {
		return nil, err
	}

	start, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, err
	}

	end, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, err
	}

	content, err := readContentArg(args[3], stdin)
	if err != nil {
		return nil, err
	}

	if err := sess.PatchLines(args[0], content, start, end); err != nil {
		return nil, err
	}

	return map[string]any{"path": args[0]}, nil
}

func cmdFsList(sess *session.Session, args []string) (map[string]any, error) {
	if err := requireArgs(args, 1, "fs-list <path>"); err != nil {
		return nil, err
	}

	names, err := sess.List(args[0])
	if err != nil {
		return nil, err
	}

	return map[string]any{"entries": names}, nil
}

func cmdFsStat(sess *session.Session, args []string) (map[string]any, error) {
	if err := requireArgs(args, 1, "fs-stat <path>"); err != nil {
		return nil, err
	}

	st, ok, err := sess.Stat(args[0])
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmtNotFoundError(args[0])
	}

	return map[string]any{"stat": st}, nil
}

func cmdFsMkdir(sess *session.Session, args []string) (map[string]any, error) {
	if err := requireArgs(args, 1, "fs-mkdir <path> [-p]"); err != nil {
		return nil, err
	}

	recursive := len(args) > 1 && args[1] == "-p"

	if err := sess.Mkdir(args[0], recursive); err != nil {
		return nil, err
	}

	return map[string]any{"path": args[0]}, nil
}

func cmdFsDelete(sess *session.Session, args []string) (map[string]any, error) {
	if err := requireArgs(args, 1, "fs-delete <path>"); err != nil {
		return nil, err
	}

	if err := sess.Delete(args[0]); err != nil {
		return nil, err
	}

	return map[string]any{"path": args[0]}, nil
}

func cmdFsSearch(sess *session.Session, args []string) (map[string]any, error) {
	if err := requireArgs(args, 1, "fs-search <pattern> [path]"); err != nil {
		return nil, err
	}

	scope := "/"
	if len(args) > 1 {
		scope = args[1]
	}

	summary, err := sess.Search(searchOptions(args[0], scope))
	if err != nil {
		return nil, err
	}

	return map[string]any{"summary": summary}, nil
}

func cmdExec(sess *session.Session, cfg Config, args []string, stderr io.Writer) (map[string]any, error) {
	if err := requireArgs(args, 1, "exec <entryPath> [-- argv...]"); err != nil {
		return nil, err
	}

	entryPath := args[0]

	var argv []string

	for i, a := range args[1:] {
		if a == "--" {
			argv = append([]string{}, args[1+i+1:]...)
			break
		}
	}

	result, err := sess.Execute(session.ExecuteRequest{
		EntryPath: entryPath,
		Argv:      argv,
		TimeoutMs: cfg.TimeoutMs,
	})
	if err != nil {
		return nil, err
	}

	if result.Stderr != "" {
		_, _ = io.WriteString(stderr, result.Stderr)
	}

	data := map[string]any{
		"stdout":   result.Stdout,
		"exitCode": result.ExitCode,
	}

	if !result.Ok {
		return data, &execFailedError{exitCode: result.ExitCode, message: result.Error}
	}

	return data, nil
}

func cmdHistory(sess *session.Session) (map[string]any, error) {
	state, err := sess.History()
	if err != nil {
		return nil, err
	}

	return map[string]any{"state": state}, nil
}

func cmdDiff(sess *session.Session, args []string) (map[string]any, error) {
	if err := requireArgs(args, 1, "diff <entryId>"); err != nil {
		return nil, err
	}

	diff, err := sess.Diff(args[0], 50, 20)
	if err != nil {
		return nil, err
	}

	return map[string]any{"diff": diff}, nil
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}

	return strconv.Atoi(args[0])
}

func cmdUndo(sess *session.Session, args []string) (map[string]any, error) {
	steps, err := parseSteps(args)
	if err != nil {
		return nil, err
	}

	applied, err := sess.Undo(steps)
	if err != nil {
		return nil, err
	}

	return map[string]any{"applied": applied}, nil
}

func cmdRedo(sess *session.Session, args []string) (map[string]any, error) {
	steps, err := parseSteps(args)
	if err != nil {
		return nil, err
	}

	applied, err := sess.Redo(steps)
	if err != nil {
		return nil, err
	}

	return map[string]any{"applied": applied}, nil
}

func cmdRestore(sess *session.Session, args []string) (map[string]any, error) {
	if err := requireArgs(args, 1, "restore <entryId>"); err != nil {
		return nil, err
	}

	if err := sess.Restore(args[0]); err != nil {
		return nil, err
	}

	return map[string]any{"entryId": args[0]}, nil
}

func searchOptions(query, pathPrefix string) tools.SearchOptions {
	return tools.SearchOptions{Query: query, PathPrefix: pathPrefix}
}

func fmtNotFoundError(path string) error {
	return errors.Join(workspace.ErrNotFound, errors.New(path+": not found"))
}
