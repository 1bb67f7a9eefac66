package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// errSandboxTimeout is returned by spawnSandbox when the child is killed
// for exceeding its wall-clock allowance.
var errSandboxTimeout = errors.New("session: sandbox process exceeded wall-clock timeout")

// spawnSandbox re-invokes selfExe as a child process with the hidden
// sandboxRunSubcommand, feeds it req (with zipBytes attached) as JSON on
// stdin, and enforces wallClock as a hard wall-clock limit independent of
// the inner script timeout the child enforces on itself. On expiry the
// entire process group is killed, grounded on the teacher's
// context-driven process lifecycle (cmd/agent-sandbox/multicall.go,
// sandbox/command.go) generalized from a single exec.CommandContext cancel
// to an explicit process-group kill since the child may itself spawn
// goja's runtime without any subprocesses of its own, but killing the
// group keeps the guarantee uniform regardless of what the child does.
func spawnSandbox(selfExe string, req SandboxRequest, zipBytes []byte, wallClock time.Duration) (*SandboxResponse, error) {
	if selfExe == "" {
		return nil, errors.New("session: no self-executable available to spawn sandbox process")
	}

	req.ZipBase64 = base64.StdEncoding.EncodeToString(zipBytes)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("session: encoding sandbox request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wallClock)
	defer cancel()

	cmd := exec.CommandContext(ctx, selfExe, sandboxRunSubcommand)
	cmd.Stdin = bytes.NewReader(payload)
	// Scrub the child's OS environment entirely (spec.md §6: "Child env is
	// scrubbed"). selfExe is always an absolute path from os.Executable, so
	// PATH is never needed to locate it. The guest-visible process.env is a
	// separate boundary, built only from req.Env inside the goja VM.
	cmd.Env = []string{}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}

		return unix.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, errSandboxTimeout
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("session: running sandbox process: %w", runErr)
		}
		// A non-zero exit with valid JSON on stdout is a normal failure
		// response (spec.md §6); fall through to parse it.
	}

	var resp SandboxResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v (stderr: %s)", ErrProtocolFailure, err, stderr.String())
	}

	return &resp, nil
}
