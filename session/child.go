package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/agentws/agentws/bundle"
	"github.com/agentws/agentws/exec"
	"github.com/agentws/agentws/workspace"
)

// RunChild implements the sandbox child process side of the protocol in
// spec.md §6: read a single SandboxRequest JSON object from stdin, bundle
// and execute the requested entry against a workspace materialized from the
// request's ZIP, and write a single SandboxResponse JSON object to stdout.
// It returns the process exit code the caller should use.
func RunChild(stdin io.Reader, stdout io.Writer) int {
	resp, exitCode := runChild(stdin)

	data, err := json.Marshal(resp)
	if err != nil {
		fmt.Fprintf(stdout, `{"ok":false,"error":%q,"exitCode":1}`, err.Error())
		return exitCodeGenericFailure
	}

	_, _ = stdout.Write(data)

	return exitCode
}

func runChild(stdin io.Reader) (SandboxResponse, int) {
	var req SandboxRequest

	body, err := io.ReadAll(stdin)
	if err != nil {
		return SandboxResponse{Ok: false, Error: fmt.Sprintf("reading request: %v", err), ExitCode: exitCodeGenericFailure}, exitCodeGenericFailure
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return SandboxResponse{Ok: false, Error: fmt.Sprintf("parsing request: %v", err), ExitCode: exitCodeGenericFailure}, exitCodeGenericFailure
	}

	req.applyDefaults()

	zipBytes, err := base64.StdEncoding.DecodeString(req.ZipBase64)
	if err != nil {
		return SandboxResponse{Ok: false, Error: fmt.Sprintf("decoding zip: %v", err), ExitCode: exitCodeGenericFailure}, exitCodeGenericFailure
	}

	ws := workspace.New()
	if len(zipBytes) > 0 {
		if err := ws.ImportZip(zipBytes); err != nil {
			return SandboxResponse{Ok: false, Error: fmt.Sprintf("importing workspace: %v", err), ExitCode: exitCodeGenericFailure}, exitCodeGenericFailure
		}
	}

	built, err := bundle.Build(ws, req.EntryPath)
	if err != nil {
		return SandboxResponse{Ok: false, Error: err.Error(), ExitCode: exitCodeGenericFailure}, exitCodeGenericFailure
	}

	result, err := exec.Run(exec.Request{
		Code:     built.Code,
		Filename: req.EntryPath,
		Argv:     req.Argv,
		Env:      req.Env,
		Cap:      &wsCapability{ws: ws},
		Timeout:  time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		if errors.Is(err, exec.ErrTimeout) {
			return SandboxResponse{
				Ok:       false,
				Stdout:   result.Stdout,
				Stderr:   result.Stderr,
				Error:    "script timed out",
				ExitCode: exitCodeWallClockTimeout,
			}, exitCodeWallClockTimeout
		}

		return SandboxResponse{Ok: false, Error: err.Error(), ExitCode: exitCodeGenericFailure}, exitCodeGenericFailure
	}

	outZip, err := ws.ExportZipBuffer()
	if err != nil {
		return SandboxResponse{Ok: false, Error: fmt.Sprintf("exporting workspace: %v", err), ExitCode: exitCodeGenericFailure}, exitCodeGenericFailure
	}

	return SandboxResponse{
		Ok:        true,
		Stdout:    result.Stdout,
		Stderr:    result.Stderr,
		ExitCode:  exitCodeSuccess,
		ZipBase64: base64.StdEncoding.EncodeToString(outZip),
	}, exitCodeSuccess
}
