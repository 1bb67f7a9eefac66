package bundle_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/agentws/agentws/bundle"
	"github.com/agentws/agentws/workspace"
)

func Test_Build_Resolves_Relative_Import(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	_ = ws.WriteFile("/main.ts", []byte(`
		import { greet } from "./greet";
		console.log(greet("world"));
	`), true)
	_ = ws.WriteFile("/greet.ts", []byte(`
		export function greet(name) { return "hello " + name; }
	`), true)

	result, err := bundle.Build(ws, "/main.ts")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(result.Code, "hello") {
		t.Errorf("bundled code missing expected source, got: %s", result.Code)
	}
}

func Test_Build_Resolves_Fs_Shim_Import(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	_ = ws.WriteFile("/main.js", []byte(`
		var fs = require("fs");
		fs.writeFileSync("/out.txt", "hi");
	`), true)

	result, err := bundle.Build(ws, "/main.js")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(result.Code, "__agentws_capability") {
		t.Errorf("bundled code does not reference capability object: %s", result.Code)
	}
}

func Test_Build_Resolves_Node_Prefixed_Shim_Import(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	_ = ws.WriteFile("/main.js", []byte(`
		var fs = require("node:fs");
		fs.writeFileSync("/out.txt", "hi");
	`), true)

	result, err := bundle.Build(ws, "/main.js")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(result.Code, "__agentws_capability") {
		t.Errorf("bundled code does not reference capability object: %s", result.Code)
	}
}

func Test_Build_Rejects_Denylisted_Import(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	_ = ws.WriteFile("/main.js", []byte(`require("child_process");`), true)

	_, err := bundle.Build(ws, "/main.js")
	if !errors.Is(err, bundle.ErrBundleFailure) {
		t.Fatalf("Build err = %v, want ErrBundleFailure", err)
	}
}

func Test_Build_Fails_On_Missing_Entry(t *testing.T) {
	t.Parallel()

	ws := workspace.New()

	_, err := bundle.Build(ws, "/nope.ts")
	if !errors.Is(err, bundle.ErrBundleFailure) {
		t.Fatalf("Build err = %v, want ErrBundleFailure", err)
	}
}

func Test_Build_Fails_On_Unresolvable_Relative_Import(t *testing.T) {
	t.Parallel()

	ws := workspace.New()
	_ = ws.WriteFile("/main.js", []byte(`require("./missing");`), true)

	_, err := bundle.Build(ws, "/main.js")
	if !errors.Is(err, bundle.ErrBundleFailure) {
		t.Fatalf("Build err = %v, want ErrBundleFailure", err)
	}
}
