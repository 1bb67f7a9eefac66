package exec_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentws/agentws/exec"
)

type fakeCapability struct {
	files map[string][]byte
}

func newFakeCapability() *fakeCapability {
	return &fakeCapability{files: map[string][]byte{}}
}

func (f *fakeCapability) ReadFile(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}

	return data, nil
}

func (f *fakeCapability) WriteFile(path string, data []byte) error {
	f.files[path] = append([]byte{}, data...)
	return nil
}

func (f *fakeCapability) Readdir(string) ([]string, error) { return nil, nil }

func (f *fakeCapability) Stat(path string) (string, int64, bool) {
	data, ok := f.files[path]
	if !ok {
		return "", 0, false
	}

	return "file", int64(len(data)), true
}

func (f *fakeCapability) Mkdir(string, bool) error   { return nil }
func (f *fakeCapability) DeletePath(string) error    { return nil }

func Test_Run_Captures_Console_Log_To_Stdout(t *testing.T) {
	t.Parallel()

	code := `console.log("hi");`

	result, err := exec.Run(exec.Request{
		Code:     code,
		Filename: "main.js",
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(result.Stdout, "hi") {
		t.Errorf("Stdout = %q, want it to contain %q", result.Stdout, "hi")
	}
}

func Test_Run_Writes_Through_Capability(t *testing.T) {
	t.Parallel()

	cap := newFakeCapability()

	code := `__agentws_capability.writeFile("/out/hello.txt", "hello from guest");`

	_, err := exec.Run(exec.Request{
		Code:     code,
		Filename: "main.js",
		Cap:      cap,
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if string(cap.files["/out/hello.txt"]) != "hello from guest" {
		t.Errorf("capability file = %q, want %q", cap.files["/out/hello.txt"], "hello from guest")
	}
}

func Test_Run_Returns_Timeout_On_Infinite_Loop(t *testing.T) {
	t.Parallel()

	code := `while (true) {}`

	_, err := exec.Run(exec.Request{
		Code:     code,
		Filename: "main.js",
		Timeout:  50 * time.Millisecond,
	})
	if !errors.Is(err, exec.ErrTimeout) {
		t.Fatalf("Run err = %v, want ErrTimeout", err)
	}
}

func Test_Run_Blocks_Eval(t *testing.T) {
	t.Parallel()

	code := `eval("1+1");`

	_, err := exec.Run(exec.Request{Code: code, Filename: "main.js", Timeout: time.Second})
	if err == nil {
		t.Fatal("Run err = nil, want eval to be blocked")
	}

	if !strings.Contains(err.Error(), "dynamic code generation is disabled") {
		t.Errorf("Run err = %v, want a dynamic-code-generation error", err)
	}
}

func Test_Run_Blocks_Function_Constructor(t *testing.T) {
	t.Parallel()

	code := `new Function("return 1");`

	_, err := exec.Run(exec.Request{Code: code, Filename: "main.js", Timeout: time.Second})
	if err == nil {
		t.Fatal("Run err = nil, want Function constructor to be blocked")
	}

	if !strings.Contains(err.Error(), "dynamic code generation is disabled") {
		t.Errorf("Run err = %v, want a dynamic-code-generation error", err)
	}
}

func Test_Run_Blocks_Global_Require_Not_Just_Wrapper_Parameter(t *testing.T) {
	t.Parallel()

	code := `globalThis.require("fs");`

	_, err := exec.Run(exec.Request{Code: code, Filename: "main.js", Timeout: time.Second})
	if err == nil {
		t.Fatal("Run err = nil, want the global require binding to be blocked too")
	}

	if !strings.Contains(err.Error(), "module loading is blocked") {
		t.Errorf("Run err = %v, want a blocked-module error", err)
	}
}

func Test_Run_Provides_Buffer_TextEncoder_TextDecoder(t *testing.T) {
	t.Parallel()

	code := `var decoded = new TextDecoder().decode(new TextEncoder().encode("hi"));
		var fromBase64 = Buffer.from("aGk=", "base64");
		module.exports = { decoded: decoded, fromBase64Len: fromBase64.length };`

	result, err := exec.Run(exec.Request{Code: code, Filename: "main.js", Timeout: time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	exported := result.Exports.Export().(map[string]interface{})
	if exported["decoded"] != "hi" {
		t.Errorf("decoded = %v, want %q", exported["decoded"], "hi")
	}

	if exported["fromBase64Len"] != int64(2) {
		t.Errorf("fromBase64Len = %v, want 2", exported["fromBase64Len"])
	}
}

func Test_Run_SetTimeout_Callback_Fires_Before_Run_Returns(t *testing.T) {
	t.Parallel()

	code := `setTimeout(function() { console.log("fired"); }, 0);`

	result, err := exec.Run(exec.Request{Code: code, Filename: "main.js", Timeout: time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(result.Stdout, "fired") {
		t.Errorf("Stdout = %q, want it to contain %q", result.Stdout, "fired")
	}
}

func Test_Process_Facade_Exposes_Argv_And_Frozen_Env(t *testing.T) {
	t.Parallel()

	code := `try { process.env.FOO = "mutated"; } catch (e) {}
		module.exports = { argv: process.argv.join(","), cwd: process.cwd(), foo: process.env.FOO };`

	result, err := exec.Run(exec.Request{
		Code:     code,
		Filename: "main.js",
		Argv:     []string{"a", "b"},
		Env:      map[string]string{"FOO": "bar"},
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Exports == nil {
		t.Fatal("Exports is nil")
	}

	exported := result.Exports.Export().(map[string]interface{})
	if exported["argv"] != "agentws,main.js,a,b" {
		t.Errorf("argv = %v, want %q", exported["argv"], "agentws,main.js,a,b")
	}

	if exported["cwd"] != "/" {
		t.Errorf("cwd = %v, want %q", exported["cwd"], "/")
	}

	if exported["foo"] != "bar" {
		t.Errorf("env.FOO after mutation attempt = %v, want %q", exported["foo"], "bar")
	}
}
