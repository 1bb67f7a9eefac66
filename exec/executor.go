// Package exec implements the Executor: it runs a bundled CommonJS blob
// inside a fresh, minimal goja.Runtime with no host bindings beyond the
// capability object, a frozen process facade, and the Node console shim.
// Dynamic code generation and module loading are both blocked inside the
// guest context.
package exec

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// ErrTimeout is returned when a script does not finish within its
// per-execution timeout.
var ErrTimeout = errors.New("exec: script timeout")

// ErrBlockedModule is the error message returned to guest code by the
// blocked require shim (spec.md §4.7: "a require shim that always fails").
var ErrBlockedModule = errors.New("exec: module loading is blocked inside the sandbox")

// Capability is the synchronous, total filesystem surface exposed to guest
// code via the VFS shims (spec.md §4.6). Implementations must enforce the
// reserved-namespace policy themselves: reads under "/.time" behave as
// nonexistent, mutations are denied.
type Capability interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Readdir(path string) ([]string, error)
	Stat(path string) (typ string, size int64, exists bool)
	Mkdir(path string, recursive bool) error
	DeletePath(path string) error
}

// Request configures one Executor run.
type Request struct {
	// Code is the bundled CommonJS source produced by bundle.Build.
	Code string
	// Filename is the script name the runtime compiles against (used in
	// stack traces only).
	Filename string
	Argv     []string
	Env      map[string]string
	Cap      Capability
	Timeout  time.Duration
}

// Result is the outcome of running a guest script.
type Result struct {
	Stdout  string
	Stderr  string
	Exports goja.Value
}

// Run constructs a fresh execution context for req and invokes the bundled
// code within it, subject to req.Timeout. It never reuses a runtime across
// calls.
func Run(req Request) (*Result, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	var stdout, stderr captureBuffer

	if err := bindConsole(vm, &stdout, &stderr); err != nil {
		return nil, fmt.Errorf("exec: binding console: %w", err)
	}

	if err := bindCapability(vm, req.Cap); err != nil {
		return nil, fmt.Errorf("exec: binding capability: %w", err)
	}

	if err := bindProcess(vm, req.Filename, req.Argv, req.Env); err != nil {
		return nil, fmt.Errorf("exec: binding process facade: %w", err)
	}

	if err := bindEncoding(vm); err != nil {
		return nil, fmt.Errorf("exec: binding encoding primitives: %w", err)
	}

	timers := newTimerQueue()
	if err := bindTimers(vm, timers); err != nil {
		return nil, fmt.Errorf("exec: binding timers: %w", err)
	}

	if err := blockDynamicCode(vm); err != nil {
		return nil, fmt.Errorf("exec: blocking dynamic code generation: %w", err)
	}

	program, err := goja.Compile(req.Filename, wrapCommonJS(req.Code), false)
	if err != nil {
		return nil, fmt.Errorf("exec: compiling script: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(ErrTimeout)
	})
	defer timer.Stop()

	moduleExports, runErr := runScript(vm, program)
	if runErr == nil {
		runErr = timers.drain()
	}

	if runErr != nil {
		if isInterrupted(runErr) {
			return &Result{Stdout: stdout.String(), Stderr: stderr.String()}, ErrTimeout
		}

		return &Result{Stdout: stdout.String(), Stderr: stderr.String()}, fmt.Errorf("exec: running script: %w", runErr)
	}

	return &Result{Stdout: stdout.String(), Stderr: stderr.String(), Exports: moduleExports}, nil
}

func runScript(vm *goja.Runtime, program *goja.Program) (goja.Value, error) {
	moduleObj := vm.NewObject()
	exportsObj := vm.NewObject()
	_ = moduleObj.Set("exports", exportsObj)

	if _, err := vm.RunProgram(program); err != nil {
		return nil, err
	}

	wrapperVal := vm.Get("__agentws_entry")
	wrapperFn, ok := goja.AssertFunction(wrapperVal)
	if !ok {
		return nil, errors.New("exec: bundled entry is not callable")
	}

	if _, err := wrapperFn(goja.Undefined(), blockedRequireValue(vm), moduleObj, exportsObj); err != nil {
		return nil, err
	}

	return moduleObj.Get("exports"), nil
}

// blockedRequireValue builds the require shim that always fails, per
// spec.md §4.7. Both the CommonJS wrapper's require parameter and the VM's
// global require binding use this same function so guest code can never
// reach a working module loader through either path.
func blockedRequireValue(vm *goja.Runtime) goja.Value {
	return vm.ToValue(func(goja.FunctionCall) goja.Value {
		panic(vm.ToValue(ErrBlockedModule.Error()))
	})
}

// wrapCommonJS wraps a CommonJS-format bundle (a sequence of top-level
// statements assigning to module.exports) in the (require, module, exports)
// entry trio the Executor invokes, per spec.md §4.7.
func wrapCommonJS(code string) string {
	return "function __agentws_entry(require, module, exports) {\n" + code + "\n}"
}

func isInterrupted(err error) bool {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		return true
	}

	return false
}
