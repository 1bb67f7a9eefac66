package exec

import (
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
)

// captureBuffer is a minimal strings.Builder wrapper used so bindConsole can
// take a pointer receiver without importing strings in executor.go twice.
type captureBuffer struct {
	strings.Builder
}

// streamPrinter implements goja_nodejs/console.Printer, routing log/info to
// one stream and warn/error to another — the exact stdout/stderr mapping
// spec.md §4.7 requires.
type streamPrinter struct {
	stdout *captureBuffer
	stderr *captureBuffer
}

func (p *streamPrinter) Log(s string) {
	p.stdout.WriteString(s)
	p.stdout.WriteString("\n")
}

func (p *streamPrinter) Warn(s string) {
	p.stderr.WriteString(s)
	p.stderr.WriteString("\n")
}

func (p *streamPrinter) Error(s string) {
	p.stderr.WriteString(s)
	p.stderr.WriteString("\n")
}

// bindConsole registers a console module backed by a registry-scoped
// require.Registry so console.log/info route to stdout and console.warn/
// error route to stderr, both captured in-memory rather than written to the
// host's real streams.
//
// registry.Enable installs a working global require on the runtime (goja_
// nodejs's default module loader, which falls back to reading from the host
// filesystem for unregistered names) purely so console.Enable can resolve
// the "console" module through it. That global binding is overridden with
// the same blocked shim used for the CommonJS wrapper's require parameter
// immediately afterward, so guest code can never reach the working loader
// via globalThis.require.
func bindConsole(vm *goja.Runtime, stdout, stderr *captureBuffer) error {
	registry := new(require.Registry)
	printer := &streamPrinter{stdout: stdout, stderr: stderr}

	registry.RegisterNativeModule("console", console.RequireWithPrinter(printer))
	registry.Enable(vm)
	console.Enable(vm)

	if err := vm.Set("require", blockedRequireValue(vm)); err != nil {
		return err
	}

	return nil
}
