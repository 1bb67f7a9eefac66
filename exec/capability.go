package exec

import (
	"errors"

	"github.com/dop251/goja"
)

var errNoCapability = errors.New("exec: no capability bound")

// bindCapability constructs the "__agentws_capability" global object the
// embedded VFS shims forward to (spec.md §4.6). Every method is
// synchronous and total: errors surface as thrown JS exceptions, since the
// shims never expect a callback-shaped API.
func bindCapability(vm *goja.Runtime, cap Capability) error {
	if cap == nil {
		cap = noopCapability{}
	}

	obj := vm.NewObject()

	mustSet(obj, "readFile", func(call goja.FunctionCall) goja.Value {
		path := call.Argument(0).String()

		data, err := cap.ReadFile(path)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}

		return vm.ToValue(string(data))
	})

	mustSet(obj, "writeFile", func(call goja.FunctionCall) goja.Value {
		path := call.Argument(0).String()
		data := call.Argument(1).String()

		if err := cap.WriteFile(path, []byte(data)); err != nil {
			panic(vm.ToValue(err.Error()))
		}

		return goja.Undefined()
	})

	mustSet(obj, "readdir", func(call goja.FunctionCall) goja.Value {
		path := call.Argument(0).String()

		names, err := cap.Readdir(path)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}

		return vm.ToValue(names)
	})

	mustSet(obj, "stat", func(call goja.FunctionCall) goja.Value {
		path := call.Argument(0).String()

		typ, size, exists := cap.Stat(path)
		if !exists {
			return goja.Null()
		}

		result := vm.NewObject()
		_ = result.Set("type", typ)
		_ = result.Set("size", size)

		return result
	})

	mustSet(obj, "mkdir", func(call goja.FunctionCall) goja.Value {
		path := call.Argument(0).String()
		recursive := call.Argument(1).ToBoolean()

		if err := cap.Mkdir(path, recursive); err != nil {
			panic(vm.ToValue(err.Error()))
		}

		return goja.Undefined()
	})

	mustSet(obj, "deletePath", func(call goja.FunctionCall) goja.Value {
		path := call.Argument(0).String()

		if err := cap.DeletePath(path); err != nil {
			panic(vm.ToValue(err.Error()))
		}

		return goja.Undefined()
	})

	return vm.Set("__agentws_capability", obj)
}

func mustSet(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	if err := obj.Set(name, fn); err != nil {
		panic(err)
	}
}

// noopCapability is used when Request.Cap is nil; every operation reports
// nonexistent/denied, matching the reserved-namespace-everywhere behavior
// an unconfigured sandbox should default to.
type noopCapability struct{}

func (noopCapability) ReadFile(string) ([]byte, error)   { return nil, errNoCapability }
func (noopCapability) WriteFile(string, []byte) error    { return errNoCapability }
func (noopCapability) Readdir(string) ([]string, error)  { return nil, errNoCapability }
func (noopCapability) Stat(string) (string, int64, bool) { return "", 0, false }
func (noopCapability) Mkdir(string, bool) error          { return errNoCapability }
func (noopCapability) DeletePath(string) error           { return errNoCapability }
