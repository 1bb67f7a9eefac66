package exec

import (
	"encoding/base64"
	"sort"

	"github.com/dop251/goja"
)

// blockDynamicCode overrides eval and the Function constructor with
// functions that always throw, per spec.md §4.7. Both are goja builtins present on every fresh runtime's global object; neither
// is otherwise reachable for deletion, so they are shadowed instead.
func blockDynamicCode(vm *goja.Runtime) error {
	blocked := func(goja.FunctionCall) goja.Value {
		panic(vm.ToValue("exec: dynamic code generation is disabled inside the sandbox"))
	}

	if err := vm.Set("eval", blocked); err != nil {
		return err
	}

	return vm.Set("Function", blocked)
}

// timerQueue collects setTimeout/setInterval callbacks scheduled during a
// run. The sandbox executes a script to completion synchronously (there is
// no host event loop), so timers are not truly asynchronous: every
// surviving callback fires once, in ascending delay order, immediately
// after the script body returns. This gives guest code the primitive
// spec.md §4.7 requires without pretending the sandbox has real concurrency.
type timerQueue struct {
	nextID  int
	pending map[int]*timerTask
}

type timerTask struct {
	delay float64
	fn    goja.Callable
	args  []goja.Value
}

func newTimerQueue() *timerQueue {
	return &timerQueue{pending: map[int]*timerTask{}}
}

func (q *timerQueue) schedule(fn goja.Callable, delay float64, args []goja.Value) int {
	q.nextID++
	q.pending[q.nextID] = &timerTask{delay: delay, fn: fn, args: args}

	return q.nextID
}

func (q *timerQueue) cancel(id int) {
	delete(q.pending, id)
}

// drain invokes every still-pending task once, in ascending delay order,
// and clears the queue. It stops and returns the first error a callback
// produces, matching how the main script body's own thrown errors surface.
func (q *timerQueue) drain() error {
	ids := make([]int, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		return q.pending[ids[i]].delay < q.pending[ids[j]].delay
	})

	tasks := make([]*timerTask, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, q.pending[id])
	}

	q.pending = map[int]*timerTask{}

	for _, task := range tasks {
		if _, err := task.fn(goja.Undefined(), task.args...); err != nil {
			return err
		}
	}

	return nil
}

// bindTimers installs setTimeout/setInterval/clearTimeout/clearInterval
// backed by q. setInterval is treated as a one-shot timer: without a real
// event loop there is no sandbox-native notion of "keep firing forever".
func bindTimers(vm *goja.Runtime, q *timerQueue) error {
	scheduleFn := func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.ToValue("exec: timer callback must be a function"))
		}

		delay := call.Argument(1).ToFloat()

		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = call.Arguments[2:]
		}

		return vm.ToValue(q.schedule(fn, delay, args))
	}

	clearFn := func(call goja.FunctionCall) goja.Value {
		q.cancel(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	}

	if err := vm.Set("setTimeout", scheduleFn); err != nil {
		return err
	}

	if err := vm.Set("setInterval", scheduleFn); err != nil {
		return err
	}

	if err := vm.Set("clearTimeout", clearFn); err != nil {
		return err
	}

	return vm.Set("clearInterval", clearFn)
}

// bindEncoding installs minimal TextEncoder/TextDecoder globals (UTF-8
// only, matching the common browser/Node subset) plus a Buffer global
// offering the base64/utf8 conversions guest code needs to interoperate
// with fs_read/fs_write's base64 encoding without any Node "buffer" module
// machinery.
func bindEncoding(vm *goja.Runtime) error {
	encoderProto := vm.NewObject()
	mustSet(encoderProto, "encode", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue([]byte(call.Argument(0).String()))
	})

	encoderCtor := func(goja.ConstructorCall) *goja.Object {
		return encoderProto
	}

	if err := vm.Set("TextEncoder", encoderCtor); err != nil {
		return err
	}

	decoderProto := vm.NewObject()
	mustSet(decoderProto, "decode", func(call goja.FunctionCall) goja.Value {
		data, ok := call.Argument(0).Export().([]byte)
		if !ok {
			return vm.ToValue("")
		}

		return vm.ToValue(string(data))
	})

	decoderCtor := func(goja.ConstructorCall) *goja.Object {
		return decoderProto
	}

	if err := vm.Set("TextDecoder", decoderCtor); err != nil {
		return err
	}

	bufferNS := vm.NewObject()
	mustSet(bufferNS, "from", func(call goja.FunctionCall) goja.Value {
		encoding := call.Argument(1).String()

		var data []byte

		switch encoding {
		case "base64":
			decoded, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
			if err != nil {
				panic(vm.ToValue(err.Error()))
			}

			data = decoded
		default:
			data = []byte(call.Argument(0).String())
		}

		return vm.ToValue(bytesToJSArray(data))
	})

	return vm.Set("Buffer", bufferNS)
}

// bytesToJSArray converts data into a plain JS-Array-shaped value (one with
// a working .length, unlike goja's ArrayBuffer mapping for []byte) so guest
// code can use the ordinary array surface on a decoded Buffer.
func bytesToJSArray(data []byte) []interface{} {
	out := make([]interface{}, len(data))
	for i, b := range data {
		out[i] = int64(b)
	}

	return out
}
