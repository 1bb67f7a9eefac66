package exec

import "github.com/dop251/goja"

// bindProcess constructs the frozen process facade from spec.md §4.7:
// argv = [runtime, filename, ...argv], a frozen env map, and cwd()="/".
// There is no access to real environment variables, signals, or exit.
func bindProcess(vm *goja.Runtime, filename string, argv []string, env map[string]string) error {
	proc := vm.NewObject()

	fullArgv := append([]string{"agentws", filename}, argv...)
	if err := proc.Set("argv", fullArgv); err != nil {
		return err
	}

	envObj := vm.NewObject()
	for k, v := range env {
		if err := envObj.Set(k, v); err != nil {
			return err
		}
	}

	if err := proc.Set("env", envObj); err != nil {
		return err
	}

	if err := proc.Set("cwd", func(goja.FunctionCall) goja.Value {
		return vm.ToValue("/")
	}); err != nil {
		return err
	}

	if err := vm.Set("process", proc); err != nil {
		return err
	}

	return freeze(vm, proc)
}

// freeze uses Object.freeze from the guest's own global object so both the
// process facade and its env sub-object become immutable to guest code,
// without the host needing its own freeze implementation.
func freeze(vm *goja.Runtime, obj *goja.Object) error {
	objectGlobal := vm.GlobalObject().Get("Object")
	if objectGlobal == nil {
		return nil
	}

	freezeFn, ok := goja.AssertFunction(objectGlobal.ToObject(vm).Get("freeze"))
	if !ok {
		return nil
	}

	if envVal := obj.Get("env"); envVal != nil {
		if _, err := freezeFn(goja.Undefined(), envVal); err != nil {
			return err
		}
	}

	_, err := freezeFn(goja.Undefined(), obj)

	return err
}
