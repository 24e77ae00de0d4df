// Package sandbox compiles task source into a callable unit and runs it with
// only the capabilities the task declared. The host environment is never
// ambient: everything a task can touch arrives through its parameter list.
package sandbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"task-runtime-service/internal/task-runtime/capabilities"
	"task-runtime-service/internal/task-runtime/taskerr"
)

// DefaultTimeout is the wall-clock budget of a single invocation.
const DefaultTimeout = 30 * time.Second

// ExportConvention is the authoring contract named in invalid-task errors.
const ExportConvention = "task source must assign a handler function to module.exports"

type interruptReason string

const reasonTimeout interruptReason = "timeout"

// Sandbox executes task source under a capability allowlist and a hard
// wall-clock timeout. A fresh JS engine is created per invocation, so
// concurrent invocations share nothing.
type Sandbox struct {
	Catalog *capabilities.Catalog
	Timeout time.Duration
}

func New(catalog *capabilities.Catalog) *Sandbox {
	return &Sandbox{Catalog: catalog, Timeout: DefaultTimeout}
}

// Execute compiles source, binds the declared capabilities positionally after
// (params, context), and invokes the exported handler. Compile failures and a
// missing export yield invalid_task; thrown errors yield execution_error with
// the thrown message; exceeding the timeout interrupts the engine and yields
// timeout.
func (s *Sandbox) Execute(source string, params map[string]interface{}, execCtx *ExecutionContext, requiredCapabilities []string) (interface{}, error) {
	if execCtx == nil {
		execCtx = &ExecutionContext{Logs: NewLogSink("", "")}
	}
	handles := s.Catalog.BindDeclared(requiredCapabilities, func(msg string) {
		if execCtx != nil && execCtx.Logs != nil {
			execCtx.Logs.Warn(msg)
		}
	})

	prog, err := goja.Compile("task.js", source, false)
	if err != nil {
		return nil, taskerr.InvalidTask("task source failed to compile: %v", err)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = vm.Set("module", module)
	_ = vm.Set("exports", exports)

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(reasonTimeout)
	})
	defer timer.Stop()

	if _, err := vm.RunProgram(prog); err != nil {
		if isTimeoutInterrupt(err) {
			return nil, taskerr.Timeout("task execution exceeded %s", timeout)
		}
		return nil, taskerr.InvalidTask("task source threw during evaluation: %s", thrownMessage(err))
	}

	handler, ok := goja.AssertFunction(module.Get("exports"))
	if !ok {
		return nil, taskerr.InvalidTask("%s", ExportConvention)
	}

	args := make([]goja.Value, 0, 2+len(handles))
	args = append(args, vm.ToValue(params), contextValue(vm, execCtx))
	for _, h := range handles {
		args = append(args, vm.ToValue(map[string]interface{}(h)))
	}

	value, err := handler(goja.Undefined(), args...)
	if err != nil {
		if isTimeoutInterrupt(err) {
			return nil, taskerr.Timeout("task execution exceeded %s", timeout)
		}
		return nil, taskerr.Execution("%s", thrownMessage(err))
	}

	return settle(value, timeout)
}

// settle unwraps a returned promise. Host calls are synchronous in this
// runtime, so by the time the handler returns, any async handler's promise has
// either settled or never will.
func settle(value goja.Value, timeout time.Duration) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	exported := value.Export()
	if p, ok := exported.(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result().Export(), nil
		case goja.PromiseStateRejected:
			return nil, taskerr.Execution("%s", promiseMessage(p.Result()))
		default:
			return nil, taskerr.Execution("task returned a promise that never settled")
		}
	}
	return exported, nil
}

func isTimeoutInterrupt(err error) bool {
	var interrupted *goja.InterruptedError
	if !errors.As(err, &interrupted) {
		return false
	}
	reason, ok := interrupted.Value().(interruptReason)
	return ok && reason == reasonTimeout
}

// thrownMessage preserves the message of a thrown JS error, unwrapping the
// engine's exception framing.
func thrownMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return promiseMessage(ex.Value())
	}
	return err.Error()
}

func promiseMessage(v goja.Value) string {
	if v == nil {
		return "unknown error"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) && !goja.IsNull(msg) {
			return msg.String()
		}
	}
	return fmt.Sprintf("%v", v)
}
