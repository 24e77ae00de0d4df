// Package executors maps a task definition's runtime kind to the unit that
// can run it. "javascript" routes arbitrary source through the sandbox;
// built-in kinds are plain Go and need no compilation step.
package executors

import (
	"encoding/json"

	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/sandbox"
	"task-runtime-service/internal/task-runtime/taskerr"
)

// Runtime kinds.
const (
	RuntimeJavaScript = "javascript"
	RuntimeEcho       = "echo"
)

// Executor runs one task definition with a fully built execution context.
type Executor interface {
	Execute(task *db.TaskDefinition, params map[string]interface{}, execCtx *sandbox.ExecutionContext) (interface{}, error)
}

// Registry resolves runtime kinds to executors. Initialized once at startup.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry registers the known executors around the given sandbox.
func NewRegistry(sb *sandbox.Sandbox) *Registry {
	r := &Registry{executors: map[string]Executor{}}
	r.Register(RuntimeJavaScript, &JavaScriptExecutor{Sandbox: sb})
	r.Register(RuntimeEcho, &EchoExecutor{})
	return r
}

func (r *Registry) Register(kind string, e Executor) {
	r.executors[kind] = e
}

// Get returns the executor for kind; an empty kind means javascript.
func (r *Registry) Get(kind string) (Executor, error) {
	if kind == "" {
		kind = RuntimeJavaScript
	}
	e, ok := r.executors[kind]
	if !ok {
		return nil, taskerr.InvalidTask("no executor registered for runtime kind %q", kind)
	}
	return e, nil
}

// JavaScriptExecutor compiles and runs the task's source in the sandbox.
type JavaScriptExecutor struct {
	Sandbox *sandbox.Sandbox
}

func (e *JavaScriptExecutor) Execute(task *db.TaskDefinition, params map[string]interface{}, execCtx *sandbox.ExecutionContext) (interface{}, error) {
	caps, err := decodeCapabilities(task.RequiredCapabilities)
	if err != nil {
		return nil, taskerr.InvalidTask("task %q has malformed requiredCapabilities: %v", task.TaskID, err)
	}
	return e.Sandbox.Execute(task.SourceCode, params, execCtx, caps)
}

// EchoExecutor returns its params unchanged. Useful for wiring checks and as
// the simplest built-in operation kind.
type EchoExecutor struct{}

func (e *EchoExecutor) Execute(task *db.TaskDefinition, params map[string]interface{}, execCtx *sandbox.ExecutionContext) (interface{}, error) {
	if execCtx != nil && execCtx.Logs != nil {
		execCtx.Logs.Log("echo task " + task.TaskID + " invoked")
	}
	return params, nil
}

func decodeCapabilities(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var caps []string
	if err := json.Unmarshal([]byte(raw), &caps); err != nil {
		return nil, err
	}
	return caps, nil
}
