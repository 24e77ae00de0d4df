// Package runtime ties resolution, context building, and execution together:
// it is the single path every invocation takes, whether it arrives over HTTP,
// from the trigger scheduler, or from another task composing it.
package runtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"task-runtime-service/internal/models"
	"task-runtime-service/internal/task-runtime/events"
	"task-runtime-service/internal/task-runtime/executors"
	"task-runtime-service/internal/task-runtime/kafka"
	"task-runtime-service/internal/task-runtime/sandbox"
	"task-runtime-service/internal/task-runtime/store"
	"task-runtime-service/internal/task-runtime/taskerr"
	"task-runtime-service/pkg/validation"
)

// DefaultMaxDepth bounds recursive task composition.
const DefaultMaxDepth = 8

// sharedPrefix lets a caller (typically a trigger) target a shared-scope task
// explicitly, bypassing tenant-scope shadowing.
const sharedPrefix = models.SharedTenant + "/"

// Runtime resolves and executes tasks on behalf of a tenant.
type Runtime struct {
	Tasks     *store.TaskStore
	Documents *store.DocumentStore
	Registry  *executors.Registry
	Publisher *kafka.RunEventPublisher
	MaxDepth  int
}

func New(tasks *store.TaskStore, documents *store.DocumentStore, registry *executors.Registry, publisher *kafka.RunEventPublisher) *Runtime {
	return &Runtime{
		Tasks:     tasks,
		Documents: documents,
		Registry:  registry,
		Publisher: publisher,
		MaxDepth:  DefaultMaxDepth,
	}
}

// Invoke runs taskID in the given tenant on behalf of caller and returns the
// structured envelope. The tenant guard is enforced before resolution; every
// failure is folded into the envelope with a stable kind.
func (r *Runtime) Invoke(ctx context.Context, caller models.Caller, tenant, taskID string, params map[string]interface{}, source string) models.InvocationResult {
	executedAt := time.Now().UTC()
	result, err := r.invoke(ctx, caller, tenant, taskID, params, 0)
	envelope := models.InvocationResult{
		TaskName:   taskID,
		ExecutedAt: executedAt,
	}
	if err != nil {
		envelope.Success = false
		envelope.Error = taskerr.Message(err)
		envelope.ErrorKind = string(taskerr.KindOf(err))
	} else {
		envelope.Success = true
		envelope.Result = result
	}
	r.publishRun(ctx, caller, tenant, taskID, source, envelope, executedAt)
	return envelope
}

func (r *Runtime) publishRun(ctx context.Context, caller models.Caller, tenant, taskID, source string, envelope models.InvocationResult, executedAt time.Time) {
	if r.Publisher == nil {
		return
	}
	payload := events.TaskRunPayload{
		InvocationID: uuid.NewString(),
		Tenant:       tenant,
		TaskID:       taskID,
		CallerUserID: caller.UserID,
		Source:       source,
		Success:      envelope.Success,
		ErrorKind:    envelope.ErrorKind,
		Error:        envelope.Error,
		DurationMS:   time.Since(executedAt).Milliseconds(),
		ExecutedAt:   executedAt,
	}
	go r.Publisher.Publish(context.WithoutCancel(ctx), payload)
}

// invoke is the depth-aware path shared by top-level calls and composition.
func (r *Runtime) invoke(ctx context.Context, caller models.Caller, tenant, taskID string, params map[string]interface{}, depth int) (interface{}, error) {
	if caller.Tenant != tenant && !caller.System() {
		return nil, taskerr.Forbidden("caller tenant %q may not invoke tasks in tenant %q", caller.Tenant, tenant)
	}
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if depth > maxDepth {
		return nil, taskerr.Execution("task call depth exceeded %d, aborting (possible composition cycle)", maxDepth)
	}

	resolveTenant, bareID := tenant, taskID
	if strings.HasPrefix(taskID, sharedPrefix) {
		resolveTenant = models.SharedTenant
		bareID = strings.TrimPrefix(taskID, sharedPrefix)
	}
	task, err := r.Tasks.Resolve(resolveTenant, bareID)
	if err != nil {
		return nil, err
	}
	if !task.Enabled {
		return nil, taskerr.Execution("task %q is disabled", bareID)
	}
	if task.ParamsSchema != "" {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, taskerr.BadRequest("params are not JSON-encodable: %v", err)
		}
		if err := validation.ValidateJSONWithSchema(task.ParamsSchema, string(raw)); err != nil {
			return nil, taskerr.BadRequest("params rejected by task schema: %v", err)
		}
	}

	executor, err := r.Registry.Get(task.Runtime)
	if err != nil {
		return nil, err
	}

	execCtx := r.buildContext(ctx, caller, tenant, task.TaskID, depth)
	return executor.Execute(task, params, execCtx)
}

// buildContext assembles the ephemeral per-invocation bundle: a data handle
// locked to the target tenant, a composition handle that recurses through the
// same invoke path one level deeper, and a buffering log sink.
func (r *Runtime) buildContext(ctx context.Context, caller models.Caller, tenant, taskID string, depth int) *sandbox.ExecutionContext {
	return &sandbox.ExecutionContext{
		Caller: caller,
		Tenant: tenant,
		Data:   &dataHandle{docs: r.Documents, tenant: tenant},
		Tasks:  &taskInvoker{ctx: ctx, runtime: r, caller: caller, tenant: tenant, depth: depth},
		Logs:   sandbox.NewLogSink(tenant, taskID),
		Depth:  depth,
	}
}

// dataHandle is the thin tenant-locked pass-through to the document store.
type dataHandle struct {
	docs   *store.DocumentStore
	tenant string
}

func (h *dataHandle) Get(collection, docID string) (*store.DocumentSnapshot, error) {
	return h.docs.Get(h.tenant, collection, docID)
}

func (h *dataHandle) List(collection string) ([]store.DocumentSnapshot, error) {
	return h.docs.List(h.tenant, collection)
}

func (h *dataHandle) Add(collection string, data map[string]interface{}) (string, error) {
	return h.docs.Add(h.tenant, collection, data)
}

func (h *dataHandle) Set(collection, docID string, data map[string]interface{}) error {
	return h.docs.Set(h.tenant, collection, docID, data)
}

func (h *dataHandle) Update(collection, docID string, partial map[string]interface{}) error {
	return h.docs.Update(h.tenant, collection, docID, partial)
}

func (h *dataHandle) Delete(collection, docID string) error {
	return h.docs.Delete(h.tenant, collection, docID)
}

func (h *dataHandle) Query(collection string, filters []store.QueryFilter) ([]store.DocumentSnapshot, error) {
	return h.docs.Query(h.tenant, collection, filters)
}

// taskInvoker recurses into the same resolve-then-execute path, one depth
// level down, keeping the original caller identity.
type taskInvoker struct {
	ctx     context.Context
	runtime *Runtime
	caller  models.Caller
	tenant  string
	depth   int
}

func (t *taskInvoker) Run(taskID string, params map[string]interface{}) (interface{}, error) {
	return t.runtime.invoke(t.ctx, t.caller, t.tenant, taskID, params, t.depth+1)
}
