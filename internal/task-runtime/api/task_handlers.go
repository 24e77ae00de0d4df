package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/events"
	"task-runtime-service/internal/task-runtime/runtime"
	"task-runtime-service/internal/task-runtime/store"
	"task-runtime-service/internal/task-runtime/taskerr"
)

type TaskHandler struct {
	Store   *store.TaskStore
	Runtime *runtime.Runtime
}

func NewTaskHandler(taskStore *store.TaskStore, rt *runtime.Runtime) *TaskHandler {
	return &TaskHandler{Store: taskStore, Runtime: rt}
}

type CreateTaskRequest struct {
	TaskID               string   `json:"taskId"`
	Description          string   `json:"description"`
	SourceCode           string   `json:"sourceCode"`
	RequiredCapabilities []string `json:"requiredCapabilities"`
	Runtime              string   `json:"runtime"`
	ParamsSchema         string   `json:"paramsSchema"`
	Enabled              *bool    `json:"enabled"`
}

type UpdateTaskRequest struct {
	Description          *string   `json:"description"`
	SourceCode           *string   `json:"sourceCode"`
	RequiredCapabilities *[]string `json:"requiredCapabilities"`
	ParamsSchema         *string   `json:"paramsSchema"`
	Enabled              *bool     `json:"enabled"`
}

type InvokeTaskRequest struct {
	Params map[string]interface{} `json:"params"`
}

func (h *TaskHandler) ListTasks(ctx context.Context, c *app.RequestContext) {
	tenant := c.Param("tenant")
	tasks, err := h.Store.List(tenant)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) GetTask(ctx context.Context, c *app.RequestContext) {
	task, err := h.Store.Get(c.Param("tenant"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(ctx context.Context, c *app.RequestContext) {
	tenant := c.Param("tenant")
	var req CreateTaskRequest
	if err := c.BindAndValidate(&req); err != nil {
		writeError(c, taskerr.BadRequest("invalid request payload: %v", err))
		return
	}
	if req.TaskID == "" {
		writeError(c, taskerr.BadRequest("taskId is required"))
		return
	}
	caps, err := json.Marshal(req.RequiredCapabilities)
	if err != nil {
		writeError(c, taskerr.BadRequest("requiredCapabilities not encodable: %v", err))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	task := db.TaskDefinition{
		TaskID:               req.TaskID,
		Description:          req.Description,
		SourceCode:           req.SourceCode,
		RequiredCapabilities: string(caps),
		Runtime:              req.Runtime,
		ParamsSchema:         req.ParamsSchema,
		Enabled:              enabled,
		OwnerID:              CallerFrom(c).UserID,
	}
	if err := h.Store.Create(tenant, &task); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(ctx context.Context, c *app.RequestContext) {
	tenant := c.Param("tenant")
	taskID := c.Param("id")
	var req UpdateTaskRequest
	if err := c.BindAndValidate(&req); err != nil {
		writeError(c, taskerr.BadRequest("invalid request payload: %v", err))
		return
	}
	updates := map[string]interface{}{}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.SourceCode != nil {
		updates["source_code"] = *req.SourceCode
	}
	if req.RequiredCapabilities != nil {
		caps, err := json.Marshal(*req.RequiredCapabilities)
		if err != nil {
			writeError(c, taskerr.BadRequest("requiredCapabilities not encodable: %v", err))
			return
		}
		updates["required_capabilities"] = string(caps)
	}
	if req.ParamsSchema != nil {
		updates["params_schema"] = *req.ParamsSchema
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if len(updates) == 0 {
		writeError(c, taskerr.BadRequest("no update fields provided"))
		return
	}
	task, err := h.Store.Update(tenant, taskID, updates)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(ctx context.Context, c *app.RequestContext) {
	if err := h.Store.Delete(c.Param("tenant"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// InvokeTask runs the task and always answers with the structured envelope.
// Resolution and authorization failures keep their HTTP status; execution
// phase failures travel inside the envelope.
func (h *TaskHandler) InvokeTask(ctx context.Context, c *app.RequestContext) {
	tenant := c.Param("tenant")
	taskID := c.Param("id")
	var req InvokeTaskRequest
	if len(c.Request.Body()) > 0 {
		if err := c.BindAndValidate(&req); err != nil {
			writeError(c, taskerr.BadRequest("invalid request payload: %v", err))
			return
		}
	}
	if req.Params == nil {
		req.Params = map[string]interface{}{}
	}

	result := h.Runtime.Invoke(ctx, CallerFrom(c), tenant, taskID, req.Params, events.SourceAPI)
	status := http.StatusOK
	switch taskerr.Kind(result.ErrorKind) {
	case taskerr.KindNotFound:
		status = http.StatusNotFound
	case taskerr.KindForbidden:
		status = http.StatusForbidden
	case taskerr.KindBadRequest:
		status = http.StatusBadRequest
	}
	c.JSON(status, result)
}
