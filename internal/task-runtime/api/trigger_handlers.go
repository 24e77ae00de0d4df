package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/services"
	"task-runtime-service/internal/task-runtime/store"
	"task-runtime-service/internal/task-runtime/taskerr"
)

type TriggerHandler struct {
	Store *store.TriggerStore
}

func NewTriggerHandler(triggerStore *store.TriggerStore) *TriggerHandler {
	return &TriggerHandler{Store: triggerStore}
}

type CreateTriggerRequest struct {
	TriggerID    string                 `json:"triggerId"`
	TargetTaskID string                 `json:"targetTaskId"`
	Kind         string                 `json:"kind"`
	Config       map[string]interface{} `json:"config"`
	StaticParams map[string]interface{} `json:"staticParams"`
	Enabled      *bool                  `json:"enabled"`
}

type UpdateTriggerRequest struct {
	TargetTaskID *string                 `json:"targetTaskId"`
	Config       *map[string]interface{} `json:"config"`
	StaticParams *map[string]interface{} `json:"staticParams"`
	Enabled      *bool                   `json:"enabled"`
}

func (h *TriggerHandler) ListTriggers(ctx context.Context, c *app.RequestContext) {
	triggers, err := h.Store.List(c.Param("tenant"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, triggers)
}

func (h *TriggerHandler) GetTrigger(ctx context.Context, c *app.RequestContext) {
	trigger, err := h.Store.Get(c.Param("tenant"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trigger)
}

func (h *TriggerHandler) CreateTrigger(ctx context.Context, c *app.RequestContext) {
	tenant := c.Param("tenant")
	var req CreateTriggerRequest
	if err := c.BindAndValidate(&req); err != nil {
		writeError(c, taskerr.BadRequest("invalid request payload: %v", err))
		return
	}
	if req.TriggerID == "" || req.TargetTaskID == "" {
		writeError(c, taskerr.BadRequest("triggerId and targetTaskId are required"))
		return
	}
	if !db.KnownTriggerKind(req.Kind) {
		writeError(c, taskerr.BadRequest("unknown trigger kind %q", req.Kind))
		return
	}
	if err := validateCronConfig(req.Kind, req.Config); err != nil {
		writeError(c, err)
		return
	}
	config, err := json.Marshal(req.Config)
	if err != nil {
		writeError(c, taskerr.BadRequest("config not encodable: %v", err))
		return
	}
	staticParams, err := json.Marshal(req.StaticParams)
	if err != nil {
		writeError(c, taskerr.BadRequest("staticParams not encodable: %v", err))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	trigger := db.Trigger{
		TriggerID:    req.TriggerID,
		TargetTaskID: req.TargetTaskID,
		Kind:         req.Kind,
		Config:       string(config),
		StaticParams: string(staticParams),
		Enabled:      enabled,
		OwnerID:      CallerFrom(c).UserID,
	}
	if err := h.Store.Create(tenant, &trigger); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trigger)
}

func (h *TriggerHandler) UpdateTrigger(ctx context.Context, c *app.RequestContext) {
	tenant := c.Param("tenant")
	triggerID := c.Param("id")
	var req UpdateTriggerRequest
	if err := c.BindAndValidate(&req); err != nil {
		writeError(c, taskerr.BadRequest("invalid request payload: %v", err))
		return
	}
	existing, err := h.Store.Get(tenant, triggerID)
	if err != nil {
		writeError(c, err)
		return
	}
	updates := map[string]interface{}{}
	if req.TargetTaskID != nil {
		updates["target_task_id"] = *req.TargetTaskID
	}
	if req.Config != nil {
		if err := validateCronConfig(existing.Kind, *req.Config); err != nil {
			writeError(c, err)
			return
		}
		config, err := json.Marshal(*req.Config)
		if err != nil {
			writeError(c, taskerr.BadRequest("config not encodable: %v", err))
			return
		}
		updates["config"] = string(config)
	}
	if req.StaticParams != nil {
		staticParams, err := json.Marshal(*req.StaticParams)
		if err != nil {
			writeError(c, taskerr.BadRequest("staticParams not encodable: %v", err))
			return
		}
		updates["static_params"] = string(staticParams)
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if len(updates) == 0 {
		writeError(c, taskerr.BadRequest("no update fields provided"))
		return
	}
	trigger, err := h.Store.Update(tenant, triggerID, updates)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trigger)
}

func (h *TriggerHandler) DeleteTrigger(ctx context.Context, c *app.RequestContext) {
	if err := h.Store.Delete(c.Param("tenant"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// validateCronConfig rejects cron triggers whose schedule would never fire.
// Other kinds keep their config opaque; the layers firing them validate it.
func validateCronConfig(kind string, config map[string]interface{}) error {
	if kind != db.TriggerKindCron {
		return nil
	}
	schedule, _ := config["schedule"].(string)
	if schedule == "" {
		return taskerr.BadRequest("cron trigger requires config.schedule")
	}
	timezone, _ := config["timezone"].(string)
	if _, err := services.ParseSchedule(schedule, timezone); err != nil {
		return taskerr.BadRequest("%v", err)
	}
	return nil
}
