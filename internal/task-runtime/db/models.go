package db

import (
	"time"

	"gorm.io/gorm"
)

// TaskDefinition is a named, storable unit of server-side logic owned by a
// tenant scope. The shared scope is modeled as the reserved tenant "public".
type TaskDefinition struct {
	gorm.Model
	TaskID               string `json:"task_id" gorm:"index:idx_task_scope,unique"`
	TenantID             string `json:"tenant_id" gorm:"index:idx_task_scope,unique"`
	Description          string `json:"description"`
	SourceCode           string `json:"source_code,omitempty"`
	RequiredCapabilities string `json:"required_capabilities" gorm:"type:json"` // JSON array of capability names
	Runtime              string `json:"runtime" gorm:"default:javascript"`      // executor kind, see executors.Registry
	ParamsSchema         string `json:"params_schema,omitempty" gorm:"type:json"`
	Enabled              bool   `json:"enabled" gorm:"default:true"`
	OwnerID              string `json:"owner_id"` // empty for shared-scope tasks
}

// Trigger associates a schedule or event condition with a target task.
// Only kind "cron" is evaluated by the scheduler today; the other kinds are
// stored for the routing layers that fire them.
type Trigger struct {
	gorm.Model
	TriggerID    string     `json:"trigger_id" gorm:"index:idx_trigger_scope,unique"`
	TenantID     string     `json:"tenant_id" gorm:"index:idx_trigger_scope,unique"`
	TargetTaskID string     `json:"target_task_id"` // may be "public/<taskId>" for a shared task
	Kind         string     `json:"kind" gorm:"index"`
	Config       string     `json:"config" gorm:"type:json"`        // kind-specific, cron: {"schedule":..., "timezone":...}
	StaticParams string     `json:"static_params" gorm:"type:json"` // merged into each firing
	Enabled      bool       `json:"enabled" gorm:"default:true"`
	OwnerID      string     `json:"owner_id"`
	LastFiredAt  *time.Time `json:"last_fired_at,omitempty" gorm:"index"` // firing watermark, claimed per window
}

// Trigger kinds.
const (
	TriggerKindCron     = "cron"
	TriggerKindOnCreate = "on-create"
	TriggerKindOnUpdate = "on-update"
	TriggerKindOnDelete = "on-delete"
	TriggerKindOnWrite  = "on-write"
	TriggerKindHTTP     = "http"
)

// KnownTriggerKind reports whether kind is one of the accepted trigger kinds.
func KnownTriggerKind(kind string) bool {
	switch kind {
	case TriggerKindCron, TriggerKindOnCreate, TriggerKindOnUpdate,
		TriggerKindOnDelete, TriggerKindOnWrite, TriggerKindHTTP:
		return true
	}
	return false
}

// CronConfig is the decoded Config of a cron trigger.
type CronConfig struct {
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone,omitempty"`
}

// Document is one record of the tenant-isolated generic store backing the
// execution context's data handle.
type Document struct {
	gorm.Model
	TenantID   string `json:"tenant_id" gorm:"index:idx_doc_key,unique"`
	Collection string `json:"collection" gorm:"index:idx_doc_key,unique"`
	DocID      string `json:"doc_id" gorm:"index:idx_doc_key,unique"`
	Data       string `json:"data" gorm:"type:json"`
}
