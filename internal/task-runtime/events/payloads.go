package events

import "time"

// Invocation sources.
const (
	SourceAPI       = "api"
	SourceScheduler = "scheduler"
)

// TaskRunPayload is the best-effort run event published after every
// invocation. It is observability output, not durable run history.
type TaskRunPayload struct {
	InvocationID string    `json:"invocation_id"`
	Tenant       string    `json:"tenant"`
	TaskID       string    `json:"task_id"`
	CallerUserID string    `json:"caller_user_id"`
	Source       string    `json:"source"`
	Success      bool      `json:"success"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	ExecutedAt   time.Time `json:"executed_at"`
}
