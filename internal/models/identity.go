package models

import "time"

// Reserved tenant identifiers. SharedTenant owns the cross-tenant task scope;
// SystemTenant is the identity used for scheduler-initiated invocations.
const (
	SharedTenant = "public"
	SystemTenant = "system"
)

// IsReservedTenant reports whether t is one of the reserved scopes that never
// participate in the trigger scan and cannot be written through tenant-scoped calls.
func IsReservedTenant(t string) bool {
	return t == SharedTenant || t == SystemTenant
}

// Caller identifies who initiated an invocation. The authentication collaborator
// supplies it for inbound calls; the scheduler synthesizes a system caller.
type Caller struct {
	UserID string `json:"userId"`
	Tenant string `json:"tenant"`
}

// System reports whether the caller may act across tenant boundaries.
func (c Caller) System() bool {
	return c.Tenant == SystemTenant
}

// SystemCaller returns the fallback identity for scheduler-driven firings.
func SystemCaller(userID string) Caller {
	if userID == "" {
		userID = "system"
	}
	return Caller{UserID: userID, Tenant: SystemTenant}
}

// InvocationResult is the structured envelope every invoke returns: either a
// success with the task's return value, or an error with a stable kind.
type InvocationResult struct {
	Success    bool        `json:"success"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  string      `json:"errorKind,omitempty"`
	TaskName   string      `json:"taskName"`
	ExecutedAt time.Time   `json:"executedAt"`
}
