package api

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"task-runtime-service/internal/models"
	"task-runtime-service/internal/task-runtime/taskerr"
)

const callerContextKey = "caller"

// IdentityMiddleware extracts the caller identity supplied by the
// authentication collaborator. The runtime trusts these headers; requests
// without them are rejected before any tenant resolution happens.
func IdentityMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		userID := c.Request.Header.Get("X-Caller-Id")
		tenant := c.Request.Header.Get("X-Caller-Tenant")
		if userID == "" || tenant == "" {
			writeError(c, taskerr.Unauthorized("missing X-Caller-Id / X-Caller-Tenant identity headers"))
			c.Abort()
			return
		}
		c.Set(callerContextKey, models.Caller{UserID: userID, Tenant: tenant})
		c.Next(ctx)
	}
}

// TenantGuard rejects callers whose tenant does not match the path tenant.
// System callers may act on any tenant (the scheduler and provisioning glue
// run as system).
func TenantGuard() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		caller := CallerFrom(c)
		tenant := c.Param("tenant")
		if caller.Tenant != tenant && !caller.System() {
			writeError(c, taskerr.Forbidden("caller tenant %q does not match tenant %q", caller.Tenant, tenant))
			c.Abort()
			return
		}
		if models.IsReservedTenant(tenant) && !caller.System() {
			writeError(c, taskerr.Forbidden("tenant %q is reserved", tenant))
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}

// CallerFrom returns the identity set by IdentityMiddleware.
func CallerFrom(c *app.RequestContext) models.Caller {
	if v, ok := c.Get(callerContextKey); ok {
		if caller, ok := v.(models.Caller); ok {
			return caller
		}
	}
	return models.Caller{}
}
