/*
middleware.go - Tenant and actor context extraction

PURPOSE:
  Every /api route runs behind RequireTenant: the X-Tenant-ID header
  scopes all reads and writes, and X-Actor-ID attributes audit entries.
  A request without a tenant is rejected before any handler runs.

  The optional X-Actor-Role header feeds the capability check for
  privileged operations (reversals, status administration). Roles are
  advisory input from the gateway that terminated authentication; this
  service does not verify identity itself.

SEE ALSO:
  - capability.go: Role to capability mapping
  - server.go: Where the middleware is mounted
*/
package api

import (
	"context"
	"net/http"

	"github.com/warp/inventory-engine/statemachine"
)

type contextKey string

const (
	ctxKeyTenant contextKey = "tenant"
	ctxKeyActor  contextKey = "actor"
	ctxKeyRole   contextKey = "role"
)

const (
	headerTenant = "X-Tenant-ID"
	headerActor  = "X-Actor-ID"
	headerRole   = "X-Actor-Role"
)

// RequireTenant rejects requests without an X-Tenant-ID header and
// stashes tenant, actor and role in the request context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get(headerTenant)
		if tenant == "" {
			writeError(w, http.StatusBadRequest, "Missing "+headerTenant+" header", nil)
			return
		}
		actor := r.Header.Get(headerActor)
		if actor == "" {
			actor = "anonymous"
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, ctxKeyTenant, statemachine.TenantID(tenant))
		ctx = context.WithValue(ctx, ctxKeyActor, actor)
		ctx = context.WithValue(ctx, ctxKeyRole, r.Header.Get(headerRole))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFrom(ctx context.Context) statemachine.TenantID {
	t, _ := ctx.Value(ctxKeyTenant).(statemachine.TenantID)
	return t
}

func actorFrom(ctx context.Context) string {
	a, _ := ctx.Value(ctxKeyActor).(string)
	return a
}

func roleFrom(ctx context.Context) string {
	r, _ := ctx.Value(ctxKeyRole).(string)
	return r
}
