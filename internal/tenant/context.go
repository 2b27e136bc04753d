package tenant

import (
	"context"
	"net/http"
)

// Info identifies the tenant a request is scoped to. In single-tenant
// deployments Schema is empty and Acquire is a no-op beyond checking it
// out of the pool.
type Info struct {
	Schema string
}

type infoCtxKey int

const infoKey infoCtxKey = iota

// NewContext stores info in ctx.
func NewContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext retrieves the Info stored by NewContext, or the zero value
// (single-tenant, no schema) if none was stored.
func FromContext(ctx context.Context) Info {
	info, _ := ctx.Value(infoKey).(Info)
	return info
}

// Middleware resolves the tenant for a request from the X-Tenant-Schema
// header, falling back to defaultSchema when the header is absent; the
// header is honored on every request that carries it, and no setting turns
// that override off. It stores the result in the
// request context for downstream handlers, generalizing
// core/pkg/tenant/middleware.go's header-driven resolution without its
// database-backed slug lookup, since Brokkr's tenant schema is a single
// broker-wide configuration value in the common case (spec §6: "the
// broker selects the schema at startup via configuration") rather than a
// per-request slug lookup against a tenants table.
func Middleware(defaultSchema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			schema := defaultSchema
			if override := r.Header.Get("X-Tenant-Schema"); override != "" {
				schema = override
			}
			ctx := NewContext(r.Context(), Info{Schema: schema})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
