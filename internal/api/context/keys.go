package context

import (
	"context"

	"github.com/julienschmidt/httprouter"

	"switchboard/internal/platform/auth"
	"switchboard/internal/platform/models"
)

type Key string

const (
	Claims Key = "claims"
	Tenant Key = "tenant"
	Params Key = "params"
)

// ClaimsFrom returns the authenticated operator, or nil.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(Claims).(*auth.Claims)
	return claims
}

// TenantFrom returns the tenant loaded by the tenant middleware, or nil.
func TenantFrom(ctx context.Context) *models.Tenant {
	tenant, _ := ctx.Value(Tenant).(*models.Tenant)
	return tenant
}

func Param(ctx context.Context, name string) string {
	params, _ := ctx.Value(Params).(httprouter.Params)
	return params.ByName(name)
}
