package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	apiContext "switchboard/internal/api/context"
	"switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

type TenantResolver interface {
	ResolveTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
}

// TenantMiddleware loads the tenant named by the token claims. Admin
// handlers only ever see this tenant.
type TenantMiddleware struct {
	resolver TenantResolver
}

func NewTenantMiddleware(resolver TenantResolver) *TenantMiddleware {
	return &TenantMiddleware{resolver: resolver}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := apiContext.ClaimsFrom(r.Context())
		if claims == nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}

		tenant, err := m.resolver.ResolveTenant(r.Context(), claims.TenantID)
		if err != nil {
			if errors.Is(err, errors.KindTenantNotFound) {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Tenant not found", nil)
				return
			}
			log.Ctx(r.Context()).Error().Err(err).Str("tenant_id", claims.TenantID).Msg("failed to load tenant")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load tenant", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, tenant)
		next(w, r.WithContext(ctx))
	}
}
