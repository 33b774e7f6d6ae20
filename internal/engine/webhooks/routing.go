package webhooks

import (
	"context"
	"encoding/json"

	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

type TenantResolver interface {
	ResolveAgent(ctx context.Context, agentID string) (*models.Tenant, error)
	ResolveEvent(ctx context.Context, payload json.RawMessage) (*models.Tenant, error)
}

type Lookup interface {
	GetByFunction(ctx context.Context, tenantID, functionName string) (*models.Registration, error)
	GetByEvent(ctx context.Context, tenantID, eventType string) ([]*models.Registration, error)
}

// Router resolves the tenant of an inbound call or event and the
// registrations it routes to.
type Router struct {
	tenants TenantResolver
	lookup  Lookup
}

func NewRouter(tenants TenantResolver, lookup Lookup) *Router {
	return &Router{tenants: tenants, lookup: lookup}
}

func (r *Router) Function(ctx context.Context, agentID, functionName string) (*models.Tenant, *models.Registration, error) {
	tenant, err := r.tenants.ResolveAgent(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}

	reg, err := r.lookup.GetByFunction(ctx, tenant.ID, functionName)
	if err != nil {
		return tenant, nil, apperrors.Wrap(apperrors.KindInternal, "registration lookup failed", err)
	}
	if reg == nil {
		return tenant, nil, apperrors.New(apperrors.KindNotConfigured, "no workflow is configured for function "+functionName)
	}
	return tenant, reg, nil
}

func (r *Router) Event(ctx context.Context, eventType string, payload json.RawMessage) (*models.Tenant, []*models.Registration, error) {
	tenant, err := r.tenants.ResolveEvent(ctx, payload)
	if err != nil {
		return nil, nil, err
	}

	regs, err := r.lookup.GetByEvent(ctx, tenant.ID, eventType)
	if err != nil {
		return tenant, nil, apperrors.Wrap(apperrors.KindInternal, "registration lookup failed", err)
	}
	return tenant, regs, nil
}
