package tenants

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/metrics"
	"switchboard/internal/platform/models"
)

// Directory is the read-only tenant/agent directory. Both lookups return
// nil, nil when the key is unknown.
type Directory interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByAgent(ctx context.Context, agentID string) (*models.Tenant, error)
}

type Resolver struct {
	dir     Directory
	cache   *tenantCache
	group   singleflight.Group
	metrics *metrics.Metrics
}

func NewResolver(dir Directory, ttl time.Duration, m *metrics.Metrics) *Resolver {
	return &Resolver{dir: dir, cache: newTenantCache(ttl), metrics: m}
}

// ResolveAgent maps an agent identifier to its tenant.
func (r *Resolver) ResolveAgent(ctx context.Context, agentID string) (*models.Tenant, error) {
	return r.resolve(ctx, "agent:"+agentID, agentID, r.dir.GetTenantByAgent)
}

// ResolveTenant confirms a tenant id exists in the directory.
func (r *Resolver) ResolveTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	return r.resolve(ctx, "tenant:"+tenantID, tenantID, r.dir.GetTenant)
}

func (r *Resolver) resolve(ctx context.Context, key, id string, lookup func(context.Context, string) (*models.Tenant, error)) (*models.Tenant, error) {
	if id == "" {
		return nil, apperrors.New(apperrors.KindTenantNotFound, "tenant could not be resolved")
	}
	if t, ok := r.cache.get(key); ok {
		r.metrics.ObserveTenantLookup("hit")
		return t, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		t, err := lookup(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "tenant directory lookup failed", err)
		}
		if t == nil {
			r.metrics.ObserveTenantLookup("not_found")
			return nil, apperrors.New(apperrors.KindTenantNotFound, "tenant could not be resolved")
		}
		r.metrics.ObserveTenantLookup("miss")
		r.cache.set(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}

	t := *v.(*models.Tenant)
	return &t, nil
}
