package tenants

import (
	"sync"
	"time"

	"switchboard/internal/platform/models"
)

type cachedTenant struct {
	tenant   models.Tenant
	cachedAt time.Time
}

// tenantCache holds positive lookups only; an unknown key is always
// re-checked against the directory.
type tenantCache struct {
	store sync.Map // map[key]*cachedTenant
	ttl   time.Duration
	now   func() time.Time
}

func newTenantCache(ttl time.Duration) *tenantCache {
	return &tenantCache{ttl: ttl, now: time.Now}
}

func (c *tenantCache) get(key string) (*models.Tenant, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	val, ok := c.store.Load(key)
	if !ok {
		return nil, false
	}

	entry := val.(*cachedTenant)
	if c.now().Sub(entry.cachedAt) > c.ttl {
		c.store.Delete(key)
		return nil, false
	}

	t := entry.tenant
	return &t, true
}

func (c *tenantCache) set(key string, t *models.Tenant) {
	if c.ttl <= 0 {
		return
	}
	c.store.Store(key, &cachedTenant{tenant: *t, cachedAt: c.now()})
}
