package repositories

import (
	"context"
	"database/sql"

	"switchboard/internal/platform/models"
)

// TenantRepository reads the tenant/agent directory. Writes only exist for
// seeding and tests; the directory is owned by tenant configuration.
type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM tenants WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TenantRepository) GetTenantByAgent(ctx context.Context, agentID string) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT t.id, t.name, t.created_at
		FROM agents a JOIN tenants t ON t.id = a.tenant_id
		WHERE a.agent_id = ?
	`, agentID).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TenantRepository) UpsertTenant(ctx context.Context, t *models.Tenant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`, t.ID, t.Name, t.CreatedAt)
	return err
}

func (r *TenantRepository) UpsertAgent(ctx context.Context, a *models.Agent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, tenant_id) VALUES (?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET tenant_id = excluded.tenant_id
	`, a.AgentID, a.TenantID)
	return err
}
