package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"switchboard/internal/engine/vault"
	"switchboard/internal/platform/models"
)

type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// PutCredential inserts or replaces the record for (tenant, provider).
func (r *CredentialRepository) PutCredential(ctx context.Context, c *models.CredentialRecord) error {
	secrets, err := json.Marshal(c.Secrets)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO credentials (id, tenant_id, provider, secrets, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			secrets = excluded.secrets,
			updated_at = excluded.updated_at
	`, c.ID, c.TenantID, c.Provider, string(secrets), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *CredentialRepository) GetCredential(ctx context.Context, tenantID, provider string) (*models.CredentialRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, provider, secrets, created_at, updated_at
		FROM credentials WHERE tenant_id = ? AND provider = ?
	`, tenantID, provider)

	c, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *CredentialRepository) ListCredentials(ctx context.Context, tenantID string) ([]*models.CredentialRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, provider, secrets, created_at, updated_at
		FROM credentials WHERE tenant_id = ? ORDER BY provider
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.CredentialRecord
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (r *CredentialRepository) DeleteCredential(ctx context.Context, tenantID, provider string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE tenant_id = ? AND provider = ?`, tenantID, provider)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanCredential(s scanner) (*models.CredentialRecord, error) {
	var c models.CredentialRecord
	var secrets string
	if err := s.Scan(&c.ID, &c.TenantID, &c.Provider, &secrets, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Secrets = map[string]vault.Sealed{}
	if err := json.Unmarshal([]byte(secrets), &c.Secrets); err != nil {
		return nil, err
	}
	return &c, nil
}
