package models

import "switchboard/internal/engine/vault"

// CredentialRecord holds one tenant's sealed secrets for one provider.
type CredentialRecord struct {
	ID        string                  `json:"id"`
	TenantID  string                  `json:"tenant_id"`
	Provider  string                  `json:"provider"`
	Secrets   map[string]vault.Sealed `json:"-"`
	CreatedAt int64                   `json:"created_at"`
	UpdatedAt int64                   `json:"updated_at"`
}

func (c *CredentialRecord) Fields() []string {
	fields := make([]string, 0, len(c.Secrets))
	for name := range c.Secrets {
		fields = append(fields, name)
	}
	return fields
}
