package models

// Tenant is read from the directory owned by tenant configuration management.
type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

type Agent struct {
	AgentID  string `json:"agent_id"`
	TenantID string `json:"tenant_id"`
}
