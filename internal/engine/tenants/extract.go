package tenants

import (
	"context"
	"encoding/json"

	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

// eventIdentity covers the shapes providers use to carry the tenant or
// agent on an event payload.
type eventIdentity struct {
	Metadata struct {
		TenantID string `json:"tenant_id"`
	} `json:"metadata"`
	AgentID string `json:"agent_id"`
	Call    struct {
		AgentID  string `json:"agent_id"`
		Metadata struct {
			TenantID string `json:"tenant_id"`
		} `json:"metadata"`
	} `json:"call"`
	Chat struct {
		AgentID  string `json:"agent_id"`
		Metadata struct {
			TenantID string `json:"tenant_id"`
		} `json:"metadata"`
	} `json:"chat"`
}

// ResolveEvent finds the tenant an event payload belongs to. Explicit
// tenant ids are tried first and still validated against the directory,
// then the agent id is resolved.
func (r *Resolver) ResolveEvent(ctx context.Context, payload json.RawMessage) (*models.Tenant, error) {
	var id eventIdentity
	if err := json.Unmarshal(payload, &id); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "event payload is not a JSON object", err)
	}

	for _, tenantID := range []string{id.Metadata.TenantID, id.Call.Metadata.TenantID, id.Chat.Metadata.TenantID} {
		if tenantID != "" {
			return r.ResolveTenant(ctx, tenantID)
		}
	}
	for _, agentID := range []string{id.AgentID, id.Call.AgentID, id.Chat.AgentID} {
		if agentID != "" {
			return r.ResolveAgent(ctx, agentID)
		}
	}

	return nil, apperrors.New(apperrors.KindTenantNotFound, "event payload carries no tenant or agent identifier")
}
