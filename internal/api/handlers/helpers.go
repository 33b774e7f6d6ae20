package handlers

import (
	"encoding/json"
	"net/http"

	apiContext "switchboard/internal/api/context"
	"switchboard/internal/engine/webhooks"
	"switchboard/internal/platform/audit"
	"switchboard/internal/platform/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// relay writes a downstream reply without touching status or body.
func relay(w http.ResponseWriter, resp *webhooks.Response) {
	ct := resp.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func param(r *http.Request, name string) string {
	return apiContext.Param(r.Context(), name)
}

// tenantOf is only valid behind the tenant middleware.
func tenantOf(r *http.Request) *models.Tenant {
	return apiContext.TenantFrom(r.Context())
}

// auditEntry fills the actor fields of an audit record from the request.
func auditEntry(r *http.Request, action, resourceType, resourceID string, changes map[string]interface{}) *audit.AuditLog {
	entry := &audit.AuditLog{
		TenantID:     tenantOf(r).ID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
		IPAddress:    r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}
	if claims := apiContext.ClaimsFrom(r.Context()); claims != nil {
		entry.UserID = claims.UserID
	}
	return entry
}
