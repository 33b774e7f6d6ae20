package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"switchboard/internal/engine/proxy"
	"switchboard/internal/pkg/errors"
	"switchboard/internal/platform/audit"
)

type CredentialHandler struct {
	credentials *proxy.Credentials
	audit       *audit.Logger
}

func NewCredentialHandler(credentials *proxy.Credentials, auditLogger *audit.Logger) *CredentialHandler {
	return &CredentialHandler{credentials: credentials, audit: auditLogger}
}

// Put replaces the tenant's credential for a provider. Body:
// {"fields": {"api_key": "..."}}.
func (h *CredentialHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.Write(w, errors.New(errors.KindInvalidInput, "Invalid request body"))
		return
	}

	provider := param(r, "provider")
	masked, err := h.credentials.Put(r.Context(), tenantOf(r).ID, provider, req.Fields)
	if err != nil {
		errors.Write(w, err)
		return
	}

	names := make([]string, 0, len(req.Fields))
	for name := range req.Fields {
		names = append(names, name)
	}
	h.record(r, "credential.updated", provider, map[string]interface{}{"fields": names})
	writeJSON(w, http.StatusOK, masked)
}

func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.credentials.List(r.Context(), tenantOf(r).ID)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	provider := param(r, "provider")
	if err := h.credentials.Delete(r.Context(), tenantOf(r).ID, provider); err != nil {
		errors.Write(w, err)
		return
	}

	h.record(r, "credential.deleted", provider, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *CredentialHandler) record(r *http.Request, action, provider string, changes map[string]interface{}) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(r.Context(), auditEntry(r, action, "credential", provider, changes)); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("action", action).Msg("failed to write audit log")
	}
}
