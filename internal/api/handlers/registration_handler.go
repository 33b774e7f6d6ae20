package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"switchboard/internal/engine/registry"
	"switchboard/internal/engine/stats"
	"switchboard/internal/pkg/errors"
	"switchboard/internal/pkg/projection"
	"switchboard/internal/platform/audit"
	"switchboard/internal/platform/models"
)

var registrationFields = projection.NewAllowList(
	"id", "name", "kind", "event_type", "function_name", "target_url",
	"has_auth_token", "active", "response_timeout_ms", "retry_on_failure",
	"total_calls", "successful_calls", "failed_calls", "last_called_at",
	"created_at", "updated_at",
)

type RegistrationHandler struct {
	registry *registry.Service
	stats    *stats.Service
	audit    *audit.Logger
}

func NewRegistrationHandler(reg *registry.Service, st *stats.Service, auditLogger *audit.Logger) *RegistrationHandler {
	return &RegistrationHandler{registry: reg, stats: st, audit: auditLogger}
}

func (h *RegistrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in registry.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		errors.Write(w, errors.New(errors.KindInvalidInput, "Invalid request body"))
		return
	}

	reg, err := h.registry.Create(r.Context(), tenantOf(r).ID, &in)
	if err != nil {
		errors.Write(w, err)
		return
	}

	h.record(r, "registration.created", reg.ID, map[string]interface{}{"name": reg.Name, "kind": reg.Kind})
	writeJSON(w, http.StatusCreated, registrationView(reg))
}

func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	fields, err := registrationFields.Parse(r.URL.Query().Get("fields"))
	if err != nil {
		errors.Write(w, err)
		return
	}

	regs, err := h.registry.List(r.Context(), tenantOf(r).ID)
	if err != nil {
		errors.Write(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(regs))
	for _, reg := range regs {
		out = append(out, projection.Project(registrationView(reg), fields))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registry.Get(r.Context(), tenantOf(r).ID, param(r, "registration_id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registrationView(reg))
}

func (h *RegistrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in registry.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		errors.Write(w, errors.New(errors.KindInvalidInput, "Invalid request body"))
		return
	}

	reg, err := h.registry.Update(r.Context(), tenantOf(r).ID, param(r, "registration_id"), &in)
	if err != nil {
		errors.Write(w, err)
		return
	}

	h.record(r, "registration.updated", reg.ID, changedFields(&in))
	writeJSON(w, http.StatusOK, registrationView(reg))
}

func (h *RegistrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := param(r, "registration_id")
	if err := h.registry.Delete(r.Context(), tenantOf(r).ID, id); err != nil {
		errors.Write(w, err)
		return
	}

	h.record(r, "registration.deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Calls lists the most recent call records of one registration.
func (h *RegistrationHandler) Calls(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantOf(r).ID
	reg, err := h.registry.Get(r.Context(), tenantID, param(r, "registration_id"))
	if err != nil {
		errors.Write(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	calls, err := h.stats.ListCalls(r.Context(), tenantID, reg.ID, limit)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

// Daily serves rolled-up counts; the range defaults to the last 30 days.
func (h *RegistrationHandler) Daily(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantOf(r).ID
	reg, err := h.registry.Get(r.Context(), tenantID, param(r, "registration_id"))
	if err != nil {
		errors.Write(w, err)
		return
	}

	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	if startDate == "" || endDate == "" {
		now := time.Now().UTC()
		endDate = now.Format(time.DateOnly)
		startDate = now.AddDate(0, 0, -30).Format(time.DateOnly)
	}

	daily, err := h.stats.ListDaily(r.Context(), tenantID, reg.ID, startDate, endDate)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, daily)
}

func (h *RegistrationHandler) record(r *http.Request, action, resourceID string, changes map[string]interface{}) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(r.Context(), auditEntry(r, action, "registration", resourceID, changes)); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("action", action).Msg("failed to write audit log")
	}
}

// registrationView is the admin representation. The auth token is only
// ever reported as present or absent.
func registrationView(reg *models.Registration) map[string]interface{} {
	raw, _ := json.Marshal(reg)
	view := make(map[string]interface{})
	json.Unmarshal(raw, &view)
	view["has_auth_token"] = reg.HasAuthToken()
	return view
}

func changedFields(in *registry.Input) map[string]interface{} {
	changes := make(map[string]interface{})
	if in.Name != nil {
		changes["name"] = *in.Name
	}
	if in.EventType != nil {
		changes["event_type"] = *in.EventType
	}
	if in.FunctionName != nil {
		changes["function_name"] = *in.FunctionName
	}
	if in.TargetURL != nil {
		changes["target_url"] = *in.TargetURL
	}
	if in.AuthToken != nil {
		changes["auth_token"] = "changed"
	}
	if in.Active != nil {
		changes["active"] = *in.Active
	}
	if in.ResponseTimeoutMs != nil {
		changes["response_timeout_ms"] = *in.ResponseTimeoutMs
	}
	if in.RetryOnFailure != nil {
		changes["retry_on_failure"] = *in.RetryOnFailure
	}
	return changes
}
