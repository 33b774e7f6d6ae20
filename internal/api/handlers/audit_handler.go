package handlers

import (
	"net/http"
	"strconv"

	"switchboard/internal/pkg/errors"
	"switchboard/internal/platform/audit"
)

type AuditHandler struct {
	logger *audit.Logger
}

func NewAuditHandler(logger *audit.Logger) *AuditHandler {
	return &AuditHandler{logger: logger}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	logs, err := h.logger.List(r.Context(), tenantOf(r).ID, limit)
	if err != nil {
		errors.Write(w, err)
		return
	}
	if logs == nil {
		logs = []*audit.AuditLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
