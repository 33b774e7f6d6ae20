package handlers

import (
	"net/http"
	"time"

	"switchboard/internal/engine/stats"
	"switchboard/internal/pkg/errors"
)

type StatsHandler struct {
	stats *stats.Service
	now   func() time.Time
}

func NewStatsHandler(st *stats.Service) *StatsHandler {
	return &StatsHandler{stats: st, now: time.Now}
}

// Summary aggregates calls between start_date and end_date (inclusive,
// YYYY-MM-DD, UTC). The range defaults to the last 30 days.
func (h *StatsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	// Whole UTC days, today included.
	today := h.now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -30)
	to := today.AddDate(0, 0, 1)

	if startDate != "" || endDate != "" {
		start, err1 := time.Parse(time.DateOnly, startDate)
		end, err2 := time.Parse(time.DateOnly, endDate)
		if err1 != nil || err2 != nil {
			errors.Write(w, errors.New(errors.KindInvalidInput, "start_date and end_date must be formatted YYYY-MM-DD"))
			return
		}
		from, to = start, end.AddDate(0, 0, 1)
	}

	summary, err := h.stats.Summarize(r.Context(), tenantOf(r).ID, from, to)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
