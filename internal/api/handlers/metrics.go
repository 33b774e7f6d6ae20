package handlers

import (
	"net/http"

	"switchboard/internal/platform/metrics"
)

type MetricsHandler struct {
	metrics *metrics.Metrics
}

func NewMetricsHandler(m *metrics.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: m}
}

// Export serves the Prometheus text exposition of the service registry.
func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.metrics.Handler().ServeHTTP(w, r)
}
