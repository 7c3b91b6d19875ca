package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/delaycast/internal/app"
	"github.com/okian/delaycast/pkg/metrics"
)

// HealthHandler serves liveness metrics and readiness.
type HealthHandler struct {
	readiness ReadinessProvider
	metrics   http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(readiness ReadinessProvider) *HealthHandler {
	return &HealthHandler{
		readiness: readiness,
		metrics:   promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz with the Prometheus exposition.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

type readyResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// HandleReady handles GET /readyz: 200 once artifacts are loaded, 503
// before that and after a failed load.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	st := h.readiness.State()
	status := http.StatusOK
	if st != service.StateReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResponse{RequestID: RequestIDFrom(r.Context()), Status: st.String()})
}
