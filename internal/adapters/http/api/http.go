// Package api exposes the prediction service as a thin JSON HTTP adapter.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/delaycast/internal/app"
	"github.com/okian/delaycast/internal/domain/features"
	"github.com/okian/delaycast/internal/domain/model"
	"github.com/okian/delaycast/internal/domain/scoring"
	"github.com/okian/delaycast/pkg/logger"
)

// Predictor answers prediction requests.
type Predictor interface {
	Predict(ctx context.Context, ev model.RawEvent) (model.PredictionResult, error)
	PredictDay(ctx context.Context, req service.DayRequest) (model.DaySweepResult, error)
	PredictBatch(ctx context.Context, events []model.RawEvent) ([]service.BatchItem, error)
}

// ReadinessProvider reports the service lifecycle state.
type ReadinessProvider interface {
	State() service.State
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	Predictor
	ReadinessProvider
	StatsProvider
}

// Server wires HTTP routes for the prediction API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	predictHandler *PredictHandler
}

// Option configures a Server.
type Option func(*options)

type options struct {
	logger logger.Logger
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		predictHandler: NewPredictHandler(deps, o.logger.Named("api")),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}
	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /readyz", "readyz", s.healthHandler.HandleReady)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	route("POST /predict", "predict", s.predictHandler.HandlePredict)
	route("POST /predict_day", "predict_day", s.predictHandler.HandlePredictDay)
	route("POST /predict_batch", "predict_batch", s.predictHandler.HandlePredictBatch)
}

type errorResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	resp := errorResponse{
		RequestID: RequestIDFrom(r.Context()),
		Code:      code,
		Message:   http.StatusText(status),
	}
	if err != nil {
		resp.Message = err.Error()
	}
	if ve := requestFieldError(err); ve != nil {
		resp.Field = ve.Field
		resp.Message = ve.Error()
	}
	writeJSON(w, status, resp)
}

// requestFields maps event field names to the request keys they are read
// from when the two differ.
var requestFields = map[string]string{"direction": "bound"}

// requestFieldError returns the validation error in err, renamed to the
// request key, or nil.
func requestFieldError(err error) *features.ValidationError {
	var ve *features.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	if key, ok := requestFields[ve.Field]; ok {
		renamed := *ve
		renamed.Field = key
		return &renamed
	}
	return ve
}

// classify maps an error to its HTTP status and response code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, features.ErrInputValidation):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrEmptyBatch):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge, "batch_too_large"
	case errors.Is(err, service.ErrNotReady), errors.Is(err, service.ErrFailed):
		return http.StatusServiceUnavailable, "not_ready"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	case errors.Is(err, scoring.ErrModelInference):
		return http.StatusInternalServerError, "inference_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
