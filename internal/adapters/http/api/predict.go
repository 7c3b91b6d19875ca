package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/delaycast/internal/app"
	"github.com/okian/delaycast/internal/domain/features"
	"github.com/okian/delaycast/internal/domain/model"
	"github.com/okian/delaycast/pkg/logger"
)

// Request body limits.
const (
	maxEventBody = 64 << 10
	maxBatchBody = 16 << 20
)

const minutesPerDay = 24 * 60

// eventRequest mirrors the public request schema. Field names match the
// incident log columns; JSON decoding also accepts them in lower case.
type eventRequest struct {
	Date    string `json:"Date"`
	Time    string `json:"Time"`
	Station string `json:"Station"`
	Line    string `json:"Line"`
	Code    string `json:"Code"`
	Bound   string `json:"Bound"`
}

func (e eventRequest) raw() model.RawEvent {
	return model.RawEvent{
		Date:      e.Date,
		Time:      e.Time,
		Station:   e.Station,
		Line:      e.Line,
		Code:      e.Code,
		Direction: e.Bound,
	}
}

type dayRequest struct {
	Date               string `json:"Date"`
	Station            string `json:"Station"`
	Line               string `json:"Line"`
	Code               string `json:"Code"`
	Bound              string `json:"Bound"`
	GranularityMinutes int    `json:"granularity_minutes,omitempty"`
}

type batchRequest struct {
	Predictions []eventRequest `json:"predictions"`
}

type prediction struct {
	Prediction         model.Label          `json:"prediction"`
	DelayProbability   float64              `json:"delay_probability"`
	NoDelayProbability float64              `json:"no_delay_probability"`
	Confidence         model.ConfidenceTier `json:"confidence"`
	Degraded           bool                 `json:"degraded"`
	UnseenCategories   []string             `json:"unseen_categories,omitempty"`
}

func toPrediction(r model.PredictionResult) prediction {
	return prediction{
		Prediction:         r.Label,
		DelayProbability:   r.Probability,
		NoDelayProbability: 1 - r.Probability,
		Confidence:         r.Tier,
		Degraded:           r.Degraded,
		UnseenCategories:   r.UnseenCategories,
	}
}

type predictResponse struct {
	RequestID string     `json:"request_id"`
	Result    prediction `json:"result"`
}

type dayPoint struct {
	Time string `json:"time"`
	prediction
}

type dayResponse struct {
	RequestID          string     `json:"request_id"`
	Date               string     `json:"date"`
	GranularityMinutes int        `json:"granularity_minutes"`
	Predictions        []dayPoint `json:"predictions"`
}

type batchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type batchResult struct {
	Index   int         `json:"index"`
	Success bool        `json:"success"`
	Result  *prediction `json:"result,omitempty"`
	Error   *batchError `json:"error,omitempty"`
}

type batchResponse struct {
	RequestID string        `json:"request_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []batchResult `json:"results"`
}

// PredictHandler serves the prediction endpoints.
type PredictHandler struct {
	deps   Predictor
	logger logger.Logger
}

// NewPredictHandler creates a new prediction handler.
func NewPredictHandler(deps Predictor, l logger.Logger) *PredictHandler {
	return &PredictHandler{deps: deps, logger: l}
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	var req eventRequest
	if !h.decode(w, r, op, maxEventBody, &req) {
		return
	}
	res, err := h.deps.Predict(r.Context(), req.raw())
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{RequestID: RequestIDFrom(r.Context()), Result: toPrediction(res)})
}

// HandlePredictDay handles POST /predict_day requests.
func (h *PredictHandler) HandlePredictDay(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_day"
	var req dayRequest
	if !h.decode(w, r, op, maxEventBody, &req) {
		return
	}
	if req.GranularityMinutes < 0 || req.GranularityMinutes > minutesPerDay {
		h.fail(w, r, op, &features.ValidationError{
			Field:  "granularity",
			Value:  strconv.Itoa(req.GranularityMinutes),
			Reason: "must be within 0..1440 minutes",
		})
		return
	}
	sweep, err := h.deps.PredictDay(r.Context(), service.DayRequest{
		Date:        req.Date,
		Station:     req.Station,
		Line:        req.Line,
		Code:        req.Code,
		Direction:   req.Bound,
		Granularity: time.Duration(req.GranularityMinutes) * time.Minute,
	})
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	resp := dayResponse{
		RequestID:          RequestIDFrom(r.Context()),
		Date:               sweep.Date,
		GranularityMinutes: int(sweep.Granularity / time.Minute),
		Predictions:        make([]dayPoint, len(sweep.Points)),
	}
	for i, p := range sweep.Points {
		resp.Predictions[i] = dayPoint{Time: p.Time, prediction: toPrediction(p.Result)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePredictBatch handles POST /predict_batch requests. Items fail
// individually; the response is 200 whenever the batch itself was accepted.
func (h *PredictHandler) HandlePredictBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_batch"
	var req batchRequest
	if !h.decode(w, r, op, maxBatchBody, &req) {
		return
	}
	if len(req.Predictions) == 0 {
		h.fail(w, r, op, NewKind(op, ErrEmptyBatch))
		return
	}
	events := make([]model.RawEvent, len(req.Predictions))
	for i, e := range req.Predictions {
		events[i] = e.raw()
	}
	items, err := h.deps.PredictBatch(r.Context(), events)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	resp := batchResponse{
		RequestID: RequestIDFrom(r.Context()),
		Total:     len(items),
		Results:   make([]batchResult, len(items)),
	}
	for i, it := range items {
		out := batchResult{Index: i, Success: it.Err == nil}
		if it.Err != nil {
			_, code := classify(it.Err)
			be := &batchError{Code: code, Message: it.Err.Error()}
			if ve := requestFieldError(it.Err); ve != nil {
				be.Field = ve.Field
				be.Message = ve.Error()
			}
			out.Error = be
			resp.Failed++
		} else {
			p := toPrediction(it.Result)
			out.Result = &p
			resp.Succeeded++
		}
		resp.Results[i] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PredictHandler) decode(w http.ResponseWriter, r *http.Request, op string, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", WrapKind(op, ErrBadRequest, err))
			return false
		}
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return false
	}
	return true
}

func (h *PredictHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	if status >= statusInternalError {
		h.logger.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("request_id", RequestIDFrom(r.Context())),
			logger.Error(err),
		)
	}
	writeError(w, r, status, code, err)
}
