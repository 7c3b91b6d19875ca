package testevents

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/okian/delaycast/pkg/logger"
)

const hoursPerDay = 24

// verifyResults re-checks a sample of successful predictions. The batch
// endpoint must agree with the single endpoint, and the day sweep must be
// ordered and agree with a single prediction at each sampled hour.
func verifyResults(ctx context.Context, config *Config, events []Event, results []*Prediction, stats *Stats) error {
	logger.Get().Info(ctx, "verifying results", logger.Int("sample", config.Verify))

	sample := make([]int, 0, config.Verify)
	for i, r := range results {
		if len(sample) == config.Verify {
			break
		}
		if r != nil {
			sample = append(sample, i)
		}
	}
	if len(sample) == 0 {
		return fmt.Errorf("no successful predictions to verify")
	}

	client := newHTTPClient(config.Timeout)
	var errs []error
	if err := verifyBatch(ctx, client, config.BaseURL, events, results, sample); err != nil {
		errs = append(errs, err)
	}
	for _, idx := range sample {
		if err := verifyDay(ctx, client, config.BaseURL, events[idx]); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", idx, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	stats.Verified = len(sample)
	logger.Get().Info(ctx, "result verification completed", logger.Int("verified", stats.Verified))
	return nil
}

// verifyBatch posts the sampled events as one batch and compares each item
// with the earlier single prediction.
func verifyBatch(ctx context.Context, client *HTTPClient, baseURL string, events []Event, results []*Prediction, sample []int) error {
	req := struct {
		Predictions []Event `json:"predictions"`
	}{Predictions: make([]Event, len(sample))}
	for i, idx := range sample {
		req.Predictions[i] = events[idx]
	}

	var resp BatchResponse
	if err := client.postJSON(ctx, baseURL+"/predict_batch", req, &resp); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if resp.Total != len(sample) || len(resp.Results) != len(sample) {
		return fmt.Errorf("batch: got %d results for %d events", len(resp.Results), len(sample))
	}
	for i, item := range resp.Results {
		idx := sample[i]
		if item.Index != i || !item.Success || item.Result == nil {
			return fmt.Errorf("batch: item %d (event %d) failed", i, idx)
		}
		if err := samePrediction(*results[idx], *item.Result); err != nil {
			return fmt.Errorf("batch: event %d: %w", idx, err)
		}
	}
	return nil
}

// verifyDay sweeps the event's day hourly and checks the point at the
// event's hour against a single prediction for that time.
func verifyDay(ctx context.Context, client *HTTPClient, baseURL string, ev Event) error {
	req := struct {
		Date    string `json:"Date"`
		Station string `json:"Station"`
		Line    string `json:"Line"`
		Code    string `json:"Code"`
		Bound   string `json:"Bound"`
	}{ev.Date, ev.Station, ev.Line, ev.Code, ev.Bound}

	var day DayResponse
	if err := client.postJSON(ctx, baseURL+"/predict_day", req, &day); err != nil {
		return fmt.Errorf("day sweep: %w", err)
	}
	if len(day.Predictions) != hoursPerDay {
		return fmt.Errorf("day sweep: got %d points, want %d", len(day.Predictions), hoursPerDay)
	}
	for h, p := range day.Predictions {
		if want := fmt.Sprintf("%02d:00", h); p.Time != want {
			return fmt.Errorf("day sweep: point %d at %s, want %s", h, p.Time, want)
		}
	}

	var hour int
	if _, err := fmt.Sscanf(ev.Time, "%d:", &hour); err != nil || hour < 0 || hour >= hoursPerDay {
		return fmt.Errorf("unparseable time %q", ev.Time)
	}
	single := ev
	single.Time = fmt.Sprintf("%02d:00", hour)
	var one PredictResponse
	if err := client.postJSON(ctx, baseURL+"/predict", single, &one); err != nil {
		return fmt.Errorf("hourly prediction: %w", err)
	}
	if err := samePrediction(one.Result, day.Predictions[hour].Prediction); err != nil {
		return fmt.Errorf("day sweep at %s: %w", single.Time, err)
	}
	return nil
}

func samePrediction(a, b Prediction) error {
	if math.Abs(a.DelayProbability-b.DelayProbability) > probabilityTolerance {
		return fmt.Errorf("probability %v != %v", a.DelayProbability, b.DelayProbability)
	}
	if a.Prediction != b.Prediction || a.Confidence != b.Confidence || a.Degraded != b.Degraded {
		return fmt.Errorf("result %+v != %+v", a, b)
	}
	return nil
}
