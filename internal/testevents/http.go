package testevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/delaycast/internal/adapters/http/api"
	"github.com/okian/delaycast/pkg/logger"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with a JSON body. A fresh request ID is sent
// and returned so the caller can match it against the echoed header.
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	id := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.RequestIDHeader, id)
	resp, err := c.client.Do(req)
	return resp, id, err
}

// postJSON posts body and decodes a 200 response into out.
func (c *HTTPClient) postJSON(ctx context.Context, url string, body, out interface{}) error {
	resp, _, err := c.Post(ctx, url, body)
	if err != nil {
		return err
	}
	data, err := readResponseBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, bytes.TrimSpace(data))
	}
	return json.Unmarshal(data, out)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

type submitOutcome int

const (
	outcomeFailed submitOutcome = iota
	outcomeSuccess
	outcomeRejected
)

// submitEvents posts events to /predict concurrently. The returned slice is
// indexed like events; entries for unsuccessful requests are nil.
func submitEvents(ctx context.Context, config *Config, events []Event, stats *Stats) ([]*Prediction, error) {
	log := logger.Get()
	log.Info(ctx, "submitting events",
		logger.Int("events", len(events)),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/predict"
	results := make([]*Prediction, len(events))

	var (
		successful int64
		rejected   int64
		failed     int64
		submitted  int64
		mismatched int64
	)

	indexChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexChan {
				if ctx.Err() != nil {
					continue
				}
				pred, outcome, echoed := submitSingleEvent(ctx, client, url, events[idx])
				atomic.AddInt64(&submitted, 1)
				if !echoed {
					atomic.AddInt64(&mismatched, 1)
				}
				switch outcome {
				case outcomeSuccess:
					results[idx] = pred
					atomic.AddInt64(&successful, 1)
				case outcomeRejected:
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				if config.Verbose {
					log.Debug(ctx, "event submitted",
						logger.Int("index", idx),
						logger.Int("outcome", int(outcome)))
				}
			}
		}()
	}

	func() {
		defer close(indexChan)
		for i := range events {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()
	wg.Wait()

	stats.EventsSubmitted = int(submitted)
	stats.EventsSuccessful = int(successful)
	stats.EventsRejected = int(rejected)
	stats.EventsFailed = int(failed)
	for _, p := range results {
		if p == nil {
			continue
		}
		if p.Prediction == "delay" {
			stats.Delays++
		}
		if p.Degraded {
			stats.Degraded++
		}
	}

	log.Info(ctx, "event submission completed",
		logger.Int("successful", stats.EventsSuccessful),
		logger.Int("rejected", stats.EventsRejected),
		logger.Int("failed", stats.EventsFailed))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mismatched > 0 {
		return nil, fmt.Errorf("%d responses did not echo the request ID", mismatched)
	}
	return results, nil
}

// submitSingleEvent posts one event. echoed reports whether the response
// carried the request ID that was sent.
func submitSingleEvent(ctx context.Context, client *HTTPClient, url string, event Event) (*Prediction, submitOutcome, bool) {
	resp, id, err := client.Post(ctx, url, event)
	if err != nil {
		return nil, outcomeFailed, true
	}
	echoed := resp.Header.Get(api.RequestIDHeader) == id

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, outcomeFailed, echoed
	}

	switch resp.StatusCode {
	case StatusOK:
		var out PredictResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, outcomeFailed, echoed
		}
		return &out.Result, outcomeSuccess, echoed && out.RequestID == id
	case StatusBadRequest:
		return nil, outcomeRejected, echoed
	default:
		return nil, outcomeFailed, echoed
	}
}
