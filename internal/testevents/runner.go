package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/delaycast/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Readiness polling.
const (
	readyAttempts     = 30
	readyPollInterval = time.Second
)

// Run executes the complete prediction test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting delaycast prediction test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("events", config.NumEvents),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Int("verify", config.Verify),
		logger.Any("seed", config.Seed),
		logger.Bool("verbose", config.Verbose))

	// Step 1: Wait until artifacts are loaded
	if err := waitForReady(ctx, config); err != nil {
		return fmt.Errorf("service readiness check failed: %w", err)
	}

	// Step 2: Generate events
	events := generateEvents(ctx, config, stats)

	// Step 3: Submit events concurrently
	results, err := submitEvents(ctx, config, events, stats)
	if err != nil {
		return fmt.Errorf("event submission failed: %w", err)
	}
	if err := checkOutcomes(events, results, stats); err != nil {
		return err
	}

	// Step 4: Verify consistency across endpoints
	if config.Verify > 0 {
		if err := verifyResults(ctx, config, events, results, stats); err != nil {
			return fmt.Errorf("result verification failed: %w", err)
		}
	}

	// Step 5: Save events to file
	if err := saveEventsToFile(ctx, config, events); err != nil {
		logger.Get().Warn(ctx, "failed to save events to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// waitForReady polls /readyz until the service reports ready.
func waitForReady(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service readiness")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/readyz"

	var lastErr error
	for attempt := 0; attempt < readyAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readyPollInterval):
			}
		}

		resp, err := client.Get(ctx, url)
		if err != nil {
			lastErr = fmt.Errorf("failed to connect to service: %w", err)
			continue
		}
		body, err := readResponseBody(resp)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == StatusOK {
			logger.Get().Info(ctx, "service is ready")
			return nil
		}

		var status struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(body, &status)
		if status.Status == "failed" {
			return fmt.Errorf("service failed to load its artifacts")
		}
		lastErr = fmt.Errorf("service not ready: %s", status.Status)
	}
	return lastErr
}

// checkOutcomes requires every well-formed event to succeed and every
// malformed one to be rejected.
func checkOutcomes(events []Event, results []*Prediction, stats *Stats) error {
	if stats.EventsFailed > 0 {
		return fmt.Errorf("%d events failed", stats.EventsFailed)
	}
	for i, ev := range events {
		if valid(ev) != (results[i] != nil) {
			return fmt.Errorf("event %d: well formed %v but succeeded %v", i, valid(ev), results[i] != nil)
		}
	}
	return nil
}

// saveEventsToFile saves the generated events to a JSON file.
func saveEventsToFile(ctx context.Context, config *Config, events []Event) error {
	if len(events) == 0 {
		return fmt.Errorf("no events to save")
	}

	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_events_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}

	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, eventsPerSecond, delayRate float64

	if stats.EventsSubmitted > 0 {
		successRate = float64(stats.EventsSuccessful) / float64(stats.EventsSubmitted) * PercentageMultiplier
	}
	if stats.EventsSuccessful > 0 {
		delayRate = float64(stats.Delays) / float64(stats.EventsSuccessful) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsSuccessful", stats.EventsSuccessful),
		logger.Int("eventsRejected", stats.EventsRejected),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("degraded", stats.Degraded),
		logger.Int("verified", stats.Verified),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("delayRate", delayRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
