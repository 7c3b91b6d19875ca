package testevents

import "time"

// Config holds configuration for the prediction load test.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumEvents  int           // Number of events to generate
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	Seed       uint64        // Generator seed; the same seed yields the same events
	Verify     int           // Number of events re-checked through batch and day sweeps
	OutputFile string        // Output file for events
	LogFile    string        // Log file for test output
	Verbose    bool          // Enable verbose logging
}

// Event is a prediction request body.
type Event struct {
	Date    string `json:"Date"`
	Time    string `json:"Time"`
	Station string `json:"Station"`
	Line    string `json:"Line"`
	Code    string `json:"Code"`
	Bound   string `json:"Bound"`
}

// Prediction is the result part of a prediction response.
type Prediction struct {
	Prediction       string   `json:"prediction"`
	DelayProbability float64  `json:"delay_probability"`
	Confidence       string   `json:"confidence"`
	Degraded         bool     `json:"degraded"`
	UnseenCategories []string `json:"unseen_categories"`
}

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	RequestID string     `json:"request_id"`
	Result    Prediction `json:"result"`
}

// DayResponse is the body of a successful POST /predict_day.
type DayResponse struct {
	RequestID   string `json:"request_id"`
	Date        string `json:"date"`
	Predictions []struct {
		Time string `json:"time"`
		Prediction
	} `json:"predictions"`
}

// BatchResponse is the body of a successful POST /predict_batch.
type BatchResponse struct {
	RequestID string `json:"request_id"`
	Total     int    `json:"total"`
	Results   []struct {
		Index   int         `json:"index"`
		Success bool        `json:"success"`
		Result  *Prediction `json:"result"`
	} `json:"results"`
}

// Stats holds test statistics
type Stats struct {
	EventsGenerated  int
	EventsSubmitted  int
	EventsSuccessful int
	EventsRejected   int
	EventsFailed     int
	Delays           int
	Degraded         int
	Verified         int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
