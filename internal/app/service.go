// Package service loads the serving artifacts once and answers single,
// day-sweep and batch delay predictions against them.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/delaycast/internal/adapters/worker"
	"github.com/okian/delaycast/internal/domain/features"
	"github.com/okian/delaycast/internal/domain/model"
	"github.com/okian/delaycast/internal/domain/ratestore"
	"github.com/okian/delaycast/internal/domain/scoring"
	"github.com/okian/delaycast/internal/domain/snapshot"
	"github.com/okian/delaycast/pkg/logger"
	"github.com/okian/delaycast/pkg/metrics"
)

// DefaultGranularity is the day sweep step when a request leaves it unset.
const DefaultGranularity = time.Hour

const (
	defaultMaxBatchSize = 1000
	day                 = 24 * time.Hour
)

// probeEvent is transformed and scored once during Start.
var probeEvent = model.RawEvent{
	Date:      "2024-01-01",
	Time:      "12:00",
	Station:   "PROBE STATION",
	Line:      "PROBE",
	Code:      "PROBE",
	Direction: "N",
}

// engine is the immutable serving state published by Start.
type engine struct {
	snap        *snapshot.Snapshot
	table       *ratestore.Table
	transformer *features.Transformer
	model       *scoring.Model
	loadedAt    time.Time
	loadTime    time.Duration
}

// DayRequest asks for predictions across one service day.
type DayRequest struct {
	Date        string
	Station     string
	Line        string
	Code        string
	Direction   string
	Granularity time.Duration
}

// BatchItem is the outcome of one event of a batch. Exactly one of Result
// and Err is meaningful.
type BatchItem struct {
	Result model.PredictionResult
	Err    error
}

// Service answers predictions. Predict, PredictDay and PredictBatch are safe
// for concurrent use once Start has returned.
type Service struct {
	startMu sync.Mutex

	errMu   sync.RWMutex
	loadErr error

	state  atomic.Int32
	engine atomic.Pointer[engine]

	loader       Loader
	pool         *worker.Pool
	sweepWorkers int
	maxBatchSize int
	cutoffs      Cutoffs

	logger  logger.Logger
	metrics *metrics.Manager

	predictions      atomic.Int64
	daySweeps        atomic.Int64
	batches          atomic.Int64
	validationErrors atomic.Int64
	inferenceErrors  atomic.Int64
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLoader sets where Start reads the artifacts from.
func WithLoader(l Loader) Option {
	return func(s *Service) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics manager. The global manager is used otherwise.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSweepWorkers bounds the goroutines evaluating one day sweep or batch.
func WithSweepWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepWorkers = n
		}
	}
}

// WithMaxBatchSize caps the number of events accepted by PredictBatch.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithConfidenceCutoffs sets the margin cutoffs of the high and medium
// tiers. Values outside 0 < medium < high <= 1 are ignored.
func WithConfidenceCutoffs(high, medium float64) Option {
	return func(s *Service) {
		if medium > 0 && high > medium && high <= 1 {
			s.cutoffs = Cutoffs{High: high, Medium: medium}
		}
	}
}

// New constructs a Service in the Uninitialized state.
func New(opts ...Option) *Service {
	s := &Service{
		sweepWorkers: runtime.NumCPU(),
		maxBatchSize: defaultMaxBatchSize,
		cutoffs:      DefaultCutoffs,
		metrics:      metrics.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("service")
	s.pool = worker.New(s.sweepWorkers,
		worker.WithName("sweep"),
		worker.WithLogger(s.logger),
		worker.WithMetrics(s.metrics),
	)
	return s
}

// State returns the current lifecycle state.
func (s *Service) State() State { return State(s.state.Load()) }

func (s *Service) setState(ctx context.Context, st State) {
	prev := State(s.state.Swap(int32(st)))
	s.metrics.UpdateServiceState(int(st))
	s.logger.Info(ctx, "state changed", logger.String("from", prev.String()), logger.String("to", st.String()))
}

// Start loads and cross-validates the artifacts and makes the service
// Ready. Calling Start on a Ready service does nothing; on a Failed
// service it returns ErrFailed again.
func (s *Service) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	switch s.State() {
	case StateReady:
		return nil
	case StateFailed:
		return fmt.Errorf("%w: %w", ErrFailed, s.failure())
	}

	s.setState(ctx, StateLoading)
	started := time.Now()
	e, err := s.load(ctx)
	if err != nil {
		s.errMu.Lock()
		s.loadErr = err
		s.errMu.Unlock()
		s.setState(ctx, StateFailed)
		s.metrics.RecordErrorByComponent("service", "load")
		s.logger.Error(ctx, "artifact load failed", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrFailed, err)
	}
	e.loadedAt = time.Now()
	e.loadTime = time.Since(started)
	s.engine.Store(e)
	s.setState(ctx, StateReady)

	s.metrics.UpdateArtifactInfo(
		e.model.Version(),
		e.snap.TransformerVersion,
		fmt.Sprint(e.table.Version()),
		len(e.snap.FeatureOrder),
		e.table.Len(),
		float64(e.loadTime.Microseconds())/1000,
	)
	s.logger.Info(ctx, "artifacts loaded",
		logger.String("artifact_version", e.model.Version()),
		logger.Int("features", len(e.snap.FeatureOrder)),
		logger.Int("rate_entries", e.table.Len()),
		logger.Float64("threshold", e.model.Threshold()),
		logger.Duration("took", e.loadTime),
	)
	return nil
}

func (s *Service) load(ctx context.Context) (*engine, error) {
	if s.loader == nil {
		return nil, fmt.Errorf("%w: no loader configured", ErrIncompleteBundle)
	}
	b, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return buildEngine(b)
}

func buildEngine(b Bundle) (*engine, error) {
	if b.Snapshot == nil || b.Artifact.Classifier == nil {
		return nil, fmt.Errorf("%w: snapshot or classifier missing", ErrIncompleteBundle)
	}
	if err := b.Snapshot.Validate(); err != nil {
		return nil, err
	}
	fd := b.Snapshot.FallbackDefaults
	table, err := ratestore.NewTable(b.Rates,
		ratestore.WithMinSupport(fd.MinSupport),
		ratestore.WithSmoothing(fd.SmoothingStrength),
		ratestore.WithFallbackRate(fd.GlobalRate),
	)
	if err != nil {
		return nil, err
	}
	tr, err := features.New(b.Snapshot, table)
	if err != nil {
		return nil, err
	}
	m, err := scoring.Bind(b.Artifact, b.Snapshot.FeatureOrder, b.Snapshot.ArtifactVersion)
	if err != nil {
		return nil, err
	}

	vec, err := tr.Transform(probeEvent)
	if err != nil {
		return nil, fmt.Errorf("probe transform: %w", err)
	}
	if !slices.Equal(vec.Names, m.FeatureOrder()) {
		return nil, fmt.Errorf("%w: transformer emits %d features not matching the model order", scoring.ErrArtifactMismatch, vec.Len())
	}
	if _, err := m.PredictProbability(vec.Values); err != nil {
		return nil, fmt.Errorf("probe inference: %w", err)
	}

	return &engine{
		snap:        b.Snapshot.Clone(),
		table:       table,
		transformer: tr,
		model:       m,
	}, nil
}

func (s *Service) current() (*engine, error) {
	e := s.engine.Load()
	if e == nil {
		return nil, ErrNotReady
	}
	return e, nil
}

// Predict scores a single event.
func (s *Service) Predict(ctx context.Context, ev model.RawEvent) (model.PredictionResult, error) {
	e, err := s.current()
	if err != nil {
		return model.PredictionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.PredictionResult{}, err
	}
	parsed, err := features.Parse(ev)
	if err != nil {
		s.recordValidation(err)
		return model.PredictionResult{}, err
	}
	return s.score(e, parsed)
}

// PredictDay scores the request at every grid point of its date, starting
// at 00:00. Points are returned in ascending time order.
func (s *Service) PredictDay(ctx context.Context, req DayRequest) (model.DaySweepResult, error) {
	e, err := s.current()
	if err != nil {
		return model.DaySweepResult{}, err
	}
	step := req.Granularity
	if step == 0 {
		step = DefaultGranularity
	}
	if step < time.Minute || step%time.Minute != 0 || day%step != 0 {
		err := &features.ValidationError{
			Field:  "granularity",
			Value:  req.Granularity.String(),
			Reason: "must be a whole number of minutes dividing 24h",
		}
		s.recordValidation(err)
		return model.DaySweepResult{}, err
	}
	base, err := features.Parse(model.RawEvent{
		Date:      req.Date,
		Time:      "00:00",
		Station:   req.Station,
		Line:      req.Line,
		Code:      req.Code,
		Direction: req.Direction,
	})
	if err != nil {
		s.recordValidation(err)
		return model.DaySweepResult{}, err
	}

	started := time.Now()
	points := make([]model.SweepPoint, int(day/step))
	err = s.pool.Run(ctx, len(points), func(_ context.Context, i int) error {
		offset := time.Duration(i) * step
		ev := base
		ev.Hour = int(offset / time.Hour)
		ev.Minute = int(offset % time.Hour / time.Minute)
		res, err := s.score(e, ev)
		if err != nil {
			return err
		}
		points[i] = model.SweepPoint{
			Time:   fmt.Sprintf("%02d:%02d", ev.Hour, ev.Minute),
			Result: res,
		}
		return nil
	})
	if err != nil {
		return model.DaySweepResult{}, err
	}
	s.daySweeps.Add(1)
	s.metrics.RecordDaySweep(float64(time.Since(started).Microseconds()) / 1000)
	return model.DaySweepResult{
		Date:        base.Date.Format(features.DateLayout),
		Granularity: step,
		Points:      points,
	}, nil
}

// PredictBatch scores events independently. The returned items follow the
// input order; a malformed event fails only its own item.
func (s *Service) PredictBatch(ctx context.Context, events []model.RawEvent) ([]BatchItem, error) {
	e, err := s.current()
	if err != nil {
		return nil, err
	}
	if len(events) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: %d events, limit %d", ErrBatchTooLarge, len(events), s.maxBatchSize)
	}
	items := make([]BatchItem, len(events))
	err = s.pool.Run(ctx, len(events), func(_ context.Context, i int) error {
		parsed, err := features.Parse(events[i])
		if err != nil {
			s.recordValidation(err)
			items[i].Err = err
			return nil
		}
		items[i].Result, items[i].Err = s.score(e, parsed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.batches.Add(1)
	s.metrics.RecordBatchSize(len(events))
	return items, nil
}

func (s *Service) score(e *engine, ev features.Event) (model.PredictionResult, error) {
	started := time.Now()
	vec := e.transformer.TransformEvent(ev)
	p, err := e.model.PredictProbability(vec.Values)
	if err != nil {
		s.inferenceErrors.Add(1)
		s.metrics.RecordInferenceError()
		return model.PredictionResult{}, err
	}
	diag := vec.Diagnostics
	for _, f := range diag.DegradedRates {
		s.metrics.RecordDegradedLookup(f)
	}
	for _, f := range diag.UnseenCategories {
		s.metrics.RecordUnseenCategory(f)
	}
	res := model.PredictionResult{
		Label:            e.model.Label(p),
		Probability:      p,
		Tier:             s.cutoffs.Tier(p, e.model.Threshold(), !diag.Clean()),
		Degraded:         len(diag.DegradedRates) > 0,
		UnseenCategories: diag.UnseenCategories,
	}
	s.predictions.Add(1)
	s.metrics.RecordPrediction(string(res.Label), string(res.Tier), float64(time.Since(started).Microseconds())/1000)
	return res, nil
}

func (s *Service) recordValidation(err error) {
	s.validationErrors.Add(1)
	var ve *features.ValidationError
	if errors.As(err, &ve) {
		s.metrics.RecordValidationError(ve.Field)
	}
}

// GetStats returns a point-in-time view of the service for diagnostics.
func (s *Service) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"state":             s.State().String(),
		"predictions":       s.predictions.Load(),
		"day_sweeps":        s.daySweeps.Load(),
		"batches":           s.batches.Load(),
		"validation_errors": s.validationErrors.Load(),
		"inference_errors":  s.inferenceErrors.Load(),
		"sweep_workers":     s.pool.Size(),
		"max_batch_size":    s.maxBatchSize,
	}
	if e := s.engine.Load(); e != nil {
		stats["artifact_version"] = e.model.Version()
		stats["transformer_version"] = e.snap.TransformerVersion
		stats["rate_store_version"] = e.table.Version()
		stats["feature_count"] = len(e.snap.FeatureOrder)
		stats["rate_store_entries"] = e.table.Len()
		stats["decision_threshold"] = e.model.Threshold()
		stats["loaded_at"] = e.loadedAt.UTC().Format(time.RFC3339)
		stats["load_ms"] = e.loadTime.Milliseconds()
	}
	if err := s.failure(); err != nil {
		stats["load_error"] = err.Error()
	}
	return stats
}

func (s *Service) failure() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.loadErr
}
