package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	service "github.com/okian/delaycast/internal/app"
	"github.com/okian/delaycast/internal/domain/features"
	"github.com/okian/delaycast/internal/domain/model"
	"github.com/okian/delaycast/internal/domain/ratestore"
	"github.com/okian/delaycast/internal/domain/scoring"
	"github.com/okian/delaycast/internal/testfixtures"
	"github.com/okian/delaycast/pkg/logger"
	"github.com/okian/delaycast/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func fixtureBundle() service.Bundle {
	return service.Bundle{
		Rates:    testfixtures.RateData(),
		Snapshot: testfixtures.Snapshot(),
		Artifact: testfixtures.Artifact(),
	}
}

func staticLoader(b service.Bundle) service.Loader {
	return service.LoaderFunc(func(context.Context) (service.Bundle, error) { return b, nil })
}

func newService(l service.Loader, opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithLoader(l),
		service.WithLogger(logger.Nop()),
		service.WithMetrics(metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))),
		service.WithSweepWorkers(4),
	}, opts...)
	return service.New(opts...)
}

func readyService(opts ...service.Option) *service.Service {
	s := newService(staticLoader(fixtureBundle()), opts...)
	if err := s.Start(context.Background()); err != nil {
		panic(err)
	}
	return s
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

type failingClassifier struct{}

func (failingClassifier) PredictProbability([]float64) (float64, error) {
	return 0, errors.New("boom")
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service that has not been started", t, func() {
		s := newService(staticLoader(fixtureBundle()))

		Convey("Then it should be uninitialized and refuse predictions", func() {
			So(s.State(), ShouldEqual, service.StateUninitialized)
			_, err := s.Predict(ctx, testfixtures.Event())
			So(errors.Is(err, service.ErrNotReady), ShouldBeTrue)
			_, err = s.PredictDay(ctx, service.DayRequest{Date: "2026-01-15"})
			So(errors.Is(err, service.ErrNotReady), ShouldBeTrue)
			_, err = s.PredictBatch(ctx, nil)
			So(errors.Is(err, service.ErrNotReady), ShouldBeTrue)
		})

		Convey("When it is started", func() {
			err := s.Start(ctx)

			Convey("Then it should be ready", func() {
				So(err, ShouldBeNil)
				So(s.State(), ShouldEqual, service.StateReady)
				So(s.State().String(), ShouldEqual, "ready")
			})

			Convey("Then a second start should be a no-op", func() {
				So(s.Start(ctx), ShouldBeNil)
				So(s.State(), ShouldEqual, service.StateReady)
			})

			Convey("Then stats should report the loaded versions", func() {
				stats := s.GetStats()
				So(stats["state"], ShouldEqual, "ready")
				So(stats["artifact_version"], ShouldEqual, testfixtures.ArtifactVersion)
				So(stats["transformer_version"], ShouldEqual, features.Version)
				So(stats["feature_count"], ShouldEqual, len(features.DefaultOrder))
				So(stats, ShouldNotContainKey, "load_error")
			})
		})
	})

	Convey("Given artifacts that disagree with each other", t, func() {
		cases := map[string]func(*service.Bundle){
			"artifact version": func(b *service.Bundle) { b.Artifact.Version = "other" },
			"feature order": func(b *service.Bundle) {
				b.Artifact.Metadata.FeatureOrder[0], b.Artifact.Metadata.FeatureOrder[1] =
					b.Artifact.Metadata.FeatureOrder[1], b.Artifact.Metadata.FeatureOrder[0]
			},
			"threshold": func(b *service.Bundle) { b.Artifact.Metadata.DecisionThreshold = 1 },
		}
		for name, mutate := range cases {
			Convey("When the "+name+" does not match", func() {
				b := fixtureBundle()
				mutate(&b)
				s := newService(staticLoader(b))
				err := s.Start(ctx)

				Convey("Then the service should fail for good", func() {
					So(errors.Is(err, service.ErrFailed), ShouldBeTrue)
					So(errors.Is(err, scoring.ErrArtifactMismatch), ShouldBeTrue)
					So(s.State(), ShouldEqual, service.StateFailed)

					err = s.Start(ctx)
					So(errors.Is(err, service.ErrFailed), ShouldBeTrue)
					So(errors.Is(err, scoring.ErrArtifactMismatch), ShouldBeTrue)

					_, err = s.Predict(ctx, testfixtures.Event())
					So(errors.Is(err, service.ErrNotReady), ShouldBeTrue)
					So(s.GetStats(), ShouldContainKey, "load_error")
				})
			})
		}

		Convey("When the snapshot was built by another transformer", func() {
			b := fixtureBundle()
			b.Snapshot.TransformerVersion = "features/v0"
			err := newService(staticLoader(b)).Start(ctx)

			Convey("Then loading should fail with a version mismatch", func() {
				So(errors.Is(err, features.ErrVersionMismatch), ShouldBeTrue)
			})
		})

		Convey("When the rate store lacks a grouping the transformer queries", func() {
			b := fixtureBundle()
			delete(b.Rates.Groups, ratestore.GroupingOf(ratestore.DimCode, ratestore.DimLine))
			s := newService(staticLoader(b))
			err := s.Start(ctx)

			Convey("Then the service should refuse to become ready", func() {
				So(errors.Is(err, service.ErrFailed), ShouldBeTrue)
				So(errors.Is(err, features.ErrRateStoreMismatch), ShouldBeTrue)
				So(s.State(), ShouldEqual, service.StateFailed)
			})
		})

		Convey("When the classifier cannot score the probe", func() {
			b := fixtureBundle()
			b.Artifact.Classifier = failingClassifier{}
			err := newService(staticLoader(b)).Start(ctx)

			Convey("Then loading should fail on inference", func() {
				So(errors.Is(err, scoring.ErrModelInference), ShouldBeTrue)
			})
		})

		Convey("When the snapshot is missing", func() {
			b := fixtureBundle()
			b.Snapshot = nil
			err := newService(staticLoader(b)).Start(ctx)

			Convey("Then the bundle should be incomplete", func() {
				So(errors.Is(err, service.ErrIncompleteBundle), ShouldBeTrue)
			})
		})
	})

	Convey("Given a loader that fails", t, func() {
		cause := errors.New("disk gone")
		s := newService(service.LoaderFunc(func(context.Context) (service.Bundle, error) {
			return service.Bundle{}, cause
		}))

		Convey("Then Start should report the cause", func() {
			err := s.Start(ctx)
			So(errors.Is(err, service.ErrFailed), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(s.State(), ShouldEqual, service.StateFailed)
		})
	})
}

func TestService_Predict(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ready service", t, func() {
		s := readyService()

		Convey("When the reference weekday rush event is scored", func() {
			res, err := s.Predict(ctx, testfixtures.Event())

			Convey("Then every tree should vote for a delay", func() {
				So(err, ShouldBeNil)
				So(res.Probability, ShouldAlmostEqual, sigmoid(1.1), 1e-12)
				So(res.Label, ShouldEqual, model.LabelDelay)
				So(res.Tier, ShouldEqual, model.TierMedium)
				So(res.Degraded, ShouldBeFalse)
				So(res.UnseenCategories, ShouldBeEmpty)
			})

			Convey("Then scoring it again should give the same answer", func() {
				again, err := s.Predict(ctx, testfixtures.Event())
				So(err, ShouldBeNil)
				So(again, ShouldResemble, res)
			})
		})

		Convey("When the station was never seen", func() {
			ev := testfixtures.Event()
			ev.Station = "NONEXISTENT STATION"
			res, err := s.Predict(ctx, ev)

			Convey("Then it should fall back and be flagged", func() {
				So(err, ShouldBeNil)
				So(res.Probability, ShouldAlmostEqual, sigmoid(0.3), 1e-12)
				So(res.Degraded, ShouldBeTrue)
				So(res.UnseenCategories, ShouldResemble, []string{features.FieldStation})
				So(res.Tier, ShouldEqual, model.TierLow)
			})
		})

		Convey("When the time is malformed", func() {
			ev := testfixtures.Event()
			ev.Time = "25:99"
			_, err := s.Predict(ctx, ev)

			Convey("Then a validation error should name the field", func() {
				var ve *features.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, "time")
				So(errors.Is(err, features.ErrInputValidation), ShouldBeTrue)
				So(s.GetStats()["validation_errors"], ShouldEqual, int64(1))
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := s.Predict(cctx, testfixtures.Event())

			Convey("Then nothing should be scored", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When many goroutines score at once", func() {
			want, _ := s.Predict(ctx, testfixtures.Event())
			var wg sync.WaitGroup
			results := make([]model.PredictionResult, 64)
			for i := range results {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results[i], _ = s.Predict(ctx, testfixtures.Event())
				}()
			}
			wg.Wait()

			Convey("Then every answer should match", func() {
				for _, r := range results {
					So(r, ShouldResemble, want)
				}
			})
		})
	})

	Convey("Given a service with narrower tier cutoffs", t, func() {
		s := readyService(service.WithConfidenceCutoffs(0.4, 0.1))

		Convey("When a clean event clears the high cutoff", func() {
			res, _ := s.Predict(ctx, testfixtures.Event())

			Convey("Then it should be high", func() {
				So(res.Tier, ShouldEqual, model.TierHigh)
			})
		})

		Convey("When a known station lacks support", func() {
			ev := testfixtures.Event()
			ev.Station = "KENNEDY BD STATION"
			res, _ := s.Predict(ctx, ev)

			Convey("Then the medium tier should be demoted to low", func() {
				So(res.Degraded, ShouldBeTrue)
				So(res.UnseenCategories, ShouldBeEmpty)
				So(res.Tier, ShouldEqual, model.TierLow)
			})
		})
	})
}

func TestService_PredictDay(t *testing.T) {
	ctx := context.Background()
	req := service.DayRequest{
		Date:      "2026-01-15",
		Station:   "BLOOR YONGE STATION",
		Line:      "BD",
		Code:      "MUSC",
		Direction: "W",
	}

	Convey("Given a ready service", t, func() {
		s := readyService()

		Convey("When a day is swept at the default granularity", func() {
			res, err := s.PredictDay(ctx, req)

			Convey("Then there should be 24 hourly points in order", func() {
				So(err, ShouldBeNil)
				So(res.Date, ShouldEqual, "2026-01-15")
				So(res.Granularity, ShouldEqual, time.Hour)
				So(res.Points, ShouldHaveLength, 24)
				for h, p := range res.Points {
					So(p.Time, ShouldEqual, fmt.Sprintf("%02d:00", h))
				}
			})

			Convey("Then each point should equal a single prediction at that time", func() {
				for _, h := range []int{3, 8, 17} {
					ev := testfixtures.Event()
					ev.Time = fmt.Sprintf("%02d:00", h)
					single, err := s.Predict(ctx, ev)
					So(err, ShouldBeNil)
					So(res.Points[h].Result, ShouldResemble, single)
				}
				So(res.Points[8].Result.Probability, ShouldBeGreaterThan, res.Points[3].Result.Probability)
			})
		})

		Convey("When a day is swept every 15 minutes", func() {
			r := req
			r.Granularity = 15 * time.Minute
			res, err := s.PredictDay(ctx, r)

			Convey("Then there should be 96 points ending at 23:45", func() {
				So(err, ShouldBeNil)
				So(res.Points, ShouldHaveLength, 96)
				So(res.Points[1].Time, ShouldEqual, "00:15")
				So(res.Points[95].Time, ShouldEqual, "23:45")
			})
		})

		Convey("When the granularity does not divide the day", func() {
			for _, g := range []time.Duration{7 * time.Minute, 90 * time.Second, -time.Hour, 48 * time.Hour} {
				r := req
				r.Granularity = g
				_, err := s.PredictDay(ctx, r)

				var ve *features.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, "granularity")
			}
		})

		Convey("When the date is malformed", func() {
			r := req
			r.Date = "2026-13-01"
			_, err := s.PredictDay(ctx, r)

			Convey("Then the date field should be rejected", func() {
				var ve *features.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, "date")
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := s.PredictDay(cctx, req)

			Convey("Then the sweep should stop", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestService_PredictBatch(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ready service capped at three events", t, func() {
		s := readyService(service.WithMaxBatchSize(3))

		Convey("When a mixed batch is scored", func() {
			bad := testfixtures.Event()
			bad.Time = "25:99"
			unseen := testfixtures.Event()
			unseen.Station = "NONEXISTENT STATION"
			items, err := s.PredictBatch(ctx, []model.RawEvent{testfixtures.Event(), bad, unseen})

			Convey("Then each item should stand on its own, in input order", func() {
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 3)
				So(items[0].Err, ShouldBeNil)
				So(items[0].Result.Label, ShouldEqual, model.LabelDelay)
				So(errors.Is(items[1].Err, features.ErrInputValidation), ShouldBeTrue)
				So(items[2].Err, ShouldBeNil)
				So(items[2].Result.Degraded, ShouldBeTrue)
			})
		})

		Convey("When the batch is empty", func() {
			items, err := s.PredictBatch(ctx, nil)

			Convey("Then nothing should be returned", func() {
				So(err, ShouldBeNil)
				So(items, ShouldBeEmpty)
			})
		})

		Convey("When the batch exceeds the cap", func() {
			events := make([]model.RawEvent, 4)
			_, err := s.PredictBatch(ctx, events)

			Convey("Then it should be refused whole", func() {
				So(errors.Is(err, service.ErrBatchTooLarge), ShouldBeTrue)
			})
		})
	})
}

func TestCutoffs_Tier(t *testing.T) {
	Convey("Given the default cutoffs and a 0.5 threshold", t, func() {
		c := service.DefaultCutoffs

		Convey("Then the margin should be normalized on each side", func() {
			So(c.Tier(0.9, 0.5, false), ShouldEqual, model.TierHigh)
			So(c.Tier(0.7, 0.5, false), ShouldEqual, model.TierMedium)
			So(c.Tier(0.55, 0.5, false), ShouldEqual, model.TierLow)
			So(c.Tier(0.1, 0.5, false), ShouldEqual, model.TierHigh)
			So(c.Tier(0.5, 0.5, false), ShouldEqual, model.TierLow)
		})

		Convey("Then a fallback should demote one step and floor at low", func() {
			So(c.Tier(0.9, 0.5, true), ShouldEqual, model.TierMedium)
			So(c.Tier(0.7, 0.5, true), ShouldEqual, model.TierLow)
			So(c.Tier(0.55, 0.5, true), ShouldEqual, model.TierLow)
		})
	})

	Convey("Given a skewed threshold", t, func() {
		c := service.DefaultCutoffs

		Convey("Then the room on each side should be respected", func() {
			// (0.95-0.8)/0.2 = 0.75
			So(c.Tier(0.95, 0.8, false), ShouldEqual, model.TierHigh)
			// (0.8-0.5)/0.8 = 0.375
			So(c.Tier(0.5, 0.8, false), ShouldEqual, model.TierMedium)
		})
	})
}
