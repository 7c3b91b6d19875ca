package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewManager(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When a manager is created with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("pfx"),
				WithHistogramBuckets([]float64{1, 10}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			m.RecordInferenceError()

			Convey("Then metric names should carry the namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var names []string
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_pfx_inference_errors_total")
			})

			Convey("Then constant labels should be attached", func() {
				families, _ := registry.Gather()
				for _, f := range families {
					if f.GetName() != "test_unit_pfx_inference_errors_total" {
						continue
					}
					So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
				}
			})
		})

		Convey("When an empty namespace is passed", func() {
			m := NewManager(WithNamespace(""), WithPrometheusRegistry(registry))

			Convey("Then the default should be kept", func() {
				So(m.namespace, ShouldEqual, "delaycast")
			})
		})
	})
}

func TestManagerRecording(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

		Convey("When predictions are recorded", func() {
			m.RecordPrediction("delay", "high", 1.5)
			m.RecordPrediction("delay", "high", 2.5)
			m.RecordPrediction("no_delay", "low", 0.5)

			Convey("Then they should be counted by label and tier", func() {
				So(testutil.ToFloat64(m.predictions.WithLabelValues("delay", "high")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.predictions.WithLabelValues("no_delay", "low")), ShouldEqual, 1)
				So(testutil.CollectAndCount(m.predictionLatency), ShouldEqual, 1)
			})
		})

		Convey("When fallbacks are recorded", func() {
			m.RecordDegradedLookup("Station_DelayRate")
			m.RecordUnseenCategory("station")
			m.RecordUnseenCategory("station")
			m.RecordValidationError("time")

			Convey("Then they should be counted by feature and field", func() {
				So(testutil.ToFloat64(m.degradedLookups.WithLabelValues("Station_DelayRate")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.unseenCategories.WithLabelValues("station")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.validationErrors.WithLabelValues("time")), ShouldEqual, 1)
			})
		})

		Convey("When artifact info is updated twice", func() {
			m.UpdateArtifactInfo("v1", "features/v1", "1", 25, 100, 12)
			m.UpdateArtifactInfo("v2", "features/v1", "1", 25, 120, 10)

			Convey("Then only the latest versions should be reported", func() {
				So(testutil.CollectAndCount(m.artifactInfo), ShouldEqual, 1)
				So(testutil.ToFloat64(m.artifactInfo.WithLabelValues("v2", "features/v1", "1")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.rateStoreEntries), ShouldEqual, 120)
				So(testutil.ToFloat64(m.featureCount), ShouldEqual, 25)
			})
		})

		Convey("When worker jobs run", func() {
			m.WorkerStarted()
			m.WorkerStarted()
			m.WorkerFinished(1, nil)
			m.WorkerFinished(1, errors.New("failed"))

			Convey("Then the active gauge should return to zero and errors be counted", func() {
				So(testutil.ToFloat64(m.workerActiveCount), ShouldEqual, 0)
				So(testutil.ToFloat64(m.workerJobs), ShouldEqual, 2)
				So(testutil.ToFloat64(m.workerErrors), ShouldEqual, 1)
			})
		})

		Convey("When system metrics are sampled", func() {
			m.UpdateSystem()

			Convey("Then goroutines and memory should be non-zero", func() {
				So(testutil.ToFloat64(m.systemGoroutineCount), ShouldBeGreaterThan, 0)
				So(testutil.ToFloat64(m.systemMemoryUsage), ShouldBeGreaterThan, 0)
			})
		})
	})

	Convey("Given a disabled manager", t, func() {
		m := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(prometheus.NewRegistry()))

		Convey("When metrics are recorded", func() {
			m.RecordInferenceError()
			m.UpdateServiceState(2)

			Convey("Then nothing should change", func() {
				So(testutil.ToFloat64(m.inferenceErrors), ShouldEqual, 0)
				So(testutil.ToFloat64(m.serviceState), ShouldEqual, 0)
			})
		})
	})
}

func TestSystemCollector(t *testing.T) {
	Convey("Given a collector with a short interval", t, func() {
		m := NewManager(WithRefreshInterval(time.Millisecond), WithPrometheusRegistry(prometheus.NewRegistry()))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			m.RunSystemCollector(ctx)
			close(done)
		}()

		Convey("Then it should sample and stop on cancel", func() {
			So(func() {
				deadline := time.Now().Add(time.Second)
				for testutil.ToFloat64(m.systemGoroutineCount) == 0 && time.Now().Before(deadline) {
					time.Sleep(time.Millisecond)
				}
			}, ShouldNotPanic)
			So(testutil.ToFloat64(m.systemGoroutineCount), ShouldBeGreaterThan, 0)
			cancel()
			<-done
		})
	})
}

func TestGlobalMetricsConcurrency(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When many goroutines record at once", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					Default().RecordPrediction("delay", "medium", 1)
					Default().RecordDegradedLookup("Code_DelayRate")
					RecordHTTPRequest("/predict", "POST", "200", 2)
					RecordErrorByComponent("http", "client_error")
				}()
			}
			wg.Wait()

			Convey("Then the registry should still gather", func() {
				_, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(Default(), ShouldNotBeNil)
			})
		})
	})
}
