package testevents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/delaycast/internal/adapters/http/api"
	service "github.com/okian/delaycast/internal/app"
	"github.com/okian/delaycast/internal/testfixtures"
	"github.com/okian/delaycast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		panic(err)
	}
}

// newServer serves the API over a service loaded with the test fixtures.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	bundle := service.Bundle{
		Rates:    testfixtures.RateData(),
		Snapshot: testfixtures.Snapshot(),
		Artifact: testfixtures.Artifact(),
	}
	svc := service.New(
		service.WithLoader(service.LoaderFunc(func(context.Context) (service.Bundle, error) { return bundle, nil })),
		service.WithLogger(logger.Nop()),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, api.WithLogger(logger.Nop())).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *Config {
	return &Config{
		BaseURL:    baseURL,
		NumEvents:  120,
		Workers:    4,
		Timeout:    5 * time.Second,
		Seed:       42,
		Verify:     6,
		OutputFile: filepath.Join(t.TempDir(), "events.json"),
	}
}

func TestGenerateEvents(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		cfg := &Config{NumEvents: 200, Seed: 9}

		Convey("When events are generated twice", func() {
			a := generateEvents(context.Background(), cfg, &Stats{})
			b := generateEvents(context.Background(), cfg, &Stats{})

			Convey("Then the sequences should be identical", func() {
				So(a, ShouldResemble, b)
			})

			Convey("Then every fiftieth event should be malformed", func() {
				invalid := 0
				for _, ev := range a {
					if !valid(ev) {
						invalid++
					}
				}
				So(invalid, ShouldEqual, 3)
				So(valid(a[0]), ShouldBeTrue)
				So(valid(a[50]), ShouldBeFalse)
			})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a ready prediction server", t, func() {
		srv := newServer(t)
		cfg := testConfig(t, srv.URL)

		Convey("When the test runs", func() {
			err := Run(context.Background(), cfg)

			Convey("Then every endpoint should agree", func() {
				So(err, ShouldBeNil)
			})

			Convey("Then the events should be saved", func() {
				data, err := os.ReadFile(cfg.OutputFile)
				So(err, ShouldBeNil)
				var saved []Event
				So(json.Unmarshal(data, &saved), ShouldBeNil)
				So(saved, ShouldHaveLength, cfg.NumEvents)
			})
		})
	})

	Convey("Given a server that failed to load", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"failed"}`))
		}))
		defer srv.Close()

		Convey("Then the test should stop at the readiness check", func() {
			err := Run(context.Background(), testConfig(t, srv.URL))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "readiness")
		})
	})
}

func TestSubmitEvents(t *testing.T) {
	Convey("Given a ready prediction server", t, func() {
		srv := newServer(t)
		cfg := testConfig(t, srv.URL)
		stats := &Stats{}
		events := generateEvents(context.Background(), cfg, stats)

		Convey("When the events are submitted", func() {
			results, err := submitEvents(context.Background(), cfg, events, stats)
			So(err, ShouldBeNil)

			Convey("Then malformed events should be rejected and the rest predicted", func() {
				So(stats.EventsSubmitted, ShouldEqual, 120)
				So(stats.EventsRejected, ShouldEqual, 2)
				So(stats.EventsSuccessful, ShouldEqual, 118)
				So(stats.EventsFailed, ShouldEqual, 0)
				So(checkOutcomes(events, results, stats), ShouldBeNil)
			})
		})
	})
}

func TestVerifyResults(t *testing.T) {
	Convey("Given predictions that disagree with the server", t, func() {
		srv := newServer(t)
		cfg := testConfig(t, srv.URL)
		stats := &Stats{}
		events := generateEvents(context.Background(), cfg, stats)[:3]
		results := []*Prediction{
			{Prediction: "delay", DelayProbability: 0.99, Confidence: "high"},
			{Prediction: "delay", DelayProbability: 0.99, Confidence: "high"},
			{Prediction: "delay", DelayProbability: 0.99, Confidence: "high"},
		}

		Convey("Then verification should fail on the batch comparison", func() {
			err := verifyResults(context.Background(), cfg, events, results, stats)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "batch")
		})
	})
}
