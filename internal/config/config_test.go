package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/okian/delaycast/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.SweepWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.MaxBatchSize, convey.ShouldEqual, 1000)
			convey.So(cfg.ConfidenceHighCutoff, convey.ShouldEqual, 0.6)
			convey.So(cfg.ConfidenceMediumCutoff, convey.ShouldEqual, 0.3)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a config with inverted confidence cutoffs", t, func() {
		cfg := config.New(context.Background())
		cfg.ConfidenceHighCutoff = 0.2
		cfg.ConfidenceMediumCutoff = 0.4

		convey.Convey("Then validation should fail", func() {
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
