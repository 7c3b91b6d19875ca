package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given logger initialization", t, func() {
		Convey("When the default text format is used", func() {
			var buf bytes.Buffer
			So(Init(WithOutput(&buf)), ShouldBeNil)
			Get().Info(context.Background(), "loaded", String("artifact", "v1"))

			Convey("Then a text line should be written", func() {
				So(buf.String(), ShouldContainSubstring, "msg=loaded")
				So(buf.String(), ShouldContainSubstring, "artifact=v1")
			})
		})

		Convey("When the json format is used", func() {
			var buf bytes.Buffer
			So(Init(WithFormat("json"), WithOutput(&buf)), ShouldBeNil)
			Get().Warn(context.Background(), "degraded",
				Bool("degraded", true),
				Int("features", 25),
				Duration("took", time.Millisecond),
				Strings("unseen", []string{"station"}),
				Error(errors.New("boom")),
			)

			Convey("Then the line should be valid JSON with typed fields", func() {
				var rec map[string]any
				So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)
				So(rec["msg"], ShouldEqual, "degraded")
				So(rec["degraded"], ShouldEqual, true)
				So(rec["features"], ShouldEqual, 25)
				So(rec["error"], ShouldEqual, "boom")
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When an unknown format is requested", func() {
			err := Init(WithFormat("xml"))

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerLevels(t *testing.T) {
	Convey("Given an initialized logger", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)

		Convey("When the level is raised to warn", func() {
			So(SetLevelString("WARN"), ShouldBeNil)
			Get().Info(context.Background(), "hidden")
			Get().Warn(context.Background(), "shown")

			Convey("Then info should be suppressed", func() {
				So(buf.String(), ShouldNotContainSubstring, "hidden")
				So(buf.String(), ShouldContainSubstring, "shown")
			})
		})

		Convey("When an unknown level is set", func() {
			Convey("Then it should be rejected", func() {
				So(SetLevelString("loud"), ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerNamed(t *testing.T) {
	Convey("Given a named logger", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)
		Named("service").Info(context.Background(), "ready", String("state", "ready"))

		Convey("Then its fields should be grouped under the name", func() {
			So(buf.String(), ShouldContainSubstring, "service.state=ready")
		})
	})

	Convey("Given the nop logger", t, func() {
		Convey("Then logging should not panic", func() {
			So(func() { Nop().Named("x").Error(context.Background(), "dropped") }, ShouldNotPanic)
		})
	})
}
