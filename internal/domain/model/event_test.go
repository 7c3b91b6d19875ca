package model_test

import (
	"testing"

	model "github.com/okian/delaycast/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfidenceTier_Demote(t *testing.T) {
	convey.Convey("Given the confidence tiers", t, func() {
		convey.Convey("When demoting high", func() {
			convey.So(model.TierHigh.Demote(), convey.ShouldEqual, model.TierMedium)
		})

		convey.Convey("When demoting medium", func() {
			convey.So(model.TierMedium.Demote(), convey.ShouldEqual, model.TierLow)
		})

		convey.Convey("When demoting low", func() {
			convey.Convey("Then it should stay low", func() {
				convey.So(model.TierLow.Demote(), convey.ShouldEqual, model.TierLow)
			})
		})

		convey.Convey("When demoting an unknown tier", func() {
			convey.So(model.ConfidenceTier("bogus").Demote(), convey.ShouldEqual, model.TierLow)
		})
	})
}

func TestRawEvent(t *testing.T) {
	convey.Convey("Given a zero RawEvent", t, func() {
		ev := model.RawEvent{}

		convey.Convey("Then every field should be empty", func() {
			convey.So(ev.Date, convey.ShouldBeEmpty)
			convey.So(ev.Time, convey.ShouldBeEmpty)
			convey.So(ev.Station, convey.ShouldBeEmpty)
			convey.So(ev.Line, convey.ShouldBeEmpty)
			convey.So(ev.Code, convey.ShouldBeEmpty)
			convey.So(ev.Direction, convey.ShouldBeEmpty)
		})
	})
}
