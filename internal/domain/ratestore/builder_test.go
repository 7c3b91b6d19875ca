package ratestore_test

import (
	"testing"

	"github.com/okian/delaycast/internal/domain/ratestore"
	. "github.com/smartystreets/goconvey/convey"
)

func fullKey(hour, day, stationName, line, code string) ratestore.Key {
	return ratestore.NewKey().
		With(ratestore.DimHour, hour).
		With(ratestore.DimDay, day).
		With(ratestore.DimStation, stationName).
		With(ratestore.DimLine, line).
		With(ratestore.DimCode, code)
}

func TestBuilder(t *testing.T) {
	Convey("Given a builder over the single dimensions and code+line", t, func() {
		b := ratestore.NewBuilder(
			ratestore.GroupingOf(ratestore.DimHour),
			ratestore.GroupingOf(ratestore.DimDay),
			ratestore.GroupingOf(ratestore.DimStation),
			ratestore.GroupingOf(ratestore.DimLine),
			ratestore.GroupingOf(ratestore.DimCode),
			ratestore.GroupingOf(ratestore.DimCode, ratestore.DimLine),
		)

		Convey("When observations are added", func() {
			b.Add(ratestore.Observation{Key: fullKey("8", "3", "KIPLING STATION", "BD", "MUSC"), Delayed: true})
			b.Add(ratestore.Observation{Key: fullKey("8", "3", "KIPLING STATION", "BD", "MUSC"), Delayed: false})
			b.Add(ratestore.Observation{Key: fullKey("9", "4", "UNION STATION", "YU", "MUSC"), Delayed: true})
			b.Add(ratestore.Observation{Key: fullKey("9", "4", "UNION STATION", "YU", "SUDP"), Delayed: true})
			data := b.Build()

			Convey("Then the global rate should cover every observation", func() {
				So(data.GlobalCount, ShouldEqual, 4)
				So(data.GlobalMean, ShouldEqual, 0.75)
				So(data.Version, ShouldEqual, ratestore.CurrentVersion)
			})

			Convey("And single dimension groups should be aggregated", func() {
				hours := data.Groups[ratestore.GroupingOf(ratestore.DimHour)]
				So(hours["8"], ShouldResemble, ratestore.Entry{Rate: 0.5, SampleCount: 2})
				So(hours["9"], ShouldResemble, ratestore.Entry{Rate: 1, SampleCount: 2})

				codes := data.Groups[ratestore.GroupingOf(ratestore.DimCode)]
				So(codes["MUSC"], ShouldResemble, ratestore.Entry{Rate: 2.0 / 3.0, SampleCount: 3})
			})

			Convey("And compound groups should use the canonical key encoding", func() {
				pairs := data.Groups[ratestore.GroupingOf(ratestore.DimCode, ratestore.DimLine)]
				So(pairs, ShouldContainKey, "BD|MUSC")
				So(pairs["BD|MUSC"].SampleCount, ShouldEqual, 2)
			})

			Convey("And the data should freeze into a valid table", func() {
				table, err := ratestore.NewTable(data, ratestore.WithMinSupport(1), ratestore.WithSmoothing(0))
				So(err, ShouldBeNil)
				So(table.Lookup(ratestore.NewKey().With(ratestore.DimHour, "9")), ShouldEqual, 1)
			})
		})

		Convey("When an observation lacks a grouping's dimension", func() {
			b.Add(ratestore.Observation{Key: ratestore.NewKey().With(ratestore.DimHour, "1"), Delayed: true})
			data := b.Build()

			Convey("Then only the covered groupings should count it", func() {
				So(data.Groups[ratestore.GroupingOf(ratestore.DimHour)], ShouldHaveLength, 1)
				So(data.Groups[ratestore.GroupingOf(ratestore.DimStation)], ShouldBeEmpty)
				So(data.GlobalCount, ShouldEqual, 1)
			})
		})

		Convey("When a value contains the key separator", func() {
			b.Add(ratestore.Observation{Key: fullKey("8", "3", "A|B", "BD", "MUSC"), Delayed: true})

			Convey("Then the observation should be skipped", func() {
				So(b.Skipped(), ShouldEqual, 1)
				So(b.Build().GlobalCount, ShouldEqual, 0)
			})
		})
	})
}

func TestGrouping(t *testing.T) {
	Convey("Given grouping names", t, func() {
		Convey("When parsing a compound name in any order", func() {
			g, err := ratestore.ParseGrouping("line+code")

			Convey("Then it should render canonically", func() {
				So(err, ShouldBeNil)
				So(g.String(), ShouldEqual, "line+code")
				So(g, ShouldEqual, ratestore.GroupingOf(ratestore.DimCode, ratestore.DimLine))
			})
		})

		Convey("When parsing an unknown dimension", func() {
			_, err := ratestore.ParseGrouping("weather")

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When parsing the global name", func() {
			g, err := ratestore.ParseGrouping("global")
			So(err, ShouldBeNil)
			So(g.Size(), ShouldEqual, 0)
		})
	})
}
