package training_test

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/okian/delaycast/internal/domain/features"
	"github.com/okian/delaycast/internal/domain/model"
	"github.com/okian/delaycast/internal/domain/ratestore"
	"github.com/okian/delaycast/internal/training"
	. "github.com/smartystreets/goconvey/convey"
)

const incidentLog = `Date,Time,Day,Station,Code,Min Delay,Min Gap,Bound,Line,Vehicle
2024-01-15,08:30,Monday,BLOOR YONGE STATION,MUSC,4,8,W,BD,5001
2024-01-15,08:45,Monday,BLOOR YONGE STATION,MUSC,0,0,W,BD,5002
2024-01-16 00:00:00,17:10,Tuesday,union station,SUDP,6,10,s,YU,5003
2024-01-16,09:05,Tuesday,FINCH STATION,SUDP,0,0,S,YU,5004
2024-01-16,25:99,Tuesday,FINCH STATION,SUDP,3,6,S,YU,5005
2024-01-17,10:00,Wednesday,KENNEDY BD STATION,MUSC,,0,E,BD,5006
2024-01-17,11:00,Wednesday,,MUSC,2,4,E,BD,5007
`

func readLog(t *testing.T) ([]training.Incident, training.ReadStats) {
	t.Helper()
	inc, stats, err := training.ReadIncidents(strings.NewReader(incidentLog))
	if err != nil {
		t.Fatal(err)
	}
	return inc, stats
}

func incident(station, line, dir string, delayed bool) training.Incident {
	ev, err := features.Parse(model.RawEvent{
		Date: "2024-01-15", Time: "08:00", Station: station, Line: line, Code: "MUSC", Direction: dir,
	})
	if err != nil {
		panic(err)
	}
	return training.Incident{Event: ev, Delayed: delayed}
}

func TestReadIncidents(t *testing.T) {
	Convey("Given an incident log with some bad rows", t, func() {
		inc, stats := readLog(t)

		Convey("Then good rows should be parsed and normalized", func() {
			So(inc, ShouldHaveLength, 4)
			So(inc[0].Delayed, ShouldBeTrue)
			So(inc[1].Delayed, ShouldBeFalse)
			So(inc[2].Event.Station, ShouldEqual, "UNION STATION")
			So(inc[2].Event.Direction, ShouldEqual, "S")
			So(inc[2].Event.Hour, ShouldEqual, 17)
		})

		Convey("Then bad rows should be counted by field", func() {
			So(stats.Rows, ShouldEqual, 7)
			So(stats.Skipped, ShouldEqual, 3)
			So(stats.Reasons["time"], ShouldEqual, 1)
			So(stats.Reasons["min_delay"], ShouldEqual, 1)
			So(stats.Reasons["station"], ShouldEqual, 1)
		})
	})

	Convey("Given a log without a Min Delay column", t, func() {
		_, _, err := training.ReadIncidents(strings.NewReader("Date,Time,Station,Code,Bound,Line\n"))

		Convey("Then it should be refused", func() {
			So(errors.Is(err, training.ErrMissingColumn), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "Min Delay")
		})
	})

	Convey("Given an empty input", t, func() {
		_, _, err := training.ReadIncidents(strings.NewReader(""))

		Convey("Then it should be refused", func() {
			So(errors.Is(err, training.ErrMissingColumn), ShouldBeTrue)
		})
	})
}

func TestBuildVocabularies(t *testing.T) {
	Convey("Given incidents across stations of uneven frequency", t, func() {
		inc := []training.Incident{
			incident("B STATION", "YU", "N", false),
			incident("B STATION", "YU", "N", true),
			incident("A STATION", "BD", "W", false),
			incident("C STATION", "BD", "E", false),
			incident("C STATION", "BD", "E", true),
			incident("D STATION", "SHP", "W", true),
		}

		Convey("When the top two stations are kept", func() {
			v := training.BuildVocabularies(inc, 2)

			Convey("Then frequency should rank first and name break ties", func() {
				So(v.Station, ShouldResemble, []string{"B STATION", "C STATION"})
			})

			Convey("Then lines and directions should be sorted and distinct", func() {
				So(v.Line, ShouldResemble, []string{"BD", "SHP", "YU"})
				So(v.Direction, ShouldResemble, []string{"E", "N", "W"})
			})
		})
	})
}

func TestBuild(t *testing.T) {
	Convey("Given the parsed incident log", t, func() {
		inc, _ := readLog(t)

		Convey("When the artifacts are built", func() {
			out, err := training.Build(inc, training.DefaultOptions("2024.01"))
			So(err, ShouldBeNil)

			Convey("Then the rate store should hold observed rates", func() {
				So(out.Rates.GlobalCount, ShouldEqual, 4)
				So(out.Rates.GlobalMean, ShouldEqual, 0.5)
				station := out.Rates.Groups[ratestore.GroupingOf(ratestore.DimStation)]
				So(station["BLOOR YONGE STATION"], ShouldResemble, ratestore.Entry{Rate: 0.5, SampleCount: 2})
				lineCode := out.Rates.Groups[ratestore.GroupingOf(ratestore.DimLine, ratestore.DimCode)]
				So(lineCode["YU|SUDP"], ShouldResemble, ratestore.Entry{Rate: 0.5, SampleCount: 2})
				So(out.Skipped, ShouldEqual, 0)
			})

			Convey("Then the snapshot should agree with the rate store", func() {
				So(out.Snapshot.Validate(), ShouldBeNil)
				So(out.Snapshot.ArtifactVersion, ShouldEqual, "2024.01")
				So(out.Snapshot.RateStoreVersion, ShouldEqual, out.Rates.Version)
				So(out.Snapshot.FallbackDefaults.GlobalRate, ShouldEqual, 0.5)
				So(out.Snapshot.FeatureOrder, ShouldResemble, features.DefaultOrder)
				So(out.Transformer.Names(), ShouldResemble, features.DefaultOrder)
			})

			Convey("Then the matrix should use the serving transformer", func() {
				var buf bytes.Buffer
				n, err := training.WriteMatrix(&buf, out.Transformer, inc)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 4)

				rows, err := csv.NewReader(&buf).ReadAll()
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 5)
				So(rows[0][len(rows[0])-1], ShouldEqual, training.LabelColumn)
				So(rows[0][:len(rows[0])-1], ShouldResemble, features.DefaultOrder)
				So(rows[1][len(rows[1])-1], ShouldEqual, "1")
				So(rows[2][len(rows[2])-1], ShouldEqual, "0")
			})
		})

		Convey("When the options are invalid", func() {
			opts := training.DefaultOptions("")
			_, err := training.Build(inc, opts)

			Convey("Then the build should be refused", func() {
				So(errors.Is(err, training.ErrInvalidOptions), ShouldBeTrue)
			})
		})

		Convey("When there are no incidents", func() {
			_, err := training.Build(nil, training.DefaultOptions("2024.01"))

			Convey("Then the build should be refused", func() {
				So(errors.Is(err, training.ErrNoIncidents), ShouldBeTrue)
			})
		})

		Convey("When the feature order names an unknown feature", func() {
			opts := training.DefaultOptions("2024.01")
			opts.FeatureOrder = []string{features.FeatHour, "Weather"}
			_, err := training.Build(inc, opts)

			Convey("Then the transformer should refuse it", func() {
				So(errors.Is(err, features.ErrUnknownFeature), ShouldBeTrue)
			})
		})
	})
}
