package testevents

// HTTP status code constants.
const (
	StatusOK         = 200
	StatusBadRequest = 400
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	// probabilityTolerance absorbs JSON float formatting.
	probabilityTolerance = 1e-9
)

// Generator vocabulary. A share of stations is deliberately unknown to
// exercise the fallback path.
var (
	stations = []string{
		"BLOOR YONGE STATION", "UNION STATION", "FINCH STATION", "KENNEDY BD STATION",
		"ST GEORGE STATION", "KIPLING STATION", "EGLINTON STATION", "SHEPPARD WEST STATION",
		"NOWHERE STATION",
	}
	lines      = []string{"BD", "YU", "SHP", "SRT"}
	codes      = []string{"MUSC", "SUDP", "MUIS", "PUOPO", "TUSC", "MUPAA"}
	directions = []string{"N", "S", "E", "W"}
)
