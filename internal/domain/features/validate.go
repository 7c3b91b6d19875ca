package features

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/okian/delaycast/internal/domain/model"
)

// Input layouts.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

const maxStationRunes = 128

var (
	lineFormat      = regexp.MustCompile(`^[A-Z0-9][A-Z0-9/ -]{0,15}$`)
	codeFormat      = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	directionFormat = regexp.MustCompile(`^[A-Z]$`)
)

// Event is a validated, normalized and parsed RawEvent.
type Event struct {
	Date      time.Time
	Hour      int
	Minute    int
	Station   string
	Line      string
	Code      string
	Direction string
}

// input carries the normalized raw strings through the validator.
type input struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time" validate:"required,datetime=15:04"`
	Station   string `json:"station" validate:"required,station"`
	Line      string `json:"line" validate:"required,linecode"`
	Code      string `json:"code" validate:"required,incidentcode"`
	Direction string `json:"direction" validate:"required,direction"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("station", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if utf8.RuneCountInString(s) > maxStationRunes {
			return false
		}
		for _, r := range s {
			if !unicode.IsPrint(r) {
				return false
			}
		}
		return true
	})
	must("linecode", func(fl validator.FieldLevel) bool { return lineFormat.MatchString(fl.Field().String()) })
	must("incidentcode", func(fl validator.FieldLevel) bool { return codeFormat.MatchString(fl.Field().String()) })
	must("direction", func(fl validator.FieldLevel) bool { return directionFormat.MatchString(fl.Field().String()) })
	return v
}

// checkEncoding rejects invalid UTF-8 before case folding would replace
// the bad bytes with U+FFFD.
func checkEncoding(ev model.RawEvent) error {
	fields := []struct{ name, value string }{
		{"date", ev.Date},
		{"time", ev.Time},
		{"station", ev.Station},
		{"line", ev.Line},
		{"code", ev.Code},
		{"direction", ev.Direction},
	}
	for _, f := range fields {
		if !utf8.ValidString(f.value) {
			return &ValidationError{Field: f.name, Value: f.value, Reason: "is not valid UTF-8"}
		}
	}
	return nil
}

func normalize(ev model.RawEvent) input {
	return input{
		Date:      strings.TrimSpace(ev.Date),
		Time:      strings.TrimSpace(ev.Time),
		Station:   strings.ToUpper(strings.Join(strings.Fields(ev.Station), " ")),
		Line:      strings.ToUpper(strings.TrimSpace(ev.Line)),
		Code:      strings.ToUpper(strings.TrimSpace(ev.Code)),
		Direction: strings.ToUpper(strings.TrimSpace(ev.Direction)),
	}
}

// Parse validates and normalizes a raw event. Well-formed values outside
// the training vocabulary are accepted; only malformed input fails, with a
// *ValidationError.
func Parse(ev model.RawEvent) (Event, error) {
	if err := checkEncoding(ev); err != nil {
		return Event{}, err
	}
	in := normalize(ev)
	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return Event{}, &ValidationError{
				Field:  fe.Field(),
				Value:  fe.Value().(string),
				Reason: reason(fe),
			}
		}
		return Event{}, &ValidationError{Field: "event", Reason: err.Error()}
	}

	date, err := time.Parse(DateLayout, in.Date)
	if err != nil {
		return Event{}, &ValidationError{Field: "date", Value: in.Date, Reason: err.Error()}
	}
	tod, err := time.Parse(TimeLayout, in.Time)
	if err != nil {
		return Event{}, &ValidationError{Field: "time", Value: in.Time, Reason: err.Error()}
	}
	return Event{
		Date:      date,
		Hour:      tod.Hour(),
		Minute:    tod.Minute(),
		Station:   in.Station,
		Line:      in.Line,
		Code:      in.Code,
		Direction: in.Direction,
	}, nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return "must match layout " + fe.Param()
	case "station":
		return "must be printable and at most 128 characters"
	case "linecode":
		return "must be 1-16 letters, digits, '/', '-' or spaces"
	case "incidentcode":
		return "must be 2-10 letters or digits"
	case "direction":
		return "must be a single letter"
	default:
		return "failed " + fe.Tag()
	}
}
