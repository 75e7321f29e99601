// Package timeutil converts between the textual timestamp conventions found
// in OHLCV files and UTC epoch seconds. Parsing never falls back to local
// time or DST rules; every accepted instant is interpreted with UTC
// calendar arithmetic.
package timeutil

import (
	"strconv"
	"strings"
	"time"

	"github.com/stockbt/stockbt/internal/types"
	"github.com/stockbt/stockbt/pkg/errors"
)

// calendarFields is a parsed-but-unvalidated timestamp.
type calendarFields struct {
	year   int
	month  int
	day    int
	hour   int
	minute int
	second int
}

func (f calendarFields) inRange() bool {
	// second 60 is tolerated for leap seconds and normalized by time.Date.
	return f.month >= 1 && f.month <= 12 &&
		f.day >= 1 && f.day <= 31 &&
		f.hour >= 0 && f.hour <= 23 &&
		f.minute >= 0 && f.minute <= 59 &&
		f.second >= 0 && f.second <= 60
}

func (f calendarFields) epochUTC() int64 {
	return time.Date(f.year, time.Month(f.month), f.day, f.hour, f.minute, f.second, 0, time.UTC).Unix()
}

// parseClock parses "HH:MM:SS" into the time fields of f.
func parseClock(text string, f *calendarFields) bool {
	parts := strings.Split(text, ":")
	if len(parts) != 3 {
		return false
	}

	values := make([]int, 3)

	for i, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil {
			return false
		}

		values[i] = value
	}

	f.hour, f.minute, f.second = values[0], values[1], values[2]

	return true
}

// splitDateAndClock separates "<date> HH:MM:SS" or "<date>THH:MM:SS" into
// its two halves. The clock half is empty when the text is date-only.
func splitDateAndClock(text string) (string, string) {
	if datePart, clockPart, found := strings.Cut(text, " "); found {
		return datePart, clockPart
	}

	if datePart, clockPart, found := strings.Cut(text, "T"); found {
		return datePart, clockPart
	}

	return text, ""
}

func parseISO(text string) (calendarFields, bool) {
	datePart, clockPart := splitDateAndClock(text)

	parts := strings.Split(datePart, "-")
	if len(parts) != 3 {
		return calendarFields{}, false
	}

	var f calendarFields

	var err error

	if f.year, err = strconv.Atoi(parts[0]); err != nil {
		return calendarFields{}, false
	}

	if f.month, err = strconv.Atoi(parts[1]); err != nil {
		return calendarFields{}, false
	}

	if f.day, err = strconv.Atoi(parts[2]); err != nil {
		return calendarFields{}, false
	}

	if clockPart != "" && !parseClock(clockPart, &f) {
		return calendarFields{}, false
	}

	return f, true
}

func parseSlash(text string, monthFirst bool) (calendarFields, bool) {
	datePart, clockPart := splitDateAndClock(text)

	parts := strings.Split(datePart, "/")
	if len(parts) != 3 {
		return calendarFields{}, false
	}

	a, errA := strconv.Atoi(parts[0])
	b, errB := strconv.Atoi(parts[1])
	year, errY := strconv.Atoi(parts[2])

	if errA != nil || errB != nil || errY != nil {
		return calendarFields{}, false
	}

	f := calendarFields{year: year}
	if monthFirst {
		f.month, f.day = a, b
	} else {
		f.month, f.day = b, a
	}

	if clockPart != "" && !parseClock(clockPart, &f) {
		return calendarFields{}, false
	}

	return f, true
}

func allDigits(text string) bool {
	for _, ch := range text {
		if ch < '0' || ch > '9' {
			return false
		}
	}

	return len(text) > 0
}

// ParseTimestamp parses text in the given convention into UTC epoch seconds.
// A missing time-of-day defaults to midnight. Malformed or out-of-range
// input fails; it is never silently defaulted.
func ParseTimestamp(text string, format types.DateFormat) (int64, error) {
	text = strings.TrimSpace(text)

	var (
		fields calendarFields
		ok     bool
	)

	switch format {
	case types.DateFormatISO:
		fields, ok = parseISO(text)
	case types.DateFormatMDY:
		fields, ok = parseSlash(text, true)
	case types.DateFormatDMY:
		fields, ok = parseSlash(text, false)
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidDateFormat, "unknown date format %q", format)
	}

	if !ok || !fields.inRange() {
		return 0, errors.Newf(errors.ErrCodeInvalidTimestamp, "invalid timestamp %q", text)
	}

	return fields.epochUTC(), nil
}

// ParseSplitDateTime combines a YYYYMMDD digit date and a HHMMSS digit time
// into one UTC instant.
func ParseSplitDateTime(dateText, timeText string) (int64, error) {
	dateText = strings.TrimSpace(dateText)
	timeText = strings.TrimSpace(timeText)

	if len(dateText) != 8 || !allDigits(dateText) || len(timeText) != 6 || !allDigits(timeText) {
		return 0, errors.Newf(errors.ErrCodeInvalidTimestamp, "invalid split date/time %q %q", dateText, timeText)
	}

	f := calendarFields{
		year:   mustAtoi(dateText[0:4]),
		month:  mustAtoi(dateText[4:6]),
		day:    mustAtoi(dateText[6:8]),
		hour:   mustAtoi(timeText[0:2]),
		minute: mustAtoi(timeText[2:4]),
		second: mustAtoi(timeText[4:6]),
	}

	if !f.inRange() {
		return 0, errors.Newf(errors.ErrCodeInvalidTimestamp, "invalid split date/time %q %q", dateText, timeText)
	}

	return f.epochUTC(), nil
}

// mustAtoi converts a digit-only substring; callers validate the input first.
func mustAtoi(text string) int {
	value, _ := strconv.Atoi(text)

	return value
}

// FormatTimestamp renders epoch seconds as canonical ISO-8601 UTC text,
// always "YYYY-MM-DDTHH:MM:SSZ". The same epoch always renders identically.
func FormatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02T15:04:05") + "Z"
}
