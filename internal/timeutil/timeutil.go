// Package timeutil normalises stored timestamps to epoch milliseconds and
// works with calendar dates in a user's timezone.
package timeutil

import (
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DateLayout is the calendar-date layout used for streak and activity days.
const DateLayout = "2006-01-02"

// epochSecondsCutoff separates raw epoch-seconds values from epoch-milliseconds
// values. Anything below it is read as seconds (covers dates up to year 5138).
const epochSecondsCutoff = 1e11

// Millis normalizes any timestamp representation found in store documents to
// epoch milliseconds. Supported forms: time.Time, *time.Time, BSON datetime and
// timestamp, integer or float epoch seconds/milliseconds, numeric strings,
// RFC3339 strings, and {seconds, nanoseconds} maps as written by mobile SDKs.
// Returns (0, false) for anything else.
func Millis(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case primitive.DateTime:
		return int64(t), true
	case primitive.Timestamp:
		return int64(t.T) * 1000, true
	case int:
		return fromNumber(float64(t))
	case int32:
		return fromNumber(float64(t))
	case int64:
		return fromNumber(float64(t))
	case float64:
		return fromNumber(t)
	case float32:
		return fromNumber(float64(t))
	case string:
		if t == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return fromNumber(f)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UnixMilli(), true
		}
		return 0, false
	case map[string]interface{}:
		return fromSecondsMap(t)
	case bson.M:
		return fromSecondsMap(map[string]interface{}(t))
	case bson.D:
		return fromSecondsMap(t.Map())
	}
	return 0, false
}

func fromNumber(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	if f < epochSecondsCutoff {
		return int64(f * 1000), true
	}
	return int64(f), true
}

func fromSecondsMap(m map[string]interface{}) (int64, bool) {
	secKey := "seconds"
	if _, ok := m[secKey]; !ok {
		secKey = "_seconds"
	}
	nanoKey := "nanoseconds"
	if _, ok := m[nanoKey]; !ok {
		nanoKey = "_nanoseconds"
	}
	sec, ok := toFloat(m[secKey])
	if !ok || sec <= 0 {
		return 0, false
	}
	nanos, _ := toFloat(m[nanoKey])
	return int64(sec*1000) + int64(nanos/1e6), true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// LoadLocation resolves an IANA timezone name, falling back to UTC when the
// name is empty or unknown.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ValidTimezone reports whether name is a loadable IANA zone.
func ValidTimezone(name string) bool {
	if name == "" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// DateIn returns the calendar date of t in loc.
func DateIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// DateOfMillis returns the calendar date of an epoch-ms instant in loc.
func DateOfMillis(ms int64, loc *time.Location) string {
	return DateIn(time.UnixMilli(ms), loc)
}

// AddDays shifts a calendar date string by n days. Invalid input is returned
// unchanged.
func AddDays(date string, n int) string {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, n).Format(DateLayout)
}

// DaysBetween returns the number of calendar days from a to b (b - a).
// ok is false if either date fails to parse.
func DaysBetween(a, b string) (int, bool) {
	da, err := time.Parse(DateLayout, a)
	if err != nil {
		return 0, false
	}
	db, err := time.Parse(DateLayout, b)
	if err != nil {
		return 0, false
	}
	return int(db.Sub(da).Hours() / 24), true
}
