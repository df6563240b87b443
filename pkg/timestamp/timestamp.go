// Package timestamp converts point timestamps between time.Time and the
// representations found on the wire.
//
// Points carry a time.Time. Producers publish it either as an RFC3339 string
// (with optional fractional seconds) or as a Unix number. Numbers greater than
// 1e12 are milliseconds, smaller numbers are seconds.
//
//	ts := timestamp.Parse("2024-03-01T10:00:00.250Z")
//	ts := timestamp.Parse(1709287200250)
//	s := timestamp.Format(ts)
package timestamp

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// msThreshold separates Unix seconds from Unix milliseconds (year 2001 in seconds).
const msThreshold = 1e12

// ToUnixMs converts a time.Time to Unix milliseconds. The zero time maps to 0.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time. 0 maps to the zero time.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Format renders t as RFC3339 with nanoseconds in UTC. The zero time renders empty.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Parse converts a decoded wire value into a time.Time.
// Supported inputs are RFC3339 strings, numeric strings, json.Number,
// integers, floats and time.Time. Anything else yields the zero time.
func Parse(input any) time.Time {
	switch v := input.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return v
	case *time.Time:
		if v == nil {
			return time.Time{}
		}
		return *v
	case int64:
		return fromNumber(float64(v), v)
	case int:
		return fromNumber(float64(v), int64(v))
	case float64:
		return fromNumber(v, int64(v))
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return fromNumber(float64(i), i)
		}
		if f, err := v.Float64(); err == nil {
			return fromNumber(f, int64(f))
		}
		return time.Time{}
	case string:
		return parseString(v)
	default:
		return time.Time{}
	}
}

func parseString(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return fromNumber(float64(i), i)
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return fromNumber(f, int64(f))
	}
	return time.Time{}
}

func fromNumber(f float64, i int64) time.Time {
	if i == 0 && f == 0 {
		return time.Time{}
	}
	if f > msThreshold {
		return time.UnixMilli(i).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
