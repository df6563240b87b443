package timestamp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	testTime   = time.Date(2023, 1, 15, 12, 30, 45, 123000000, time.UTC)
	testTimeMs = int64(1673785845123)
)

func TestToUnixMs(t *testing.T) {
	assert.Equal(t, testTimeMs, ToUnixMs(testTime))
	assert.Equal(t, int64(0), ToUnixMs(time.Time{}))
}

func TestFromUnixMs(t *testing.T) {
	assert.True(t, FromUnixMs(testTimeMs).Equal(testTime))
	assert.True(t, FromUnixMs(0).IsZero())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "2023-01-15T12:30:45.123Z", Format(testTime))
	assert.Equal(t, "", Format(time.Time{}))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected time.Time
	}{
		{"nil", nil, time.Time{}},
		{"rfc3339 nano", "2023-01-15T12:30:45.123Z", testTime},
		{"rfc3339 offset", "2023-01-15T14:30:45.123+02:00", testTime},
		{"milliseconds int64", testTimeMs, testTime},
		{"milliseconds float", float64(testTimeMs), testTime},
		{"seconds int", 1673785845, time.Unix(1673785845, 0).UTC()},
		{"json number", json.Number("1673785845123"), testTime},
		{"numeric string", "1673785845123", testTime},
		{"garbage", "yesterday", time.Time{}},
		{"unsupported type", struct{}{}, time.Time{}},
		{"time value", testTime, testTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			assert.True(t, got.Equal(tt.expected), "got %v, want %v", got, tt.expected)
		})
	}
}

func TestParse_RoundTripsFormat(t *testing.T) {
	assert.True(t, Parse(Format(testTime)).Equal(testTime))
}
