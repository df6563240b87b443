package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/c360/fr-service/point"
)

// FixedTime is the timestamp stamped on fixture points.
var FixedTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// IntPoint returns an Ok Int point stamped with FixedTime.
func IntPoint(name string, v int64) point.Point {
	return point.NewInt(name, v).WithTimestamp(FixedTime)
}

// DoublePoint returns an Ok Double point stamped with FixedTime.
func DoublePoint(name string, v float64) point.Point {
	return point.NewDouble(name, v).WithTimestamp(FixedTime)
}

// BoolPoint returns an Ok Bool point stamped with FixedTime.
func BoolPoint(name string, v bool) point.Point {
	return point.NewBool(name, v).WithTimestamp(FixedTime)
}

// PublishPoint encodes p and publishes it on subject.
func PublishPoint(t testing.TB, client *MockNATSClient, subject string, p point.Point) {
	t.Helper()
	data, err := point.Encode(p)
	if err != nil {
		t.Fatalf("encode %s: %v", p.Name, err)
	}
	if err := client.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("publish %s: %v", subject, err)
	}
}

// DecodePoints decodes every message, failing the test on the first error.
func DecodePoints(t testing.TB, msgs [][]byte) []point.Point {
	t.Helper()
	points := make([]point.Point, 0, len(msgs))
	for _, msg := range msgs {
		p, err := point.Decode(msg)
		if err != nil {
			t.Fatalf("decode %q: %v", msg, err)
		}
		points = append(points, p)
	}
	return points
}
