package model

import "time"

// Timestamp is an opaque epoch value in nanoseconds, UTC.
// It stays an integer through storage and computation; Time() is for display only.
type Timestamp int64

const nanosPerMilli = int64(time.Millisecond)

// FromMillis converts exchange millisecond timestamps.
func FromMillis(ms int64) Timestamp {
	return Timestamp(ms * nanosPerMilli)
}

// Millis truncates to milliseconds, the exchange cursor resolution.
func (t Timestamp) Millis() int64 {
	return int64(t) / nanosPerMilli
}

// Time converts to a UTC time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// String formats as RFC3339 in UTC.
func (t Timestamp) String() string {
	return t.Time().Format(time.RFC3339)
}
