package frame

import (
	"math"
	"time"
)

// Timestamp is the presentation time of a frame on the capture clock, or
// no time at all for frames that did not come from a timed source.
type Timestamp struct {
	d     time.Duration
	valid bool
}

// NoTimestamp is the zero Timestamp.
var NoTimestamp Timestamp

// At returns a valid timestamp at d on the capture clock.
func At(d time.Duration) Timestamp {
	return Timestamp{d: d, valid: true}
}

// Valid reports whether t carries a time.
func (t Timestamp) Valid() bool { return t.valid }

// Duration returns the time on the capture clock. It is zero for NoTimestamp.
func (t Timestamp) Duration() time.Duration { return t.d }

// Equal reports whether both timestamps are valid and identical, or both
// are NoTimestamp.
func (t Timestamp) Equal(u Timestamp) bool {
	return t.valid == u.valid && t.d == u.d
}

// After reports whether t is strictly later than u. NoTimestamp is never
// after anything, and every valid timestamp is after NoTimestamp.
func (t Timestamp) After(u Timestamp) bool {
	switch {
	case !t.valid:
		return false
	case !u.valid:
		return true
	default:
		return t.d > u.d
	}
}

// Sub returns t-u, or zero when either is NoTimestamp.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	if !t.valid || !u.valid {
		return 0
	}
	return t.d - u.d
}

// String returns the duration or "none".
func (t Timestamp) String() string {
	if !t.valid {
		return "none"
	}
	return t.d.String()
}

// noTimestampBits is the packed form of NoTimestamp.
const noTimestampBits = math.MinInt64

func (t Timestamp) pack() int64 {
	if !t.valid {
		return noTimestampBits
	}
	return int64(t.d)
}

func unpackTimestamp(v int64) Timestamp {
	if v == noTimestampBits {
		return NoTimestamp
	}
	return At(time.Duration(v))
}
