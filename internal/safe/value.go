package safe

import (
	"math"
	"time"
)

// Uint64ToInt64 safely converts an uint64 value to int64, clamping to math.MaxInt64 if overflow
// would occur.
// Returns the converted value and a boolean indicating whether clamping occurred.
func Uint64ToInt64(val uint64) (int64, bool) {
	if val > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(val), false
}

// MillisToNanos converts fractional milliseconds to whole nanoseconds,
// clamping negative and NaN inputs to zero and huge ones to math.MaxInt64.
// Returns the converted value and a boolean indicating whether clamping occurred.
func MillisToNanos(ms float64) (int64, bool) {
	ns := ms * float64(time.Millisecond)
	switch {
	case math.IsNaN(ns) || ns < 0:
		return 0, true
	case ns >= math.MaxInt64:
		return math.MaxInt64, true
	}
	return int64(math.Round(ns)), false
}
