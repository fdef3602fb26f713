package pipeline

import (
	"sync"
	"time"
)

// ProgressFunc receives progress updates as a 0-100 percentage and a short
// human-readable message.
type ProgressFunc func(percent float64, message string)

// Throttle wraps a ProgressFunc so it fires at most once per minInterval.
// Completion (100%) is always delivered.
func Throttle(fn ProgressFunc, minInterval time.Duration) ProgressFunc {
	if fn == nil {
		return func(float64, string) {}
	}

	var mu sync.Mutex
	var last time.Time

	return func(percent float64, message string) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if percent >= 100 || now.Sub(last) > minInterval {
			last = now
			fn(percent, message)
		}
	}
}
