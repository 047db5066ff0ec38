package realtime

import (
	"sync"
	"time"
)

// SlidingWindow admits at most limit events in any rolling window.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events []time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, window: window}
}

func (v *SlidingWindow) Allow(now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := now.Add(-v.window)
	kept := v.events[:0]
	for _, at := range v.events {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	v.events = kept

	if len(v.events) >= v.limit {
		return false
	}
	v.events = append(v.events, now)
	return true
}
