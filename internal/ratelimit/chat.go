package ratelimit

import (
	"sync"
	"time"
)

// ChatLimiter is an in-memory per-connection sliding window, grounded
// on the trim-on-arrival shape: no background sweep, the window is
// recomputed each time a message arrives and discarded entirely on
// disconnect. It is scoped to a connection's lifetime, so it carries
// no durability requirement and doesn't need Redis.
type ChatLimiter struct {
	mu         sync.Mutex
	events     map[string][]time.Time
	window     time.Duration
	maxPerWin  int
}

func NewChatLimiter(window time.Duration, maxPerWindow int) *ChatLimiter {
	return &ChatLimiter{
		events:    make(map[string][]time.Time),
		window:    window,
		maxPerWin: maxPerWindow,
	}
}

// Allow reports whether connectionId may send another chat message
// now, recording the attempt if so.
func (l *ChatLimiter) Allow(connectionId string, now time.Time) bool {
	if connectionId == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := now.Add(-l.window)
	events := l.events[connectionId]
	trimmed := events[:0]
	for _, ts := range events {
		if ts.After(windowStart) {
			trimmed = append(trimmed, ts)
		}
	}

	if len(trimmed) >= l.maxPerWin {
		l.events[connectionId] = append([]time.Time(nil), trimmed...)
		return false
	}

	trimmed = append(trimmed, now)
	l.events[connectionId] = append([]time.Time(nil), trimmed...)
	return true
}

// Clear drops connectionId's window, called on disconnect so the map
// doesn't accumulate entries for connections that have left.
func (l *ChatLimiter) Clear(connectionId string) {
	if connectionId == "" {
		return
	}
	l.mu.Lock()
	delete(l.events, connectionId)
	l.mu.Unlock()
}
