package internal

import "time"

// throttle limits how often a manual action may fire within a sliding window.
type throttle struct {
	limit  int
	window time.Duration
	now    func() time.Time
	fired  map[string][]time.Time
}

func newThrottle(limit int, window time.Duration) *throttle {
	return &throttle{
		limit:  limit,
		window: window,
		now:    time.Now,
		fired:  make(map[string][]time.Time),
	}
}

// allow records an attempt for action and reports whether it may proceed.
func (t *throttle) allow(action string) bool {
	now := t.now()
	cutoff := now.Add(-t.window)
	recent := t.fired[action][:0]
	for _, at := range t.fired[action] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	if len(recent) >= t.limit {
		t.fired[action] = recent
		return false
	}
	t.fired[action] = append(recent, now)
	return true
}
