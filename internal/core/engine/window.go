package engine

import "time"

// window holds admission instants for one method, oldest first.
type window []time.Time

// prune drops instants that fall outside (now-Window, now].
func (w window) prune(now time.Time) window {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(w) && !w[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return w
	}
	return append(w[:0:0], w[i:]...)
}

// count returns the number of instants inside (now-Window, now] without
// modifying the window.
func (w window) count(now time.Time) int {
	cutoff := now.Add(-Window)
	n := 0
	for _, ts := range w {
		if ts.After(cutoff) && !ts.After(now) {
			n++
		}
	}
	return n
}

// waitFor returns how long until the oldest instant leaves the window.
func (w window) waitFor(now time.Time) time.Duration {
	if len(w) == 0 {
		return 0
	}
	wait := w[0].Add(Window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
