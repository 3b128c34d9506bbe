package engine

import (
	"sort"
	"time"
)

// MethodStats describes one method's position against its budget.
type MethodStats struct {
	Method   string `json:"method"`
	Budget   int    `json:"budget"`
	InWindow int    `json:"in_window"`
	Queued   int    `json:"queued"`
}

// Stats is a point-in-time copy of scheduler state.
type Stats struct {
	QueueDepth  int           `json:"queue_depth"`
	PausedUntil time.Time     `json:"paused_until,omitzero"`
	Methods     []MethodStats `json:"methods"`
}

// Paused reports whether admission was paused when the snapshot was taken.
func (st Stats) Paused(now time.Time) bool {
	return st.PausedUntil.After(now)
}

// Snapshot returns the current queue depth, pause and per-method window
// usage. Methods are sorted by name; budgeted methods are always listed.
func (s *Scheduler) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	byMethod := make(map[string]*MethodStats, len(s.budgets))
	entry := func(method string) *MethodStats {
		ms, ok := byMethod[method]
		if !ok {
			ms = &MethodStats{Method: method}
			if limit, limited := s.budgets.Limit(method); limited {
				ms.Budget = limit
			}
			byMethod[method] = ms
		}
		return ms
	}

	for method := range s.budgets {
		entry(method)
	}
	for method, w := range s.windows {
		entry(method).InWindow = w.count(now)
	}
	if s.requeued != nil {
		entry(s.requeued.method).Queued++
	}
	for _, item := range s.queue {
		entry(item.method).Queued++
	}

	stats := Stats{
		QueueDepth: s.depth(),
		Methods:    make([]MethodStats, 0, len(byMethod)),
	}
	if s.pauseUntil.After(now) {
		stats.PausedUntil = s.pauseUntil
	}
	for _, ms := range byMethod {
		stats.Methods = append(stats.Methods, *ms)
	}
	sort.Slice(stats.Methods, func(i, j int) bool {
		return stats.Methods[i].Method < stats.Methods[j].Method
	})
	return stats
}
