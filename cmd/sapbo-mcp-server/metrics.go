package main

import (
	"sync"
	"time"
)

// ─── Metrics ─────────────────────────────────────────────────────────────────

type metrics struct {
	mu       sync.Mutex
	total    int64
	success  int64
	failure  int64
	totalDur time.Duration
	perTool  map[string]int64
}

func newMetrics() *metrics {
	return &metrics{perTool: make(map[string]int64)}
}

func (m *metrics) record(tool string, dur time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.totalDur += dur
	if failed {
		m.failure++
	} else {
		m.success++
	}
	m.perTool[tool]++
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	var avg float64
	if m.total > 0 {
		avg = float64(m.totalDur.Milliseconds()) / float64(m.total)
	}
	pt := make(map[string]int64, len(m.perTool))
	for k, v := range m.perTool {
		pt[k] = v
	}
	return map[string]interface{}{
		"total":             m.total,
		"success":           m.success,
		"failure":           m.failure,
		"total_duration_ms": m.totalDur.Milliseconds(),
		"avg_duration_ms":   avg,
		"per_tool":          pt,
	}
}
