package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker stores recent duration samples and computes percentiles.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{maxSize: maxSize, samples: make([]time.Duration, 0, maxSize)}
}

// Observe records a new duration, overwriting the oldest sample once full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) < l.maxSize {
		l.samples = append(l.samples, d)
		return
	}
	l.samples[l.next] = d
	l.next = (l.next + 1) % l.maxSize
}

// Percentile returns the percentile (0-100) duration. Returns zero if no samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	sorted := append([]time.Duration(nil), l.samples...)
	l.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}

// Count returns number of samples recorded.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// StageLatencies keeps one tracker per named pipeline stage.
type StageLatencies struct {
	mu       sync.Mutex
	size     int
	trackers map[string]*LatencyTracker
}

// NewStageLatencies creates per-stage trackers holding size samples each.
func NewStageLatencies(size int) *StageLatencies {
	return &StageLatencies{size: size, trackers: make(map[string]*LatencyTracker)}
}

// Observe records d against stage.
func (s *StageLatencies) Observe(stage string, d time.Duration) {
	s.tracker(stage).Observe(d)
}

// P95 returns the stage's 95th percentile.
func (s *StageLatencies) P95(stage string) time.Duration {
	return s.tracker(stage).Percentile(95)
}

func (s *StageLatencies) tracker(stage string) *LatencyTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[stage]
	if !ok {
		t = NewLatencyTracker(s.size)
		s.trackers[stage] = t
	}
	return t
}
