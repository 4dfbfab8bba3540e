package ai

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at         time.Time
	kind       string
	durationMs int64
	failed     bool
}

// StatsSnapshot aggregates the model calls seen within the window.
type StatsSnapshot struct {
	Count  int            `json:"count"`
	Errors int            `json:"errors"`
	ByKind map[string]int `json:"by_kind"`
	MinMs  int64          `json:"min_ms"`
	MaxMs  int64          `json:"max_ms"`
	AvgMs  float64        `json:"avg_ms"`
	P50Ms  float64        `json:"p50_ms"`
	P95Ms  float64        `json:"p95_ms"`
	P99Ms  float64        `json:"p99_ms"`
}

// LLMStats tracks recent model call latencies within a rolling window.
type LLMStats struct {
	mu         sync.Mutex
	samples    []sample
	maxAge     time.Duration
	maxSamples int
	now        func() time.Time
}

func NewLLMStats(maxAge time.Duration) *LLMStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LLMStats{
		samples:    make([]sample, 0, 256),
		maxAge:     maxAge,
		maxSamples: 10000,
		now:        time.Now,
	}
}

// Record adds one call. Negative durations are clamped to zero.
func (s *LLMStats) Record(kind string, durationMs int64, failed bool) {
	if durationMs < 0 {
		durationMs = 0
	}
	if kind == "" {
		kind = "other"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	if len(s.samples) >= s.maxSamples {
		s.samples = slices.Delete(s.samples, 0, len(s.samples)-s.maxSamples+1)
	}
	s.samples = append(s.samples, sample{at: now, kind: kind, durationMs: durationMs, failed: failed})
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())
	snap := StatsSnapshot{ByKind: map[string]int{}}
	if len(s.samples) == 0 {
		return snap
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		snap.ByKind[sm.kind]++
		if sm.failed {
			snap.Errors++
		}
	}
	slices.Sort(values)

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

// Samples are appended in time order, so expired ones form a prefix.
func (s *LLMStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = slices.Delete(s.samples, 0, i)
	}
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo := float64(sorted[lower])
	hi := float64(sorted[lower+1])
	return lo + (hi-lo)*weight
}
