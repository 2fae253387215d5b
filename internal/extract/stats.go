package extract

import (
	"slices"
	"sync"
	"time"
)

// Outcome classifies a finished generation call.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeRetryable Outcome = "retryable"
	OutcomeFailed    Outcome = "failed"
)

type call struct {
	at      time.Time
	latency time.Duration
	outcome Outcome
}

// StatsSnapshot aggregates the calls still inside the window. Latency figures
// cover successful calls only.
type StatsSnapshot struct {
	Count     int     `json:"count"`
	OK        int     `json:"ok"`
	Retryable int     `json:"retryable"`
	Failed    int     `json:"failed"`
	MinMs     int64   `json:"min_ms"`
	MaxMs     int64   `json:"max_ms"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
	P99Ms     float64 `json:"p99_ms"`
}

// LLMStats keeps a rolling window of generation calls.
type LLMStats struct {
	mu     sync.Mutex
	calls  []call
	window time.Duration
	now    func() time.Time
}

func NewLLMStats(window time.Duration) *LLMStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LLMStats{
		calls:  make([]call, 0, 256),
		window: window,
		now:    time.Now,
	}
}

// Record adds one call. Negative latencies count as zero.
func (s *LLMStats) Record(latency time.Duration, outcome Outcome) {
	latency = max(latency, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expireLocked(now)
	s.calls = append(s.calls, call{at: now, latency: latency, outcome: outcome})
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(s.now())

	var snap StatsSnapshot
	var ms []int64
	var sum int64
	for _, c := range s.calls {
		snap.Count++
		switch c.outcome {
		case OutcomeOK:
			snap.OK++
			ms = append(ms, c.latency.Milliseconds())
			sum += c.latency.Milliseconds()
		case OutcomeRetryable:
			snap.Retryable++
		default:
			snap.Failed++
		}
	}
	if len(ms) == 0 {
		return snap
	}

	slices.Sort(ms)
	snap.MinMs = ms[0]
	snap.MaxMs = ms[len(ms)-1]
	snap.AvgMs = float64(sum) / float64(len(ms))
	snap.P50Ms = percentile(ms, 50)
	snap.P95Ms = percentile(ms, 95)
	snap.P99Ms = percentile(ms, 99)
	return snap
}

// expireLocked drops calls older than the window. Calls arrive in time order.
func (s *LLMStats) expireLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.calls) && s.calls[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.calls = slices.Delete(s.calls, 0, i)
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}

	pos := float64(len(sorted)-1) * pct / 100
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}
