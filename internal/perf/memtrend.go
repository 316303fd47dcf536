package perf

import (
	"runtime"
	"sync"
	"time"
)

const memSampleCapacity = 60

type memSample struct {
	at time.Time
	mb float64
}

// MemoryTrend samples heap usage on a cadence managed by its caller (the
// cron scheduler, every 60s) and reports a least-squares slope in MB/min.
type MemoryTrend struct {
	mu      sync.Mutex
	samples []memSample
}

func NewMemoryTrend() *MemoryTrend {
	return &MemoryTrend{samples: make([]memSample, 0, memSampleCapacity)}
}

func (m *MemoryTrend) Sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	mb := float64(ms.HeapInuse) / (1024 * 1024)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, memSample{at: time.Now(), mb: mb})
	if len(m.samples) > memSampleCapacity {
		m.samples = m.samples[len(m.samples)-memSampleCapacity:]
	}
}

// SlopeMBPerMinute returns the least-squares slope of heap-MB over time, in
// MB per minute. Fewer than two samples yields 0.
func (m *MemoryTrend) SlopeMBPerMinute() float64 {
	m.mu.Lock()
	samples := make([]memSample, len(m.samples))
	copy(samples, m.samples)
	m.mu.Unlock()

	if len(samples) < 2 {
		return 0
	}

	base := samples[0].at
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(samples))
	for _, s := range samples {
		x := s.at.Sub(base).Minutes()
		y := s.mb
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// IsGrowing reports whether the slope exceeds the 5 MB/min threshold.
func (m *MemoryTrend) IsGrowing() bool {
	return m.SlopeMBPerMinute() > 5
}
