// Package metrics records pipeline throughput and latency, both as
// OpenTelemetry instruments and as an in-process rolling summary for the
// dashboard.
package metrics

import (
	"sync"
	"time"
)

// Snapshot summarizes recent pipeline performance.
type Snapshot struct {
	FPS            float64       `json:"fps"`
	AvgLatency     time.Duration `json:"avg_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
	Frames         uint64        `json:"frames"`
	Dropped        uint64        `json:"dropped"`
	Invalid        uint64        `json:"invalid"`
	Missed         uint64        `json:"missed"`
	Events         uint64        `json:"events"`
	InjectorErrors uint64        `json:"injector_errors"`
}

// Monitor keeps a rolling window of frame timings.
// It is goroutine-safe.
type Monitor struct {
	mu      sync.Mutex
	window  int
	stamps  []time.Time     // Processing time of recent frames
	latency []time.Duration // Processing latency of recent frames
	next    int
	filled  bool
	totals  Snapshot

	// Callback for periodic summaries
	onUpdate func(Snapshot)
	every    uint64
}

// NewMonitor creates a monitor averaging over the last window frames.
func NewMonitor(window int) *Monitor {
	if window < 2 {
		window = 2
	}
	return &Monitor{
		window:  window,
		stamps:  make([]time.Time, window),
		latency: make([]time.Duration, window),
	}
}

// OnUpdate sets a callback that fires every n frames with a fresh snapshot.
func (m *Monitor) OnUpdate(n int, fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 1 {
		n = 1
	}
	m.every = uint64(n)
	m.onUpdate = fn
}

// ObserveFrame records a processed frame finishing at now after latency.
func (m *Monitor) ObserveFrame(now time.Time, latency time.Duration) {
	m.mu.Lock()
	m.stamps[m.next] = now
	m.latency[m.next] = latency
	m.next = (m.next + 1) % m.window
	if m.next == 0 {
		m.filled = true
	}
	m.totals.Frames++

	var fn func(Snapshot)
	var snap Snapshot
	if m.onUpdate != nil && m.totals.Frames%m.every == 0 {
		fn = m.onUpdate
		snap = m.snapshotLocked()
	}
	m.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// AddDropped counts frames replaced in the handoff before processing.
func (m *Monitor) AddDropped(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.Dropped += n
}

// AddInvalid counts observations rejected by the normalizer.
func (m *Monitor) AddInvalid(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.Invalid += n
}

// AddMissed counts frame timeouts.
func (m *Monitor) AddMissed(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.Missed += n
}

// AddEvents counts dispatched events.
func (m *Monitor) AddEvents(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.Events += n
}

// AddInjectorError counts failed injections.
func (m *Monitor) AddInjectorError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.InjectorErrors++
}

// Snapshot returns the current summary.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// snapshotLocked computes the summary. Must be called with mutex held.
func (m *Monitor) snapshotLocked() Snapshot {
	snap := m.totals
	n := m.next
	if m.filled {
		n = m.window
	}
	if n == 0 {
		return snap
	}

	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += m.latency[i]
		if m.latency[i] > snap.MaxLatency {
			snap.MaxLatency = m.latency[i]
		}
	}
	snap.AvgLatency = sum / time.Duration(n)

	if n >= 2 {
		oldest := m.stamps[0]
		newest := m.stamps[n-1]
		if m.filled {
			oldest = m.stamps[m.next]
			newest = m.stamps[(m.next+m.window-1)%m.window]
		}
		if span := newest.Sub(oldest); span > 0 {
			snap.FPS = float64(n-1) / span.Seconds()
		}
	}
	return snap
}

// FormatLatency returns a one line summary for logs.
func (s Snapshot) FormatLatency() string {
	return formatDuration(s.AvgLatency) + " avg | " + formatDuration(s.MaxLatency) + " max"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Microsecond).String()
}
