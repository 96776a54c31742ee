package calibration

import (
	"sync"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// GridTargets returns an n x n grid of screen targets inset by margin,
// row by row. n < 2 yields the single center point.
func GridTargets(n int, margin float64) []tracking.Vec2 {
	if n < 2 {
		return []tracking.Vec2{{X: 0.5, Y: 0.5}}
	}
	step := (1 - 2*margin) / float64(n-1)
	out := make([]tracking.Vec2, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			out = append(out, tracking.Vec2{X: margin + float64(col)*step, Y: margin + float64(row)*step})
		}
	}
	return out
}

// Session collects raw gaze samples for each target and fits a transform.
// Several samples per target are averaged before fitting. Safe for
// concurrent use.
type Session struct {
	mu      sync.Mutex
	targets []tracking.Vec2
	sums    []tracking.Vec2
	counts  []int
}

// NewSession starts a session for the given targets.
func NewSession(targets []tracking.Vec2) *Session {
	return &Session{
		targets: append([]tracking.Vec2(nil), targets...),
		sums:    make([]tracking.Vec2, len(targets)),
		counts:  make([]int, len(targets)),
	}
}

// Targets returns the session's screen targets.
func (s *Session) Targets() []tracking.Vec2 {
	return append([]tracking.Vec2(nil), s.targets...)
}

// Add records a raw gaze sample taken while the user looked at target i.
// Out of range indices and non-finite samples are ignored.
func (s *Session) Add(i int, raw tracking.Vec2) bool {
	if !raw.Finite() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.targets) {
		return false
	}
	s.sums[i] = s.sums[i].Add(raw)
	s.counts[i]++
	return true
}

// Points returns the averaged point pairs for every target with samples.
func (s *Session) Points() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Point
	for i, c := range s.counts {
		if c == 0 {
			continue
		}
		out = append(out, Point{Raw: s.sums[i].Scale(1 / float64(c)), Target: s.targets[i]})
	}
	return out
}

// Compute fits the transform over the collected points.
func (s *Session) Compute() (Affine, float64, error) {
	return Fit(s.Points())
}

// Reset discards all samples.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.counts {
		s.sums[i] = tracking.Vec2{}
		s.counts[i] = 0
	}
}
