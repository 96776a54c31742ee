package tracking

import (
	"math"
	"time"
)

// smoother is a position filter. confidence in [0,1] scales how far a
// sample may pull the output.
type smoother interface {
	Smooth(x Vec2, confidence float64, ts time.Time) Vec2
	Reset()
}

// ema is an exponential moving average with a confidence-scaled weight.
type ema struct {
	alpha float64
	value Vec2
	init  bool
}

func (e *ema) Smooth(x Vec2, confidence float64, _ time.Time) Vec2 {
	if !e.init {
		e.value = x
		e.init = true
		return x
	}
	k := e.alpha * confidence
	e.value = e.value.Add(x.Sub(e.value).Scale(k))
	return e.value
}

func (e *ema) Reset() {
	*e = ema{alpha: e.alpha}
}

// lowPass is a single-axis first order low pass filter.
type lowPass struct {
	value float64
	init  bool
}

func (l *lowPass) filter(x, alpha float64) float64 {
	if !l.init {
		l.value = x
		l.init = true
		return x
	}
	l.value = alpha*x + (1-alpha)*l.value
	return l.value
}

// oneEuroAxis is the One Euro filter on one axis: the cutoff frequency
// rises with speed, so slow motion is smoothed hard and fast motion lags little.
type oneEuroAxis struct {
	minCutoff float64
	beta      float64
	dCutoff   float64

	x  lowPass
	dx lowPass
}

func (o *oneEuroAxis) filter(x, dt float64) float64 {
	if !o.x.init {
		o.dx.filter(0, 1)
		return o.x.filter(x, 1)
	}
	if dt <= 0 {
		return o.x.value
	}
	d := (x - o.x.value) / dt
	ed := o.dx.filter(d, smoothingAlpha(dt, o.dCutoff))
	cutoff := o.minCutoff + o.beta*math.Abs(ed)
	return o.x.filter(x, smoothingAlpha(dt, cutoff))
}

func smoothingAlpha(dt, cutoff float64) float64 {
	tau := 1 / (2 * math.Pi * cutoff)
	return 1 / (1 + tau/dt)
}

// oneEuro filters both axes. A low-confidence sample is first blended
// toward the previous output before it enters the filter.
type oneEuro struct {
	x, y     oneEuroAxis
	fallback time.Duration
	last     time.Time
	out      Vec2
	init     bool
}

func newOneEuro(cfg Config) *oneEuro {
	axis := oneEuroAxis{minCutoff: cfg.OneEuroMinCutoff, beta: cfg.OneEuroBeta, dCutoff: cfg.OneEuroDCutoff}
	return &oneEuro{x: axis, y: axis, fallback: cfg.FrameInterval}
}

func (o *oneEuro) Smooth(x Vec2, confidence float64, ts time.Time) Vec2 {
	if o.init {
		x = o.out.Add(x.Sub(o.out).Scale(confidence))
	}
	dt := o.fallback.Seconds()
	if o.init && !ts.IsZero() && !o.last.IsZero() {
		if d := ts.Sub(o.last).Seconds(); d > 0 {
			dt = d
		}
	}
	o.out = Vec2{o.x.filter(x.X, dt), o.y.filter(x.Y, dt)}
	o.last = ts
	o.init = true
	return o.out
}

func (o *oneEuro) Reset() {
	o.x.x, o.x.dx = lowPass{}, lowPass{}
	o.y.x, o.y.dx = lowPass{}, lowPass{}
	o.last = time.Time{}
	o.out = Vec2{}
	o.init = false
}

// Filter smooths one modality and tracks how much it can be trusted.
// Filters share no state, so a fault in one never affects another.
type Filter struct {
	kind         Modality
	smooth       smoother
	maxStaleness int

	signal   FilteredSignal
	lastConf float64
}

// NewFilter creates the filter for one modality
func NewFilter(kind Modality, config Config) *Filter {
	var s smoother
	switch config.Smoothing {
	case SmoothingOneEuro:
		s = newOneEuro(config)
	default:
		s = &ema{alpha: config.SmoothingAlpha}
	}
	maxStale := config.MaxStaleness
	if maxStale < 1 {
		maxStale = 1
	}
	return &Filter{
		kind:         kind,
		smooth:       s,
		maxStaleness: maxStale,
		signal:       FilteredSignal{Kind: kind},
	}
}

// Observe folds a fresh observation into the filter. It returns
// ErrFilterDiverged, and a zero-reliability signal, when the smoothed
// output stopped being finite; the filter is reset in that case.
func (f *Filter) Observe(obs Observation) (FilteredSignal, error) {
	pos := f.smooth.Smooth(obs.Position, obs.Confidence, obs.Timestamp)
	if !pos.Finite() {
		f.Reset()
		f.signal.Updated = obs.Timestamp
		return f.signal, ErrFilterDiverged
	}

	f.lastConf = obs.Confidence
	f.signal = FilteredSignal{
		Kind:        f.kind,
		Position:    pos,
		Reliability: obs.Confidence,
		Staleness:   0,
		Seen:        true,
		Features:    obs.Features,
		Updated:     obs.Timestamp,
	}
	return f.signal, nil
}

// Miss records a frame without an observation. Reliability decays
// linearly with staleness and reaches 0 at the max-staleness threshold.
// Position and features are held at their last values.
func (f *Filter) Miss() FilteredSignal {
	if !f.signal.Seen {
		return f.signal
	}
	f.signal.Staleness++
	decay := 1 - float64(f.signal.Staleness)/float64(f.maxStaleness)
	f.signal.Reliability = f.lastConf * math.Max(0, decay)
	return f.signal
}

// Signal returns the current filtered state.
func (f *Filter) Signal() FilteredSignal {
	return f.signal
}

// Reset forgets all history.
func (f *Filter) Reset() {
	f.smooth.Reset()
	f.lastConf = 0
	f.signal = FilteredSignal{Kind: f.kind}
}
