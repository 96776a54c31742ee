package tracking

import (
	"fmt"
	"time"
)

// SmoothingMethod selects the per-modality position filter.
type SmoothingMethod string

const (
	SmoothingEMA     SmoothingMethod = "ema"
	SmoothingOneEuro SmoothingMethod = "one_euro"
)

// Region is a sub-rectangle of the camera image in normalized coordinates.
type Region struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Config holds all tunable parameters for the fusion and gesture engine
type Config struct {
	// Timing
	FrameInterval time.Duration // Expected cadence of the perception provider
	FrameTimeout  time.Duration // Wait this long for a frame before treating it as missing

	// Modalities
	HeadEnabled bool
	HandEnabled bool
	GazeEnabled bool
	HeadWeight  float64 // Manual weight multipliers
	HandWeight  float64
	GazeWeight  float64
	PrimaryGain float64 // Extra weight for the first eligible modality in the fallback chain

	// Normalization
	MirrorX        bool    // Flip horizontally (provider image is not mirrored)
	HeadRangeYaw   float64 // Degrees of yaw that reach the screen edge
	HeadRangePitch float64 // Degrees of pitch that reach the screen edge
	HeadGainX      float64
	HeadGainY      float64
	HandRegion     Region  // Active part of the camera image for the index fingertip
	GazeRangeX     float64 // Iris ratio span that covers the screen
	GazeRangeY     float64

	// Filters
	Smoothing        SmoothingMethod
	SmoothingAlpha   float64 // EMA weight of a full-confidence sample (0-1)
	OneEuroMinCutoff float64 // Hz
	OneEuroBeta      float64
	OneEuroDCutoff   float64 // Hz
	MaxStaleness     int     // Frames until reliability of a missing modality reaches 0

	// Fusion
	ReliabilityFloor float64 // Modalities below this are ignored
	DeadZone         float64 // Minimum cursor delta that is propagated
	MaxVelocity      float64 // Screen units per second
	LostFrames       int     // Consecutive frames with nothing eligible before tracking-lost

	// Pinch
	PinchEnabled       bool
	PinchThreshold     float64 // Pinch ratio below which fingers count as closed
	PinchHysteresis    float64 // Ratio must exceed threshold+hysteresis to release
	PinchConfirmFrames int
	DragHoldFrames     int // Held pinch frames before drag-start, 0 disables drag
	DoubleClickWindow  time.Duration

	// Blink
	BlinkEnabled       bool
	BlinkThreshold     float64 // Eye openness below which the eye counts as closed
	BlinkConfirmFrames int
	BlinkMinGap        time.Duration // Minimum time between blink clicks
	BlinkMaxDuration   time.Duration // Longer closures never click; 0 clicks while still closed

	// Dwell
	DwellEnabled  bool
	DwellDuration time.Duration
	DwellRadius   float64 // Allowed cursor spread while dwelling

	// Palm
	PalmEnabled bool
}

// DefaultConfig returns the recommended configuration for a 30 fps webcam
func DefaultConfig() Config {
	return Config{
		// Timing - 30 fps provider
		FrameInterval: 33 * time.Millisecond,
		FrameTimeout:  100 * time.Millisecond, // ~3 frames

		// Modalities - all on, hand preferred
		HeadEnabled: true,
		HandEnabled: true,
		GazeEnabled: true,
		HeadWeight:  1.0,
		HandWeight:  1.0,
		GazeWeight:  0.6, // Gaze is the noisiest signal
		PrimaryGain: 4.0,

		// Normalization
		HeadRangeYaw:   25, // ±25° covers the screen
		HeadRangePitch: 15,
		HeadGainX:      1.0,
		HeadGainY:      1.0,
		HandRegion:     Region{MinX: 0.1, MinY: 0.1, MaxX: 0.9, MaxY: 0.9},
		GazeRangeX:     0.3,
		GazeRangeY:     0.2,

		// Filters
		Smoothing:        SmoothingEMA,
		SmoothingAlpha:   0.5,
		OneEuroMinCutoff: 1.0,
		OneEuroBeta:      0.007,
		OneEuroDCutoff:   1.0,
		MaxStaleness:     10,

		// Fusion
		ReliabilityFloor: 0.3,
		DeadZone:         0.002, // ~4px on a 1920 wide screen
		MaxVelocity:      3.0,   // Three screen widths per second
		LostFrames:       15,    // Half a second

		// Pinch
		PinchEnabled:       true,
		PinchThreshold:     0.35,
		PinchHysteresis:    0.1,
		PinchConfirmFrames: 5,
		DragHoldFrames:     20,
		DoubleClickWindow:  400 * time.Millisecond,

		// Blink - fast confirm, long gap to ignore natural blinking
		BlinkEnabled:       true,
		BlinkThreshold:     0.2,
		BlinkConfirmFrames: 2,
		BlinkMinGap:        600 * time.Millisecond,
		BlinkMaxDuration:   400 * time.Millisecond,

		// Dwell
		DwellEnabled:  true,
		DwellDuration: 800 * time.Millisecond,
		DwellRadius:   0.015,

		// Palm
		PalmEnabled: true,
	}
}

// ResponsiveConfig returns a configuration with less smoothing and shorter debounce
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.SmoothingAlpha = 0.75
	cfg.DeadZone = 0.001
	cfg.MaxVelocity = 5.0
	cfg.PinchConfirmFrames = 3
	cfg.DwellDuration = 600 * time.Millisecond
	return cfg
}

// SteadyConfig returns a configuration for users with tremor: heavy smoothing,
// a wider deadzone and longer debounce windows
func SteadyConfig() Config {
	cfg := DefaultConfig()
	cfg.Smoothing = SmoothingOneEuro
	cfg.OneEuroMinCutoff = 0.5
	cfg.SmoothingAlpha = 0.3
	cfg.DeadZone = 0.006
	cfg.MaxVelocity = 2.0
	cfg.PinchConfirmFrames = 8
	cfg.DragHoldFrames = 30
	cfg.DwellDuration = 1200 * time.Millisecond
	cfg.DwellRadius = 0.025
	return cfg
}

// Preset returns a named preset: "default", "responsive" or "steady".
func Preset(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "responsive":
		return ResponsiveConfig(), nil
	case "steady":
		return SteadyConfig(), nil
	}
	return Config{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
}

// ClickMethods returns the click methods that can actually fire: the
// gesture is enabled and so is the modality it reads.
func (c Config) ClickMethods() []string {
	var methods []string
	if c.PinchEnabled && c.HandEnabled {
		methods = append(methods, "pinch")
	}
	if c.BlinkEnabled && c.GazeEnabled {
		methods = append(methods, "blink")
	}
	if c.DwellEnabled && (c.HeadEnabled || c.HandEnabled || c.GazeEnabled) {
		methods = append(methods, "dwell")
	}
	return methods
}

// Validate checks the configuration and returns ValidationErrors when any
// field is out of range.
func (c Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.FrameInterval <= 0 {
		add("frame_interval", "must be positive")
	}
	if c.FrameTimeout < c.FrameInterval {
		add("frame_timeout", "must be at least frame_interval (%s)", c.FrameInterval)
	}

	if !c.HeadEnabled && !c.HandEnabled && !c.GazeEnabled {
		add("modalities", "at least one of head, hand or gaze must be enabled")
	}
	if c.HeadWeight < 0 || c.HandWeight < 0 || c.GazeWeight < 0 {
		add("weights", "must not be negative")
	}
	if c.PrimaryGain < 1 {
		add("primary_gain", "must be at least 1")
	}

	if c.HeadRangeYaw <= 0 || c.HeadRangePitch <= 0 {
		add("head_range", "must be positive")
	}
	r := c.HandRegion
	if r.MinX < 0 || r.MinY < 0 || r.MaxX > 1 || r.MaxY > 1 || r.MaxX <= r.MinX || r.MaxY <= r.MinY {
		add("hand_region", "must be a non-empty rectangle inside [0,1]")
	}
	if c.GazeRangeX <= 0 || c.GazeRangeY <= 0 {
		add("gaze_range", "must be positive")
	}

	switch c.Smoothing {
	case SmoothingEMA, SmoothingOneEuro:
	default:
		add("smoothing", "unknown method %q", c.Smoothing)
	}
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		add("smoothing_alpha", "must be in (0, 1]")
	}
	if c.Smoothing == SmoothingOneEuro && (c.OneEuroMinCutoff <= 0 || c.OneEuroDCutoff <= 0 || c.OneEuroBeta < 0) {
		add("one_euro", "cutoffs must be positive and beta non-negative")
	}
	if c.MaxStaleness < 1 {
		add("max_staleness", "must be at least 1 frame")
	}

	if c.ReliabilityFloor <= 0 || c.ReliabilityFloor > 1 {
		add("reliability_floor", "must be in (0, 1]")
	}
	if c.DeadZone < 0 {
		add("dead_zone", "must not be negative")
	}
	if c.MaxVelocity <= 0 {
		add("max_velocity", "must be positive")
	}
	if c.LostFrames < 1 {
		add("lost_frames", "must be at least 1")
	}

	if c.PinchThreshold <= 0 {
		add("pinch_threshold", "must be positive")
	}
	if c.PinchHysteresis < 0 {
		add("pinch_hysteresis", "must not be negative")
	}
	if c.PinchConfirmFrames < 1 {
		add("pinch_confirm_frames", "must be at least 1")
	}
	if c.DragHoldFrames != 0 && c.DragHoldFrames <= c.PinchConfirmFrames {
		add("drag_hold_frames", "must exceed pinch_confirm_frames (%d) or be 0", c.PinchConfirmFrames)
	}
	if c.DoubleClickWindow < 0 {
		add("double_click_window", "must not be negative")
	}
	if c.BlinkThreshold <= 0 {
		add("blink_threshold", "must be positive")
	}
	if c.BlinkConfirmFrames < 1 {
		add("blink_confirm_frames", "must be at least 1")
	}
	if c.BlinkMinGap < 0 {
		add("blink_min_gap", "must not be negative")
	}
	if c.BlinkMaxDuration < 0 {
		add("blink_max_duration", "must not be negative")
	}
	if c.DwellDuration <= 0 {
		add("dwell_duration", "must be positive")
	}
	if c.DwellRadius <= 0 {
		add("dwell_radius", "must be positive")
	}

	if len(c.ClickMethods()) == 0 {
		add("click", "at least one click method (pinch, blink, dwell) must be enabled with its modality")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
