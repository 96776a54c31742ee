package engine

import (
	"time"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// TuningParams holds the parameters that can be adjusted while the engine
// runs, through the dashboard API. Zero numeric values and nil flags leave
// the current setting unchanged.
type TuningParams struct {
	Preset string `json:"preset,omitempty"` // Applied first, then the fields below

	// Filters
	Smoothing      string  `json:"smoothing,omitempty"`       // ema or one_euro
	SmoothingAlpha float64 `json:"smoothing_alpha,omitempty"` // EMA alpha (0.3=smooth, 0.7=responsive)
	OneEuroBeta    float64 `json:"one_euro_beta,omitempty"`

	// Fusion
	DeadZone         float64 `json:"dead_zone,omitempty"`
	MaxVelocity      float64 `json:"max_velocity,omitempty"` // Screen units per second
	ReliabilityFloor float64 `json:"reliability_floor,omitempty"`
	HeadGainX        float64 `json:"head_gain_x,omitempty"`
	HeadGainY        float64 `json:"head_gain_y,omitempty"`
	MirrorX          *bool   `json:"mirror_x,omitempty"`

	// Gestures
	PinchThreshold     float64 `json:"pinch_threshold,omitempty"`
	PinchConfirmFrames int     `json:"pinch_confirm_frames,omitempty"`
	BlinkThreshold     float64 `json:"blink_threshold,omitempty"`
	BlinkMaxMs         *int    `json:"blink_max_ms,omitempty"` // 0 clicks as soon as the blink confirms
	DwellDurationMs    int     `json:"dwell_duration_ms,omitempty"`
	DwellRadius        float64 `json:"dwell_radius,omitempty"`

	// Enable flags
	HeadEnabled  *bool `json:"head_enabled,omitempty"`
	HandEnabled  *bool `json:"hand_enabled,omitempty"`
	GazeEnabled  *bool `json:"gaze_enabled,omitempty"`
	PinchEnabled *bool `json:"pinch_enabled,omitempty"`
	BlinkEnabled *bool `json:"blink_enabled,omitempty"`
	DwellEnabled *bool `json:"dwell_enabled,omitempty"`
	PalmEnabled  *bool `json:"palm_enabled,omitempty"`
}

// Tuning returns the current tunables of cfg.
func Tuning(cfg tracking.Config) TuningParams {
	return TuningParams{
		Smoothing:          string(cfg.Smoothing),
		SmoothingAlpha:     cfg.SmoothingAlpha,
		OneEuroBeta:        cfg.OneEuroBeta,
		DeadZone:           cfg.DeadZone,
		MaxVelocity:        cfg.MaxVelocity,
		ReliabilityFloor:   cfg.ReliabilityFloor,
		HeadGainX:          cfg.HeadGainX,
		HeadGainY:          cfg.HeadGainY,
		MirrorX:            ptr(cfg.MirrorX),
		PinchThreshold:     cfg.PinchThreshold,
		PinchConfirmFrames: cfg.PinchConfirmFrames,
		BlinkThreshold:     cfg.BlinkThreshold,
		BlinkMaxMs:         ptrInt(int(cfg.BlinkMaxDuration / time.Millisecond)),
		DwellDurationMs:    int(cfg.DwellDuration / time.Millisecond),
		DwellRadius:        cfg.DwellRadius,
		HeadEnabled:        ptr(cfg.HeadEnabled),
		HandEnabled:        ptr(cfg.HandEnabled),
		GazeEnabled:        ptr(cfg.GazeEnabled),
		PinchEnabled:       ptr(cfg.PinchEnabled),
		BlinkEnabled:       ptr(cfg.BlinkEnabled),
		DwellEnabled:       ptr(cfg.DwellEnabled),
		PalmEnabled:        ptr(cfg.PalmEnabled),
	}
}

// Apply returns cfg with the set fields of p applied. The result is not
// validated; Engine.Reconfigure does that.
func (p TuningParams) Apply(cfg tracking.Config) (tracking.Config, error) {
	if p.Preset != "" {
		preset, err := tracking.Preset(p.Preset)
		if err != nil {
			return cfg, err
		}
		cfg = preset
	}

	if p.Smoothing != "" {
		cfg.Smoothing = tracking.SmoothingMethod(p.Smoothing)
	}
	if p.SmoothingAlpha > 0 {
		cfg.SmoothingAlpha = p.SmoothingAlpha
	}
	if p.OneEuroBeta > 0 {
		cfg.OneEuroBeta = p.OneEuroBeta
	}

	if p.DeadZone > 0 {
		cfg.DeadZone = p.DeadZone
	}
	if p.MaxVelocity > 0 {
		cfg.MaxVelocity = p.MaxVelocity
	}
	if p.ReliabilityFloor > 0 {
		cfg.ReliabilityFloor = p.ReliabilityFloor
	}
	if p.HeadGainX > 0 {
		cfg.HeadGainX = p.HeadGainX
	}
	if p.HeadGainY > 0 {
		cfg.HeadGainY = p.HeadGainY
	}
	setBool(&cfg.MirrorX, p.MirrorX)

	if p.PinchThreshold > 0 {
		cfg.PinchThreshold = p.PinchThreshold
	}
	if p.PinchConfirmFrames > 0 {
		cfg.PinchConfirmFrames = p.PinchConfirmFrames
	}
	if p.BlinkThreshold > 0 {
		cfg.BlinkThreshold = p.BlinkThreshold
	}
	if p.BlinkMaxMs != nil {
		cfg.BlinkMaxDuration = time.Duration(*p.BlinkMaxMs) * time.Millisecond
	}
	if p.DwellDurationMs > 0 {
		cfg.DwellDuration = time.Duration(p.DwellDurationMs) * time.Millisecond
	}
	if p.DwellRadius > 0 {
		cfg.DwellRadius = p.DwellRadius
	}

	setBool(&cfg.HeadEnabled, p.HeadEnabled)
	setBool(&cfg.HandEnabled, p.HandEnabled)
	setBool(&cfg.GazeEnabled, p.GazeEnabled)
	setBool(&cfg.PinchEnabled, p.PinchEnabled)
	setBool(&cfg.BlinkEnabled, p.BlinkEnabled)
	setBool(&cfg.DwellEnabled, p.DwellEnabled)
	setBool(&cfg.PalmEnabled, p.PalmEnabled)
	return cfg, nil
}

// ApplyTuning applies p on top of the active configuration.
func (e *Engine) ApplyTuning(p TuningParams) error {
	cfg, err := p.Apply(e.cfg)
	if err != nil {
		return err
	}
	return e.Reconfigure(cfg)
}

func ptr(b bool) *bool { return &b }

func ptrInt(v int) *int { return &v }

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
