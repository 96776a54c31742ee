package config

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// TrackingConfig overrides fields of a tracking preset. Nil fields keep
// the preset's value, so partial files are safe. Durations are strings
// such as "33ms" or "1.2s".
type TrackingConfig struct {
	Preset string `json:"preset,omitempty" yaml:"preset,omitempty" toml:"preset,omitempty"`

	FrameInterval *string `json:"frame_interval,omitempty" yaml:"frame_interval,omitempty" toml:"frame_interval,omitempty"`
	FrameTimeout  *string `json:"frame_timeout,omitempty" yaml:"frame_timeout,omitempty" toml:"frame_timeout,omitempty"`

	HeadEnabled *bool    `json:"head_enabled,omitempty" yaml:"head_enabled,omitempty" toml:"head_enabled,omitempty"`
	HandEnabled *bool    `json:"hand_enabled,omitempty" yaml:"hand_enabled,omitempty" toml:"hand_enabled,omitempty"`
	GazeEnabled *bool    `json:"gaze_enabled,omitempty" yaml:"gaze_enabled,omitempty" toml:"gaze_enabled,omitempty"`
	HeadWeight  *float64 `json:"head_weight,omitempty" yaml:"head_weight,omitempty" toml:"head_weight,omitempty"`
	HandWeight  *float64 `json:"hand_weight,omitempty" yaml:"hand_weight,omitempty" toml:"hand_weight,omitempty"`
	GazeWeight  *float64 `json:"gaze_weight,omitempty" yaml:"gaze_weight,omitempty" toml:"gaze_weight,omitempty"`
	PrimaryGain *float64 `json:"primary_gain,omitempty" yaml:"primary_gain,omitempty" toml:"primary_gain,omitempty"`

	MirrorX        *bool         `json:"mirror_x,omitempty" yaml:"mirror_x,omitempty" toml:"mirror_x,omitempty"`
	HeadRangeYaw   *float64      `json:"head_range_yaw,omitempty" yaml:"head_range_yaw,omitempty" toml:"head_range_yaw,omitempty"`
	HeadRangePitch *float64      `json:"head_range_pitch,omitempty" yaml:"head_range_pitch,omitempty" toml:"head_range_pitch,omitempty"`
	HeadGainX      *float64      `json:"head_gain_x,omitempty" yaml:"head_gain_x,omitempty" toml:"head_gain_x,omitempty"`
	HeadGainY      *float64      `json:"head_gain_y,omitempty" yaml:"head_gain_y,omitempty" toml:"head_gain_y,omitempty"`
	HandRegion     *RegionConfig `json:"hand_region,omitempty" yaml:"hand_region,omitempty" toml:"hand_region,omitempty"`
	GazeRangeX     *float64      `json:"gaze_range_x,omitempty" yaml:"gaze_range_x,omitempty" toml:"gaze_range_x,omitempty"`
	GazeRangeY     *float64      `json:"gaze_range_y,omitempty" yaml:"gaze_range_y,omitempty" toml:"gaze_range_y,omitempty"`

	Smoothing        *string  `json:"smoothing,omitempty" yaml:"smoothing,omitempty" toml:"smoothing,omitempty"`
	SmoothingAlpha   *float64 `json:"smoothing_alpha,omitempty" yaml:"smoothing_alpha,omitempty" toml:"smoothing_alpha,omitempty"`
	OneEuroMinCutoff *float64 `json:"one_euro_min_cutoff,omitempty" yaml:"one_euro_min_cutoff,omitempty" toml:"one_euro_min_cutoff,omitempty"`
	OneEuroBeta      *float64 `json:"one_euro_beta,omitempty" yaml:"one_euro_beta,omitempty" toml:"one_euro_beta,omitempty"`
	OneEuroDCutoff   *float64 `json:"one_euro_d_cutoff,omitempty" yaml:"one_euro_d_cutoff,omitempty" toml:"one_euro_d_cutoff,omitempty"`
	MaxStaleness     *int     `json:"max_staleness,omitempty" yaml:"max_staleness,omitempty" toml:"max_staleness,omitempty"`

	ReliabilityFloor *float64 `json:"reliability_floor,omitempty" yaml:"reliability_floor,omitempty" toml:"reliability_floor,omitempty"`
	DeadZone         *float64 `json:"dead_zone,omitempty" yaml:"dead_zone,omitempty" toml:"dead_zone,omitempty"`
	MaxVelocity      *float64 `json:"max_velocity,omitempty" yaml:"max_velocity,omitempty" toml:"max_velocity,omitempty"`
	LostFrames       *int     `json:"lost_frames,omitempty" yaml:"lost_frames,omitempty" toml:"lost_frames,omitempty"`

	PinchEnabled       *bool    `json:"pinch_enabled,omitempty" yaml:"pinch_enabled,omitempty" toml:"pinch_enabled,omitempty"`
	PinchThreshold     *float64 `json:"pinch_threshold,omitempty" yaml:"pinch_threshold,omitempty" toml:"pinch_threshold,omitempty"`
	PinchHysteresis    *float64 `json:"pinch_hysteresis,omitempty" yaml:"pinch_hysteresis,omitempty" toml:"pinch_hysteresis,omitempty"`
	PinchConfirmFrames *int     `json:"pinch_confirm_frames,omitempty" yaml:"pinch_confirm_frames,omitempty" toml:"pinch_confirm_frames,omitempty"`
	DragHoldFrames     *int     `json:"drag_hold_frames,omitempty" yaml:"drag_hold_frames,omitempty" toml:"drag_hold_frames,omitempty"`
	DoubleClickWindow  *string  `json:"double_click_window,omitempty" yaml:"double_click_window,omitempty" toml:"double_click_window,omitempty"`

	BlinkEnabled       *bool    `json:"blink_enabled,omitempty" yaml:"blink_enabled,omitempty" toml:"blink_enabled,omitempty"`
	BlinkThreshold     *float64 `json:"blink_threshold,omitempty" yaml:"blink_threshold,omitempty" toml:"blink_threshold,omitempty"`
	BlinkConfirmFrames *int     `json:"blink_confirm_frames,omitempty" yaml:"blink_confirm_frames,omitempty" toml:"blink_confirm_frames,omitempty"`
	BlinkMinGap        *string  `json:"blink_min_gap,omitempty" yaml:"blink_min_gap,omitempty" toml:"blink_min_gap,omitempty"`
	BlinkMaxDuration   *string  `json:"blink_max_duration,omitempty" yaml:"blink_max_duration,omitempty" toml:"blink_max_duration,omitempty"`

	DwellEnabled  *bool    `json:"dwell_enabled,omitempty" yaml:"dwell_enabled,omitempty" toml:"dwell_enabled,omitempty"`
	DwellDuration *string  `json:"dwell_duration,omitempty" yaml:"dwell_duration,omitempty" toml:"dwell_duration,omitempty"`
	DwellRadius   *float64 `json:"dwell_radius,omitempty" yaml:"dwell_radius,omitempty" toml:"dwell_radius,omitempty"`

	PalmEnabled *bool `json:"palm_enabled,omitempty" yaml:"palm_enabled,omitempty" toml:"palm_enabled,omitempty"`
}

// RegionConfig is the active hand region in normalized image coordinates.
type RegionConfig struct {
	MinX float64 `json:"min_x" yaml:"min_x" toml:"min_x"`
	MinY float64 `json:"min_y" yaml:"min_y" toml:"min_y"`
	MaxX float64 `json:"max_x" yaml:"max_x" toml:"max_x"`
	MaxY float64 `json:"max_y" yaml:"max_y" toml:"max_y"`
}

// TrackingConfig resolves the tracking section into a validated
// tracking.Config.
func (f *File) TrackingConfig() (tracking.Config, error) {
	cfg, err := f.Tracking.Apply()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("tracking: %w", err)
	}
	return cfg, nil
}

// Apply starts from the named preset and overlays every set field.
func (t TrackingConfig) Apply() (tracking.Config, error) {
	cfg, err := tracking.Preset(t.Preset)
	if err != nil {
		return cfg, fmt.Errorf("tracking.preset: %w", err)
	}

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"frame_interval", t.FrameInterval, &cfg.FrameInterval},
		{"frame_timeout", t.FrameTimeout, &cfg.FrameTimeout},
		{"double_click_window", t.DoubleClickWindow, &cfg.DoubleClickWindow},
		{"blink_min_gap", t.BlinkMinGap, &cfg.BlinkMinGap},
		{"blink_max_duration", t.BlinkMaxDuration, &cfg.BlinkMaxDuration},
		{"dwell_duration", t.DwellDuration, &cfg.DwellDuration},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := parseDuration("tracking."+d.name, *d.src)
		if err != nil {
			return cfg, err
		}
		*d.dst = v
	}

	setBool(&cfg.HeadEnabled, t.HeadEnabled)
	setBool(&cfg.HandEnabled, t.HandEnabled)
	setBool(&cfg.GazeEnabled, t.GazeEnabled)
	setBool(&cfg.MirrorX, t.MirrorX)
	setBool(&cfg.PinchEnabled, t.PinchEnabled)
	setBool(&cfg.BlinkEnabled, t.BlinkEnabled)
	setBool(&cfg.DwellEnabled, t.DwellEnabled)
	setBool(&cfg.PalmEnabled, t.PalmEnabled)

	setFloat(&cfg.HeadWeight, t.HeadWeight)
	setFloat(&cfg.HandWeight, t.HandWeight)
	setFloat(&cfg.GazeWeight, t.GazeWeight)
	setFloat(&cfg.PrimaryGain, t.PrimaryGain)
	setFloat(&cfg.HeadRangeYaw, t.HeadRangeYaw)
	setFloat(&cfg.HeadRangePitch, t.HeadRangePitch)
	setFloat(&cfg.HeadGainX, t.HeadGainX)
	setFloat(&cfg.HeadGainY, t.HeadGainY)
	setFloat(&cfg.GazeRangeX, t.GazeRangeX)
	setFloat(&cfg.GazeRangeY, t.GazeRangeY)
	setFloat(&cfg.SmoothingAlpha, t.SmoothingAlpha)
	setFloat(&cfg.OneEuroMinCutoff, t.OneEuroMinCutoff)
	setFloat(&cfg.OneEuroBeta, t.OneEuroBeta)
	setFloat(&cfg.OneEuroDCutoff, t.OneEuroDCutoff)
	setFloat(&cfg.ReliabilityFloor, t.ReliabilityFloor)
	setFloat(&cfg.DeadZone, t.DeadZone)
	setFloat(&cfg.MaxVelocity, t.MaxVelocity)
	setFloat(&cfg.PinchThreshold, t.PinchThreshold)
	setFloat(&cfg.PinchHysteresis, t.PinchHysteresis)
	setFloat(&cfg.BlinkThreshold, t.BlinkThreshold)
	setFloat(&cfg.DwellRadius, t.DwellRadius)

	setInt(&cfg.MaxStaleness, t.MaxStaleness)
	setInt(&cfg.LostFrames, t.LostFrames)
	setInt(&cfg.PinchConfirmFrames, t.PinchConfirmFrames)
	setInt(&cfg.DragHoldFrames, t.DragHoldFrames)
	setInt(&cfg.BlinkConfirmFrames, t.BlinkConfirmFrames)

	if t.Smoothing != nil {
		cfg.Smoothing = tracking.SmoothingMethod(*t.Smoothing)
	}
	if r := t.HandRegion; r != nil {
		cfg.HandRegion = tracking.Region{MinX: r.MinX, MinY: r.MinY, MaxX: r.MaxX, MaxY: r.MaxY}
	}
	return cfg, nil
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
