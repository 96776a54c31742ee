package tracking

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	configs := []struct {
		name string
		cfg  Config
	}{
		{"Default", DefaultConfig()},
		{"Responsive", ResponsiveConfig()},
		{"Steady", SteadyConfig()},
	}

	for _, tc := range configs {
		if err := tc.cfg.Validate(); err != nil {
			t.Errorf("%s: unexpected validation error: %v", tc.name, err)
		}
	}
}

func TestDefaultConfig_Debounce(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.PinchConfirmFrames != 5 {
		t.Errorf("Expected PinchConfirmFrames=5, got %d", cfg.PinchConfirmFrames)
	}
	// Blinks are fast, so they confirm sooner than pinches
	if cfg.BlinkConfirmFrames >= cfg.PinchConfirmFrames {
		t.Errorf("Expected BlinkConfirmFrames < PinchConfirmFrames, got %d >= %d",
			cfg.BlinkConfirmFrames, cfg.PinchConfirmFrames)
	}
	if cfg.DwellDuration != 800*time.Millisecond {
		t.Errorf("Expected DwellDuration=800ms, got %v", cfg.DwellDuration)
	}
	if cfg.DoubleClickWindow != 400*time.Millisecond {
		t.Errorf("Expected DoubleClickWindow=400ms, got %v", cfg.DoubleClickWindow)
	}
	if cfg.MaxStaleness != 10 {
		t.Errorf("Expected MaxStaleness=10, got %d", cfg.MaxStaleness)
	}
}

func TestSteadyConfig_SmoothsMore(t *testing.T) {
	def := DefaultConfig()
	steady := SteadyConfig()

	if steady.DeadZone <= def.DeadZone {
		t.Errorf("Expected wider dead zone, got %v <= %v", steady.DeadZone, def.DeadZone)
	}
	if steady.PinchConfirmFrames <= def.PinchConfirmFrames {
		t.Errorf("Expected longer pinch debounce, got %d", steady.PinchConfirmFrames)
	}
}

func TestPreset(t *testing.T) {
	for _, name := range []string{"", "default", "responsive", "steady"} {
		if _, err := Preset(name); err != nil {
			t.Errorf("Preset(%q): %v", name, err)
		}
	}
	if _, err := Preset("turbo"); err == nil {
		t.Error("Expected error for unknown preset")
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "all click methods disabled",
			mutate: func(c *Config) { c.PinchEnabled, c.BlinkEnabled, c.DwellEnabled = false, false, false },
			field:  "click",
		},
		{
			name: "only click method has its modality off",
			mutate: func(c *Config) {
				c.BlinkEnabled, c.DwellEnabled = false, false
				c.HandEnabled = false
			},
			field: "click",
		},
		{
			name:   "no modalities",
			mutate: func(c *Config) { c.HeadEnabled, c.HandEnabled, c.GazeEnabled = false, false, false },
			field:  "modalities",
		},
		{
			name:   "negative blink max duration",
			mutate: func(c *Config) { c.BlinkMaxDuration = -time.Millisecond },
			field:  "blink_max_duration",
		},
		{
			name:   "zero pinch debounce",
			mutate: func(c *Config) { c.PinchConfirmFrames = 0 },
			field:  "pinch_confirm_frames",
		},
		{
			name:   "drag shorter than click",
			mutate: func(c *Config) { c.DragHoldFrames = 3 },
			field:  "drag_hold_frames",
		},
		{
			name:   "reliability floor above one",
			mutate: func(c *Config) { c.ReliabilityFloor = 1.5 },
			field:  "reliability_floor",
		},
		{
			name:   "unknown smoothing",
			mutate: func(c *Config) { c.Smoothing = "kalman" },
			field:  "smoothing",
		},
		{
			name:   "inverted hand region",
			mutate: func(c *Config) { c.HandRegion = Region{MinX: 0.8, MinY: 0.1, MaxX: 0.2, MaxY: 0.9} },
			field:  "hand_region",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Expected ErrInvalidConfig, got %v", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Expected ValidationErrors, got %T", err)
			}
			found := false
			for _, v := range verrs {
				if v.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected error on field %q, got %v", tt.field, verrs)
			}
		})
	}
}

func TestValidate_DragDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DragHoldFrames = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("DragHoldFrames=0 should disable drag, got %v", err)
	}
}
