package camera

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrInvalidConfig wraps every rejected camera setting.
	ErrInvalidConfig = errors.New("camera: invalid configuration")
	// ErrUnknownPreset is returned for preset names not in PresetNames.
	ErrUnknownPreset = errors.New("camera: unknown preset")
)

// Update is a partial change to the camera settings, as posted to the
// dashboard. Preset is applied first; nil fields keep their value.
type Update struct {
	Preset     string   `json:"preset,omitempty"`
	Device     *int     `json:"device,omitempty"`
	Width      *int     `json:"width,omitempty"`
	Height     *int     `json:"height,omitempty"`
	Framerate  *int     `json:"framerate,omitempty"`
	ModelPath  *string  `json:"model_path,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Every      *int     `json:"every,omitempty"`
}

// Manager holds the live camera settings. The Source registers itself as
// OnConfigChange and reopens the device when they change.
type Manager struct {
	mu     sync.RWMutex
	config Config

	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current settings.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and stores cfg, then notifies OnConfigChange.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("apply camera config: %w", err)
		}
	}
	return nil
}

// Apply merges u into the current settings and stores the result. Nothing
// changes when the merged settings are invalid.
func (m *Manager) Apply(u Update) (Config, error) {
	cfg := m.GetConfig()

	if u.Preset != "" {
		preset, ok := Preset(u.Preset)
		if !ok {
			return cfg, fmt.Errorf("%w: %q", ErrUnknownPreset, u.Preset)
		}
		// Presets describe capture only; the device and model stay.
		preset.Device, preset.ModelPath = cfg.Device, cfg.ModelPath
		cfg = preset
	}

	set(&cfg.Device, u.Device)
	set(&cfg.Width, u.Width)
	set(&cfg.Height, u.Height)
	set(&cfg.Framerate, u.Framerate)
	set(&cfg.ModelPath, u.ModelPath)
	set(&cfg.Confidence, u.Confidence)
	set(&cfg.Every, u.Every)

	if err := m.SetConfig(cfg); err != nil {
		return m.GetConfig(), err
	}
	return cfg, nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
