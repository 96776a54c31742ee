// Package config loads go-kursor settings from YAML, TOML or JSON files
// with KURSOR_* environment overrides, and reloads them on change.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/camera"
	"github.com/teslashibe/go-kursor/pkg/ingest"
	"github.com/teslashibe/go-kursor/pkg/web"
)

// ErrInvalid marks a configuration file that failed validation.
var ErrInvalid = errors.New("config: invalid configuration")

// File is the on-disk configuration. Every section is optional.
type File struct {
	Log         LogConfig         `json:"log" yaml:"log" toml:"log"`
	Tracking    TrackingConfig    `json:"tracking" yaml:"tracking" toml:"tracking"`
	Web         WebConfig         `json:"web" yaml:"web" toml:"web"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest" toml:"ingest"`
	Camera      CameraConfig      `json:"camera" yaml:"camera" toml:"camera"`
	Calibration CalibrationConfig `json:"calibration" yaml:"calibration" toml:"calibration"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `json:"level" yaml:"level" toml:"level"`
	DebugFrames bool   `json:"debug_frames" yaml:"debug_frames" toml:"debug_frames"`
}

// WebConfig configures the dashboard.
type WebConfig struct {
	Port           string `json:"port" yaml:"port" toml:"port"`
	StaticDir      string `json:"static_dir" yaml:"static_dir" toml:"static_dir"`
	StatusInterval string `json:"status_interval" yaml:"status_interval" toml:"status_interval"` // duration string like "100ms"
	RecentEvents   int    `json:"recent_events" yaml:"recent_events" toml:"recent_events"`
}

// IngestConfig configures how perception frames arrive. Providers can
// connect to the dashboard port, and the engine can dial one provider.
type IngestConfig struct {
	AcceptProviders *bool  `json:"accept_providers,omitempty" yaml:"accept_providers,omitempty" toml:"accept_providers,omitempty"`
	ProviderURL     string `json:"provider_url" yaml:"provider_url" toml:"provider_url"`
	ReconnectDelay  string `json:"reconnect_delay" yaml:"reconnect_delay" toml:"reconnect_delay"`
	PingInterval    string `json:"ping_interval" yaml:"ping_interval" toml:"ping_interval"`
}

// CameraConfig configures the local webcam source.
type CameraConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	Device     int     `json:"device" yaml:"device" toml:"device"`
	Width      int     `json:"width" yaml:"width" toml:"width"`
	Height     int     `json:"height" yaml:"height" toml:"height"`
	Framerate  int     `json:"framerate" yaml:"framerate" toml:"framerate"`
	ModelPath  string  `json:"model_path" yaml:"model_path" toml:"model_path"`
	Confidence float64 `json:"confidence" yaml:"confidence" toml:"confidence"`
	Every      int     `json:"every" yaml:"every" toml:"every"`
}

// CalibrationConfig configures the calibration profile store.
type CalibrationConfig struct {
	DB      string `json:"db" yaml:"db" toml:"db"`           // SQLite path, empty disables profiles
	Profile string `json:"profile" yaml:"profile" toml:"profile"` // Applied at startup
}

// Default returns the configuration used when no file exists.
func Default() *File {
	w := web.DefaultConfig()
	cam := camera.DefaultConfig()
	return &File{
		Log: LogConfig{Level: "info"},
		Web: WebConfig{
			Port:           w.Port,
			StatusInterval: w.StatusInterval.String(),
			RecentEvents:   w.RecentEvents,
		},
		Ingest: IngestConfig{
			ReconnectDelay: "500ms",
			PingInterval:   "5s",
		},
		Camera: CameraConfig{
			Device:     cam.Device,
			Width:      cam.Width,
			Height:     cam.Height,
			Framerate:  cam.Framerate,
			ModelPath:  cam.ModelPath,
			Confidence: cam.Confidence,
			Every:      cam.Every,
		},
		Calibration: CalibrationConfig{DB: "kursor.db"},
	}
}

// ApplyEnvOverrides applies KURSOR_* environment variables.
func (f *File) ApplyEnvOverrides() {
	if v := os.Getenv("KURSOR_LOG_LEVEL"); v != "" {
		f.Log.Level = v
	}
	if v := os.Getenv("KURSOR_WEB_PORT"); v != "" {
		f.Web.Port = v
	}
	if v := os.Getenv("KURSOR_PROVIDER_URL"); v != "" {
		f.Ingest.ProviderURL = v
	}
	if v := os.Getenv("KURSOR_CAMERA_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Camera.Device = n
			f.Camera.Enabled = true
		}
	}
	if v := os.Getenv("KURSOR_CALIBRATION_DB"); v != "" {
		f.Calibration.DB = v
	}
	if v := os.Getenv("KURSOR_CALIBRATION_PROFILE"); v != "" {
		f.Calibration.Profile = v
	}
}

// Validate checks every section. All problems are reported together.
func (f *File) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(f.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("log.level: unknown level %q", f.Log.Level)
	}

	if _, err := f.TrackingConfig(); err != nil {
		errs = append(errs, err)
	}

	if _, err := f.WebConfig(); err != nil {
		errs = append(errs, err)
	}

	if f.Ingest.ProviderURL != "" {
		if _, err := f.IngestClientConfig(); err != nil {
			errs = append(errs, err)
		}
	}

	if f.Camera.Enabled {
		cam := f.CameraConfig()
		for _, msg := range cam.Validate() {
			add("camera: %s", msg)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// LogLevel returns the configured level for log.Init.
func (f *File) LogLevel() string {
	return log.ParseLevel(f.Log.Level).String()
}

// WebConfig converts the web section.
func (f *File) WebConfig() (web.Config, error) {
	cfg := web.DefaultConfig()
	if f.Web.Port != "" {
		if _, err := strconv.ParseUint(f.Web.Port, 10, 16); err != nil {
			return cfg, fmt.Errorf("web.port: %q is not a port number", f.Web.Port)
		}
		cfg.Port = f.Web.Port
	}
	cfg.StaticDir = f.Web.StaticDir
	if f.Web.StatusInterval != "" {
		d, err := parseDuration("web.status_interval", f.Web.StatusInterval)
		if err != nil {
			return cfg, err
		}
		cfg.StatusInterval = d
	}
	if f.Web.RecentEvents > 0 {
		cfg.RecentEvents = f.Web.RecentEvents
	}
	return cfg, nil
}

// AcceptProviders reports whether providers may connect to /ingest/ws.
func (f *File) AcceptProviders() bool {
	return f.Ingest.AcceptProviders == nil || *f.Ingest.AcceptProviders
}

// IngestClientConfig converts the ingest section for dialing ProviderURL.
func (f *File) IngestClientConfig() (ingest.ClientConfig, error) {
	cfg := ingest.DefaultClientConfig(f.Ingest.ProviderURL)
	if !strings.HasPrefix(f.Ingest.ProviderURL, "ws://") && !strings.HasPrefix(f.Ingest.ProviderURL, "wss://") {
		return cfg, fmt.Errorf("ingest.provider_url: must be ws:// or wss://, got %q", f.Ingest.ProviderURL)
	}
	if f.Ingest.ReconnectDelay != "" {
		d, err := parseDuration("ingest.reconnect_delay", f.Ingest.ReconnectDelay)
		if err != nil {
			return cfg, err
		}
		cfg.ReconnectDelay = d
	}
	if f.Ingest.PingInterval != "" {
		d, err := parseDuration("ingest.ping_interval", f.Ingest.PingInterval)
		if err != nil {
			return cfg, err
		}
		cfg.PingInterval = d
	}
	return cfg, nil
}

// CameraConfig converts the camera section. Zero fields take the camera
// defaults.
func (f *File) CameraConfig() camera.Config {
	cfg := camera.DefaultConfig()
	c := f.Camera
	cfg.Device = c.Device
	if c.Width > 0 {
		cfg.Width = c.Width
	}
	if c.Height > 0 {
		cfg.Height = c.Height
	}
	if c.Framerate > 0 {
		cfg.Framerate = c.Framerate
	}
	if c.ModelPath != "" {
		cfg.ModelPath = c.ModelPath
	}
	if c.Confidence > 0 {
		cfg.Confidence = c.Confidence
	}
	if c.Every > 0 {
		cfg.Every = c.Every
	}
	return cfg
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	return d, nil
}
