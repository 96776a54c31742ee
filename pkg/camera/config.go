// Package camera holds the local webcam settings, their presets and the
// Manager through which the dashboard changes them at runtime. Capture
// itself lives in package capture.
package camera

// Config holds all camera configuration parameters.
type Config struct {
	Device    int `json:"device"`    // Video device index (0 = default webcam)
	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Requested FPS

	// ModelPath is the YuNet ONNX face detection model.
	ModelPath string `json:"model_path"`

	// Confidence is the minimum face score (0.1 to 1.0).
	Confidence float64 `json:"confidence"`

	// Every runs detection on one frame in Every; the frames in between
	// are skipped. 1 detects on every frame.
	Every int `json:"every"`
}

// Capture limits accepted by Validate.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the recommended webcam configuration. 640x480 is
// enough for a face a meter from the screen and keeps detection fast.
func DefaultConfig() Config {
	return Config{
		Device:     0,
		Width:      640,
		Height:     480,
		Framerate:  30,
		ModelPath:  "models/face_detection_yunet.onnx",
		Confidence: 0.6,
		Every:      1,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must be >= 0")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.ModelPath == "" {
		errors = append(errors, "model_path is required")
	}
	if c.Confidence < 0.1 || c.Confidence > 1.0 {
		errors = append(errors, "confidence must be between 0.1 and 1.0")
	}
	if c.Every < 1 {
		errors = append(errors, "every must be >= 1")
	}

	return errors
}

// Stats describes the capture loop.
type Stats struct {
	Running bool   `json:"running"`
	Frames  uint64 `json:"frames"`
	Faces   uint64 `json:"faces"` // Frames with a usable face
}
