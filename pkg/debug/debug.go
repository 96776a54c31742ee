// Package debug provides global debug logging flags
package debug

import (
	"fmt"

	"github.com/teslashibe/go-kursor/internal/log"
)

// Enabled controls whether debug logging is active
var Enabled bool

// Frames controls whether per-frame pipeline logs are shown (normalized
// observations, fused cursor, gesture phases). Very verbose at 30 fps.
// Use --debug-frames flag to enable these logs
var Frames bool

// Log emits a debug message only if debug mode is enabled
func Log(format string, args ...any) {
	if Enabled {
		log.Debug(fmt.Sprintf(format, args...))
	}
}

// FrameLog emits a message only if frame debug mode is enabled
func FrameLog(msg string, args ...any) {
	if Frames {
		log.Debug(msg, args...)
	}
}
