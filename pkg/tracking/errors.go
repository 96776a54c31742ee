package tracking

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for tracking.
var (
	// ErrInvalidObservation marks an observation that was dropped during
	// normalization. Never fatal.
	ErrInvalidObservation = errors.New("tracking: invalid observation")

	// ErrInvalidConfig marks a configuration rejected before startup.
	ErrInvalidConfig = errors.New("tracking: invalid configuration")

	// ErrFilterDiverged is reported when a modality filter produced a
	// non-finite output and was reset.
	ErrFilterDiverged = errors.New("tracking: filter diverged")
)

// InvalidObservationError describes why an observation was dropped.
type InvalidObservationError struct {
	Kind   Modality
	Reason string
}

func (e *InvalidObservationError) Error() string {
	return fmt.Sprintf("tracking: invalid %s observation: %s", e.Kind, e.Reason)
}

func (e *InvalidObservationError) Unwrap() error {
	return ErrInvalidObservation
}

func invalid(kind Modality, format string, args ...any) error {
	return &InvalidObservationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError is a single rejected configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found by Config.Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "tracking: invalid configuration: " + strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}
