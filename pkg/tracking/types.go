// Package tracking turns per-frame detector output into normalized,
// smoothed per-modality signals.
package tracking

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Modality identifies one of the independent tracking sources.
type Modality int

const (
	Head Modality = iota
	Hand
	Gaze

	numModalities
)

// Modalities lists every modality in index order.
var Modalities = [numModalities]Modality{Head, Hand, Gaze}

func (m Modality) String() string {
	switch m {
	case Head:
		return "head"
	case Hand:
		return "hand"
	case Gaze:
		return "gaze"
	default:
		return fmt.Sprintf("modality(%d)", int(m))
	}
}

// Valid reports whether m is one of the known modalities.
func (m Modality) Valid() bool {
	return m >= Head && m < numModalities
}

// ParseModality parses "head", "hand" or "gaze" (case-insensitive).
// "eye" is accepted as an alias for gaze.
func ParseModality(s string) (Modality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "head":
		return Head, nil
	case "hand":
		return Hand, nil
	case "gaze", "eye":
		return Gaze, nil
	}
	return 0, fmt.Errorf("tracking: unknown modality %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Modality) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("tracking: unknown modality %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Modality) UnmarshalText(b []byte) error {
	v, err := ParseModality(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Vec2 is a point or delta in normalized screen space, where (0,0) is the
// top-left corner and (1,1) the bottom-right.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Len returns the Euclidean length of v.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Dist returns the Euclidean distance between v and o.
func (v Vec2) Dist(o Vec2) float64 { return v.Sub(o).Len() }

// Finite reports whether both components are finite numbers.
func (v Vec2) Finite() bool { return finite(v.X) && finite(v.Y) }

// Clamp01 clamps both components into [0, 1].
func (v Vec2) Clamp01() Vec2 {
	return Vec2{clamp(v.X, 0, 1), clamp(v.Y, 0, 1)}
}

// HeadPose is an estimated head orientation in degrees. Positive yaw turns
// toward the right edge of the screen, positive pitch toward the bottom.
type HeadPose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Point3D is a single landmark in camera pixel coordinates. Z is the
// provider's relative depth and is not used for positioning.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Hand landmark indices (21-point hand model).
const (
	Wrist     = 0
	ThumbMCP  = 2
	ThumbIP   = 3
	ThumbTip  = 4
	IndexMCP  = 5
	IndexPIP  = 6
	IndexTip  = 8
	MiddleMCP = 9
	MiddlePIP = 10
	MiddleTip = 12
	RingPIP   = 14
	RingTip   = 16
	PinkyMCP  = 17
	PinkyPIP  = 18
	PinkyTip  = 20

	NumHandLandmarks = 21
)

// GazeSample is an iris position relative to the eye opening, where 0.5
// is looking straight ahead, plus the eye aspect ratio used for blinks.
type GazeSample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	EyeOpenness float64 `json:"eye_openness"`
}

// RawObservation is one detector output before normalization. Exactly one
// payload field matching Kind is expected.
type RawObservation struct {
	Kind       Modality
	Confidence float64
	Head       *HeadPose
	Hand       []Point3D
	Gaze       *GazeSample
}

// RawFrame is one tick from the perception provider. Width and Height are
// the camera resolution the hand landmarks are expressed in.
type RawFrame struct {
	Seq          uint64
	Timestamp    time.Time
	Width        int
	Height       int
	Observations []RawObservation
}

// Features carries the gesture evidence extracted during normalization.
type Features struct {
	// PinchRatio is the thumb-tip to index-tip distance divided by the
	// wrist to middle-MCP span, so it does not change with hand depth.
	PinchRatio float64 `json:"pinch_ratio,omitempty"`
	// OpenPalm is set when every finger is extended and not pinching.
	OpenPalm bool `json:"open_palm,omitempty"`
	// EyeOpenness is the eye aspect ratio; small values mean closed.
	EyeOpenness float64 `json:"eye_openness,omitempty"`
}

// Observation is a normalized single-modality estimate for one frame.
type Observation struct {
	Kind       Modality  `json:"kind"`
	Position   Vec2      `json:"position"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Features   Features  `json:"features"`
}

// Frame is a normalized frame. It holds at most one observation per modality.
type Frame struct {
	Seq          uint64
	Timestamp    time.Time
	Observations []Observation
}

// Get returns the observation for kind, if the frame has one.
func (f Frame) Get(kind Modality) (Observation, bool) {
	for _, o := range f.Observations {
		if o.Kind == kind {
			return o, true
		}
	}
	return Observation{}, false
}

// FilteredSignal is the smoothed per-modality state after a frame.
type FilteredSignal struct {
	Kind        Modality  `json:"kind"`
	Position    Vec2      `json:"position"`
	Reliability float64   `json:"reliability"`
	Staleness   int       `json:"staleness"`
	Seen        bool      `json:"seen"`
	Features    Features  `json:"features"`
	Updated     time.Time `json:"updated"`
}

// Fresh reports whether the signal was observed on the current frame.
func (s FilteredSignal) Fresh() bool {
	return s.Seen && s.Staleness == 0
}

// Signals holds one FilteredSignal per modality, indexed by Modality.
type Signals [numModalities]FilteredSignal

// Get returns the signal for kind.
func (s *Signals) Get(kind Modality) FilteredSignal {
	return s[kind]
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
