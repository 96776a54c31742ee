package detection

import (
	"math"
	"testing"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

func TestDetection_Center(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		expectX float64
		expectY float64
	}{
		{
			name:    "center of image",
			det:     Detection{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			expectX: 0.5,
			expectY: 0.5,
		},
		{
			name:    "top left corner",
			det:     Detection{X: 0, Y: 0, W: 0.2, H: 0.2},
			expectX: 0.1,
			expectY: 0.1,
		},
		{
			name:    "bottom right corner",
			det:     Detection{X: 0.8, Y: 0.8, W: 0.2, H: 0.2},
			expectX: 0.9,
			expectY: 0.9,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.det.Center()
			if x != tc.expectX {
				t.Errorf("Center X: got %.2f, want %.2f", x, tc.expectX)
			}
			if y != tc.expectY {
				t.Errorf("Center Y: got %.2f, want %.2f", y, tc.expectY)
			}
		})
	}
}

func TestDetection_Area(t *testing.T) {
	tests := []struct {
		name   string
		det    Detection
		expect float64
	}{
		{
			name:   "quarter of image",
			det:    Detection{X: 0, Y: 0, W: 0.5, H: 0.5},
			expect: 0.25,
		},
		{
			name:   "small face",
			det:    Detection{X: 0, Y: 0, W: 0.1, H: 0.2},
			expect: 0.02,
		},
		{
			name:   "full image",
			det:    Detection{X: 0, Y: 0, W: 1.0, H: 1.0},
			expect: 1.0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			area := tc.det.Area()
			// Use tolerance for floating-point comparison
			diff := area - tc.expect
			if diff < -0.0001 || diff > 0.0001 {
				t.Errorf("Area: got %.4f, want %.4f", area, tc.expect)
			}
		})
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name       string
		detections []Detection
		expectNil  bool
		expectIdx  int // Expected index of best detection
	}{
		{
			name:       "empty list",
			detections: []Detection{},
			expectNil:  true,
		},
		{
			name: "single detection",
			detections: []Detection{
				{X: 0.4, Y: 0.4, W: 0.2, H: 0.2, Confidence: 0.9},
			},
			expectNil: false,
			expectIdx: 0,
		},
		{
			name: "high confidence beats larger area",
			detections: []Detection{
				{X: 0.0, Y: 0.0, W: 0.4, H: 0.4, Confidence: 0.5},  // Larger but low conf
				{X: 0.3, Y: 0.3, W: 0.2, H: 0.2, Confidence: 0.95}, // Smaller but high conf
			},
			expectNil: false,
			expectIdx: 1, // High confidence wins (0.95*0.7 + 0.25*0.3 = 0.74 vs 0.5*0.7 + 1.0*0.3 = 0.65)
		},
		{
			name: "similar confidence picks larger",
			detections: []Detection{
				{X: 0.0, Y: 0.0, W: 0.5, H: 0.5, Confidence: 0.8}, // Larger
				{X: 0.3, Y: 0.3, W: 0.1, H: 0.1, Confidence: 0.8}, // Smaller
			},
			expectNil: false,
			expectIdx: 0, // Same confidence, larger area wins
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			best := SelectBest(tc.detections)
			if tc.expectNil {
				if best != nil {
					t.Errorf("SelectBest: expected nil, got %+v", best)
				}
				return
			}

			if best == nil {
				t.Error("SelectBest: expected non-nil, got nil")
				return
			}

			expected := &tc.detections[tc.expectIdx]
			if best.Confidence != expected.Confidence || best.X != expected.X {
				t.Errorf("SelectBest: got %+v, want %+v", best, expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelPath == "" {
		t.Error("DefaultConfig: ModelPath should not be empty")
	}

	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh > 1 {
		t.Errorf("DefaultConfig: ConfidenceThresh should be 0-1, got %f", cfg.ConfidenceThresh)
	}

	if cfg.InputWidth <= 0 {
		t.Errorf("DefaultConfig: InputWidth should be positive, got %d", cfg.InputWidth)
	}

	if cfg.InputHeight <= 0 {
		t.Errorf("DefaultConfig: InputHeight should be positive, got %d", cfg.InputHeight)
	}
}

// frontalFace is a level face centered in a 640x480 image: eyes 128px
// apart, mouth 96px below the eyes, nose at the neutral height.
func frontalFace() Detection {
	return Detection{
		X: 0.35, Y: 0.3, W: 0.3, H: 0.4, Confidence: 0.9,
		Landmarks: [NumLandmarks]Point{
			RightEye:   {X: 0.4, Y: 0.4},
			LeftEye:    {X: 0.6, Y: 0.4},
			NoseTip:    {X: 0.5, Y: 0.49},
			RightMouth: {X: 0.42, Y: 0.6},
			LeftMouth:  {X: 0.58, Y: 0.6},
		},
	}
}

func TestEstimatePose(t *testing.T) {
	const w, h = 640, 480

	turned := frontalFace()
	turned.Landmarks[NoseTip].X += 32.0 / w // a quarter of the eye distance

	lowered := frontalFace()
	lowered.Landmarks[NoseTip].Y += 9.6 / h // a tenth of the eye-mouth span

	// Roll the whole face by 10 degrees around its center.
	rolled := frontalFace()
	angle := 10 * math.Pi / 180
	for i, p := range rolled.Landmarks {
		x, y := (p.X-0.5)*w, (p.Y-0.5)*h
		rolled.Landmarks[i] = Point{
			X: 0.5 + (x*math.Cos(angle)-y*math.Sin(angle))/w,
			Y: 0.5 + (x*math.Sin(angle)+y*math.Cos(angle))/h,
		}
	}

	tests := []struct {
		name             string
		det              Detection
		yaw, pitch, roll float64
	}{
		{"frontal", frontalFace(), 0, 0, 0},
		{"turned right", turned, 22.5, 0, 0},
		{"looking down", lowered, 0, 11, 0},
		{"rolled", rolled, 0, 0, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pose, ok := EstimatePose(tc.det, w, h)
			if !ok {
				t.Fatal("EstimatePose: expected ok")
			}
			check := func(name string, got, want float64) {
				if math.Abs(got-want) > 0.01 {
					t.Errorf("%s: got %.3f, want %.3f", name, got, want)
				}
			}
			check("yaw", pose.Yaw, tc.yaw)
			check("pitch", pose.Pitch, tc.pitch)
			check("roll", pose.Roll, tc.roll)
		})
	}
}

func TestEstimatePose_Degenerate(t *testing.T) {
	if _, ok := EstimatePose(Detection{Confidence: 0.9}, 640, 480); ok {
		t.Error("detection without landmarks should not yield a pose")
	}

	flat := frontalFace()
	flat.Landmarks[RightMouth].Y = 0.4
	flat.Landmarks[LeftMouth].Y = 0.4
	if _, ok := EstimatePose(flat, 640, 480); ok {
		t.Error("mouth on the eye line should not yield a pose")
	}

	if _, ok := EstimatePose(frontalFace(), 0, 480); ok {
		t.Error("zero width should not yield a pose")
	}
}

func TestObservation(t *testing.T) {
	if _, ok := Observation(nil, 640, 480); ok {
		t.Error("no detections should yield no observation")
	}

	far := frontalFace()
	far.Confidence = 0.4
	obs, ok := Observation([]Detection{far, frontalFace()}, 640, 480)
	if !ok {
		t.Fatal("expected an observation")
	}
	if obs.Kind != tracking.Head || obs.Head == nil {
		t.Fatalf("observation = %+v", obs)
	}
	if obs.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want the best face's 0.9", obs.Confidence)
	}
}
