// Package detection finds faces in camera images and estimates head pose
// from their landmarks.
package detection

import "gocv.io/x/gocv"

// Landmark indices in Detection.Landmarks, as YuNet orders them. "Right"
// is the subject's right, which appears on the left of an unmirrored image.
const (
	RightEye = iota
	LeftEye
	NoseTip
	RightMouth
	LeftMouth
	NumLandmarks
)

// Point is a position in normalized image coordinates (0-1).
type Point struct {
	X, Y float64
}

// Detection represents a detected face
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)

	Landmarks [NumLandmarks]Point
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// HasLandmarks reports whether the detector filled in facial landmarks.
func (d Detection) HasLandmarks() bool {
	return d.Landmarks[RightEye] != d.Landmarks[LeftEye]
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in a BGR image
	Detect(img gocv.Mat) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.6)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.6,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// SelectBest picks the face the user most likely is: the one in front of
// the camera. Priority: confidence * 0.7 + relative area * 0.3.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	// Find max area for normalization
	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}
	if maxArea == 0 {
		maxArea = 1
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence*0.7 + (dets[i].Area()/maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}
