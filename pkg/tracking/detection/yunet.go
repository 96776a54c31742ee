package detection

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-kursor/pkg/debug"
)

// ErrEmptyImage is returned for images that decode to nothing.
var ErrEmptyImage = errors.New("detection: empty image")

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	size     image.Point
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	// Input size is updated per image
	size := image.Pt(cfg.InputWidth, cfg.InputHeight)
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		size,
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
		size:     size,
	}, nil
}

// DetectJPEG decodes a JPEG and finds faces in it.
func (d *YuNetDetector) DetectJPEG(jpeg []byte) ([]Detection, error) {
	if len(jpeg) == 0 {
		return nil, ErrEmptyImage
	}
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	return d.Detect(img)
}

// Detect finds faces in img.
func (d *YuNetDetector) Detect(img gocv.Mat) ([]Detection, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	if size := image.Pt(img.Cols(), img.Rows()); size != d.size {
		d.detector.SetInputSize(size)
		d.size = size
	}

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)

	var detections []Detection
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		det := Detection{
			X:          float64(faces.GetFloatAt(r, 0)) / imgW,
			Y:          float64(faces.GetFloatAt(r, 1)) / imgH,
			W:          float64(faces.GetFloatAt(r, 2)) / imgW,
			H:          float64(faces.GetFloatAt(r, 3)) / imgH,
			Confidence: float64(faces.GetFloatAt(r, 14)),
		}
		for i := 0; i < NumLandmarks; i++ {
			det.Landmarks[i] = Point{
				X: float64(faces.GetFloatAt(r, 4+2*i)) / imgW,
				Y: float64(faces.GetFloatAt(r, 5+2*i)) / imgH,
			}
		}
		detections = append(detections, det)
	}

	if len(detections) > 0 {
		debug.FrameLog("yunet found faces", "count", len(detections))
	}

	return detections, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

var _ Detector = (*YuNetDetector)(nil)
