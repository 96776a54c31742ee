// Package capture runs a local webcam as a head-pose perception source.
// It is the only package that opens a video device; settings live in
// package camera so they can be used without cgo.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/camera"
	"github.com/teslashibe/go-kursor/pkg/tracking"
	"github.com/teslashibe/go-kursor/pkg/tracking/detection"
)

var (
	errReopen     = errors.New("capture: reopen requested")
	errCameraLost = errors.New("capture: no frames from device")
)

// maxEmptyReads is how many failed reads in a row count as a lost camera.
const maxEmptyReads = 30

// FrameSink receives each captured frame. It must not block; pass
// engine.Runner.Offer.
type FrameSink func(tracking.RawFrame)

// DetectorFactory builds a face detector for a configuration.
type DetectorFactory func(cfg detection.Config) (detection.Detector, error)

// Source captures webcam frames, detects the user's face and emits head
// observations. Configuration changes made through its Manager reopen
// the camera.
type Source struct {
	manager     *camera.Manager
	sink        FrameSink
	logger      *slog.Logger
	newDetector DetectorFactory
	retryDelay  time.Duration

	reopen  chan struct{}
	seq     uint64
	running atomic.Bool
	frames  atomic.Uint64
	faces   atomic.Uint64
	errLog  rate.Sometimes
}

// NewSource creates a source that reads its settings from m.
func NewSource(m *camera.Manager, sink FrameSink, logger *slog.Logger) *Source {
	if logger == nil {
		logger = log.L()
	}
	s := &Source{
		manager:    m,
		sink:       sink,
		logger:     logger.With("component", "camera"),
		retryDelay: 2 * time.Second,
		reopen:     make(chan struct{}, 1),
		errLog:     rate.Sometimes{Interval: 5 * time.Second},
		newDetector: func(cfg detection.Config) (detection.Detector, error) {
			return detection.NewYuNet(cfg)
		},
	}
	prev := m.OnConfigChange
	m.OnConfigChange = func(cfg camera.Config) error {
		if prev != nil {
			if err := prev(cfg); err != nil {
				return err
			}
		}
		select {
		case s.reopen <- struct{}{}:
		default:
		}
		return nil
	}
	return s
}

// Run captures until ctx is done, reopening the camera after errors and
// configuration changes. It returns ctx.Err().
func (s *Source) Run(ctx context.Context) error {
	for {
		cfg := s.manager.GetConfig()
		err := s.capture(ctx, cfg)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errReopen) {
			s.logger.Info("camera settings changed, reopening", "width", cfg.Width, "height", cfg.Height)
			continue
		}
		s.logger.Warn("camera stopped, retrying", "error", err, "retry_in", s.retryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.reopen:
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Source) capture(ctx context.Context, cfg camera.Config) error {
	det, err := s.newDetector(detection.Config{
		ModelPath:        cfg.ModelPath,
		ConfidenceThresh: cfg.Confidence,
		InputWidth:       cfg.Width,
		InputHeight:      cfg.Height,
	})
	if err != nil {
		return fmt.Errorf("face detector: %w", err)
	}
	defer det.Close()

	cam, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return fmt.Errorf("open device %d: %w", cfg.Device, err)
	}
	defer cam.Close()

	cam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	cam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	cam.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	img := gocv.NewMat()
	defer img.Close()

	s.running.Store(true)
	defer s.running.Store(false)
	s.logger.Info("camera opened", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)

	empty, n := 0, 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.reopen:
			return errReopen
		default:
		}

		if ok := cam.Read(&img); !ok || img.Empty() {
			empty++
			if empty > maxEmptyReads {
				return errCameraLost
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		empty = 0
		n++
		if n%cfg.Every != 0 {
			continue
		}

		dets, err := det.Detect(img)
		if err != nil {
			s.errLog.Do(func() { s.logger.Warn("face detection failed", "error", err) })
			continue
		}
		s.seq++
		frame := BuildFrame(s.seq, time.Now(), img.Cols(), img.Rows(), dets)
		s.frames.Add(1)
		if len(frame.Observations) > 0 {
			s.faces.Add(1)
		}
		if s.sink != nil {
			s.sink(frame)
		}
	}
}

// BuildFrame turns one image's detections into an engine frame. A frame
// without a usable face carries no observations, which the engine treats
// as the head modality going stale.
func BuildFrame(seq uint64, ts time.Time, width, height int, dets []detection.Detection) tracking.RawFrame {
	frame := tracking.RawFrame{
		Seq:       seq,
		Timestamp: ts,
		Width:     width,
		Height:    height,
	}
	if obs, ok := detection.Observation(dets, width, height); ok {
		frame.Observations = []tracking.RawObservation{obs}
	}
	return frame
}

// Stats returns capture statistics.
func (s *Source) Stats() camera.Stats {
	return camera.Stats{
		Running: s.running.Load(),
		Frames:  s.frames.Load(),
		Faces:   s.faces.Load(),
	}
}
