package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/calibration"
	"github.com/teslashibe/go-kursor/pkg/camera"
	"github.com/teslashibe/go-kursor/pkg/dispatch"
	"github.com/teslashibe/go-kursor/pkg/engine"
	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/fusion"
	"github.com/teslashibe/go-kursor/pkg/metrics"
	"github.com/teslashibe/go-kursor/pkg/protocol"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// fakeController stands in for engine.Runner.
type fakeController struct {
	mu     sync.Mutex
	state  engine.State
	cfg    tracking.Config
	calib  calibration.Affine
	gaze   tracking.Vec2
	fresh  bool
	closed bool
}

func newFake() *fakeController {
	return &fakeController{state: engine.Tracking, cfg: tracking.DefaultConfig(), calib: calibration.Identity()}
}

func (f *fakeController) Status() engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := engine.Status{State: f.state, Calibrated: !f.calib.IsIdentity()}
	staleness := 5
	if f.fresh {
		staleness = 0
	}
	st.Signals = []engine.SignalStatus{
		{Kind: tracking.Head},
		{Kind: tracking.Hand},
		{Kind: tracking.Gaze, Position: f.gaze, Seen: f.fresh, Staleness: staleness},
	}
	return st
}

func (f *fakeController) do(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return engine.ErrNotRunning
	}
	return fn()
}

func (f *fakeController) Pause(context.Context) error {
	return f.do(func() error { f.state = engine.Paused; return nil })
}

func (f *fakeController) Resume(context.Context) error {
	return f.do(func() error { f.state = engine.Tracking; return nil })
}

func (f *fakeController) Toggle(ctx context.Context) error {
	return f.do(func() error {
		if f.state == engine.Paused {
			f.state = engine.Tracking
		} else {
			f.state = engine.Paused
		}
		return nil
	})
}

func (f *fakeController) Tuning(context.Context) (engine.TuningParams, error) {
	var p engine.TuningParams
	err := f.do(func() error { p = engine.Tuning(f.cfg); return nil })
	return p, err
}

func (f *fakeController) ApplyTuning(_ context.Context, p engine.TuningParams) (engine.TuningParams, error) {
	var out engine.TuningParams
	err := f.do(func() error {
		cfg, err := p.Apply(f.cfg)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		f.cfg = cfg
		out = engine.Tuning(cfg)
		return nil
	})
	return out, err
}

func (f *fakeController) SetCalibration(_ context.Context, a calibration.Affine) error {
	return f.do(func() error { f.calib = a; return nil })
}

func (f *fakeController) setGaze(v tracking.Vec2) {
	f.mu.Lock()
	f.gaze, f.fresh = v, true
	f.mu.Unlock()
}

func newTestServer(t *testing.T, ctl Controller, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	return NewServer(Config{}, ctl, opts...)
}

func doJSON(t *testing.T, s *Server, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t, newFake())

	var st map[string]any
	code := doJSON(t, s, "GET", "/api/status", nil, &st)
	assert.Equal(t, 200, code)
	assert.Equal(t, "tracking", st["state"])
}

func TestPauseResumeToggle(t *testing.T) {
	ctl := newFake()
	s := newTestServer(t, ctl)

	var resp map[string]any
	require.Equal(t, 200, doJSON(t, s, "POST", "/api/pause", nil, &resp))
	assert.Equal(t, "paused", resp["state"])

	require.Equal(t, 200, doJSON(t, s, "POST", "/api/toggle", nil, &resp))
	assert.Equal(t, "tracking", resp["state"])

	require.Equal(t, 200, doJSON(t, s, "POST", "/api/resume", nil, &resp))
	assert.Equal(t, "tracking", resp["state"])

	ctl.mu.Lock()
	ctl.closed = true
	ctl.mu.Unlock()
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, s, "POST", "/api/pause", nil, nil))
}

func TestTuningEndpoints(t *testing.T) {
	s := newTestServer(t, newFake())

	var p engine.TuningParams
	require.Equal(t, 200, doJSON(t, s, "GET", "/api/tuning", nil, &p))
	assert.Equal(t, tracking.DefaultConfig().SmoothingAlpha, p.SmoothingAlpha)

	require.Equal(t, 200, doJSON(t, s, "POST", "/api/tuning", engine.TuningParams{DwellDurationMs: 1200}, &p))
	assert.Equal(t, 1200, p.DwellDurationMs)

	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, s, "POST", "/api/tuning", engine.TuningParams{Preset: "turbo"}, nil))
	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, s, "POST", "/api/tuning", engine.TuningParams{SmoothingAlpha: 3}, nil))
}

func TestPublishKeepsRecentEvents(t *testing.T) {
	s := NewServer(Config{RecentEvents: 3}, newFake(), WithLogger(log.Discard()))
	ts := time.UnixMilli(1705320000000)
	pos := tracking.Vec2{X: 0.5, Y: 0.5}

	// Batches without events are not recorded.
	s.Publish(dispatch.Batch{Seq: 1})
	for i := 0; i < 4; i++ {
		s.Publish(dispatch.Batch{
			Seq:    uint64(i + 2),
			Cursor: fusion.CursorState{Position: pos, Valid: true},
			Events: []event.Event{event.New(event.Move, pos, ts.Add(time.Duration(i)*time.Millisecond), event.SourceFusion)},
		})
	}

	var got []protocol.EventData
	require.Equal(t, 200, doJSON(t, s, "GET", "/api/events", nil, &got))
	require.Len(t, got, 3)
	assert.Equal(t, ts.Add(time.Millisecond).UnixMilli(), got[0].TS)
	assert.Equal(t, "move", got[2].Kind)
}

func TestCalibrationFlow(t *testing.T) {
	store, err := calibration.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctl := newFake()
	s := newTestServer(t, ctl, WithCalibrationStore(store))

	// No session yet.
	assert.Equal(t, http.StatusConflict, doJSON(t, s, "POST", "/api/calibration/sample", CalibrationSampleRequest{Target: 0}, nil))

	var start struct {
		Targets []tracking.Vec2 `json:"targets"`
	}
	require.Equal(t, 200, doJSON(t, s, "POST", "/api/calibration/start", CalibrationStartRequest{Grid: 3, Margin: 0.1}, &start))
	require.Len(t, start.Targets, 9)

	// Raw gaze reads 0.1 right and compressed by half around the center.
	for i, target := range start.Targets {
		ctl.setGaze(tracking.Vec2{X: 0.5 + (target.X-0.5)*0.5 + 0.1, Y: 0.5 + (target.Y-0.5)*0.5})
		require.Equal(t, 200, doJSON(t, s, "POST", "/api/calibration/sample", CalibrationSampleRequest{Target: i}, nil))
	}
	assert.Equal(t, http.StatusBadRequest, doJSON(t, s, "POST", "/api/calibration/sample", CalibrationSampleRequest{Target: 99}, nil))

	var fin struct {
		Transform calibration.Affine `json:"transform"`
		Residual  float64            `json:"residual"`
		Saved     bool               `json:"saved"`
	}
	require.Equal(t, 200, doJSON(t, s, "POST", "/api/calibration/finish", CalibrationFinishRequest{Name: "desk"}, &fin))
	assert.True(t, fin.Saved)
	assert.InDelta(t, 0, fin.Residual, 1e-6)
	mapped := fin.Transform.Apply(tracking.Vec2{X: 0.6, Y: 0.5})
	assert.InDelta(t, 0.5, mapped.X, 1e-6)
	assert.InDelta(t, 0.5, mapped.Y, 1e-6)
	assert.True(t, ctl.Status().Calibrated)

	var profiles []calibration.Profile
	require.Equal(t, 200, doJSON(t, s, "GET", "/api/calibration/profiles", nil, &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, "desk", profiles[0].Name)

	// Clearing restores identity; applying the profile brings it back.
	require.Equal(t, http.StatusNoContent, doJSON(t, s, "DELETE", "/api/calibration", nil, nil))
	assert.False(t, ctl.Status().Calibrated)
	require.Equal(t, 200, doJSON(t, s, "POST", "/api/calibration/profiles/desk/apply", nil, nil))
	assert.True(t, ctl.Status().Calibrated)

	require.Equal(t, http.StatusNoContent, doJSON(t, s, "DELETE", "/api/calibration/profiles/desk", nil, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, s, "POST", "/api/calibration/profiles/desk/apply", nil, nil))
}

func TestCalibrationNeedsFreshGaze(t *testing.T) {
	s := newTestServer(t, newFake())
	require.Equal(t, 200, doJSON(t, s, "POST", "/api/calibration/start", nil, nil))
	assert.Equal(t, http.StatusConflict, doJSON(t, s, "POST", "/api/calibration/sample", CalibrationSampleRequest{Target: 0}, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, s, "POST", "/api/calibration/finish", nil, nil))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, newFake())
	assert.Equal(t, http.StatusNotFound, doJSON(t, s, "GET", "/api/metrics", nil, nil))

	exp := metrics.NewExporter()
	defer exp.Shutdown(context.Background())
	rec, err := metrics.NewRecorder(exp.Provider().Meter(metrics.ScopeName), nil)
	require.NoError(t, err)
	rec.RecordEvent(context.Background(), "click")

	s = newTestServer(t, newFake(), WithMetrics(exp))
	var got struct {
		Metrics []metrics.Point `json:"metrics"`
	}
	require.Equal(t, 200, doJSON(t, s, "GET", "/api/metrics", nil, &got))
	var events float64
	for _, p := range got.Metrics {
		if p.Name == "kursor.events" {
			events += p.Value
		}
	}
	assert.Equal(t, 1.0, events)
}

func TestProviderEndpoint(t *testing.T) {
	s := newTestServer(t, newFake())
	assert.Equal(t, http.StatusNotFound, doJSON(t, s, "GET", "/api/provider", nil, nil))

	s = newTestServer(t, newFake(), WithProviderStats(func() any { return map[string]any{"connected": true} }))
	var got map[string]any
	require.Equal(t, 200, doJSON(t, s, "GET", "/api/provider", nil, &got))
	assert.Equal(t, true, got["connected"])
}

func TestCameraEndpoints(t *testing.T) {
	s := newTestServer(t, newFake())
	assert.Equal(t, http.StatusNotFound, doJSON(t, s, "GET", "/api/camera", nil, nil))

	m := camera.NewManager(camera.DefaultConfig())
	s = newTestServer(t, newFake(), WithCamera(m, func() camera.Stats { return camera.Stats{Frames: 12} }))

	var got struct {
		Config  map[string]any `json:"config"`
		Presets []string       `json:"presets"`
		Stats   camera.Stats   `json:"stats"`
	}
	require.Equal(t, 200, doJSON(t, s, "GET", "/api/camera", nil, &got))
	assert.Equal(t, float64(640), got.Config["width"])
	assert.Contains(t, got.Presets, camera.PresetSaver)
	assert.Equal(t, uint64(12), got.Stats.Frames)

	require.Equal(t, 200, doJSON(t, s, "POST", "/api/camera", map[string]any{"preset": camera.Preset720p}, nil))
	assert.Equal(t, 1280, m.GetConfig().Width)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, s, "POST", "/api/camera", map[string]any{"framerate": 500}, nil))
}

func TestEventsWebSocket(t *testing.T) {
	const port = 18380
	s := NewServer(Config{Port: fmt.Sprint(port)}, newFake(), WithLogger(log.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartAsync(ctx)
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://localhost:%d/ws/events", port), nil)
	require.NoError(t, err)
	defer ws.Close()

	deadline := time.Now().Add(time.Second)
	for s.EventsHub().ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, s.EventsHub().ClientCount())

	pos := tracking.Vec2{X: 0.2, Y: 0.8}
	s.Publish(dispatch.Batch{
		Seq:    7,
		Cursor: fusion.CursorState{Position: pos, Valid: true},
		Events: []event.Event{event.New(event.Click, pos, time.Now(), event.SourcePinch)},
	})

	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeEvents, msg.Type)
	ev, err := msg.GetEventsData()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), ev.Seq)
	require.Len(t, ev.Events, 1)
	assert.Equal(t, "click", ev.Events[0].Kind)
}

func TestStatusWebSocketWelcome(t *testing.T) {
	const port = 18381
	s := NewServer(Config{Port: fmt.Sprint(port)}, newFake(), WithLogger(log.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartAsync(ctx)
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://localhost:%d/ws/status", port), nil)
	require.NoError(t, err)
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeStatus, msg.Type)

	var st map[string]any
	require.NoError(t, msg.ParseData(&st))
	assert.Equal(t, "tracking", st["state"])
}
