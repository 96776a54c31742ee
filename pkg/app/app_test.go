package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-kursor/internal/config"
	"github.com/teslashibe/go-kursor/pkg/calibration"
	"github.com/teslashibe/go-kursor/pkg/dispatch"
	"github.com/teslashibe/go-kursor/pkg/engine"
	"github.com/teslashibe/go-kursor/pkg/protocol"
	"github.com/teslashibe/go-kursor/pkg/tracking/trackingtest"
)

func testFile(t *testing.T, port string) *config.File {
	t.Helper()
	f := config.Default()
	f.Web.Port = port
	f.Calibration.DB = filepath.Join(t.TempDir(), "cal.db")
	return f
}

func TestNewRejectsNil(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestInitAppliesStartupProfile(t *testing.T) {
	f := testFile(t, "18470")
	f.Calibration.Profile = "desk"

	store, err := calibration.Open(f.Calibration.DB)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), calibration.Profile{
		Name:      "desk",
		Transform: calibration.Affine{A: 1.1, E: 0.9, C: 0.02},
		Points:    9,
	}))
	require.NoError(t, store.Close())

	a, err := New(f, WithInjector(&dispatch.Recorder{}))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	defer a.Shutdown()

	assert.True(t, a.Runner().Status().Calibrated)
}

func TestInitMissingProfileIsNotFatal(t *testing.T) {
	f := testFile(t, "18471")
	f.Calibration.Profile = "nowhere"

	a, err := New(f, WithInjector(&dispatch.Recorder{}))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	defer a.Shutdown()

	assert.False(t, a.Runner().Status().Calibrated)
}

func TestInitRejectsBadProvider(t *testing.T) {
	f := testFile(t, "18472")
	f.Ingest.ProviderURL = "http://example.com"

	a, err := New(f)
	require.NoError(t, err)
	defer a.Shutdown()
	assert.Error(t, a.Init(context.Background()))
}

func waitState(t *testing.T, a *App, want engine.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.Runner().Status().State == want
	}, 3*time.Second, 10*time.Millisecond, "state never became %s", want)
}

func TestRunDrivesEngineFromProviders(t *testing.T) {
	f := testFile(t, "18473")
	rec := &dispatch.Recorder{}
	a, err := New(f, WithInjector(rec))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	defer a.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial("ws://localhost:18473/ingest/ws/test", nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 3*time.Second, 50*time.Millisecond)
	defer conn.Close()

	send := func(msg *protocol.Message) {
		b, err := msg.Bytes()
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
	}

	start := time.Now()
	for i := 0; i < 5; i++ {
		raw := trackingtest.HandFrame(uint64(i+1), start.Add(time.Duration(i)*33*time.Millisecond), 640, 480, 0.9, 320, 240, trackingtest.Point)
		msg, err := protocol.NewFrameMessage(protocol.FromRawFrame(raw))
		require.NoError(t, err)
		send(msg)
		time.Sleep(5 * time.Millisecond)
	}
	waitState(t, a, engine.Tracking)

	sub, _, err := websocket.DefaultDialer.Dial("ws://localhost:18473/ws/events", nil)
	require.NoError(t, err)
	defer sub.Close()

	pause, err := protocol.NewControlMessage("pause")
	require.NoError(t, err)
	send(pause)
	waitState(t, a, engine.Paused)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, engine.Stopped, a.Runner().Status().State)
	assert.NotEmpty(t, rec.Events(), "terminal events reach the injector")
	assert.True(t, sawTerminalPause(sub), "dashboard subscribers get the terminal pause")
}

func sawTerminalPause(conn *websocket.Conn) bool {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypeEvents {
			continue
		}
		ev, err := msg.GetEventsData()
		if err != nil {
			continue
		}
		for _, e := range ev.Events {
			if e.Kind == "pause" && e.Reason == "stopped" {
				return true
			}
		}
	}
}

func TestHandleControlUnknownAction(t *testing.T) {
	f := testFile(t, "18474")
	a, err := New(f, WithInjector(&dispatch.Recorder{}))
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	defer a.Shutdown()

	// The runner is not running: known actions time out, unknown ones are
	// dropped without reaching it.
	a.handleControl("p1", "dance")
	a.handleControl("p1", "pause")
}
