package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/protocol"
	"github.com/teslashibe/go-kursor/pkg/tracking"
	"github.com/teslashibe/go-kursor/pkg/tracking/trackingtest"
)

// startProvider runs a fake provider that sends n frames to each
// connection and then waits for the peer to hang up.
func startProvider(t *testing.T, addr string, n int) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/frames", websocket.New(func(c *websocket.Conn) {
		start := time.UnixMilli(1705320000000)
		for i := 0; i < n; i++ {
			raw := trackingtest.HandFrame(uint64(i+1), start.Add(time.Duration(i)*33*time.Millisecond),
				640, 480, 0.9, 320, 240, trackingtest.Point)
			msg, _ := protocol.NewFrameMessage(protocol.FromRawFrame(raw))
			data, _ := msg.Bytes()
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	go app.Listen(addr)
	time.Sleep(100 * time.Millisecond)
	return app
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"http://localhost:1/x", "://nope", ""} {
		if _, err := NewClient(ClientConfig{URL: u}, nil, log.Discard()); err == nil {
			t.Errorf("NewClient(%q) should fail", u)
		}
	}
}

func TestClient_ReceivesFrames(t *testing.T) {
	app := startProvider(t, ":18190", 3)
	defer app.Shutdown()

	frames := make(chan tracking.RawFrame, 8)
	c, err := NewClient(DefaultClientConfig("ws://localhost:18190/frames"), func(id string, f tracking.RawFrame) {
		if id != "localhost:18190" {
			t.Errorf("provider id = %q", id)
		}
		frames <- f
	}, log.Discard())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for want := uint64(1); want <= 3; want++ {
		select {
		case f := <-frames:
			if f.Seq != want {
				t.Errorf("Seq = %d, want %d", f.Seq, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d not received", want)
		}
	}

	stats := c.Stats()
	if !stats.Connected || stats.Frames != 3 {
		t.Errorf("stats = %+v", stats)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if c.Stats().Connected {
		t.Error("client should report disconnected after Run returns")
	}
}

func TestClient_RetriesUntilCancelled(t *testing.T) {
	cfg := DefaultClientConfig("ws://localhost:18191/frames")
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 20 * time.Millisecond
	c, err := NewClient(cfg, nil, log.Discard())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want deadline exceeded", err)
	}
	if c.Stats().Reconnects == 0 {
		t.Error("expected reconnect attempts against a dead provider")
	}
}
