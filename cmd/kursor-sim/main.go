// kursor-sim - Synthetic perception provider for trying kursor without a
// camera. It connects to a running kursor and streams a hand that traces a
// circle and pinches every few seconds.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-kursor/internal/httpc"
	"github.com/teslashibe/go-kursor/pkg/protocol"
	"github.com/teslashibe/go-kursor/pkg/tracking/trackingtest"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8090/ingest/ws/sim", "kursor ingest endpoint")
	fps := flag.Int("fps", 30, "Frames per second")
	period := flag.Duration("period", 4*time.Second, "Time for one circle")
	pinchEvery := flag.Duration("pinch-every", 3*time.Second, "Pinch interval, 0 disables")
	flag.Parse()

	fmt.Println("🖐️  kursor-sim")
	fmt.Printf("   Target: %s @ %d fps\n", *addr, *fps)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, _, err := httpc.WebSocketDialer(0).DialContext(ctx, *addr, nil)
	if err != nil {
		fmt.Printf("❌ Connect failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println("✅ Connected, streaming (Ctrl+C to stop)")

	if err := stream(ctx, conn, *fps, *period, *pinchEvery); err != nil && ctx.Err() == nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	fmt.Println("\n👋 Stopped")
}

const (
	width  = 640
	height = 480
	radius = 120.0
	// A pinch is held for this long so the confirm window passes.
	pinchHold = 400 * time.Millisecond
)

func stream(ctx context.Context, conn *websocket.Conn, fps int, period, pinchEvery time.Duration) error {
	if fps < 1 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	start := time.Now()
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			seq++
			elapsed := now.Sub(start)
			angle := 2 * math.Pi * elapsed.Seconds() / period.Seconds()
			x := width/2 + radius*math.Cos(angle)
			y := height/2 + radius*math.Sin(angle)

			pose := trackingtest.Point
			if pinchEvery > 0 && elapsed%pinchEvery < pinchHold {
				pose = trackingtest.Pinch
			}

			raw := trackingtest.HandFrame(seq, now, width, height, 0.9, x, y, pose)
			msg, err := protocol.NewFrameMessage(protocol.FromRawFrame(raw))
			if err != nil {
				return err
			}
			data, err := msg.Bytes()
			if err != nil {
				return err
			}
			conn.SetWriteDeadline(now.Add(time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("send frame %d: %w", seq, err)
			}
		}
	}
}
