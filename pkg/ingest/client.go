package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-kursor/internal/httpc"
	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/protocol"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	URL               string        // ws:// or wss:// address of the provider
	ReconnectDelay    time.Duration // First wait after a failed or dropped connection
	MaxReconnectDelay time.Duration // Backoff doubles up to this
	PingInterval      time.Duration // Protocol ping cadence, 0 disables
	ReadTimeout       time.Duration // Connection is dropped when nothing arrives for this long
}

// DefaultClientConfig returns settings for a provider on the local network.
func DefaultClientConfig(u string) ClientConfig {
	return ClientConfig{
		URL:               u,
		ReconnectDelay:    500 * time.Millisecond,
		MaxReconnectDelay: 10 * time.Second,
		PingInterval:      5 * time.Second,
		ReadTimeout:       15 * time.Second,
	}
}

// Client dials a perception provider and receives its frames, reconnecting
// with exponential backoff until its context is cancelled.
type Client struct {
	cfg     ClientConfig
	id      string
	onFrame FrameFunc
	logger  *slog.Logger
	dialer  *websocket.Dialer

	wmu  sync.Mutex
	conn *websocket.Conn

	connected  atomic.Bool
	frames     atomic.Uint64
	reconnects atomic.Uint64
	latencyMs  atomic.Int64
}

// NewClient creates a client. onFrame is called from the read goroutine.
func NewClient(cfg ClientConfig, onFrame FrameFunc, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ingest: bad provider url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("ingest: provider url must be ws:// or wss://, got %q", cfg.URL)
	}
	def := DefaultClientConfig(cfg.URL)
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if logger == nil {
		logger = log.With("component", "ingest-client")
	}
	return &Client{
		cfg:     cfg,
		id:      u.Host,
		onFrame: onFrame,
		logger:  logger.With("provider", u.Host),
		dialer:  httpc.WebSocketDialer(0),
	}, nil
}

// Run connects and serves until ctx is done. It only returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	delay := c.cfg.ReconnectDelay
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			delay = c.cfg.ReconnectDelay
		}
		c.reconnects.Add(1)
		c.logger.Warn("provider connection lost, reconnecting", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// session runs one connection. A nil error means the connection was
// established and later dropped.
func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.wmu.Lock()
	c.conn = conn
	c.wmu.Unlock()
	c.connected.Store(true)
	c.logger.Info("provider connected")

	done := make(chan struct{})
	defer func() {
		close(done)
		c.connected.Store(false)
		c.wmu.Lock()
		c.conn = nil
		c.wmu.Unlock()
		conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.wmu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.wmu.Unlock()
			conn.Close()
		case <-done:
		}
	}()

	if c.cfg.PingInterval > 0 {
		go c.keepAlive(done)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.logger.Debug("bad message from provider", "error", err)
		return
	}
	switch msg.Type {
	case protocol.TypeFrame:
		frame, err := msg.GetFrameData()
		if err != nil {
			c.logger.Debug("bad frame from provider", "error", err)
			return
		}
		c.frames.Add(1)
		if c.onFrame != nil {
			c.onFrame(c.id, frame.RawFrame(time.Now()))
		}
	case protocol.TypePong:
		if pong, err := msg.GetPongData(); err == nil && pong.PingTS > 0 {
			c.latencyMs.Store(time.Now().UnixMilli() - pong.PingTS)
		}
	case protocol.TypePing:
		if pong, err := protocol.NewPongMessage("", msg.Timestamp, time.Now().UnixMilli()); err == nil {
			c.send(pong)
		}
	}
}

// keepAlive sends periodic protocol pings until done is closed
func (c *Client) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			msg, err := protocol.NewPingMessage(c.id)
			if err != nil {
				continue
			}
			if err := c.send(msg); err != nil {
				return
			}
		}
	}
}

var errNotConnected = errors.New("ingest: not connected")

func (c *Client) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return errNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ClientStats describes the provider link.
type ClientStats struct {
	URL        string `json:"url"`
	Connected  bool   `json:"connected"`
	Frames     uint64 `json:"frames"`
	Reconnects uint64 `json:"reconnects"`
	LatencyMs  int64  `json:"latency_ms"`
}

// Stats returns link statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		URL:        c.cfg.URL,
		Connected:  c.connected.Load(),
		Frames:     c.frames.Load(),
		Reconnects: c.reconnects.Load(),
		LatencyMs:  c.latencyMs.Load(),
	}
}
