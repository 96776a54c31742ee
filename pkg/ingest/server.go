// Package ingest receives per-frame perception output from providers over
// WebSocket, either by accepting provider connections (Server) or by
// dialing a provider (Client).
package ingest

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/protocol"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// FrameFunc receives a converted frame from a provider.
type FrameFunc func(providerID string, frame tracking.RawFrame)

// ControlFunc receives a control request (pause, resume, toggle).
type ControlFunc func(providerID string, action string)

// ProviderConnection represents a connected perception provider
type ProviderConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Frames    uint64

	mu sync.Mutex
}

// Send sends a message to the provider
func (p *ProviderConnection) Send(msg *protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return p.Conn.WriteMessage(websocket.TextMessage, data)
}

// Server manages WebSocket connections from perception providers
type Server struct {
	mu        sync.RWMutex
	providers map[string]*ProviderConnection
	logger    *slog.Logger
	errLog    *rate.Sometimes

	// Callbacks
	onFrame   FrameFunc
	onControl ControlFunc

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	parseErrors      atomic.Uint64
}

// NewServer creates a provider server
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = log.With("component", "ingest")
	}
	return &Server{
		providers: make(map[string]*ProviderConnection),
		logger:    logger,
		errLog:    &rate.Sometimes{Interval: 5 * time.Second},
	}
}

// OnFrame sets the callback for incoming frames
func (s *Server) OnFrame(callback FrameFunc) {
	s.mu.Lock()
	s.onFrame = callback
	s.mu.Unlock()
}

// OnControl sets the callback for control requests
func (s *Server) OnControl(callback ControlFunc) {
	s.mu.Lock()
	s.onControl = callback
	s.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (s *Server) RegisterRoutes(app fiber.Router) {
	// WebSocket upgrade middleware
	app.Use("/ingest/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Provider connection endpoint
	app.Get("/ingest/ws", websocket.New(s.handleProvider))
	app.Get("/ingest/ws/:id", websocket.New(s.handleProvider))
}

// handleProvider handles a provider WebSocket connection
func (s *Server) handleProvider(c *websocket.Conn) {
	// Get provider ID from path or generate one
	providerID := c.Params("id")
	if providerID == "" {
		providerID = uuid.NewString()
	}

	provider := &ProviderConnection{
		ID:        providerID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	s.mu.Lock()
	s.providers[providerID] = provider
	count := len(s.providers)
	s.mu.Unlock()

	s.logger.Info("provider connected", "provider", providerID, "total", count)

	defer func() {
		s.mu.Lock()
		if s.providers[providerID] == provider {
			delete(s.providers, providerID)
		}
		count := len(s.providers)
		s.mu.Unlock()

		s.logger.Info("provider disconnected", "provider", providerID, "total", count)
	}()

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("provider read error", "provider", providerID, "error", err)
			return
		}

		provider.mu.Lock()
		provider.LastSeen = time.Now()
		provider.mu.Unlock()

		s.messagesReceived.Add(1)
		s.handleMessage(provider, data)
	}
}

// handleMessage processes an incoming message from a provider
func (s *Server) handleMessage(p *ProviderConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.parseError(p.ID, err)
		return
	}

	s.mu.RLock()
	frameCb := s.onFrame
	controlCb := s.onControl
	s.mu.RUnlock()

	switch msg.Type {
	case protocol.TypeFrame:
		s.framesReceived.Add(1)
		frame, err := msg.GetFrameData()
		if err != nil {
			s.parseError(p.ID, err)
			return
		}
		p.mu.Lock()
		p.Frames++
		p.mu.Unlock()
		if frameCb != nil {
			frameCb(p.ID, frame.RawFrame(time.Now()))
		}

	case protocol.TypeControl:
		ctl, err := msg.GetControlData()
		if err != nil {
			s.parseError(p.ID, err)
			return
		}
		if controlCb != nil {
			controlCb(p.ID, ctl.Action)
		}

	case protocol.TypePing:
		// Respond with pong
		s.SendPong(p.ID, msg.Timestamp)
	}
}

func (s *Server) parseError(providerID string, err error) {
	s.parseErrors.Add(1)
	s.errLog.Do(func() {
		s.logger.Warn("bad message from provider", "provider", providerID, "error", err)
	})
}

// SendPong sends a pong response to a provider
func (s *Server) SendPong(providerID string, pingTS int64) error {
	msg, err := protocol.NewPongMessage("", pingTS, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	return s.sendToProvider(providerID, msg)
}

// sendToProvider sends a message to a specific provider
func (s *Server) sendToProvider(providerID string, msg *protocol.Message) error {
	s.mu.RLock()
	provider, ok := s.providers[providerID]
	s.mu.RUnlock()

	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "provider not connected")
	}

	s.messagesSent.Add(1)
	return provider.Send(msg)
}

// ProviderCount returns the number of connected providers
func (s *Server) ProviderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.providers)
}

// Stats contains server statistics
type Stats struct {
	ProviderCount    int    `json:"provider_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	ParseErrors      uint64 `json:"parse_errors"`
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	return Stats{
		ProviderCount:    s.ProviderCount(),
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		FramesReceived:   s.framesReceived.Load(),
		ParseErrors:      s.parseErrors.Load(),
	}
}

// ProviderInfo contains info about a connected provider
type ProviderInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Frames    uint64    `json:"frames"`
}

// GetProviderInfos returns info about all connected providers
func (s *Server) GetProviderInfos() []ProviderInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(s.providers))
	for _, p := range s.providers {
		p.mu.Lock()
		infos = append(infos, ProviderInfo{
			ID:        p.ID,
			Connected: p.Connected,
			LastSeen:  p.LastSeen,
			Frames:    p.Frames,
		})
		p.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for provider management
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	providers := api.Group("/providers")

	// List connected providers
	providers.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"providers": s.GetProviderInfos(),
			"count":     s.ProviderCount(),
		})
	})

	// Get server stats
	providers.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.GetStats())
	})
}
