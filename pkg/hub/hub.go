package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-kursor/internal/log"
)

// WelcomeFunc builds the first message a new client receives, typically
// the current status. ok=false sends nothing.
type WelcomeFunc func() (msg Message, ok bool)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger

	// Registered clients, owned by Run
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register and unregister requests from clients
	register   chan *Client
	unregister chan *Client

	// Client count mirror for readers outside Run
	count atomic.Int32

	welcomeMu sync.RWMutex
	welcome   WelcomeFunc

	dropped  atomic.Uint64
	dropLog  rate.Sometimes
	done     chan struct{}
	running  atomic.Bool
	stopOnce sync.Once
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = log.L()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		dropLog:    rate.Sometimes{Interval: 5 * time.Second},
		done:       make(chan struct{}),
	}
}

// SetWelcome sets the message sent to each client when it joins.
func (h *Hub) SetWelcome(fn WelcomeFunc) {
	h.welcomeMu.Lock()
	h.welcome = fn
	h.welcomeMu.Unlock()
}

// Run owns the client set until ctx is done or Stop is called.
// This should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.Stop()
		h.drain()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.count.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int32(len(h.clients)))
			h.greet(client)
			h.logger.Info("client connected", "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.count.Store(int32(len(h.clients)))
			h.logger.Info("client disconnected", "remaining", len(h.clients))

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) fanOut(message Message) {
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Client's buffer is full, they're too slow
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("dropped slow client", "kind", message.Kind)
		}
	}
	h.count.Store(int32(len(h.clients)))
}

// drain delivers messages queued before Run returned, so the last
// broadcasts (a terminal pause) still reach connected clients.
func (h *Hub) drain() {
	for {
		select {
		case message := <-h.broadcast:
			h.fanOut(message)
		default:
			return
		}
	}
}

func (h *Hub) greet(c *Client) {
	h.welcomeMu.RLock()
	fn := h.welcome
	h.welcomeMu.RUnlock()
	if fn == nil {
		return
	}
	if msg, ok := fn(); ok {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Stop ends Run and disconnects every client. It is safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast sends a message to all connected clients. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("broadcast queue full, dropping messages", "kind", msg.Kind, "dropped", h.dropped.Load())
		})
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Dropped returns how many broadcasts were discarded because the queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
