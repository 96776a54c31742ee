// Package httpc provides shared network dialers with sensible defaults.
// Use these instead of the zero-value dialers to ensure timeouts are set.
package httpc

import (
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts for network operations.
const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultKeepAlive        = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultBufferSize       = 64 * 1024
)

// NetDialer is a shared TCP dialer with production-ready defaults.
var NetDialer = &net.Dialer{
	Timeout:   DefaultConnectTimeout,
	KeepAlive: DefaultKeepAlive,
}

// WebSocketDialer returns a WebSocket dialer with the shared TCP dialer
// and the given handshake timeout (DefaultHandshakeTimeout when zero).
// Read buffers are sized for landmark frames, which are a few KB each.
func WebSocketDialer(handshake time.Duration) *websocket.Dialer {
	if handshake <= 0 {
		handshake = DefaultHandshakeTimeout
	}
	return &websocket.Dialer{
		NetDialContext:   NetDialer.DialContext,
		HandshakeTimeout: handshake,
		ReadBufferSize:   DefaultBufferSize,
		WriteBufferSize:  4 * 1024,
	}
}
