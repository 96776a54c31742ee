// Package protocol defines the WebSocket message types exchanged between
// perception providers, the engine and dashboard clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Provider → Engine messages
	TypeFrame MessageType = "frame" // Per-frame landmark and pose estimates

	// Engine → Observer messages
	TypeEvents MessageType = "events" // Dispatched interaction events
	TypeStatus MessageType = "status" // Engine status snapshot

	// Observer → Engine messages
	TypeControl MessageType = "control" // Pause, resume or toggle

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Provider → Engine Message Types
// =============================================================================

// FrameData is one tick of the perception provider
type FrameData struct {
	Seq          uint64            `json:"seq"`
	Timestamp    int64             `json:"ts,omitempty"` // Capture time, unix ms (0 = receive time)
	Width        int               `json:"width"`        // Camera resolution of hand landmarks
	Height       int               `json:"height"`
	Observations []ObservationData `json:"observations"`
}

// ObservationData is a single modality estimate. Only the payload
// matching Kind is read.
type ObservationData struct {
	Kind       string         `json:"kind"` // "head", "hand", "gaze"
	Detected   bool           `json:"detected"`
	Confidence float64        `json:"confidence"` // 0.0 to 1.0
	Head       *HeadData      `json:"head,omitempty"`
	Hand       []LandmarkData `json:"hand,omitempty"` // 21 landmarks in pixels
	Gaze       *GazeData      `json:"gaze,omitempty"`
}

// HeadData is a head orientation in degrees
type HeadData struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// LandmarkData is one hand landmark
type LandmarkData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// GazeData is an iris position inside the eye plus the eye aspect ratio
type GazeData struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	EyeOpenness float64 `json:"eye_openness"`
}

// =============================================================================
// Engine → Observer Message Types
// =============================================================================

// EventData is one interaction event
type EventData struct {
	Kind   string  `json:"kind"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	TS     int64   `json:"ts"` // Unix milliseconds
	Source string  `json:"source,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// EventsData is everything one frame produced
type EventsData struct {
	Seq     uint64      `json:"seq"`
	CursorX float64     `json:"cursor_x"`
	CursorY float64     `json:"cursor_y"`
	Events  []EventData `json:"events"`
}

// =============================================================================
// Observer → Engine Message Types
// =============================================================================

// ControlData requests a lifecycle change
type ControlData struct {
	Action string `json:"action"` // "pause", "resume", "toggle"
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
