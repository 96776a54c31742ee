// Package hub fans out dashboard updates to websocket subscribers using
// a single goroutine that owns the client set.
package hub

import (
	"encoding/json"

	"github.com/teslashibe/go-kursor/pkg/protocol"
)

// Message is one encoded text frame for subscribers. Kind is the protocol
// envelope type, empty for ad-hoc JSON.
type Message struct {
	Kind protocol.MessageType
	Data []byte
}

// Raw wraps pre-encoded JSON.
func Raw(data []byte) Message {
	return Message{Data: data}
}

// FromProtocol encodes a protocol envelope for broadcast.
func FromProtocol(msg *protocol.Message) (Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: msg.Type, Data: data}, nil
}

// EncodeJSON marshals v into a message.
func EncodeJSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Raw(data), nil
}
