package protocol

import (
	"time"

	"github.com/teslashibe/go-kursor/pkg/dispatch"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message
func NewFrameMessage(frame FrameData) (*Message, error) {
	return NewMessage(TypeFrame, frame)
}

// NewEventsMessage creates an events message from a dispatched batch
func NewEventsMessage(b dispatch.Batch) (*Message, error) {
	data := EventsData{
		Seq:     b.Seq,
		CursorX: b.Cursor.Position.X,
		CursorY: b.Cursor.Position.Y,
		Events:  make([]EventData, 0, len(b.Events)),
	}
	for _, e := range b.Events {
		data.Events = append(data.Events, EventData{
			Kind:   string(e.Kind),
			X:      e.Position.X,
			Y:      e.Position.Y,
			TS:     e.Timestamp.UnixMilli(),
			Source: string(e.Source),
			Reason: e.Reason,
		})
	}
	return NewMessage(TypeEvents, data)
}

// NewStatusMessage creates a status message. status is any JSON value.
func NewStatusMessage(status interface{}) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewControlMessage creates a control message
func NewControlMessage(action string) (*Message, error) {
	return NewMessage(TypeControl, ControlData{Action: action})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetEventsData extracts events from a message
func (m *Message) GetEventsData() (*EventsData, error) {
	var data EventsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetControlData extracts a control request from a message
func (m *Message) GetControlData() (*ControlData, error) {
	var data ControlData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// =============================================================================
// Conversion to engine types
// =============================================================================

// RawFrame converts the wire frame for the engine. Observations that were
// not detected are left out; unknown kinds are kept with an invalid
// modality so the normalizer reports them. received is used when the
// provider sent no timestamp.
func (f *FrameData) RawFrame(received time.Time) tracking.RawFrame {
	ts := received
	if f.Timestamp > 0 {
		ts = time.UnixMilli(f.Timestamp)
	}
	raw := tracking.RawFrame{
		Seq:          f.Seq,
		Timestamp:    ts,
		Width:        f.Width,
		Height:       f.Height,
		Observations: make([]tracking.RawObservation, 0, len(f.Observations)),
	}
	for _, o := range f.Observations {
		if !o.Detected {
			continue
		}
		raw.Observations = append(raw.Observations, o.raw())
	}
	return raw
}

func (o ObservationData) raw() tracking.RawObservation {
	kind, err := tracking.ParseModality(o.Kind)
	if err != nil {
		kind = tracking.Modality(-1)
	}
	ro := tracking.RawObservation{Kind: kind, Confidence: o.Confidence}
	if o.Head != nil {
		ro.Head = &tracking.HeadPose{Yaw: o.Head.Yaw, Pitch: o.Head.Pitch, Roll: o.Head.Roll}
	}
	if len(o.Hand) > 0 {
		ro.Hand = make([]tracking.Point3D, len(o.Hand))
		for i, p := range o.Hand {
			ro.Hand[i] = tracking.Point3D{X: p.X, Y: p.Y, Z: p.Z}
		}
	}
	if o.Gaze != nil {
		ro.Gaze = &tracking.GazeSample{X: o.Gaze.X, Y: o.Gaze.Y, EyeOpenness: o.Gaze.EyeOpenness}
	}
	return ro
}

// FromRawFrame builds the wire form of a raw frame. Providers written in
// Go use it; the local camera source does too.
func FromRawFrame(raw tracking.RawFrame) FrameData {
	f := FrameData{
		Seq:          raw.Seq,
		Width:        raw.Width,
		Height:       raw.Height,
		Observations: make([]ObservationData, 0, len(raw.Observations)),
	}
	if !raw.Timestamp.IsZero() {
		f.Timestamp = raw.Timestamp.UnixMilli()
	}
	for _, ro := range raw.Observations {
		o := ObservationData{Kind: ro.Kind.String(), Detected: true, Confidence: ro.Confidence}
		if ro.Head != nil {
			o.Head = &HeadData{Yaw: ro.Head.Yaw, Pitch: ro.Head.Pitch, Roll: ro.Head.Roll}
		}
		for _, p := range ro.Hand {
			o.Hand = append(o.Hand, LandmarkData{X: p.X, Y: p.Y, Z: p.Z})
		}
		if ro.Gaze != nil {
			o.Gaze = &GazeData{X: ro.Gaze.X, Y: ro.Gaze.Y, EyeOpenness: ro.Gaze.EyeOpenness}
		}
		f.Observations = append(f.Observations, o)
	}
	return f
}
