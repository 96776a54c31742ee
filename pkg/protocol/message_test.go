package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/teslashibe/go-kursor/pkg/dispatch"
	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/fusion"
	"github.com/teslashibe/go-kursor/pkg/tracking"
	"github.com/teslashibe/go-kursor/pkg/tracking/trackingtest"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "frame message",
			msgType: TypeFrame,
			data:    FrameData{Seq: 1, Width: 640, Height: 480},
			wantErr: false,
		},
		{
			name:    "control message",
			msgType: TypeControl,
			data:    ControlData{Action: "pause"},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeStatus,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestFrameData_RawFrame(t *testing.T) {
	input := `{
		"type": "frame",
		"data": {
			"seq": 42,
			"ts": 1705320000000,
			"width": 640,
			"height": 480,
			"observations": [
				{"kind": "head", "detected": true, "confidence": 0.8, "head": {"yaw": 5, "pitch": -3, "roll": 1}},
				{"kind": "eye", "detected": true, "confidence": 0.7, "gaze": {"x": 0.52, "y": 0.48, "eye_openness": 0.3}},
				{"kind": "hand", "detected": false, "confidence": 0.0},
				{"kind": "tail", "detected": true, "confidence": 0.5}
			]
		}
	}`

	msg, err := ParseMessage([]byte(input))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	fd, err := msg.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}

	raw := fd.RawFrame(time.Now())
	if raw.Seq != 42 || raw.Width != 640 || raw.Height != 480 {
		t.Errorf("header = %+v", raw)
	}
	if !raw.Timestamp.Equal(time.UnixMilli(1705320000000)) {
		t.Errorf("Timestamp = %v", raw.Timestamp)
	}
	if len(raw.Observations) != 3 {
		t.Fatalf("expected 3 observations (undetected hand dropped), got %d", len(raw.Observations))
	}

	head := raw.Observations[0]
	if head.Kind != tracking.Head || head.Head == nil || head.Head.Yaw != 5 {
		t.Errorf("head = %+v", head)
	}
	gaze := raw.Observations[1]
	if gaze.Kind != tracking.Gaze || gaze.Gaze == nil || gaze.Gaze.EyeOpenness != 0.3 {
		t.Errorf("gaze = %+v", gaze)
	}
	if raw.Observations[2].Kind.Valid() {
		t.Error("unknown kinds should map to an invalid modality")
	}
}

func TestFrameData_ReceiveTime(t *testing.T) {
	received := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	fd := FrameData{Seq: 1}
	if got := fd.RawFrame(received).Timestamp; !got.Equal(received) {
		t.Errorf("Timestamp = %v, want receive time", got)
	}
}

func TestFromRawFrame_RoundTrip(t *testing.T) {
	ts := time.UnixMilli(1705320000123)
	raw := trackingtest.HandFrame(7, ts, 640, 480, 0.9, 320, 240, trackingtest.Pinch)

	msg, err := NewFrameMessage(FromRawFrame(raw))
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}
	b, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	fd, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}

	got := fd.RawFrame(time.Time{})
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
	if len(got.Observations) != 1 || len(got.Observations[0].Hand) != tracking.NumHandLandmarks {
		t.Fatalf("hand landmarks not preserved: %+v", got.Observations)
	}
	if got.Observations[0].Hand[tracking.IndexTip] != raw.Observations[0].Hand[tracking.IndexTip] {
		t.Errorf("index tip = %v, want %v", got.Observations[0].Hand[tracking.IndexTip], raw.Observations[0].Hand[tracking.IndexTip])
	}
}

func TestEventsMessage(t *testing.T) {
	ts := time.UnixMilli(1705320000000)
	pos := tracking.Vec2{X: 0.25, Y: 0.75}
	b := dispatch.Batch{
		Seq:    3,
		Cursor: fusion.CursorState{Position: pos, Valid: true},
		Events: []event.Event{
			event.New(event.Move, pos, ts, event.SourceFusion),
			event.New(event.Pause, pos, ts, event.SourceFusion).WithReason(event.ReasonTrackingLost),
		},
	}

	msg, err := NewEventsMessage(b)
	if err != nil {
		t.Fatalf("NewEventsMessage() error = %v", err)
	}
	if msg.Type != TypeEvents {
		t.Errorf("Type = %v, want %v", msg.Type, TypeEvents)
	}
	data, err := msg.GetEventsData()
	if err != nil {
		t.Fatalf("GetEventsData() error = %v", err)
	}
	if data.Seq != 3 || data.CursorX != 0.25 || len(data.Events) != 2 {
		t.Fatalf("events = %+v", data)
	}
	if data.Events[1].Kind != "pause" || data.Events[1].Reason != "tracking-lost" || data.Events[1].TS != ts.UnixMilli() {
		t.Errorf("pause event = %+v", data.Events[1])
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}
	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingData.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestControlMessage(t *testing.T) {
	msg, err := NewControlMessage("toggle")
	if err != nil {
		t.Fatalf("NewControlMessage() error = %v", err)
	}
	ctl, err := msg.GetControlData()
	if err != nil {
		t.Fatalf("GetControlData() error = %v", err)
	}
	if ctl.Action != "toggle" {
		t.Errorf("Action = %q", ctl.Action)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "invalid json",
			input:   "not json",
			wantErr: true,
		},
		{
			name:    "empty json",
			input:   "{}",
			wantErr: false, // Empty is valid, just no type
		},
		{
			name:    "valid message",
			input:   `{"type":"ping","ts":1234567890}`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageJSON(t *testing.T) {
	msg, _ := NewControlMessage("pause")
	bytes, _ := msg.Bytes()

	var parsed map[string]interface{}
	if err := json.Unmarshal(bytes, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal as map: %v", err)
	}
	if parsed["type"] != "control" {
		t.Errorf("type = %v, want control", parsed["type"])
	}
	if _, ok := parsed["ts"]; !ok {
		t.Error("ts field should be present")
	}
	if _, ok := parsed["data"]; !ok {
		t.Error("data field should be present")
	}
}

func BenchmarkParseFrameMessage(b *testing.B) {
	raw := trackingtest.HandFrame(1, time.Now(), 1280, 720, 0.9, 640, 360, trackingtest.Point)
	msg, _ := NewFrameMessage(FromRawFrame(raw))
	bytes, _ := msg.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m, _ := ParseMessage(bytes)
		fd, _ := m.GetFrameData()
		fd.RawFrame(time.Now())
	}
}
