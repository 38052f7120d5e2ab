package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Relay events.
const (
	EventWaiting    = "waiting"
	EventMatched    = "matched"
	EventGameUpdate = "gameUpdate"
	EventEffect     = "effect"
	EventGameResult = "gameResult"
	EventError      = "error"
)

// Frame is one websocket text message: an event name plus its payload.
// Clients may send the payload as a JSON string holding the real object.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return f, err
	}
	if f.Event == "" {
		return f, fmt.Errorf("frame: missing event")
	}
	return f, nil
}

// Payload returns the frame data, unwrapping one level of string encoding.
func (f Frame) Payload() (json.RawMessage, error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 || data[0] != '"' {
		return data, nil
	}
	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return nil, fmt.Errorf("frame %s: %w", f.Event, err)
	}
	return json.RawMessage(inner), nil
}

// Decode unmarshals the payload into v.
func (f Frame) Decode(v any) error {
	p, err := f.Payload()
	if err != nil {
		return err
	}
	if len(p) == 0 {
		return fmt.Errorf("frame %s: empty payload", f.Event)
	}
	if err := json.Unmarshal(p, v); err != nil {
		return fmt.Errorf("frame %s: %w", f.Event, err)
	}
	return nil
}

// Encode builds a frame with v as object payload.
func Encode(event string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// EncodeStringified builds a frame whose payload is v serialized into a JSON
// string, the form clients use for gameUpdate and gameResult.
func EncodeStringified(event string, v any) ([]byte, error) {
	inner, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(string(inner))
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// Characters are the selectable player avatars.
var Characters = []string{"bonedry", "bowser", "luigi", "mario", "toad", "yoshi"}

func IsCharacter(s string) bool {
	for _, c := range Characters {
		if c == s {
			return true
		}
	}
	return false
}
