package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dennishermann/evaepic-sub000/internal/progress"
)

// TypeStartNegotiation is the only message the client sends.
const TypeStartNegotiation = "start_negotiation"

// Outbound is the initiation message sent once after the stream opens.
type Outbound struct {
	Type        string         `json:"type"`
	UserInput   string         `json:"user_input"`
	OrderObject map[string]any `json:"order_object,omitempty"`
	MaxRounds   int            `json:"max_rounds,omitempty"`
}

// StartNegotiation builds the initiation message. maxRounds <= 0 leaves the
// backend default in place.
func StartNegotiation(input string, order map[string]any, maxRounds int) Outbound {
	if maxRounds < 0 {
		maxRounds = 0
	}
	return Outbound{
		Type:        TypeStartNegotiation,
		UserInput:   input,
		OrderObject: order,
		MaxRounds:   maxRounds,
	}
}

// Inbound is the envelope of every message the backend sends.
type Inbound struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Normalize applies canonical formatting before validation.
func (in *Inbound) Normalize() {
	if in == nil {
		return
	}
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.Message = strings.TrimSpace(in.Message)
}

// Validate enforces the envelope requirements.
func (in Inbound) Validate() error {
	switch progress.Kind(in.Type) {
	case "":
		return errors.New("type is required")
	case progress.KindProgress, progress.KindComplete, progress.KindError:
		return nil
	default:
		return fmt.Errorf("unknown message type %q", in.Type)
	}
}

type progressPayload struct {
	Node        string         `json:"node"`
	StateUpdate map[string]any `json:"state_update"`
}

// Decode parses one raw frame into a stage event.
func Decode(raw []byte) (progress.Event, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return progress.Event{}, fmt.Errorf("stream: decode frame: %w", err)
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return progress.Event{}, fmt.Errorf("stream: invalid frame: %w", err)
	}
	ev := progress.Event{Kind: progress.Kind(in.Type), Message: in.Message}
	switch ev.Kind {
	case progress.KindProgress:
		var payload progressPayload
		if err := unmarshalPayload(in.Payload, &payload); err != nil {
			return progress.Event{}, fmt.Errorf("stream: progress payload: %w", err)
		}
		ev.StageKey = strings.TrimSpace(payload.Node)
		if ev.StageKey == "" {
			return progress.Event{}, errors.New("stream: invalid frame: progress requires payload.node")
		}
		ev.Payload = payload.StateUpdate
	default:
		var payload map[string]any
		if err := unmarshalPayload(in.Payload, &payload); err != nil {
			return progress.Event{}, fmt.Errorf("stream: %s payload: %w", in.Type, err)
		}
		ev.Payload = payload
		if ev.Kind == progress.KindError {
			if msg, ok := payload["message"].(string); ok && strings.TrimSpace(msg) != "" {
				ev.Message = strings.TrimSpace(msg)
			}
		}
	}
	return ev, nil
}

func unmarshalPayload(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, out)
}
