package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TypeSnapshot    = "snapshot"
	TypeRouteUpdate = "route_update"
)

var ErrMalformedMessage = errors.New("malformed channel message")

// Message is one frame received on the live channel. The set of
// implementations is closed: SnapshotMessage, RouteUpdateMessage and
// UnknownMessage.
type Message interface {
	messageType() string
}

type SnapshotMessage struct {
	Snapshot Snapshot
}

type RouteUpdateMessage struct {
	Update RouteUpdate
}

// UnknownMessage is a well-formed envelope with a type this client does not
// handle. Receivers ignore it.
type UnknownMessage struct {
	Type string
}

func (SnapshotMessage) messageType() string    { return TypeSnapshot }
func (RouteUpdateMessage) messageType() string { return TypeRouteUpdate }
func (m UnknownMessage) messageType() string   { return m.Type }

// MessageType reports the envelope type of m.
func MessageType(m Message) string {
	if m == nil {
		return ""
	}
	return m.messageType()
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeMessage parses a {"type": ..., "data": ...} frame.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch env.Type {
	case TypeSnapshot:
		var snap Snapshot
		if err := decodeData(env.Data, &snap); err != nil {
			return nil, fmt.Errorf("%w: snapshot: %v", ErrMalformedMessage, err)
		}
		return SnapshotMessage{Snapshot: snap}, nil
	case TypeRouteUpdate:
		var upd RouteUpdate
		if err := decodeData(env.Data, &upd); err != nil {
			return nil, fmt.Errorf("%w: route_update: %v", ErrMalformedMessage, err)
		}
		return RouteUpdateMessage{Update: upd}, nil
	default:
		return UnknownMessage{Type: env.Type}, nil
	}
}

// decodeData leaves v zero-valued for a missing or null payload.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
