package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformed   = errors.New("malformed envelope")
	ErrUnknownType = errors.New("unknown envelope type")
)

// Encode serializes m as one text frame. The type field always matches the
// variant and a missing timestamp is filled with the current time.
func Encode(m Message) ([]byte, error) {
	h := m.header()
	h.Type = m.MessageType()
	if h.Timestamp == 0 {
		h.Timestamp = time.Now().UnixMilli()
	}
	return json.Marshal(m)
}

// Decode parses one frame. Unknown fields are ignored.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Type          Type   `json:"type"`
		CorrelationID string `json:"correlationId"`
		MessageID     string `json:"messageId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var m Message
	switch probe.Type {
	case TypeRegister:
		m = &Register{}
	case TypeCLIRequest:
		m = &CLIRequest{}
	case TypeAck:
		m = &Ack{}
	case TypeHeartbeat:
		m = &Heartbeat{}
	case TypeResponse:
		m = &Response{}
	case TypeError:
		m = &Error{}
	case TypeInject:
		m = &Inject{}
	case TypeFocusTab:
		m = &FocusTab{}
	case TypeDebugTabs:
		m = &DebugTabs{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, probe.Type)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, probe.Type, err)
	}
	if h := m.header(); h.CorrelationID == "" {
		h.CorrelationID = probe.MessageID
	}
	return m, nil
}

// MustEncode is Encode for values that are known to serialize.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}
