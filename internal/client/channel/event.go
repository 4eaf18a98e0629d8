package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind is the closed set of inbound event kinds.
type EventKind int

const (
	KindReceiveNotification EventKind = iota + 1
)

func (k EventKind) String() string {
	switch k {
	case KindReceiveNotification:
		return "ReceiveNotification"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

var errUnknownKind = errors.New("unknown event kind")

// Notification is the normalized ReceiveNotification payload. Producers may
// send a bare string or an object; both arrive here in the same shape.
type Notification struct {
	ServerID int64  // 0 when the producer did not persist it
	Message  string
	TaskID   int64 // 0 = none
	Severity string
}

// Event is one inbound frame, decoded once at the boundary.
type Event struct {
	Kind         EventKind
	Notification Notification
	// Raw is the canonical string encoding of the payload: the string
	// itself for plain text, re-encoded JSON for objects however they arrived.
	Raw string
}

type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireNotification struct {
	ID       int64  `json:"id,omitempty"`
	Message  string `json:"message"`
	TaskID   int64  `json:"taskId,omitempty"`
	Severity string `json:"severity,omitempty"`
}

func decodeFrame(data []byte) (Event, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Type != KindReceiveNotification.String() {
		return Event{}, fmt.Errorf("%w: %q", errUnknownKind, f.Type)
	}

	n, raw, err := decodeNotification(f.Payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: KindReceiveNotification, Notification: n, Raw: raw}, nil
}

func decodeNotification(payload json.RawMessage) (Notification, string, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return Notification{}, "", errors.New("empty payload")
	}

	if payload[0] == '"' {
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Notification{}, "", fmt.Errorf("decoding string payload: %w", err)
		}
		// Some producers send the object pre-encoded as a string.
		if n, raw, ok := parseObject([]byte(s)); ok {
			return n, raw, nil
		}
		return Notification{Message: s}, s, nil
	}

	n, raw, ok := parseObject(payload)
	if !ok {
		return Notification{}, "", errors.New("payload is neither a string nor a notification object")
	}
	return n, raw, nil
}

// parseObject decodes a notification object and re-encodes it so that every
// wire shape of the same notification yields the same raw string.
func parseObject(data []byte) (Notification, string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Notification{}, "", false
	}
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil || w.Message == "" {
		return Notification{}, "", false
	}
	canonical, err := json.Marshal(w)
	if err != nil {
		return Notification{}, "", false
	}
	return Notification{ServerID: w.ID, Message: w.Message, TaskID: w.TaskID, Severity: w.Severity}, string(canonical), true
}
