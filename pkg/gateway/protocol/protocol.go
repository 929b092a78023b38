// Package protocol defines the JSON frames exchanged on the /v1/call
// WebSocket. The client is the call transport (telephony bridge plus
// the conversational model); the server is the orchestration layer.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sundial-care/sundial/pkg/core/live"
)

// Client frame types.
const (
	TypeStart         = "start"
	TypeUtterance     = "utterance"
	TypeReplyDelta    = "reply_delta"
	TypeReplyComplete = "reply_complete"
	TypeToolCall      = "tool_call"
	TypeClose         = "close"
)

// ClientStart opens a session. It must be the first frame on the socket.
type ClientStart struct {
	Type     string `json:"type"`
	CallerID string `json:"caller_id"`
	// Outbound marks calls the companion places, where it speaks first.
	Outbound bool `json:"outbound"`
}

// ClientUtterance carries one finalized user utterance.
type ClientUtterance struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientReplyDelta carries one chunk of generated reply text.
type ClientReplyDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientReplyComplete marks the end of one generated assistant turn.
type ClientReplyComplete struct {
	Type string `json:"type"`
}

// ClientToolCall reports a tool invocation by the conversational model.
type ClientToolCall struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ClientClose asks the server to end the session.
type ClientClose struct {
	Type string `json:"type"`
}

type typeProbe struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one client frame into its typed struct.
func DecodeClientMessage(data []byte) (any, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	switch strings.TrimSpace(probe.Type) {
	case TypeStart:
		var m ClientStart
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid start frame: %w", err)
		}
		if strings.TrimSpace(m.CallerID) == "" {
			return nil, fmt.Errorf("start frame requires caller_id")
		}
		return m, nil
	case TypeUtterance:
		var m ClientUtterance
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid utterance frame: %w", err)
		}
		return m, nil
	case TypeReplyDelta:
		var m ClientReplyDelta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid reply_delta frame: %w", err)
		}
		return m, nil
	case TypeReplyComplete:
		return ClientReplyComplete{Type: TypeReplyComplete}, nil
	case TypeToolCall:
		var m ClientToolCall
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid tool_call frame: %w", err)
		}
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("tool_call frame requires name")
		}
		return m, nil
	case TypeClose:
		return ClientClose{Type: TypeClose}, nil
	case "":
		return nil, fmt.Errorf("frame missing type")
	default:
		return nil, fmt.Errorf("unknown frame type %q", probe.Type)
	}
}

// ServerError is sent when a frame cannot be processed.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}

// NewServerError builds an error frame.
func NewServerError(code, message string, closeConn bool) ServerError {
	return ServerError{Type: "error", Code: code, Message: message, Close: closeConn}
}

// EncodeServerEvent flattens a session event into one JSON frame with a
// top-level "type" discriminator next to the event's own fields.
func EncodeServerEvent(ev live.Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.EventType(), err)
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.EventType(), err)
	}
	fields["type"] = ev.EventType()
	return json.Marshal(fields)
}
