package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sundial-care/sundial/pkg/core/live"
	"github.com/sundial-care/sundial/pkg/core/types"
)

func TestDecodeClientMessage_Start(t *testing.T) {
	decoded, err := DecodeClientMessage([]byte(`{"type":"start","caller_id":"caller_1","outbound":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start, ok := decoded.(ClientStart)
	if !ok {
		t.Fatalf("expected ClientStart, got %T", decoded)
	}
	if start.CallerID != "caller_1" || !start.Outbound {
		t.Errorf("start frame mis-decoded: %+v", start)
	}
}

func TestDecodeClientMessage_StartRequiresCallerID(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"start"}`)); err == nil {
		t.Fatal("expected error for missing caller_id")
	}
}

func TestDecodeClientMessage_Utterance(t *testing.T) {
	decoded, err := DecodeClientMessage([]byte(`{"type":"utterance","text":"hello there"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, ok := decoded.(ClientUtterance)
	if !ok {
		t.Fatalf("expected ClientUtterance, got %T", decoded)
	}
	if u.Text != "hello there" {
		t.Errorf("utterance text mis-decoded: %q", u.Text)
	}
}

func TestDecodeClientMessage_ToolCall(t *testing.T) {
	decoded, err := DecodeClientMessage([]byte(`{"type":"tool_call","id":"t1","name":"save_memory","input":{"content":"likes tea"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := decoded.(ClientToolCall)
	if !ok {
		t.Fatalf("expected ClientToolCall, got %T", decoded)
	}
	if tc.Name != "save_memory" || tc.ID != "t1" {
		t.Errorf("tool_call mis-decoded: %+v", tc)
	}
	var input map[string]string
	if err := json.Unmarshal(tc.Input, &input); err != nil {
		t.Fatalf("tool input not raw JSON: %v", err)
	}
	if input["content"] != "likes tea" {
		t.Errorf("tool input mis-decoded: %v", input)
	}
}

func TestDecodeClientMessage_ToolCallRequiresName(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"tool_call","id":"t1"}`)); err == nil {
		t.Fatal("expected error for missing tool name")
	}
}

func TestDecodeClientMessage_Rejections(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing type", `{"text":"hi"}`},
		{"unknown type", `{"type":"barrel_roll"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeClientMessage([]byte(tc.data)); err == nil {
				t.Errorf("expected error for %q", tc.data)
			}
		})
	}
}

func TestEncodeServerEvent_FlattensType(t *testing.T) {
	data, err := EncodeServerEvent(&live.EndSessionEvent{Reason: "both parties said goodbye"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("frame not valid JSON: %v", err)
	}
	if frame["type"] != "session.end" {
		t.Errorf("expected type session.end, got %v", frame["type"])
	}
	if frame["reason"] != "both parties said goodbye" {
		t.Errorf("event fields lost: %v", frame)
	}
}

func TestEncodeServerEvent_EmptyEvent(t *testing.T) {
	data, err := EncodeServerEvent(&live.ReplyCompleteEvent{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"type":"reply.complete"`) {
		t.Errorf("unexpected frame %s", data)
	}
}

func TestEncodeServerEvent_NestedPayload(t *testing.T) {
	data, err := EncodeServerEvent(&live.ToolInvokedEvent{
		ID:     "t1",
		Name:   "acknowledge_reminder",
		Result: types.ToolResult{Status: types.ToolSuccess, Result: "Reminder acknowledged."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var frame struct {
		Type   string           `json:"type"`
		Name   string           `json:"name"`
		Result types.ToolResult `json:"result"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("frame not valid JSON: %v", err)
	}
	if frame.Type != "tool.invoked" || frame.Result.Status != types.ToolSuccess {
		t.Errorf("nested payload mis-encoded: %+v", frame)
	}
}
