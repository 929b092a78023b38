package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sundial-care/sundial/internal/store"
	"github.com/sundial-care/sundial/pkg/core/types"
	"github.com/sundial-care/sundial/pkg/gateway/config"
)

type stubModel struct {
	mu    sync.Mutex
	calls int
}

func (m *stubModel) CreateCompletion(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return &types.CompletionResponse{Text: `{
		"phase": "main",
		"engagement": "high",
		"emotional_tone": "positive",
		"stay_or_shift": "stay",
		"reminder_plan": {"should_deliver": false, "which": "", "approach": ""},
		"tone_guidance": "Keep the warm pace going.",
		"anticipated_topic": "",
		"news_topic": ""
	}`}, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sundial.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	err = s.SaveProfile(context.Background(), &types.CallerProfile{
		ID:            "caller_1",
		Name:          "Margaret Olsen",
		PreferredName: "Margaret",
		Timezone:      "America/Chicago",
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return s
}

func testConfig() config.Config {
	return config.Config{
		AuthMode:              config.AuthModeDisabled,
		WSMaxJSONMessageBytes: 64 * 1024,
		WSPingInterval:        20 * time.Second,
		WSWriteTimeout:        5 * time.Second,
		WSHandshakeTimeout:    5 * time.Second,
	}
}

func dialCall(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/call"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("frame not JSON: %v", err)
	}
	return frame
}

// readUntil reads frames until one matches the wanted type.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if frame["type"] == wantType {
			return frame
		}
	}
	t.Fatalf("never saw frame type %q", wantType)
	return nil
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func newCallServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := httptest.NewServer(CallHandler{
		Config: testConfig(),
		Store:  newTestStore(t),
		Model:  &stubModel{},
	})
	t.Cleanup(mux.Close)
	return mux
}

func TestCallHandler_StartEmitsSessionStarted(t *testing.T) {
	srv := newCallServer(t)
	conn := dialCall(t, srv)

	sendFrame(t, conn, map[string]any{"type": "start", "caller_id": "caller_1"})

	frame := readUntil(t, conn, "session.started")
	if frame["call_id"] == "" {
		t.Error("session.started missing call_id")
	}
	if frame["speaks_first"] != false {
		t.Errorf("inbound call with no reminder should not speak first: %v", frame)
	}
}

func TestCallHandler_UtteranceFlowsThrough(t *testing.T) {
	srv := newCallServer(t)
	conn := dialCall(t, srv)

	sendFrame(t, conn, map[string]any{"type": "start", "caller_id": "caller_1"})
	readUntil(t, conn, "session.started")

	sendFrame(t, conn, map[string]any{"type": "utterance", "text": "My knee has been hurting all week"})

	frame := readUntil(t, conn, "utterance")
	if frame["text"] != "My knee has been hurting all week" {
		t.Errorf("utterance text lost: %v", frame)
	}
}

func TestCallHandler_MutualFarewellEndsCall(t *testing.T) {
	srv := newCallServer(t)
	conn := dialCall(t, srv)

	sendFrame(t, conn, map[string]any{"type": "start", "caller_id": "caller_1"})
	readUntil(t, conn, "session.started")

	sendFrame(t, conn, map[string]any{"type": "reply_delta", "text": "Goodbye Margaret, talk soon!"})
	sendFrame(t, conn, map[string]any{"type": "reply_complete"})
	sendFrame(t, conn, map[string]any{"type": "utterance", "text": "Okay, goodbye now"})

	frame := readUntil(t, conn, "session.end")
	reason, _ := frame["reason"].(string)
	if !strings.Contains(reason, "goodbye") {
		t.Errorf("unexpected end reason %q", reason)
	}
}

func TestCallHandler_RejectsUnknownCaller(t *testing.T) {
	srv := newCallServer(t)
	conn := dialCall(t, srv)

	sendFrame(t, conn, map[string]any{"type": "start", "caller_id": "caller_nobody"})

	frame := readFrame(t, conn)
	if frame["type"] != "error" || frame["code"] != "not_found" {
		t.Errorf("expected not_found error, got %v", frame)
	}
}

func TestCallHandler_FirstFrameMustBeStart(t *testing.T) {
	srv := newCallServer(t)
	conn := dialCall(t, srv)

	sendFrame(t, conn, map[string]any{"type": "utterance", "text": "hello"})

	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Errorf("expected error frame, got %v", frame)
	}
}

func TestCallHandler_SecondStartRejected(t *testing.T) {
	srv := newCallServer(t)
	conn := dialCall(t, srv)

	sendFrame(t, conn, map[string]any{"type": "start", "caller_id": "caller_1"})
	readUntil(t, conn, "session.started")

	sendFrame(t, conn, map[string]any{"type": "start", "caller_id": "caller_1"})

	frame := readUntil(t, conn, "error")
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "already started") {
		t.Errorf("unexpected error frame: %v", frame)
	}
}

func TestCallHandler_CloseFrameEndsSession(t *testing.T) {
	srv := newCallServer(t)
	conn := dialCall(t, srv)

	sendFrame(t, conn, map[string]any{"type": "start", "caller_id": "caller_1"})
	readUntil(t, conn, "session.started")

	sendFrame(t, conn, map[string]any{"type": "close"})

	frame := readUntil(t, conn, "session.end")
	if frame["reason"] == "" {
		t.Error("session.end missing reason")
	}
}
