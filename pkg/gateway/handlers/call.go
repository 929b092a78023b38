package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sundial-care/sundial/internal/store"
	"github.com/sundial-care/sundial/pkg/core"
	"github.com/sundial-care/sundial/pkg/core/live"
	"github.com/sundial-care/sundial/pkg/gateway/config"
	"github.com/sundial-care/sundial/pkg/gateway/mw"
	"github.com/sundial-care/sundial/pkg/gateway/protocol"
)

// CallHandler handles /v1/call WebSocket sessions. One connection maps
// to one call: the transport streams utterances and reply text in, and
// consumes directives, phase changes, and the terminal session.end out.
type CallHandler struct {
	Config config.Config
	Logger *slog.Logger
	Store  store.Store
	Model  core.AuxiliaryModel
}

// wsWriter serializes all writes on one connection. The event loop and
// the read loop's error frames share it.
type wsWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (w *wsWriter) writeMessage(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsWriter) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	return w.conn.WriteJSON(v)
}

func (w *wsWriter) writePing() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.timeout))
}

func (w *wsWriter) writeClose(code int, reason string) {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(2*time.Second))
}

func (h CallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.WSMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxJSONMessageBytes)
	}

	writeTimeout := h.Config.WSWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	writer := &wsWriter{conn: conn, timeout: writeTimeout}

	handshakeTimeout := h.Config.WSHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(writer, "bad_request", "failed to read start frame", true)
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		h.writeWSError(writer, "bad_request", err.Error(), true)
		return
	}
	start, ok := decoded.(protocol.ClientStart)
	if !ok {
		h.writeWSError(writer, "bad_request", "first frame must be start", true)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	bootstrap, err := store.Bootstrap(r.Context(), h.Store, start.CallerID, start.Outbound)
	if err != nil {
		h.writeWSError(writer, "not_found", "unknown caller", true)
		return
	}

	sess := live.NewSession(live.DefaultSessionConfig(), *bootstrap, live.SessionDeps{
		Model:         h.Model,
		MemoryStore:   h.Store,
		ReminderStore: h.Store,
		ContextStore:  h.Store,
	})
	if h.Config.DebugEvents {
		sess.EnableDebug()
	}
	if err := sess.Start(r.Context()); err != nil {
		h.writeWSError(writer, "internal", "failed to start session", true)
		return
	}
	defer sess.Close()

	reqID, _ := mw.RequestIDFrom(r.Context())
	if h.Logger != nil {
		h.Logger.Info("call started",
			"call_id", sess.CallID(),
			"caller_id", start.CallerID,
			"outbound", start.Outbound,
			"request_id", reqID,
		)
	}

	writerDone := make(chan struct{})
	go h.writeLoop(conn, writer, sess, writerDone)

	h.readLoop(r.Context(), conn, writer, sess)

	// Session teardown flushes the terminal event before the writer exits.
	_ = sess.Close()
	<-writerDone

	if h.Logger != nil {
		h.Logger.Info("call ended", "call_id", sess.CallID(), "request_id", reqID)
	}
}

// readLoop dispatches client frames into the session until the socket
// closes or the session terminates.
func (h CallHandler) readLoop(ctx context.Context, conn *websocket.Conn, writer *wsWriter, sess *live.Session) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		decoded, err := protocol.DecodeClientMessage(data)
		if err != nil {
			h.writeWSError(writer, "bad_request", err.Error(), false)
			continue
		}

		switch m := decoded.(type) {
		case protocol.ClientStart:
			h.writeWSError(writer, "bad_request", "session already started", false)
		case protocol.ClientUtterance:
			if err := sess.HandleUtterance(m.Text); err != nil {
				return
			}
		case protocol.ClientReplyDelta:
			sess.HandleReplyDelta(m.Text)
		case protocol.ClientReplyComplete:
			sess.HandleReplyComplete()
		case protocol.ClientToolCall:
			sess.HandleToolCall(ctx, m.ID, m.Name, m.Input)
		case protocol.ClientClose:
			return
		}
	}
}

// writeLoop drains session events to the socket and keeps the
// connection alive with pings. After the terminal event it closes the
// connection, which also unblocks the read loop.
func (h CallHandler) writeLoop(conn *websocket.Conn, writer *wsWriter, sess *live.Session, done chan<- struct{}) {
	defer close(done)

	pingInterval := h.Config.WSPingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-sess.Events():
			frame, err := protocol.EncodeServerEvent(ev)
			if err != nil {
				continue
			}
			if err := writer.writeMessage(frame); err != nil {
				return
			}
			if ev.EventType() == "session.end" {
				writer.writeClose(websocket.CloseNormalClosure, "call ended")
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := writer.writePing(); err != nil {
				return
			}
		case <-sess.Done():
			// Drain anything emitted during teardown, then close.
			for {
				select {
				case ev := <-sess.Events():
					if frame, err := protocol.EncodeServerEvent(ev); err == nil {
						_ = writer.writeMessage(frame)
					}
				default:
					writer.writeClose(websocket.CloseNormalClosure, "call ended")
					conn.Close()
					return
				}
			}
		}
	}
}

func (h CallHandler) writeWSError(writer *wsWriter, code, message string, closeConn bool) {
	_ = writer.writeJSON(protocol.NewServerError(code, message, closeConn))
	if closeConn {
		writer.writeClose(websocket.ClosePolicyViolation, message)
	}
}
