package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bytesec/byte/internal/agent"
	"github.com/bytesec/byte/internal/chat"
	"github.com/bytesec/byte/internal/thread"
)

const (
	// wsWriteTimeout bounds each outgoing frame.
	wsWriteTimeout = 10 * time.Second

	// wsMaxMessageSize bounds incoming message frames.
	wsMaxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The token in the query string is the access control; origin checks
	// add nothing for a token-authenticated API.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsIncoming is one user message on the WebSocket channel.
type wsIncoming struct {
	Message       string `json:"message"`
	ThreadID      string `json:"thread_id"`
	Mode          string `json:"mode"`
	ImageData     string `json:"image_data,omitempty"`
	ImageMIMEType string `json:"image_mime_type,omitempty"`
}

// handleWebSocket runs the persistent chat channel. The client
// authenticates with a token query parameter, then sends JSON messages and
// receives the full event stream for each, closed out by a done event
// carrying the thread ID and tools used.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.auth.Verify(r.URL.Query().Get("token"))
	if err != nil {
		// Complete the upgrade so the close code reaches the client.
		conn, upgradeErr := upgrader.Upgrade(w, r, nil)
		if upgradeErr != nil {
			return
		}
		defer conn.Close()
		s.closeWith(conn, websocket.ClosePolicyViolation, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageSize)

	s.logger.Info("websocket connected", "user_id", claims.UserID)

	for {
		var incoming wsIncoming
		if err := conn.ReadJSON(&incoming); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read", "user_id", claims.UserID, "error", err)
			}
			return
		}

		if !s.serveExchange(r, conn, claims.UserID, incoming) {
			return
		}
	}
}

// serveExchange runs one message through the chat service and relays every
// event. It reports whether the connection is still usable.
func (s *Server) serveExchange(r *http.Request, conn *websocket.Conn, userID int64, incoming wsIncoming) bool {
	media, err := chatRequest{
		ImageData:     incoming.ImageData,
		ImageMIMEType: incoming.ImageMIMEType,
	}.media()
	if err != nil {
		return s.writeWS(conn, agent.Event{Type: agent.EventError, Error: "Invalid image attachment"})
	}

	ex, err := s.chat.Stream(r.Context(), chat.Request{
		UserID:   userID,
		ThreadID: incoming.ThreadID,
		Mode:     incoming.Mode,
		Message:  incoming.Message,
		Media:    media,
	})
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return s.writeWS(conn, agent.Event{Type: agent.EventError, Error: "Message cannot be empty"})
	case errors.Is(err, thread.ErrNotOwner):
		return s.writeWS(conn, agent.Event{Type: agent.EventError, Error: "Not authorized to access this thread"})
	case err != nil:
		s.logger.Error("websocket exchange", "user_id", userID, "error", err)
		return s.writeWS(conn, agent.Event{Type: agent.EventError, Error: "Chat request failed"})
	}

	var tools []string
	for ev := range ex.Events {
		if ev.Type == agent.EventToolCall {
			tools = appendDistinct(tools, ev.ToolName)
		}

		var payload any = ev
		if ev.Type == agent.EventDone {
			payload = doneMessage(ex.Thread.ID, tools)
		}
		if !s.writeWS(conn, payload) {
			return false
		}
	}
	return true
}

func (s *Server) writeWS(conn *websocket.Conn, payload any) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
	if err := conn.WriteJSON(payload); err != nil {
		s.logger.Debug("websocket write", "error", err)
		return false
	}
	return true
}

func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(wsWriteTimeout)
	message := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		s.logger.Debug("websocket close", "error", err)
	}
}
