package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bytesec/byte/internal/agent"
	"github.com/bytesec/byte/internal/chat"
	"github.com/bytesec/byte/internal/thread"
)

// defaultHistoryLimit is the page size for history endpoints when the
// client does not ask for one.
const defaultHistoryLimit = 50

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
	Mode     string `json:"mode"`

	// Optional image attachment, e.g. a screenshot of a suspicious message.
	ImageData     string `json:"image_data,omitempty"`
	ImageMIMEType string `json:"image_mime_type,omitempty"`
}

// media decodes the optional base64 image attachment.
func (r chatRequest) media() ([]agent.Media, error) {
	if r.ImageData == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(r.ImageData)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	mimeType := r.ImageMIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return []agent.Media{{MIMEType: mimeType, Data: data}}, nil
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	threads, err := s.threads.List(r.Context(), claims.UserID)
	if err != nil {
		s.logger.Error("list threads", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list threads")
		return
	}
	if threads == nil {
		threads = []thread.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *Server) handleThreadLogs(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	threadID := chi.URLParam(r, "threadID")

	logs, err := s.threads.Logs(r.Context(), claims.UserID, threadID)
	if errors.Is(err, thread.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Thread not found")
		return
	}
	if err != nil {
		s.logger.Error("thread logs", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load thread")
		return
	}
	if logs == nil {
		logs = []thread.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": logs})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	logs, err := s.threads.RecentLogs(r.Context(), claims.UserID, limitParam(r))
	if err != nil {
		s.logger.Error("recent logs", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load history")
		return
	}
	if logs == nil {
		logs = []thread.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": logs})
}

func (s *Server) handleToolHistory(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	records, err := s.threads.ToolHistory(r.Context(), claims.UserID, limitParam(r))
	if err != nil {
		s.logger.Error("tool history", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load tool history")
		return
	}
	if records == nil {
		records = []thread.ToolRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": records})
}

type toolUseRequest struct {
	ToolName string `json:"tool_name"`
	Input    string `json:"input_data"`
	Output   string `json:"output_data"`
}

func (s *Server) handleRecordToolUse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req toolUseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tool_name is required")
		return
	}

	if err := s.threads.RecordToolUse(r.Context(), claims.UserID, req.ToolName, req.Input, req.Output); err != nil {
		s.logger.Error("record tool use", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not record tool use")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	media, err := req.media()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid image attachment")
		return
	}

	reply, err := s.chat.Respond(r.Context(), chat.Request{
		UserID:   claims.UserID,
		ThreadID: req.ThreadID,
		Mode:     req.Mode,
		Message:  req.Message,
		Media:    media,
	})
	if handled := s.writeChatError(w, err); handled {
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleChatStream runs one exchange and relays its events as Server-Sent
// Events, one event per agent event, closing with an enriched done event
// that carries the thread ID and the distinct tools used.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	media, err := req.media()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid image attachment")
		return
	}

	ex, err := s.chat.Stream(r.Context(), chat.Request{
		UserID:   claims.UserID,
		ThreadID: req.ThreadID,
		Mode:     req.Mode,
		Message:  req.Message,
		Media:    media,
	})
	if handled := s.writeChatError(w, err); handled {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var tools []string
	for ev := range ex.Events {
		if r.Context().Err() != nil {
			return
		}
		if ev.Type == agent.EventToolCall {
			tools = appendDistinct(tools, ev.ToolName)
		}
		if ev.Type == agent.EventDone {
			writeSSE(w, flusher, string(agent.EventDone), doneMessage(ex.Thread.ID, tools))
			continue
		}
		writeSSE(w, flusher, string(ev.Type), ev)
	}
}

// writeChatError maps service errors to HTTP responses. It reports whether
// the error was written.
func (s *Server) writeChatError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
	case errors.Is(err, thread.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", "Not authorized to access this thread")
	default:
		s.logger.Error("chat exchange", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "chat request failed")
	}
	return true
}

// doneMessage is the terminal payload of streaming endpoints, enriched
// beyond the loop's bare done event.
func doneMessage(threadID string, tools []string) map[string]any {
	if tools == nil {
		tools = []string{}
	}
	return map[string]any{
		"type":       string(agent.EventDone),
		"thread_id":  threadID,
		"tool_calls": tools,
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

func appendDistinct(list []string, name string) []string {
	for _, n := range list {
		if n == name {
			return list
		}
	}
	return append(list, name)
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	return limit
}
