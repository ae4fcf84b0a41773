// Package chat orchestrates one assistant exchange: it resolves the thread,
// assembles the system prompt from the user's security profile, drives the
// dialogue loop, and persists the finished exchange and tool audit trail.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/bytesec/byte/internal/agent"
	"github.com/bytesec/byte/internal/log"
	"github.com/bytesec/byte/internal/security"
	"github.com/bytesec/byte/internal/thread"
)

// defaultHistoryWindow caps how many prior log entries feed the model as
// conversation context.
const defaultHistoryWindow = 30

var (
	// ErrEmptyMessage indicates the request carried no message text.
	ErrEmptyMessage = errors.New("chat: message is empty")

	// ErrNilLoop indicates the service was built without a dialogue loop.
	ErrNilLoop = errors.New("chat: loop is required")

	// ErrNilThreads indicates the service was built without a thread store.
	ErrNilThreads = errors.New("chat: thread store is required")

	// ErrNilProfiles indicates the service was built without a profile source.
	ErrNilProfiles = errors.New("chat: profile source is required")
)

// ThreadStore is the slice of the thread store the service needs.
type ThreadStore interface {
	Resolve(ctx context.Context, userID int64, threadID, firstMessage string) (*thread.Thread, error)
	Logs(ctx context.Context, userID int64, threadID string) ([]thread.LogEntry, error)
	AppendExchange(ctx context.Context, userID int64, threadID, mode, userMessage, answer, thinking string, toolCalls []string) error
	RecordToolUse(ctx context.Context, userID int64, toolName, input, output string) error
}

// ProfileSource supplies the profile summary woven into the system prompt.
// *user.Store satisfies it.
type ProfileSource interface {
	ProfileSummary(ctx context.Context, userID int64) (string, error)
}

// Request is one user message addressed to the assistant.
type Request struct {
	UserID   int64
	ThreadID string
	Mode     string
	Message  string
	Media    []agent.Media
}

// Exchange couples the resolved thread with the lazily-produced event
// stream. Draining Events runs the dialogue and persists the exchange.
type Exchange struct {
	Thread *thread.Thread
	Mode   agent.Mode
	Events iter.Seq[agent.Event]
}

// Reply is the collected outcome of a synchronous exchange.
type Reply struct {
	Response  string   `json:"response"`
	ToolCalls []string `json:"tool_calls"`
	ThreadID  string   `json:"thread_id"`
}

// Config assembles a Service.
type Config struct {
	Loop     *agent.Loop
	Threads  ThreadStore
	Profiles ProfileSource

	// ToolNames appear in the system prompt so the model knows its
	// capabilities by name.
	ToolNames []string

	// HistoryWindow caps prior log entries used as context.
	// Default: defaultHistoryWindow.
	HistoryWindow int

	Logger log.Logger
}

// Service runs assistant exchanges. Safe for concurrent use.
type Service struct {
	loop     *agent.Loop
	threads  ThreadStore
	profiles ProfileSource
	toolList string
	window   int
	logger   log.Logger
}

// NewService validates the config and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Loop == nil {
		return nil, ErrNilLoop
	}
	if cfg.Threads == nil {
		return nil, ErrNilThreads
	}
	if cfg.Profiles == nil {
		return nil, ErrNilProfiles
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}

	return &Service{
		loop:     cfg.Loop,
		threads:  cfg.Threads,
		profiles: cfg.Profiles,
		toolList: strings.Join(cfg.ToolNames, ", "),
		window:   cfg.HistoryWindow,
		logger:   cfg.Logger,
	}, nil
}

// Stream prepares one exchange and returns its event stream. The stream is
// lazy: nothing touches the model until the caller iterates. When iteration
// finishes, the exchange and the tool audit trail are persisted even if the
// client has gone away.
func (s *Service) Stream(ctx context.Context, req Request) (*Exchange, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	// Flag but do not block: users legitimately ask about injection attacks.
	if report := security.ScreenPrompt(req.Message); !report.Safe {
		s.logger.Warn("possible prompt injection",
			"user_id", req.UserID,
			"patterns", len(report.Patterns))
	}

	th, err := s.threads.Resolve(ctx, req.UserID, req.ThreadID, req.Message)
	if err != nil {
		return nil, err
	}

	mode := agent.NormalizeMode(req.Mode)
	prompt, err := s.systemPrompt(ctx, req.UserID, mode)
	if err != nil {
		return nil, err
	}

	turns, err := s.historyTurns(ctx, req.UserID, th.ID)
	if err != nil {
		return nil, err
	}
	turns = append(turns, agent.Turn{Role: agent.RoleUser, Text: req.Message, Media: req.Media})

	events := s.loop.Run(ctx, agent.Request{SystemPrompt: prompt, Turns: turns})

	return &Exchange{
		Thread: th,
		Mode:   mode,
		Events: s.recorded(ctx, req, th, mode, events),
	}, nil
}

// Respond runs one exchange to completion and returns the collected answer.
func (s *Service) Respond(ctx context.Context, req Request) (*Reply, error) {
	ex, err := s.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var answer strings.Builder
	var calls []string
	for ev := range ex.Events {
		switch ev.Type {
		case agent.EventAnswer:
			answer.WriteString(ev.Content)
		case agent.EventToolCall:
			calls = append(calls, ev.ToolName)
		case agent.EventError:
			return nil, fmt.Errorf("chat: %s", ev.Error)
		}
	}

	return &Reply{
		Response:  answer.String(),
		ToolCalls: distinct(calls),
		ThreadID:  ex.Thread.ID,
	}, nil
}

// recorded wraps the loop's event stream so that draining it also writes the
// conversation log and tool history. Persistence uses a context detached
// from the request so a client disconnect cannot lose the record.
func (s *Service) recorded(
	ctx context.Context,
	req Request,
	th *thread.Thread,
	mode agent.Mode,
	events iter.Seq[agent.Event],
) iter.Seq[agent.Event] {
	return func(yield func(agent.Event) bool) {
		var answer, thinking strings.Builder
		var calls []string
		argsByTool := make(map[string]string)
		store := context.WithoutCancel(ctx)

		for ev := range events {
			switch ev.Type {
			case agent.EventThinking:
				thinking.WriteString(ev.Content)
			case agent.EventAnswer:
				answer.WriteString(ev.Content)
			case agent.EventToolCall:
				calls = append(calls, ev.ToolName)
				if raw, err := json.Marshal(ev.ToolArgs); err == nil {
					argsByTool[ev.ToolName] = string(raw)
				}
			case agent.EventToolResult:
				s.recordToolUse(store, req.UserID, ev, argsByTool[ev.ToolName])
			}
			if !yield(ev) {
				break
			}
		}

		if answer.Len() == 0 && len(calls) == 0 {
			return
		}
		err := s.threads.AppendExchange(store, req.UserID, th.ID, string(mode),
			req.Message, answer.String(), thinking.String(), distinct(calls))
		if err != nil {
			s.logger.Error("log exchange", "thread_id", th.ID, "error", err)
		}
	}
}

func (s *Service) recordToolUse(ctx context.Context, userID int64, ev agent.Event, input string) {
	output := ""
	if v, ok := ev.Result["result"].(string); ok {
		output = v
	} else if v, ok := ev.Result["error"].(string); ok {
		output = "error: " + v
	}
	if err := s.threads.RecordToolUse(ctx, userID, ev.ToolName, input, output); err != nil {
		s.logger.Error("record tool use", "tool", ev.ToolName, "error", err)
	}
}

func (s *Service) systemPrompt(ctx context.Context, userID int64, mode agent.Mode) (string, error) {
	summary, err := s.profiles.ProfileSummary(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load profile summary: %w", err)
	}
	if summary == "" {
		summary = agent.DefaultProfileSummary
	}
	return agent.SystemPrompt(mode, strconv.FormatInt(userID, 10), summary, s.toolList), nil
}

// historyTurns converts the thread's log into model turns, newest window
// only.
func (s *Service) historyTurns(ctx context.Context, userID int64, threadID string) ([]agent.Turn, error) {
	logs, err := s.threads.Logs(ctx, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread history: %w", err)
	}
	if len(logs) > s.window {
		logs = logs[len(logs)-s.window:]
	}

	turns := make([]agent.Turn, 0, len(logs))
	for _, entry := range logs {
		role := agent.RoleUser
		if entry.Role == "assistant" {
			role = agent.RoleModel
		}
		turns = append(turns, agent.Turn{Role: role, Text: entry.Content})
	}
	return turns, nil
}

// distinct keeps the first occurrence of each name, preserving order. Never
// nil, so the result serializes as a JSON array.
func distinct(names []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
