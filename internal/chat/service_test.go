package chat_test

import (
	"context"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/bytesec/byte/internal/agent"
	"github.com/bytesec/byte/internal/chat"
	"github.com/bytesec/byte/internal/thread"
)

// fakeThreads is an in-memory ThreadStore capturing what the service writes.
type fakeThreads struct {
	existing map[string]*thread.Thread // id -> thread
	logs     map[string][]thread.LogEntry

	appended  []appendedExchange
	toolUses  []toolUse
	resolved  []string
	failLogs  bool
	notOwner  bool
	createdID string
}

type appendedExchange struct {
	userID                                 int64
	threadID, mode, message, answer, think string
	toolCalls                              []string
}

type toolUse struct {
	tool, input, output string
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{
		existing:  make(map[string]*thread.Thread),
		logs:      make(map[string][]thread.LogEntry),
		createdID: "thread-1",
	}
}

func (f *fakeThreads) Resolve(_ context.Context, userID int64, threadID, _ string) (*thread.Thread, error) {
	f.resolved = append(f.resolved, threadID)
	if f.notOwner {
		return nil, thread.ErrNotOwner
	}
	if th, ok := f.existing[threadID]; ok {
		return th, nil
	}
	th := &thread.Thread{ID: f.createdID, UserID: userID, Title: "New Chat"}
	f.existing[th.ID] = th
	return th, nil
}

func (f *fakeThreads) Logs(context.Context, int64, string) ([]thread.LogEntry, error) {
	if f.failLogs {
		return nil, thread.ErrNotFound
	}
	return f.logs[f.createdID], nil
}

func (f *fakeThreads) AppendExchange(_ context.Context, userID int64, threadID, mode, userMessage, answer, thinking string, toolCalls []string) error {
	f.appended = append(f.appended, appendedExchange{
		userID: userID, threadID: threadID, mode: mode,
		message: userMessage, answer: answer, think: thinking, toolCalls: toolCalls,
	})
	return nil
}

func (f *fakeThreads) RecordToolUse(_ context.Context, _ int64, toolName, input, output string) error {
	f.toolUses = append(f.toolUses, toolUse{tool: toolName, input: input, output: output})
	return nil
}

type fakeProfiles struct {
	summary string
}

func (f fakeProfiles) ProfileSummary(context.Context, int64) (string, error) {
	return f.summary, nil
}

// scriptedModel replays canned response chunks, one script per invocation.
type scriptedModel struct {
	scripts  [][]*genai.GenerateContentResponse
	invoked  int
	contents [][]*genai.Content
}

func (m *scriptedModel) GenerateStream(
	_ context.Context,
	contents []*genai.Content,
	_ *genai.GenerateContentConfig,
) iter.Seq2[*genai.GenerateContentResponse, error] {
	m.contents = append(m.contents, contents)
	script := m.scripts[min(m.invoked, len(m.scripts)-1)]
	m.invoked++
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, resp := range script {
			if !yield(resp, nil) {
				return
			}
		}
	}
}

func chunk(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

type echoTool struct{}

func (echoTool) Name() string { return "security_kb_query" }
func (echoTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: "security_kb_query"}
}
func (echoTool) Timeout() time.Duration { return time.Second }
func (echoTool) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"result": "Use strong passwords."}, nil
}

func newService(t *testing.T, threads *fakeThreads, model *scriptedModel, summary string) *chat.Service {
	t.Helper()
	dispatcher := agent.NewDispatcher(nil, echoTool{})
	loop, err := agent.NewLoop(agent.Config{Model: model, Dispatcher: dispatcher})
	require.NoError(t, err)

	svc, err := chat.NewService(chat.Config{
		Loop:      loop,
		Threads:   threads,
		Profiles:  fakeProfiles{summary: summary},
		ToolNames: []string{"security_kb_query"},
	})
	require.NoError(t, err)
	return svc
}

func TestRespondPlainAnswer(t *testing.T) {
	threads := newFakeThreads()
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(&genai.Part{Text: "Stay safe online."})},
	}}
	svc := newService(t, threads, model, "")

	reply, err := svc.Respond(t.Context(), chat.Request{
		UserID: 7, ThreadID: "new", Mode: "simple", Message: "any tips?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Stay safe online.", reply.Response)
	assert.Empty(t, reply.ToolCalls)
	assert.Equal(t, "thread-1", reply.ThreadID)

	require.Len(t, threads.appended, 1)
	logged := threads.appended[0]
	assert.Equal(t, "simple", logged.mode)
	assert.Equal(t, "any tips?", logged.message)
	assert.Equal(t, "Stay safe online.", logged.answer)
	assert.Equal(t, []string{}, logged.toolCalls)
}

func TestRespondWithToolRoundTrip(t *testing.T) {
	threads := newFakeThreads()
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(&genai.Part{FunctionCall: &genai.FunctionCall{
			Name: "security_kb_query",
			Args: map[string]any{"query": "passwords"},
		}})},
		{chunk(&genai.Part{Text: "Use strong passwords."})},
	}}
	svc := newService(t, threads, model, "")

	reply, err := svc.Respond(t.Context(), chat.Request{
		UserID: 7, ThreadID: "new", Mode: "turbo", Message: "password advice",
	})
	require.NoError(t, err)

	assert.Equal(t, "Use strong passwords.", reply.Response)
	assert.Equal(t, []string{"security_kb_query"}, reply.ToolCalls)

	require.Len(t, threads.toolUses, 1)
	assert.Equal(t, "security_kb_query", threads.toolUses[0].tool)
	assert.Contains(t, threads.toolUses[0].input, "passwords")
	assert.Equal(t, "Use strong passwords.", threads.toolUses[0].output)

	require.Len(t, threads.appended, 1)
	assert.Equal(t, "turbo", threads.appended[0].mode)
	assert.Equal(t, []string{"security_kb_query"}, threads.appended[0].toolCalls)
}

func TestStreamRejectsEmptyMessage(t *testing.T) {
	svc := newService(t, newFakeThreads(), &scriptedModel{scripts: [][]*genai.GenerateContentResponse{{}}}, "")

	_, err := svc.Stream(t.Context(), chat.Request{UserID: 1, Message: "   "})
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestStreamForeignThreadRejected(t *testing.T) {
	threads := newFakeThreads()
	threads.notOwner = true
	svc := newService(t, threads, &scriptedModel{scripts: [][]*genai.GenerateContentResponse{{}}}, "")

	_, err := svc.Stream(t.Context(), chat.Request{UserID: 1, ThreadID: "someone-elses", Message: "hi"})
	assert.ErrorIs(t, err, thread.ErrNotOwner)
}

func TestSystemPromptCarriesProfileAndMode(t *testing.T) {
	threads := newFakeThreads()
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(&genai.Part{Text: "ok"})},
	}}
	svc := newService(t, threads, model, "Technical Level: developer")

	_, err := svc.Respond(t.Context(), chat.Request{
		UserID: 42, ThreadID: "new", Mode: "turbo", Message: "hello",
	})
	require.NoError(t, err)

	require.NotEmpty(t, model.contents)
	first := model.contents[0][0]
	require.NotEmpty(t, first.Parts)
	prompt := first.Parts[0].Text
	assert.True(t, strings.HasPrefix(prompt, "SYSTEM INSTRUCTIONS:\n"))
	assert.Contains(t, prompt, "TURBO MODE")
	assert.Contains(t, prompt, "Technical Level: developer")
	assert.Contains(t, prompt, "security_kb_query")
	assert.Contains(t, prompt, "42")
}

func TestDefaultProfileSummaryUsed(t *testing.T) {
	threads := newFakeThreads()
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(&genai.Part{Text: "ok"})},
	}}
	svc := newService(t, threads, model, "")

	_, err := svc.Respond(t.Context(), chat.Request{UserID: 1, ThreadID: "new", Message: "hi"})
	require.NoError(t, err)

	prompt := model.contents[0][0].Parts[0].Text
	assert.Contains(t, prompt, agent.DefaultProfileSummary)
}

func TestHistoryFeedsModel(t *testing.T) {
	threads := newFakeThreads()
	threads.logs["thread-1"] = []thread.LogEntry{
		{Role: "user", Content: "what is phishing?"},
		{Role: "assistant", Content: "A social engineering attack."},
	}
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(&genai.Part{Text: "ok"})},
	}}
	svc := newService(t, threads, model, "")

	_, err := svc.Respond(t.Context(), chat.Request{UserID: 1, ThreadID: "thread-1", Message: "tell me more"})
	require.NoError(t, err)

	contents := model.contents[0]
	// system prompt block, two history turns, current message
	require.Len(t, contents, 4)
	assert.Equal(t, "what is phishing?", contents[1].Parts[0].Text)
	assert.Equal(t, "model", contents[2].Role)
	assert.Equal(t, "tell me more", contents[3].Parts[0].Text)
}

func TestNothingPersistedOnErrorWithoutOutput(t *testing.T) {
	threads := newFakeThreads()
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{{}}}
	svc := newService(t, threads, model, "")

	// Empty stream yields the fallback answer, which is persisted.
	reply, err := svc.Respond(t.Context(), chat.Request{UserID: 1, ThreadID: "new", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, agent.FallbackResponseMessage, reply.Response)
	require.Len(t, threads.appended, 1)
	assert.Equal(t, agent.FallbackResponseMessage, threads.appended[0].answer)
}
