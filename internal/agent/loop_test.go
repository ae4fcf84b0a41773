package agent

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/genai"

	"github.com/bytesec/byte/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedModel replays a fixed set of responses, one script per invocation.
type scriptedModel struct {
	scripts  [][]*genai.GenerateContentResponse
	errs     []error // emitted after the chunks of the matching invocation
	calls    int
	contents [][]*genai.Content
}

func (m *scriptedModel) GenerateStream(
	_ context.Context,
	contents []*genai.Content,
	_ *genai.GenerateContentConfig,
) iter.Seq2[*genai.GenerateContentResponse, error] {
	idx := m.calls
	m.calls++
	m.contents = append(m.contents, contents)

	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		if idx < len(m.scripts) {
			for _, resp := range m.scripts[idx] {
				if !yield(resp, nil) {
					return
				}
			}
		}
		if idx < len(m.errs) && m.errs[idx] != nil {
			yield(nil, m.errs[idx])
		}
	}
}

type stubTool struct {
	name    string
	timeout time.Duration
	fn      func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (t stubTool) Name() string { return t.name }

func (t stubTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: t.name}
}

func (t stubTool) Timeout() time.Duration { return t.timeout }

func (t stubTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return t.fn(ctx, args)
}

func chunk(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func textPart(s string) *genai.Part    { return &genai.Part{Text: s} }
func thoughtPart(s string) *genai.Part { return &genai.Part{Text: s, Thought: true} }

func callPart(name string, args map[string]any) *genai.Part {
	return &genai.Part{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}
}

func newTestLoop(t *testing.T, model StreamingModel, tools ...Tool) *Loop {
	t.Helper()
	loop, err := NewLoop(Config{
		Model:      model,
		Dispatcher: NewDispatcher(log.NewNop(), tools...),
		Logger:     log.NewNop(),
		Retry: RetryConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return loop
}

func collect(seq iter.Seq[Event]) []Event {
	var events []Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestNewLoopValidation(t *testing.T) {
	_, err := NewLoop(Config{Dispatcher: NewDispatcher(log.NewNop())})
	assert.ErrorIs(t, err, ErrNilModel)

	_, err = NewLoop(Config{Model: &scriptedModel{}})
	assert.ErrorIs(t, err, ErrNilDispatcher)
}

func TestRunAnswerWithThinking(t *testing.T) {
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(thoughtPart("considering phishing signs")), chunk(textPart("Hello! "), textPart("Stay safe."))},
	}}
	loop := newTestLoop(t, model)

	events := collect(loop.Run(t.Context(), Request{
		SystemPrompt: "persona",
		Turns:        []Turn{{Role: RoleUser, Text: "hi"}},
	}))

	assert.Equal(t, []EventType{EventThinking, EventAnswer, EventAnswer, EventDone}, eventTypes(events))
	assert.Equal(t, "considering phishing signs", events[0].Content)
	assert.Equal(t, "Hello! ", events[1].Content)
	assert.Equal(t, 1, model.calls)
}

func TestRunToolRoundTrip(t *testing.T) {
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(callPart("virustotal_scan", map[string]any{"url": "http://evil.test"}))},
		{chunk(textPart("That link is dangerous."))},
	}}
	tool := stubTool{
		name: "virustotal_scan",
		fn: func(_ context.Context, args map[string]any) (map[string]any, error) {
			assert.Equal(t, "http://evil.test", args["url"])
			return map[string]any{"result": "Malicious: 42"}, nil
		},
	}
	loop := newTestLoop(t, model, tool)

	events := collect(loop.Run(t.Context(), Request{
		Turns: []Turn{{Role: RoleUser, Text: "is this link safe?"}},
	}))

	require.Equal(t, []EventType{EventToolCall, EventToolResult, EventAnswer, EventDone}, eventTypes(events))
	assert.Equal(t, "virustotal_scan", events[0].ToolName)
	assert.Equal(t, map[string]any{"result": "Malicious: 42"}, events[1].Result)

	// The second invocation must see the tool exchange appended in order.
	require.Equal(t, 2, model.calls)
	second := model.contents[1]
	require.Len(t, second, 3) // user turn, model call turn, tool result turn
	require.NotEmpty(t, second[1].Parts)
	assert.Equal(t, "virustotal_scan", second[1].Parts[0].FunctionCall.Name)
	require.NotEmpty(t, second[2].Parts)
	assert.Equal(t, "virustotal_scan", second[2].Parts[0].FunctionResponse.Name)
}

func TestRunUnknownToolContinues(t *testing.T) {
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(callPart("nmap_scan", nil))},
		{chunk(textPart("I don't have that capability."))},
	}}
	loop := newTestLoop(t, model)

	events := collect(loop.Run(t.Context(), Request{
		Turns: []Turn{{Role: RoleUser, Text: "scan my network"}},
	}))

	require.Equal(t, []EventType{EventToolCall, EventToolResult, EventAnswer, EventDone}, eventTypes(events))
	assert.Equal(t, map[string]any{"error": "Unknown tool: nmap_scan"}, events[1].Result)
	assert.Equal(t, map[string]any{}, events[0].ToolArgs)
}

func TestRunEmptyResponseFallback(t *testing.T) {
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk()},
	}}
	loop := newTestLoop(t, model)

	events := collect(loop.Run(t.Context(), Request{
		Turns: []Turn{{Role: RoleUser, Text: "hi"}},
	}))

	require.Equal(t, []EventType{EventAnswer, EventDone}, eventTypes(events))
	assert.Equal(t, FallbackResponseMessage, events[0].Content)
}

func TestRunIterationBudgetExhausted(t *testing.T) {
	// The model requests a tool on every invocation and never answers.
	scripts := make([][]*genai.GenerateContentResponse, DefaultMaxIterations)
	for i := range scripts {
		scripts[i] = []*genai.GenerateContentResponse{
			chunk(callPart("security_kb_query", map[string]any{"query": "more"})),
		}
	}
	model := &scriptedModel{scripts: scripts}
	tool := stubTool{
		name: "security_kb_query",
		fn: func(context.Context, map[string]any) (map[string]any, error) {
			return map[string]any{"result": "context"}, nil
		},
	}
	loop := newTestLoop(t, model, tool)

	events := collect(loop.Run(t.Context(), Request{
		Turns: []Turn{{Role: RoleUser, Text: "loop forever"}},
	}))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, ErrMaxIterations.Error(), last.Error)
	assert.Equal(t, DefaultMaxIterations, model.calls)

	// Exactly one terminal event.
	for _, ev := range events[:len(events)-1] {
		assert.NotEqual(t, EventDone, ev.Type)
		assert.NotEqual(t, EventError, ev.Type)
	}
}

func TestRunRetriesTransientErrorBeforeOutput(t *testing.T) {
	model := &scriptedModel{
		scripts: [][]*genai.GenerateContentResponse{
			nil, // first invocation fails before producing anything
			{chunk(textPart("recovered"))},
		},
		errs: []error{errors.New("503 service unavailable")},
	}
	loop := newTestLoop(t, model)

	events := collect(loop.Run(t.Context(), Request{
		Turns: []Turn{{Role: RoleUser, Text: "hi"}},
	}))

	assert.Equal(t, []EventType{EventAnswer, EventDone}, eventTypes(events))
	assert.Equal(t, 2, model.calls)
}

func TestRunNoRetryAfterOutput(t *testing.T) {
	model := &scriptedModel{
		scripts: [][]*genai.GenerateContentResponse{
			{chunk(textPart("partial"))},
		},
		errs: []error{errors.New("503 service unavailable")},
	}
	loop := newTestLoop(t, model)

	events := collect(loop.Run(t.Context(), Request{
		Turns: []Turn{{Role: RoleUser, Text: "hi"}},
	}))

	require.Equal(t, []EventType{EventAnswer, EventError}, eventTypes(events))
	assert.Contains(t, events[1].Error, "503")
	assert.Equal(t, 1, model.calls)
}

func TestRunNonRetryableErrorFailsFast(t *testing.T) {
	model := &scriptedModel{
		errs: []error{errors.New("invalid argument")},
	}
	loop := newTestLoop(t, model)

	events := collect(loop.Run(t.Context(), Request{
		Turns: []Turn{{Role: RoleUser, Text: "hi"}},
	}))

	require.Equal(t, []EventType{EventError}, eventTypes(events))
	assert.Equal(t, 1, model.calls)
}

func TestRunConsumerStopsEarly(t *testing.T) {
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(textPart("one")), chunk(textPart("two")), chunk(textPart("three"))},
	}}
	loop := newTestLoop(t, model)

	var got []Event
	for ev := range loop.Run(t.Context(), Request{Turns: []Turn{{Role: RoleUser, Text: "hi"}}}) {
		got = append(got, ev)
		break
	}

	require.Len(t, got, 1)
	assert.Equal(t, EventAnswer, got[0].Type)
}

func TestRunCircuitOpenRejects(t *testing.T) {
	breaker := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour})
	breaker.Failure()

	model := &scriptedModel{}
	loop, err := NewLoop(Config{
		Model:      model,
		Dispatcher: NewDispatcher(log.NewNop()),
		Breaker:    breaker,
	})
	require.NoError(t, err)

	events := collect(loop.Run(t.Context(), Request{
		Turns: []Turn{{Role: RoleUser, Text: "hi"}},
	}))

	require.Equal(t, []EventType{EventError}, eventTypes(events))
	assert.Equal(t, ErrCircuitOpen.Error(), events[0].Error)
	assert.Equal(t, 0, model.calls)
}

func TestRunDoesNotMutateRequestTurns(t *testing.T) {
	model := &scriptedModel{scripts: [][]*genai.GenerateContentResponse{
		{chunk(callPart("security_kb_query", map[string]any{"query": "x"}))},
		{chunk(textPart("done"))},
	}}
	tool := stubTool{
		name: "security_kb_query",
		fn: func(context.Context, map[string]any) (map[string]any, error) {
			return map[string]any{"result": "ok"}, nil
		},
	}
	loop := newTestLoop(t, model, tool)

	turns := []Turn{{Role: RoleUser, Text: "hi"}}
	collect(loop.Run(t.Context(), Request{Turns: turns}))

	assert.Len(t, turns, 1)
}
