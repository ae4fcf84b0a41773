// Package agent implements the streaming tool-augmented dialogue loop at the
// heart of byte.
//
// A run proceeds in bounded iterations. Each iteration streams one model
// response, classifies every part as reasoning, answer text, or a tool
// request, and forwards it to the consumer as it arrives. If the model
// requested tools, they execute sequentially, their results join the
// conversation, and the loop asks the model again. A response without tool
// requests ends the run with a done event; exhausting the iteration budget
// or hitting an unrecoverable stream error ends it with an error event.
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/bytesec/byte/internal/log"
)

const (
	// FallbackResponseMessage is emitted when the model produces neither
	// answer text nor tool calls across the whole run.
	FallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// DefaultMaxIterations bounds model invocations per run.
	DefaultMaxIterations = 10

	// DefaultThinkingBudget is the reasoning token budget per invocation.
	DefaultThinkingBudget int32 = 1024
)

var (
	// ErrNilModel indicates the loop was built without a model.
	ErrNilModel = errors.New("agent: model is required")

	// ErrNilDispatcher indicates the loop was built without a dispatcher.
	ErrNilDispatcher = errors.New("agent: dispatcher is required")

	// ErrMaxIterations indicates the run spent its iteration budget without
	// reaching a final answer.
	ErrMaxIterations = errors.New("max iterations reached")
)

// StreamingModel is the model backend the loop drives. *gemini.Client
// satisfies it; tests substitute scripted stubs.
type StreamingModel interface {
	GenerateStream(
		ctx context.Context,
		contents []*genai.Content,
		cfg *genai.GenerateContentConfig,
	) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Config assembles a Loop.
type Config struct {
	Model      StreamingModel
	Dispatcher *Dispatcher
	Logger     log.Logger

	// MaxIterations bounds model invocations per run. Default: DefaultMaxIterations.
	MaxIterations int

	// ThinkingBudget is the reasoning token budget. -1 requests dynamic
	// thinking. Default: DefaultThinkingBudget.
	ThinkingBudget int32

	// Retry controls backoff for transient stream failures. Zero value means
	// DefaultRetryConfig.
	Retry RetryConfig

	// RateLimiter, when set, paces model invocations. Each retry attempt
	// waits on it separately.
	RateLimiter *rate.Limiter

	// Breaker, when set, guards the model backend.
	Breaker *CircuitBreaker
}

// Request is one dialogue run: the assembled system prompt plus the
// conversation history, triggering turn last.
type Request struct {
	SystemPrompt string
	Turns        []Turn
}

// Loop drives streaming dialogue runs. It is safe for concurrent use; all
// per-run state lives in Run.
type Loop struct {
	model      StreamingModel
	dispatcher *Dispatcher
	logger     log.Logger

	maxIterations  int
	thinkingBudget int32

	retry   RetryConfig
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

// NewLoop validates the config and builds a Loop.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Model == nil {
		return nil, ErrNilModel
	}
	if cfg.Dispatcher == nil {
		return nil, ErrNilDispatcher
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ThinkingBudget == 0 {
		cfg.ThinkingBudget = DefaultThinkingBudget
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Loop{
		model:          cfg.Model,
		dispatcher:     cfg.Dispatcher,
		logger:         cfg.Logger,
		maxIterations:  cfg.MaxIterations,
		thinkingBudget: cfg.ThinkingBudget,
		retry:          cfg.Retry,
		limiter:        cfg.RateLimiter,
		breaker:        cfg.Breaker,
	}, nil
}

// iterationResult is what one model invocation produced.
type iterationResult struct {
	answerText string
	calls      []ToolCall
	stopped    bool // consumer stopped iterating
}

// Run executes one dialogue run and returns its event stream. Events are
// produced lazily as the caller iterates; stopping iteration cancels the
// run cleanly.
func (l *Loop) Run(ctx context.Context, req Request) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		turns := slices.Clone(req.Turns)
		answered := false
		start := time.Now()

		for iteration := 1; iteration <= l.maxIterations; iteration++ {
			res, err := l.runIteration(ctx, req.SystemPrompt, turns, yield)
			if err != nil {
				l.logger.Error("dialogue run failed",
					"iteration", iteration,
					"elapsed", time.Since(start),
					"error", err)
				yield(Event{Type: EventError, Error: err.Error()})
				return
			}
			if res.stopped {
				return
			}
			if res.answerText != "" {
				answered = true
			}

			if len(res.calls) == 0 {
				if !answered {
					l.logger.Warn("model produced empty response, using fallback")
					if !yield(Event{Type: EventAnswer, Content: FallbackResponseMessage}) {
						return
					}
				}
				l.logger.Debug("dialogue run completed",
					"iterations", iteration,
					"elapsed", time.Since(start))
				yield(Event{Type: EventDone})
				return
			}

			results := make([]ToolResult, 0, len(res.calls))
			for _, call := range res.calls {
				result := l.dispatcher.Dispatch(ctx, call)
				results = append(results, result)
				if !yield(Event{Type: EventToolResult, ToolName: result.Name, Result: result.Result}) {
					return
				}
			}

			turns = append(turns,
				Turn{Role: RoleModel, Text: res.answerText, ToolCalls: res.calls},
				Turn{Role: RoleTool, ToolResults: results},
			)
		}

		l.logger.Error("dialogue run exhausted iteration budget",
			"max_iterations", l.maxIterations,
			"elapsed", time.Since(start))
		yield(Event{Type: EventError, Error: ErrMaxIterations.Error()})
	}
}

// runIteration performs one model invocation with retry. Retries happen
// only while nothing has reached the consumer yet; once a fragment is out,
// a replay would duplicate output, so stream errors become terminal.
func (l *Loop) runIteration(
	ctx context.Context,
	systemPrompt string,
	turns []Turn,
	yield func(Event) bool,
) (iterationResult, error) {
	contents := BuildContents(systemPrompt, turns)

	budget := l.thinkingBudget
	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  &budget,
		},
	}
	if decls := l.dispatcher.Declarations(); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	var lastErr error
	delay := l.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= l.retry.MaxRetries; attempt++ {
		if l.breaker != nil {
			if err := l.breaker.Allow(); err != nil {
				return iterationResult{}, err
			}
		}
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return iterationResult{}, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		res, emitted, err := l.consumeStream(ctx, contents, cfg, yield)
		if err == nil {
			if l.breaker != nil {
				l.breaker.Success()
			}
			l.logger.Debug("model stream completed",
				"attempts", attempt+1,
				"elapsed", time.Since(start))
			return res, nil
		}

		if l.breaker != nil {
			l.breaker.Failure()
		}
		lastErr = err

		if emitted || !retryableError(err) {
			return iterationResult{}, fmt.Errorf("model stream: %w", err)
		}
		if attempt == l.retry.MaxRetries {
			break
		}

		l.logger.Debug("retrying model stream",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err)

		select {
		case <-ctx.Done():
			return iterationResult{}, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, l.retry.MaxInterval)
		}
	}

	return iterationResult{}, fmt.Errorf("model stream after %d retries (elapsed: %v): %w",
		l.retry.MaxRetries, time.Since(start), lastErr)
}

// consumeStream drains one model stream, classifying and forwarding each
// part. It reports whether any fragment reached the consumer before a
// failure, which decides retry eligibility.
func (l *Loop) consumeStream(
	ctx context.Context,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
	yield func(Event) bool,
) (iterationResult, bool, error) {
	var res iterationResult
	var answer strings.Builder
	emitted := false

	stop := func() (iterationResult, bool, error) {
		res.stopped = true
		res.answerText = answer.String()
		return res, emitted, nil
	}

	for chunk, err := range l.model.GenerateStream(ctx, contents, cfg) {
		if err != nil {
			res.answerText = answer.String()
			return res, emitted, err
		}

		for _, part := range chunkParts(chunk) {
			frag := classifyPart(part)
			switch frag.Kind {
			case FragmentToolRequest:
				res.calls = append(res.calls, frag.Call)
				emitted = true
				if !yield(Event{Type: EventToolCall, ToolName: frag.Call.Name, ToolArgs: frag.Call.Args}) {
					return stop()
				}
			case FragmentReasoning:
				emitted = true
				if !yield(Event{Type: EventThinking, Content: frag.Text}) {
					return stop()
				}
			case FragmentAnswer:
				answer.WriteString(frag.Text)
				emitted = true
				if !yield(Event{Type: EventAnswer, Content: frag.Text}) {
					return stop()
				}
			case FragmentNone:
				// Skip empty parts.
			}
		}
	}

	res.answerText = answer.String()
	return res, emitted, nil
}
