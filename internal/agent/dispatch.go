package agent

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/bytesec/byte/internal/log"
)

// DefaultToolTimeout bounds a single tool execution when the tool does not
// declare its own timeout.
const DefaultToolTimeout = 30 * time.Second

// Tool is a capability the model may invoke by name.
type Tool interface {
	Name() string
	Declaration() *genai.FunctionDeclaration

	// Timeout returns the per-invocation deadline. Zero means
	// DefaultToolTimeout.
	Timeout() time.Duration

	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Dispatcher resolves tool calls against a fixed registry and executes them.
// Every outcome, including unknown tools, execution errors, and panics, is
// delivered as a ToolResult so the model can react to it; Dispatch never
// fails the dialogue.
type Dispatcher struct {
	tools  map[string]Tool
	order  []string
	logger log.Logger
}

// NewDispatcher builds a dispatcher over the given tools. A later tool with
// a duplicate name replaces the earlier one.
func NewDispatcher(logger log.Logger, tools ...Tool) *Dispatcher {
	if logger == nil {
		logger = log.NewNop()
	}
	d := &Dispatcher{
		tools:  make(map[string]Tool, len(tools)),
		logger: logger,
	}
	for _, t := range tools {
		if _, exists := d.tools[t.Name()]; !exists {
			d.order = append(d.order, t.Name())
		}
		d.tools[t.Name()] = t
	}
	return d
}

// Declarations returns the function declarations of all registered tools in
// registration order, for inclusion in the model request.
func (d *Dispatcher) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(d.order))
	for _, name := range d.order {
		decls = append(decls, d.tools[name].Declaration())
	}
	return decls
}

// Names returns the registered tool names in registration order.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.order))
	copy(names, d.order)
	return names
}

// Dispatch executes one tool call and returns its result.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) (result ToolResult) {
	result.Name = call.Name

	tool, ok := d.tools[call.Name]
	if !ok {
		d.logger.Warn("model requested unregistered tool", "tool", call.Name)
		result.Result = map[string]any{"error": "Unknown tool: " + call.Name}
		return result
	}

	timeout := tool.Timeout()
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", call.Name, "panic", r)
			result.Result = map[string]any{
				"error": fmt.Sprintf("tool %s panicked: %v", call.Name, r),
			}
		}
	}()

	start := time.Now()
	out, err := tool.Execute(ctx, call.Args)
	if err != nil {
		d.logger.Warn("tool execution failed",
			"tool", call.Name,
			"elapsed", time.Since(start),
			"error", err)
		result.Result = map[string]any{"error": err.Error()}
		return result
	}

	d.logger.Debug("tool executed",
		"tool", call.Name,
		"elapsed", time.Since(start))
	result.Result = out
	return result
}
