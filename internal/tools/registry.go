// Package tools implements the capabilities the model may invoke during a
// dialogue run: threat-intelligence lookups, knowledge-base retrieval, and
// the user security profile updater.
//
// Each capability owns its name, description, argument schema, timeout, and
// execution behavior. External credentials and HTTP clients are injected at
// construction; a missing API key degrades the capability to an explanatory
// error result instead of blocking startup.
package tools

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// defaultHTTPTimeout bounds outbound threat-intelligence requests.
const defaultHTTPTimeout = 30 * time.Second

// Capability is one callable tool. It satisfies the dispatcher's Tool
// interface.
type Capability struct {
	name        string
	description string
	schema      *genai.Schema
	timeout     time.Duration
	execute     func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Name returns the tool name the model calls.
func (c *Capability) Name() string { return c.name }

// Declaration returns the function declaration advertised to the model.
func (c *Capability) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        c.name,
		Description: c.description,
		Parameters:  c.schema,
	}
}

// Timeout returns the per-invocation deadline. Zero defers to the
// dispatcher default.
func (c *Capability) Timeout() time.Duration { return c.timeout }

// Execute runs the capability.
func (c *Capability) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return c.execute(ctx, args)
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

// optionalStringArg extracts an optional string argument, returning "" when
// absent or not a string.
func optionalStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// textResult wraps a report string in the result envelope the dialogue loop
// feeds back to the model.
func textResult(s string) map[string]any {
	return map[string]any{"result": s}
}

func orDefaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}
