package agent

import "google.golang.org/genai"

// FragmentKind classifies one model output part.
type FragmentKind int

const (
	// FragmentNone means the part carries nothing actionable.
	FragmentNone FragmentKind = iota
	// FragmentToolRequest means the part requests a tool invocation.
	FragmentToolRequest
	// FragmentReasoning means the part is thinking text.
	FragmentReasoning
	// FragmentAnswer means the part is user-facing answer text.
	FragmentAnswer
)

// Fragment is the classified form of a streamed model part.
type Fragment struct {
	Kind FragmentKind
	Text string
	Call ToolCall
}

// classifyPart maps a raw model part to a Fragment. The rules apply in
// order: a function call wins over any text, thought text wins over answer
// text, and a part with neither is a no-op. Malformed function call
// arguments never fail classification; they degrade to an empty map.
func classifyPart(p *genai.Part) Fragment {
	if p == nil {
		return Fragment{Kind: FragmentNone}
	}
	if p.FunctionCall != nil {
		args := p.FunctionCall.Args
		if args == nil {
			args = map[string]any{}
		}
		return Fragment{
			Kind: FragmentToolRequest,
			Call: ToolCall{Name: p.FunctionCall.Name, Args: args},
		}
	}
	if p.Thought && p.Text != "" {
		return Fragment{Kind: FragmentReasoning, Text: p.Text}
	}
	if p.Text != "" {
		return Fragment{Kind: FragmentAnswer, Text: p.Text}
	}
	return Fragment{Kind: FragmentNone}
}

// chunkParts extracts the parts from a streamed response chunk. Chunks
// without candidates or content appear during normal streaming and yield nil.
func chunkParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}
