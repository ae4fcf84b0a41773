package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestClassifyPart(t *testing.T) {
	tests := []struct {
		name string
		part *genai.Part
		want Fragment
	}{
		{
			name: "nil part",
			part: nil,
			want: Fragment{Kind: FragmentNone},
		},
		{
			name: "empty part",
			part: &genai.Part{},
			want: Fragment{Kind: FragmentNone},
		},
		{
			name: "answer text",
			part: &genai.Part{Text: "use a password manager"},
			want: Fragment{Kind: FragmentAnswer, Text: "use a password manager"},
		},
		{
			name: "thought text",
			part: &genai.Part{Text: "user seems worried", Thought: true},
			want: Fragment{Kind: FragmentReasoning, Text: "user seems worried"},
		},
		{
			name: "thought flag without text is a no-op",
			part: &genai.Part{Thought: true},
			want: Fragment{Kind: FragmentNone},
		},
		{
			name: "function call",
			part: &genai.Part{FunctionCall: &genai.FunctionCall{
				Name: "greynoise_ip_check",
				Args: map[string]any{"ip": "1.2.3.4"},
			}},
			want: Fragment{Kind: FragmentToolRequest, Call: ToolCall{
				Name: "greynoise_ip_check",
				Args: map[string]any{"ip": "1.2.3.4"},
			}},
		},
		{
			name: "function call wins over text",
			part: &genai.Part{
				Text:         "calling now",
				FunctionCall: &genai.FunctionCall{Name: "shodan_device_search"},
			},
			want: Fragment{Kind: FragmentToolRequest, Call: ToolCall{
				Name: "shodan_device_search",
				Args: map[string]any{},
			}},
		},
		{
			name: "nil args degrade to empty map",
			part: &genai.Part{FunctionCall: &genai.FunctionCall{Name: "phishtank_url_check"}},
			want: Fragment{Kind: FragmentToolRequest, Call: ToolCall{
				Name: "phishtank_url_check",
				Args: map[string]any{},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyPart(tt.part))
		})
	}
}

func TestChunkParts(t *testing.T) {
	assert.Nil(t, chunkParts(nil))
	assert.Nil(t, chunkParts(&genai.GenerateContentResponse{}))
	assert.Nil(t, chunkParts(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{}},
	}))

	parts := chunkParts(chunk(textPart("hi")))
	assert.Len(t, parts, 1)
}
