package agent

import "google.golang.org/genai"

const (
	// maxTurnTextChars caps the text of any single turn sent to the model.
	maxTurnTextChars = 4000

	// maxToolResultChars caps each tool result string sent back to the model.
	// Threat-intelligence APIs can return very large reports.
	maxToolResultChars = 5000

	// mediaTurnWindow is how many of the most recent user turns keep their
	// media attachments. Older attachments are dropped to bound request size.
	mediaTurnWindow = 3

	truncationMarker = "… [truncated]"
)

// BuildContents converts the system prompt and conversation turns into the
// request payload for the model. The system prompt is emitted exactly once
// as a leading user block; turn order is preserved, with the triggering
// turn last.
func BuildContents(systemPrompt string, turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns)+1)

	if systemPrompt != "" {
		contents = append(contents, genai.NewContentFromText(
			"SYSTEM INSTRUCTIONS:\n"+systemPrompt, genai.RoleUser))
	}

	mediaAllowed := recentUserTurns(turns, mediaTurnWindow)

	for i, turn := range turns {
		switch turn.Role {
		case RoleUser:
			parts := []*genai.Part{
				genai.NewPartFromText(truncate(turn.Text, maxTurnTextChars)),
			}
			if mediaAllowed[i] {
				for _, m := range turn.Media {
					parts = append(parts, genai.NewPartFromBytes(m.Data, m.MIMEType))
				}
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

		case RoleModel:
			var parts []*genai.Part
			if turn.Text != "" {
				parts = append(parts, genai.NewPartFromText(truncate(turn.Text, maxTurnTextChars)))
			}
			for _, tc := range turn.ToolCalls {
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Args))
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))

		case RoleTool:
			var parts []*genai.Part
			for _, tr := range turn.ToolResults {
				parts = append(parts, genai.NewPartFromFunctionResponse(
					tr.Name, truncateResult(tr.Result)))
			}
			if len(parts) == 0 {
				continue
			}
			// The API expects function responses under the user role.
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}

	return contents
}

// recentUserTurns returns the indices of the last n user turns.
func recentUserTurns(turns []Turn, n int) map[int]bool {
	allowed := make(map[int]bool, n)
	for i := len(turns) - 1; i >= 0 && len(allowed) < n; i-- {
		if turns[i].Role == RoleUser {
			allowed[i] = true
		}
	}
	return allowed
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + truncationMarker
}

func truncateResult(result map[string]any) map[string]any {
	out := make(map[string]any, len(result))
	for k, v := range result {
		if s, ok := v.(string); ok {
			out[k] = truncate(s, maxToolResultChars)
			continue
		}
		out[k] = v
	}
	return out
}
