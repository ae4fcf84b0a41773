package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestBuildContentsSystemPromptLeads(t *testing.T) {
	contents := BuildContents("be helpful", []Turn{
		{Role: RoleUser, Text: "hi"},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, "SYSTEM INSTRUCTIONS:\nbe helpful", contents[0].Parts[0].Text)
	assert.Equal(t, "hi", contents[1].Parts[0].Text)
}

func TestBuildContentsNoSystemPrompt(t *testing.T) {
	contents := BuildContents("", []Turn{{Role: RoleUser, Text: "hi"}})
	require.Len(t, contents, 1)
	assert.Equal(t, "hi", contents[0].Parts[0].Text)
}

func TestBuildContentsPreservesOrder(t *testing.T) {
	contents := BuildContents("sys", []Turn{
		{Role: RoleUser, Text: "first"},
		{Role: RoleModel, Text: "reply"},
		{Role: RoleUser, Text: "second"},
	})

	require.Len(t, contents, 4)
	assert.Equal(t, "first", contents[1].Parts[0].Text)
	assert.Equal(t, genai.RoleModel, contents[2].Role)
	assert.Equal(t, "second", contents[3].Parts[0].Text)
}

func TestBuildContentsTruncatesLongText(t *testing.T) {
	long := strings.Repeat("a", maxTurnTextChars+100)
	contents := BuildContents("", []Turn{{Role: RoleUser, Text: long}})

	got := contents[0].Parts[0].Text
	assert.True(t, strings.HasSuffix(got, truncationMarker))
	assert.Len(t, []rune(got), maxTurnTextChars+len([]rune(truncationMarker)))
}

func TestBuildContentsShortTextUntouched(t *testing.T) {
	contents := BuildContents("", []Turn{{Role: RoleUser, Text: "short"}})
	assert.Equal(t, "short", contents[0].Parts[0].Text)
}

func TestBuildContentsToolExchange(t *testing.T) {
	contents := BuildContents("", []Turn{
		{Role: RoleUser, Text: "check this"},
		{Role: RoleModel, Text: "checking", ToolCalls: []ToolCall{
			{Name: "virustotal_scan", Args: map[string]any{"url": "http://x.test"}},
		}},
		{Role: RoleTool, ToolResults: []ToolResult{
			{Name: "virustotal_scan", Result: map[string]any{"result": "clean"}},
		}},
	})

	require.Len(t, contents, 3)

	model := contents[1]
	assert.Equal(t, genai.RoleModel, model.Role)
	require.Len(t, model.Parts, 2)
	assert.Equal(t, "checking", model.Parts[0].Text)
	assert.Equal(t, "virustotal_scan", model.Parts[1].FunctionCall.Name)

	toolTurn := contents[2]
	assert.Equal(t, genai.RoleUser, toolTurn.Role)
	require.Len(t, toolTurn.Parts, 1)
	assert.Equal(t, "virustotal_scan", toolTurn.Parts[0].FunctionResponse.Name)
	assert.Equal(t, "clean", toolTurn.Parts[0].FunctionResponse.Response["result"])
}

func TestBuildContentsTruncatesToolResults(t *testing.T) {
	long := strings.Repeat("r", maxToolResultChars+1)
	contents := BuildContents("", []Turn{
		{Role: RoleTool, ToolResults: []ToolResult{
			{Name: "shodan_device_search", Result: map[string]any{"result": long, "count": 3}},
		}},
	})

	require.Len(t, contents, 1)
	resp := contents[0].Parts[0].FunctionResponse.Response
	got, ok := resp["result"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(got, truncationMarker))
	assert.Equal(t, 3, resp["count"])
}

func TestBuildContentsMediaWindow(t *testing.T) {
	media := []Media{{MIMEType: "image/png", Data: []byte{1, 2, 3}}}
	turns := []Turn{
		{Role: RoleUser, Text: "one", Media: media},
		{Role: RoleModel, Text: "r1"},
		{Role: RoleUser, Text: "two", Media: media},
		{Role: RoleModel, Text: "r2"},
		{Role: RoleUser, Text: "three", Media: media},
		{Role: RoleModel, Text: "r3"},
		{Role: RoleUser, Text: "four", Media: media},
	}

	contents := BuildContents("", turns)
	require.Len(t, contents, 7)

	// Oldest user turn loses its attachment; the three most recent keep it.
	assert.Len(t, contents[0].Parts, 1)
	assert.Len(t, contents[2].Parts, 2)
	assert.Len(t, contents[4].Parts, 2)
	assert.Len(t, contents[6].Parts, 2)
}

func TestBuildContentsSkipsEmptyModelTurn(t *testing.T) {
	contents := BuildContents("", []Turn{
		{Role: RoleUser, Text: "hi"},
		{Role: RoleModel},
		{Role: RoleTool},
	})
	assert.Len(t, contents, 1)
}
