package agent

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the end user.
	RoleUser Role = "user"
	// RoleModel marks a turn produced by the model, including its tool requests.
	RoleModel Role = "model"
	// RoleTool marks a turn carrying tool execution results back to the model.
	RoleTool Role = "tool"
)

// Media is an attachment on a user turn, such as a screenshot of a
// suspicious message.
type Media struct {
	MIMEType string
	Data     []byte
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// ToolResult is the outcome of executing one ToolCall. Result always has at
// least one key: "result" on success or "error" on failure.
type ToolResult struct {
	Name   string
	Result map[string]any
}

// Turn is one entry in the conversation history.
type Turn struct {
	Role        Role
	Text        string
	Media       []Media
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// EventType identifies the kind of a streamed event.
type EventType string

const (
	// EventThinking carries a fragment of the model's reasoning.
	EventThinking EventType = "thinking"
	// EventAnswer carries a fragment of user-facing answer text.
	EventAnswer EventType = "answer"
	// EventToolCall announces a tool invocation requested by the model.
	EventToolCall EventType = "tool_call"
	// EventToolResult carries the outcome of an executed tool.
	EventToolResult EventType = "tool_result"
	// EventDone signals successful completion of the request.
	EventDone EventType = "done"
	// EventError signals the request failed. No further events follow.
	EventError EventType = "error"
)

// Event is one element of the stream a dialogue run produces. Exactly one
// terminal event (done or error) ends every run, unless the consumer stops
// iterating early.
type Event struct {
	Type     EventType      `json:"type"`
	Content  string         `json:"content,omitempty"`
	ToolName string         `json:"tool_name,omitempty"`
	ToolArgs map[string]any `json:"tool_args,omitempty"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}
