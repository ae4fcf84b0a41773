// Package thread persists conversations: chat threads, the per-turn
// conversation log, and the history of tool invocations made on a user's
// behalf.
package thread

import "time"

// titleLimit is how many characters of the first message become the thread
// title.
const titleLimit = 30

// Thread groups the messages of one conversation.
type Thread struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry is one logged message, either side of the exchange.
type LogEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	Mode      string    `json:"mode"`
	ToolCalls []string  `json:"tool_calls"`
	Thinking  string    `json:"thinking,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// ToolRecord is one tool invocation kept for the user's audit trail.
type ToolRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ToolName  string    `json:"tool_name"`
	Input     string    `json:"input_data"`
	Output    string    `json:"output_data"`
	CreatedAt time.Time `json:"created_at"`
}

// titleFromMessage derives a thread title from its opening message.
func titleFromMessage(message string) string {
	runes := []rune(message)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return message
}
