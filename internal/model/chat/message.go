package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ResponseIntent tags assistant rows; it is not a member of the analyzer's intent set.
const ResponseIntent = "response"

// Message is one persisted conversation turn. Field names mirror the messages table.
type Message struct {
	ID         string    `json:"id,omitempty"`
	SessionID  string    `json:"session_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Intent     string    `json:"intent,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Sentiment  *float64  `json:"sentiment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// HistoryEntry is the client-supplied view of an earlier turn.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Intent  string `json:"intent,omitempty"`
}

// Float returns a pointer to v, for the optional score columns.
func Float(v float64) *float64 { return &v }
