package chat

// TurnRequest is the body of the turn endpoint.
type TurnRequest struct {
	Message             string         `json:"message"`
	SessionID           string         `json:"sessionId"`
	ConversationHistory []HistoryEntry `json:"conversationHistory"`
}

// TurnResult is returned to the client for one user turn.
type TurnResult struct {
	Response      string   `json:"response"`
	Intent        string   `json:"intent"`
	Confidence    float64  `json:"confidence"`
	Sentiment     float64  `json:"sentiment"`
	HandoffNeeded bool     `json:"handoffNeeded"`
	Suggestions   []string `json:"suggestions"`
}
