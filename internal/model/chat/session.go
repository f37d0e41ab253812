package chat

import "time"

// Session groups messages under a client-generated token. It is never persisted on its own.
type Session struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"startedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	MessageCount int       `json:"messageCount"`
}
