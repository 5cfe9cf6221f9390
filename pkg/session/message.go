package session

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the session transcript.
type Message struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Text string `json:"text"`

	// Streaming is true while the turn is still in progress; it flips to
	// false only on an explicit turn-complete signal.
	Streaming bool `json:"streaming"`

	// SilenceTriggered marks a user message that the remote chose not to
	// answer.
	SilenceTriggered bool `json:"silence_triggered,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
