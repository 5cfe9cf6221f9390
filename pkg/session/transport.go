package session

import (
	"context"
	"encoding/json"
)

// ToolCall is a tool invocation delivered by the remote conversation.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// TransportHandler receives events from the remote conversational transport.
// Calls for a given stream arrive in the order the underlying snapshots were
// produced; the session applies them in that order.
type TransportHandler interface {
	OnConnected()
	OnUserTranscript(text string, isFinal bool)
	OnModelTranscript(text string, isFinal bool)
	OnAudio(pcm []byte)
	OnTurnComplete()
	OnInterrupted()
	OnSilenceChosen(reason string)
	OnToolCall(call ToolCall)
	OnTransportError(code string, err error)
}

// Transport is the bidirectional channel to the remote conversation.
type Transport interface {
	// Connect establishes the remote session and begins delivering events to
	// the handler. Blocks until the handshake completes or fails.
	Connect(ctx context.Context, handler TransportHandler) error

	// SendAudio streams one capture frame of raw PCM to the remote.
	SendAudio(pcm []byte) error

	// SendText submits a typed user message in place of speech.
	SendText(text string) error

	// InjectContext supplies out-of-band steering text that is not shown to
	// the user, e.g. a mismatch suggestion.
	InjectContext(text string) error

	// EndAudioStream signals that no further capture audio will follow.
	EndAudioStream() error

	// Close tears down the remote session.
	Close() error
}
