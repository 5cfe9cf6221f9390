package session

import "github.com/lumeo-health/checkin/pkg/mismatch"

// Event is the interface for all session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// MessageUpdatedEvent is emitted whenever a message's text or flags change,
// including the initial creation of a streaming message.
type MessageUpdatedEvent struct {
	Message Message `json:"message"`
}

func (e *MessageUpdatedEvent) EventType() string { return "message.updated" }

// MessageRemovedEvent is emitted when a message is withdrawn, e.g. an
// in-progress assistant reply abandoned because silence was chosen.
type MessageRemovedEvent struct {
	ID string `json:"id"`
}

func (e *MessageRemovedEvent) EventType() string { return "message.removed" }

// TurnCompleteEvent is emitted when the remote signals the end of a turn.
type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) EventType() string { return "turn.complete" }

// SilenceChosenEvent is emitted when the remote decides not to reply.
type SilenceChosenEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SilenceChosenEvent) EventType() string { return "silence.chosen" }

// BargeInEvent is emitted when user speech interrupts assistant playback.
type BargeInEvent struct {
	Manual bool `json:"manual,omitempty"`
}

func (e *BargeInEvent) EventType() string { return "barge_in" }

// WidgetAddedEvent is emitted when a tool call inserts a widget.
type WidgetAddedEvent struct {
	Widget Widget `json:"widget"`
}

func (e *WidgetAddedEvent) EventType() string { return "widget.added" }

// WidgetUpdatedEvent is emitted when a widget's status settles.
type WidgetUpdatedEvent struct {
	Widget Widget `json:"widget"`
}

func (e *WidgetUpdatedEvent) EventType() string { return "widget.updated" }

// MismatchEvent is emitted when the detector flags an utterance.
type MismatchEvent struct {
	Result mismatch.Result `json:"result"`
}

func (e *MismatchEvent) EventType() string { return "mismatch.detected" }

// QueuePressureEvent is emitted when the playback queue crosses its soft limit.
type QueuePressureEvent struct {
	QueueLen int `json:"queue_len"`
}

func (e *QueuePressureEvent) EventType() string { return "playback.pressure" }

// PlaybackDroppedEvent is emitted when the playback queue's hard limit
// evicts frames to make room for newer audio.
type PlaybackDroppedEvent struct {
	Frames int `json:"frames"`
}

func (e *PlaybackDroppedEvent) EventType() string { return "playback.dropped" }

// PlaybackClearedEvent is emitted after a barge-in clears queued audio.
type PlaybackClearedEvent struct{}

func (e *PlaybackClearedEvent) EventType() string { return "playback.cleared" }

// SessionEndedEvent is emitted when the session ends.
type SessionEndedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SessionEndedEvent) EventType() string { return "session.ended" }

// ErrorEvent is emitted when an error terminates the session.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }
