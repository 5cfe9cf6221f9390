package session

import (
	"github.com/lumeo-health/checkin/pkg/audio"
	"github.com/lumeo-health/checkin/pkg/mismatch"
	"github.com/lumeo-health/checkin/pkg/transcript"
)

// State represents the current phase of a check-in session.
type State int

const (
	// StateIdle is the state before the session is started.
	StateIdle State = iota
	// StateConnecting means the remote handshake and device setup are in flight.
	StateConnecting
	// StateAIGreeting means the assistant's opening audio is buffering but the
	// user has not heard anything yet. Barge-in is ignored in this state.
	StateAIGreeting
	// StateListening means the session is idle between turns, capturing user audio.
	StateListening
	// StateUserSpeaking means the user's turn is in progress.
	StateUserSpeaking
	// StateAssistantSpeaking means assistant audio is being played.
	StateAssistantSpeaking
	// StateEnded means the session finished normally.
	StateEnded
	// StateError means the session terminated on a transport or device error.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateAIGreeting:
		return "AI_GREETING"
	case StateListening:
		return "LISTENING"
	case StateUserSpeaking:
		return "USER_SPEAKING"
	case StateAssistantSpeaking:
		return "ASSISTANT_SPEAKING"
	case StateEnded:
		return "ENDED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config holds all configuration for a check-in session.
type Config struct {
	// SystemPrompt steers the remote conversation model.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Capture is the microphone format. Default: 16kHz mono s16.
	Capture audio.Config `json:"capture"`

	// Playback is the speaker format. Default: 24kHz mono s16.
	Playback audio.Config `json:"playback"`

	// Queue bounds the playback queue.
	Queue audio.PlaybackConfig `json:"queue"`

	// Merge holds the transcript merge ladder cutoffs.
	Merge transcript.Thresholds `json:"merge"`

	// Detector holds the mismatch detector cutoffs.
	Detector mismatch.DetectorConfig `json:"detector"`

	// BargeInRMS is the capture-frame energy above which user speech counts
	// as a barge-in while the assistant is speaking.
	BargeInRMS float64 `json:"barge_in_rms"`

	// EventBuffer is the capacity of the events channel. Events are dropped
	// when the consumer falls this far behind.
	EventBuffer int `json:"event_buffer"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capture:     audio.DefaultCaptureConfig(),
		Playback:    audio.DefaultPlaybackConfig(),
		Queue:       audio.DefaultPlaybackQueueConfig(),
		Merge:       transcript.DefaultThresholds(),
		Detector:    mismatch.DefaultDetectorConfig(),
		BargeInRMS:  0.02,
		EventBuffer: 100,
	}
}
