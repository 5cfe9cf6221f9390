package audio

import (
	"context"
	"errors"
)

// ErrDeviceClosed is returned when the underlying audio device becomes
// unavailable, including while initialization is still in flight.
var ErrDeviceClosed = errors.New("audio: device closed")

// ErrInitAborted is returned when pipeline initialization was abandoned
// before the device became ready.
var ErrInitAborted = errors.New("audio: initialization aborted")

// InputDevice is a microphone-side audio engine. Initialize must complete
// before Start; Start invokes process from the engine's real-time thread
// with each block of captured samples.
type InputDevice interface {
	Initialize(ctx context.Context) error
	Start(process func(samples []float32)) error
	Close() error
}

// OutputDevice is a speaker-side audio engine. Start invokes render from the
// engine's real-time thread; render fills out with samples and any shortfall
// is played as silence.
type OutputDevice interface {
	Initialize(ctx context.Context) error
	Start(render func(out []float32)) error
	Close() error
}
