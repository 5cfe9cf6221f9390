package audio

import (
	"context"
	"fmt"
	"sync"
)

// PlaybackState represents the playback pipeline lifecycle.
type PlaybackState int

const (
	// PlaybackIdle is the state before initialization.
	PlaybackIdle PlaybackState = iota
	// PlaybackReady means the device is up and the queue is drained.
	PlaybackReady
	// PlaybackPlaying means the render callback is consuming queued frames.
	PlaybackPlaying
	// PlaybackError means initialization failed or the device went away.
	PlaybackError
)

// String returns a human-readable state name.
func (s PlaybackState) String() string {
	switch s {
	case PlaybackIdle:
		return "IDLE"
	case PlaybackReady:
		return "READY"
	case PlaybackPlaying:
		return "PLAYING"
	case PlaybackError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PlaybackConfig bounds the playback queue.
type PlaybackConfig struct {
	// SoftLimit is the queue length at which a pressure notification fires.
	// Nothing is dropped at the soft limit. Default: 12 frames.
	SoftLimit int `json:"soft_limit"`

	// HardLimit is the queue length above which the oldest frames are
	// evicted. The newest frame is never rejected. Default: 24 frames.
	HardLimit int `json:"hard_limit"`
}

// DefaultPlaybackQueueConfig returns queue bounds tuned for 24kHz mono
// frames of a few hundred milliseconds each.
func DefaultPlaybackQueueConfig() PlaybackConfig {
	return PlaybackConfig{
		SoftLimit: 12,
		HardLimit: 24,
	}
}

// Playback is a bounded FIFO of decoded audio frames consumed by a
// real-time render callback. The queue and its cached sample count are owned
// exclusively by this pipeline; external observers only see snapshots
// through notifications and accessors.
type Playback struct {
	audio Config
	cfg   PlaybackConfig

	mu       sync.Mutex
	state    PlaybackState
	queue    [][]float32
	cur      []float32
	curOff   int
	buffered int // cached sample count across cur remainder + queue
	paused   bool
	wasEmpty bool
	dropped  uint64
	device   OutputDevice

	// Callbacks. Invoked with the mutex held on the render path, so they
	// must not call back into the pipeline.
	onPressure func(queueLen int)
	onEmpty    func()
	onCleared  func()
	onStarted  func()
	onDropped  func(frames int)
}

// NewPlayback creates a playback pipeline with the given format and bounds.
func NewPlayback(audio Config, cfg PlaybackConfig) *Playback {
	if cfg.SoftLimit <= 0 {
		cfg.SoftLimit = DefaultPlaybackQueueConfig().SoftLimit
	}
	if cfg.HardLimit < cfg.SoftLimit {
		cfg.HardLimit = cfg.SoftLimit * 2
	}
	return &Playback{
		audio:    audio,
		cfg:      cfg,
		state:    PlaybackIdle,
		wasEmpty: true,
	}
}

// SetCallbacks sets the notification callbacks.
func (p *Playback) SetCallbacks(onPressure func(queueLen int), onEmpty func(), onCleared func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPressure = onPressure
	p.onEmpty = onEmpty
	p.onCleared = onCleared
}

// SetStartedCallback sets the callback fired each time rendering transitions
// from silence to actually producing audio. Invoked with the mutex held on
// the render path, so it must not call back into the pipeline.
func (p *Playback) SetStartedCallback(onStarted func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStarted = onStarted
}

// SetDroppedCallback sets the callback fired when the hard limit evicts
// queued frames, with the number evicted by that enqueue. Invoked with the
// mutex held, so it must not call back into the pipeline.
func (p *Playback) SetDroppedCallback(onDropped func(frames int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDropped = onDropped
}

// Initialize brings up the output device and moves the pipeline to ready.
// If the device closes mid-setup or the caller abandons the session, the
// pipeline moves to an error state and ErrInitAborted is returned.
func (p *Playback) Initialize(ctx context.Context, device OutputDevice) error {
	p.mu.Lock()
	if p.state != PlaybackIdle {
		p.mu.Unlock()
		return fmt.Errorf("playback already initialized (state: %s)", p.state)
	}
	p.mu.Unlock()

	if device != nil {
		if err := device.Initialize(ctx); err != nil {
			p.mu.Lock()
			p.state = PlaybackError
			p.mu.Unlock()
			device.Close()
			return fmt.Errorf("%w: %v", ErrInitAborted, err)
		}
		if err := device.Start(p.Render); err != nil {
			p.mu.Lock()
			p.state = PlaybackError
			p.mu.Unlock()
			device.Close()
			return fmt.Errorf("start output device: %w", err)
		}
	}

	p.mu.Lock()
	p.device = device
	p.state = PlaybackReady
	p.mu.Unlock()
	return nil
}

// Enqueue decodes a transport frame and appends it to the queue.
// At the soft limit a pressure notification fires; at the hard limit the
// oldest queued frames are dropped until back under the limit. The newest
// audio is never rejected.
func (p *Playback) Enqueue(pcm []byte) error {
	if len(pcm) < 2 {
		return nil
	}
	samples := Int16ToFloat(BytesToInt16(pcm, nil), nil)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == PlaybackIdle || p.state == PlaybackError {
		return fmt.Errorf("playback not initialized (state: %s)", p.state)
	}

	evictedFrames := 0
	for len(p.queue) >= p.cfg.HardLimit {
		evicted := p.queue[0]
		p.queue = p.queue[1:]
		p.buffered -= len(evicted)
		p.dropped++
		evictedFrames++
	}
	if evictedFrames > 0 && p.onDropped != nil {
		p.onDropped(evictedFrames)
	}

	p.queue = append(p.queue, samples)
	p.buffered += len(samples)

	if len(p.queue) >= p.cfg.SoftLimit && p.onPressure != nil {
		p.onPressure(len(p.queue))
	}
	return nil
}

// Render fills out from the queue; called from the audio engine thread.
// Any shortfall is silence. The empty notification fires exactly once per
// emptiness transition, not once per starved callback.
func (p *Playback) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused || p.state == PlaybackIdle || p.state == PlaybackError {
		return
	}

	n := 0
	for n < len(out) {
		if p.curOff >= len(p.cur) {
			if len(p.queue) == 0 {
				p.cur = nil
				p.curOff = 0
				break
			}
			p.cur = p.queue[0]
			p.queue = p.queue[1:]
			p.curOff = 0
		}
		c := copy(out[n:], p.cur[p.curOff:])
		p.curOff += c
		p.buffered -= c
		n += c
	}

	if n > 0 {
		if p.state != PlaybackPlaying && p.onStarted != nil {
			p.onStarted()
		}
		p.state = PlaybackPlaying
		p.wasEmpty = false
	}
	if p.buffered == 0 && !p.wasEmpty {
		p.wasEmpty = true
		p.state = PlaybackReady
		if p.onEmpty != nil {
			p.onEmpty()
		}
	}
}

// Clear discards the queue and any partially-played frame in a single
// operation, used for barge-in. Safe to call concurrently with an in-flight
// render; the render either completes before or observes the empty queue.
func (p *Playback) Clear() {
	p.mu.Lock()
	p.queue = nil
	p.cur = nil
	p.curOff = 0
	p.buffered = 0
	p.wasEmpty = true
	if p.state == PlaybackPlaying {
		p.state = PlaybackReady
	}
	cb := p.onCleared
	p.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Pause stops consuming the queue without discarding it.
func (p *Playback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume restarts consumption after Pause.
func (p *Playback) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

// Close releases the output device.
func (p *Playback) Close() error {
	p.mu.Lock()
	device := p.device
	p.device = nil
	p.state = PlaybackIdle
	p.queue = nil
	p.cur = nil
	p.curOff = 0
	p.buffered = 0
	p.wasEmpty = true
	p.mu.Unlock()

	if device != nil {
		return device.Close()
	}
	return nil
}

// State returns the current pipeline state.
func (p *Playback) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// BufferedSamples returns the cached count of queued samples. The cache is
// maintained on every push and pop, never recomputed by summation.
func (p *Playback) BufferedSamples() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered
}

// BufferedMs returns the queued audio duration in milliseconds.
func (p *Playback) BufferedMs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio.SampleRate == 0 {
		return 0
	}
	return p.buffered * 1000 / p.audio.SampleRate
}

// QueueLen returns the number of whole frames awaiting playback.
func (p *Playback) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// DroppedFrames returns how many frames the hard limit has evicted.
func (p *Playback) DroppedFrames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
