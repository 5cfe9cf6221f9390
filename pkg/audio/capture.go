package audio

import (
	"context"
	"fmt"
	"sync"
)

// Frame is one fully-formed capture frame. Ownership transfers to the
// receiver when the frame is emitted; the capture pipeline never touches the
// PCM buffer again.
type Frame struct {
	// PCM is 16-bit signed little-endian audio.
	PCM []byte

	// Samples is the per-channel sample count.
	Samples int

	// Partial marks a short final frame flushed by Stop.
	Partial bool
}

// Capture accumulates microphone samples into fixed-size frames and emits
// them for transport. The accumulation buffer is allocated once and reused
// for every frame so the steady-state path does not allocate on the audio
// thread; only the emitted PCM buffer is fresh per frame, since its
// ownership leaves the pipeline.
type Capture struct {
	config    Config
	frameSize int
	onFrame   func(Frame)

	mu      sync.Mutex
	buf     []float32
	w       int
	scratch []int16
	running bool
	muted   bool
	device  InputDevice
}

// NewCapture creates a capture pipeline emitting frames of frameSize samples.
// frameSize <= 0 falls back to FrameSamples. onFrame runs on the audio thread
// with the pipeline lock held: it must not block and must not call back into
// the pipeline. Hand the frame to a channel and do the real work elsewhere.
func NewCapture(config Config, frameSize int, onFrame func(Frame)) *Capture {
	if frameSize <= 0 {
		frameSize = FrameSamples
	}
	return &Capture{
		config:    config,
		frameSize: frameSize,
		onFrame:   onFrame,
	}
}

// Start acquires the input device and begins accumulating samples.
// The context bounds device initialization: if the caller abandons the
// session mid-setup, initialization fails with ErrInitAborted and the
// device is released.
func (c *Capture) Start(ctx context.Context, device InputDevice) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("capture already started")
	}
	c.buf = make([]float32, c.frameSize)
	c.scratch = make([]int16, c.frameSize)
	c.w = 0
	c.running = true
	c.device = device
	c.mu.Unlock()

	if device != nil {
		if err := device.Initialize(ctx); err != nil {
			c.mu.Lock()
			c.running = false
			c.buf = nil
			c.scratch = nil
			c.device = nil
			c.mu.Unlock()
			device.Close()
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrInitAborted, err)
			}
			return fmt.Errorf("initialize input device: %w", err)
		}
		if err := device.Start(c.Process); err != nil {
			c.mu.Lock()
			c.running = false
			c.buf = nil
			c.scratch = nil
			c.device = nil
			c.mu.Unlock()
			device.Close()
			return fmt.Errorf("start input device: %w", err)
		}
	}
	return nil
}

// Process ingests a block of samples from the audio engine. Zero-length
// input is a no-op, not an error. Called from the audio thread.
func (c *Capture) Process(samples []float32) {
	if len(samples) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	if c.muted {
		// Emission suppressed but capture keeps running so unmute is instant.
		return
	}

	for len(samples) > 0 {
		n := copy(c.buf[c.w:], samples)
		c.w += n
		samples = samples[n:]
		if c.w == c.frameSize {
			c.emitLocked(false)
		}
	}
}

// emitLocked encodes the accumulated samples and hands the frame off.
// The write index resets to zero and the backing buffer is reused.
func (c *Capture) emitLocked(partial bool) {
	n := c.w
	if n == 0 {
		return
	}
	c.scratch = FloatToInt16(c.buf[:n], c.scratch)
	pcm := Int16ToBytes(c.scratch, nil)
	c.w = 0

	if c.onFrame != nil {
		c.onFrame(Frame{PCM: pcm, Samples: n, Partial: partial})
	}
}

// Mute suppresses frame emission without stopping capture.
func (c *Capture) Mute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = true
	// Discard the partial frame so stale audio is not stitched onto
	// whatever arrives after unmute.
	c.w = 0
}

// Unmute resumes frame emission.
func (c *Capture) Unmute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = false
}

// Muted reports whether emission is currently suppressed.
func (c *Capture) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Stop flushes any partial buffer as a final short frame, releases the
// accumulation buffer, and closes the device.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	if !c.muted {
		c.emitLocked(true)
	}
	c.buf = nil
	c.scratch = nil
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device != nil {
		return device.Close()
	}
	return nil
}

// Running reports whether the pipeline is accumulating samples.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
