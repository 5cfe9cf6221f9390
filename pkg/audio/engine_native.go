package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

// MalgoInput is an InputDevice backed by the system microphone via malgo.
// Capture runs on a realtime-priority engine thread; samples are converted
// to floats and handed to the pipeline's process callback.
type MalgoInput struct {
	config Config

	mu        sync.Mutex
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	scratch   []float32
	scratch16 []int16
	closed    bool
}

// NewMalgoInput creates a microphone engine for the given format.
func NewMalgoInput(config Config) *MalgoInput {
	return &MalgoInput{config: config}
}

// Initialize brings up the malgo context. The context argument bounds the
// setup: if it is cancelled before the engine is ready the device is torn
// down and ErrDeviceClosed is returned, so an abandoned session never keeps
// a half-initialized microphone handle.
func (m *MalgoInput) Initialize(ctx context.Context) error {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	mctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || ctx.Err() != nil {
		m.ctx = nil
		_ = mctx.Uninit()
		return ErrDeviceClosed
	}
	m.ctx = mctx
	return nil
}

// Start opens the capture device and begins delivering samples.
func (m *MalgoInput) Start(process func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil || m.closed {
		return ErrDeviceClosed
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.config.Channels)
	deviceConfig.SampleRate = uint32(m.config.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	m.scratch = make([]float32, m.config.SamplesForDurationMs(40))
	m.scratch16 = make([]int16, m.config.SamplesForDurationMs(40))

	// The data callback runs serialized on the device thread, so the
	// scratch buffers need no locking.
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			m.scratch16 = BytesToInt16(pInputSamples, m.scratch16)
			m.scratch = Int16ToFloat(m.scratch16, m.scratch)
			process(m.scratch)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	return nil
}

// Close stops the device and releases the audio context.
func (m *MalgoInput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx = nil
	}
	return nil
}

// OtoOutput is an OutputDevice backed by the system speaker via oto.
// oto pulls audio through an io.Reader; the reader bridges to the playback
// pipeline's render callback.
type OtoOutput struct {
	config Config

	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	closed bool
}

// NewOtoOutput creates a speaker engine for the given format.
func NewOtoOutput(config Config) *OtoOutput {
	return &OtoOutput{config: config}
}

// Initialize brings up the oto context and waits for the device to become
// ready. Cancellation mid-setup returns ErrDeviceClosed.
func (o *OtoOutput) Initialize(ctx context.Context) error {
	// ~100ms buffer keeps latency low without starving the device.
	opts := &oto.NewContextOptions{
		SampleRate:   o.config.SampleRate,
		ChannelCount: o.config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
	octx, ready, err := oto.NewContext(opts)
	if err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return ErrDeviceClosed
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrDeviceClosed
	}
	o.ctx = octx
	return nil
}

// Start begins pulling audio from render.
func (o *OtoOutput) Start(render func(out []float32)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil || o.closed {
		return ErrDeviceClosed
	}
	// 20ms pull granularity.
	o.player = o.ctx.NewPlayer(&renderReader{
		render:  render,
		samples: make([]float32, o.config.SamplesForDurationMs(20)),
		scratch: make([]int16, o.config.SamplesForDurationMs(20)),
	})
	o.player.Play()
	return nil
}

// Close stops playback and releases the player.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if o.player != nil {
		err := o.player.Close()
		o.player = nil
		return err
	}
	return nil
}

// renderReader adapts a render callback to the io.Reader oto pulls from.
type renderReader struct {
	render  func(out []float32)
	samples []float32
	scratch []int16
}

func (r *renderReader) Read(p []byte) (int, error) {
	want := len(p) / 2
	if want == 0 {
		return 0, nil
	}
	if want > len(r.samples) {
		want = len(r.samples)
	}
	block := r.samples[:want]
	r.render(block)
	r.scratch = FloatToInt16(block, r.scratch)
	Int16ToBytes(r.scratch, p[:want*2])
	return want * 2, nil
}
