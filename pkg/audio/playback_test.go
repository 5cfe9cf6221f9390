package audio

import (
	"context"
	"errors"
	"testing"
)

func newReadyPlayback(t *testing.T, cfg PlaybackConfig) *Playback {
	t.Helper()
	p := NewPlayback(DefaultPlaybackConfig(), cfg)
	if err := p.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p
}

func pcmFrame(samples int, value int16) []byte {
	s := make([]int16, samples)
	for i := range s {
		s[i] = value
	}
	return Int16ToBytes(s, nil)
}

func TestPlayback_HardLimitDropsOldest(t *testing.T) {
	p := newReadyPlayback(t, PlaybackConfig{SoftLimit: 2, HardLimit: 3})

	for i := int16(1); i <= 5; i++ {
		if err := p.Enqueue(pcmFrame(4, i*100)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	if p.QueueLen() > 3 {
		t.Errorf("queue len %d exceeds hard limit 3", p.QueueLen())
	}
	if p.DroppedFrames() != 2 {
		t.Errorf("dropped = %d, want 2", p.DroppedFrames())
	}

	// The newest frame is always retained: drain and check the last
	// rendered samples correspond to frame value 500.
	out := make([]float32, 4*3)
	p.Render(out)
	last := out[len(out)-1]
	want := Int16ToFloat([]int16{500}, nil)[0]
	if last != want {
		t.Errorf("newest frame lost: last sample %v, want %v", last, want)
	}
}

func TestPlayback_DroppedCallbackReportsEvictions(t *testing.T) {
	p := newReadyPlayback(t, PlaybackConfig{SoftLimit: 2, HardLimit: 3})

	total := 0
	calls := 0
	p.SetDroppedCallback(func(frames int) {
		total += frames
		calls++
	})

	for i := int16(1); i <= 5; i++ {
		if err := p.Enqueue(pcmFrame(4, i*100)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	// Enqueues four and five each evict exactly one frame.
	if calls != 2 {
		t.Errorf("callback fired %d times, want 2", calls)
	}
	if total != 2 {
		t.Errorf("reported drops = %d, want 2", total)
	}
	if p.DroppedFrames() != uint64(total) {
		t.Errorf("counter %d disagrees with callback total %d", p.DroppedFrames(), total)
	}
}

func TestPlayback_SoftLimitNotifiesWithoutDropping(t *testing.T) {
	p := newReadyPlayback(t, PlaybackConfig{SoftLimit: 2, HardLimit: 10})

	pressure := 0
	p.SetCallbacks(func(queueLen int) { pressure++ }, nil, nil)

	p.Enqueue(pcmFrame(4, 1))
	if pressure != 0 {
		t.Error("pressure fired below soft limit")
	}
	p.Enqueue(pcmFrame(4, 2))
	p.Enqueue(pcmFrame(4, 3))
	if pressure != 2 {
		t.Errorf("pressure fired %d times, want 2", pressure)
	}
	if p.DroppedFrames() != 0 {
		t.Error("soft limit dropped frames")
	}
}

func TestPlayback_SampleCountCache(t *testing.T) {
	p := newReadyPlayback(t, DefaultPlaybackQueueConfig())

	p.Enqueue(pcmFrame(8, 1))
	p.Enqueue(pcmFrame(8, 2))
	if p.BufferedSamples() != 16 {
		t.Fatalf("buffered = %d, want 16", p.BufferedSamples())
	}

	out := make([]float32, 10)
	p.Render(out)
	if p.BufferedSamples() != 6 {
		t.Errorf("after partial render buffered = %d, want 6", p.BufferedSamples())
	}
}

func TestPlayback_RenderSilenceAndEmptyNotification(t *testing.T) {
	p := newReadyPlayback(t, DefaultPlaybackQueueConfig())

	empties := 0
	p.SetCallbacks(nil, func() { empties++ }, nil)

	p.Enqueue(pcmFrame(4, 1000))

	out := make([]float32, 8)
	p.Render(out)
	for i := 4; i < 8; i++ {
		if out[i] != 0 {
			t.Errorf("sample %d not silence: %v", i, out[i])
		}
	}
	if empties != 1 {
		t.Fatalf("empty notification fired %d times, want 1", empties)
	}

	// Starved callbacks do not re-notify until audio flows again.
	p.Render(out)
	p.Render(out)
	if empties != 1 {
		t.Errorf("empty notification fired %d times across starved renders, want 1", empties)
	}

	p.Enqueue(pcmFrame(4, 1000))
	p.Render(out)
	if empties != 2 {
		t.Errorf("empty notification after refill = %d, want 2", empties)
	}
}

func TestPlayback_BargeInClearAtomicity(t *testing.T) {
	p := newReadyPlayback(t, DefaultPlaybackQueueConfig())

	cleared := false
	p.SetCallbacks(nil, nil, func() { cleared = true })

	p.Enqueue(pcmFrame(8, 111))
	p.Enqueue(pcmFrame(8, 222))

	// Partially play the first frame, then barge in.
	out := make([]float32, 4)
	p.Render(out)

	p.Clear()
	if !cleared {
		t.Error("clear acknowledgment not emitted")
	}
	if p.BufferedSamples() != 0 {
		t.Errorf("buffered = %d after clear, want 0", p.BufferedSamples())
	}

	p.Enqueue(pcmFrame(4, 333))
	rendered := make([]float32, 4)
	p.Render(rendered)
	want := Int16ToFloat([]int16{333}, nil)[0]
	for i, v := range rendered {
		if v != want {
			t.Fatalf("sample %d after clear = %v, want %v (pre-clear audio leaked)", i, v, want)
		}
	}
}

func TestPlayback_PauseResume(t *testing.T) {
	p := newReadyPlayback(t, DefaultPlaybackQueueConfig())
	p.Enqueue(pcmFrame(4, 500))

	p.Pause()
	out := make([]float32, 4)
	p.Render(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("paused render produced audio at %d: %v", i, v)
		}
	}
	if p.BufferedSamples() != 4 {
		t.Error("pause consumed the queue")
	}

	p.Resume()
	p.Render(out)
	if out[0] == 0 {
		t.Error("resume did not restart consumption")
	}
}

func TestPlayback_StateTransitions(t *testing.T) {
	p := NewPlayback(DefaultPlaybackConfig(), DefaultPlaybackQueueConfig())
	if p.State() != PlaybackIdle {
		t.Fatalf("initial state = %s, want IDLE", p.State())
	}
	if err := p.Enqueue(pcmFrame(4, 1)); err == nil {
		t.Error("enqueue before initialization should fail")
	}

	if err := p.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if p.State() != PlaybackReady {
		t.Fatalf("state after init = %s, want READY", p.State())
	}

	p.Enqueue(pcmFrame(8, 1))
	out := make([]float32, 4)
	p.Render(out)
	if p.State() != PlaybackPlaying {
		t.Errorf("state while rendering = %s, want PLAYING", p.State())
	}

	p.Render(out)
	p.Render(out)
	if p.State() != PlaybackReady {
		t.Errorf("state after drain = %s, want READY", p.State())
	}
}

type fakeOutputDevice struct {
	initErr error
	closed  bool
}

func (d *fakeOutputDevice) Initialize(ctx context.Context) error {
	if d.initErr != nil {
		return d.initErr
	}
	return ctx.Err()
}

func (d *fakeOutputDevice) Start(func(out []float32)) error { return nil }

func (d *fakeOutputDevice) Close() error {
	d.closed = true
	return nil
}

func TestPlayback_InitAborted(t *testing.T) {
	p := NewPlayback(DefaultPlaybackConfig(), DefaultPlaybackQueueConfig())
	device := &fakeOutputDevice{initErr: ErrDeviceClosed}

	err := p.Initialize(context.Background(), device)
	if !errors.Is(err, ErrInitAborted) {
		t.Fatalf("expected ErrInitAborted, got %v", err)
	}
	if p.State() != PlaybackError {
		t.Errorf("state = %s, want ERROR", p.State())
	}
	if !device.closed {
		t.Error("partially-acquired device not released")
	}
}
