package audio

// FrameSamples is the number of samples accumulated per capture frame.
// At 16kHz mono this is 256ms of audio, which keeps transport overhead low
// while staying responsive enough for barge-in detection.
const FrameSamples = 4096

// Config specifies audio format parameters.
type Config struct {
	// SampleRate in Hz. Capture runs at 16000, playback at 24000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultCaptureConfig returns the microphone-side audio configuration.
// The remote conversational service mandates 16kHz mono input; callers that
// cannot capture at this rate must resample before handing samples to the
// capture pipeline.
func DefaultCaptureConfig() Config {
	return Config{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// DefaultPlaybackConfig returns the speaker-side audio configuration.
func DefaultPlaybackConfig() Config {
	return Config{
		SampleRate:    24000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c Config) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (c Config) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

// SamplesForDurationMs returns the per-channel sample count for the given duration.
func (c Config) SamplesForDurationMs(ms int) int {
	return (c.SampleRate * ms) / 1000
}
