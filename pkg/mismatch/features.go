// Package mismatch compares what a speaker says with how they sound and
// flags utterances where the two disagree, e.g. dismissive positive language
// delivered with acoustically stressed speech. Detection is pure computation;
// the session decides what to do with a positive result.
package mismatch

// AudioFeatures are the per-utterance acoustic measurements supplied by the
// external feature extractor. Zero values mean the measurement is absent.
type AudioFeatures struct {
	MFCC             []float64 `json:"mfcc,omitempty"`
	SpectralCentroid float64   `json:"spectral_centroid"`
	SpectralFlux     float64   `json:"spectral_flux"`
	SpectralRolloff  float64   `json:"spectral_rolloff"`
	RMS              float64   `json:"rms"`
	ZeroCrossingRate float64   `json:"zero_crossing_rate"`

	// SpeechRate is in words per second over the voiced portion.
	SpeechRate float64 `json:"speech_rate"`

	PauseRatio float64 `json:"pause_ratio"`
	PauseCount int     `json:"pause_count"`

	PitchMean   float64 `json:"pitch_mean"`
	PitchStddev float64 `json:"pitch_stddev"`
	PitchRange  float64 `json:"pitch_range"`
}

// Degenerate reports whether the features carry no usable signal.
func (f AudioFeatures) Degenerate() bool {
	return f.SpeechRate == 0 && f.RMS == 0
}

// WellnessMetrics is the model-estimated affect summary for an utterance.
type WellnessMetrics struct {
	// StressScore is in [0, 1].
	StressScore float64 `json:"stress_score"`
	// StressLevel is the model's coarse bucket: "low", "moderate", "high".
	StressLevel string `json:"stress_level"`
	// FatigueScore is in [0, 1].
	FatigueScore float64 `json:"fatigue_score"`
	FatigueLevel string  `json:"fatigue_level"`
}

// Patterns are the coarse categorical labels derived from AudioFeatures.
// Empty fields mean the underlying measurement was absent.
type Patterns struct {
	SpeechRate     string `json:"speech_rate,omitempty"`      // "slow" | "fast"
	Energy         string `json:"energy,omitempty"`           // "low" | "high"
	PauseFrequency string `json:"pause_frequency,omitempty"`  // "rare" | "frequent"
	VoiceTone      string `json:"voice_tone,omitempty"`       // "dull" | "bright"
}

// Result is the outcome of a single detection pass. Only the latest result
// per session is retained; results are never persisted as history.
type Result struct {
	Detected            bool     `json:"detected"`
	SemanticSignal      string   `json:"semantic_signal"`
	AcousticSignal      string   `json:"acoustic_signal"`
	Confidence          float64  `json:"confidence"`
	SuggestionForGemini string   `json:"suggestion_for_gemini,omitempty"`
	Patterns            Patterns `json:"patterns"`
}
