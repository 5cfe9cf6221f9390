package mismatch

import (
	"fmt"
	"strings"
)

// DetectorConfig holds the classification cutoffs. The defaults were tuned
// against conversational check-in audio; override per deployment if the
// capture chain changes.
type DetectorConfig struct {
	// SlowFastRate splits speech rate in words per second.
	SlowFastRate float64 `json:"slow_fast_rate"`
	// LowHighRMS splits utterance energy.
	LowHighRMS float64 `json:"low_high_rms"`
	// RareFrequentPauses splits the pause count per utterance.
	RareFrequentPauses int `json:"rare_frequent_pauses"`
	// DullBrightCentroid splits spectral centroid in Hz.
	DullBrightCentroid float64 `json:"dull_bright_centroid"`

	// HighStressScore marks the acoustic signal as stressed.
	HighStressScore float64 `json:"high_stress_score"`
	// HighFatigueScore marks the acoustic signal as fatigued.
	HighFatigueScore float64 `json:"high_fatigue_score"`

	// MinWords is the minimum transcript length before detection runs.
	MinWords int `json:"min_words"`
}

// DefaultDetectorConfig returns the tuned classification cutoffs.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SlowFastRate:       2.5,
		LowHighRMS:         0.04,
		RareFrequentPauses: 4,
		DullBrightCentroid: 1800,
		HighStressScore:    0.6,
		HighFatigueScore:   0.6,
		MinWords:           3,
	}
}

// Detector classifies utterances. It holds no per-utterance state and is
// safe for concurrent use.
type Detector struct {
	config DetectorConfig
}

// NewDetector returns a detector using the given cutoffs.
func NewDetector(config DetectorConfig) *Detector {
	return &Detector{config: config}
}

// Dismissive positive phrases. Matched against the normalized transcript, so
// "I'm fine." hits "im fine".
var dismissiveMarkers = []string{
	"im fine", "im okay", "im ok", "im good", "im great", "im alright",
	"its fine", "its okay", "its nothing", "no problem", "all good",
	"doing fine", "doing okay", "doing good", "doing great", "dont worry",
	"nothing much", "everything is fine", "everythings fine",
}

var distressMarkers = []string{
	"stressed", "stressful", "anxious", "anxiety", "overwhelmed", "exhausted",
	"tired", "cant sleep", "couldnt sleep", "worried", "worrying", "awful",
	"terrible", "struggling", "burned out", "burnt out", "panicking",
	"hopeless", "drained",
}

// ShouldRun reports whether detection is worthwhile for this utterance.
// Very short transcripts and signal-free features produce noise, not insight.
// Words are alphanumeric runs, so contractions count as two.
func (d *Detector) ShouldRun(transcript string, features AudioFeatures) bool {
	words := strings.FieldsFunc(transcript, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	if len(words) < d.config.MinWords {
		return false
	}
	return !features.Degenerate()
}

// ClassifyPatterns maps the numeric features to coarse labels. Measurements
// that are absent leave the corresponding label empty.
func (d *Detector) ClassifyPatterns(features AudioFeatures) Patterns {
	var p Patterns
	if features.SpeechRate > 0 {
		if features.SpeechRate < d.config.SlowFastRate {
			p.SpeechRate = "slow"
		} else {
			p.SpeechRate = "fast"
		}
	}
	if features.RMS > 0 {
		if features.RMS < d.config.LowHighRMS {
			p.Energy = "low"
		} else {
			p.Energy = "high"
		}
	}
	if features.PauseCount > 0 || features.PauseRatio > 0 {
		if features.PauseCount < d.config.RareFrequentPauses {
			p.PauseFrequency = "rare"
		} else {
			p.PauseFrequency = "frequent"
		}
	}
	if features.SpectralCentroid > 0 {
		if features.SpectralCentroid < d.config.DullBrightCentroid {
			p.VoiceTone = "dull"
		} else {
			p.VoiceTone = "bright"
		}
	}
	return p
}

// Detect compares the transcript's semantic tone with the acoustic estimate
// and reports whether they disagree. Pure computation; the caller decides
// whether to inject the suggestion into the conversation.
func (d *Detector) Detect(transcript string, features AudioFeatures, metrics WellnessMetrics) Result {
	result := Result{
		SemanticSignal: semanticLabel(transcript),
		AcousticSignal: d.acousticLabel(metrics),
		Patterns:       d.ClassifyPatterns(features),
	}

	switch {
	case result.SemanticSignal == "calm" && result.AcousticSignal == "stressed":
		result.Detected = true
		result.Confidence = confidence(metrics.StressScore, d.config.HighStressScore)
		result.SuggestionForGemini = fmt.Sprintf(
			"The user said %q, which sounds reassuring, but their voice shows stress patterns (%s). Gently check in on how they are really doing without quoting this analysis.",
			strings.TrimSpace(transcript), describePatterns(result.Patterns))

	case result.SemanticSignal == "calm" && result.AcousticSignal == "fatigued":
		result.Detected = true
		result.Confidence = confidence(metrics.FatigueScore, d.config.HighFatigueScore)
		result.SuggestionForGemini = fmt.Sprintf(
			"The user said %q but their voice sounds fatigued (%s). Consider asking about their energy and rest without quoting this analysis.",
			strings.TrimSpace(transcript), describePatterns(result.Patterns))

	case result.SemanticSignal == "distressed" &&
		(result.AcousticSignal == "neutral" || result.AcousticSignal == "energetic"):
		result.Detected = true
		result.Confidence = 0.5
		result.SuggestionForGemini = fmt.Sprintf(
			"The user described difficulty (%q) but their voice sounds steady. They may be processing it well; acknowledge the difficulty and their composure.",
			strings.TrimSpace(transcript))
	}

	return result
}

// semanticLabel derives a coarse sentiment from transcript keywords.
// It is deliberately a heuristic, not a model; the disagreement logic above
// is what matters and survives a classifier swap.
func semanticLabel(transcript string) string {
	norm := normalizeText(transcript)
	for _, m := range distressMarkers {
		if strings.Contains(norm, m) {
			return "distressed"
		}
	}
	for _, m := range dismissiveMarkers {
		if strings.Contains(norm, m) {
			return "calm"
		}
	}
	return "neutral"
}

func (d *Detector) acousticLabel(metrics WellnessMetrics) string {
	switch {
	case metrics.StressScore >= d.config.HighStressScore || metrics.StressLevel == "high":
		return "stressed"
	case metrics.FatigueScore >= d.config.HighFatigueScore || metrics.FatigueLevel == "high":
		return "fatigued"
	case metrics.StressScore > 0 && metrics.StressScore < 0.2 &&
		metrics.FatigueScore < 0.2:
		return "energetic"
	default:
		return "neutral"
	}
}

// confidence scales how far past the cutoff the score landed into [0.5, 1].
func confidence(score, cutoff float64) float64 {
	if cutoff >= 1 {
		return 0.5
	}
	c := 0.5 + 0.5*(score-cutoff)/(1-cutoff)
	if c > 1 {
		return 1
	}
	if c < 0.5 {
		return 0.5
	}
	return c
}

func describePatterns(p Patterns) string {
	var parts []string
	if p.SpeechRate != "" {
		parts = append(parts, p.SpeechRate+" speech")
	}
	if p.Energy != "" {
		parts = append(parts, p.Energy+" energy")
	}
	if p.PauseFrequency != "" {
		parts = append(parts, p.PauseFrequency+" pauses")
	}
	if p.VoiceTone != "" {
		parts = append(parts, p.VoiceTone+" tone")
	}
	if len(parts) == 0 {
		return "no distinct patterns"
	}
	return strings.Join(parts, ", ")
}

// normalizeText lowercases and strips punctuation for keyword matching.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t' || r == '\n':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
