package mismatch

import (
	"strings"
	"testing"
)

func stressedFeatures() AudioFeatures {
	return AudioFeatures{
		SpectralCentroid: 2400,
		RMS:              0.09,
		SpeechRate:       4.1,
		PauseCount:       6,
		PauseRatio:       0.3,
	}
}

func TestShouldRun(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	cases := []struct {
		name       string
		transcript string
		features   AudioFeatures
		want       bool
	}{
		{"normal", "i slept pretty badly", stressedFeatures(), true},
		{"contraction counts as two words", "I'm fine.", stressedFeatures(), true},
		{"too short", "Okay then.", stressedFeatures(), false},
		{"degenerate features", "i slept pretty badly", AudioFeatures{}, false},
		{"empty transcript", "", stressedFeatures(), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := d.ShouldRun(c.transcript, c.features); got != c.want {
				t.Errorf("ShouldRun = %v, want %v", got, c.want)
			}
		})
	}
}

func TestClassifyPatterns(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	p := d.ClassifyPatterns(stressedFeatures())
	if p.SpeechRate != "fast" || p.Energy != "high" ||
		p.PauseFrequency != "frequent" || p.VoiceTone != "bright" {
		t.Errorf("patterns = %+v", p)
	}

	p = d.ClassifyPatterns(AudioFeatures{
		SpectralCentroid: 900,
		RMS:              0.01,
		SpeechRate:       1.4,
		PauseCount:       1,
		PauseRatio:       0.05,
	})
	if p.SpeechRate != "slow" || p.Energy != "low" ||
		p.PauseFrequency != "rare" || p.VoiceTone != "dull" {
		t.Errorf("patterns = %+v", p)
	}

	// Absent measurements leave labels empty.
	p = d.ClassifyPatterns(AudioFeatures{RMS: 0.05})
	if p.SpeechRate != "" || p.VoiceTone != "" || p.PauseFrequency != "" {
		t.Errorf("absent measurements classified: %+v", p)
	}
	if p.Energy != "high" {
		t.Errorf("energy = %q", p.Energy)
	}
}

func TestDetect_VerbalCalmAcousticStress(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	r := d.Detect("I'm fine.", stressedFeatures(), WellnessMetrics{
		StressScore: 0.85,
		StressLevel: "high",
	})
	if !r.Detected {
		t.Fatal("mismatch not detected")
	}
	if r.AcousticSignal != "stressed" {
		t.Errorf("acoustic signal = %q, want stressed", r.AcousticSignal)
	}
	if r.SemanticSignal != "calm" {
		t.Errorf("semantic signal = %q, want calm", r.SemanticSignal)
	}
	if !strings.Contains(r.SuggestionForGemini, "stress patterns") {
		t.Errorf("suggestion does not mention stress patterns: %q", r.SuggestionForGemini)
	}
	if r.Confidence < 0.5 || r.Confidence > 1 {
		t.Errorf("confidence = %v", r.Confidence)
	}
}

func TestDetect_VerbalDistressAcousticSteady(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	r := d.Detect("work has been really stressful lately", AudioFeatures{
		SpectralCentroid: 1500,
		RMS:              0.03,
		SpeechRate:       2.6,
		PauseCount:       2,
	}, WellnessMetrics{StressScore: 0.25, FatigueScore: 0.2})
	if !r.Detected {
		t.Fatal("mismatch not detected")
	}
	if r.SemanticSignal != "distressed" {
		t.Errorf("semantic signal = %q", r.SemanticSignal)
	}
	if r.AcousticSignal != "neutral" {
		t.Errorf("acoustic signal = %q", r.AcousticSignal)
	}
}

func TestDetect_AgreementIsNotAMismatch(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	// Calm words, calm voice.
	r := d.Detect("I'm doing okay today honestly", AudioFeatures{
		SpeechRate: 2.6, RMS: 0.03,
	}, WellnessMetrics{StressScore: 0.3})
	if r.Detected {
		t.Errorf("agreement flagged as mismatch: %+v", r)
	}

	// Distressed words, stressed voice.
	r = d.Detect("I'm exhausted and overwhelmed", stressedFeatures(),
		WellnessMetrics{StressScore: 0.9, StressLevel: "high"})
	if r.Detected {
		t.Errorf("consistent distress flagged as mismatch: %+v", r)
	}
}

func TestDetect_FatigueMismatch(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	r := d.Detect("it's fine, everything is good", AudioFeatures{
		SpeechRate: 1.8, RMS: 0.015, SpectralCentroid: 1100,
	}, WellnessMetrics{FatigueScore: 0.75, FatigueLevel: "high"})
	if !r.Detected {
		t.Fatal("fatigue mismatch not detected")
	}
	if r.AcousticSignal != "fatigued" {
		t.Errorf("acoustic signal = %q", r.AcousticSignal)
	}
	if !strings.Contains(r.SuggestionForGemini, "fatigued") {
		t.Errorf("suggestion = %q", r.SuggestionForGemini)
	}
}

func TestSemanticLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"I'm fine.", "calm"},
		{"no problem, all good", "calm"},
		{"I've been so anxious lately", "distressed"},
		{"couldn't sleep at all last night", "distressed"},
		{"we watched a movie", "neutral"},
	}
	for _, c := range cases {
		if got := semanticLabel(c.in); got != c.want {
			t.Errorf("semanticLabel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
