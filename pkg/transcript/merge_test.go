package transcript

import "testing"

func TestMerge_EmptyIncomingIsNoop(t *testing.T) {
	th := DefaultThresholds()
	for _, prev := range []string{"", "hello there", "I was saying something"} {
		d := Merge(prev, "", th)
		if d.Next != prev {
			t.Errorf("Merge(%q, \"\"): next = %q, want unchanged", prev, d.Next)
		}
		if d.Delta != "" || d.Kind != KindDelta {
			t.Errorf("Merge(%q, \"\"): delta=%q kind=%v, want empty delta", prev, d.Delta, d.Kind)
		}
	}
}

func TestMerge_EmptyPrevious(t *testing.T) {
	d := Merge("", "Hello there", DefaultThresholds())
	if d.Next != "Hello there" || d.Delta != "Hello there" || d.Kind != KindDelta {
		t.Errorf("got %+v", d)
	}
}

func TestMerge_CumulativeAppend(t *testing.T) {
	d := Merge("hello", "hello world", DefaultThresholds())
	if d.Kind != KindCumulative {
		t.Fatalf("kind = %v, want cumulative", d.Kind)
	}
	if d.Next != "hello world" || d.Delta != " world" {
		t.Errorf("next=%q delta=%q", d.Next, d.Delta)
	}
}

func TestMerge_MonotonicGrowthUnderCumulatives(t *testing.T) {
	th := DefaultThresholds()
	snapshots := []string{
		"I",
		"I went",
		"I went to the",
		"I went to the market this",
		"I went to the market this morning",
	}
	text := ""
	for _, snap := range snapshots {
		d := Merge(text, snap, th)
		if len(d.Next) < len(text) {
			t.Fatalf("text shrank: %q -> %q", text, d.Next)
		}
		text = d.Next
	}
	if text != "I went to the market this morning" {
		t.Errorf("final text = %q", text)
	}
}

// A cumulative restatement that revises punctuation or casing retroactively
// supersedes the accumulated text.
func TestMerge_RetroactivePunctuationReplaces(t *testing.T) {
	d := Merge("hello world", "Hello world, how are you", DefaultThresholds())
	if d.Kind != KindReplace {
		t.Fatalf("kind = %v, want replace", d.Kind)
	}
	if d.Next != "Hello world, how are you" || d.Delta != "" {
		t.Errorf("next=%q delta=%q", d.Next, d.Delta)
	}
}

func TestMerge_RegressionGuard(t *testing.T) {
	d := Merge("hello world", "hello", DefaultThresholds())
	if d.Next != "hello world" {
		t.Errorf("stale snapshot truncated text: next = %q", d.Next)
	}
	if d.Kind != KindDelta || d.Delta != "" {
		t.Errorf("kind=%v delta=%q, want empty delta", d.Kind, d.Delta)
	}
}

func TestMerge_OverlapSplice(t *testing.T) {
	d := Merge("pretty okay", "okay but normal", DefaultThresholds())
	if d.Next != "pretty okay but normal" {
		t.Errorf("next = %q, want %q", d.Next, "pretty okay but normal")
	}
	if d.Kind != KindDelta {
		t.Errorf("kind = %v, want delta", d.Kind)
	}
}

// Overlap is counted in normalized tokens, so the splice must skip past
// fields that normalize to nothing instead of dropping them blindly. A stray
// leading dash must not shield the overlapped word from removal.
func TestMerge_OverlapSplicePunctuationField(t *testing.T) {
	d := Merge("pretty okay", "- okay but normal", DefaultThresholds())
	if d.Next != "pretty okay but normal" {
		t.Errorf("next = %q, want %q", d.Next, "pretty okay but normal")
	}
	if d.Kind != KindDelta {
		t.Errorf("kind = %v, want delta", d.Kind)
	}
}

func TestMerge_OverlapSpliceMultiToken(t *testing.T) {
	d := Merge("so i went to the", "to the store today", DefaultThresholds())
	if d.Next != "so i went to the store today" {
		t.Errorf("next = %q", d.Next)
	}
}

// A single-token boundary overlap on a stopword is too weak a signal to
// splice on; the snapshot is appended whole instead.
func TestMerge_SingleStopwordOverlapNotSpliced(t *testing.T) {
	d := Merge("i like the", "the cat", DefaultThresholds())
	if d.Next != "i like the the cat" {
		t.Errorf("next = %q", d.Next)
	}
	if d.Kind != KindDelta {
		t.Errorf("kind = %v", d.Kind)
	}
}

func TestMerge_RestartReplace(t *testing.T) {
	prev := "I was thinking maybe we could"
	inc := "I was wondering if maybe we could try something new"
	d := Merge(prev, inc, DefaultThresholds())
	if d.Kind != KindReplace {
		t.Fatalf("kind = %v, want replace", d.Kind)
	}
	if d.Next != inc {
		t.Errorf("next = %q, want incoming", d.Next)
	}
}

// A lowercase revision of a long transcript that would shrink it well past
// the slack allowance is rejected; visible text never shrinks mid-stream
// outside the bounded cases.
func TestMerge_ShorteningGuardRejects(t *testing.T) {
	prev := "yesterday evening i finished reading the second chapter about coastal birds and their long migration patterns before dinner"
	inc := "yesterday evening i finished reading that second chapter about coastal birds"
	d := Merge(prev, inc, DefaultThresholds())
	if d.Next != prev {
		t.Errorf("guard failed, text shrank: next = %q", d.Next)
	}
	if d.Kind != KindDelta || d.Delta != "" {
		t.Errorf("kind=%v delta=%q", d.Kind, d.Delta)
	}
}

// A greeting opener earns no exemption from the shortening guard once the
// transcript has outgrown the opening phase; only the bounded cases in the
// guard itself may shrink the text.
func TestMerge_GreetingRevisionPastOpeningRejected(t *testing.T) {
	prev := "hi there thanks so much for walking me through all of the scheduling options available this afternoon"
	inc := "hi there thanks so much for walking me through the scheduling options"
	d := Merge(prev, inc, DefaultThresholds())
	if d.Next != prev {
		t.Errorf("greeting restatement shrank the transcript: next = %q", d.Next)
	}
	if d.Kind != KindDelta || d.Delta != "" {
		t.Errorf("kind=%v delta=%q", d.Kind, d.Delta)
	}
}

// The same revision without the shrink passes revision detection and
// replaces the accumulated text.
func TestMerge_RevisionReplacesWhenNotShorter(t *testing.T) {
	prev := "yesterday evening i finished reading the second chapter about coastal birds and their migration"
	inc := "yesterday evening i finished reading that second chapter about coastal birds and their long migration"
	d := Merge(prev, inc, DefaultThresholds())
	if d.Kind != KindReplace || d.Next != inc {
		t.Errorf("kind=%v next=%q", d.Kind, d.Next)
	}
}

func TestMerge_FallbackAppendsVerbatim(t *testing.T) {
	d := Merge("the weather is nice", "banana", DefaultThresholds())
	if d.Next != "the weather is nice banana" {
		t.Errorf("next = %q", d.Next)
	}
	if d.Delta != " banana" || d.Kind != KindDelta {
		t.Errorf("delta=%q kind=%v", d.Delta, d.Kind)
	}
}

func TestMerge_DeltaInvariant(t *testing.T) {
	th := DefaultThresholds()
	cases := [][2]string{
		{"", "Hi"},
		{"hello", "hello world"},
		{"pretty okay", "okay but normal"},
		{"the weather is nice", "banana"},
		{"so i went to the", "to the store"},
	}
	for _, c := range cases {
		d := Merge(c[0], c[1], th)
		if d.Kind == KindReplace {
			continue
		}
		if c[0]+d.Delta != d.Next {
			t.Errorf("Merge(%q, %q): previous+delta = %q, next = %q",
				c[0], c[1], c[0]+d.Delta, d.Next)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"I'm fine, thanks!", "im fine thanks"},
		{"  Hello   World  ", "hello world"},
		{"it's the cat's toy.", "its the cats toy"},
		{"", ""},
	}
	for _, c := range cases {
		if got := normalize(c.in); got != c.want {
			t.Errorf("normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBoundaryOverlap(t *testing.T) {
	cases := []struct {
		prev, inc string
		want      int
	}{
		{"pretty okay", "okay but normal", 1},
		{"so i went to the", "to the store", 2},
		{"hello world", "goodbye moon", 0},
		{"a b c", "a b c", 3},
	}
	for _, c := range cases {
		got := boundaryOverlap(tokens(c.prev), tokens(c.inc))
		if got != c.want {
			t.Errorf("boundaryOverlap(%q, %q) = %d, want %d", c.prev, c.inc, got, c.want)
		}
	}
}

func TestStream_ApplyFinalizeReset(t *testing.T) {
	s := NewStream(DefaultThresholds())

	s.Apply("I slept")
	if !s.Streaming() {
		t.Fatal("stream not marked streaming after Apply")
	}
	s.Apply("I slept pretty well")
	if got := s.Text(); got != "I slept pretty well" {
		t.Errorf("text = %q", got)
	}
	// A second final-looking snapshot must not settle the turn on its own.
	if !s.Streaming() {
		t.Error("stream settled before finalize")
	}

	if got := s.Finalize(); got != "I slept pretty well" {
		t.Errorf("finalize = %q", got)
	}
	if s.Streaming() {
		t.Error("stream still streaming after finalize")
	}

	s.Reset()
	if s.Text() != "" || s.Streaming() {
		t.Errorf("reset left text=%q streaming=%v", s.Text(), s.Streaming())
	}
}
