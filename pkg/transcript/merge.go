// Package transcript reconciles noisy incremental transcript snapshots into
// a single coherent growing message per speaker.
//
// Streaming speech services re-send text in inconsistent shapes: pure deltas,
// cumulative re-statements, retroactive corrections, and stale out-of-order
// snapshots. Merge classifies each incoming snapshot against the accumulated
// text and decides whether to append, replace, or ignore it. Text loss is
// considered worse than occasional duplication, so unclassifiable input is
// appended rather than dropped.
package transcript

import (
	"strings"
)

// Kind classifies a merge decision.
type Kind int

const (
	// KindDelta means the incoming text (or a suffix of it) was appended.
	KindDelta Kind = iota
	// KindCumulative means the incoming text restated the whole transcript
	// and only its new suffix was appended.
	KindCumulative
	// KindReplace means the incoming text superseded the accumulated text.
	KindReplace
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindCumulative:
		return "cumulative"
	case KindReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Decision is the outcome of reconciling accumulated text with a snapshot.
// For KindDelta and KindCumulative, Next == previous + Delta; for
// KindReplace, Delta is empty and Next is the incoming text.
type Decision struct {
	Next  string
	Delta string
	Kind  Kind
}

// Thresholds are the numeric cutoffs of the merge ladder. The values were
// tuned empirically against observed streaming artifacts; change them only
// with care, the scenario tests pin the literal behavior.
type Thresholds struct {
	// SpliceMinTokens is the boundary overlap (in tokens) that always
	// permits splicing incoming onto the accumulated text.
	SpliceMinTokens int

	// SpliceSingleTokenMinLen permits a single-token boundary overlap when
	// the token has at least this many characters and is not a stopword.
	SpliceSingleTokenMinLen int

	// RestartSharedTokens is the shared non-stopword vocabulary required to
	// treat a capitalized, boundary-disjoint snapshot as a corrected restart.
	RestartSharedTokens int

	// RevisionMinTokens is the meaningful-token count both sides need
	// before revision detection runs.
	RevisionMinTokens int

	// RevisionPrefixTokens: a common token prefix at least this long marks
	// a revision.
	RevisionPrefixTokens int

	// RevisionIntersectionRatio: intersection-over-min at or above this
	// marks a revision on its own.
	RevisionIntersectionRatio float64

	// RevisionSideRatio and RevisionFloorRatio mark a revision together:
	// intersection-over-either-side >= RevisionSideRatio while
	// intersection-over-min >= RevisionFloorRatio.
	RevisionSideRatio  float64
	RevisionFloorRatio float64

	// ShortenSlackChars: a replace may shorten the transcript by at most
	// this many characters without further justification.
	ShortenSlackChars int

	// OpeningMaxTokens / OpeningMaxChars bound the "still in the opening
	// phase" exemption of the shortening guard.
	OpeningMaxTokens int
	OpeningMaxChars  int
}

// DefaultThresholds returns the tuned merge ladder cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SpliceMinTokens:           2,
		SpliceSingleTokenMinLen:   3,
		RestartSharedTokens:       2,
		RevisionMinTokens:         8,
		RevisionPrefixTokens:      5,
		RevisionIntersectionRatio: 0.85,
		RevisionSideRatio:         0.75,
		RevisionFloorRatio:        0.70,
		ShortenSlackChars:         8,
		OpeningMaxTokens:          6,
		OpeningMaxChars:           60,
	}
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "i": {}, "if": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "so": {}, "the": {}, "to": {},
	"was": {}, "we": {}, "you": {},
}

// Merge reconciles previous (the accumulated text) with incoming (the newest
// snapshot) using the decision ladder; the first matching rule wins.
func Merge(previous, incoming string, th Thresholds) Decision {
	// 1. Empty incoming: no-op.
	if strings.TrimSpace(incoming) == "" {
		return Decision{Next: previous, Kind: KindDelta}
	}

	// 2. Empty previous: incoming becomes the whole transcript.
	if strings.TrimSpace(previous) == "" {
		return Decision{Next: incoming, Delta: incoming, Kind: KindDelta}
	}

	normPrev := normalize(previous)
	normInc := normalize(incoming)

	// 3. Cumulative snapshot: incoming restates everything so far.
	if strings.HasPrefix(normInc, normPrev) {
		if strings.HasPrefix(incoming, previous) {
			return Decision{
				Next:  incoming,
				Delta: incoming[len(previous):],
				Kind:  KindCumulative,
			}
		}
		// Same words, but punctuation or casing was revised retroactively.
		return Decision{Next: incoming, Kind: KindReplace}
	}

	// 4. Regression guard: a stale snapshot that is a prefix of what we
	// already have never truncates visible text.
	if strings.HasPrefix(normPrev, normInc) {
		return Decision{Next: previous, Kind: KindDelta}
	}

	prevTokens := tokens(previous)
	incTokens := tokens(incoming)
	overlap := boundaryOverlap(prevTokens, incTokens)

	// 5. Restart detection: a capitalized snapshot arriving before the
	// previous sentence completed, disjoint at the boundary but sharing
	// vocabulary, is a corrected restart.
	if startsCapitalized(incoming) && !endsTerminal(previous) && overlap == 0 {
		sharedVocab := sharedMeaningful(prevTokens, incTokens) >= th.RestartSharedTokens
		shortRestatement := commonPrefixLen(prevTokens, incTokens) >= 1 &&
			len(incTokens) <= th.OpeningMaxTokens
		if sharedVocab || shortRestatement {
			if d, ok := replaceGuarded(previous, incoming, prevTokens, overlap, th); ok {
				return d
			}
			return Decision{Next: previous, Kind: KindDelta}
		}
	}

	// 6. Corrected-snapshot detection for longer transcripts.
	if len(meaningful(prevTokens)) >= th.RevisionMinTokens &&
		len(meaningful(incTokens)) >= th.RevisionMinTokens {
		prefix := commonPrefixLen(prevTokens, incTokens)
		inter := intersectionSize(prevTokens, incTokens)
		overPrev := ratio(inter, len(prevTokens))
		overInc := ratio(inter, len(incTokens))
		// Intersection over the shorter side.
		overShorter := overPrev
		if overInc > overShorter {
			overShorter = overInc
		}

		isRevision := prefix >= th.RevisionPrefixTokens ||
			overShorter >= th.RevisionIntersectionRatio ||
			((overPrev >= th.RevisionSideRatio || overInc >= th.RevisionSideRatio) &&
				min64(overPrev, overInc) >= th.RevisionFloorRatio)

		if isRevision {
			if d, ok := replaceGuarded(previous, incoming, prevTokens, overlap, th); ok {
				return d
			}
			return Decision{Next: previous, Kind: KindDelta}
		}
	}

	// 7. Word-level overlap splice: the longest suffix of previous matching
	// a prefix of incoming marks where the new text continues.
	if overlap >= th.SpliceMinTokens ||
		(overlap == 1 && spliceableSingle(incTokens[0], th)) {
		remainder := remainderAfter(incoming, overlap)
		if remainder == "" {
			return Decision{Next: previous, Kind: KindDelta}
		}
		delta := " " + remainder
		return Decision{Next: previous + delta, Delta: delta, Kind: KindDelta}
	}

	// 8. Fallback: no detected relationship; append verbatim. Duplication
	// is recoverable, silent loss is not.
	delta := " " + incoming
	return Decision{Next: previous + delta, Delta: delta, Kind: KindDelta}
}

// replaceGuarded applies the shortening guard to a proposed replace.
// Replaces that grow the transcript always pass; shrinking ones pass only in
// the bounded cases below. ok is false when the replace is rejected.
func replaceGuarded(previous, incoming string, prevTokens []string, overlap int, th Thresholds) (Decision, bool) {
	if len(incoming) >= len(previous)-th.ShortenSlackChars {
		return Decision{Next: incoming, Kind: KindReplace}, true
	}

	// Opening phase.
	if len(prevTokens) <= th.OpeningMaxTokens || len(previous) <= th.OpeningMaxChars {
		return Decision{Next: incoming, Kind: KindReplace}, true
	}
	if startsCapitalized(incoming) && !endsTerminal(previous) && overlap == 0 {
		return Decision{Next: incoming, Kind: KindReplace}, true
	}
	return Decision{}, false
}

// normalize lowercases, strips punctuation and possessive apostrophes, and
// collapses whitespace, for relationship checks only; visible text is never
// normalized.
func normalize(s string) string {
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
		default:
			// Punctuation and apostrophes vanish without splitting the word.
		}
	}
	return strings.TrimSpace(b.String())
}

// tokens splits s into normalized word tokens.
func tokens(s string) []string {
	return strings.Fields(normalize(s))
}

func meaningful(toks []string) []string {
	out := toks[:0:0]
	for _, t := range toks {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func sharedMeaningful(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, t := range meaningful(a) {
		set[t] = struct{}{}
	}
	n := 0
	seen := make(map[string]struct{})
	for _, t := range meaningful(b) {
		if _, ok := set[t]; ok {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				n++
			}
		}
	}
	return n
}

func intersectionSize(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	n := 0
	seen := make(map[string]struct{})
	for _, t := range b {
		if _, ok := set[t]; ok {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				n++
			}
		}
	}
	return n
}

func commonPrefixLen(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// boundaryOverlap returns the length of the longest suffix of prev that
// token-exactly matches a prefix of inc.
func boundaryOverlap(prev, inc []string) int {
	max := len(prev)
	if len(inc) < max {
		max = len(inc)
	}
	for k := max; k > 0; k-- {
		match := true
		for i := 0; i < k; i++ {
			if prev[len(prev)-k+i] != inc[i] {
				match = false
				break
			}
		}
		if match {
			return k
		}
	}
	return 0
}

func spliceableSingle(token string, th Thresholds) bool {
	if len(token) < th.SpliceSingleTokenMinLen {
		return false
	}
	_, stop := stopwords[token]
	return !stop
}

// remainderAfter returns the literal text of incoming after its first n
// normalized word tokens. The overlap count comes from normalized tokens, so
// fields that normalize to nothing (stray punctuation) do not count toward n.
func remainderAfter(incoming string, n int) string {
	fields := strings.Fields(incoming)
	i := 0
	for skipped := 0; i < len(fields) && skipped < n; i++ {
		if normalize(fields[i]) != "" {
			skipped++
		}
	}
	if i >= len(fields) {
		return ""
	}
	return strings.Join(fields[i:], " ")
}

func startsCapitalized(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	r := s[0]
	return r >= 'A' && r <= 'Z'
}

func endsTerminal(s string) bool {
	s = strings.TrimRight(strings.TrimSpace(s), `"')`)
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
