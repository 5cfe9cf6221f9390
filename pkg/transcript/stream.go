package transcript

import "sync"

// Stream accumulates one speaker's transcript across a turn. Snapshots are
// folded in through Merge; the streaming flag stays true until the turn
// completes. Safe for concurrent use.
type Stream struct {
	mu        sync.Mutex
	th        Thresholds
	text      string
	streaming bool
}

// NewStream returns an empty stream using the given merge thresholds.
func NewStream(th Thresholds) *Stream {
	return &Stream{th: th}
}

// Apply folds the next snapshot into the accumulated text and returns the
// merge decision. Any snapshot, including an empty one, marks the stream as
// actively streaming until Finalize.
func (s *Stream) Apply(snapshot string) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := Merge(s.text, snapshot, s.th)
	s.text = d.Next
	s.streaming = true
	return d
}

// Finalize marks the turn as complete and returns the settled text.
// Further Apply calls start a new streaming phase on top of the same text.
func (s *Stream) Finalize() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streaming = false
	return s.text
}

// Reset discards all accumulated text, for turn boundaries where the
// in-progress message is abandoned rather than settled.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.text = ""
	s.streaming = false
}

// Text returns the accumulated text so far.
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Streaming reports whether a turn is still in progress.
func (s *Stream) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}
