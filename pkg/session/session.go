// Package session orchestrates a real-time voice check-in: capture and
// playback pipelines, transcript reconciliation, barge-in, tool-call
// widgets, and acoustic-semantic mismatch detection, driven by events from a
// remote conversational transport.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lumeo-health/checkin/pkg/audio"
	"github.com/lumeo-health/checkin/pkg/mismatch"
	"github.com/lumeo-health/checkin/pkg/transcript"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrAbandoned is returned when the caller tore the session down while a
	// preflight step (handshake, device acquisition) was still in flight.
	ErrAbandoned = errors.New("session abandoned during setup")
)

// Session owns one check-in conversation end to end. All mutations go
// through the state machine's defined transitions; observers consume the
// events channel and the snapshot accessors.
type Session struct {
	config    Config
	logger    *slog.Logger
	sessionID string

	transport Transport
	store     Store
	detector  *mismatch.Detector

	capture  *audio.Capture
	playback *audio.Playback
	input    audio.InputDevice
	output   audio.OutputDevice

	mu       sync.RWMutex
	state    State
	messages []Message
	widgets  []Widget
	latest   *mismatch.Result
	muted    bool

	// Per-turn transcript accumulation.
	userStream  *transcript.Stream
	modelStream *transcript.Stream
	userMsgID   string
	modelMsgID  string

	// Latest acoustic measurements from the feature extractor.
	acMu       sync.Mutex
	acFeatures mismatch.AudioFeatures
	acMetrics  mismatch.WellnessMetrics

	// droppingAudio discards further assistant audio after a barge-in until
	// the next turn boundary.
	droppingAudio atomic.Bool

	// alive gates every continuation after an awaited preflight step. It
	// flips false on End so a torn-down session never acquires devices or
	// resurrects its message list.
	alive  atomic.Bool
	closed atomic.Bool

	// audioSink, when set, receives assistant audio instead of the local
	// playback pipeline, for deployments where the speaker lives on the far
	// side of a gateway.
	audioSink func(pcm []byte)

	// captureFrames decouples the audio thread from session logic: the
	// capture callback only pushes here, and a session-owned goroutine does
	// the state inspection and network send. The audio thread never takes
	// s.mu and never blocks on transport I/O.
	captureFrames chan audio.Frame

	events chan Event
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates a session. The transport and store collaborators are
// required; input and output devices may be nil for text-only operation.
func NewSession(config Config, transport Transport, store Store, input audio.InputDevice, output audio.OutputDevice, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultConfig().EventBuffer
	}
	s := &Session{
		config:      config,
		logger:      logger,
		sessionID:   uuid.NewString(),
		transport:   transport,
		store:       store,
		detector:    mismatch.NewDetector(config.Detector),
		input:       input,
		output:      output,
		state:       StateIdle,
		userStream:  transcript.NewStream(config.Merge),
		modelStream: transcript.NewStream(config.Merge),
		events:      make(chan Event, config.EventBuffer),
		done:        make(chan struct{}),
	}
	s.captureFrames = make(chan audio.Frame, captureFrameBuffer)

	s.playback = audio.NewPlayback(config.Playback, config.Queue)
	s.playback.SetCallbacks(
		func(queueLen int) { s.emit(&QueuePressureEvent{QueueLen: queueLen}) },
		nil,
		func() { s.emit(&PlaybackClearedEvent{}) },
	)
	s.playback.SetStartedCallback(s.onPlaybackStarted)
	s.playback.SetDroppedCallback(func(frames int) {
		s.emit(&PlaybackDroppedEvent{Frames: frames})
	})

	s.capture = audio.NewCapture(config.Capture, audio.FrameSamples, s.enqueueCaptureFrame)

	return s
}

// captureFrameBuffer bounds the hand-off queue between the audio thread and
// the capture loop. At 4096 samples per 16kHz frame this is about eight
// seconds of backlog before frames drop.
const captureFrameBuffer = 32

// SessionID returns the session identifier.
func (s *Session) SessionID() string {
	return s.sessionID
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Events returns the channel for receiving session events.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Messages returns a snapshot of the message list.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Widgets returns a snapshot of the widget list.
func (s *Session) Widgets() []Widget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Widget, len(s.widgets))
	copy(out, s.widgets)
	return out
}

// LatestMismatch returns the most recent detection result, or nil.
func (s *Session) LatestMismatch() *mismatch.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	r := *s.latest
	return &r
}

// Start runs the preflight sequence: remote handshake, playback device
// setup, then capture. Each awaited step re-checks liveness, so tearing the
// session down mid-setup releases whatever was acquired and stops there.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.alive.Store(true)
	s.setState(StateConnecting)

	if err := s.transport.Connect(s.ctx, s); err != nil {
		s.fail("connection_failed", err)
		return fmt.Errorf("connect transport: %w", err)
	}
	if !s.alive.Load() {
		s.transport.Close()
		return ErrAbandoned
	}

	if err := s.playback.Initialize(s.ctx, s.output); err != nil {
		s.transport.Close()
		s.fail("audio_device", err)
		return fmt.Errorf("initialize playback: %w", err)
	}
	if !s.alive.Load() {
		s.playback.Close()
		s.transport.Close()
		return ErrAbandoned
	}

	if err := s.capture.Start(s.ctx, s.input); err != nil {
		s.playback.Close()
		s.transport.Close()
		s.fail("audio_device", err)
		return fmt.Errorf("start capture: %w", err)
	}
	if !s.alive.Load() {
		s.capture.Stop()
		s.playback.Close()
		s.transport.Close()
		return ErrAbandoned
	}

	go s.captureLoop()

	s.logger.Info("session started",
		"session_id", s.sessionID,
		"capture_rate", s.config.Capture.SampleRate,
		"playback_rate", s.config.Playback.SampleRate)
	return nil
}

// SendText submits a typed message in place of speech.
func (s *Session) SendText(text string) error {
	if !s.alive.Load() {
		return ErrAbandoned
	}
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Text:      text,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.emit(&MessageUpdatedEvent{Message: msg})

	return s.transport.SendText(text)
}

// Mute stops forwarding capture audio without stopping the device.
func (s *Session) Mute() {
	s.mu.Lock()
	s.muted = true
	s.mu.Unlock()
	s.capture.Mute()
}

// Unmute resumes forwarding capture audio.
func (s *Session) Unmute() {
	s.mu.Lock()
	s.muted = false
	s.mu.Unlock()
	s.capture.Unmute()
}

// Interrupt is a manual barge-in request. During the greeting it is a no-op:
// no audio has started, so there is nothing to clear.
func (s *Session) Interrupt() {
	s.bargeIn(true)
}

// SetAudioSink diverts assistant audio away from the local playback pipeline.
// Must be called before Start.
func (s *Session) SetAudioSink(sink func(pcm []byte)) {
	s.audioSink = sink
}

// IngestAudio feeds externally captured 16-bit PCM into the capture
// pipeline, for deployments where the microphone lives on the far side of a
// gateway.
func (s *Session) IngestAudio(pcm []byte) {
	s.capture.Process(audio.Int16ToFloat(audio.BytesToInt16(pcm, nil), nil))
}

// NotifyPlaybackStarted reports that remote playback of assistant audio
// actually began, for audio-sink deployments where the local pipeline cannot
// observe it.
func (s *Session) NotifyPlaybackStarted() {
	s.onPlaybackStarted()
}

// UpdateAcoustics records the latest per-utterance measurements from the
// external feature extractor. They are consumed when the user's turn
// finalizes.
func (s *Session) UpdateAcoustics(features mismatch.AudioFeatures, metrics mismatch.WellnessMetrics) {
	s.acMu.Lock()
	s.acFeatures = features
	s.acMetrics = metrics
	s.acMu.Unlock()
}

// End tears the session down: capture and playback stop, the device is
// released, and the remote transport closes. Safe to call at any time,
// including while Start is still awaiting a preflight step.
func (s *Session) End(reason string) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.alive.Store(false)
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.capture.Stop()
	s.playback.Close()
	if s.transport != nil {
		s.transport.EndAudioStream()
		s.transport.Close()
	}

	s.mu.Lock()
	terminal := s.state == StateError
	s.mu.Unlock()
	if !terminal {
		s.setState(StateEnded)
	}
	s.emit(&SessionEndedEvent{Reason: reason})
	close(s.done)

	s.logger.Info("session ended", "session_id", s.sessionID, "reason", reason)
}

// --- Transport handler ---

// OnConnected moves the session into the greeting phase; the remote begins
// streaming the assistant's opening audio.
func (s *Session) OnConnected() {
	if !s.alive.Load() {
		return
	}
	s.setState(StateAIGreeting)
}

// OnUserTranscript folds a user speech snapshot into the user's streaming
// message.
func (s *Session) OnUserTranscript(text string, isFinal bool) {
	if !s.alive.Load() {
		return
	}
	s.applyTranscript(RoleUser, text)

	s.mu.Lock()
	if s.state == StateListening {
		s.mu.Unlock()
		s.setState(StateUserSpeaking)
		return
	}
	s.mu.Unlock()
}

// OnModelTranscript folds an assistant speech snapshot into the assistant's
// streaming message. Final-marked chunks do not settle the message; only an
// explicit turn-complete does.
func (s *Session) OnModelTranscript(text string, isFinal bool) {
	if !s.alive.Load() {
		return
	}
	s.applyTranscript(RoleAssistant, text)
}

// OnAudio routes one assistant audio frame to the local playback pipeline,
// or to the audio sink when the speaker is remote.
func (s *Session) OnAudio(pcm []byte) {
	if !s.alive.Load() || s.droppingAudio.Load() {
		return
	}
	if s.audioSink != nil {
		s.audioSink(pcm)
		return
	}
	if err := s.playback.Enqueue(pcm); err != nil {
		s.logger.Warn("enqueue playback frame", "error", err)
	}
}

// OnTurnComplete settles both streaming messages, runs mismatch detection on
// the user's finalized utterance, and returns to listening.
func (s *Session) OnTurnComplete() {
	if !s.alive.Load() {
		return
	}
	s.droppingAudio.Store(false)

	userText := s.userStream.Finalize()
	s.modelStream.Finalize()

	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == s.userMsgID || s.messages[i].ID == s.modelMsgID {
			s.messages[i].Streaming = false
		}
	}
	updated := s.snapshotByIDsLocked(s.userMsgID, s.modelMsgID)
	s.userMsgID = ""
	s.modelMsgID = ""
	s.mu.Unlock()

	s.userStream.Reset()
	s.modelStream.Reset()

	for _, m := range updated {
		s.emit(&MessageUpdatedEvent{Message: m})
	}
	s.emit(&TurnCompleteEvent{})
	s.setState(StateListening)

	if userText != "" {
		s.runMismatch(userText)
	}
}

// OnInterrupted is the remote's acknowledgment that generation stopped early;
// whatever assistant audio is still queued locally is stale.
func (s *Session) OnInterrupted() {
	if !s.alive.Load() {
		return
	}
	s.bargeIn(false)
}

// OnSilenceChosen handles the remote deciding not to reply: the in-progress
// assistant message is withdrawn and the user's message is flagged.
func (s *Session) OnSilenceChosen(reason string) {
	if !s.alive.Load() {
		return
	}
	s.modelStream.Reset()

	s.mu.Lock()
	removedID := s.modelMsgID
	s.modelMsgID = ""
	if removedID != "" {
		kept := s.messages[:0]
		for _, m := range s.messages {
			if m.ID != removedID {
				kept = append(kept, m)
			}
		}
		s.messages = kept
	}
	var flagged *Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			s.messages[i].SilenceTriggered = true
			m := s.messages[i]
			flagged = &m
			break
		}
	}
	s.mu.Unlock()

	if removedID != "" {
		s.emit(&MessageRemovedEvent{ID: removedID})
	}
	if flagged != nil {
		s.emit(&MessageUpdatedEvent{Message: *flagged})
	}
	s.emit(&SilenceChosenEvent{Reason: reason})
	s.setState(StateListening)
}

// OnToolCall validates the call and inserts a widget optimistically, then
// persists it in the background. Malformed arguments produce a failed widget
// immediately and never reach storage.
func (s *Session) OnToolCall(call ToolCall) {
	if !s.alive.Load() {
		return
	}

	w := Widget{
		ID:        uuid.NewString(),
		ToolID:    call.ID,
		Kind:      WidgetKind(call.Name),
		CreatedAt: time.Now(),
	}

	args, err := ParseWidgetArgs(call.Name, call.Args)
	if err != nil {
		w.Status = WidgetFailed
		w.Error = err.Error()
		s.mu.Lock()
		s.widgets = append(s.widgets, w)
		s.mu.Unlock()
		s.emit(&WidgetAddedEvent{Widget: w})
		s.logger.Warn("tool call rejected", "tool", call.Name, "error", err)
		return
	}

	w.Args = args
	w.Status = WidgetPending
	s.mu.Lock()
	s.widgets = append(s.widgets, w)
	s.mu.Unlock()
	s.emit(&WidgetAddedEvent{Widget: w})

	go s.persistWidget(w)
}

// OnTransportError is a terminal failure from the remote side.
func (s *Session) OnTransportError(code string, err error) {
	if !s.alive.Load() {
		return
	}
	s.fail(code, err)
}

// --- Internal ---

// onCaptureFrame runs on the capture path for every full frame. It forwards
// audio to the remote and watches for barge-in while the assistant speaks.
// enqueueCaptureFrame runs on the audio thread. It only hands the frame to
// the capture loop and never blocks; when the loop lags behind, the frame is
// dropped rather than stalling the device callback.
func (s *Session) enqueueCaptureFrame(frame audio.Frame) {
	select {
	case s.captureFrames <- frame:
	default:
	}
}

// captureLoop drains the frame hand-off queue until the session ends. All
// state inspection and transport I/O for capture audio happens here, off the
// audio thread.
func (s *Session) captureLoop() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.captureFrames:
			s.onCaptureFrame(frame)
		}
	}
}

func (s *Session) onCaptureFrame(frame audio.Frame) {
	if !s.alive.Load() {
		return
	}

	state := s.State()
	switch state {
	case StateAIGreeting:
		// The user has not heard anything yet; noise here is not a barge-in.
	case StateAssistantSpeaking:
		if audio.RMSEnergy(frame.PCM) >= s.config.BargeInRMS {
			s.bargeIn(false)
		}
	}

	if state == StateIdle || state == StateConnecting || state == StateEnded || state == StateError {
		return
	}
	if err := s.transport.SendAudio(frame.PCM); err != nil {
		s.logger.Warn("send capture frame", "error", err)
	}
}

// onPlaybackStarted fires when the first queued frame actually reaches the
// output device, which is when the greeting becomes audible.
func (s *Session) onPlaybackStarted() {
	if !s.alive.Load() {
		return
	}
	switch s.State() {
	case StateAIGreeting, StateListening, StateUserSpeaking:
		s.setState(StateAssistantSpeaking)
	}
}

// bargeIn clears pending assistant audio and hands the floor to the user.
// Only genuine interruptions count: during the greeting there is nothing
// audible to interrupt, so both noise-triggered and manual requests are
// ignored and no queue clear is issued.
func (s *Session) bargeIn(manual bool) {
	s.mu.Lock()
	if s.state != StateAssistantSpeaking {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.droppingAudio.Store(true)
	s.playback.Clear()
	s.emit(&BargeInEvent{Manual: manual})
	s.setState(StateUserSpeaking)
}

// applyTranscript folds one snapshot into the speaker's streaming message,
// creating the message on the first snapshot of the turn.
func (s *Session) applyTranscript(role Role, text string) {
	stream := s.userStream
	if role == RoleAssistant {
		stream = s.modelStream
	}
	d := stream.Apply(text)

	s.mu.Lock()
	id := s.userMsgID
	if role == RoleAssistant {
		id = s.modelMsgID
	}
	var msg Message
	if id == "" {
		msg = Message{
			ID:        uuid.NewString(),
			Role:      role,
			Text:      d.Next,
			Streaming: true,
			CreatedAt: time.Now(),
		}
		s.messages = append(s.messages, msg)
		if role == RoleAssistant {
			s.modelMsgID = msg.ID
		} else {
			s.userMsgID = msg.ID
		}
	} else {
		for i := range s.messages {
			if s.messages[i].ID == id {
				s.messages[i].Text = d.Next
				msg = s.messages[i]
				break
			}
		}
	}
	s.mu.Unlock()

	if msg.ID != "" {
		s.emit(&MessageUpdatedEvent{Message: msg})
	}
}

// runMismatch compares the finalized user utterance against the latest
// acoustic measurements and injects a steering hint on disagreement.
func (s *Session) runMismatch(text string) {
	s.acMu.Lock()
	features := s.acFeatures
	metrics := s.acMetrics
	s.acMu.Unlock()

	if !s.detector.ShouldRun(text, features) {
		return
	}
	result := s.detector.Detect(text, features, metrics)

	s.mu.Lock()
	s.latest = &result
	s.mu.Unlock()

	if !result.Detected {
		return
	}
	s.emit(&MismatchEvent{Result: result})
	if err := s.transport.InjectContext(result.SuggestionForGemini); err != nil {
		s.logger.Warn("inject mismatch context", "error", err)
	}
}

// persistWidget runs the asynchronous confirmation of an optimistic insert.
// The storage write may complete after teardown, but a dead session's widget
// list is never touched again.
func (s *Session) persistWidget(w Widget) {
	err := s.persist(w)

	if !s.alive.Load() {
		return
	}

	s.mu.Lock()
	for i := range s.widgets {
		if s.widgets[i].ID != w.ID {
			continue
		}
		if err != nil {
			s.widgets[i].Status = WidgetFailed
			s.widgets[i].Error = err.Error()
		} else {
			s.widgets[i].Status = WidgetConfirmed
		}
		w = s.widgets[i]
		break
	}
	s.mu.Unlock()

	s.emit(&WidgetUpdatedEvent{Widget: w})
	if err != nil {
		s.logger.Warn("persist widget", "widget", string(w.Kind), "error", err)
	}
}

// persist maps a widget to its storage record.
func (s *Session) persist(w Widget) error {
	if s.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args := w.Args.(type) {
	case *JournalPromptArgs:
		return s.store.AddJournalEntry(ctx, JournalEntry{
			ID:        w.ID,
			SessionID: s.sessionID,
			Prompt:    args.Prompt,
			CreatedAt: w.CreatedAt,
		})
	case *ScheduleActivityArgs:
		sg := Suggestion{
			ID:        w.ID,
			SessionID: s.sessionID,
			Kind:      w.Kind,
			Title:     args.Title,
			CreatedAt: w.CreatedAt,
		}
		if when, err := args.When(time.Local); err == nil {
			sg.ScheduledFor = &when
		}
		return s.store.AddSuggestion(ctx, sg)
	case *BreathingExerciseArgs:
		return s.store.AddSuggestion(ctx, Suggestion{
			ID:        w.ID,
			SessionID: s.sessionID,
			Kind:      w.Kind,
			Title:     args.Technique,
			CreatedAt: w.CreatedAt,
		})
	default:
		// Stress gauge and quick actions are display-only.
		return nil
	}
}

func (s *Session) snapshotByIDsLocked(ids ...string) []Message {
	var out []Message
	for _, m := range s.messages {
		for _, id := range ids {
			if id != "" && m.ID == id {
				out = append(out, m)
			}
		}
	}
	return out
}

// fail moves the session to the terminal error state and releases resources.
func (s *Session) fail(code string, err error) {
	s.logger.Error("session error", "session_id", s.sessionID, "code", code, "error", err)
	s.setState(StateError)
	s.emit(&ErrorEvent{Code: code, Message: userFacing(code)})

	s.alive.Store(false)
	s.capture.Stop()
	s.playback.Close()
}

// userFacing maps an error code to a message safe to show the user.
// Internal logs keep the detail; credentials and raw errors never surface.
func userFacing(code string) string {
	switch code {
	case "connection_failed":
		return "Could not reach the assistant. Please try again."
	case "rate_limited":
		return "The assistant is busy right now. Please try again in a moment."
	case "auth_rejected":
		return "Voice check-in is not configured. Please check your credentials."
	case "audio_device":
		return "Could not access the microphone or speaker."
	default:
		return "Something went wrong with the session."
	}
}

func (s *Session) setState(newState State) {
	s.mu.Lock()
	oldState := s.state
	s.state = newState
	s.mu.Unlock()

	if oldState != newState {
		s.logger.Debug("state changed", "from", oldState.String(), "to", newState.String())
		s.emit(&StateChangedEvent{From: oldState, To: newState})
	}
}

// emit sends an event without blocking; a full channel drops the event.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
	}
}
