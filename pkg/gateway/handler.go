package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumeo-health/checkin/internal/metrics"
	"github.com/lumeo-health/checkin/pkg/audio"
	"github.com/lumeo-health/checkin/pkg/session"
)

// SessionFactory builds a session for one websocket client. The returned
// session must not be started; the handler starts and ends it.
type SessionFactory func(ctx context.Context) (*session.Session, error)

// Handler serves /v1/checkin websocket sessions: one session per connection,
// browser microphone audio in, assistant audio and session events out.
type Handler struct {
	NewSession       SessionFactory
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
	HandshakeTimeout time.Duration
	MaxMessageBytes  int64
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.MaxMessageBytes)
	}

	handshakeTimeout := h.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	hello, derr := h.readHello(conn)
	if derr != nil {
		writeError(conn, derr.Code, derr.Message, derr.Param, true)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	sess, err := h.NewSession(r.Context())
	if err != nil {
		logger.Error("create session", "error", err)
		writeError(conn, "internal", "could not create session", "", true)
		return
	}
	defer sess.End("connection closed")

	// Assistant audio goes back over the socket instead of a local speaker.
	writer := newConnWriter(conn)
	sess.SetAudioSink(func(pcm []byte) {
		if h.Metrics != nil {
			h.Metrics.RecordAudio("playback", len(pcm))
		}
		writer.send(&ServerAudioChunk{
			Type:     "assistant_audio_chunk",
			Seq:      writer.nextSeq(),
			AudioB64: audio.EncodeFrame(pcm),
		})
	})

	if err := sess.Start(r.Context()); err != nil {
		logger.Error("start session", "error", err)
		writeError(conn, "connection_failed", "could not reach the assistant", "", true)
		return
	}
	if h.Metrics != nil {
		started := time.Now()
		h.Metrics.SessionStarted()
		defer func() { h.Metrics.SessionEnded("closed", time.Since(started)) }()
	}

	writer.send(&ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: ProtocolVersion1,
		SessionID:       sess.SessionID(),
		AudioIn:         hello.AudioIn,
		AudioOut:        hello.AudioOut,
	})

	done := make(chan struct{})
	go h.writePump(writer, sess, done)
	h.readLoop(conn, writer, sess, logger)
	close(done)
}

func (h Handler) readHello(conn *websocket.Conn) (ClientHello, *DecodeError) {
	messageType, frame, err := conn.ReadMessage()
	if err != nil || messageType != websocket.TextMessage {
		return ClientHello{}, badRequest("first frame must be hello", "")
	}
	decoded, err := DecodeClientMessage(frame)
	if err != nil {
		if derr, ok := err.(*DecodeError); ok {
			return ClientHello{}, derr
		}
		return ClientHello{}, badRequest("invalid hello frame", "")
	}
	hello, ok := decoded.(ClientHello)
	if !ok {
		return ClientHello{}, badRequest("first frame must be hello", "")
	}
	if hello.AudioIn.SampleRateHz != 16000 || hello.AudioIn.Channels != 1 {
		return ClientHello{}, unsupported("audio_in must be pcm_s16le @16000Hz mono", "audio_in")
	}
	if hello.AudioOut.SampleRateHz != 24000 || hello.AudioOut.Channels != 1 {
		return ClientHello{}, unsupported("audio_out must be pcm_s16le @24000Hz mono", "audio_out")
	}
	return hello, nil
}

// readLoop applies client frames to the session until the socket closes.
func (h Handler) readLoop(conn *websocket.Conn, writer *connWriter, sess *session.Session, logger *slog.Logger) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		decoded, err := DecodeClientMessage(frame)
		if err != nil {
			if derr, ok := err.(*DecodeError); ok {
				writeErrorVia(writer, derr.Code, derr.Message, derr.Param, false)
			}
			continue
		}

		switch msg := decoded.(type) {
		case ClientAudioFrame:
			pcm, err := audio.DecodeFrame(msg.DataB64)
			if err != nil {
				writeErrorVia(writer, "bad_request", "invalid audio frame data", "data_b64", false)
				continue
			}
			if h.Metrics != nil {
				h.Metrics.RecordAudio("capture", len(pcm))
			}
			sess.IngestAudio(pcm)
		case ClientText:
			if err := sess.SendText(msg.Text); err != nil {
				logger.Warn("send text", "error", err)
			}
		case ClientAcoustics:
			sess.UpdateAcoustics(msg.Features, msg.Metrics)
		case ClientPlaybackMark:
			if msg.State == "started" {
				sess.NotifyPlaybackStarted()
			}
		case ClientControl:
			switch msg.Op {
			case "interrupt":
				sess.Interrupt()
			case "mute":
				sess.Mute()
			case "unmute":
				sess.Unmute()
			case "end_session":
				sess.End("client requested end")
				return
			}
		case ClientHello:
			writeErrorVia(writer, "bad_request", "duplicate hello", "type", false)
		}
	}
}

// writePump translates session events into server frames.
func (h Handler) writePump(writer *connWriter, sess *session.Session, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			h.observe(ev)
			switch e := ev.(type) {
			case *session.StateChangedEvent:
				writer.send(&ServerState{Type: "state", From: e.From.String(), To: e.To.String()})
			case *session.MessageUpdatedEvent:
				writer.send(&ServerMessageUpdate{Type: "message_update", Message: e.Message})
			case *session.MessageRemovedEvent:
				writer.send(&ServerMessageRemoved{Type: "message_removed", ID: e.ID})
			case *session.WidgetAddedEvent:
				writer.send(&ServerWidget{Type: "widget", Widget: e.Widget})
			case *session.WidgetUpdatedEvent:
				writer.send(&ServerWidget{Type: "widget", Widget: e.Widget})
			case *session.MismatchEvent:
				writer.send(&ServerMismatch{Type: "mismatch", Result: e.Result})
			case *session.PlaybackClearedEvent:
				writer.send(&ServerAudioReset{Type: "audio_reset", Reason: "barge_in"})
			case *session.SilenceChosenEvent:
				writer.send(&ServerSilence{Type: "silence", Reason: e.Reason})
			case *session.ErrorEvent:
				writer.send(&ServerError{
					Type: "error", Code: e.Code, Message: e.Message,
					Retryable: e.Code == "rate_limited", Close: true,
				})
			case *session.SessionEndedEvent:
				writer.send(&ServerState{Type: "state", To: session.StateEnded.String()})
				return
			}
		}
	}
}

// observe feeds session events into the Prometheus collectors.
func (h Handler) observe(ev session.Event) {
	if h.Metrics == nil {
		return
	}
	switch e := ev.(type) {
	case *session.BargeInEvent:
		trigger := "voice"
		if e.Manual {
			trigger = "manual"
		}
		h.Metrics.RecordBargeIn(trigger)
	case *session.SilenceChosenEvent:
		h.Metrics.SilencesTotal.Inc()
	case *session.MismatchEvent:
		h.Metrics.RecordMismatch(e.Result.SemanticSignal, e.Result.AcousticSignal)
	case *session.WidgetUpdatedEvent:
		h.Metrics.RecordWidget(string(e.Widget.Kind), string(e.Widget.Status))
	case *session.QueuePressureEvent:
		h.Metrics.PlaybackQueueLoad.Set(float64(e.QueueLen))
	case *session.PlaybackDroppedEvent:
		h.Metrics.FramesDropped.Add(float64(e.Frames))
	case *session.ErrorEvent:
		h.Metrics.RecordError(e.Code)
	}
}

// connWriter serializes websocket writes; gorilla connections allow only one
// concurrent writer.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
	seq  int64
}

func newConnWriter(conn *websocket.Conn) *connWriter {
	return &connWriter{conn: conn}
}

func (w *connWriter) send(v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteJSON(v)
}

func (w *connWriter) nextSeq() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	return w.seq
}

func writeError(conn *websocket.Conn, code, message, param string, closeAfter bool) {
	_ = conn.WriteJSON(&ServerError{Type: "error", Code: code, Message: message, Param: param, Close: closeAfter})
	if closeAfter {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code))
	}
}

func writeErrorVia(writer *connWriter, code, message, param string, closeAfter bool) {
	writer.send(&ServerError{Type: "error", Code: code, Message: message, Param: param, Close: closeAfter})
}
