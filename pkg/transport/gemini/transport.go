// Package gemini implements the remote conversational transport on the
// Gemini Live API: duplex audio streaming, input/output transcription,
// turn-complete and interruption signals, and tool calls.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/lumeo-health/checkin/pkg/session"
)

// silenceTool is the reserved function the model calls to decline a reply.
// It never reaches the widget layer; it maps to the silence-chosen signal.
const silenceTool = "choose_silence"

// Config holds the Live API connection settings.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string `json:"-"`

	// Model is the live model name. Default: gemini-live-2.5-flash.
	Model string `json:"model"`

	// SystemPrompt is the conversation steering instruction.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// InputSampleRate is the capture rate in Hz. Default: 16000.
	InputSampleRate int `json:"input_sample_rate"`

	// Voice is the prebuilt voice name, e.g. "Aoede". Empty uses the default.
	Voice string `json:"voice,omitempty"`
}

// DefaultConfig returns a Config with the reference deployment's settings.
func DefaultConfig() Config {
	return Config{
		Model:           "gemini-live-2.5-flash",
		InputSampleRate: 16000,
	}
}

// Transport is a session.Transport backed by one Live API connection.
type Transport struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	client  *genai.Client
	live    *genai.Session
	handler session.TransportHandler
	closed  bool

	done chan struct{}
}

// NewTransport creates an unconnected transport.
func NewTransport(config Config, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if config.InputSampleRate == 0 {
		config.InputSampleRate = DefaultConfig().InputSampleRate
	}
	return &Transport{
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Connect performs the Live API handshake and starts the receive loop.
func (t *Transport) Connect(ctx context.Context, handler session.TransportHandler) error {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  t.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		Tools:                    toolDeclarations(),
	}
	if t.config.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: t.config.SystemPrompt}},
		}
	}
	if t.config.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: t.config.Voice},
			},
		}
	}

	live, err := client.Live.Connect(ctx, t.config.Model, cfg)
	if err != nil {
		return fmt.Errorf("live connect: %w", err)
	}

	t.mu.Lock()
	t.client = client
	t.live = live
	t.handler = handler
	t.mu.Unlock()

	go t.receiveLoop(handler)

	handler.OnConnected()
	return nil
}

// SendAudio streams one capture frame of raw 16-bit PCM.
func (t *Transport) SendAudio(pcm []byte) error {
	live := t.session()
	if live == nil {
		return fmt.Errorf("transport not connected")
	}
	return live.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     pcm,
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", t.config.InputSampleRate),
		},
	})
}

// SendText submits a typed user turn.
func (t *Transport) SendText(text string) error {
	live := t.session()
	if live == nil {
		return fmt.Errorf("transport not connected")
	}
	return live.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{
			{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}},
		},
		TurnComplete: genai.Ptr(true),
	})
}

// InjectContext supplies steering text that is not part of the user's
// visible turn, e.g. a mismatch suggestion.
func (t *Transport) InjectContext(text string) error {
	live := t.session()
	if live == nil {
		return fmt.Errorf("transport not connected")
	}
	return live.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{
			{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}},
		},
		TurnComplete: genai.Ptr(false),
	})
}

// EndAudioStream signals that no further capture audio will follow.
func (t *Transport) EndAudioStream() error {
	live := t.session()
	if live == nil {
		return nil
	}
	return live.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true})
}

// Close tears down the live connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	live := t.live
	t.live = nil
	close(t.done)
	t.mu.Unlock()

	if live != nil {
		return live.Close()
	}
	return nil
}

func (t *Transport) session() *genai.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// receiveLoop dispatches server messages to the handler until the
// connection ends. Per-stream ordering is preserved: messages are handled
// one at a time in arrival order.
func (t *Transport) receiveLoop(handler session.TransportHandler) {
	live := t.session()
	if live == nil {
		return
	}
	for {
		select {
		case <-t.done:
			return
		default:
		}

		msg, err := live.Receive()
		if err != nil {
			if err == io.EOF || t.isClosed() {
				return
			}
			handler.OnTransportError(classify(err), err)
			return
		}
		t.dispatch(handler, msg)
	}
}

func (t *Transport) dispatch(handler session.TransportHandler, msg *genai.LiveServerMessage) {
	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			handler.OnUserTranscript(sc.InputTranscription.Text, sc.InputTranscription.Finished)
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			handler.OnModelTranscript(sc.OutputTranscription.Text, sc.OutputTranscription.Finished)
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					handler.OnAudio(part.InlineData.Data)
				}
			}
		}
		if sc.Interrupted {
			handler.OnInterrupted()
		}
		if sc.TurnComplete {
			handler.OnTurnComplete()
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			t.handleFunctionCall(handler, fc)
		}
	}
}

func (t *Transport) handleFunctionCall(handler session.TransportHandler, fc *genai.FunctionCall) {
	if fc == nil {
		return
	}

	if fc.Name == silenceTool {
		reason, _ := fc.Args["reason"].(string)
		handler.OnSilenceChosen(reason)
		t.respondToTool(fc, map[string]any{"acknowledged": true})
		return
	}

	raw, err := json.Marshal(fc.Args)
	if err != nil {
		t.logger.Warn("marshal tool args", "tool", fc.Name, "error", err)
		raw = nil
	}
	handler.OnToolCall(session.ToolCall{ID: fc.ID, Name: fc.Name, Args: raw})
	t.respondToTool(fc, map[string]any{"status": "displayed"})
}

// respondToTool acknowledges a function call so generation can continue.
func (t *Transport) respondToTool(fc *genai.FunctionCall, response map[string]any) {
	live := t.session()
	if live == nil {
		return
	}
	err := live.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{
			{ID: fc.ID, Name: fc.Name, Response: response},
		},
	})
	if err != nil {
		t.logger.Warn("send tool response", "tool", fc.Name, "error", err)
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// classify maps a transport error to a user-facing error code.
func classify(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return "rate_limited"
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "PERMISSION_DENIED") || strings.Contains(msg, "API key"):
		return "auth_rejected"
	default:
		return "connection_failed"
	}
}
