// Package gateway bridges a browser client to a check-in session over a
// websocket: typed JSON messages in both directions with base64 audio.
package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumeo-health/checkin/pkg/mismatch"
	"github.com/lumeo-health/checkin/pkg/session"
)

const ProtocolVersion1 = "1"

// DecodeError is a protocol-level rejection of a client frame.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the negotiated audio shape on one direction.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// ClientHello opens the session.
type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
}

// ClientAudioFrame carries one capture frame of base64 PCM.
type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

// ClientText submits a typed message in place of speech.
type ClientText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientAcoustics carries the browser-side feature extractor's latest
// per-utterance measurements.
type ClientAcoustics struct {
	Type     string                   `json:"type"`
	Features mismatch.AudioFeatures   `json:"features"`
	Metrics  mismatch.WellnessMetrics `json:"metrics"`
}

// ClientPlaybackMark reports remote playback progress.
type ClientPlaybackMark struct {
	Type  string `json:"type"`
	State string `json:"state"` // "started" | "ended"
}

// ClientControl carries session-level operations.
type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"` // interrupt | mute | unmute | end_session
}

// DecodeClientMessage parses and validates one client frame. Unknown or
// malformed frames are rejected with a DecodeError rather than ignored.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "text":
		var msg ClientText
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("text.text is required", "text")
		}
		return msg, nil
	case "acoustics":
		var msg ClientAcoustics
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid acoustics frame", "")
		}
		return msg, nil
	case "playback_mark":
		var msg ClientPlaybackMark
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid playback_mark", "")
		}
		switch strings.TrimSpace(msg.State) {
		case "started", "ended":
		default:
			return nil, badRequest("playback_mark.state must be started or ended", "state")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		switch op {
		case "interrupt", "mute", "unmute", "end_session":
		case "":
			return nil, badRequest("control.op is required", "op")
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ValidateHello checks the handshake invariants.
func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if msg.ProtocolVersion != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	for _, f := range []struct {
		name   string
		format AudioFormat
	}{{"audio_in", msg.AudioIn}, {"audio_out", msg.AudioOut}} {
		if strings.TrimSpace(f.format.Encoding) == "" {
			return badRequest("hello."+f.name+".encoding is required", f.name+".encoding")
		}
		if f.format.Encoding != "pcm_s16le" {
			return unsupported("unsupported encoding", f.name+".encoding")
		}
		if f.format.SampleRateHz <= 0 {
			return badRequest("hello."+f.name+".sample_rate_hz must be > 0", f.name+".sample_rate_hz")
		}
		if f.format.Channels <= 0 {
			return badRequest("hello."+f.name+".channels must be > 0", f.name+".channels")
		}
	}
	return nil
}

// ServerHelloAck confirms the handshake.
type ServerHelloAck struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
}

// ServerState reports a session state change.
type ServerState struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

// ServerMessageUpdate carries a created or updated transcript message.
type ServerMessageUpdate struct {
	Type    string          `json:"type"`
	Message session.Message `json:"message"`
}

// ServerMessageRemoved withdraws a message.
type ServerMessageRemoved struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ServerWidget carries a created or updated widget.
type ServerWidget struct {
	Type   string         `json:"type"`
	Widget session.Widget `json:"widget"`
}

// ServerMismatch carries a mismatch detection result.
type ServerMismatch struct {
	Type   string          `json:"type"`
	Result mismatch.Result `json:"result"`
}

// ServerAudioChunk carries one assistant audio frame of base64 PCM.
type ServerAudioChunk struct {
	Type     string `json:"type"`
	Seq      int64  `json:"seq"`
	AudioB64 string `json:"audio_b64"`
}

// ServerAudioReset tells the client to discard buffered assistant audio.
type ServerAudioReset struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ServerSilence reports that the assistant chose not to reply.
type ServerSilence struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// ServerError reports a protocol or session failure.
type ServerError struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Param     string `json:"param,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Close     bool   `json:"close,omitempty"`
}
