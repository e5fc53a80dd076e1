// Package protocol defines the JSON events exchanged with the realtime
// service over the control data channel.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event types.
const (
	TypeSessionCreated        = "session.created"
	TypeSessionUpdated        = "session.updated"
	TypeSpeechStarted         = "input_audio_buffer.speech_started"
	TypeSpeechStopped         = "input_audio_buffer.speech_stopped"
	TypeTranscriptionComplete = "conversation.item.input_audio_transcription.completed"
	TypeResponseCreated       = "response.created"
	TypeResponseTranscript    = "response.audio_transcript.delta"
	TypeResponseDone          = "response.done"
	TypeError                 = "error"
)

// Outbound event types.
const (
	TypeSessionUpdate  = "session.update"
	TypeBufferClear    = "input_audio_buffer.clear"
	TypeBufferCommit   = "input_audio_buffer.commit"
	TypeResponseCreate = "response.create"
)

// Event is an inbound control message. Raw keeps the original bytes so error
// payloads can be surfaced verbatim.
type Event struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
	Delta      string `json:"delta,omitempty"`
	Raw        []byte `json:"-"`
}

// Decode parses one data channel message.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event has no type")
	}
	ev.Raw = append([]byte(nil), data...)
	return ev, nil
}

// SessionConfig selects transcription and voice activity detection.
type SessionConfig struct {
	TranscriptionModel string
	VADThreshold       float64
	PrefixPadding      time.Duration
	Silence            time.Duration
}

// DefaultSessionConfig returns the settings used by the mobile client.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TranscriptionModel: "whisper-1",
		VADThreshold:       0.5,
		PrefixPadding:      300 * time.Millisecond,
		Silence:            200 * time.Millisecond,
	}
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	InputAudioTranscription transcription `json:"input_audio_transcription"`
	TurnDetection           turnDetection `json:"turn_detection"`
}

type transcription struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int64   `json:"prefix_padding_ms"`
	SilenceDurationMS int64   `json:"silence_duration_ms"`
}

type simpleCommand struct {
	Type string `json:"type"`
}

type responseCreate struct {
	Type     string         `json:"type"`
	Response responseParams `json:"response"`
}

type responseParams struct {
	Modalities []string `json:"modalities"`
}

// SessionUpdate encodes the one-time configuration sent when the channel opens.
func SessionUpdate(cfg SessionConfig) []byte {
	return mustMarshal(sessionUpdate{
		Type: TypeSessionUpdate,
		Session: sessionParams{
			InputAudioTranscription: transcription{Model: cfg.TranscriptionModel},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         cfg.VADThreshold,
				PrefixPaddingMS:   cfg.PrefixPadding.Milliseconds(),
				SilenceDurationMS: cfg.Silence.Milliseconds(),
			},
		},
	})
}

// BufferClear drops any input audio buffered server-side.
func BufferClear() []byte {
	return mustMarshal(simpleCommand{Type: TypeBufferClear})
}

// BufferCommit commits the buffered input audio as a user turn.
func BufferCommit() []byte {
	return mustMarshal(simpleCommand{Type: TypeBufferCommit})
}

// ResponseCreate requests a text and audio reply.
func ResponseCreate() []byte {
	return mustMarshal(responseCreate{
		Type:     TypeResponseCreate,
		Response: responseParams{Modalities: []string{"text", "audio"}},
	})
}

// mustMarshal encodes fixed message shapes that cannot fail to marshal.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
