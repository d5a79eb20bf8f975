package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The wire protocol is one JSON text frame per event in both
// directions: {"event": <name>, "data": {...}}.

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a validated client-to-backend event, ready to marshal.
type Outbound struct {
	Event string
	Data  any
}

func (o Outbound) marshal() ([]byte, error) {
	var raw json.RawMessage
	if o.Data != nil {
		b, err := json.Marshal(o.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", o.Event, err)
		}
		raw = b
	}
	return json.Marshal(envelope{Event: o.Event, Data: raw})
}

// StreamSettings rides along with mode-scoped streaming events so the
// backend segments (or not) with the same parameters the client used.
type StreamSettings struct {
	SampleRate int  `json:"sample_rate"`
	EnableTTS  bool `json:"enable_tts"`
}

type textPayload struct {
	Text           string `json:"text"`
	EnableTTS      bool   `json:"enable_tts"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type audioPayload struct {
	Audio     string `json:"audio"`
	EnableTTS bool   `json:"enable_tts"`
}

type streamPayload struct {
	Audio     string         `json:"audio"`
	Timestamp int64          `json:"timestamp"`
	Settings  StreamSettings `json:"settings"`
}

func ProcessText(text string, enableTTS bool, conversationID string) Outbound {
	return Outbound{Event: "process_text", Data: textPayload{Text: text, EnableTTS: enableTTS, ConversationID: conversationID}}
}

func ProcessAudio(audioURL string, enableTTS bool) Outbound {
	return Outbound{Event: "process_audio", Data: audioPayload{Audio: audioURL, EnableTTS: enableTTS}}
}

func ReplayText(text string, enableTTS bool) Outbound {
	return Outbound{Event: "replay_text", Data: textPayload{Text: text, EnableTTS: enableTTS}}
}

func AudioStreamContinuous(audioURL string, timestampMs int64, settings StreamSettings) Outbound {
	return Outbound{Event: "audio_stream_continuous", Data: streamPayload{Audio: audioURL, Timestamp: timestampMs, Settings: settings}}
}

func AudioStreamSmart(audioURL string, timestampMs int64, settings StreamSettings) Outbound {
	return Outbound{Event: "audio_stream_smart", Data: streamPayload{Audio: audioURL, Timestamp: timestampMs, Settings: settings}}
}

func ChangeModel(model string) Outbound {
	return Outbound{Event: "change_model", Data: struct {
		Model string `json:"model"`
	}{model}}
}

func ChangeTTS(engine, voice string) Outbound {
	return Outbound{Event: "change_tts", Data: struct {
		Engine string `json:"engine"`
		Voice  string `json:"voice"`
	}{engine, voice}}
}

func StopGeneration() Outbound {
	return Outbound{Event: "stop_generation"}
}

func ClearConversation() Outbound {
	return Outbound{Event: "clear_conversation"}
}

func UpdateTemperature(temperature float64) Outbound {
	return Outbound{Event: "update_temperature", Data: struct {
		Temperature float64 `json:"temperature"`
	}{temperature}}
}

func UpdateMaxTokens(maxTokens int) Outbound {
	return Outbound{Event: "update_max_tokens", Data: struct {
		MaxTokens int `json:"max_tokens"`
	}{maxTokens}}
}

func UpdateSystemPrompt(prompt string) Outbound {
	return Outbound{Event: "update_system_prompt", Data: struct {
		SystemPrompt string `json:"system_prompt"`
	}{prompt}}
}

// EventKind enumerates everything the session can deliver to its
// consumer: backend events plus the session's own state transitions.
type EventKind int

const (
	KindStateChanged EventKind = iota
	KindStatus
	KindTranscription
	KindResponseChunk
	KindResponseComplete
	KindAudioData
	KindModelChanged
	KindBackendError
	KindConversationCleared
	KindProtocolError
)

func (k EventKind) String() string {
	switch k {
	case KindStateChanged:
		return "state_changed"
	case KindStatus:
		return "status"
	case KindTranscription:
		return "transcription"
	case KindResponseChunk:
		return "response_chunk"
	case KindResponseComplete:
		return "response_complete"
	case KindAudioData:
		return "audio_data"
	case KindModelChanged:
		return "model_changed"
	case KindBackendError:
		return "error"
	case KindConversationCleared:
		return "conversation_cleared"
	case KindProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// Event is one inbound occurrence. Which fields are meaningful depends
// on Kind; everything is validated before an Event is dispatched.
type Event struct {
	Kind EventKind

	// KindStateChanged
	State   State
	Attempt uint
	Err     error

	// Text carries the chunk/complete/transcription text.
	Text  string
	Model string

	// KindStatus
	StatusType string

	// KindAudioData: a base64 data URL.
	Audio string

	// KindBackendError / KindStatus / KindProtocolError
	Message string
}

type statusPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chunkPayload struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// decodeInbound validates one wire frame into a typed Event. Unknown
// event names and malformed payloads are errors; they never reach the
// dispatch loop as raw data.
func decodeInbound(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Event == "" {
		return Event{}, fmt.Errorf("frame missing event name")
	}

	unmarshal := func(v any) error {
		if len(env.Data) == 0 {
			return fmt.Errorf("%s: missing payload", env.Event)
		}
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("%s payload: %w", env.Event, err)
		}
		return nil
	}

	switch env.Event {
	case "status":
		var p statusPayload
		if err := unmarshal(&p); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindStatus, Message: p.Message, StatusType: p.Type}, nil

	case "transcription":
		var p struct {
			Text string `json:"text"`
		}
		if err := unmarshal(&p); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindTranscription, Text: p.Text}, nil

	case "response_chunk":
		var p chunkPayload
		if err := unmarshal(&p); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindResponseChunk, Text: p.Text, Model: p.Model}, nil

	case "response_complete":
		var p chunkPayload
		if err := unmarshal(&p); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindResponseComplete, Text: p.Text, Model: p.Model}, nil

	case "audio_data":
		var p struct {
			Audio string `json:"audio"`
		}
		if err := unmarshal(&p); err != nil {
			return Event{}, err
		}
		if !strings.HasPrefix(p.Audio, "data:") {
			return Event{}, fmt.Errorf("audio_data: not a data URL")
		}
		return Event{Kind: KindAudioData, Audio: p.Audio}, nil

	case "model_changed":
		var p struct {
			Model string `json:"model"`
		}
		if err := unmarshal(&p); err != nil {
			return Event{}, err
		}
		if p.Model == "" {
			return Event{}, fmt.Errorf("model_changed: empty model")
		}
		return Event{Kind: KindModelChanged, Model: p.Model}, nil

	case "error":
		var p struct {
			Message string `json:"message"`
		}
		if err := unmarshal(&p); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindBackendError, Message: p.Message}, nil

	case "conversation_cleared":
		return Event{Kind: KindConversationCleared}, nil
	}

	return Event{}, fmt.Errorf("unknown event %q", env.Event)
}
