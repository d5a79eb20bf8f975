package session

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOutboundMarshal(t *testing.T) {
	for _, tt := range []struct {
		name string
		out  Outbound
		want []string
	}{
		{"process_text", ProcessText("hi there", true, "conv-1"),
			[]string{`"event":"process_text"`, `"text":"hi there"`, `"enable_tts":true`, `"conversation_id":"conv-1"`}},
		{"process_audio", ProcessAudio("data:audio/flac;base64,AAAA", false),
			[]string{`"event":"process_audio"`, `"audio":"data:audio/flac;base64,AAAA"`, `"enable_tts":false`}},
		{"change_model", ChangeModel("llama3.2"),
			[]string{`"event":"change_model"`, `"model":"llama3.2"`}},
		{"change_tts", ChangeTTS("piper", "amy"),
			[]string{`"event":"change_tts"`, `"engine":"piper"`, `"voice":"amy"`}},
		{"stop_generation", StopGeneration(), []string{`"event":"stop_generation"`}},
		{"clear_conversation", ClearConversation(), []string{`"event":"clear_conversation"`}},
		{"replay_text", ReplayText("again", true), []string{`"event":"replay_text"`, `"text":"again"`}},
		{"update_temperature", UpdateTemperature(0.7), []string{`"event":"update_temperature"`, `"temperature":0.7`}},
		{"update_max_tokens", UpdateMaxTokens(2048), []string{`"event":"update_max_tokens"`, `"max_tokens":2048`}},
		{"update_system_prompt", UpdateSystemPrompt("be brief"), []string{`"event":"update_system_prompt"`, `"system_prompt":"be brief"`}},
		{"stream_continuous", AudioStreamContinuous("data:audio/wav;base64,AAAA", 123, StreamSettings{SampleRate: 16000, EnableTTS: true}),
			[]string{`"event":"audio_stream_continuous"`, `"timestamp":123`, `"sample_rate":16000`}},
		{"stream_smart", AudioStreamSmart("data:audio/wav;base64,AAAA", 456, StreamSettings{SampleRate: 16000}),
			[]string{`"event":"audio_stream_smart"`, `"timestamp":456`}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.out.marshal()
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(string(b), want) {
					t.Errorf("frame %s missing %s", b, want)
				}
			}
			// Every frame must re-parse as an envelope.
			var env envelope
			if err := json.Unmarshal(b, &env); err != nil {
				t.Fatalf("frame is not a valid envelope: %v", err)
			}
		})
	}
}

func TestDecodeInbound(t *testing.T) {
	for _, tt := range []struct {
		name  string
		frame string
		want  Event
	}{
		{"status", `{"event":"status","data":{"message":"thinking","type":"info"}}`,
			Event{Kind: KindStatus, Message: "thinking", StatusType: "info"}},
		{"transcription", `{"event":"transcription","data":{"text":"hello"}}`,
			Event{Kind: KindTranscription, Text: "hello"}},
		{"chunk", `{"event":"response_chunk","data":{"text":"Hel","model":"llama3.2"}}`,
			Event{Kind: KindResponseChunk, Text: "Hel", Model: "llama3.2"}},
		{"chunk no model", `{"event":"response_chunk","data":{"text":"lo"}}`,
			Event{Kind: KindResponseChunk, Text: "lo"}},
		{"complete", `{"event":"response_complete","data":{"text":"Hello"}}`,
			Event{Kind: KindResponseComplete, Text: "Hello"}},
		{"audio", `{"event":"audio_data","data":{"audio":"data:audio/mpeg;base64,AAAA"}}`,
			Event{Kind: KindAudioData, Audio: "data:audio/mpeg;base64,AAAA"}},
		{"model_changed", `{"event":"model_changed","data":{"model":"mistral"}}`,
			Event{Kind: KindModelChanged, Model: "mistral"}},
		{"error", `{"event":"error","data":{"message":"boom"}}`,
			Event{Kind: KindBackendError, Message: "boom"}},
		{"cleared", `{"event":"conversation_cleared"}`,
			Event{Kind: KindConversationCleared}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeInbound([]byte(tt.frame))
			if err != nil {
				t.Fatalf("decodeInbound: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeInboundRejects(t *testing.T) {
	for _, tt := range []struct{ name, frame string }{
		{"not json", `{{{`},
		{"no event name", `{"data":{"text":"x"}}`},
		{"unknown event", `{"event":"mystery","data":{}}`},
		{"chunk missing payload", `{"event":"response_chunk"}`},
		{"audio not data url", `{"event":"audio_data","data":{"audio":"http://evil/x.mp3"}}`},
		{"model_changed empty", `{"event":"model_changed","data":{"model":""}}`},
		{"bad payload type", `{"event":"status","data":[1,2]}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeInbound([]byte(tt.frame)); err == nil {
				t.Errorf("expected error for %s", tt.frame)
			}
		})
	}
}
