package encoder

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func sinePCM(seconds float64, freq float64) []byte {
	n := int(seconds * SampleRate)
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(math.Sin(2*math.Pi*freq*float64(i)/SampleRate) * 12000)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func TestFlacEncoder(t *testing.T) {
	pcm := sinePCM(0.5, 440)

	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	out, err := EncodePCM(enc, pcm)
	if err != nil {
		t.Fatalf("EncodePCM: %v", err)
	}
	if len(out) < 4 || string(out[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
	if enc.TotalFrames() != uint64(len(pcm)/2) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(pcm)/2)
	}
	if string(enc.Bytes()) != string(out) {
		t.Error("Bytes after Close differs from EncodePCM output")
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if len(enc.Bytes()) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestWavRoundTrip(t *testing.T) {
	pcm := sinePCM(0.25, 220)

	enc := NewWav()
	out, err := EncodePCM(enc, pcm)
	if err != nil {
		t.Fatalf("EncodePCM: %v", err)
	}
	if len(out) != WAVHeaderSize+len(pcm) {
		t.Fatalf("wav size = %d, want %d", len(out), WAVHeaderSize+len(pcm))
	}

	got, rate, channels, err := DecodeWav(out)
	if err != nil {
		t.Fatalf("DecodeWav: %v", err)
	}
	if rate != SampleRate || channels != Channels {
		t.Errorf("rate/channels = %d/%d, want %d/%d", rate, channels, SampleRate, Channels)
	}
	if string(got) != string(pcm) {
		t.Error("decoded PCM differs from input")
	}
}

func TestDecodeWavRejectsGarbage(t *testing.T) {
	if _, _, _, err := DecodeWav([]byte("definitely not audio data, nope")); err == nil {
		t.Error("expected error for non-WAV input")
	}
	if _, _, _, err := DecodeWav(nil); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestNewByFormat(t *testing.T) {
	for _, format := range []string{"flac", "wav"} {
		t.Run(format, func(t *testing.T) {
			enc, err := New(format)
			if err != nil {
				t.Fatalf("New(%q): %v", format, err)
			}
			if enc == nil {
				t.Fatalf("New(%q) returned nil", format)
			}
		})
	}
	t.Run("unknown", func(t *testing.T) {
		if _, err := New("ogg"); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestDataURLRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0xfe, 0xff}
	u := DataURL("wav", payload)
	if !strings.HasPrefix(u, "data:audio/wav;base64,") {
		t.Fatalf("unexpected prefix: %q", u)
	}

	mime, got, err := ParseDataURL(u)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	if mime != "audio/wav" {
		t.Errorf("mime = %q, want audio/wav", mime)
	}
	if string(got) != string(payload) {
		t.Error("payload mismatch after round trip")
	}
}

func TestParseDataURLErrors(t *testing.T) {
	for _, tt := range []struct{ name, input string }{
		{"not data url", "https://example.com/a.wav"},
		{"no comma", "data:audio/wav;base64"},
		{"not base64", "data:audio/wav,rawbody"},
		{"bad base64", "data:audio/wav;base64,!!!"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseDataURL(tt.input); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}
}
