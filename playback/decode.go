package playback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"

	"assistedvoice/encoder"
)

// Clip is one fully decoded speech clip, ready for the output device.
type Clip struct {
	Samples    []int16 // interleaved PCM
	SampleRate int
	Channels   int
}

// Frames is the number of interleaved sample frames.
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(c.Frames()) / float64(c.SampleRate) * float64(time.Second))
}

// Decode turns a base64 audio data URL from the backend into a Clip.
// The backend emits WAV or MP3 depending on the TTS engine.
func Decode(dataURL string) (*Clip, error) {
	mime, payload, err := encoder.ParseDataURL(dataURL)
	if err != nil {
		return nil, err
	}

	switch mime {
	case "audio/wav", "audio/x-wav", "audio/wave":
		pcm, rate, channels, err := encoder.DecodeWav(payload)
		if err != nil {
			return nil, fmt.Errorf("decoding wav clip: %w", err)
		}
		return &Clip{
			Samples:    encoder.PCMToSamples(pcm),
			SampleRate: rate,
			Channels:   channels,
		}, nil
	case "audio/mpeg", "audio/mp3":
		return decodeMP3(payload)
	default:
		return nil, fmt.Errorf("unsupported clip type %q", mime)
	}
}

func decodeMP3(payload []byte) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decoding mp3 clip: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("reading mp3 stream: %w", err)
	}

	// go-mp3 always yields 16-bit stereo
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return &Clip{
		Samples:    samples,
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}
