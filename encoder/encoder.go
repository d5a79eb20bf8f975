package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// BytesPerSecond is the raw PCM16 data rate of captured audio.
const BytesPerSecond = SampleRate * Channels * (BitsPerSample / 8)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// New returns an encoder for the given segment format ("flac" or "wav").
func New(format string) (Encoder, error) {
	switch format {
	case "flac":
		return NewFlac()
	case "wav":
		return NewWav(), nil
	}
	return nil, errUnknownFormat(format)
}

type errUnknownFormat string

func (e errUnknownFormat) Error() string { return "unknown audio format " + string(e) }

// PCMToSamples reinterprets little-endian PCM16 bytes as samples.
// A trailing odd byte is dropped.
func PCMToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
	}
	return samples
}

// EncodePCM runs raw PCM16 bytes through enc in BlockSize blocks and
// closes it, returning the encoded payload.
func EncodePCM(enc Encoder, pcm []byte) ([]byte, error) {
	samples := PCMToSamples(pcm)
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}
