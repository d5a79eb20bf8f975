package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const WAVHeaderSize = 44

// WavEncoder wraps raw PCM16 in a canonical 44-byte RIFF header. No
// compression; used when the backend cannot decode FLAC.
type WavEncoder struct {
	pcm         bytes.Buffer
	totalFrames uint64
}

func NewWav() *WavEncoder {
	return &WavEncoder{}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	for _, s := range block {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(s))
		e.pcm.Write(b[:])
	}
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error { return nil }

func (e *WavEncoder) Bytes() []byte {
	data := e.pcm.Bytes()
	out := make([]byte, 0, WAVHeaderSize+len(data))
	buf := bytes.NewBuffer(out)

	byteRate := uint32(SampleRate * Channels * BitsPerSample / 8)
	blockAlign := uint16(Channels * BitsPerSample / 8)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(Channels))
	binary.Write(buf, binary.LittleEndian, uint32(SampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(BitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	return buf.Bytes()
}

func (e *WavEncoder) TotalFrames() uint64 {
	return e.totalFrames
}

// DecodeWav parses a RIFF/WAVE file and returns its PCM16 payload,
// sample rate and channel count.
func DecodeWav(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < WAVHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body:])
			if format != 1 {
				return nil, 0, 0, fmt.Errorf("unsupported WAV format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if bits != 16 {
				return nil, 0, 0, fmt.Errorf("unsupported bit depth %d", bits)
			}
		case "data":
			pcm = data[body : body+size]
		}
		pos = body + size + size%2
	}

	if pcm == nil || sampleRate == 0 {
		return nil, 0, 0, fmt.Errorf("missing fmt or data chunk")
	}
	return pcm, sampleRate, channels, nil
}
