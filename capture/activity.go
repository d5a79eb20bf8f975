package capture

import (
	"encoding/binary"
	"math"
	"sync"

	"assistedvoice/encoder"
)

const (
	activityFrameMs    = 20
	activityFrameBytes = encoder.SampleRate * activityFrameMs / 1000 * 2 // 640 bytes
	activityDebounce   = 3                                              // consecutive loud frames to confirm voice

	// DefaultActivityThreshold is the RMS amplitude (int16 scale) above
	// which a frame counts as loud. Typical room noise sits well below.
	DefaultActivityThreshold = 500.0
)

// activityDetector turns raw PCM into a per-tick voiced/quiet signal
// for the segmenter. Frames are scored by RMS energy; a short run of
// consecutive loud frames is required before voice is confirmed, so
// single-frame pops do not register.
type activityDetector struct {
	threshold float64

	mu           sync.Mutex
	buf          []byte
	loudRun      int
	voicedFrames int
	tickFrames   int
}

func newActivityDetector(threshold float64) *activityDetector {
	if threshold <= 0 {
		threshold = DefaultActivityThreshold
	}
	return &activityDetector{threshold: threshold}
}

func (d *activityDetector) Process(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = append(d.buf, data...)
	for len(d.buf) >= activityFrameBytes {
		frame := d.buf[:activityFrameBytes]
		d.buf = d.buf[activityFrameBytes:]

		if frameRMS(frame) >= d.threshold {
			d.loudRun++
			if d.loudRun >= activityDebounce {
				d.voicedFrames++
			}
		} else {
			d.loudRun = 0
		}
	}
}

// TickVoiced reports whether any confirmed-voice frames arrived since
// the previous call.
func (d *activityDetector) TickVoiced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.voicedFrames - d.tickFrames
	d.tickFrames = d.voicedFrames
	return n > 0
}

func (d *activityDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = d.buf[:0]
	d.loudRun = 0
	d.voicedFrames = 0
	d.tickFrames = 0
}

func frameRMS(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}
