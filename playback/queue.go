package playback

import (
	"errors"
	"sync"
	"time"

	"assistedvoice/audio"
	"assistedvoice/log"
)

// ErrBlocked marks an output start the runtime refused until a direct
// user action occurs. Blocked clips are parked, not dropped, and are
// not surfaced to the user as failures.
var ErrBlocked = errors.New("playback blocked pending user gesture")

// IsBlocked reports whether err is a blocked-output rejection rather
// than a decode or device failure.
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}

const (
	DefaultVolume = 1.0
	DefaultRate   = 1.0
)

type item struct {
	clip   *Clip
	stream audio.OutputStream
	pos    float64 // fractional source frame cursor
	volume float64
	rate   float64
	once   sync.Once
}

// Queue owns at most one playing clip. A new arrival interrupts the
// active clip rather than waiting behind it; a start the runtime
// blocks is parked in the single pending slot until the next user
// gesture. Ended and Stop are the only paths that clear the active
// slot.
type Queue struct {
	audioCtx audio.Context

	// navigation callbacks for explicit multi-clip read-aloud flows
	OnNext func()
	OnPrev func()
	// OnEnded fires after the active slot empties on its own
	OnEnded func()

	mu          sync.Mutex
	active      *item
	pending     *Clip
	pendingSeek float64 // fraction a resumed pending clip starts at
	defVolume   float64
	defRate     float64
	closed      bool
}

func NewQueue(audioCtx audio.Context) *Queue {
	return &Queue{
		audioCtx:  audioCtx,
		defVolume: DefaultVolume,
		defRate:   DefaultRate,
	}
}

// Play interrupts whatever is active, then starts clip. A blocked
// start parks the clip as pending (replacing any older pending clip)
// and returns nil; other start failures are returned.
func (q *Queue) Play(clip *Clip) error {
	if clip == nil || clip.Frames() == 0 {
		return errors.New("empty clip")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue closed")
	}
	old := q.active
	var oldPos float64
	if old != nil {
		oldPos = old.posSeconds()
	}
	q.active = nil
	q.mu.Unlock()

	if old != nil {
		old.stream.Close()
		log.Playback("interrupted", oldPos, old.clip.Duration().Seconds())
	}

	stream, err := q.audioCtx.NewOutput(audio.OutputConfig{
		SampleRate: uint32(clip.SampleRate),
		Channels:   uint32(clip.Channels),
	})
	if err != nil {
		if IsBlocked(err) {
			q.mu.Lock()
			q.pending = clip
			q.pendingSeek = 0
			q.mu.Unlock()
			log.Playback("blocked", 0, clip.Duration().Seconds())
			return nil
		}
		return err
	}

	q.mu.Lock()
	it := &item{
		clip:   clip,
		stream: stream,
		volume: q.defVolume,
		rate:   q.defRate,
	}
	q.active = it
	q.mu.Unlock()

	go func() {
		if err := stream.Start(q.sourceFor(it)); err != nil {
			log.Warnf("Playback start failed: %v", err)
		}
		q.clipDone(it, "ended")
	}()

	log.Playback("started", 0, clip.Duration().Seconds())
	return nil
}

// Gesture resumes the pending clip, if any. Call it from any direct
// user interaction.
func (q *Queue) Gesture() {
	q.mu.Lock()
	clip := q.pending
	frac := q.pendingSeek
	q.pending = nil
	q.pendingSeek = 0
	q.mu.Unlock()

	if clip == nil {
		return
	}
	if err := q.Play(clip); err != nil {
		log.Warnf("Resuming blocked clip: %v", err)
		return
	}
	if frac > 0 {
		q.Seek(frac)
	}
}

// Stop clears the active slot and discards any pending clip.
func (q *Queue) Stop() {
	q.mu.Lock()
	it := q.active
	var pos float64
	if it != nil {
		pos = it.posSeconds()
	}
	q.active = nil
	q.pending = nil
	q.pendingSeek = 0
	q.mu.Unlock()

	if it != nil {
		it.stream.Close()
		log.Playback("stopped", pos, it.clip.Duration().Seconds())
	}
}

// Seek positions the active clip at frac of its duration, 0..1. With
// only a pending clip, the position is remembered and applied when the
// clip resumes.
func (q *Queue) Seek(frac float64) {
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active != nil {
		q.active.pos = frac * float64(q.active.clip.Frames())
		return
	}
	if q.pending != nil {
		q.pendingSeek = frac
	}
}

// SetVolume applies to the active clip and becomes the default for
// later clips. Clamped to [0, 1].
func (q *Queue) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.defVolume = v
	if q.active != nil {
		q.active.volume = v
	}
}

// SetRate applies to the active clip and becomes the default for later
// clips.
func (q *Queue) SetRate(r float64) {
	if r <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.defRate = r
	if q.active != nil {
		q.active.rate = r
	}
}

// Next and Prev forward to the caller-supplied navigation callbacks.
func (q *Queue) Next() {
	if q.OnNext != nil {
		q.OnNext()
	}
}

func (q *Queue) Prev() {
	if q.OnPrev != nil {
		q.OnPrev()
	}
}

// Active reports whether a clip currently occupies the playing slot.
func (q *Queue) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active != nil
}

// Pending reports whether a blocked clip is parked awaiting a gesture.
func (q *Queue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending != nil
}

// Position returns the active clip's cursor and duration; zeros when
// the slot is empty.
func (q *Queue) Position() (pos, dur time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := q.active
	if it == nil {
		return 0, 0
	}
	pos = time.Duration(it.pos / float64(it.clip.SampleRate) * float64(time.Second))
	return pos, it.clip.Duration()
}

// Volume returns the current default volume.
func (q *Queue) Volume() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.defVolume
}

// Rate returns the current default rate.
func (q *Queue) Rate() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.defRate
}

func (q *Queue) Close() {
	q.Stop()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// sourceFor feeds the output device from the clip, applying the item's
// live volume and rate. The cursor steps by rate per output frame,
// which both shortens and pitches the clip like the reference player.
func (q *Queue) sourceFor(it *item) audio.SampleSource {
	return func(buf []int16) int {
		q.mu.Lock()
		if q.active != it {
			q.mu.Unlock()
			return 0
		}
		ch := it.clip.Channels
		total := it.clip.Frames()
		frames := len(buf) / ch
		n := 0
		for f := 0; f < frames; f++ {
			idx := int(it.pos)
			if idx >= total {
				break
			}
			for c := 0; c < ch; c++ {
				v := float64(it.clip.Samples[idx*ch+c]) * it.volume
				if v > 32767 {
					v = 32767
				} else if v < -32768 {
					v = -32768
				}
				buf[n] = int16(v)
				n++
			}
			it.pos += it.rate
		}
		q.mu.Unlock()
		return n
	}
}

// clipDone clears the active slot if it still holds it and notifies
// the UI. Interrupt and Stop clear the slot before the stream winds
// down, so only a natural end reaches the callback.
func (q *Queue) clipDone(it *item, event string) {
	it.once.Do(func() {
		q.mu.Lock()
		ended := q.active == it
		pos := it.posSeconds()
		if ended {
			q.active = nil
		}
		onEnded := q.OnEnded
		q.mu.Unlock()

		if !ended {
			return
		}
		it.stream.Close()
		log.Playback(event, pos, it.clip.Duration().Seconds())
		if onEnded != nil {
			onEnded()
		}
	})
}

// caller holds the queue mutex
func (it *item) posSeconds() float64 {
	if it.clip.SampleRate == 0 {
		return 0
	}
	return it.pos / float64(it.clip.SampleRate)
}
