package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"assistedvoice/audio"
	"assistedvoice/encoder"
	"assistedvoice/log"
)

type Mode int

const (
	ModePTT Mode = iota
	ModeContinuous
	ModeSmartPause
)

func (m Mode) String() string {
	switch m {
	case ModePTT:
		return "ptt"
	case ModeContinuous:
		return "continuous"
	case ModeSmartPause:
		return "smart"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "ptt", "push-to-talk":
		return ModePTT, nil
	case "continuous":
		return ModeContinuous, nil
	case "smart", "smart-pause":
		return ModeSmartPause, nil
	}
	return 0, fmt.Errorf("unknown capture mode %q", s)
}

// ErrCaptureActive is returned by Start while another mode holds the
// microphone; the caller must Stop first.
var ErrCaptureActive = errors.New("capture already active")

// ErrPermissionDenied mirrors the audio package sentinel so callers
// can branch on it without importing the backend layer.
var ErrPermissionDenied = audio.ErrPermissionDenied

// Segment is one bounded unit of captured PCM handed to the transport.
type Segment struct {
	Mode  Mode
	PCM   []byte
	Start time.Time
	End   time.Time
}

type SegmentHandler func(Segment)

type Options struct {
	SliceInterval   time.Duration // continuous mode cadence
	PauseDuration   time.Duration // smart-pause quiet period
	MinSpeechLength time.Duration // smart-pause blip floor
	TickInterval    time.Duration // smart-pause activity poll cadence
	Threshold       float64       // RMS voice threshold
}

const (
	defaultSliceInterval = 250 * time.Millisecond
	defaultTickInterval  = 100 * time.Millisecond
)

func (o *Options) fill() {
	if o.SliceInterval <= 0 {
		o.SliceInterval = defaultSliceInterval
	}
	if o.PauseDuration <= 0 {
		o.PauseDuration = DefaultPauseDuration
	}
	if o.MinSpeechLength <= 0 {
		o.MinSpeechLength = DefaultMinSpeechLength
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
}

// Controller owns the microphone for exactly one capture mode at a
// time and hands bounded segments to its handler. The hardware device
// is acquired on Start and released on every exit path of Stop.
type Controller struct {
	audioCtx audio.Context
	device   *audio.DeviceInfo
	handler  SegmentHandler
	opts     Options
	now      func() time.Time

	mu        sync.Mutex
	active    bool
	mode      Mode
	dev       audio.CaptureDevice
	buf       []byte
	started   time.Time
	sliceMark time.Time // start of the slice continuous mode is filling
	det       *activityDetector
	seg       *Segmenter
	stop      chan struct{}
	done      chan struct{}
}

func New(audioCtx audio.Context, device *audio.DeviceInfo, handler SegmentHandler, opts Options) *Controller {
	opts.fill()
	return &Controller{
		audioCtx: audioCtx,
		device:   device,
		handler:  handler,
		opts:     opts,
		now:      time.Now,
	}
}

// Start acquires the microphone in the given mode. Starting while any
// mode is active returns ErrCaptureActive; the caller decides whether
// to Stop and retry.
func (c *Controller) Start(mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return ErrCaptureActive
	}

	dev, err := c.audioCtx.NewCapture(c.device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return c.classify(fmt.Errorf("opening capture device: %w", err))
	}

	dev.SetCallback(c.onData)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return c.classify(fmt.Errorf("starting capture: %w", err))
	}

	c.active = true
	c.mode = mode
	c.dev = dev
	c.buf = c.buf[:0]
	c.started = c.now()
	c.sliceMark = c.started
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	switch mode {
	case ModeContinuous:
		go c.sliceLoop(c.stop, c.done)
	case ModeSmartPause:
		c.det = newActivityDetector(c.opts.Threshold)
		c.seg = NewSegmenter(c.opts.PauseDuration, c.opts.MinSpeechLength)
		go c.smartLoop(c.stop, c.done)
	default:
		close(c.done)
	}

	log.Infof("Capture started (%s, device=%s)", mode, dev.DeviceName())
	return nil
}

// Stop releases the microphone and flushes whatever the mode still
// owes: PTT emits its single press-to-release segment, continuous
// flushes the partial slice, smart-pause emits an in-progress
// utterance if it cleared the blip floor. Stop when idle is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	mode := c.mode
	dev := c.dev
	c.dev = nil
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done

	dev.Stop()
	dev.ClearCallback()
	dev.Close()

	c.mu.Lock()
	pcm := c.takeLocked()
	started := c.started
	sliceMark := c.sliceMark
	seg := c.seg
	c.det = nil
	c.seg = nil
	c.mu.Unlock()

	end := c.now()
	switch mode {
	case ModePTT:
		if len(pcm) > 0 {
			c.emit(Segment{Mode: mode, PCM: pcm, Start: started, End: end})
		}
	case ModeContinuous:
		if len(pcm) > 0 {
			c.emit(Segment{Mode: mode, PCM: pcm, Start: sliceMark, End: end})
		}
	case ModeSmartPause:
		if seg != nil && seg.Speaking() && end.Sub(seg.UtteranceStart()) >= c.opts.MinSpeechLength {
			c.emit(Segment{Mode: mode, PCM: pcm, Start: seg.UtteranceStart(), End: end})
		}
	}

	log.Infof("Capture stopped (%s)", mode)
}

// Active reports whether a mode currently holds the microphone.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Mode returns the active mode; meaningful only while Active.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) classify(err error) error {
	if audio.IsPermissionError(err) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}

func (c *Controller) onData(data []byte, _ uint32) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.buf = append(c.buf, data...)
	det := c.det
	c.mu.Unlock()

	if det != nil {
		det.Process(data)
	}
}

func (c *Controller) takeLocked() []byte {
	pcm := c.buf
	c.buf = nil
	return pcm
}

func (c *Controller) sliceLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.opts.SliceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			end := c.now()
			c.mu.Lock()
			pcm := c.takeLocked()
			sliceStart := c.sliceMark
			c.sliceMark = end
			c.mu.Unlock()
			if len(pcm) > 0 {
				c.emit(Segment{Mode: ModeContinuous, PCM: pcm, Start: sliceStart, End: end})
			}
		}
	}
}

func (c *Controller) smartLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := c.now()
			c.mu.Lock()
			det, seg := c.det, c.seg
			if det == nil || seg == nil {
				c.mu.Unlock()
				return
			}
			wasSpeaking := seg.Speaking()
			decision := seg.Observe(det.TickVoiced(), now)

			var out Segment
			switch decision {
			case DecisionBoundary:
				out = Segment{
					Mode:  ModeSmartPause,
					PCM:   c.takeLocked(),
					Start: seg.UtteranceStart(),
					End:   now,
				}
			case DecisionDiscard:
				c.buf = c.buf[:0]
			case DecisionNone:
				// while listening, keep the buffer from growing
				// between utterances
				if !wasSpeaking && !seg.Speaking() {
					c.buf = c.buf[:0]
				}
			}
			c.mu.Unlock()

			if len(out.PCM) > 0 {
				c.emit(out)
			}
		}
	}
}

func (c *Controller) emit(s Segment) {
	log.Segment(log.SegmentMetrics{
		Mode:      s.Mode.String(),
		DurationS: float64(len(s.PCM)) / float64(encoder.BytesPerSecond),
		RawKB:     float64(len(s.PCM)) / 1024,
	})
	if c.handler != nil {
		c.handler(s)
	}
}
