package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"assistedvoice/audio"
)

func loudPCM(frames int) []byte {
	var buf bytes.Buffer
	for f := 0; f < frames; f++ {
		for i := 0; i < activityFrameBytes/2; i++ {
			s := int16(6000)
			if i%2 == 1 {
				s = -6000
			}
			binary.Write(&buf, binary.LittleEndian, s)
		}
	}
	return buf.Bytes()
}

func newTestController(t *testing.T, opts Options) (*Controller, *audio.FakeContext, chan Segment) {
	t.Helper()
	ctx := audio.NewFakeContext()
	segments := make(chan Segment, 16)
	c := New(ctx, nil, func(s Segment) { segments <- s }, opts)
	return c, ctx, segments
}

func waitSegment(t *testing.T, ch chan Segment, timeout time.Duration) Segment {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(timeout):
		t.Fatal("timed out waiting for segment")
		return Segment{}
	}
}

func TestModeExclusivity(t *testing.T) {
	c, _, _ := newTestController(t, Options{})

	if err := c.Start(ModePTT); err != nil {
		t.Fatalf("Start(ptt): %v", err)
	}
	if err := c.Start(ModeContinuous); !errors.Is(err, ErrCaptureActive) {
		t.Fatalf("Start while active = %v, want ErrCaptureActive", err)
	}
	c.Stop()
	if err := c.Start(ModeContinuous); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	c.Stop()
}

func TestPTTEmitsSingleSegmentAndReleasesDevice(t *testing.T) {
	c, ctx, segments := newTestController(t, Options{})

	if err := c.Start(ModePTT); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev := ctx.LastCapture()
	if dev == nil || !dev.Running() {
		t.Fatal("capture device not running after Start")
	}

	pcm := loudPCM(5)
	dev.Push(pcm[:len(pcm)/2])
	dev.Push(pcm[len(pcm)/2:])

	c.Stop()

	seg := waitSegment(t, segments, time.Second)
	if seg.Mode != ModePTT {
		t.Errorf("segment mode = %v, want ptt", seg.Mode)
	}
	if !bytes.Equal(seg.PCM, pcm) {
		t.Errorf("segment PCM = %d bytes, want the full press-to-release audio (%d bytes)", len(seg.PCM), len(pcm))
	}
	select {
	case <-segments:
		t.Fatal("PTT emitted more than one segment")
	default:
	}
	if !dev.Released() {
		t.Error("capture device still held after Stop")
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	c, _, segments := newTestController(t, Options{})
	c.Stop()
	c.Stop()
	if c.Active() {
		t.Error("Active after Stop on idle controller")
	}
	select {
	case <-segments:
		t.Fatal("segment emitted by idle Stop")
	default:
	}
}

func TestPermissionDenialIsDistinct(t *testing.T) {
	c, ctx, _ := newTestController(t, Options{})
	ctx.CaptureErr = errors.New("pulse: access denied by policy")

	err := c.Start(ModePTT)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Start = %v, want ErrPermissionDenied", err)
	}
	if c.Active() {
		t.Error("controller active after failed Start")
	}
	if dev := ctx.LastCapture(); dev != nil && !dev.Released() {
		t.Error("device not released on error path")
	}
}

func TestContinuousEmitsFixedSlices(t *testing.T) {
	c, ctx, segments := newTestController(t, Options{SliceInterval: 15 * time.Millisecond})

	if err := c.Start(ModeContinuous); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev := ctx.LastCapture()

	for i := 0; i < 6; i++ {
		dev.Push(loudPCM(1))
		time.Sleep(10 * time.Millisecond)
	}
	c.Stop()

	first := waitSegment(t, segments, time.Second)
	if first.Mode != ModeContinuous {
		t.Errorf("segment mode = %v, want continuous", first.Mode)
	}
	second := waitSegment(t, segments, time.Second)
	if len(first.PCM) == 0 || len(second.PCM) == 0 {
		t.Error("continuous slices must carry audio")
	}
}

func TestContinuousFlushDoesNotOverlapEarlierSlices(t *testing.T) {
	c, ctx, segments := newTestController(t, Options{SliceInterval: 15 * time.Millisecond})

	if err := c.Start(ModeContinuous); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev := ctx.LastCapture()

	dev.Push(loudPCM(2))
	first := waitSegment(t, segments, time.Second)

	dev.Push(loudPCM(2))
	c.Stop()

	// whatever the last tick and the Stop flush emit must start where
	// the previous slice ended, not back at capture start
	last := first
	extra := 0
	for {
		var s Segment
		select {
		case s = <-segments:
		default:
			if extra == 0 {
				t.Fatal("audio pushed after the first slice was never emitted")
			}
			return
		}
		extra++
		if s.Start.Before(last.End) {
			t.Errorf("slice [%v, %v] overlaps the previous slice ending %v", s.Start, s.End, last.End)
		}
		last = s
	}
}

func TestSmartPauseEmitsUtteranceAfterQuiet(t *testing.T) {
	c, ctx, segments := newTestController(t, Options{
		TickInterval:    5 * time.Millisecond,
		PauseDuration:   40 * time.Millisecond,
		MinSpeechLength: 5 * time.Millisecond,
	})

	if err := c.Start(ModeSmartPause); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev := ctx.LastCapture()

	// speak for a few ticks, then go quiet
	for i := 0; i < 5; i++ {
		dev.Push(loudPCM(3))
		time.Sleep(5 * time.Millisecond)
	}

	seg := waitSegment(t, segments, 2*time.Second)
	if seg.Mode != ModeSmartPause {
		t.Errorf("segment mode = %v, want smart", seg.Mode)
	}
	if len(seg.PCM) == 0 {
		t.Error("utterance segment carries no audio")
	}
	if !seg.End.After(seg.Start) {
		t.Errorf("segment window [%v, %v] not ordered", seg.Start, seg.End)
	}

	c.Stop()
}

func TestSmartPauseDiscardsBlip(t *testing.T) {
	c, ctx, segments := newTestController(t, Options{
		TickInterval:    5 * time.Millisecond,
		PauseDuration:   30 * time.Millisecond,
		MinSpeechLength: 20 * time.Millisecond,
	})

	if err := c.Start(ModeSmartPause); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// one burst, shorter than the blip floor
	ctx.LastCapture().Push(loudPCM(3))

	select {
	case s := <-segments:
		t.Fatalf("blip emitted a segment of %d bytes", len(s.PCM))
	case <-time.After(200 * time.Millisecond):
	}

	c.Stop()
}
