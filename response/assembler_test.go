package response

import (
	"testing"
	"time"
)

// fakeClock steps time forward a fixed amount per call so metrics are
// deterministic.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestAssembler(step time.Duration) *Assembler {
	a := NewAssembler()
	clock := &fakeClock{t: time.Unix(1000, 0), step: step}
	a.now = clock.now
	return a
}

func TestAssembleChunks(t *testing.T) {
	a := newTestAssembler(100 * time.Millisecond)
	a.Begin(KindText)
	a.Chunk("Hello ", "llama3.2")
	a.Chunk("world", "")

	msg, ok := a.Complete("Hello world", "")
	if !ok {
		t.Fatal("expected a finalized message")
	}
	if msg.Text != "Hello world" {
		t.Errorf("text = %q, want %q", msg.Text, "Hello world")
	}
	if msg.Model != "llama3.2" {
		t.Errorf("model = %q, want llama3.2", msg.Model)
	}
	if msg.Metrics.Chunks != 2 {
		t.Errorf("chunks = %d, want 2", msg.Metrics.Chunks)
	}
	if msg.Metrics.Words != 2 {
		t.Errorf("words = %d, want 2", msg.Metrics.Words)
	}
	if msg.Metrics.TokensPerSecond < 0 {
		t.Errorf("tokens/s = %f, must never be negative", msg.Metrics.TokensPerSecond)
	}
	if msg.Metrics.FirstChunkDelayMs <= 0 {
		t.Errorf("first chunk delay = %f, want > 0", msg.Metrics.FirstChunkDelayMs)
	}
	if msg.Metrics.TotalTimeMs < msg.Metrics.FirstChunkDelayMs {
		t.Error("total time must cover first-chunk delay")
	}
}

func TestCompleteWithoutChunks(t *testing.T) {
	a := newTestAssembler(time.Millisecond)
	a.Begin(KindText)
	msg, ok := a.Complete("full answer", "mistral")
	if !ok {
		t.Fatal("expected message from complete-only stream")
	}
	if msg.Text != "full answer" {
		t.Errorf("text = %q", msg.Text)
	}
	// No chunks arrived: the rate metric must be 0, not NaN.
	if msg.Metrics.TokensPerSecond != 0 {
		t.Errorf("tokens/s = %f, want 0 with no chunks", msg.Metrics.TokensPerSecond)
	}
	if msg.Metrics.FirstChunkDelayMs != 0 {
		t.Errorf("first chunk delay = %f, want 0 with no chunks", msg.Metrics.FirstChunkDelayMs)
	}
}

func TestZeroElapsedGuard(t *testing.T) {
	a := newTestAssembler(0)
	a.Begin(KindText)
	a.Chunk("instant", "")
	msg, ok := a.Complete("instant", "")
	if !ok {
		t.Fatal("expected message")
	}
	if msg.Metrics.TokensPerSecond != 0 {
		t.Errorf("tokens/s = %f, want 0 when elapsed is 0", msg.Metrics.TokensPerSecond)
	}
}

func TestEmptyCompleteDiscards(t *testing.T) {
	for _, final := range []string{"", "   ", "\n\t "} {
		a := newTestAssembler(time.Millisecond)
		a.Begin(KindText)
		if _, ok := a.Complete(final, ""); ok {
			t.Errorf("Complete(%q) should discard, not finalize", final)
		}
		if a.Active() {
			t.Error("assembler should reset after discard")
		}
		if a.Text() != "" {
			t.Error("accumulated text should be cleared")
		}
	}
}

func TestModelLastWriteWinsForDisplay(t *testing.T) {
	a := newTestAssembler(time.Millisecond)
	a.Begin(KindText)
	a.Chunk("a ", "model-one")
	a.Chunk("b", "model-two")
	msg, ok := a.Complete("a b", "")
	if !ok {
		t.Fatal("expected message")
	}
	if msg.Model != "model-two" {
		t.Errorf("display model = %q, want model-two (last hint)", msg.Model)
	}
	if msg.Metrics.FirstChunkModel != "model-one" {
		t.Errorf("metric model = %q, want model-one (first chunk)", msg.Metrics.FirstChunkModel)
	}
}

func TestCancelKeepsPartialText(t *testing.T) {
	a := newTestAssembler(time.Millisecond)
	a.Begin(KindAudio)
	a.Chunk("partial ans", "m")

	msg, ok := a.Cancel()
	if !ok {
		t.Fatal("expected partial message on cancel")
	}
	if msg.Text != "partial ans" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Kind != KindAudio {
		t.Errorf("kind = %v, want KindAudio", msg.Kind)
	}

	// Late chunks after cancel are dropped, not appended.
	a.Chunk("late", "")
	if a.Text() != "" {
		t.Errorf("late chunk was appended: %q", a.Text())
	}
	if _, ok := a.Complete("late", ""); ok {
		t.Error("complete after cancel should be a no-op")
	}
}

func TestCancelWithNothingAccumulated(t *testing.T) {
	a := newTestAssembler(time.Millisecond)
	a.Begin(KindText)
	if _, ok := a.Cancel(); ok {
		t.Error("cancel with no text should not produce a message")
	}
}

func TestChunkWithoutBeginDropped(t *testing.T) {
	a := newTestAssembler(time.Millisecond)
	a.Chunk("stray", "")
	if a.Text() != "" {
		t.Error("chunk without an active request must be dropped")
	}
}

func TestBeginDiscardsPreviousStream(t *testing.T) {
	a := newTestAssembler(time.Millisecond)
	a.Begin(KindText)
	a.Chunk("old", "")
	a.Begin(KindText)
	if a.Text() != "" {
		t.Errorf("text = %q, want empty after re-Begin", a.Text())
	}
	a.Chunk("new", "")
	msg, ok := a.Complete("new", "")
	if !ok || msg.Text != "new" {
		t.Errorf("got %+v ok=%v", msg, ok)
	}
}

func TestWordCountApproximation(t *testing.T) {
	a := newTestAssembler(time.Millisecond)
	a.Begin(KindText)
	// Words are counted per arriving fragment, so a word split across
	// fragments counts twice. That is the documented approximation.
	a.Chunk("one two ", "")
	a.Chunk("thr", "")
	a.Chunk("ee", "")
	msg, ok := a.Complete("one two three", "")
	if !ok {
		t.Fatal("expected message")
	}
	if msg.Metrics.Words != 4 {
		t.Errorf("words = %d, want 4 (fragment-wise count)", msg.Metrics.Words)
	}
}
