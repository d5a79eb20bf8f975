// Package response assembles a streamed reply out of incremental
// chunk events and tracks its timing.
package response

import (
	"strings"
	"sync"
	"time"
)

type RequestKind int

const (
	KindText RequestKind = iota
	KindAudio
)

func (k RequestKind) String() string {
	if k == KindAudio {
		return "audio"
	}
	return "text"
}

// Metrics summarises one finished response. TokensPerSecond is a
// display-only heuristic built from whitespace-delimited words, not a
// billing-accurate token count.
type Metrics struct {
	FirstChunkDelayMs float64
	TotalTimeMs       float64
	TokensPerSecond   float64
	Chunks            int
	Words             int
	// FirstChunkModel is the model reported with the first chunk; the
	// latency figures belong to it even when a later hint renames the
	// display model mid-stream.
	FirstChunkModel string
}

// Message is a finalized reply.
type Message struct {
	Text    string
	Model   string
	Kind    RequestKind
	Metrics Metrics
}

// Assembler accumulates chunks for the single logically active
// request. The transport delivers chunks in order, so no reordering
// happens here; late chunks for a cancelled request are dropped.
type Assembler struct {
	mu sync.Mutex

	active       bool
	kind         RequestKind
	sentAt       time.Time
	firstChunkAt time.Time
	// model as reported on the first chunk, used for the latency
	// metric; later hints overwrite displayModel only.
	firstModel   string
	displayModel string
	text         strings.Builder
	chunks       int
	words        int

	now func() time.Time
}

func NewAssembler() *Assembler {
	return &Assembler{now: time.Now}
}

// Begin marks a new in-flight request. Any previous unfinished stream
// is discarded; the backend serializes generation so there is at most
// one.
func (a *Assembler) Begin(kind RequestKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
	a.active = true
	a.kind = kind
	a.sentAt = a.now()
}

// Active reports whether a request is currently streaming.
func (a *Assembler) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Text returns the accumulated text so far, for live rendering.
func (a *Assembler) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text.String()
}

// Model returns the model name for display, last hint wins.
func (a *Assembler) Model() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.displayModel
}

// Chunk appends one incremental fragment. Chunks arriving with no
// active request (late after cancel, or out of band) are dropped.
func (a *Assembler) Chunk(text, modelHint string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}
	if a.chunks == 0 {
		a.firstChunkAt = a.now()
		a.firstModel = modelHint
	}
	if modelHint != "" {
		a.displayModel = modelHint
	}
	a.chunks++
	a.text.WriteString(text)
	a.words += len(strings.Fields(text))
}

// Complete finalizes the stream. The backend's full text wins over the
// accumulated chunks when both are present. Empty or whitespace-only
// final text discards the message entirely (ok == false); rendering an
// empty bubble is worse than rendering nothing.
func (a *Assembler) Complete(fullText, modelHint string) (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return Message{}, false
	}

	text := fullText
	if text == "" {
		text = a.text.String()
	}
	if modelHint != "" {
		a.displayModel = modelHint
	}

	if strings.TrimSpace(text) == "" {
		a.resetLocked()
		return Message{}, false
	}

	msg := a.finalizeLocked(text)
	a.resetLocked()
	return msg, true
}

// Cancel finalizes with whatever has accumulated. The backend is
// notified separately; this only stops local assembly so late chunks
// are dropped. ok is false when nothing useful accumulated.
func (a *Assembler) Cancel() (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return Message{}, false
	}
	text := a.text.String()
	if strings.TrimSpace(text) == "" {
		a.resetLocked()
		return Message{}, false
	}
	msg := a.finalizeLocked(text)
	a.resetLocked()
	return msg, true
}

func (a *Assembler) finalizeLocked(text string) Message {
	completedAt := a.now()
	m := Metrics{
		Chunks: a.chunks,
		Words:  a.words,
	}
	m.FirstChunkModel = a.firstModel
	m.TotalTimeMs = float64(completedAt.Sub(a.sentAt)) / float64(time.Millisecond)
	if a.chunks > 0 {
		m.FirstChunkDelayMs = float64(a.firstChunkAt.Sub(a.sentAt)) / float64(time.Millisecond)
	}
	if m.TotalTimeMs > 0 && a.chunks > 0 {
		m.TokensPerSecond = float64(a.words) / (m.TotalTimeMs / 1000)
	}

	// Display model is last-write-wins across mid-stream hints.
	return Message{Text: text, Model: a.displayModel, Kind: a.kind, Metrics: m}
}

func (a *Assembler) resetLocked() {
	a.active = false
	a.text.Reset()
	a.chunks = 0
	a.words = 0
	a.firstChunkAt = time.Time{}
	a.firstModel = ""
	a.displayModel = ""
}
