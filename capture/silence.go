package capture

import "time"

const (
	// DefaultPauseDuration is the quiet period after the last voiced
	// observation before an utterance boundary is declared.
	DefaultPauseDuration = 1500 * time.Millisecond
	// DefaultMinSpeechLength is the shortest voiced span that counts as
	// an utterance; shorter blips are discarded.
	DefaultMinSpeechLength = 500 * time.Millisecond
)

type Decision int

const (
	DecisionNone     Decision = iota
	DecisionBoundary          // utterance ended, emit it
	DecisionDiscard           // voiced span too short, drop it
)

// Segmenter decides utterance boundaries from a rolling voice-activity
// signal. It is pure: callers feed it observations with explicit
// timestamps and it never reads the clock or arms timers, so renewed
// activity before the quiet period elapses simply pushes the boundary
// out (debounce, not throttle).
type Segmenter struct {
	pause     time.Duration
	minSpeech time.Duration

	speaking  bool
	startedAt time.Time
	lastVoice time.Time
}

func NewSegmenter(pause, minSpeech time.Duration) *Segmenter {
	if pause <= 0 {
		pause = DefaultPauseDuration
	}
	if minSpeech <= 0 {
		minSpeech = DefaultMinSpeechLength
	}
	return &Segmenter{pause: pause, minSpeech: minSpeech}
}

// Observe feeds one activity sample. A boundary fires on the first
// quiet observation at or past lastVoice+pause; the emitted utterance
// covers startedAt through that observation, trailing quiet included.
func (s *Segmenter) Observe(voiced bool, now time.Time) Decision {
	if voiced {
		if !s.speaking {
			s.speaking = true
			s.startedAt = now
		}
		s.lastVoice = now
		return DecisionNone
	}

	if !s.speaking {
		return DecisionNone
	}
	if now.Sub(s.lastVoice) < s.pause {
		return DecisionNone
	}

	spoke := s.lastVoice.Sub(s.startedAt)
	s.speaking = false
	if spoke < s.minSpeech {
		return DecisionDiscard
	}
	return DecisionBoundary
}

// Speaking reports whether an utterance is in progress.
func (s *Segmenter) Speaking() bool { return s.speaking }

// UtteranceStart is the timestamp of the first voiced observation of
// the current (or just-closed) utterance.
func (s *Segmenter) UtteranceStart() time.Time { return s.startedAt }

func (s *Segmenter) Reset() {
	s.speaking = false
	s.startedAt = time.Time{}
	s.lastVoice = time.Time{}
}
