package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"assistedvoice/log"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = errors.New("not connected")

	// ErrAttemptsExhausted is terminal: the session stops retrying and
	// the user must trigger a manual reconnect.
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted, reconnect manually")
)

// Conn is one live duplex connection. Read blocks until a frame
// arrives or the connection drops.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer opens a fresh Conn. Injected so tests run without a backend.
type Dialer func(ctx context.Context) (Conn, error)

const eventBuffer = 256

// Session owns the one duplex connection to the backend. It detects
// drops, reconnects with capped exponential backoff and delivers every
// inbound event, including its own state transitions, on one typed
// channel. Session is the sole writer of its state.
type Session struct {
	dial   Dialer
	policy ReconnectPolicy

	events       chan Event
	emitMu       sync.Mutex
	eventsClosed bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	attempt  uint
	lastErr  error
	conn     Conn
	closing  bool
	timer    *time.Timer
	readDone chan struct{}
}

func New(dial Dialer, policy ReconnectPolicy) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		dial:   dial,
		policy: policy,
		events: make(chan Event, eventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Events is the single inbound stream. Frames are delivered in the
// order the backend sent them; the channel closes on Disconnect.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts (or manually restarts) the connection. Any pending
// reconnect timer is cleared first so two schedules never overlap; a
// manual connect also resets the attempt counter, including from the
// Failed state.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.closing {
		s.closing = false
	}
	if s.state == Connecting || s.state == Connected {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.attempt = 0
	s.lastErr = nil
	s.setStateLocked(Connecting)
	s.mu.Unlock()

	go s.runDial()
}

// Send transmits one outbound event on the live connection. Sends
// while disconnected or reconnecting fail fast; the caller decides
// whether to queue.
func (s *Session) Send(out Outbound) error {
	s.mu.Lock()
	conn := s.conn
	st := s.state
	s.mu.Unlock()

	if st != Connected || conn == nil {
		return fmt.Errorf("send %s: %w", out.Event, ErrNotConnected)
	}
	frame, err := out.marshal()
	if err != nil {
		return err
	}
	if err := conn.Write(s.ctx, frame); err != nil {
		return fmt.Errorf("send %s: %w", out.Event, err)
	}
	return nil
}

// Disconnect is a deliberate client close: no reconnect is scheduled
// and the event channel is closed once the reader has drained.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.closing = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	readDone := s.readDone
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if readDone != nil {
		select {
		case <-readDone:
		case <-time.After(2 * time.Second):
			log.Warn("session reader drain timeout")
		}
	}

	s.mu.Lock()
	s.conn = nil
	if s.state != Disconnected {
		s.setStateLocked(Disconnected)
	}
	s.mu.Unlock()

	s.cancel()
	s.emitMu.Lock()
	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.events)
	}
	s.emitMu.Unlock()
}

// runDial performs one dial and either promotes the session to
// Connected or schedules the next retry.
func (s *Session) runDial() {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	conn, err := s.dial(ctx)
	cancel()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.scheduleRetryLocked(err)
		s.mu.Unlock()
		return
	}

	s.conn = conn
	s.attempt = 0
	s.lastErr = nil
	s.readDone = make(chan struct{})
	readDone := s.readDone
	s.setStateLocked(Connected)
	s.mu.Unlock()

	go s.readLoop(conn, readDone)
}

func (s *Session) readLoop(conn Conn, done chan struct{}) {
	defer close(done)
	for {
		frame, err := conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			if s.closing {
				s.mu.Unlock()
				return
			}
			// Server-initiated drop: retry per policy.
			conn.Close()
			s.scheduleRetryLocked(err)
			s.mu.Unlock()
			return
		}

		ev, decodeErr := decodeInbound(frame)
		if decodeErr != nil {
			// Payload-level failure: surfaced once, never retried.
			log.Warnf("protocol error: %v", decodeErr)
			s.emit(Event{Kind: KindProtocolError, Message: decodeErr.Error()})
			continue
		}
		s.emit(ev)
	}
}

func (s *Session) scheduleRetryLocked(cause error) {
	s.attempt++
	s.lastErr = cause

	if s.policy.Exhausted(s.attempt) {
		s.lastErr = fmt.Errorf("%w (last error: %v)", ErrAttemptsExhausted, cause)
		s.setStateLocked(Failed)
		return
	}

	delay := s.policy.Delay(s.attempt)
	log.Warnf("connection lost (%v), retry %d in %s", cause, s.attempt, delay)
	s.setStateLocked(Reconnecting)
	s.timer = time.AfterFunc(delay, s.retry)
}

func (s *Session) retry() {
	s.mu.Lock()
	s.timer = nil
	if s.closing || s.state != Reconnecting {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.runDial()
}

// setStateLocked mutates state and emits the transition. Callers hold
// s.mu; the emit itself is non-blocking so a slow consumer cannot
// wedge the transport.
func (s *Session) setStateLocked(st State) {
	s.state = st
	log.SessionState(st.String(), s.attempt)
	s.emit(Event{Kind: KindStateChanged, State: st, Attempt: s.attempt, Err: s.lastErr})
}

func (s *Session) emit(ev Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
		log.Warnf("event buffer full, dropping %s", ev.Kind)
	}
}
