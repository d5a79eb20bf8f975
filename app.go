package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"assistedvoice/audio"
	"assistedvoice/capture"
	"assistedvoice/config"
	"assistedvoice/encoder"
	"assistedvoice/history"
	"assistedvoice/log"
	"assistedvoice/playback"
	"assistedvoice/response"
	"assistedvoice/session"
)

// App owns one of everything: session, assembler, capture controller,
// playback queue, history store. All cross-component traffic funnels
// through its dispatch loop; the TUI only renders what it is sent and
// calls back into App methods.
type App struct {
	cfg     *config.Config
	sess    *session.Session
	asm     *response.Assembler
	cap     *capture.Controller
	queue   *playback.Queue
	store   *history.Store
	rest    *config.Client
	program *tea.Program

	mu            sync.Mutex
	conv          *history.Conversation
	model         string
	ttsOn         bool
	lastReply     string
	remoteFetched bool
	done          chan struct{}
}

func NewApp(cfg *config.Config, audioCtx audio.Context, device *audio.DeviceInfo, historyDir string) (*App, error) {
	dial, err := session.WebsocketDialer(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("bad server URL: %w", err)
	}

	store, err := history.NewStore(historyDir)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:   cfg,
		sess:  session.New(dial, session.DefaultReconnectPolicy()),
		asm:   response.NewAssembler(),
		queue: playback.NewQueue(audioCtx),
		store: store,
		rest:  config.NewClient(cfg.Server),
		model: cfg.Model,
		ttsOn: cfg.TTS.Enabled,
		conv:  newConversation(),
		done:  make(chan struct{}),
	}
	a.cap = capture.New(audioCtx, device, a.onSegment, capture.Options{})
	a.queue.OnEnded = func() { a.send(PlayerMsg{}) }
	return a, nil
}

func newConversation() *history.Conversation {
	now := time.Now()
	return &history.Conversation{
		ID:      fmt.Sprintf("conv-%d", now.UnixNano()),
		Created: now,
		Updated: now,
	}
}

// AttachUI registers the running bubbletea program as the event sink.
func (a *App) AttachUI(p *tea.Program) {
	a.mu.Lock()
	a.program = p
	a.mu.Unlock()
}

func (a *App) send(msg tea.Msg) {
	a.mu.Lock()
	p := a.program
	a.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Start connects the session and runs the dispatch loop until the
// event channel closes.
func (a *App) Start() {
	log.SessionStart(a.cfg.Server, a.model)
	a.sess.Connect()
	go a.dispatch()
}

func (a *App) Shutdown() {
	a.cap.Stop()
	a.queue.Close()
	a.sess.Disconnect()
	<-a.done

	a.mu.Lock()
	conv := a.conv
	a.mu.Unlock()
	if len(conv.Messages) > 0 {
		if err := a.store.Save(conv); err != nil {
			log.Warnf("Saving conversation: %v", err)
		}
	}
	log.SessionEnd(len(conv.Messages))
}

// dispatch is the single point where inbound session events meet the
// rest of the app.
func (a *App) dispatch() {
	defer close(a.done)
	for ev := range a.sess.Events() {
		switch ev.Kind {
		case session.KindStateChanged:
			a.onStateChanged(ev)

		case session.KindStatus:
			a.send(StatusMsg{Text: ev.Message, Type: ev.StatusType})

		case session.KindTranscription:
			a.recordMessage("user", ev.Text)
			log.Transcript("user", ev.Text)
			a.send(TranscriptMsg{Role: "user", Text: ev.Text})

		case session.KindResponseChunk:
			if !a.asm.Active() {
				a.asm.Begin(response.KindText)
			}
			a.asm.Chunk(ev.Text, ev.Model)
			a.send(StreamMsg{Text: a.asm.Text(), Model: a.asm.Model()})

		case session.KindResponseComplete:
			a.onResponseComplete(ev)

		case session.KindAudioData:
			a.onAudioData(ev)

		case session.KindModelChanged:
			a.mu.Lock()
			a.model = ev.Model
			a.mu.Unlock()
			a.send(ModelMsg{Model: ev.Model})

		case session.KindBackendError:
			log.Errorf("Backend error: %s", ev.Message)
			a.send(ErrorMsg{Text: ev.Message})

		case session.KindConversationCleared:
			a.mu.Lock()
			a.conv = newConversation()
			a.lastReply = ""
			a.mu.Unlock()
			a.send(ClearedMsg{})

		case session.KindProtocolError:
			log.Warnf("Protocol error: %s", ev.Message)
			a.send(StatusMsg{Text: "malformed event from backend", Type: "warning"})
		}
	}
}

func (a *App) onStateChanged(ev session.Event) {
	msg := StateMsg{State: ev.State, Attempt: ev.Attempt}
	if ev.Err != nil {
		msg.Detail = ev.Err.Error()
	}
	if ev.State == session.Failed {
		msg.Detail = "reconnect attempts exhausted, press ctrl+n to reconnect"
	}
	a.send(msg)

	if ev.State == session.Connected {
		go a.syncServerState()
	}
}

// syncServerState pushes local tuning to the backend and pulls the
// model list after every (re)connect.
func (a *App) syncServerState() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.applyRemoteDefaults(ctx)

	a.mu.Lock()
	model := a.model
	a.mu.Unlock()

	if model != "" {
		a.trySend(session.ChangeModel(model))
	}
	if a.cfg.TTS.Engine != "" {
		a.trySend(session.ChangeTTS(a.cfg.TTS.Engine, a.cfg.TTS.Voice))
	}
	a.trySend(session.UpdateTemperature(a.cfg.Temperature))
	a.trySend(session.UpdateMaxTokens(a.cfg.MaxTokens))
	if a.cfg.SystemPrompt != "" {
		a.trySend(session.UpdateSystemPrompt(a.cfg.SystemPrompt))
	}

	if list, err := a.rest.Models(ctx); err == nil {
		a.send(ModelsMsg{Models: list.Models, Current: list.Current})
	} else {
		log.Warnf("Fetching model list: %v", err)
	}
}

// applyRemoteDefaults pulls the server-advertised defaults once per
// run and fills the settings the local config left empty.
func (a *App) applyRemoteDefaults(ctx context.Context) {
	a.mu.Lock()
	if a.remoteFetched {
		a.mu.Unlock()
		return
	}
	a.remoteFetched = true
	a.mu.Unlock()

	remote, err := a.rest.Fetch(ctx)
	if err != nil {
		log.Warnf("Fetching server defaults: %v", err)
		return
	}

	if a.cfg.TTS.Engine == "" && remote.TTSEngine != "" {
		a.cfg.TTS.Engine = remote.TTSEngine
		a.cfg.TTS.Voice = remote.TTSVoice
	}

	a.mu.Lock()
	if a.model == "" && remote.DefaultModel != "" {
		a.model = remote.DefaultModel
	}
	model := a.model
	a.mu.Unlock()
	if model != "" {
		a.send(ModelMsg{Model: model})
	}
}

// TestConnection probes the backend's REST side off the UI goroutine
// and reports the latency breakdown.
func (a *App) TestConnection() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		metrics, err := a.rest.TestConnection(ctx)
		if err != nil {
			a.send(NetMsg{Err: err.Error()})
			return
		}
		a.send(NetMsg{Metrics: metrics})
	}()
}

func (a *App) onResponseComplete(ev session.Event) {
	if !a.asm.Active() {
		a.asm.Begin(response.KindText)
	}
	msg, ok := a.asm.Complete(ev.Text, ev.Model)
	if !ok {
		a.send(StreamMsg{})
		return
	}

	a.recordMessage("assistant", msg.Text)
	log.Transcript("assistant", msg.Text)
	log.Response(log.ResponseMetrics{
		Model:           msg.Model,
		Chunks:          msg.Metrics.Chunks,
		Words:           msg.Metrics.Words,
		FirstChunkMs:    msg.Metrics.FirstChunkDelayMs,
		TotalMs:         msg.Metrics.TotalTimeMs,
		TokensPerSecond: msg.Metrics.TokensPerSecond,
	})

	a.mu.Lock()
	a.lastReply = msg.Text
	a.mu.Unlock()

	a.send(ReplyMsg{
		Text:            msg.Text,
		Model:           msg.Model,
		FirstChunkMs:    msg.Metrics.FirstChunkDelayMs,
		TotalMs:         msg.Metrics.TotalTimeMs,
		TokensPerSecond: msg.Metrics.TokensPerSecond,
	})
}

func (a *App) onAudioData(ev session.Event) {
	clip, err := playback.Decode(ev.Audio)
	if err != nil {
		log.Warnf("Decoding speech clip: %v", err)
		return
	}
	if err := a.queue.Play(clip); err != nil {
		log.Warnf("Playing speech clip: %v", err)
		return
	}
	a.send(PlayerMsg{Pending: a.queue.Pending(), Active: a.queue.Active()})
}

func (a *App) recordMessage(role, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conv.Messages = append(a.conv.Messages, history.Message{Role: role, Content: text})
	a.conv.Updated = time.Now()
	a.conv.Model = a.model
	if a.conv.Title == "" && role == "user" {
		a.conv.Title = text
		if len(a.conv.Title) > 60 {
			a.conv.Title = a.conv.Title[:60]
		}
	}
}

func (a *App) trySend(out session.Outbound) {
	if err := a.sess.Send(out); err != nil {
		log.Warnf("Send %s: %v", out.Event, err)
	}
}

// SendText submits typed text for inference.
func (a *App) SendText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.mu.Lock()
	convID := a.conv.ID
	tts := a.ttsOn
	a.mu.Unlock()

	a.asm.Begin(response.KindText)
	if err := a.sess.Send(session.ProcessText(text, tts, convID)); err != nil {
		a.asm.Cancel()
		a.send(ErrorMsg{Text: err.Error()})
		return
	}
	a.recordMessage("user", text)
	log.Transcript("user", text)
	a.send(TranscriptMsg{Role: "user", Text: text})
}

// ToggleCapture starts the configured capture mode, or stops the
// active one.
func (a *App) ToggleCapture() {
	mode, err := capture.ParseMode(a.cfg.Mode)
	if err != nil {
		a.send(ErrorMsg{Text: err.Error()})
		return
	}
	if a.cap.Active() {
		a.cap.Stop()
		a.send(CaptureMsg{Mode: mode})
		return
	}
	if err := a.cap.Start(mode); err != nil {
		if audio.IsPermissionError(err) {
			a.send(ErrorMsg{Text: "microphone permission denied: grant access in OS settings"})
		} else {
			a.send(ErrorMsg{Text: err.Error()})
		}
		return
	}
	a.send(CaptureMsg{Active: true, Mode: mode})
}

// CycleMode advances ptt -> continuous -> smart while idle.
func (a *App) CycleMode() {
	if a.cap.Active() {
		return
	}
	switch a.cfg.Mode {
	case "ptt", "push-to-talk":
		a.cfg.Mode = "continuous"
	case "continuous":
		a.cfg.Mode = "smart"
	default:
		a.cfg.Mode = "ptt"
	}
	mode, _ := capture.ParseMode(a.cfg.Mode)
	a.send(CaptureMsg{Mode: mode})
}

// onSegment encodes one captured segment and ships it by mode: PTT as
// a one-shot inference request, the streaming modes as cadence slices
// the backend segments (or not) itself.
func (a *App) onSegment(seg capture.Segment) {
	a.mu.Lock()
	tts := a.ttsOn
	a.mu.Unlock()

	switch seg.Mode {
	case capture.ModePTT:
		url, err := encodeSegment("flac", seg.PCM)
		if err != nil {
			log.Errorf("Encoding segment: %v", err)
			return
		}
		a.asm.Begin(response.KindAudio)
		if err := a.sess.Send(session.ProcessAudio(url, tts)); err != nil {
			a.asm.Cancel()
			a.send(ErrorMsg{Text: err.Error()})
		}

	case capture.ModeContinuous, capture.ModeSmartPause:
		url, err := encodeSegment("wav", seg.PCM)
		if err != nil {
			log.Errorf("Encoding slice: %v", err)
			return
		}
		settings := session.StreamSettings{SampleRate: encoder.SampleRate, EnableTTS: tts}
		out := session.AudioStreamContinuous(url, seg.End.UnixMilli(), settings)
		if seg.Mode == capture.ModeSmartPause {
			out = session.AudioStreamSmart(url, seg.End.UnixMilli(), settings)
		}
		a.trySend(out)
	}
}

func encodeSegment(format string, pcm []byte) (string, error) {
	enc, err := encoder.New(format)
	if err != nil {
		return "", err
	}
	start := time.Now()
	data, err := encoder.EncodePCM(enc, pcm)
	if err != nil {
		return "", err
	}
	log.Segment(log.SegmentMetrics{
		Mode:      format,
		DurationS: float64(len(pcm)) / float64(encoder.BytesPerSecond),
		RawKB:     float64(len(pcm)) / 1024,
		SentKB:    float64(len(data)) / 1024,
		EncodeMs:  float64(time.Since(start).Milliseconds()),
	})
	return encoder.DataURL(format, data), nil
}

// Gesture is called on any user interaction; it resumes a playback
// clip the runtime refused to start on its own.
func (a *App) Gesture() {
	a.queue.Gesture()
}

func (a *App) StopGeneration() {
	if msg, ok := a.asm.Cancel(); ok {
		a.recordMessage("assistant", msg.Text)
		a.mu.Lock()
		a.lastReply = msg.Text
		a.mu.Unlock()
		a.send(ReplyMsg{Text: msg.Text, Model: msg.Model, Partial: true})
	}
	a.trySend(session.StopGeneration())
}

func (a *App) ClearConversation() {
	a.trySend(session.ClearConversation())
}

// ReplayLast asks the backend to re-synthesize the last reply.
func (a *App) ReplayLast() {
	a.mu.Lock()
	text := a.lastReply
	a.mu.Unlock()
	if text == "" {
		return
	}
	a.trySend(session.ReplayText(text, true))
}

func (a *App) CopyLast() bool {
	a.mu.Lock()
	text := a.lastReply
	a.mu.Unlock()
	if text == "" {
		return false
	}
	if err := clipboard.WriteAll(text); err != nil {
		log.Warnf("Clipboard: %v", err)
		return false
	}
	return true
}

func (a *App) SelectModel(model string) {
	if model == "" {
		a.send(ErrorMsg{Text: "no model selected"})
		return
	}
	a.trySend(session.ChangeModel(model))
}

// Reconnect is the manual path out of the Failed state.
func (a *App) Reconnect() {
	a.sess.Connect()
}

func (a *App) StopPlayback() { a.queue.Stop() }

func (a *App) SeekPlayback(f float64) { a.queue.Seek(f) }

func (a *App) VolumeUp() { a.queue.SetVolume(a.queue.Volume() + 0.1) }

func (a *App) VolumeDown() { a.queue.SetVolume(a.queue.Volume() - 0.1) }

func (a *App) PlayerLine() (pos, dur time.Duration, active, pending bool) {
	pos, dur = a.queue.Position()
	return pos, dur, a.queue.Active(), a.queue.Pending()
}
