package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"assistedvoice/capture"
	"assistedvoice/config"
	"assistedvoice/session"
)

// TUI message types
type StateMsg struct {
	State   session.State
	Attempt uint
	Detail  string
}
type StatusMsg struct {
	Text string
	Type string
}
type TranscriptMsg struct {
	Role string
	Text string
}
type StreamMsg struct {
	Text  string
	Model string
}
type ReplyMsg struct {
	Text            string
	Model           string
	FirstChunkMs    float64
	TotalMs         float64
	TokensPerSecond float64
	Partial         bool
}
type ModelMsg struct{ Model string }
type ModelsMsg struct {
	Models  []string
	Current string
}
type ErrorMsg struct{ Text string }
type ClearedMsg struct{}
type CaptureMsg struct {
	Active bool
	Mode   capture.Mode
}
type PlayerMsg struct {
	Active  bool
	Pending bool
}
type NetMsg struct {
	Metrics *config.NetworkMetrics
	Err     string
}
type tickMsg time.Time

var (
	styleTitle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleErr     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleUser    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleReply   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	styleMetrics = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleRec     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

type tuiModel struct {
	app *App

	connState  session.State
	attempt    uint
	stateLine  string
	statusLine string
	errLine    string

	mode      capture.Mode
	capturing bool

	userText    string
	streamText  string
	streamModel string
	replyText   string
	metricsLine string
	netLine     string
	copied      bool

	models  []string
	model   string
	msgs    int
	playPos time.Duration
	playDur time.Duration
	playing bool
	pending bool

	input         string
	width, height int
}

func NewTUIProgram(app *App, mode capture.Mode, model string) *tea.Program {
	m := tuiModel{app: app, mode: mode, model: model}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.playPos, m.playDur, m.playing, m.pending = m.app.PlayerLine()
		return m, tuiTick()

	case StateMsg:
		m.connState = msg.State
		m.attempt = msg.Attempt
		m.stateLine = msg.Detail

	case StatusMsg:
		m.statusLine = msg.Text
		if msg.Type != "error" {
			m.errLine = ""
		}

	case TranscriptMsg:
		if msg.Role == "user" {
			m.userText = msg.Text
			m.streamText = ""
			m.replyText = ""
			m.metricsLine = ""
			m.copied = false
		}

	case StreamMsg:
		m.streamText = msg.Text
		m.streamModel = msg.Model

	case ReplyMsg:
		m.streamText = ""
		m.replyText = msg.Text
		m.msgs++
		m.copied = m.app.CopyLast()
		if msg.Partial {
			m.metricsLine = "stopped early"
		} else {
			m.metricsLine = fmt.Sprintf("%s | first chunk %.0fms | total %.1fs | %.1f tok/s",
				msg.Model, msg.FirstChunkMs, msg.TotalMs/1000, msg.TokensPerSecond)
		}

	case ModelMsg:
		m.model = msg.Model

	case ModelsMsg:
		m.models = msg.Models
		if msg.Current != "" && m.model == "" {
			m.model = msg.Current
		}

	case ErrorMsg:
		m.errLine = msg.Text

	case ClearedMsg:
		m.userText = ""
		m.streamText = ""
		m.replyText = ""
		m.metricsLine = ""
		m.msgs = 0
		m.statusLine = "conversation cleared"

	case CaptureMsg:
		m.capturing = msg.Active
		m.mode = msg.Mode

	case NetMsg:
		if msg.Err != "" {
			m.netLine = "net: " + msg.Err
		} else {
			m.netLine = netLineView(msg.Metrics)
		}
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// any keystroke counts as the user gesture that unblocks parked audio
	m.app.Gesture()

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter":
		text := m.input
		m.input = ""
		m.app.SendText(text)
	case "ctrl+r":
		m.app.ToggleCapture()
	case "tab":
		m.app.CycleMode()
	case "ctrl+s":
		m.app.StopGeneration()
	case "ctrl+l":
		m.app.ClearConversation()
	case "ctrl+p":
		m.app.ReplayLast()
	case "ctrl+x":
		m.app.StopPlayback()
	case "ctrl+n":
		m.app.Reconnect()
	case "ctrl+t":
		m.netLine = "net: probing…"
		m.app.TestConnection()
	case "up":
		m.app.VolumeUp()
	case "down":
		m.app.VolumeDown()
	case "left", "right":
		if m.playDur > 0 {
			frac := float64(m.playPos) / float64(m.playDur)
			if msg.String() == "left" {
				frac -= 0.1
			} else {
				frac += 0.1
			}
			m.app.SeekPlayback(frac)
		}
	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case "space":
		m.input += " "
	default:
		if msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	wrapWidth := m.width - 2
	if wrapWidth < 20 {
		wrapWidth = 20
	}

	var b strings.Builder

	b.WriteString(styleTitle.Render("assistedvoice") + "  " + m.stateView() + "\n")
	b.WriteString(styleDim.Render(m.modeLineView()) + "\n\n")

	if m.userText != "" {
		for _, line := range wrapText("you: "+m.userText, wrapWidth) {
			b.WriteString(styleUser.Render(line) + "\n")
		}
	}
	switch {
	case m.streamText != "":
		for _, line := range wrapText(m.streamText, wrapWidth) {
			b.WriteString(styleReply.Render(line) + "\n")
		}
		b.WriteString(styleDim.Render("…") + "\n")
	case m.replyText != "":
		lines := wrapText(m.replyText, wrapWidth)
		for i, line := range lines {
			b.WriteString(styleReply.Render(line))
			if i == len(lines)-1 && m.copied {
				b.WriteString(" " + styleOK.Render("[✓ copied]"))
			}
			b.WriteString("\n")
		}
		if m.metricsLine != "" {
			b.WriteString(styleMetrics.Render(m.metricsLine) + "\n")
		}
	default:
		b.WriteString(styleDim.Render("No messages yet") + "\n")
	}
	b.WriteString("\n")

	if line := m.playerView(); line != "" {
		b.WriteString(line + "\n")
	}
	if m.statusLine != "" {
		b.WriteString(styleDim.Render(m.statusLine) + "\n")
	}
	if m.netLine != "" {
		b.WriteString(styleMetrics.Render(m.netLine) + "\n")
	}
	if m.errLine != "" {
		b.WriteString(styleErr.Render("✗ "+m.errLine) + "\n")
	}

	b.WriteString("\n> " + m.input + "█\n\n")
	b.WriteString(styleDim.Render("enter send · ctrl+r record · tab mode · ctrl+s stop · ctrl+p replay · ctrl+l clear · ctrl+t net · ctrl+c quit") + "\n")
	b.WriteString(styleDim.Render("assistedvoice " + version))

	return b.String()
}

func (m tuiModel) stateView() string {
	switch m.connState {
	case session.Connected:
		return styleOK.Render("● connected")
	case session.Connecting:
		return styleWarn.Render("◌ connecting")
	case session.Reconnecting:
		return styleWarn.Render(fmt.Sprintf("◌ reconnecting (attempt %d)", m.attempt))
	case session.Failed:
		return styleErr.Render("✗ " + m.stateLine)
	default:
		return styleDim.Render("○ disconnected")
	}
}

func (m tuiModel) modeLineView() string {
	rec := ""
	if m.capturing {
		rec = "  " + styleRec.Render("● REC")
	}
	model := m.model
	if model == "" {
		model = "default"
	}
	return fmt.Sprintf("[%s | %s | %d models]%s", m.mode, model, len(m.models), rec)
}

func (m tuiModel) playerView() string {
	if m.pending {
		return styleWarn.Render("♪ audio ready, press any key to play")
	}
	if !m.playing {
		return ""
	}
	frac := 0.0
	if m.playDur > 0 {
		frac = float64(m.playPos) / float64(m.playDur)
	}
	const barLen = 20
	filled := int(frac * barLen)
	if filled > barLen {
		filled = barLen
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barLen-filled)
	return styleOK.Render("♪ ") + styleDim.Render(fmt.Sprintf("%s %s / %s",
		bar, fmtDur(m.playPos), fmtDur(m.playDur)))
}

// netLineView formats a connection probe as one phase-by-phase line.
// A reused connection skips DNS, TCP and TLS, so those phases are
// omitted rather than shown as zeros.
func netLineView(nm *config.NetworkMetrics) string {
	var parts []string
	if nm.ConnReused {
		parts = append(parts, "conn reused")
	} else {
		parts = append(parts,
			"dns "+fmtMs(nm.DNS),
			"tcp "+fmtMs(nm.TCP))
		if nm.TLS > 0 {
			parts = append(parts, "tls "+fmtMs(nm.TLS))
		}
	}
	parts = append(parts,
		"ttfb "+fmtMs(nm.TTFB),
		"total "+fmtMs(nm.Total))
	return "net: " + strings.Join(parts, " · ")
}

func fmtMs(d time.Duration) string {
	return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
}

func fmtDur(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
