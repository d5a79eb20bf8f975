package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcriptFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: ASSISTEDVOICE_LOG_PATH environment variable
	envPath := os.Getenv("ASSISTEDVOICE_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcriptPath := filepath.Join(dir, "conversation_log.txt")
	transcriptFile, err = os.OpenFile(transcriptPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcriptFile != nil {
		transcriptFile.Close()
		transcriptFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// SessionState records a transport state transition.
func SessionState(state string, attempt uint) {
	if !logReady {
		return
	}
	ev := diagLog.Info().Str("state", state)
	if attempt > 0 {
		ev = ev.Uint("attempt", attempt)
	}
	ev.Msg("session_state")
}

// ResponseMetrics records timing for one completed streamed response.
type ResponseMetrics struct {
	Model           string
	Chunks          int
	Words           int
	FirstChunkMs    float64
	TotalMs         float64
	TokensPerSecond float64
}

func Response(m ResponseMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("model", m.Model).
		Int("chunks", m.Chunks).
		Int("words", m.Words).
		Float64("first_chunk_ms", m.FirstChunkMs).
		Float64("total_ms", m.TotalMs).
		Float64("tokens_per_s", m.TokensPerSecond).
		Msg("response")
}

// SegmentMetrics records one captured audio segment handed to the transport.
type SegmentMetrics struct {
	Mode      string
	DurationS float64
	RawKB     float64
	SentKB    float64
	EncodeMs  float64
}

func Segment(m SegmentMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("mode", m.Mode).
		Float64("audio_s", m.DurationS).
		Float64("raw_kb", m.RawKB).
		Float64("sent_kb", m.SentKB).
		Float64("encode_ms", m.EncodeMs).
		Msg("segment")
}

// Playback records a playback lifecycle event for one clip.
func Playback(event string, positionS, durationS float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("event", event).
		Float64("position_s", positionS).
		Float64("duration_s", durationS).
		Msg("playback")
}

func Transcript(role, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, role, text)
	transcriptFile.WriteString(line)
}

func SessionStart(server, model string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("server", server).
		Str("model", model).
		Msg("session_start")
}

func SessionEnd(messages int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("messages", messages).
		Msg("session_end")
}
