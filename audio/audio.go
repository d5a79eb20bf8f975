package audio

import (
	"errors"
	"strings"
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ErrPermissionDenied marks a capture failure whose remedy is granting
// OS microphone permission, not retrying.
var ErrPermissionDenied = errors.New("microphone permission denied")

// IsPermissionError reports whether err looks like an OS-level input
// permission denial. Platform backends report these with different
// wording; the classification here keeps callers out of the substring
// business.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") ||
		strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "access denied")
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	NewOutput(config OutputConfig) (OutputStream, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

type OutputConfig struct {
	SampleRate uint32
	Channels   uint32
}

// SampleSource feeds an output stream. It fills buf with interleaved
// PCM16 samples and returns how many it wrote; returning 0 ends the
// stream.
type SampleSource func(buf []int16) int

// OutputStream is one live playback stream. Start blocks until the
// source returns 0 and the backend has drained, or until Close tears
// the stream down from another goroutine. The source callback runs on
// the backend's audio goroutine.
type OutputStream interface {
	Start(source SampleSource) error
	Close()
}
