package encoder

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Audio crosses the transport as base64 data URLs, matching what the
// backend emits for synthesized speech and expects for uploads.

var mimeByFormat = map[string]string{
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
}

func DataURL(format string, payload []byte) string {
	mime, ok := mimeByFormat[format]
	if !ok {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

// ParseDataURL splits a base64 data URL into its MIME type and decoded
// payload.
func ParseDataURL(u string) (mime string, payload []byte, err error) {
	if !strings.HasPrefix(u, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}
	rest := u[len("data:"):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("malformed data URL: no comma")
	}
	meta := rest[:comma]
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("data URL is not base64-encoded")
	}
	mime = strings.TrimSuffix(meta, ";base64")
	payload, err = base64.StdEncoding.DecodeString(rest[comma+1:])
	if err != nil {
		return "", nil, fmt.Errorf("decoding data URL payload: %w", err)
	}
	return mime, payload, nil
}
