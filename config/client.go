package config

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"
)

// NetworkMetrics breaks one request down by connection phase so the
// status view can show where connection time goes.
type NetworkMetrics struct {
	DNS        time.Duration
	TCP        time.Duration
	TLS        time.Duration
	ConnWait   time.Duration
	ReqHeaders time.Duration
	ReqBody    time.Duration
	TTFB       time.Duration
	Download   time.Duration
	Total      time.Duration
	ConnReused bool
}

// Client talks to the backend's REST side: server-pushed defaults,
// the model list, and connection probing.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
			Timeout: 15 * time.Second,
		},
	}
}

// Remote is the server-advertised default configuration from GET /config.
type Remote struct {
	DefaultModel string `json:"default_model"`
	TTSEnabled   bool   `json:"tts_enabled"`
	TTSEngine    string `json:"tts_engine"`
	TTSVoice     string `json:"tts_voice"`
}

type ModelList struct {
	Models  []string `json:"models"`
	Current string   `json:"current"`
}

func (c *Client) Fetch(ctx context.Context) (*Remote, error) {
	var out Remote
	if _, err := c.getJSON(ctx, "/config", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Models(ctx context.Context) (*ModelList, error) {
	var out ModelList
	if _, err := c.getJSON(ctx, "/api/models", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestConnection probes the backend and returns the phase breakdown.
func (c *Client) TestConnection(ctx context.Context) (*NetworkMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/test-connection", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("test-connection: backend returned %d", resp.StatusCode)
	}
	return resp.Metrics, nil
}

type tracedResponse struct {
	Body       []byte
	StatusCode int
	Metrics    *NetworkMetrics
}

func (c *Client) getJSON(ctx context.Context, path string, out any) (*NetworkMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: backend returned %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return resp.Metrics, nil
}

func (c *Client) do(req *http.Request) (*tracedResponse, error) {
	metrics := &NetworkMetrics{}
	var getConnStart, dnsStart, tcpStart, tlsStart time.Time
	var gotConn, wroteHeaders, wroteRequest, firstByte time.Time

	trace := &httptrace.ClientTrace{
		GetConn: func(_ string) { getConnStart = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			gotConn = time.Now()
			metrics.ConnWait = gotConn.Sub(getConnStart)
			metrics.ConnReused = info.Reused
		},
		DNSStart:          func(_ httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(_ httptrace.DNSDoneInfo) { metrics.DNS = time.Since(dnsStart) },
		ConnectStart:      func(_, _ string) { tcpStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { metrics.TCP = time.Since(tcpStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone:  func(_ tls.ConnectionState, _ error) { metrics.TLS = time.Since(tlsStart) },
		WroteHeaders: func() {
			wroteHeaders = time.Now()
			metrics.ReqHeaders = wroteHeaders.Sub(gotConn)
		},
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			wroteRequest = time.Now()
			metrics.ReqBody = wroteRequest.Sub(wroteHeaders)
		},
		GotFirstResponseByte: func() {
			firstByte = time.Now()
			metrics.TTFB = firstByte.Sub(wroteRequest)
		},
	}

	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	reqStart := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !firstByte.IsZero() {
		metrics.Download = time.Since(firstByte)
	}
	metrics.Total = time.Since(reqStart)

	return &tracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Metrics:    metrics,
	}, nil
}
