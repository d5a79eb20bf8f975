package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"default_model":"llama3","tts_enabled":true,"tts_engine":"edge","tts_voice":"en-US-AriaNeural"}`))
	})
	mux.HandleFunc("GET /api/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":["llama3","mistral"],"current":"llama3"}`))
	})
	mux.HandleFunc("POST /api/test-connection", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchRemoteConfig(t *testing.T) {
	srv := newBackend(t)
	c := NewClient(srv.URL)

	remote, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if remote.DefaultModel != "llama3" || !remote.TTSEnabled {
		t.Errorf("remote = %+v", remote)
	}
	if remote.TTSVoice != "en-US-AriaNeural" {
		t.Errorf("TTSVoice = %q", remote.TTSVoice)
	}
}

func TestModels(t *testing.T) {
	srv := newBackend(t)
	c := NewClient(srv.URL + "/") // trailing slash must not double up

	list, err := c.Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(list.Models) != 2 || list.Current != "llama3" {
		t.Errorf("models = %+v", list)
	}
}

func TestTestConnectionMetrics(t *testing.T) {
	srv := newBackend(t)
	c := NewClient(srv.URL)

	m, err := c.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if m == nil {
		t.Fatal("no metrics returned")
	}
	if m.Total <= 0 {
		t.Errorf("Total = %v, want > 0", m.Total)
	}
	if m.TTFB < 0 || m.ConnWait < 0 {
		t.Errorf("negative phases: %+v", m)
	}
}

func TestBackendErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("Fetch swallowed a 500")
	}
	if _, err := c.TestConnection(context.Background()); err == nil {
		t.Error("TestConnection swallowed a 500")
	}
}
