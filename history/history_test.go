package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var wantMessages = []Message{
	{Role: "user", Content: "what's the weather like"},
	{Role: "assistant", Content: "I don't have live weather data."},
	{Role: "user", Content: "fine, tell me a joke"},
}

func writeFixture(t *testing.T, dir, id, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAllSchemaVersions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	writeFixture(t, dir, "v1", `[
		{"role":"user","content":"what's the weather like"},
		{"role":"assistant","content":"I don't have live weather data."},
		{"role":"user","content":"fine, tell me a joke"}
	]`)
	writeFixture(t, dir, "v2", `{
		"version": 2,
		"messages": [
			{"role":"user","content":"what's the weather like"},
			{"role":"assistant","content":"I don't have live weather data."},
			{"role":"user","content":"fine, tell me a joke"}
		]
	}`)
	writeFixture(t, dir, "v3", `{
		"version": 3,
		"title": "weather chat",
		"model": "llama3",
		"created_at": "2026-08-30T10:00:00Z",
		"updated_at": "2026-08-30T10:05:00Z",
		"messages": [
			{"role":"user","content":"what's the weather like"},
			{"role":"assistant","content":"I don't have live weather data."},
			{"role":"user","content":"fine, tell me a joke"}
		]
	}`)

	for _, id := range []string{"v1", "v2", "v3"} {
		c, err := store.Load(id)
		if err != nil {
			t.Fatalf("Load(%s): %v", id, err)
		}
		if len(c.Messages) != len(wantMessages) {
			t.Fatalf("Load(%s): %d messages, want %d", id, len(c.Messages), len(wantMessages))
		}
		for i, m := range c.Messages {
			if m != wantMessages[i] {
				t.Errorf("Load(%s) message %d = %+v, want %+v", id, i, m, wantMessages[i])
			}
		}
	}

	v3, _ := store.Load("v3")
	if v3.Title != "weather chat" || v3.Model != "llama3" {
		t.Errorf("v3 metadata = %q/%q, want weather chat/llama3", v3.Title, v3.Model)
	}
}

func TestSaveWritesCurrentVersionAndRoundTrips(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	orig := &Conversation{
		ID:       "abc",
		Title:    "a chat",
		Model:    "llama3",
		Created:  time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		Updated:  time.Date(2026, 8, 30, 10, 5, 0, 0, time.UTC),
		Messages: wantMessages,
	}
	if err := store.Save(orig); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(store.path("abc"))
	if err != nil {
		t.Fatal(err)
	}
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		t.Fatal(err)
	}
	if probe.Version != CurrentVersion {
		t.Errorf("saved version = %d, want %d", probe.Version, CurrentVersion)
	}

	got, err := store.Load("abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Title != orig.Title || got.Model != orig.Model {
		t.Errorf("metadata = %q/%q, want %q/%q", got.Title, got.Model, orig.Title, orig.Model)
	}
	if len(got.Messages) != len(orig.Messages) {
		t.Fatalf("%d messages, want %d", len(got.Messages), len(orig.Messages))
	}
	for i := range got.Messages {
		if got.Messages[i] != orig.Messages[i] {
			t.Errorf("message %d = %+v, want %+v", i, got.Messages[i], orig.Messages[i])
		}
	}
}

func TestListNewestFirstWithTitleFallback(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	old := &Conversation{
		ID:       "old",
		Updated:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Messages: []Message{{Role: "user", Content: "first question"}},
	}
	recent := &Conversation{
		ID:       "recent",
		Title:    "named",
		Updated:  time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		Messages: wantMessages,
	}
	if err := store.Save(old); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(recent); err != nil {
		t.Fatal(err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(list))
	}
	if list[0].ID != "recent" || list[1].ID != "old" {
		t.Errorf("order = %s, %s; want recent, old", list[0].ID, list[1].ID)
	}
	if list[0].Title != "named" {
		t.Errorf("title = %q, want %q", list[0].Title, "named")
	}
	if list[1].Title != "first question" {
		t.Errorf("fallback title = %q, want first user message", list[1].Title)
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	writeFixture(t, dir, "future", `{"version": 9, "messages": []}`)
	if _, err := store.Load("future"); err == nil {
		t.Error("Load accepted an unknown future schema")
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("nope"); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
}
