package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CurrentVersion is the schema written by Save. Versions 1 through 3
// all load; old files are migrated on read, never rewritten in place.
const CurrentVersion = 3

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Conversation struct {
	ID       string
	Title    string
	Model    string
	Created  time.Time
	Updated  time.Time
	Messages []Message
}

// Summary is one row of the conversation list.
type Summary struct {
	ID       string
	Title    string
	Updated  time.Time
	Messages int
}

// Store persists conversations as one JSON file per conversation.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

type envelope struct {
	Version  int       `json:"version"`
	Title    string    `json:"title,omitempty"`
	Model    string    `json:"model,omitempty"`
	Created  time.Time `json:"created_at,omitempty"`
	Updated  time.Time `json:"updated_at,omitempty"`
	Messages []Message `json:"messages"`
}

// Save writes the conversation at the current schema version. The
// write goes through a temp file so a crash never truncates history.
func (s *Store) Save(c *Conversation) error {
	if c.ID == "" {
		return fmt.Errorf("conversation has no id")
	}
	env := envelope{
		Version:  CurrentVersion,
		Title:    c.Title,
		Model:    c.Model,
		Created:  c.Created,
		Updated:  c.Updated,
		Messages: c.Messages,
	}
	if env.Updated.IsZero() {
		env.Updated = time.Now()
	}
	if env.Created.IsZero() {
		env.Created = env.Updated
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}

	tmp := s.path(c.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing conversation: %w", err)
	}
	if err := os.Rename(tmp, s.path(c.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing conversation: %w", err)
	}
	return nil
}

// Load reads a conversation saved at any supported schema version.
func (s *Store) Load(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	c, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	c.ID = id
	return c, nil
}

func decode(data []byte) (*Conversation, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty conversation file")
	}

	// version 1 was a bare message array with no envelope
	if trimmed[0] == '[' {
		var msgs []Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("decoding v1 conversation: %w", err)
		}
		return &Conversation{Messages: msgs}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	if env.Version < 2 || env.Version > CurrentVersion {
		return nil, fmt.Errorf("unsupported history schema version %d", env.Version)
	}
	return &Conversation{
		Title:    env.Title,
		Model:    env.Model,
		Created:  env.Created,
		Updated:  env.Updated,
		Messages: env.Messages,
	}, nil
}

// List returns summaries of every stored conversation, newest first.
// Unreadable files are skipped rather than failing the whole list.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading history dir: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		c, err := s.Load(id)
		if err != nil {
			continue
		}
		out = append(out, Summary{
			ID:       id,
			Title:    titleFor(c),
			Updated:  c.Updated,
			Messages: len(c.Messages),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Updated.After(out[j].Updated) })
	return out, nil
}

func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

const titleMax = 48

// titleFor falls back to the first user message for conversations
// saved before titles existed.
func titleFor(c *Conversation) string {
	if c.Title != "" {
		return c.Title
	}
	for _, m := range c.Messages {
		if m.Role != "user" {
			continue
		}
		t := strings.TrimSpace(m.Content)
		if len(t) > titleMax {
			t = t[:titleMax] + "…"
		}
		if t != "" {
			return t
		}
	}
	return "(untitled)"
}
