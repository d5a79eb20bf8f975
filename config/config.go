package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type TTS struct {
	Enabled bool   `toml:"enabled"`
	Engine  string `toml:"engine"`
	Voice   string `toml:"voice"`
}

type Config struct {
	Server       string  `toml:"server"`
	Model        string  `toml:"model"`
	Mode         string  `toml:"mode"`
	Device       string  `toml:"device"`
	Temperature  float64 `toml:"temperature"`
	MaxTokens    int     `toml:"max_tokens"`
	SystemPrompt string  `toml:"system_prompt"`
	TTS          TTS     `toml:"tts"`
}

func Default() *Config {
	return &Config{
		Server:      "http://localhost:5000",
		Mode:        "ptt",
		Temperature: 0.7,
		MaxTokens:   1024,
		TTS: TTS{
			Enabled: true,
			Engine:  "edge",
		},
	}
}

// Load reads the TOML config file. An empty path falls back to the
// ASSISTEDVOICE_CONFIG environment variable, then the per-user config
// dir; a missing file at the default location just yields defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("ASSISTEDVOICE_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Default(), nil
		}
		path = filepath.Join(dir, "assistedvoice", "config.toml")
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || u.Host == "" {
		return fmt.Errorf("server %q is not a valid URL", c.Server)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("server scheme %q not supported", u.Scheme)
	}
	switch c.Mode {
	case "ptt", "push-to-talk", "continuous", "smart", "smart-pause":
	default:
		return fmt.Errorf("unknown capture mode %q", c.Mode)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0, 2]", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}
