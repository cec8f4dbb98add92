package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent groups a hand-off can route to.
const (
	GroupHRAdvisor     = "AgenticHRAdvisor"
	GroupContactCenter = "AgenticContactCenter"
)

// Config carries every tunable the chat core needs. Defaults mirror the
// workforce-agent backend's current behavior; the marker literal and the
// terminal phrases are configuration because the backend owns their exact
// wording.
type Config struct {
	BaseURL      string `yaml:"base_url"`
	WSBaseURL    string `yaml:"ws_base_url"`
	StoreBaseURL string `yaml:"store_base_url"`

	TokenAuthorization string `yaml:"token_authorization"`
	AgentToken         string `yaml:"agent_token"`
	Timezone           string `yaml:"timezone"`

	HandoffMarker   string   `yaml:"handoff_marker"`
	FramingPrefix   string   `yaml:"framing_prefix"`
	TerminalPhrases []string `yaml:"terminal_phrases"`

	TokenTTL       time.Duration `yaml:"token_ttl"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	WordDelay      time.Duration `yaml:"word_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	ShortResponseBytes int `yaml:"short_response_bytes"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		BaseURL:            "https://workforceagent.example.com",
		WSBaseURL:          "wss://workforceagent.example.com/ws",
		StoreBaseURL:       "https://workforceagent.example.com/api",
		AgentToken:         "vaacubed",
		Timezone:           "America/New_York",
		HandoffMarker:      "<<LiveAgent>>",
		FramingPrefix:      "id:",
		TerminalPhrases:    []string{"no agents available", "please try again later", "your chat with the live agent has ended"},
		TokenTTL:           3 * time.Hour,
		IdleTimeout:        19 * time.Minute,
		WordDelay:          5 * time.Millisecond,
		RequestTimeout:     30 * time.Second,
		ShortResponseBytes: 50,
	}
}

// Load reads a yaml file over the defaults. A missing path returns the
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv lets environment variables override the endpoints, which is how
// deployments differ (qa vs prod).
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PULSE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("PULSE_WS_BASE_URL"); v != "" {
		c.WSBaseURL = v
	}
	if v := os.Getenv("PULSE_STORE_BASE_URL"); v != "" {
		c.StoreBaseURL = v
	}
	if v := os.Getenv("PULSE_TOKEN_AUTHORIZATION"); v != "" {
		c.TokenAuthorization = v
	}
}
