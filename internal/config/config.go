package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Store   StoreConfig
	LLM     LLMConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host string
	Port int
	// PublicURL is the origin used in share links. Empty means the listen address.
	PublicURL string
}

type StorageConfig struct {
	DataDir string
}

// StoreConfig selects the backend the page's memory store talks to.
type StoreConfig struct {
	// Backend is "remote" (HTTP against RemoteURL) or "memory" (process-local).
	Backend string
	// RemoteURL is the REST service base. Empty means this server's own API.
	RemoteURL   string
	LoadTimeout string
}

type LLMConfig struct {
	Model           string
	MaxTokens       int
	BaseURL         string
	AnthropicAPIKey string
}

type LogConfig struct {
	Level string
}

const (
	BackendRemote = "remote"
	BackendMemory = "memory"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Store: StoreConfig{
			Backend:     BackendRemote,
			LoadTimeout: "25s",
		},
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/capsule/config.json, then applies CAPSULE_* environment
// overrides. The Anthropic key is a secret and is read from the environment
// only (CAPSULE_ANTHROPIC_API_KEY, falling back to ANTHROPIC_API_KEY).
//
// A missing key is not an error: discovery then answers with canned insights.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.AnthropicAPIKey == "" {
		cfg.LLM.AnthropicAPIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case BackendRemote, BackendMemory:
	default:
		return fmt.Errorf("invalid store.backend %q: want %q or %q", c.Store.Backend, BackendRemote, BackendMemory)
	}
	if _, err := time.ParseDuration(c.Store.LoadTimeout); err != nil {
		return fmt.Errorf("invalid store.load_timeout %q: %w", c.Store.LoadTimeout, err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("invalid llm.max_tokens %d", c.LLM.MaxTokens)
	}
	return nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Origin returns the public origin, without a trailing slash.
func (s ServerConfig) Origin() string {
	if s.PublicURL != "" {
		return strings.TrimRight(s.PublicURL, "/")
	}
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// Timeout returns the parsed load timeout. Load has already validated it.
func (s StoreConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(s.LoadTimeout)
	if err != nil {
		return 25 * time.Second
	}
	return d
}

// HasLLM reports whether an Anthropic key is configured.
func (l LLMConfig) HasLLM() bool {
	return l.AnthropicAPIKey != ""
}
