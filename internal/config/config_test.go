package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
	t.Setenv("ANTHROPIC_API_KEY", "")
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Store.Backend != BackendRemote {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendRemote)
	}
	if cfg.Store.Timeout() != 25*time.Second {
		t.Errorf("Store.Timeout() = %v, want 25s", cfg.Store.Timeout())
	}
	if cfg.LLM.Model != "claude-sonnet-4-20250514" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens != 1000 {
		t.Errorf("LLM.MaxTokens = %d, want 1000", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.HasLLM() {
		t.Error("HasLLM() = true with no key configured")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

// TestFileParsing verifies that all fields are correctly read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{
		"server.host": "0.0.0.0",
		"server.port": 8080,
		"server.public_url": "https://capsule.example.com/",
		"storage.data_dir": "/tmp/capsule-test",
		"store.backend": "memory",
		"store.load_timeout": "3s",
		"llm.model": "claude-test",
		"llm.max_tokens": "500",
		"log.level": "debug"
	}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if got := cfg.Server.Origin(); got != "https://capsule.example.com" {
		t.Errorf("Server.Origin() = %q", got)
	}
	if cfg.Storage.DataDir != "/tmp/capsule-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %q", cfg.Store.Backend)
	}
	if cfg.Store.Timeout() != 3*time.Second {
		t.Errorf("Store.Timeout() = %v", cfg.Store.Timeout())
	}
	if cfg.LLM.Model != "claude-test" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens != 500 {
		t.Errorf("LLM.MaxTokens = %d", cfg.LLM.MaxTokens)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 8080}`)

	t.Setenv("CAPSULE_SERVER_PORT", "9090")
	t.Setenv("CAPSULE_ANTHROPIC_API_KEY", "env-key")

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.LLM.AnthropicAPIKey != "env-key" {
		t.Errorf("AnthropicAPIKey = %q, want %q", cfg.LLM.AnthropicAPIKey, "env-key")
	}
}

// TestSecretIgnoredInFile verifies the API key is never read from the config file.
func TestSecretIgnoredInFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"llm.anthropic_api_key": "file-key"}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.AnthropicAPIKey != "" {
		t.Errorf("AnthropicAPIKey = %q, want empty", cfg.LLM.AnthropicAPIKey)
	}
}

// TestAnthropicKeyFallback verifies the conventional ANTHROPIC_API_KEY is honoured.
func TestAnthropicKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "plain-key")

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.AnthropicAPIKey != "plain-key" {
		t.Errorf("AnthropicAPIKey = %q, want %q", cfg.LLM.AnthropicAPIKey, "plain-key")
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"backend": `{"store.backend": "cloud"}`,
		"timeout": `{"store.load_timeout": "soon"}`,
		"port":    `{"server.port": 70000}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(newFileBackend(writeTempConfig(t, content)))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "capsule", "config.json")
	b := newFileBackend(path)

	if err := setKeyWith(b, "server.port", "7000"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if err := setKeyWith(b, "store.backend", "memory"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %q", cfg.Store.Backend)
	}

	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	err = setKeyWith(b, "llm.anthropic_api_key", "x")
	if err == nil || !strings.Contains(err.Error(), "CAPSULE_ANTHROPIC_API_KEY") {
		t.Errorf("secret key error = %v", err)
	}
	if err := setKeyWith(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.AnthropicAPIKey = "hidden"

	for _, info := range ShowAll(cfg) {
		if info.Key == "llm.anthropic_api_key" || info.Value == "hidden" {
			t.Errorf("ShowAll exposed secret: %+v", info)
		}
	}
	for _, k := range ValidKeys() {
		if k == "llm.anthropic_api_key" {
			t.Error("ValidKeys lists the secret key")
		}
	}
}

func TestServerOrigin(t *testing.T) {
	s := ServerConfig{Host: "0.0.0.0", Port: 5000}
	if got := s.Origin(); got != "http://localhost:5000" {
		t.Errorf("Origin() = %q", got)
	}
	if got := s.Addr(); got != "0.0.0.0:5000" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestFileBackendDropsAPIKeys(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"llm.anthropic_api_key": "sk-file", "ANTHROPIC_API_KEY": "sk-bare", "server.port": "6001"}`)

	b := newFileBackend(path)
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.AnthropicAPIKey != "" {
		t.Errorf("AnthropicAPIKey = %q, want it ignored from the file", cfg.LLM.AnthropicAPIKey)
	}
	if cfg.Server.Port != 6001 {
		t.Errorf("Server.Port = %d, want 6001 from a quoted value", cfg.Server.Port)
	}

	if err := setKeyWith(b, "log.level", "debug"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "sk-") {
		t.Errorf("saved config still holds an API key:\n%s", raw)
	}
	if err := b.SetString("anthropic_api_key", "sk-new"); err == nil {
		t.Error("expected SetString to refuse an API key")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("config dir has %d entries, want only config.json", len(entries))
	}
}
