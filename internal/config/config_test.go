package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// memBackend is an in-memory Backend for tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strings: make(map[string]string), ints: make(map[string]int)}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *memBackend) SetString(key, val string) error {
	b.strings[key] = val
	return nil
}

func (b *memBackend) SetInt(key string, val int) error {
	b.ints[key] = val
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
	t.Setenv("GROQ_API_KEY", "")
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.Environment != "development" {
		t.Errorf("Server.Environment = %q, want %q", cfg.Server.Environment, "development")
	}
	if cfg.Groq.BaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("Groq.BaseURL = %q, want default", cfg.Groq.BaseURL)
	}
	if cfg.Groq.Model != "llama-3.3-70b-versatile" {
		t.Errorf("Groq.Model = %q, want default", cfg.Groq.Model)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

// TestMissingAPIKeyNotFatal: without a Groq key the config still loads,
// the recommendation endpoint degrades at runtime instead.
func TestMissingAPIKeyNotFatal(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Groq.APIKey != "" {
		t.Errorf("Groq.APIKey = %q, want empty", cfg.Groq.APIKey)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMemBackend()
	b.ints["server.port"] = 8080
	b.strings["groq.model"] = "mixtral-8x7b"
	b.strings["log.level"] = "debug"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Groq.Model != "mixtral-8x7b" {
		t.Errorf("Groq.Model = %q, want %q", cfg.Groq.Model, "mixtral-8x7b")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)

	b := newMemBackend()
	b.ints["server.port"] = 8080
	b.strings["groq.api_key"] = "file-key"

	t.Setenv("CINEAI_SERVER_PORT", "9090")
	t.Setenv("CINEAI_GROQ_API_KEY", "env-key")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want env override 9090", cfg.Server.Port)
	}
	if cfg.Groq.APIKey != "env-key" {
		t.Errorf("Groq.APIKey = %q, want env override", cfg.Groq.APIKey)
	}
}

func TestBareGroqKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "bare-key")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Groq.APIKey != "bare-key" {
		t.Errorf("Groq.APIKey = %q, want bare env fallback", cfg.Groq.APIKey)
	}
}

// The prefixed variable wins over the bare GROQ_API_KEY.
func TestPrefixedKeyBeatsBare(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "bare-key")
	t.Setenv("CINEAI_GROQ_API_KEY", "prefixed-key")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Groq.APIKey != "prefixed-key" {
		t.Errorf("Groq.APIKey = %q, want prefixed key", cfg.Groq.APIKey)
	}
}

func TestBadIntEnvFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("CINEAI_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want default 5000", cfg.Server.Port)
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Groq.APIKey = "super-secret"

	var found bool
	for _, k := range ShowAll(cfg) {
		if k.Key == "groq.api_key" {
			found = true
			if strings.Contains(k.Value, "super-secret") {
				t.Errorf("secret leaked in ShowAll: %q", k.Value)
			}
			if k.Value != "(set)" {
				t.Errorf("Value = %q, want %q", k.Value, "(set)")
			}
		}
	}
	if !found {
		t.Error("groq.api_key missing from ShowAll")
	}
}

func TestShowAll_UnsetSecret(t *testing.T) {
	for _, k := range ShowAll(defaults()) {
		if k.Key == "groq.api_key" && k.Value != "(not set)" {
			t.Errorf("Value = %q, want %q", k.Value, "(not set)")
		}
	}
}

func TestSetKey_RoundTrip(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetKey("groq.model", "mixtral-8x7b"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey("server.port", "8080"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Groq.Model != "mixtral-8x7b" {
		t.Errorf("Groq.Model = %q, want round-tripped value", cfg.Groq.Model)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}

	// File is created with owner-only permissions.
	path := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "cineai", "config.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %o, want 600", info.Mode().Perm())
	}
}

func TestSetKey_RejectsSecret(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	err := SetKey("groq.api_key", "leaked")
	if err == nil {
		t.Fatal("expected error when setting a secret via config file")
	}
	if !strings.Contains(err.Error(), "CINEAI_GROQ_API_KEY") {
		t.Errorf("error = %q, want pointer to env var", err.Error())
	}
}

func TestSetKey_UnknownKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetKey("nope.nothing", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetKey_BadInt(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetKey("server.port", "not-a-number"); err == nil {
		t.Fatal("expected error for non-integer port")
	}
}
