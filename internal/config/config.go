// Package config loads service configuration from a JSON config file
// and environment variables.
package config

import "os"

type Config struct {
	Server  ServerConfig
	Groq    GroqConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port        int
	Environment string
}

type GroqConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        5000,
			Environment: "development",
		},
		Groq: GroqConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/cineai/config.json and applies CINEAI_* environment
// overrides. A missing Groq API key is not an error: the recommendation
// endpoint degrades while every other endpoint keeps working.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// The bare GROQ_API_KEY name is also accepted for deployments that
	// already export it.
	if cfg.Groq.APIKey == "" {
		cfg.Groq.APIKey = os.Getenv("GROQ_API_KEY")
	}

	return cfg, nil
}
