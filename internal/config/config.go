package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "vesper"
	DefaultPGSSLMode    = "disable"

	DefaultOllamaBaseURL     = "http://localhost:11434"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

	DefaultOllamaModel     = "llama2"
	DefaultOpenAIModel     = "gpt-3.5-turbo"
	DefaultOpenRouterModel = "openai/gpt-3.5-turbo"

	DefaultHistoryWindow = 15
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Storage   StorageConfig   `toml:"storage"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Providers ProvidersConfig `toml:"providers"`
	Chat      ChatConfig      `toml:"chat"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// StorageConfig selects the store backend: "postgres" (default) or
// "memory" for local development without a database.
type StorageConfig struct {
	Backend string `toml:"backend"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type ProvidersConfig struct {
	Ollama     OllamaConfig   `toml:"ollama"`
	OpenAI     ProviderConfig `toml:"openai"`
	OpenRouter ProviderConfig `toml:"openrouter"`
}

type OllamaConfig struct {
	BaseURL      string `toml:"base_url"`
	DefaultModel string `toml:"default_model"`
}

type ProviderConfig struct {
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	DefaultModel string `toml:"default_model"`
}

type ChatConfig struct {
	// HistoryWindow caps the session-local history kept between turns,
	// counted in messages, newest kept.
	HistoryWindow int    `toml:"history_window"`
	SystemPrompt  string `toml:"system_prompt"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Storage: StorageConfig{
			Backend: "postgres",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Providers: ProvidersConfig{
			Ollama: OllamaConfig{
				BaseURL:      DefaultOllamaBaseURL,
				DefaultModel: DefaultOllamaModel,
			},
			OpenAI: ProviderConfig{
				DefaultModel: DefaultOpenAIModel,
			},
			OpenRouter: ProviderConfig{
				BaseURL:      DefaultOpenRouterBaseURL,
				DefaultModel: DefaultOpenRouterModel,
			},
		},
		Chat: ChatConfig{
			HistoryWindow: DefaultHistoryWindow,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
