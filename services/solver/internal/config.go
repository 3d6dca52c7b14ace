package internal

import (
	"os"
	"strconv"
	"time"

	"github.com/forge-ai/solver/services/solver/internal/pipeline"
	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/forge-ai/solver/services/solver/internal/screenshot"
)

type Config struct {
	APIPort        string
	AMQPURL        string
	Provider       string
	OpenAIKey      string
	GeminiKey      string
	AnthropicKey   string
	Models         provider.Models
	Language       string
	MaxImageEdge   int
	RequestTimeout time.Duration
	SettingsFile   string
}

func ConfigFromEnv() Config {
	return Config{
		APIPort:      env("API_PORT", "8090"),
		AMQPURL:      env("AMQP_URL", ""),
		Provider:     env("AI_PROVIDER", string(provider.OpenAI)),
		OpenAIKey:    env("OPENAI_API_KEY", ""),
		GeminiKey:    env("GEMINI_API_KEY", ""),
		AnthropicKey: env("ANTHROPIC_API_KEY", ""),
		Models: provider.Models{
			Extraction: env("EXTRACTION_MODEL", ""),
			Solution:   env("SOLUTION_MODEL", ""),
			Debugging:  env("DEBUGGING_MODEL", ""),
		},
		Language:       env("LANGUAGE", pipeline.DefaultLanguage),
		MaxImageEdge:   envInt("MAX_IMAGE_EDGE", screenshot.DefaultMaxEdge),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 120*time.Second),
		SettingsFile:   env("SETTINGS_FILE", ""),
	}
}

// KeyFor returns the configured credential for a provider.
func (c Config) KeyFor(name provider.Name) string {
	switch name {
	case provider.Gemini:
		return c.GeminiKey
	case provider.Anthropic:
		return c.AnthropicKey
	default:
		return c.OpenAIKey
	}
}

// Settings is the registry configuration the environment describes.
func (c Config) Settings() provider.Settings {
	name := provider.Name(c.Provider)
	if n, err := provider.ParseName(c.Provider); err == nil {
		name = n
	}
	return provider.Settings{Provider: name, APIKey: c.KeyFor(name), Models: c.Models}
}

func (c Config) ProviderOptions() provider.Options {
	opts := provider.DefaultOptions()
	opts.Timeout = c.RequestTimeout
	return opts
}

// NewRegistry builds a registry configured from c. A missing credential is
// not an error here; runs report it.
func NewRegistry(c Config) (*provider.Registry, error) {
	r := provider.NewRegistry(c.ProviderOptions())
	if err := r.Configure(c.Settings()); err != nil {
		return nil, err
	}
	return r, nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		n, _ := strconv.Atoi(v)
		if n > 0 {
			return n
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
