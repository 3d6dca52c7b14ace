package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// settingsFile is the on-disk shape of SETTINGS_FILE:
//
//	provider: gemini
//	api_keys:
//	  gemini: AIza...
//	models:
//	  solution: gemini-2.5-pro
type settingsFile struct {
	Provider string            `yaml:"provider"`
	APIKeys  map[string]string `yaml:"api_keys"`
	Models   provider.Models   `yaml:"models"`
}

// LoadSettings reads path and layers it over the environment config. Fields
// the file leaves empty fall back to base.
func LoadSettings(path string, base Config) (provider.Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return provider.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var f settingsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return provider.Settings{}, fmt.Errorf("parse settings %s: %w", filepath.Base(path), err)
	}

	cfg := base
	if f.Provider != "" {
		cfg.Provider = f.Provider
	}
	for name, key := range f.APIKeys {
		switch provider.Name(strings.ToLower(name)) {
		case provider.OpenAI:
			cfg.OpenAIKey = key
		case provider.Gemini:
			cfg.GeminiKey = key
		case provider.Anthropic:
			cfg.AnthropicKey = key
		default:
			log.Warn().Str("provider", name).Msg("ignoring key for unknown provider in settings")
		}
	}
	if f.Models.Extraction != "" {
		cfg.Models.Extraction = f.Models.Extraction
	}
	if f.Models.Solution != "" {
		cfg.Models.Solution = f.Models.Solution
	}
	if f.Models.Debugging != "" {
		cfg.Models.Debugging = f.Models.Debugging
	}
	return cfg.Settings(), nil
}

const settingsDebounce = 200 * time.Millisecond

// WatchSettings pushes the settings in path onto updates once at start and
// again after every change, until ctx ends. The directory is watched rather
// than the file so editors that save by rename are picked up.
func WatchSettings(ctx context.Context, path string, base Config, updates chan<- provider.Settings) error {
	push := func() {
		s, err := LoadSettings(path, base)
		if err != nil {
			log.Error().Str("error", provider.Redact(err.Error())).Msg("settings reload failed")
			return
		}
		select {
		case updates <- s:
			log.Info().Str("file", path).Str("provider", string(s.Provider)).Msg("settings loaded")
		case <-ctx.Done():
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	push()

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				reload = time.After(settingsDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("settings watcher error")
		case <-reload:
			reload = nil
			push()
		}
	}
}
