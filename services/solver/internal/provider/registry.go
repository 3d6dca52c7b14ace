package provider

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Models holds the model identifier used for each kind of call.
type Models struct {
	Extraction string `json:"extraction" yaml:"extraction"`
	Solution   string `json:"solution" yaml:"solution"`
	Debugging  string `json:"debugging" yaml:"debugging"`
}

// DefaultModels returns the per-category defaults for a provider.
func DefaultModels(name Name) Models {
	switch name {
	case Gemini:
		return Models{"gemini-2.0-flash", "gemini-2.0-flash", "gemini-2.0-flash"}
	case Anthropic:
		return Models{"claude-3-7-sonnet-20250219", "claude-3-7-sonnet-20250219", "claude-3-7-sonnet-20250219"}
	default:
		return Models{"gpt-4o", "gpt-4o", "gpt-4o"}
	}
}

func (m Models) withDefaults(name Name) Models {
	def := DefaultModels(name)
	if strings.TrimSpace(m.Extraction) == "" {
		m.Extraction = def.Extraction
	}
	if strings.TrimSpace(m.Solution) == "" {
		m.Solution = def.Solution
	}
	if strings.TrimSpace(m.Debugging) == "" {
		m.Debugging = def.Debugging
	}
	return m
}

// Settings is what the configuration collaborator pushes to the registry.
type Settings struct {
	Provider Name   `json:"provider" yaml:"provider"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	Models   Models `json:"models" yaml:"models"`
}

// Binding is an immutable snapshot of the active client. A run captures one
// at start and keeps using it even if the registry is reconfigured.
type Binding struct {
	Provider Name
	Client   Provider
	Models   Models
	KeyHint  string
}

// Factory builds a Provider. Tests swap it for a fake.
type Factory func(ctx context.Context, name Name, apiKey string, opts Options) (Provider, error)

// Registry holds at most one live client for the configured provider and
// rebuilds it when provider, credential or models change.
type Registry struct {
	opts    Options
	factory Factory

	mu       sync.RWMutex
	applied  bool
	settings Settings
	binding  *Binding
	err      *Error
}

// NewRegistry creates an unconfigured registry using the real SDK adapters.
func NewRegistry(opts Options) *Registry {
	return NewRegistryWithFactory(opts, New)
}

// NewRegistryWithFactory creates an unconfigured registry with a custom
// client factory.
func NewRegistryWithFactory(opts Options, factory Factory) *Registry {
	return &Registry{
		opts:    opts,
		factory: factory,
		err:     Errorf(KindConfiguration, "", "provider not configured"),
	}
}

// Configure applies new settings. Unchanged settings keep the current client.
// A missing credential leaves the registry without an active client.
func (r *Registry) Configure(s Settings) error {
	name, err := ParseName(string(s.Provider))
	if err != nil {
		cfgErr := &Error{Kind: KindConfiguration, Provider: s.Provider, Err: err}
		r.mu.Lock()
		r.applied = false
		r.settings, r.binding, r.err = s, nil, cfgErr
		r.mu.Unlock()
		return cfgErr
	}
	s.Provider = name
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.Models = s.Models.withDefaults(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.applied && s == r.settings {
		return nil
	}
	r.applied = true
	r.settings = s

	if s.APIKey == "" {
		r.binding = nil
		r.err = Errorf(KindConfiguration, name, "no API key configured for %s", name)
		log.Warn().Str("provider", string(name)).Msg("provider credential missing, client cleared")
		return nil
	}

	client, err := r.factory(context.Background(), name, s.APIKey, r.opts)
	if err != nil {
		r.applied = false
		r.binding = nil
		r.err = &Error{Kind: KindConfiguration, Provider: name, Err: err}
		log.Error().Str("provider", string(name)).Str("error", Redact(err.Error())).Msg("provider client build failed")
		return r.err
	}

	r.binding = &Binding{
		Provider: name,
		Client:   client,
		Models:   s.Models,
		KeyHint:  MaskKey(s.APIKey),
	}
	r.err = nil
	log.Info().
		Str("provider", string(name)).
		Str("key", r.binding.KeyHint).
		Str("extraction_model", s.Models.Extraction).
		Str("solution_model", s.Models.Solution).
		Str("debugging_model", s.Models.Debugging).
		Msg("provider client ready")
	return nil
}

// Active returns the current binding, or a configuration error when there is
// no usable client.
func (r *Registry) Active() (*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.binding != nil {
		return r.binding, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, Errorf(KindConfiguration, r.settings.Provider, "provider not configured")
}

// Settings returns the applied settings with the credential masked.
func (r *Registry) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.settings
	s.APIKey = MaskKey(s.APIKey)
	return s
}

// Watch applies every settings value pushed on updates until ctx ends or the
// channel closes.
func (r *Registry) Watch(ctx context.Context, updates <-chan Settings) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if err := r.Configure(s); err != nil {
				log.Error().Err(err).Msg("settings update rejected")
			}
		}
	}
}
