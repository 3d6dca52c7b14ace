// Package provider abstracts the three AI backends the solver can talk to.
// Each adapter handles its SDK's request shape, authentication and image
// encoding; callers only see Provider.Generate.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Name identifies an AI backend.
type Name string

const (
	OpenAI    Name = "openai"
	Gemini    Name = "gemini"
	Anthropic Name = "anthropic"
)

// ParseName normalises a provider identifier from configuration.
func ParseName(s string) (Name, error) {
	switch n := Name(strings.ToLower(strings.TrimSpace(s))); n {
	case OpenAI, Gemini, Anthropic:
		return n, nil
	case "":
		return OpenAI, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// Image is one screenshot as raw bytes.
type Image struct {
	Data      []byte
	MediaType string
}

func (img Image) mediaType() string {
	if img.MediaType != "" {
		return img.MediaType
	}
	return "image/png"
}

func (img Image) base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

func (img Image) dataURL() string {
	return "data:" + img.mediaType() + ";base64," + img.base64()
}

// Request is one generation call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Images      []Image
	MaxTokens   int
	Temperature float64
}

// Provider is an abstraction over the OpenAI, Gemini and Anthropic APIs.
type Provider interface {
	// Name returns the backend identifier, used in logs and error messages.
	Name() Name

	// Generate sends the prompt (and images, if any) and returns the raw text
	// of the first candidate answer.
	Generate(ctx context.Context, req Request) (string, error)
}

// Options tunes the transport shared by every adapter.
type Options struct {
	// BaseURL overrides the provider endpoint (tests, proxies).
	BaseURL string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// HTTPClient replaces the default client.
	HTTPClient *http.Client
}

// DefaultOptions returns a two-minute timeout and two retries.
func DefaultOptions() Options {
	return Options{Timeout: 120 * time.Second, MaxRetries: 2}
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: o.Timeout}
}

var errEmptyResponse = errors.New("empty response")

// New builds the adapter for name.
func New(ctx context.Context, name Name, apiKey string, opts Options) (Provider, error) {
	switch name {
	case OpenAI:
		return NewOpenAIClient(apiKey, opts), nil
	case Anthropic:
		return NewAnthropicClient(apiKey, opts), nil
	case Gemini:
		return NewGeminiClient(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
