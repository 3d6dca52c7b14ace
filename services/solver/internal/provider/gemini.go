package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiRetryDelay = 500 * time.Millisecond

// GeminiClient implements Provider for Google Gemini using an API key against
// the Gemini Developer API. Screenshots are sent as inline image parts.
type GeminiClient struct {
	client     *genai.Client
	maxRetries int
}

// NewGeminiClient creates a new Gemini adapter.
func NewGeminiClient(ctx context.Context, apiKey string, opts Options) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.httpClient(),
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: client, maxRetries: opts.MaxRetries}, nil
}

func (c *GeminiClient) Name() Name { return Gemini }

// Generate calls generateContent, retrying 429 and 5xx answers a bounded
// number of times.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.mediaType()))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
		if err == nil {
			text := resp.Text()
			if strings.TrimSpace(text) == "" {
				return "", fmt.Errorf("gemini: %w", errEmptyResponse)
			}
			return text, nil
		}
		if attempt >= c.maxRetries || !geminiRetryable(err) {
			return "", fmt.Errorf("gemini request: %w", err)
		}
		log.Warn().Str("error", Redact(err.Error())).Int("attempt", attempt+1).Msg("gemini call failed, retrying")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt+1) * geminiRetryDelay):
		}
	}
}

func geminiRetryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return false
}
