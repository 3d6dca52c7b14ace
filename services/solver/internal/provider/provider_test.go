package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testImage = Image{Data: []byte("\x89PNG fake"), MediaType: "image/png"}

func testOptions(baseURL string) Options {
	return Options{BaseURL: baseURL, Timeout: 5 * time.Second, MaxRetries: 0}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestOpenAIClient_Generate_SendsImagesAsDataURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test-key", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "gpt-4o", body["model"])
		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		parts := messages[1].(map[string]any)["content"].([]any)
		require.Len(t, parts, 2)
		assert.Equal(t, "text", parts[0].(map[string]any)["type"])
		imageURL := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
		assert.True(t, strings.HasPrefix(imageURL, "data:image/png;base64,"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello from openai"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-test-key", testOptions(server.URL+"/v1/"))
	got, err := client.Generate(context.Background(), Request{
		Model:       "gpt-4o",
		System:      "be brief",
		Prompt:      "extract the problem",
		Images:      []Image{testImage},
		MaxTokens:   100,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from openai", got)
	assert.Equal(t, OpenAI, client.Name())
}

func TestOpenAIClient_Generate_AuthErrorIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	ctx := context.Background()
	client := NewOpenAIClient("sk-bad", testOptions(server.URL+"/v1/"))
	_, err := client.Generate(ctx, Request{Model: "gpt-4o", Prompt: "hi"})
	require.Error(t, err)

	classified := Classify(ctx, OpenAI, err)
	assert.Equal(t, KindAuth, classified.Kind)
	assert.Equal(t, http.StatusUnauthorized, classified.StatusCode)
}

func TestOpenAIClient_Generate_CancelledWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	client := NewOpenAIClient("sk-test", testOptions(server.URL+"/v1/"))
	_, err := client.Generate(ctx, Request{Model: "gpt-4o", Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, KindCancelled, Classify(ctx, OpenAI, err).Kind)
}

func TestAnthropicClient_Generate_ImageBlocksFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))

		body := decodeBody(t, r)
		assert.EqualValues(t, 321, body["max_tokens"])
		content := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
		require.Len(t, content, 2)
		first := content[0].(map[string]any)
		assert.Equal(t, "image", first["type"])
		assert.Equal(t, "base64", first["source"].(map[string]any)["type"])
		assert.Equal(t, "text", content[1].(map[string]any)["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"hello "},{"type":"text","text":"from claude"}],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`))
	}))
	defer server.Close()

	client := NewAnthropicClient("sk-ant-test", testOptions(server.URL+"/"))
	got, err := client.Generate(context.Background(), Request{
		Model:     "claude-3-7-sonnet-20250219",
		Prompt:    "extract",
		Images:    []Image{testImage},
		MaxTokens: 321,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from claude", got)
}

func TestAnthropicClient_Generate_RateLimitIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	ctx := context.Background()
	client := NewAnthropicClient("sk-ant-test", testOptions(server.URL+"/"))
	_, err := client.Generate(ctx, Request{Model: "claude", Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, KindRateLimit, Classify(ctx, Anthropic, err).Kind)
}

func TestGeminiClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-2.0-flash:generateContent")

		body := decodeBody(t, r)
		contents := body["contents"].([]any)
		require.Len(t, contents, 1)
		parts := contents[0].(map[string]any)["parts"].([]any)
		require.Len(t, parts, 2)
		assert.Equal(t, "describe", parts[0].(map[string]any)["text"])
		assert.Contains(t, parts[1].(map[string]any), "inlineData")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello from gemini"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(context.Background(), "AIza-test", testOptions(server.URL))
	require.NoError(t, err)

	got, err := client.Generate(context.Background(), Request{
		Model:  "gemini-2.0-flash",
		Prompt: "describe",
		Images: []Image{testImage},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from gemini", got)
}

func TestGeminiClient_Generate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"recovered"}]}}]}`))
	}))
	defer server.Close()

	opts := testOptions(server.URL)
	opts.MaxRetries = 1
	client, err := NewGeminiClient(context.Background(), "AIza-test", opts)
	require.NoError(t, err)

	got, err := client.Generate(context.Background(), Request{Model: "gemini-2.0-flash", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGeminiClient_Generate_ServerErrorIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewGeminiClient(ctx, "AIza-test", testOptions(server.URL))
	require.NoError(t, err)

	_, err = client.Generate(ctx, Request{Model: "gemini-2.0-flash", Prompt: "hi"})
	require.Error(t, err)
	classified := Classify(ctx, Gemini, err)
	assert.Equal(t, KindServer, classified.Kind)
	assert.Equal(t, 500, classified.StatusCode)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, Classify(ctx, OpenAI, nil))

	transport := &url.Error{Op: "Post", URL: "https://api.example", Err: errors.New("connection refused")}
	assert.Equal(t, KindTransport, Classify(ctx, OpenAI, transport).Kind)

	assert.Equal(t, KindGeneric, Classify(ctx, OpenAI, errors.New("weird")).Kind)

	parse := Errorf(KindParse, Gemini, "bad json")
	assert.Same(t, parse, Classify(ctx, Gemini, parse))
}

func TestClassify_CancellationWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := &url.Error{Op: "Post", URL: "https://api.example", Err: errors.New("aborted")}
	assert.Equal(t, KindCancelled, Classify(ctx, OpenAI, transport).Kind)
	assert.Equal(t, KindCancelled, Classify(ctx, OpenAI, Errorf(KindServer, OpenAI, "boom")).Kind)
	assert.Equal(t, KindCancelled, KindOf(Classify(ctx, OpenAI, transport)))
}

func TestError_MessageIsRedacted(t *testing.T) {
	err := Errorf(KindAuth, OpenAI, "bad key sk-abcdefghijklmnopqrstuvwxyz123456")
	assert.NotContains(t, err.Error(), "abcdefghijklmnopqrstuvwxyz")
	assert.Contains(t, err.Error(), "[REDACTED:openai_key]")
}

func TestGuidance(t *testing.T) {
	assert.Contains(t, Guidance(&Error{Kind: KindRateLimit, Provider: Gemini}), "switch to another provider")
	assert.Contains(t, Guidance(&Error{Kind: KindAuth, Provider: OpenAI}), "API key")
	assert.Contains(t, Guidance(&Error{Kind: KindServer, Provider: Anthropic, StatusCode: 529}), "529")
}

func TestParseName(t *testing.T) {
	n, err := ParseName(" Gemini ")
	require.NoError(t, err)
	assert.Equal(t, Gemini, n)

	n, err = ParseName("")
	require.NoError(t, err)
	assert.Equal(t, OpenAI, n)

	_, err = ParseName("mistral")
	assert.Error(t, err)
}
