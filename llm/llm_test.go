package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/access-assistant/backend/config"
	"github.com/access-assistant/backend/gateway"
)

func testRequest() gateway.Request {
	return gateway.Request{
		PromptID:   "suggestAltTextPrompt",
		System:     "You write alt text.",
		Prompt:     "Existing alt text: \nSuggested alt text:",
		SchemaName: "alt_text_suggestion",
		Schema: &jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{"suggestedAltText": {Type: jsonschema.String}},
			Required:   []string{"suggestedAltText"},
		},
		Media: []gateway.Media{{MimeType: "image/png", Data: []byte("png")}},
	}
}

func TestGeminiGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"suggestedAltText\":"},{"text":"\"A cat\"}"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "secret", Model: "gemini-test", BaseURL: srv.URL + "/", Timeout: time.Second})
	out, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"suggestedAltText":"A cat"}`, out)

	cfg := body["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", cfg["response_mime_type"])
	parts := body["contents"].([]any)[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	inline := parts[1].(map[string]any)["inline_data"].(map[string]any)
	assert.Equal(t, "image/png", inline["mime_type"])
	assert.Equal(t, "cG5n", inline["data"])
	system := body["system_instruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"].(string)
	assert.Contains(t, system, "suggestedAltText")
}

func TestGeminiErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota"}}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"api error body", http.StatusOK, `{"error":{"code":400,"message":"bad"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewGemini(GeminiConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
			_, err := g.Generate(context.Background(), testRequest())
			assert.Error(t, err)
		})
	}
}

func TestClaudeGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"suggestedAltText\":\"A dog\"}"}]}`))
	}))
	defer srv.Close()

	c := NewClaude(ClaudeConfig{APIKey: "secret", Model: "claude-test", BaseURL: srv.URL})
	out, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"suggestedAltText":"A dog"}`, out)

	assert.Equal(t, "claude-test", body["model"])
	assert.Contains(t, body["system"], "You write alt text.")
	content := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "image", content[0].(map[string]any)["type"])
	assert.Equal(t, "text", content[1].(map[string]any)["type"])
}

func TestClaudeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c := NewClaude(ClaudeConfig{APIKey: "bad", Model: "m", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestOpenAIGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"suggestedAltText\":\"A bird\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "secret", Model: "gpt-test", BaseURL: srv.URL, Timeout: time.Second})
	out, err := o.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"suggestedAltText":"A bird"}`, out)

	format := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "alt_text_suggestion", format["json_schema"].(map[string]any)["name"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, user, 2)
	imagePart := user[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,cG5n", imagePart["url"])
}

func TestFactory(t *testing.T) {
	cfg := &config.Config{Provider: "gemini"}
	_, err := NewFactory(cfg).Create()
	assert.Error(t, err, "missing key must be rejected")

	cfg.GoogleAPIKey = "k"
	gw, err := NewFactory(cfg).Create()
	require.NoError(t, err)
	assert.Equal(t, "gemini", gw.Name())

	gw, err = NewFactory(&config.Config{Provider: "stub"}).Create()
	require.NoError(t, err)
	assert.Equal(t, "stub", gw.Name())

	gw, err = NewFactory(&config.Config{OpenAIAPIKey: "k"}).CreateProvider(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "openai", gw.Name())

	gw, err = NewFactory(&config.Config{AnthropicAPIKey: "k"}).CreateProvider(ProviderClaude)
	require.NoError(t, err)
	assert.Equal(t, "claude", gw.Name())

	_, err = NewFactory(&config.Config{Provider: "llama"}).Create()
	assert.Error(t, err)
}
