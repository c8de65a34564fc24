package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/access-assistant/backend/gateway"
)

var _ gateway.Gateway = (*Claude)(nil)

const defaultClaudeBaseURL = "https://api.anthropic.com"

// ClaudeConfig configures the Anthropic Messages provider
type ClaudeConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Claude calls the Anthropic Messages API over REST
type Claude struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClaude creates a Claude provider
func NewClaude(cfg ClaudeConfig) *Claude {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultClaudeBaseURL
	}
	return &Claude{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) Generate(ctx context.Context, req gateway.Request) (string, error) {
	content := []map[string]interface{}{}
	for _, m := range req.Media {
		content = append(content, map[string]interface{}{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": m.MimeType,
				"data":       base64.StdEncoding.EncodeToString(m.Data),
			},
		})
	}
	content = append(content, map[string]interface{}{
		"type": "text",
		"text": req.UserText(),
	})

	body := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]interface{}{{
			"role":    "user",
			"content": content,
		}},
		"max_tokens":  4000,
		"temperature": 0,
	}
	if system := req.SystemText(); system != "" {
		body["system"] = system
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Claude API error (status %d): %s", resp.StatusCode, string(respBytes))
	}

	// Minimal struct to pull out the content text.
	var claudeResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &claudeResp); err != nil {
		return "", err
	}
	if claudeResp.Error.Message != "" {
		return "", fmt.Errorf("Claude API error: %s", claudeResp.Error.Message)
	}
	for _, block := range claudeResp.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text, nil
		}
	}
	return "", errors.New("empty response from Claude")
}
