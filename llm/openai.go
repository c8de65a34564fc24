package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/access-assistant/backend/gateway"
)

var _ gateway.Gateway = (*OpenAI)(nil)

// OpenAIConfig configures the OpenAI chat completions provider
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (OpenAI-compatible gateways).
	BaseURL string
	Timeout time.Duration
}

// OpenAI sends requests through the chat completions API with a JSON schema response format
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI provider
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, req gateway.Request) (string, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Media) == 0 {
		user.Content = req.UserText()
	} else {
		user.MultiContent = []openai.ChatMessagePart{{
			Type: openai.ChatMessagePartTypeText,
			Text: req.UserText(),
		}}
		for _, m := range req.Media {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    m.DataURI(),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}
	messages = append(messages, user)

	chatReq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = req.PromptID
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: req.Schema,
				// Optional members are not listed as required, which strict mode rejects
				Strict: false,
			},
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
