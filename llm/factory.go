package llm

import (
	"fmt"

	"github.com/access-assistant/backend/config"
	"github.com/access-assistant/backend/gateway"
	"github.com/access-assistant/backend/stubllm"
)

// Provider represents the model provider type
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderStub   Provider = "stub"
)

// Factory creates gateway providers from explicit configuration
type Factory struct {
	cfg *config.Config
}

// NewFactory creates a new provider factory
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{cfg: cfg}
}

// Create creates the provider named by the configuration
func (f *Factory) Create() (gateway.Gateway, error) {
	return f.CreateProvider(Provider(f.cfg.Provider))
}

// CreateProvider creates a provider by name, using the factory's configuration
func (f *Factory) CreateProvider(provider Provider) (gateway.Gateway, error) {
	cfg := f.cfg
	switch provider {
	case ProviderGemini, "":
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY is required for the gemini provider")
		}
		return NewGemini(GeminiConfig{
			APIKey:  cfg.GoogleAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
			Timeout: cfg.GatewayTimeout,
		}), nil

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.GatewayTimeout,
		}), nil

	case ProviderClaude:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the claude provider")
		}
		return NewClaude(ClaudeConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.ClaudeModel,
			BaseURL: cfg.ClaudeBaseURL,
			Timeout: cfg.GatewayTimeout,
		}), nil

	case ProviderStub:
		return stubllm.NewClient(), nil

	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER: %s (supported: gemini, openai, claude, stub)", provider)
	}
}

// GetAvailableProviders returns a list of available providers
func (f *Factory) GetAvailableProviders() []Provider {
	return []Provider{ProviderGemini, ProviderOpenAI, ProviderClaude, ProviderStub}
}
