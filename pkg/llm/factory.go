package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider identifies which API shape a client speaks.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ProviderConfig describes one completion provider.
type ProviderConfig struct {
	Provider string // "openai" or "anthropic"
	Endpoint string // OpenAI-compatible base URL; unused for anthropic
	Model    string
	APIKey   string
}

// NewClient builds a guarded client for the configured provider.
func NewClient(cfg *ProviderConfig, logger *zap.Logger) (Client, error) {
	var (
		inner Client
		err   error
	)

	switch cfg.Provider {
	case ProviderOpenAI:
		inner, err = NewOpenAIClient(&OpenAIConfig{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
		}, logger)
	case ProviderAnthropic:
		inner, err = NewAnthropicClient(&AnthropicConfig{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	return NewGuardedClient(inner, logger), nil
}
