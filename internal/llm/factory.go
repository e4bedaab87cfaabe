package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewProvider creates a provider based on configuration
func NewProvider(ctx context.Context, config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "gemini", "google", "":
		return NewGeminiProvider(ctx, config)

	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown AI provider: %s (supported: gemini, openai, anthropic, ollama)", config.Provider)
	}
}
