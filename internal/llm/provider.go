package llm

import (
	"context"
	"time"

	"github.com/ppiankov/truthguard/internal/model"
)

// Provider defines the interface for generative model backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate runs a single-turn completion. When req.Media is set it is sent
	// before the prompt text in the same turn.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for one completion
type GenerateRequest struct {
	Prompt string

	// Media is an optional inline image
	Media *model.Media

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// GenerateResponse contains the raw model output
type GenerateResponse struct {
	// Text is the concatenated text of the first candidate
	Text string

	Model      string
	TokensUsed int
}

// Config holds provider configuration
type Config struct {
	// Provider name: "gemini", "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama or an OpenAI-compatible gateway)
	BaseURL string

	// Timeout for a single API request
	Timeout time.Duration

	MaxTokens int

	// Proxy settings for the raw HTTP providers
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// temperature is low so repeated verifications of one claim agree
const temperature = 0.2

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "gemini",
		Timeout:   60 * time.Second,
		MaxTokens: 2048,
	}
}

// ConfigFromModel converts the ai and http config sections to llm.Config
func ConfigFromModel(ai model.AIConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:   ai.Provider,
		Model:      ai.Model,
		APIKey:     ai.APIKey,
		BaseURL:    ai.BaseURL,
		Timeout:    ai.Timeout,
		MaxTokens:  ai.MaxTokens,
		HTTPProxy:  httpCfg.HTTPProxy,
		HTTPSProxy: httpCfg.HTTPSProxy,
		NoProxy:    httpCfg.NoProxy,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}

func (c Config) maxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 2048
}

func (c Config) model(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}
