package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider implements the Provider interface for Google Gemini models
type GeminiProvider struct {
	client *genai.Client
	config Config
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, config Config) (*GeminiProvider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}

	opts := []option.ClientOption{option.WithAPIKey(strings.TrimSpace(config.APIKey))}
	if config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{client: client, config: config}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// IsAvailable checks that the configured model can be described
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	m := p.client.GenerativeModel(p.config.model("", defaultGeminiModel))
	_, err := m.Info(ctx)
	return err == nil
}

// Generate runs one completion that must come back as JSON
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	modelName := p.config.model(req.Model, defaultGeminiModel)

	m := p.client.GenerativeModel(modelName)
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
	}
	m.SetTemperature(temperature)
	m.SetMaxOutputTokens(int32(p.config.maxTokens(req.MaxTokens)))

	ctx, cancel := context.WithTimeout(ctx, p.config.timeout(60*time.Second))
	defer cancel()

	resp, err := m.GenerateContent(ctx, buildGeminiParts(req)...)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	text := geminiText(resp)
	if text == "" {
		return nil, errors.New("gemini: empty response")
	}

	out := &GenerateResponse{Text: text, Model: modelName}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// buildGeminiParts orders the inline image ahead of the prompt text
func buildGeminiParts(req GenerateRequest) []genai.Part {
	parts := make([]genai.Part, 0, 2)
	if req.Media != nil && len(req.Media.Data) > 0 {
		parts = append(parts, &genai.Blob{MIMEType: req.Media.MIMEType, Data: req.Media.Data})
	}
	return append(parts, genai.Text(req.Prompt))
}

// geminiText joins the text parts of the first candidate that has any
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}
