package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/truthguard/internal/model"
)

// ParseFailureReason is the Error-result reason for unextractable output
const ParseFailureReason = "Could not parse response"

// ErrUnparseable is returned when no JSON object can be extracted
var ErrUnparseable = errors.New(ParseFailureReason)

// VerdictClient turns a prompt into a VerificationResult. It never fails:
// every upstream or parse problem becomes the Error result.
type VerdictClient struct {
	provider Provider
	log      zerolog.Logger
}

// NewVerdictClient creates a verdict client over a provider
func NewVerdictClient(provider Provider, log zerolog.Logger) *VerdictClient {
	return &VerdictClient{provider: provider, log: log}
}

// GetVerdict sends prompt (and media, if any) to the model
func (c *VerdictClient) GetVerdict(ctx context.Context, prompt string, media *model.Media) model.VerificationResult {
	resp, err := c.provider.Generate(ctx, GenerateRequest{Prompt: prompt, Media: media})
	if err != nil {
		c.log.Error().Err(err).Str("provider", c.provider.Name()).Msg("model request failed")
		return model.ErrorResult(err.Error())
	}

	result, err := ExtractVerdict(resp.Text)
	if err != nil {
		c.log.Warn().Str("provider", c.provider.Name()).Int("response_bytes", len(resp.Text)).Msg("model response was not JSON")
		return result
	}

	c.log.Debug().
		Str("provider", c.provider.Name()).
		Str("model", resp.Model).
		Int("tokens", resp.TokensUsed).
		Int("truth_score", result.TruthScore).
		Str("verdict", string(result.Verdict)).
		Msg("verdict received")
	return result
}

// ExtractVerdict parses model output in two stages: the whole text (minus any
// markdown fence), then the first balanced {...} span, falling back to the
// span from the first '{' to the last '}'. On failure it returns the Error
// result and ErrUnparseable.
func ExtractVerdict(text string) (model.VerificationResult, error) {
	text = stripCodeFences(strings.TrimSpace(text))

	if r, ok := decodeVerdict(text); ok {
		return r, nil
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return model.ErrorResult(ParseFailureReason), ErrUnparseable
	}

	if span, ok := balancedObject(text[start:]); ok {
		if r, ok := decodeVerdict(span); ok {
			return r, nil
		}
	}

	if end := strings.LastIndex(text, "}"); end > start {
		if r, ok := decodeVerdict(text[start : end+1]); ok {
			return r, nil
		}
	}

	return model.ErrorResult(ParseFailureReason), ErrUnparseable
}

// balancedObject returns the prefix of s up to the '}' closing its leading '{'.
// Braces inside JSON strings are ignored.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// rawVerdict tolerates the loose types models produce
type rawVerdict struct {
	Title         string          `json:"title"`
	TruthScore    json.RawMessage `json:"truth_score"`
	Verdict       string          `json:"verdict"`
	Reason        string          `json:"reason"`
	EvidenceLinks json.RawMessage `json:"evidence_links"`
}

func decodeVerdict(s string) (model.VerificationResult, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return model.VerificationResult{}, false
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return model.VerificationResult{}, false
	}

	verdict, ok := model.ParseAssessment(raw.Verdict)
	if !ok {
		verdict = model.VerdictUnverifiable
	}

	return model.VerificationResult{
		Title:         strings.TrimSpace(raw.Title),
		TruthScore:    parseScore(raw.TruthScore),
		Verdict:       verdict,
		Reason:        strings.TrimSpace(raw.Reason),
		EvidenceLinks: parseLinks(raw.EvidenceLinks),
	}, true
}

// parseScore accepts a number or numeric string ("85", "85%") and clamps to 0-100
func parseScore(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
	}

	if math.IsNaN(f) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, f))))
}

// parseLinks accepts an array of strings or a single string; never returns nil
func parseLinks(raw json.RawMessage) []string {
	links := []string{}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return links
		}
		list = []string{single}
	}

	for _, l := range list {
		if l = strings.TrimSpace(l); l != "" {
			links = append(links, l)
		}
	}
	return links
}

// stripCodeFences removes a surrounding ```json ... ``` block
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
