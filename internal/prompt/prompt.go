// Package prompt builds model instructions for claim verification.
package prompt

import (
	"fmt"
	"strings"

	"github.com/ppiankov/truthguard/internal/model"
)

// DefaultImageClaim is used in the image prompt when no claim text was supplied
const DefaultImageClaim = "check if this incident fake or real?"

// responseSchema is the literal JSON shape the model must return. The verdict
// alternatives must stay in sync with model.AssessmentVerdicts.
const responseSchema = `{
  "title": "string (short title according to the query)",
  "truth_score": "number (0-100)",
  "verdict": "Likely True | Possibly Fake | Unverifiable",
  "reason": "string (detailed analysis)",
  "evidence_links": ["url1", "url2"]
}`

// BuildTextPrompt constructs the instruction for verifying a text claim
func BuildTextPrompt(claim string, evidence []model.EvidenceItem) string {
	var b strings.Builder

	b.WriteString("Analyze this news claim using the search results below and your existing knowledge.\n\n")
	b.WriteString("Claim: \"" + claim + "\"\n\n")

	if len(evidence) > 0 {
		b.WriteString("Supporting search results:\n")
		writeEvidence(&b, evidence)
	}

	writeInstructions(&b)
	return b.String()
}

// BuildImagePrompt constructs the instruction for verifying an image against a claim.
// The image itself travels as an inline attachment next to this text.
func BuildImagePrompt(claim string, evidence []model.EvidenceItem) string {
	var b strings.Builder

	if strings.TrimSpace(claim) == "" {
		claim = DefaultImageClaim
	}

	b.WriteString("This image has been claimed to show the following:\n")
	b.WriteString("\"" + claim + "\"\n\n")
	b.WriteString("Based on the image, the news articles below and your existing knowledge, ")
	b.WriteString("decide if this image is authentic and related to a real incident or to the subject being verified.\n\n")

	if len(evidence) > 0 {
		b.WriteString("News articles:\n")
		writeEvidence(&b, evidence)
	}

	writeInstructions(&b)
	return b.String()
}

// writeEvidence enumerates items as "{index}. {title}\n{snippet}\n{link}" separated by blank lines
func writeEvidence(b *strings.Builder, evidence []model.EvidenceItem) {
	for i, item := range evidence {
		fmt.Fprintf(b, "%d. %s\n%s\n%s\n\n", i+1, item.Title, item.Snippet, item.Link)
	}
}

func writeInstructions(b *strings.Builder) {
	b.WriteString("Respond STRICTLY with a single JSON object in this format and no text outside it:\n")
	b.WriteString(responseSchema)
	b.WriteString("\n")
}
