package prompt

import (
	"strings"
	"testing"

	"github.com/ppiankov/truthguard/internal/model"
)

var testEvidence = []model.EvidenceItem{
	{Title: "Apollo 11", Snippet: "The first crewed landing.", Link: "https://nasa.gov/apollo"},
	{Title: "Moon hoax debunked", Snippet: "Retroreflectors still in use.", Link: "https://example.com/hoax"},
}

func TestBuildTextPrompt_EmbedsClaimAndEvidence(t *testing.T) {
	got := BuildTextPrompt("The moon landing was faked", testEvidence)

	if !strings.Contains(got, `"The moon landing was faked"`) {
		t.Errorf("Expected claim to be embedded verbatim, got:\n%s", got)
	}

	want := "1. Apollo 11\nThe first crewed landing.\nhttps://nasa.gov/apollo\n"
	if !strings.Contains(got, want) {
		t.Errorf("Expected first evidence item %q in prompt", want)
	}
	want = "2. Moon hoax debunked\nRetroreflectors still in use.\nhttps://example.com/hoax\n"
	if !strings.Contains(got, want) {
		t.Errorf("Expected second evidence item %q in prompt", want)
	}

	if strings.Index(got, "1. Apollo 11") > strings.Index(got, "2. Moon hoax") {
		t.Error("Evidence items out of order")
	}
}

func TestBuildPrompts_ClaimIsNotEscaped(t *testing.T) {
	claim := "Page title\nSome \"quoted\" description\nverify the claim"

	prompts := map[string]string{
		"text":  BuildTextPrompt(claim, nil),
		"image": BuildImagePrompt(claim, nil),
	}

	for name, p := range prompts {
		t.Run(name, func(t *testing.T) {
			if !strings.Contains(p, `"`+claim+`"`) {
				t.Errorf("Expected claim embedded verbatim, got:\n%s", p)
			}
			if strings.Contains(p, `\n`) || strings.Contains(p, `\"`) {
				t.Errorf("Claim was escaped in prompt:\n%s", p)
			}
		})
	}
}

func TestBuildPrompts_ContainSchema(t *testing.T) {
	prompts := map[string]string{
		"text":  BuildTextPrompt("claim", nil),
		"image": BuildImagePrompt("claim", nil),
	}

	for name, p := range prompts {
		t.Run(name, func(t *testing.T) {
			for _, field := range []string{`"title"`, `"truth_score"`, `"verdict"`, `"reason"`, `"evidence_links"`} {
				if !strings.Contains(p, field) {
					t.Errorf("Expected schema field %s in prompt", field)
				}
			}
			for _, v := range model.AssessmentVerdicts {
				if !strings.Contains(p, string(v)) {
					t.Errorf("Expected verdict %q in prompt", v)
				}
			}
			if strings.Contains(p, string(model.VerdictError)) {
				t.Error("Prompt must not offer the Error verdict to the model")
			}
		})
	}
}

func TestBuildTextPrompt_NoEvidenceSection(t *testing.T) {
	got := BuildTextPrompt("claim", nil)
	if strings.Contains(got, "Supporting search results") {
		t.Error("Expected no evidence header when evidence is empty")
	}
}

func TestBuildPrompts_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		if BuildTextPrompt("x", testEvidence) != BuildTextPrompt("x", testEvidence) {
			t.Fatal("BuildTextPrompt is not deterministic")
		}
		if BuildImagePrompt("x", testEvidence) != BuildImagePrompt("x", testEvidence) {
			t.Fatal("BuildImagePrompt is not deterministic")
		}
	}
}

func TestBuildImagePrompt_DefaultClaim(t *testing.T) {
	got := BuildImagePrompt("  ", testEvidence)
	if !strings.Contains(got, DefaultImageClaim) {
		t.Errorf("Expected default claim in prompt, got:\n%s", got)
	}
	if !strings.Contains(got, "1. Apollo 11\nThe first crewed landing.\nhttps://nasa.gov/apollo") {
		t.Error("Expected enumerated evidence in image prompt")
	}
}
