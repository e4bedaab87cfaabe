package model

import "strings"

// Verdict summarizes the truth score band of a verification
type Verdict string

const (
	VerdictLikelyTrue   Verdict = "Likely True"
	VerdictPossiblyFake Verdict = "Possibly Fake"
	VerdictUnverifiable Verdict = "Unverifiable"

	// VerdictError is reserved for pipeline failures. The model never produces it.
	VerdictError Verdict = "Error"
)

// AssessmentVerdicts are the values a model is allowed to return
var AssessmentVerdicts = []Verdict{VerdictLikelyTrue, VerdictPossiblyFake, VerdictUnverifiable}

// Valid reports whether v is one of the four verdict values
func (v Verdict) Valid() bool {
	switch v {
	case VerdictLikelyTrue, VerdictPossiblyFake, VerdictUnverifiable, VerdictError:
		return true
	}
	return false
}

// ParseAssessment matches s case-insensitively against the assessment verdicts.
// "Error" is deliberately not an assessment and does not match.
func ParseAssessment(s string) (Verdict, bool) {
	s = strings.TrimSpace(s)
	for _, v := range AssessmentVerdicts {
		if strings.EqualFold(s, string(v)) {
			return v, true
		}
	}
	return "", false
}

// VerificationResult is the output contract shared by all three modalities
type VerificationResult struct {
	Title         string   `json:"title"`
	TruthScore    int      `json:"truth_score"` // 0-100 inclusive
	Verdict       Verdict  `json:"verdict"`
	Reason        string   `json:"reason"`
	EvidenceLinks []string `json:"evidence_links"`
}

// ErrorResult builds the sentinel returned for any pipeline failure
func ErrorResult(reason string) VerificationResult {
	if strings.TrimSpace(reason) == "" {
		reason = "API request failed"
	}
	return VerificationResult{
		Title:         "Error",
		TruthScore:    0,
		Verdict:       VerdictError,
		Reason:        reason,
		EvidenceLinks: []string{},
	}
}

// IsError reports whether r is the pipeline failure sentinel
func (r VerificationResult) IsError() bool {
	return r.Verdict == VerdictError
}
