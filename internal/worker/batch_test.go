package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/truthguard/internal/model"
)

func mockVerifier(fail string) ClaimVerifier {
	return VerifierFunc(func(_ context.Context, claim string) (model.VerificationResult, error) {
		time.Sleep(time.Millisecond)
		if claim == fail {
			return model.VerificationResult{}, errors.New("insufficient credits")
		}
		return model.VerificationResult{
			Title:         claim,
			TruthScore:    70,
			Verdict:       model.VerdictLikelyTrue,
			EvidenceLinks: []string{},
		}, nil
	})
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claims.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessClaims(t *testing.T) {
	processor := NewBatchProcessor(mockVerifier(""), 3)

	claims := []string{"a", "b", "c", "d", "e", "f", "g"}
	results := processor.ProcessClaims(context.Background(), claims)

	if len(results) != len(claims) {
		t.Fatalf("expected %d results, got %d", len(claims), len(results))
	}
	for i, r := range results {
		if r.Index != i || r.Claim != claims[i] {
			t.Errorf("result %d out of order: %+v", i, r)
		}
		if r.Error != nil || r.Result == nil || r.Result.Title != claims[i] {
			t.Errorf("unexpected result for %q: %+v", claims[i], r)
		}
	}
}

func TestBatchProcessor_ProcessClaims_Error(t *testing.T) {
	processor := NewBatchProcessor(mockVerifier("bad"), 2)

	results := processor.ProcessClaims(context.Background(), []string{"ok", "bad"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].Error == nil || results[1].Result != nil {
		t.Errorf("expected error without result, got %+v", results[1])
	}
}

func TestBatchProcessor_ProcessClaims_Empty(t *testing.T) {
	processor := NewBatchProcessor(mockVerifier(""), 2)
	if results := processor.ProcessClaims(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestReadClaimsFromFile(t *testing.T) {
	path := writeTemp(t, "The moon landing was faked\n# comment\n\n  Water boils at 100C  \nThe moon landing was faked\n")

	claims, err := ReadClaimsFromFile(path)
	if err != nil {
		t.Fatalf("ReadClaimsFromFile failed: %v", err)
	}

	expected := []string{"The moon landing was faked", "Water boils at 100C"}
	if len(claims) != len(expected) {
		t.Fatalf("expected %d claims, got %v", len(expected), claims)
	}
	for i := range expected {
		if claims[i] != expected[i] {
			t.Errorf("expected %q at %d, got %q", expected[i], i, claims[i])
		}
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	processor := NewBatchProcessor(mockVerifier(""), 2)

	results, err := processor.ProcessFile(context.Background(), writeTemp(t, "a\nb\n"))
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}

	if _, err := processor.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteJSONL(t *testing.T) {
	processor := NewBatchProcessor(mockVerifier("bad"), 1)
	results := processor.ProcessClaims(context.Background(), []string{"ok", "bad"})

	var buf bytes.Buffer
	if err := WriteJSONL(&buf, results); err != nil {
		t.Fatalf("WriteJSONL failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first struct {
		Index  int                      `json:"index"`
		Result model.VerificationResult `json:"result"`
		Error  string                   `json:"error"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Result.Verdict != model.VerdictLikelyTrue || first.Error != "" {
		t.Errorf("unexpected first line: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"error":"insufficient credits"`) || strings.Contains(lines[1], `"result"`) {
		t.Errorf("unexpected second line: %s", lines[1])
	}
}
