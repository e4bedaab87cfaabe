package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/truthguard/internal/model"
)

// ClaimVerifier verifies one text claim
type ClaimVerifier interface {
	VerifyClaim(ctx context.Context, claim string) (model.VerificationResult, error)
}

// VerifierFunc adapts a function to ClaimVerifier
type VerifierFunc func(ctx context.Context, claim string) (model.VerificationResult, error)

// VerifyClaim calls f
func (f VerifierFunc) VerifyClaim(ctx context.Context, claim string) (model.VerificationResult, error) {
	return f(ctx, claim)
}

// ClaimJob verifies the claim at Index
type ClaimJob struct {
	Index    int
	Claim    string
	Verifier ClaimVerifier
}

// Execute runs the verification
func (j *ClaimJob) Execute(ctx context.Context) Result {
	res, err := j.Verifier.VerifyClaim(ctx, j.Claim)
	if err != nil {
		return &ClaimResult{Index: j.Index, Claim: j.Claim, Error: err}
	}
	return &ClaimResult{Index: j.Index, Claim: j.Claim, Result: &res}
}

// ClaimResult is one line of batch output
type ClaimResult struct {
	Index  int                       `json:"index"`
	Claim  string                    `json:"claim"`
	Result *model.VerificationResult `json:"result,omitempty"`
	Error  error                     `json:"-"`
}

// GetError returns the error that stopped the verification, if any
func (r *ClaimResult) GetError() error {
	return r.Error
}

// MarshalJSON adds the error message as a string field
func (r *ClaimResult) MarshalJSON() ([]byte, error) {
	type plain ClaimResult
	out := struct {
		*plain
		Error string `json:"error,omitempty"`
	}{plain: (*plain)(r)}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return json.Marshal(out)
}

// BatchProcessor verifies many claims concurrently
type BatchProcessor struct {
	verifier    ClaimVerifier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(verifier ClaimVerifier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		verifier:    verifier,
		concurrency: concurrency,
	}
}

// ProcessClaims verifies claims and returns results in input order
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []string) []*ClaimResult {
	if len(claims) == 0 {
		return []*ClaimResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()
	for i, claim := range claims {
		pool.Submit(&ClaimJob{Index: i, Claim: claim, Verifier: b.verifier})
	}
	results := pool.Wait()

	out := make([]*ClaimResult, 0, len(results))
	for _, r := range results {
		out = append(out, r.(*ClaimResult))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ProcessFile reads claims from a file and verifies them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ClaimResult, error) {
	claims, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}
	return b.ProcessClaims(ctx, claims), nil
}

// ReadClaimsFromFile reads one claim per line, skipping blanks, # comments
// and duplicates
func ReadClaimsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadClaims(file)
}

// ReadClaims is ReadClaimsFromFile over any reader
func ReadClaims(r io.Reader) ([]string, error) {
	var claims []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			claims = append(claims, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return claims, nil
}

// WriteJSONL writes one JSON object per result
func WriteJSONL(w io.Writer, results []*ClaimResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode result %d: %w", r.Index, err)
		}
	}
	return nil
}
