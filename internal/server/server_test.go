package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ppiankov/truthguard/internal/credits"
	"github.com/ppiankov/truthguard/internal/fetch"
	"github.com/ppiankov/truthguard/internal/history"
	"github.com/ppiankov/truthguard/internal/llm"
	"github.com/ppiankov/truthguard/internal/media"
	"github.com/ppiankov/truthguard/internal/model"
	"github.com/ppiankov/truthguard/internal/verify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const moonVerdict = `{"title":"Moon Landing Claim","truth_score":5,"verdict":"Possibly Fake","reason":"Contradicted by multiple verified sources","evidence_links":["https://nasa.gov/apollo"]}`

type stubEvidence struct {
	mu    sync.Mutex
	calls int
}

func (s *stubEvidence) FetchEvidence(context.Context, string, int) ([]model.EvidenceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return []model.EvidenceItem{{Title: "Apollo 11", Snippet: "Landed July 1969", Link: "https://nasa.gov/apollo"}}, nil
}

type stubProvider struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []llm.GenerateRequest
}

func (p *stubProvider) Name() string                     { return "stub" }
func (p *stubProvider) IsAvailable(context.Context) bool { return true }

func (p *stubProvider) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.GenerateResponse{Text: p.text, Model: "stub-1"}, nil
}

type harness struct {
	srv      *Server
	evidence *stubEvidence
	provider *stubProvider
	ledger   *credits.MemoryLedger
	history  *history.MemoryStore
}

type harnessOpts struct {
	origins []string
	metered bool
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()

	h := &harness{
		evidence: &stubEvidence{},
		provider: &stubProvider{text: moonVerdict},
		history:  history.NewMemoryStore(0),
	}

	f := fetch.NewFetcher(5*time.Second, "truthguard-test", 0, false, "", "", "")
	resolver := media.NewResolver(f, f)
	verdicts := llm.NewVerdictClient(h.provider, zerolog.Nop())

	svc := verify.NewService(h.evidence, verdicts, resolver, verify.Options{MaxResults: 20, Cost: 1, RefundOnError: true}, zerolog.Nop()).
		WithHistory(h.history)

	opts := Options{History: h.history, HistoryLimit: 10}
	if o.metered {
		h.ledger = credits.NewMemoryLedger(2)
		svc.WithLedger(h.ledger)
		opts.Ledger = h.ledger
	}

	cfg := model.ServerConfig{AllowedOrigins: o.origins, MaxUploadBytes: 1 << 20}
	h.srv = New(cfg, svc, opts, zerolog.Nop())
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func imageRequest(t *testing.T, path, fileName string, data []byte, claim string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(data)
	}
	if claim != "" {
		_ = mw.WriteField("query", claim)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return m
}

func TestVerifyText_ReturnsModelVerdict(t *testing.T) {
	for _, path := range []string{"/api/verify_text_news", "/v1/verify/text"} {
		t.Run(path, func(t *testing.T) {
			h := newHarness(t, harnessOpts{})

			w := h.do(jsonRequest(http.MethodPost, path, `{"content":"The moon landing was faked"}`))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
			}

			var want, got map[string]any
			_ = json.Unmarshal([]byte(moonVerdict), &want)
			got = decodeMap(t, w)
			if fmt.Sprint(got) != fmt.Sprint(want) {
				t.Errorf("Expected %v, got %v", want, got)
			}
			if w.Header().Get("X-Verification-ID") == "" {
				t.Error("Expected a verification ID header")
			}
			if w.Header().Get(requestIDHeader) == "" {
				t.Error("Expected a request ID header")
			}
		})
	}
}

func TestVerifyText_MissingContent(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	for _, body := range []string{`{}`, ``, `{"content":"   "}`} {
		w := h.do(jsonRequest(http.MethodPost, "/api/verify_text_news", body))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
		if got := decodeMap(t, w)["error"]; got != "Content is required" {
			t.Errorf("body %q: expected 'Content is required', got %v", body, got)
		}
	}
	if h.evidence.calls != 0 || len(h.provider.requests) != 0 {
		t.Error("No downstream calls expected")
	}
}

func TestVerifyText_MalformedJSON(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	w := h.do(jsonRequest(http.MethodPost, "/api/verify_text_news", `{"content":`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestOriginGuard(t *testing.T) {
	h := newHarness(t, harnessOpts{origins: []string{"https://truthguard.example"}})

	tests := []struct {
		name   string
		origin string
		want   int
	}{
		{"disallowed", "https://evil.example", http.StatusForbidden},
		{"missing", "", http.StatusForbidden},
		{"allowed", "https://truthguard.example", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.evidence.calls
			generated := len(h.provider.requests)
			req := jsonRequest(http.MethodPost, "/api/verify_text_news", `{"content":"The moon landing was faked"}`)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			w := h.do(req)
			if w.Code != tt.want {
				t.Fatalf("Expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want == http.StatusForbidden {
				if got := decodeMap(t, w)["error"]; got != "Unauthorized access" {
					t.Errorf("Expected 'Unauthorized access', got %v", got)
				}
				if len(h.provider.requests) != generated {
					t.Error("Rejected request reached the model")
				}
				if h.evidence.calls != before {
					t.Error("Rejected request reached the search stage")
				}
			}
		})
	}

	// health checks bypass the guard
	if w := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); w.Code != http.StatusOK {
		t.Errorf("Expected healthz 200, got %d", w.Code)
	}
}

func TestVerifyText_ModelUnreachable(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.provider.err = errors.New("dial tcp: connection refused")

	w := h.do(jsonRequest(http.MethodPost, "/api/verify_text_news", `{"content":"claim"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var res model.VerificationResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Verdict != model.VerdictError || res.TruthScore != 0 || res.Reason == "" {
		t.Errorf("Expected Error result, got %+v", res)
	}
	if res.EvidenceLinks == nil || len(res.EvidenceLinks) != 0 {
		t.Errorf("Expected empty evidence links, got %v", res.EvidenceLinks)
	}
	if !strings.Contains(w.Body.String(), `"evidence_links":[]`) {
		t.Errorf("evidence_links should serialize as [], got %s", w.Body.String())
	}
}

func TestVerifyImage(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	w := h.do(imageRequest(t, "/api/verify_image_news", "photo.png", []byte("\x89PNG fake"), ""))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(h.provider.requests) != 1 {
		t.Fatalf("Expected one model call, got %d", len(h.provider.requests))
	}
	m := h.provider.requests[0].Media
	if m == nil || m.MIMEType != "image/png" {
		t.Errorf("Expected inline image/png media, got %+v", m)
	}
	if h.evidence.calls != 0 {
		t.Error("No search expected without a claim")
	}
}

func TestVerifyImage_MissingFile(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	w := h.do(imageRequest(t, "/v1/verify/image", "", nil, "a claim"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	if got := decodeMap(t, w)["error"]; got != "Image file is required" {
		t.Errorf("Expected 'Image file is required', got %v", got)
	}
}

func TestVerifyImage_TooLarge(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	w := h.do(imageRequest(t, "/v1/verify/image", "big.jpg", bytes.Repeat([]byte("x"), 2<<20), ""))
	if w.Code != http.StatusRequestEntityTooLarge && w.Code != http.StatusBadRequest {
		t.Fatalf("Expected upload to be rejected, got %d", w.Code)
	}
	if len(h.provider.requests) != 0 {
		t.Error("Model must not be called")
	}
}

func TestVerifySocial_NoImageFallsBackToText(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><head><title>Dam burst</title><meta name="description" content="Reports of a dam failure"></head><body><p>No pictures.</p></body></html>`)
	}))
	defer page.Close()

	h := newHarness(t, harnessOpts{})
	w := h.do(jsonRequest(http.MethodPost, "/api/verify_social_news", `{"url":"`+page.URL+`","type":"image"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res model.VerificationResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.IsError() {
		t.Fatalf("Expected a verdict, got %+v", res)
	}
	req := h.provider.requests[0]
	if req.Media != nil {
		t.Error("Expected no inline media")
	}
	if !strings.Contains(req.Prompt, "Dam burst") || !strings.Contains(req.Prompt, verify.DefaultSocialClaim) {
		t.Error("Prompt should carry the enriched claim")
	}
}

func TestVerifySocial_Validation(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	tests := []struct {
		body string
		want string
	}{
		{`{}`, "URL is required"},
		{`{"url":"https://example.com/p","type":"video"}`, `Type must be "text" or "image"`},
	}
	for _, tt := range tests {
		w := h.do(jsonRequest(http.MethodPost, "/v1/verify/social", tt.body))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tt.body, w.Code)
		}
		if got := decodeMap(t, w)["error"]; got != tt.want {
			t.Errorf("%s: expected %q, got %v", tt.body, tt.want, got)
		}
	}
}

func TestCredits(t *testing.T) {
	h := newHarness(t, harnessOpts{metered: true})

	w := h.do(jsonRequest(http.MethodPost, "/api/verify_text_news", `{"content":"claim"}`))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without account, got %d", w.Code)
	}

	invalid := []struct {
		path string
		req  *http.Request
		want string
	}{
		{"text", jsonRequest(http.MethodPost, "/api/verify_text_news", `{}`), "Content is required"},
		{"social", jsonRequest(http.MethodPost, "/v1/verify/social", `{"url":""}`), "URL is required"},
	}
	for _, tt := range invalid {
		w := h.do(tt.req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 before the account check, got %d", tt.path, w.Code)
		}
		if got := decodeMap(t, w)["error"]; got != tt.want {
			t.Errorf("%s: expected %q, got %v", tt.path, tt.want, got)
		}
	}
	if bal, _ := h.ledger.Balance(context.Background(), "acct-1"); bal != 2 {
		t.Fatalf("Invalid requests must not charge, balance %d", bal)
	}

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusPaymentRequired} {
		req := jsonRequest(http.MethodPost, "/api/verify_text_news", `{"content":"claim"}`)
		req.Header.Set(AccountHeader, "acct-1")
		w := h.do(req)
		if w.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, w.Code)
		}
		if want == http.StatusPaymentRequired {
			if got := decodeMap(t, w)["error"]; got != "Insufficient credits" {
				t.Errorf("Expected 'Insufficient credits', got %v", got)
			}
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/credits", nil)
	req.Header.Set(AccountHeader, "acct-1")
	w = h.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	m := decodeMap(t, w)
	if m["account_id"] != "acct-1" || m["credits"] != float64(0) {
		t.Errorf("Unexpected balance: %v", m)
	}
}

func TestCredits_Disabled(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	req := httptest.NewRequest(http.MethodGet, "/api/credits", nil)
	req.Header.Set(AccountHeader, "acct-1")
	if w := h.do(req); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestHistoryAndShare(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	req := jsonRequest(http.MethodPost, "/api/verify_text_news", `{"content":"The moon landing was faked"}`)
	req.Header.Set(AccountHeader, "acct-1")
	w := h.do(req)
	id := w.Header().Get("X-Verification-ID")
	if id == "" {
		t.Fatal("Expected a verification ID")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set(AccountHeader, "acct-1")
	w = h.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var list []model.Record
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("Unexpected history: %+v", list)
	}
	if in, ok := list[0].Input.(model.TextInput); !ok || in.Content != "The moon landing was faked" {
		t.Errorf("Unexpected input: %#v", list[0].Input)
	}

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/shared/"+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var rec model.Record
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Result.Title != "Moon Landing Claim" {
		t.Errorf("Unexpected shared record: %+v", rec)
	}

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/shared/00000000-0000-0000-0000-000000000000", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without account, got %d", w.Code)
	}
}

type panicVerifier struct{}

func (panicVerifier) Run(context.Context, string, model.Request) (*verify.Outcome, error) {
	panic("boom")
}

func (panicVerifier) Metered() bool { return false }

type brokenVerifier struct{}

func (brokenVerifier) Run(context.Context, string, model.Request) (*verify.Outcome, error) {
	return nil, errors.New("ledger connection lost")
}

func (brokenVerifier) Metered() bool { return false }

func TestUnexpectedFailures(t *testing.T) {
	tests := []struct {
		name     string
		verifier Verifier
		path     string
		body     string
		want     string
	}{
		{"panic text", panicVerifier{}, "/api/verify_text_news", `{"content":"x"}`, "Failed to process text verification request"},
		{"panic social", panicVerifier{}, "/v1/verify/social", `{"url":"https://example.com"}`, "Failed to process social media verification request"},
		{"error text", brokenVerifier{}, "/v1/verify/text", `{"content":"x"}`, "Failed to process text verification request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(model.ServerConfig{}, tt.verifier, Options{}, zerolog.Nop())
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, jsonRequest(http.MethodPost, tt.path, tt.body))

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("Expected 500, got %d", w.Code)
			}
			if got := decodeMap(t, w)["error"]; got != tt.want {
				t.Errorf("Expected %q, got %v", tt.want, got)
			}
		})
	}
}

func TestClientRateLimit(t *testing.T) {
	srv := New(model.ServerConfig{ClientRPS: 0.001, ClientBurst: 1}, brokenVerifier{}, Options{}, zerolog.Nop())

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, jsonRequest(http.MethodPost, "/v1/verify/text", `{"content":"x"}`))
		codes[i] = w.Code
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Errorf("Expected second request throttled, got %v", codes)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, harnessOpts{origins: []string{"https://truthguard.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/verify_text_news", nil)
	req.Header.Set("Origin", "https://truthguard.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := h.do(req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://truthguard.example" {
		t.Errorf("Expected allow-origin header, got %q", got)
	}
}
