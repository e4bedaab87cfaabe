package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/truthguard/internal/cache"
	"github.com/ppiankov/truthguard/internal/model"
)

// newSearchServer serves numbered results; total caps how many exist upstream
func newSearchServer(t *testing.T, total int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("key") != "test-key" || q.Get("cx") != "test-cx" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = fmt.Fprint(w, `{"error":{"code":403,"message":"bad key"}}`)
			return
		}
		num, _ := strconv.Atoi(q.Get("num"))
		start, _ := strconv.Atoi(q.Get("start"))

		var items []map[string]string
		for i := start; i < start+num && i <= total; i++ {
			items = append(items, map[string]string{
				"title":   fmt.Sprintf("Result %d", i),
				"snippet": "snippet for " + q.Get("q"),
				"link":    fmt.Sprintf("https://example.com/%d", i),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), model.SearchConfig{
		APIKey:   "test-key",
		CX:       "test-cx",
		Endpoint: endpoint + "/",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestFetchEvidence_PreservesOrderAcrossPages(t *testing.T) {
	var calls atomic.Int32
	server := newSearchServer(t, 100, &calls)
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.FetchEvidence(context.Background(), "moon landing", 15)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(items) != 15 {
		t.Fatalf("Expected 15 items, got %d", len(items))
	}
	for i, item := range items {
		want := fmt.Sprintf("Result %d", i+1)
		if item.Title != want {
			t.Errorf("items[%d].Title = %q, want %q", i, item.Title, want)
		}
	}
	if items[0].Snippet != "snippet for moon landing" {
		t.Errorf("Unexpected snippet: %q", items[0].Snippet)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", calls.Load())
	}
}

func TestFetchEvidence_DefaultMax(t *testing.T) {
	var calls atomic.Int32
	server := newSearchServer(t, 100, &calls)
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.FetchEvidence(context.Background(), "claim", 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(items) != DefaultMaxResults {
		t.Errorf("Expected %d items, got %d", DefaultMaxResults, len(items))
	}
}

func TestFetchEvidence_FewerResultsThanRequested(t *testing.T) {
	var calls atomic.Int32
	server := newSearchServer(t, 3, &calls)
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.FetchEvidence(context.Background(), "rare claim", 20)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(items) != 3 {
		t.Errorf("Expected 3 items, got %d", len(items))
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a short page to stop paging, got %d calls", calls.Load())
	}
}

func TestFetchEvidence_NoResults(t *testing.T) {
	var calls atomic.Int32
	server := newSearchServer(t, 0, &calls)
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.FetchEvidence(context.Background(), "nothing", 20)
	if err != nil {
		t.Fatalf("Zero evidence should not be an error, got %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}
}

func TestFetchEvidence_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.FetchEvidence(context.Background(), "claim", 5); err == nil {
		t.Fatal("Expected error for 500 response")
	}
}

func TestFetchEvidence_EmptyQuery(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")
	_, err := client.FetchEvidence(context.Background(), "   ", 5)
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(context.Background(), model.SearchConfig{CX: "cx"}); err == nil {
		t.Error("Expected error without API key")
	}
	if _, err := NewClient(context.Background(), model.SearchConfig{APIKey: "k"}); err == nil {
		t.Error("Expected error without cx")
	}
}

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (s *countingSource) FetchEvidence(_ context.Context, query string, maxResults int) ([]model.EvidenceItem, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []model.EvidenceItem{{Title: query, Snippet: "s", Link: "https://example.com"}}, nil
}

func TestCached_HitsAfterFirstCall(t *testing.T) {
	src := &countingSource{}
	c := NewCached(src, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		items, err := c.FetchEvidence(context.Background(), "q", 20)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(items) != 1 || items[0].Title != "q" {
			t.Fatalf("Unexpected items: %+v", items)
		}
	}
	if src.calls.Load() != 1 {
		t.Errorf("Expected 1 upstream call, got %d", src.calls.Load())
	}

	// A different limit is a different key
	_, _ = c.FetchEvidence(context.Background(), "q", 10)
	if src.calls.Load() != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", src.calls.Load())
	}
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	c := NewCached(src, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if _, err := c.FetchEvidence(context.Background(), "q", 20); err == nil {
			t.Fatal("Expected error")
		}
	}
	if src.calls.Load() != 2 {
		t.Errorf("Expected errors to bypass cache, got %d calls", src.calls.Load())
	}
}
