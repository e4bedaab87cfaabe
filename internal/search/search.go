// Package search gathers evidence for a claim from a web search API.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/ppiankov/truthguard/internal/model"
)

// DefaultMaxResults bounds the evidence list when the caller passes 0
const DefaultMaxResults = 20

// pageSize is the most results the Custom Search API returns per call
const pageSize = 10

// ErrEmptyQuery is returned when there is nothing to search for
var ErrEmptyQuery = errors.New("search: empty query")

// Source returns evidence items for a query
type Source interface {
	FetchEvidence(ctx context.Context, query string, maxResults int) ([]model.EvidenceItem, error)
}

// Client queries Google Programmable Search (Custom Search JSON API)
type Client struct {
	svc        *customsearch.Service
	cx         string
	maxResults int
	timeout    time.Duration
}

// NewClient creates a new search client from configuration
func NewClient(ctx context.Context, cfg model.SearchConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("search API key is required")
	}
	if cfg.CX == "" {
		return nil, fmt.Errorf("search engine ID (cx) is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	return &Client{
		svc:        svc,
		cx:         cfg.CX,
		maxResults: maxResults,
		timeout:    cfg.Timeout,
	}, nil
}

// FetchEvidence returns up to maxResults items in the order the API ranked
// them. Zero results is not an error.
func (c *Client) FetchEvidence(ctx context.Context, query string, maxResults int) ([]model.EvidenceItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	items := make([]model.EvidenceItem, 0, maxResults)
	start := int64(1)

	// The API pages in chunks of at most 10
	for len(items) < maxResults {
		num := min(pageSize, maxResults-len(items))

		resp, err := c.svc.Cse.List().
			Q(query).
			Cx(c.cx).
			Num(int64(num)).
			Start(start).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}

		for _, r := range resp.Items {
			if r == nil {
				continue
			}
			items = append(items, model.EvidenceItem{
				Title:   r.Title,
				Snippet: r.Snippet,
				Link:    r.Link,
			})
		}

		if len(resp.Items) < num {
			break
		}
		start += int64(len(resp.Items))
	}

	if len(items) > maxResults {
		items = items[:maxResults]
	}
	return items, nil
}
