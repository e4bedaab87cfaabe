// Package fetch retrieves remote pages and images for verification.
package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/ppiankov/truthguard/internal/model"
	"github.com/ppiankov/truthguard/internal/util"
	"github.com/ppiankov/truthguard/internal/worker"
)

// Accept headers for the two kinds of resources we fetch
const (
	AcceptHTML  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	AcceptImage = "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8"
)

const maxAttempts = 3

// ErrDisallowed is returned when robots.txt forbids the URL
var ErrDisallowed = errors.New("disallowed by robots.txt")

// fetchSleepFunc is swapped out in tests
var fetchSleepFunc = time.Sleep

// Fetcher performs bounded GET requests
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(timeout time.Duration, userAgent string, maxBytes int64, insecure bool, httpProxy, httpsProxy, noProxy string) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(httpProxy, httpsProxy, noProxy)
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// FromConfig builds a fetcher from the http and rate_limiting sections
func FromConfig(httpCfg model.HTTPConfig, rl model.RateLimitingConfig) *Fetcher {
	f := NewFetcher(httpCfg.Timeout, httpCfg.UserAgent, httpCfg.MaxBodyBytes, httpCfg.InsecureTLS,
		httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy)
	if httpCfg.RespectRobots {
		f.WithRobots(util.NewRobotsChecker(f.httpClient, httpCfg.UserAgent))
	}
	if rl.RequestsPerSecond > 0 {
		f.WithLimiter(worker.NewLimiter(rl.RequestsPerSecond, rl.BurstSize))
	}
	return f
}

// WithRobots enables robots.txt checks
func (f *Fetcher) WithRobots(r *util.RobotsChecker) *Fetcher {
	f.robots = r
	return f
}

// WithLimiter enables per-host rate limiting
func (f *Fetcher) WithLimiter(l *worker.Limiter) *Fetcher {
	f.limiter = l
	return f
}

// Result contains the fetched body and metadata
type Result struct {
	Body        []byte
	ContentType string
	StatusCode  int
	FinalURL    string
	// Truncated is set when the body hit the size limit
	Truncated bool
}

// HTMLReader returns the body decoded to UTF-8 using the declared or sniffed charset
func (r *Result) HTMLReader() (io.Reader, error) {
	return charset.NewReader(bytes.NewReader(r.Body), r.ContentType)
}

// Fetch performs a single GET of rawURL
func (f *Fetcher) Fetch(ctx context.Context, rawURL, accept string) (*Result, error) {
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		if f.limiter != nil {
			if err := f.limiter.WaitWithDelay(ctx, rawURL, delay); err != nil {
				return nil, fmt.Errorf("rate limit: %w", err)
			}
		}
	} else if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	// Read one byte past the limit to detect truncation
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
	}

	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		Truncated:   truncated,
	}, nil
}

// FetchWithRetry retries transient failures (5xx, 429, connection errors)
// with linear backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL, accept string) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := f.Fetch(ctx, rawURL, accept)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableFetchError(err) || attempt == maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fetchSleepFunc(time.Duration(attempt) * 500 * time.Millisecond)
	}
	return nil, lastErr
}

// isRetryableFetchError classifies errors by the messages Fetch produces
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := err.Error()
	if strings.HasPrefix(msg, "unexpected status: ") {
		code := strings.TrimPrefix(msg, "unexpected status: ")
		return strings.HasPrefix(code, "5") || strings.HasPrefix(code, "429")
	}
	return strings.HasPrefix(msg, "fetch: ")
}
