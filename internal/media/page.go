package media

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ppiankov/truthguard/internal/fetch"
	"github.com/ppiankov/truthguard/internal/model"
)

// Page is the metadata extracted from a social post or article
type Page struct {
	URL         string
	Title       string
	Description string
	// ImageURL is absolute, or empty when the page has no representative image
	ImageURL string
}

// Resolver fetches pages and their images
type Resolver struct {
	pages  *fetch.Fetcher
	images *fetch.Fetcher
	strict *bluemonday.Policy
}

// NewResolver creates a resolver. Images are fetched with their own size limit.
func NewResolver(pages, images *fetch.Fetcher) *Resolver {
	return &Resolver{
		pages:  pages,
		images: images,
		strict: bluemonday.StrictPolicy(),
	}
}

// ResolvePage fetches pageURL and extracts its title, description and image
func (r *Resolver) ResolvePage(ctx context.Context, pageURL string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid page URL: %q", pageURL)
	}

	res, err := r.pages.FetchWithRetry(ctx, pageURL, fetch.AcceptHTML)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	body, err := res.HTMLReader()
	if err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	return r.ParsePage(res.FinalURL, body)
}

// ParsePage extracts metadata from an HTML document. Relative image URLs are
// resolved against baseURL.
func (r *Resolver) ParsePage(baseURL string, body io.Reader) (*Page, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	page := &Page{
		URL:         baseURL,
		Title:       r.clean(doc.Find("title").First().Text()),
		Description: r.clean(doc.Find(`meta[name="description"]`).First().AttrOr("content", "")),
	}

	// og:image wins over the first <img>
	imageURL := ""
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(raw)); err == nil {
		for _, img := range og.Images {
			if img != nil && strings.TrimSpace(img.URL) != "" {
				imageURL = strings.TrimSpace(img.URL)
				break
			}
		}
	}
	if imageURL == "" {
		imageURL = strings.TrimSpace(doc.Find("img[src]").First().AttrOr("src", ""))
	}
	page.ImageURL = resolveURL(baseURL, imageURL)

	return page, nil
}

// FetchImage downloads an image scraped from a page
func (r *Resolver) FetchImage(ctx context.Context, imageURL string) (*model.Media, error) {
	res, err := r.images.FetchWithRetry(ctx, imageURL, fetch.AcceptImage)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if res.Truncated {
		return nil, fmt.Errorf("fetch image: exceeds %d bytes", len(res.Body))
	}
	if len(res.Body) == 0 {
		return nil, fmt.Errorf("fetch image: %w", ErrEmptyImage)
	}

	return &model.Media{MIMEType: RemoteImageMIME(imageURL), Data: res.Body}, nil
}

// clean strips markup and collapses whitespace in scraped text
func (r *Resolver) clean(s string) string {
	s = html.UnescapeString(r.strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL makes ref absolute; data: and unparseable refs are dropped
func resolveURL(baseURL, ref string) string {
	if ref == "" || strings.HasPrefix(strings.ToLower(ref), "data:") {
		return ""
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		if rel.IsAbs() {
			return rel.String()
		}
		return ""
	}
	return base.ResolveReference(rel).String()
}
