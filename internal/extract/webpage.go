package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"recipebox/internal/recipe"
)

const (
	// DefaultFetchTimeout bounds a single page fetch, redirects included.
	DefaultFetchTimeout = 30 * time.Second

	// Some recipe sites reject clients that do not look like a browser.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	maxPageBytes = 5 << 20

	fallbackPageTitle = "Recipe from URL"
)

// WebpageExtractor imports recipes from pages that publish schema.org
// JSON-LD metadata, falling back to the page heading when they do not.
type WebpageExtractor struct {
	httpClient *http.Client
}

// NewWebpageExtractor creates a WebpageExtractor. A nil client gets a default
// one with the given timeout; net/http follows redirects on its own.
func NewWebpageExtractor(httpClient *http.Client, timeout time.Duration) *WebpageExtractor {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = DefaultFetchTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &WebpageExtractor{httpClient: httpClient}
}

// NormalizeURL trims the input and assumes https when no scheme is given.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("url has no host")
	}
	return u.String(), nil
}

// Extract fetches pageURL and maps its recipe metadata. The only error it
// returns is a *FetchError; unparsable pages degrade to the heading fallback.
func (e *WebpageExtractor) Extract(ctx context.Context, pageURL string) (*recipe.Extraction, error) {
	target, err := NormalizeURL(pageURL)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	body, err := e.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		// html.Parse only fails on reader errors, which a string cannot produce.
		return nil, &FetchError{URL: target, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	if obj, ok := findRecipeObject(jsonLDDocuments(doc, target)); ok {
		ext := mapRecipeObject(obj)
		slog.Debug("recipe found in JSON-LD", "url", target, "title", ext.Title)
		return &ext, nil
	}

	slog.Warn("no JSON-LD recipe found, using page heading", "url", target)
	ext := headingFallback(doc, target)
	return &ext, nil
}

func (e *WebpageExtractor) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", &FetchError{URL: target, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	return string(b), nil
}

// jsonLDDocuments parses every ld+json script in document order, skipping
// blocks that are not valid JSON.
func jsonLDDocuments(doc *goquery.Document, pageURL string) []any {
	var docs []any
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			slog.Debug("skipping malformed JSON-LD block", "url", pageURL, "index", i, "error", err)
			return
		}
		docs = append(docs, data)
	})
	return docs
}

func headingFallback(doc *goquery.Document, pageURL string) recipe.Extraction {
	title := fallbackPageTitle
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		if text := strings.TrimSpace(h1.Text()); text != "" {
			title = text
		}
	}
	return recipe.Extraction{
		Title:        title,
		Description:  "Recipe imported from " + pageURL,
		Ingredients:  []recipe.Ingredient{},
		Instructions: []string{},
	}
}
