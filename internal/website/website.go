// Package website fetches buyer and deal websites as plain text for
// extraction. Scrapers are tried in order: a direct HTTP fetch first, then
// the Jina Reader for pages that block bots or render client-side.
package website

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultMaxChars caps the text handed to the model.
const DefaultMaxChars = 30000

// Page is one fetched page.
type Page struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"-"`
	Source string `json:"source"`
	// Truncated is set when Text was cut to the chain's limit.
	Truncated bool `json:"truncated,omitempty"`
}

// Scraper fetches a single URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Page, error)
	Name() string
	Supports(url string) bool
}

// Chain tries scrapers in priority order and returns the first success.
type Chain struct {
	scrapers []Scraper
	maxChars int
}

// NewChain returns a chain over scrapers. maxChars <= 0 uses DefaultMaxChars.
func NewChain(maxChars int, scrapers ...Scraper) *Chain {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Chain{scrapers: scrapers, maxChars: maxChars}
}

// Fetch normalizes raw, scrapes it and truncates the text.
func (c *Chain) Fetch(ctx context.Context, raw string) (*Page, error) {
	target, err := NormalizeURL(raw)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(target) {
			continue
		}
		page, err := s.Scrape(ctx, target)
		if err == nil && page != nil {
			if len(page.Text) > c.maxChars {
				page.Text = page.Text[:c.maxChars]
				page.Truncated = true
			}
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "website: fetch cancelled")
		}
		if err != nil {
			zap.L().Debug("website: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", target),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "website: all scrapers failed")
	}
	return nil, eris.Errorf("website: no scraper available for %s", target)
}

// NormalizeURL turns a bare domain or URL into an absolute http(s) URL.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("website: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "website: parse url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("website: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" || !strings.Contains(u.Hostname(), ".") && u.Hostname() != "localhost" && !isIP(u.Hostname()) {
		return "", eris.Errorf("website: invalid host in %q", raw)
	}
	return u.String(), nil
}

func isIP(host string) bool { return net.ParseIP(host) != nil }
