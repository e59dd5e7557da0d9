package website

import (
	"context"
	"html"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	localMaxBody  = 1 << 20
	localMinBody  = 100
	localUA       = "Mozilla/5.0 (compatible; BuyerUniverseBot/1.0)"
	localScraper  = "local_http"
	readerScraper = "jina"
)

var (
	titleRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	dropRes   = dropBlocks("script", "style", "nav", "footer", "noscript", "svg")
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	blockTags = regexp.MustCompile(`(?i)</?(p|div|br|li|h[1-6]|tr|section|article)[^>]*>`)
	spaceRe   = regexp.MustCompile(`[ \t\r\f\v]+`)
	nlRe      = regexp.MustCompile(`\n\s*\n(\s*\n)+`)
)

func dropBlocks(tags ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(tags))
	for i, tag := range tags {
		out[i] = regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	}
	return out
}

// LocalScraper fetches HTML directly and strips it to text. Blocked pages
// fail so the chain can fall through to the reader.
type LocalScraper struct {
	client *http.Client
}

// NewLocalScraper returns a LocalScraper with the given overall timeout.
func NewLocalScraper(timeout time.Duration) *LocalScraper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LocalScraper{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (l *LocalScraper) Name() string           { return localScraper }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches targetURL and returns its visible text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", localUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, localMaxBody))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", kind)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}

	text := stripHTML(string(body))
	if len(text) < localMinBody {
		return nil, eris.New("local_http: empty page")
	}

	return &Page{
		URL:    resp.Request.URL.String(),
		Title:  extractTitle(body),
		Text:   text,
		Source: localScraper,
	}, nil
}

func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(string(m[1])))
	}
	return ""
}

// stripHTML drops non-content blocks and tags, decodes entities and
// collapses whitespace.
func stripHTML(doc string) string {
	for _, re := range dropRes {
		doc = re.ReplaceAllString(doc, "")
	}
	doc = titleRe.ReplaceAllString(doc, "")
	doc = blockTags.ReplaceAllString(doc, "\n")
	doc = tagRe.ReplaceAllString(doc, " ")
	doc = html.UnescapeString(doc)
	doc = spaceRe.ReplaceAllString(doc, " ")

	lines := strings.Split(doc, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	doc = strings.Join(lines, "\n")
	doc = nlRe.ReplaceAllString(doc, "\n\n")
	return strings.TrimSpace(doc)
}
