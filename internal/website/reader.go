package website

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/buyer-universe/internal/resilience"
	"github.com/sells-group/buyer-universe/pkg/jina"
)

// ReaderScraper renders pages through the Jina Reader. 429 and 5xx answers
// are retried; repeated failures of any kind open a breaker so the chain
// stops waiting on a degraded reader.
type ReaderScraper struct {
	client  jina.Client
	retry   resilience.RetryPolicy
	breaker *resilience.Breaker
}

// NewReaderScraper wraps client. The breaker opens after three consecutive
// failed reads and allows a trial read after a minute.
func NewReaderScraper(client jina.Client, retry resilience.RetryPolicy) *ReaderScraper {
	return &ReaderScraper{
		client: client,
		retry:  retry,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Threshold: 3,
			Cooldown:  time.Minute,
			Trips:     func(err error) bool { return err != nil },
		}),
	}
}

func (r *ReaderScraper) Name() string { return readerScraper }

// Supports is false while the breaker is open.
func (r *ReaderScraper) Supports(_ string) bool {
	return r.breaker.State() != resilience.Open
}

// Scrape reads targetURL through the reader.
func (r *ReaderScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	return resilience.Guard(ctx, r.breaker, func(ctx context.Context) (*Page, error) {
		p, err := resilience.Retry(ctx, r.retry, func(ctx context.Context) (*jina.Page, error) {
			return r.client.Read(ctx, targetURL)
		})
		if err != nil {
			return nil, err
		}
		if looksBlocked(p.Content) {
			return nil, eris.Errorf("jina: no usable content for %s", targetURL)
		}
		u := p.URL
		if u == "" {
			u = targetURL
		}
		return &Page{URL: u, Title: p.Title, Text: p.Content, Source: readerScraper}, nil
	})
}
