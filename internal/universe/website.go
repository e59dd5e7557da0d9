package universe

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/provenance"
	"github.com/sells-group/buyer-universe/internal/website"
)

// ExtractBuyerWebsite fetches rawURL, or the buyer's own website when rawURL
// is empty, and applies what the model extracts from it with the website
// source.
func (s *Service) ExtractBuyerWebsite(ctx context.Context, buyerID, rawURL string) (*UpdateReport, error) {
	if err := s.websiteReady(); err != nil {
		return nil, err
	}
	b, err := s.store.GetBuyer(ctx, buyerID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load buyer")
	}
	if rawURL == "" {
		rawURL = b.Website
	}
	page, err := s.fetchPage(ctx, "buyer", buyerID, rawURL)
	if err != nil {
		return nil, err
	}
	rep, err := s.ExtractBuyer(ctx, buyerID, provenance.SourceWebsite, page.Text)
	if err != nil {
		return nil, err
	}
	rep.Page = page
	return rep, nil
}

// ExtractDealWebsite fetches rawURL, or the deal's domain when rawURL is
// empty, and applies what the model extracts from it with the website
// source.
func (s *Service) ExtractDealWebsite(ctx context.Context, dealID, rawURL string) (*UpdateReport, error) {
	if err := s.websiteReady(); err != nil {
		return nil, err
	}
	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load deal")
	}
	if rawURL == "" {
		rawURL = d.Domain
	}
	page, err := s.fetchPage(ctx, "deal", dealID, rawURL)
	if err != nil {
		return nil, err
	}
	rep, err := s.ExtractDeal(ctx, dealID, provenance.SourceWebsite, page.Text)
	if err != nil {
		return nil, err
	}
	rep.Page = page
	return rep, nil
}

func (s *Service) websiteReady() error {
	if s.extractor == nil {
		return ErrLLMUnavailable
	}
	if s.pages == nil {
		return ErrFetchUnavailable
	}
	return nil
}

func (s *Service) fetchPage(ctx context.Context, kind, id, rawURL string) (*website.Page, error) {
	if rawURL == "" {
		return nil, invalid("%s %s has no website", kind, id)
	}
	target, err := website.NormalizeURL(rawURL)
	if err != nil {
		return nil, invalid("%s", err.Error())
	}
	page, err := s.pages.Fetch(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "universe: fetch cancelled")
		}
		return nil, eris.Wrapf(ErrFetchFailed, "%s: %v", target, err)
	}
	zap.L().Info("universe: fetched website",
		zap.String(kind+"_id", id),
		zap.String("url", page.URL),
		zap.String("scraper", page.Source),
		zap.Int("chars", len(page.Text)),
		zap.Bool("truncated", page.Truncated),
	)
	return page, nil
}
