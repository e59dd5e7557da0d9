package universe

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/extract"
	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/provenance"
	"github.com/sells-group/buyer-universe/internal/website"
)

// UpdateReport describes what one ingestion did to a record.
type UpdateReport struct {
	Source provenance.Source `json:"source"`
	// Applied fields were written and recorded in the extraction sources.
	Applied []string `json:"applied"`
	// Protected fields were skipped because a higher-trust source owns them.
	Protected []string `json:"protected,omitempty"`
	// Rejected fields had unknown keys or values that could not be converted.
	Rejected []string         `json:"rejected,omitempty"`
	Usage    model.TokenUsage `json:"usage"`
	// Page is the fetched page for website extractions.
	Page *website.Page `json:"page,omitempty"`
}

// applyValues runs values through the provenance gate and apply, then
// appends one entry naming the fields actually written.
func (s *Service) applyValues(entries *provenance.Entries, source provenance.Source, values map[string]any, apply func(string, any) bool) *UpdateReport {
	rep := &UpdateReport{Source: source}
	writable, protected := provenance.Partition(*entries, source, sortedKeys(values))
	rep.Protected = protected
	for _, key := range writable {
		if apply(key, values[key]) {
			rep.Applied = append(rep.Applied, key)
		} else {
			rep.Rejected = append(rep.Rejected, key)
		}
	}
	*entries = provenance.AppendEntry(*entries, source, rep.Applied, s.now())
	return rep
}

// ApplyBuyerUpdate writes values from source onto a buyer. Fields held by a
// higher-trust source are left untouched and reported as protected.
func (s *Service) ApplyBuyerUpdate(ctx context.Context, buyerID string, source provenance.Source, values map[string]any) (*UpdateReport, error) {
	if !source.Valid() {
		return nil, invalid("unknown source %q", source)
	}
	b, err := s.store.GetBuyer(ctx, buyerID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load buyer")
	}
	rep := s.applyValues(&b.ExtractionSources, source, values, b.ApplyField)
	if len(rep.Applied) > 0 {
		if err := s.store.UpdateBuyer(ctx, b); err != nil {
			return nil, eris.Wrap(err, "universe: save buyer")
		}
	}
	logUpdate("buyer", buyerID, rep)
	return rep, nil
}

// ApplyDealUpdate writes values from source onto a deal.
func (s *Service) ApplyDealUpdate(ctx context.Context, dealID string, source provenance.Source, values map[string]any) (*UpdateReport, error) {
	if !source.Valid() {
		return nil, invalid("unknown source %q", source)
	}
	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load deal")
	}
	rep := s.applyValues(&d.ExtractionSources, source, values, d.ApplyField)
	if len(rep.Applied) > 0 {
		if err := s.store.UpdateDeal(ctx, d); err != nil {
			return nil, eris.Wrap(err, "universe: save deal")
		}
	}
	logUpdate("deal", dealID, rep)
	return rep, nil
}

// ExtractBuyer reads text from source with the model and applies the
// extracted values to the buyer.
func (s *Service) ExtractBuyer(ctx context.Context, buyerID string, source provenance.Source, text string) (*UpdateReport, error) {
	if s.extractor == nil {
		return nil, ErrLLMUnavailable
	}
	b, err := s.store.GetBuyer(ctx, buyerID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load buyer")
	}
	res, err := s.extractor.Extract(ctx, extract.TargetBuyer, source, b.Name, text)
	if err != nil {
		return nil, err
	}
	rep, err := s.ApplyBuyerUpdate(ctx, buyerID, source, res.Fields)
	if err != nil {
		return nil, err
	}
	rep.Usage = res.Usage
	return rep, nil
}

// ExtractDeal reads text from source with the model and applies the
// extracted values to the deal.
func (s *Service) ExtractDeal(ctx context.Context, dealID string, source provenance.Source, text string) (*UpdateReport, error) {
	if s.extractor == nil {
		return nil, ErrLLMUnavailable
	}
	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load deal")
	}
	res, err := s.extractor.Extract(ctx, extract.TargetDeal, source, d.Name, text)
	if err != nil {
		return nil, err
	}
	rep, err := s.ApplyDealUpdate(ctx, dealID, source, res.Fields)
	if err != nil {
		return nil, err
	}
	rep.Usage = res.Usage
	return rep, nil
}

func logUpdate(kind, id string, rep *UpdateReport) {
	zap.L().Info("universe: applied "+kind+" update",
		zap.String(kind+"_id", id),
		zap.String("source", string(rep.Source)),
		zap.Strings("applied", rep.Applied),
		zap.Strings("protected", rep.Protected),
		zap.Strings("rejected", rep.Rejected),
	)
}
