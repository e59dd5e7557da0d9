package universe

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/importer"
	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/provenance"
)

// ImportReport summarizes a buyer import.
type ImportReport struct {
	Created int                 `json:"created"`
	Updated int                 `json:"updated"`
	Skipped []importer.RowError `json:"skipped,omitempty"`
	// Protected maps buyer IDs to fields the import could not overwrite.
	Protected map[string][]string `json:"protected,omitempty"`
}

// Mapper returns the column mapper for imports: the LLM mapper when a model
// is configured and useLLM is set, otherwise the alias table.
func (s *Service) Mapper(useLLM bool, aliases map[string]string) importer.Mapper {
	alias := importer.NewAliasMapper(aliases)
	if useLLM && s.caller != nil {
		return importer.NewLLMMapper(s.caller, alias)
	}
	return alias
}

// ImportBuyers merges parsed spreadsheet rows into trackerID. Rows matching
// an existing buyer by website domain or name update it through the
// provenance gate with the CSV source; other rows create new buyers.
func (s *Service) ImportBuyers(ctx context.Context, trackerID string, parsed *importer.Parsed) (*ImportReport, error) {
	if _, err := s.store.GetTracker(ctx, trackerID); err != nil {
		return nil, eris.Wrap(err, "universe: load tracker")
	}
	existing, err := s.store.ListBuyers(ctx, trackerID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: list buyers")
	}

	index := make(map[string]*model.Buyer, len(existing)*2)
	remember := func(b *model.Buyer) {
		for _, key := range buyerKeys(b.Name, b.Website) {
			if _, ok := index[key]; !ok {
				index[key] = b
			}
		}
	}
	for i := range existing {
		remember(&existing[i])
	}

	rep := &ImportReport{Skipped: parsed.Skipped, Protected: make(map[string][]string)}
	for _, rec := range parsed.Records {
		if err := ctx.Err(); err != nil {
			return rep, eris.Wrap(err, "universe: import interrupted")
		}
		values := make(map[string]any, len(rec.Values))
		for k, v := range rec.Values {
			values[k] = v
		}

		var match *model.Buyer
		for _, key := range buyerKeys(rec.Name(), rec.Website()) {
			if b, ok := index[key]; ok {
				match = b
				break
			}
		}

		if match == nil {
			b := &model.Buyer{TrackerID: trackerID}
			u := s.applyValues(&b.ExtractionSources, provenance.SourceCSV, values, b.ApplyField)
			if b.Name == "" {
				rep.Skipped = append(rep.Skipped, importer.RowError{Line: rec.Line, Reason: "invalid buyer name"})
				continue
			}
			if err := s.store.CreateBuyer(ctx, b); err != nil {
				return rep, eris.Wrapf(err, "universe: create buyer from line %d", rec.Line)
			}
			if len(u.Rejected) > 0 {
				zap.L().Debug("universe: import rejected values",
					zap.Int("line", rec.Line), zap.Strings("fields", u.Rejected))
			}
			remember(b)
			rep.Created++
			continue
		}

		u := s.applyValues(&match.ExtractionSources, provenance.SourceCSV, values, match.ApplyField)
		if len(u.Protected) > 0 {
			rep.Protected[match.ID] = u.Protected
		}
		if len(u.Applied) == 0 {
			continue
		}
		if err := s.store.UpdateBuyer(ctx, match); err != nil {
			return rep, eris.Wrapf(err, "universe: update buyer from line %d", rec.Line)
		}
		rep.Updated++
	}

	zap.L().Info("universe: buyers imported",
		zap.String("tracker_id", trackerID),
		zap.Int("created", rep.Created),
		zap.Int("updated", rep.Updated),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Int("protected", len(rep.Protected)),
	)
	return rep, nil
}

// buyerKeys returns the dedupe keys for a buyer, domain first.
func buyerKeys(name, website string) []string {
	var keys []string
	if k := importer.DedupeKey("", website); k != "" {
		keys = append(keys, k)
	}
	if k := importer.DedupeKey(name, ""); k != "" {
		keys = append(keys, k)
	}
	return keys
}
