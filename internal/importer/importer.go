package importer

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/buyer-universe/internal/model"
)

// Record is one spreadsheet row reduced to the buyer fields it populates.
type Record struct {
	// Line is the 1-based line in the source file, header included.
	Line   int
	Values map[string]string
}

// Name returns the row's buyer name.
func (r Record) Name() string { return r.Values[model.BuyerFieldName] }

// Website returns the row's website.
func (r Record) Website() string { return r.Values[model.BuyerFieldWebsite] }

// Fields returns the populated field keys, sorted.
func (r Record) Fields() []string {
	out := make([]string, 0, len(r.Values))
	for k := range r.Values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RowError explains why a row was skipped.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Parsed is a mapped table.
type Parsed struct {
	Mapping Mapping
	Records []Record
	Skipped []RowError
}

// Parse maps t's columns with m and converts every non-blank row into a
// Record. Rows without a buyer name are skipped.
func Parse(ctx context.Context, t *Table, m Mapper) (*Parsed, error) {
	sample := t.Rows
	if len(sample) > sampleRows {
		sample = sample[:sampleRows]
	}
	mapping, err := m.Map(ctx, t.Header, sample)
	if err != nil {
		return nil, err
	}
	if !hasField(mapping, model.BuyerFieldName) {
		return nil, eris.Errorf("importer: no column maps to %q (headers: %s)",
			model.BuyerFieldName, strings.Join(t.Header, ", "))
	}

	p := &Parsed{Mapping: mapping}
	for i, row := range t.Rows {
		line := i + 2
		if isBlankRow(row) {
			continue
		}
		rec := Record{Line: line, Values: make(map[string]string, len(mapping))}
		for col, key := range mapping {
			if col < len(row) && row[col] != "" {
				rec.Values[key] = row[col]
			}
		}
		if rec.Name() == "" {
			p.Skipped = append(p.Skipped, RowError{Line: line, Reason: "missing buyer name"})
			continue
		}
		p.Records = append(p.Records, rec)
	}
	return p, nil
}

func hasField(m Mapping, key string) bool {
	for _, k := range m {
		if k == key {
			return true
		}
	}
	return false
}

// DedupeKey identifies a buyer across imports: the normalized website domain
// when known, otherwise the case-folded name.
func DedupeKey(name, website string) string {
	if d := model.NormalizeDomain(website); d != "" {
		return "domain:" + d
	}
	n := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	if n == "" {
		return ""
	}
	return "name:" + n
}
