package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/llm"
	"github.com/sells-group/buyer-universe/internal/model"
)

// Mapping assigns column indexes to buyer field keys. Unmapped columns are
// ignored on import.
type Mapping map[int]string

// Fields returns the mapped field keys, sorted.
func (m Mapping) Fields() []string {
	out := make([]string, 0, len(m))
	for _, k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Mapper decides which buyer field each column holds.
type Mapper interface {
	Map(ctx context.Context, header []string, sample [][]string) (Mapping, error)
}

// defaultAliases maps normalized header text to buyer field keys.
var defaultAliases = map[string]string{
	"name":                model.BuyerFieldName,
	"buyer":               model.BuyerFieldName,
	"buyer name":          model.BuyerFieldName,
	"company":             model.BuyerFieldName,
	"company name":        model.BuyerFieldName,
	"platform":            model.BuyerFieldName,
	"platform name":       model.BuyerFieldName,
	"type":                model.BuyerFieldType,
	"buyer type":          model.BuyerFieldType,
	"pe firm":             model.BuyerFieldPEFirmName,
	"pe firm name":        model.BuyerFieldPEFirmName,
	"sponsor":             model.BuyerFieldPEFirmName,
	"private equity firm": model.BuyerFieldPEFirmName,
	"website":             model.BuyerFieldWebsite,
	"url":                 model.BuyerFieldWebsite,
	"domain":              model.BuyerFieldWebsite,
	"web":                 model.BuyerFieldWebsite,
	"contact":             model.BuyerFieldContactName,
	"contact name":        model.BuyerFieldContactName,
	"email":               model.BuyerFieldContactEmail,
	"contact email":       model.BuyerFieldContactEmail,
	"phone":               model.BuyerFieldContactPhone,
	"contact phone":       model.BuyerFieldContactPhone,
	"min revenue":         model.BuyerFieldMinRevenue,
	"revenue min":         model.BuyerFieldMinRevenue,
	"minimum revenue":     model.BuyerFieldMinRevenue,
	"max revenue":         model.BuyerFieldMaxRevenue,
	"revenue max":         model.BuyerFieldMaxRevenue,
	"maximum revenue":     model.BuyerFieldMaxRevenue,
	"min ebitda":          model.BuyerFieldMinEBITDA,
	"ebitda min":          model.BuyerFieldMinEBITDA,
	"minimum ebitda":      model.BuyerFieldMinEBITDA,
	"max ebitda":          model.BuyerFieldMaxEBITDA,
	"ebitda max":          model.BuyerFieldMaxEBITDA,
	"maximum ebitda":      model.BuyerFieldMaxEBITDA,
	"geography":           model.BuyerFieldGeography,
	"geographies":         model.BuyerFieldGeography,
	"target geography":    model.BuyerFieldGeography,
	"regions":             model.BuyerFieldGeography,
	"states":              model.BuyerFieldGeography,
	"hq state":            model.BuyerFieldHQState,
	"hq":                  model.BuyerFieldHQState,
	"headquarters":        model.BuyerFieldHQState,
	"state":               model.BuyerFieldHQState,
	"locations":           model.BuyerFieldLocations,
	"location count":      model.BuyerFieldLocations,
	"number of locations": model.BuyerFieldLocations,
	"services":            model.BuyerFieldServices,
	"service lines":       model.BuyerFieldServices,
	"required services":   model.BuyerFieldRequiredServices,
	"must have services":  model.BuyerFieldRequiredServices,
	"preferred services":  model.BuyerFieldPreferredServices,
	"excluded services":   model.BuyerFieldExcludedServices,
	"exclusions":          model.BuyerFieldExcludedServices,
	"thesis":              model.BuyerFieldThesis,
	"investment thesis":   model.BuyerFieldThesis,
	"acquisition thesis":  model.BuyerFieldThesis,
}

// AliasMapper matches headers against a fixed alias table.
type AliasMapper struct {
	aliases map[string]string
}

// NewAliasMapper returns a mapper using the built-in aliases plus extra, which
// maps header text to field keys and wins over the built-ins.
func NewAliasMapper(extra map[string]string) *AliasMapper {
	aliases := make(map[string]string, len(defaultAliases)+len(extra))
	for k, v := range defaultAliases {
		aliases[k] = v
	}
	for k, v := range extra {
		aliases[normalizeHeader(k)] = v
	}
	return &AliasMapper{aliases: aliases}
}

// Map implements Mapper. When two columns resolve to the same field the
// leftmost wins.
func (a *AliasMapper) Map(_ context.Context, header []string, _ [][]string) (Mapping, error) {
	m := make(Mapping)
	taken := make(map[string]bool)
	for i, h := range header {
		key, ok := a.aliases[normalizeHeader(h)]
		if !ok {
			if isBuyerField(h) {
				key, ok = strings.ToLower(strings.TrimSpace(h)), true
			}
		}
		if !ok || taken[key] {
			continue
		}
		m[i] = key
		taken[key] = true
	}
	return m, nil
}

// normalizeHeader lower-cases h and collapses punctuation and underscores
// to single spaces. Parenthesized units such as "($M)" are dropped.
func normalizeHeader(h string) string {
	if i := strings.IndexByte(h, '('); i > 0 {
		h = h[:i]
	}
	fields := strings.FieldsFunc(strings.ToLower(h), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

func isBuyerField(h string) bool {
	h = strings.ToLower(strings.TrimSpace(h))
	for _, f := range model.BuyerFields {
		if f == h {
			return true
		}
	}
	return false
}

const mappingSystem = `You map spreadsheet columns to fields of an M&A buyer database.
Reply with one JSON object: {"columns": {"<header>": "<field key or null>"}}.
Use null for columns that match no field. Never map two columns to the same field.
Field keys: %s`

// sampleRows is how many data rows the LLM mapper sees.
const sampleRows = 3

// LLMMapper asks the model to map headers the alias table cannot place.
type LLMMapper struct {
	caller *llm.Caller
	alias  *AliasMapper
}

// NewLLMMapper returns a mapper that resolves known aliases locally and sends
// the remaining headers to the model.
func NewLLMMapper(caller *llm.Caller, alias *AliasMapper) *LLMMapper {
	if alias == nil {
		alias = NewAliasMapper(nil)
	}
	return &LLMMapper{caller: caller, alias: alias}
}

// Map implements Mapper.
func (l *LLMMapper) Map(ctx context.Context, header []string, sample [][]string) (Mapping, error) {
	m, _ := l.alias.Map(ctx, header, sample)
	taken := make(map[string]bool, len(m))
	for _, k := range m {
		taken[k] = true
	}

	var unmapped []int
	for i, h := range header {
		if _, ok := m[i]; !ok && h != "" {
			unmapped = append(unmapped, i)
		}
	}
	if len(unmapped) == 0 {
		return m, nil
	}

	var b strings.Builder
	for _, i := range unmapped {
		fmt.Fprintf(&b, "- %q, examples: %s\n", header[i], sampleValues(sample, i))
	}
	var reply struct {
		Columns map[string]*string `json:"columns"`
	}
	if _, err := l.caller.JSON(ctx, llm.Request{
		Phase:  "mapping",
		Tier:   llm.TierFast,
		System: fmt.Sprintf(mappingSystem, strings.Join(model.BuyerFields, ", ")),
		Prompt: "Columns:\n" + b.String(),
	}, &reply); err != nil {
		return nil, eris.Wrap(err, "importer: map columns")
	}

	for _, i := range unmapped {
		key := reply.Columns[header[i]]
		if key == nil {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(*key))
		if !isBuyerField(k) || taken[k] {
			zap.L().Debug("importer: ignoring column mapping",
				zap.String("header", header[i]),
				zap.String("field", k),
			)
			continue
		}
		m[i] = k
		taken[k] = true
	}
	return m, nil
}

func sampleValues(rows [][]string, col int) string {
	var vals []string
	for _, r := range rows {
		if len(vals) == sampleRows {
			break
		}
		if col < len(r) && r[col] != "" {
			vals = append(vals, r[col])
		}
	}
	out, _ := json.Marshal(vals)
	return string(out)
}
