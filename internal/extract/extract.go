// Package extract pulls buyer and deal field values out of unstructured text
// (call transcripts, analyst notes, website copy) with an LLM.
package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/llm"
	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/provenance"
)

// Target is the kind of record being extracted.
type Target string

const (
	TargetBuyer Target = "buyer"
	TargetDeal  Target = "deal"
)

// maxTextRunes caps the document sent to the model.
const maxTextRunes = 60_000

var fieldDocs = map[Target]string{
	TargetBuyer: `- type: "platform" | "pe_firm" | "strategic"
- pe_firm_name, website, contact_name, contact_email, contact_phone: strings
- min_revenue, max_revenue, min_ebitda, max_ebitda: acquisition size appetite in USD millions
- geography: list of states or regions where the buyer operates or wants to acquire
- hq_state: headquarters state
- locations: number of locations the buyer operates
- services: services the buyer offers
- required_services, preferred_services, excluded_services: what targets must, should or must not offer
- thesis: one or two sentence acquisition thesis
- thesis_confidence: "high" | "medium" | "low"`,
	TargetDeal: `- domain: company website
- revenue, ebitda: USD millions
- geography: list of states or regions the company serves
- hq_state: headquarters state
- locations: number of locations
- service_mix: services the company offers`,
}

// Result is the outcome of one extraction.
type Result struct {
	Target Target
	Source provenance.Source
	// Fields maps field keys to raw values as returned by the model. Only
	// keys the target's ApplyField understands are kept.
	Fields map[string]any
	Usage  model.TokenUsage
}

// Keys returns the extracted field keys, sorted.
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Extractor runs extraction prompts.
type Extractor struct {
	caller *llm.Caller
}

// New returns an Extractor using caller.
func New(caller *llm.Caller) *Extractor {
	return &Extractor{caller: caller}
}

// Extract reads text about subject and returns the field values it states.
// Fields the text is silent on are absent from the result.
func (e *Extractor) Extract(ctx context.Context, target Target, source provenance.Source, subject, text string) (*Result, error) {
	docs, ok := fieldDocs[target]
	if !ok {
		return nil, eris.Errorf("extract: unknown target %q", target)
	}
	if !source.Valid() {
		return nil, eris.Errorf("extract: unknown source %q", source)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, eris.New("extract: text is empty")
	}
	if r := []rune(text); len(r) > maxTextRunes {
		text = string(r[:maxTextRunes])
	}

	system := fmt.Sprintf(`You extract facts about a %s from a %s for an M&A buyer database.
Reply with one JSON object: {"fields": {...}}. Include only facts the document states; never guess.
Allowed field keys:
%s`, target, source, docs)
	prompt := fmt.Sprintf("Subject: %s\n\nDocument:\n%s", subject, text)

	var out struct {
		Fields map[string]any `json:"fields"`
	}
	usage, err := e.caller.JSON(ctx, llm.Request{
		Phase:  "extract_" + string(target),
		Tier:   llm.TierFast,
		System: system,
		Prompt: prompt,
	}, &out)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: %s from %s", target, source)
	}

	res := &Result{Target: target, Source: source, Fields: filterFields(target, out.Fields), Usage: usage}
	zap.L().Info("extract: fields extracted",
		zap.String("target", string(target)),
		zap.String("source", string(source)),
		zap.Strings("fields", res.Keys()),
	)
	return res, nil
}

func filterFields(target Target, in map[string]any) map[string]any {
	allowed := model.BuyerFields
	if target == TargetDeal {
		allowed = model.DealFields
	}
	known := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		known[k] = true
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if !known[k] || isBlank(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	default:
		return false
	}
}
