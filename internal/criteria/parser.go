// Package criteria turns a tracker's free-text buyer criteria into
// structured scoring hints.
package criteria

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/llm"
	"github.com/sells-group/buyer-universe/internal/model"
)

const systemPrompt = `You convert M&A buyer-search criteria into structured JSON.
Reply with one JSON object and nothing else. Omit any key the text does not support.

Keys:
- geography_strictness: "strict" | "moderate" | "relaxed". Strict when buyers must be in-region.
- size_importance: "high" | "medium" | "low".
- size_hard_gate: true only when deals outside the size range must be rejected outright.
- min_revenue, max_revenue, min_ebitda, max_ebitda: USD millions as numbers.
- required_services, preferred_services, excluded_services: short service names.
- target_geographies: US state codes, state names or regions ("Southeast", "National").
- buyer_type_profiles: [{"name", "buyer_types": ["platform"|"pe_firm"|"strategic"], "min_locations",
  "min_revenue_per_location", "max_revenue_per_location"}] for priority buyer archetypes.`

// Parser extracts CriteriaHints with an LLM.
type Parser struct {
	caller *llm.Caller
}

// NewParser returns a Parser using caller.
func NewParser(caller *llm.Caller) *Parser {
	return &Parser{caller: caller}
}

// reply mirrors CriteriaHints with loose money fields; models often answer
// "$5M" instead of 5.
type reply struct {
	GeographyStrictness string         `json:"geography_strictness"`
	SizeImportance      string         `json:"size_importance"`
	SizeHardGate        bool           `json:"size_hard_gate"`
	MinRevenue          any            `json:"min_revenue"`
	MaxRevenue          any            `json:"max_revenue"`
	MinEBITDA           any            `json:"min_ebitda"`
	MaxEBITDA           any            `json:"max_ebitda"`
	RequiredServices    []string       `json:"required_services"`
	PreferredServices   []string       `json:"preferred_services"`
	ExcludedServices    []string       `json:"excluded_services"`
	TargetGeographies   []string       `json:"target_geographies"`
	BuyerTypeProfiles   []profileReply `json:"buyer_type_profiles"`
}

type profileReply struct {
	Name                  string   `json:"name"`
	BuyerTypes            []string `json:"buyer_types"`
	MinLocations          any      `json:"min_locations"`
	MinRevenuePerLocation any      `json:"min_revenue_per_location"`
	MaxRevenuePerLocation any      `json:"max_revenue_per_location"`
}

// Parse reads t's criteria text and returns validated hints. A tracker with
// no criteria text returns an error without calling the model.
func (p *Parser) Parse(ctx context.Context, t *model.Tracker) (*model.CriteriaHints, model.TokenUsage, error) {
	prompt := buildPrompt(t)
	if prompt == "" {
		return nil, model.TokenUsage{}, eris.Errorf("criteria: tracker %s has no criteria text", t.ID)
	}

	var r reply
	usage, err := p.caller.JSON(ctx, llm.Request{
		Phase:  "criteria",
		Tier:   llm.TierSmart,
		System: systemPrompt,
		Prompt: prompt,
	}, &r)
	if err != nil {
		return nil, usage, eris.Wrapf(err, "criteria: parse tracker %s", t.ID)
	}

	hints := r.toHints()
	if err := hints.Validate(); err != nil {
		return nil, usage, eris.Wrapf(err, "criteria: tracker %s", t.ID)
	}

	zap.L().Info("criteria: parsed tracker",
		zap.String("tracker_id", t.ID),
		zap.Int("required_services", len(hints.RequiredServices)),
		zap.Int("excluded_services", len(hints.ExcludedServices)),
		zap.Int("profiles", len(hints.BuyerTypeProfiles)),
	)
	return hints, usage, nil
}

func buildPrompt(t *model.Tracker) string {
	var b strings.Builder
	for _, sec := range []struct{ label, text string }{
		{"Size criteria", t.SizeCriteria},
		{"Service criteria", t.ServiceCriteria},
		{"Geography criteria", t.GeographyCriteria},
		{"Buyer types", t.BuyerTypesCriteria},
	} {
		if text := strings.TrimSpace(sec.text); text != "" {
			fmt.Fprintf(&b, "%s:\n%s\n\n", sec.label, text)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	header := "Tracker: " + t.Name
	if t.Industry != "" {
		header += " (" + t.Industry + ")"
	}
	return header + "\n\n" + strings.TrimSpace(b.String())
}

func (r reply) toHints() *model.CriteriaHints {
	h := &model.CriteriaHints{
		GeographyStrictness: model.Strictness(strings.ToLower(strings.TrimSpace(r.GeographyStrictness))),
		SizeImportance:      model.Importance(strings.ToLower(strings.TrimSpace(r.SizeImportance))),
		SizeHardGate:        r.SizeHardGate,
		MinRevenue:          millions(r.MinRevenue),
		MaxRevenue:          millions(r.MaxRevenue),
		MinEBITDA:           millions(r.MinEBITDA),
		MaxEBITDA:           millions(r.MaxEBITDA),
		RequiredServices:    model.ToStringSlice(r.RequiredServices),
		PreferredServices:   model.ToStringSlice(r.PreferredServices),
		ExcludedServices:    model.ToStringSlice(r.ExcludedServices),
		TargetGeographies:   model.ToStringSlice(r.TargetGeographies),
	}
	for _, pr := range r.BuyerTypeProfiles {
		p := model.BuyerTypeProfile{
			Name:                  strings.TrimSpace(pr.Name),
			MinRevenuePerLocation: millions(pr.MinRevenuePerLocation),
			MaxRevenuePerLocation: millions(pr.MaxRevenuePerLocation),
		}
		for _, raw := range pr.BuyerTypes {
			if bt := model.ParseBuyerType(raw); bt != "" {
				p.BuyerTypes = append(p.BuyerTypes, bt)
			}
		}
		if n, ok := model.ToInt(pr.MinLocations); ok {
			p.MinLocations = &n
		}
		h.BuyerTypeProfiles = append(h.BuyerTypeProfiles, p)
	}
	return h
}

func millions(v any) *float64 {
	f, ok := model.ToMillions(v)
	if !ok {
		return nil
	}
	return &f
}
