package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/buyer-universe/internal/model"
)

// bounds is a min/max window in USD millions; either side may be open.
type bounds struct {
	min, max *float64
}

func (b bounds) empty() bool { return b.min == nil && b.max == nil }

func (b bounds) String() string {
	switch {
	case b.min != nil && b.max != nil:
		return fmt.Sprintf("$%sM-$%sM", fmtMillions(*b.min), fmtMillions(*b.max))
	case b.min != nil:
		return fmt.Sprintf(">= $%sM", fmtMillions(*b.min))
	case b.max != nil:
		return fmt.Sprintf("<= $%sM", fmtMillions(*b.max))
	}
	return "unbounded"
}

func fmtMillions(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

// sizeBounds prefers the buyer's own window and falls back to the tracker's.
func sizeBounds(buyerMin, buyerMax, hintMin, hintMax *float64) bounds {
	b := bounds{min: buyerMin, max: buyerMax}
	if b.empty() {
		b = bounds{min: hintMin, max: hintMax}
	}
	return b
}

// scoreSize returns 0.0-1.0 for how well deal revenue and EBITDA fit the
// buyer's size window. Each available metric is scored and averaged.
func (e *Engine) scoreSize(buyer *model.Buyer, deal *model.Deal, hints *model.CriteriaHints, sc *scoreCard) float64 {
	metrics := []struct {
		label string
		value *float64
		win   bounds
	}{
		{"revenue", deal.Revenue, sizeBounds(buyer.MinRevenue, buyer.MaxRevenue, hints.MinRevenue, hints.MaxRevenue)},
		{"EBITDA", deal.EBITDA, sizeBounds(buyer.MinEBITDA, buyer.MaxEBITDA, hints.MinEBITDA, hints.MaxEBITDA)},
	}

	floor := e.sizeFloor(hints.SizeImportance)
	var total float64
	var n int
	for _, m := range metrics {
		if m.value == nil || m.win.empty() {
			continue
		}
		v := *m.value
		n++
		switch {
		case m.win.min != nil && v < *m.win.min:
			if hints.SizeHardGate {
				sc.disqualify(CodeSizeBelowMinimum, "deal %s $%sM is below the buyer minimum of $%sM",
					m.label, fmtMillions(v), fmtMillions(*m.win.min))
			}
			total += e.outOfRange(v / *m.win.min, floor)
			sc.reason("size: deal %s $%sM is below the %s window", m.label, fmtMillions(v), m.win)
		case m.win.max != nil && v > *m.win.max:
			if hints.SizeHardGate {
				sc.disqualify(CodeSizeAboveMaximum, "deal %s $%sM is above the buyer maximum of $%sM",
					m.label, fmtMillions(v), fmtMillions(*m.win.max))
			}
			total += e.outOfRange(*m.win.max/v, floor)
			sc.reason("size: deal %s $%sM is above the %s window", m.label, fmtMillions(v), m.win)
		default:
			total += 1.0
			sc.reason("size: deal %s $%sM fits the %s window", m.label, fmtMillions(v), m.win)
		}
	}

	if n == 0 {
		sc.reason("size: no comparable deal financials and buyer size bounds")
		return 0
	}
	return total / float64(n)
}

// outOfRange converts a 0..1 closeness ratio into partial credit.
func (e *Engine) outOfRange(ratio, floor float64) float64 {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		ratio = 0
	}
	return math.Max(floor, clamp(ratio, 0, 1)*e.cfg.SizeOutOfRangeMul)
}

func (e *Engine) sizeFloor(imp model.Importance) float64 {
	switch imp {
	case model.ImportanceHigh:
		return e.cfg.SizeFloorHigh
	case model.ImportanceLow:
		return e.cfg.SizeFloorLow
	default:
		return e.cfg.SizeFloorMedium
	}
}

// scoreService returns 0.0-1.0 for service alignment and disqualifies when
// the deal offers any excluded service.
func (e *Engine) scoreService(buyer *model.Buyer, deal *model.Deal, hints *model.CriteriaHints, sc *scoreCard) float64 {
	dealMix := foldAll(deal.ServiceMix)
	if len(dealMix) == 0 {
		sc.reason("service: deal service mix is unknown")
		return 0
	}

	excluded := foldAll(append(append([]string{}, buyer.ExcludedServices...), hints.ExcludedServices...))
	for i, svc := range dealMix {
		if hit, ok := excludedBy(svc, excluded); ok {
			sc.disqualify(CodeExcludedService, "deal offers %q which the buyer excludes (%s)",
				originalTerm(deal.ServiceMix, i, svc), hit)
		}
	}

	required := buyer.RequiredServices
	if len(required) == 0 {
		required = hints.RequiredServices
	}
	requiredF := foldAll(required)

	preferred := buyer.PreferredServices
	if len(preferred) == 0 {
		preferred = hints.PreferredServices
	}
	offered := foldAll(concat(buyer.Services, preferred, required))
	if len(offered) == 0 {
		sc.reason("service: buyer service focus is unknown")
		return 0
	}

	var matched []string
	for _, svc := range dealMix {
		if _, ok := firstMatch(svc, offered); ok {
			matched = append(matched, svc)
		}
	}
	overlap := float64(len(matched)) / float64(len(dealMix))

	if len(requiredF) == 0 {
		sc.reason("service: %d of %d deal services match the buyer focus", len(matched), len(dealMix))
		return overlap
	}

	var covered int
	for _, req := range requiredF {
		if _, ok := firstMatch(req, dealMix); ok {
			covered++
		}
	}
	reqFrac := float64(covered) / float64(len(requiredF))
	sc.reason("service: %d of %d required services present, %d of %d deal services match",
		covered, len(requiredF), len(matched), len(dealMix))

	share := e.cfg.ServiceRequiredShare
	return share*reqFrac + (1-share)*overlap
}

// originalTerm recovers the caller's spelling of a folded service for
// reason text. foldAll drops duplicates, so index i is only a hint.
func originalTerm(raw []string, i int, folded string) string {
	if i < len(raw) && foldTerm(raw[i]) == folded {
		return strings.TrimSpace(raw[i])
	}
	for _, r := range raw {
		if foldTerm(r) == folded {
			return strings.TrimSpace(r)
		}
	}
	return folded
}

// scoreGeography returns 0.0-1.0 for footprint overlap, softened by the
// tracker's strictness. Geography never disqualifies.
func (e *Engine) scoreGeography(buyer *model.Buyer, deal *model.Deal, hints *model.CriteriaHints, sc *scoreCard) float64 {
	dealStates := expandStates(deal.States())
	if len(dealStates) == 0 {
		sc.reason("geography: deal location is unknown")
		return 0
	}

	footprint := expandStates(concat(buyer.Geography, []string{buyer.HQState}))
	if len(footprint) == 0 {
		footprint = expandStates(hints.TargetGeographies)
	}
	if len(footprint) == 0 {
		sc.reason("geography: buyer footprint is unknown")
		return 0
	}

	inFootprint := make(map[string]bool, len(footprint))
	for _, s := range footprint {
		inFootprint[s] = true
	}

	if hq := hqStateCode(deal.HQState); hq != "" && inFootprint[hq] {
		sc.reason("geography: deal HQ %s is inside the buyer footprint", hq)
		return 1.0
	}

	var hits int
	for _, s := range dealStates {
		if inFootprint[s] {
			hits++
		}
	}
	if hits == len(dealStates) {
		sc.reason("geography: all deal states are inside the buyer footprint")
		return 1.0
	}
	if hits > 0 {
		frac := float64(hits) / float64(len(dealStates))
		sc.reason("geography: %d of %d deal states overlap the buyer footprint", hits, len(dealStates))
		return e.cfg.GeoPartialBase + (1-e.cfg.GeoPartialBase)*frac
	}

	strictness := hints.GeographyStrictness
	if strictness == "" {
		strictness = model.StrictnessModerate
	}
	sc.reason("geography: no overlap with the buyer footprint (%s)", strictness)
	switch strictness {
	case model.StrictnessStrict:
		return e.cfg.GeoMissStrict
	case model.StrictnessRelaxed:
		return e.cfg.GeoMissRelaxed
	default:
		return e.cfg.GeoMissModerate
	}
}

// scoreBuyerType returns 1.0 when the buyer matches a priority buyer-type
// profile, or is named in the tracker's buyer-type text when no profiles
// were parsed.
func scoreBuyerType(buyer *model.Buyer, deal *model.Deal, tracker *model.Tracker, sc *scoreCard) float64 {
	var profiles []model.BuyerTypeProfile
	if tracker.Hints != nil {
		profiles = tracker.Hints.BuyerTypeProfiles
	}

	for _, p := range profiles {
		if matchesProfile(buyer, deal, p) {
			sc.reason("buyer type: matches priority profile %q", p.Name)
			return 1.0
		}
	}
	if len(profiles) > 0 {
		return 0
	}

	if buyer.Type == "" || strings.TrimSpace(tracker.BuyerTypesCriteria) == "" {
		return 0
	}
	text := foldTerm(tracker.BuyerTypesCriteria)
	for _, label := range buyerTypeLabels[buyer.Type] {
		if containsWords(text, label) {
			sc.reason("buyer type: %s is a targeted buyer type", buyer.Type)
			return 1.0
		}
	}
	return 0
}

var buyerTypeLabels = map[model.BuyerType][]string{
	model.BuyerTypePlatform:  {"platform", "platforms", "portfolio company", "portfolio companies"},
	model.BuyerTypePEFirm:    {"pe", "pe firm", "pe firms", "private equity", "sponsor", "sponsors"},
	model.BuyerTypeStrategic: {"strategic", "strategics", "strategic acquirer", "strategic acquirers"},
}

// matchesProfile requires every populated condition to hold. A profile with
// no conditions matches nothing.
func matchesProfile(buyer *model.Buyer, deal *model.Deal, p model.BuyerTypeProfile) bool {
	conditions := 0

	if len(p.BuyerTypes) > 0 {
		conditions++
		ok := false
		for _, t := range p.BuyerTypes {
			if t == buyer.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if p.MinLocations != nil {
		conditions++
		if buyer.Locations == nil || *buyer.Locations < *p.MinLocations {
			return false
		}
	}

	if p.MinRevenuePerLocation != nil || p.MaxRevenuePerLocation != nil {
		conditions++
		if deal.Revenue == nil || deal.Locations == nil || *deal.Locations <= 0 {
			return false
		}
		rpl := *deal.Revenue / float64(*deal.Locations)
		if p.MinRevenuePerLocation != nil && rpl < *p.MinRevenuePerLocation {
			return false
		}
		if p.MaxRevenuePerLocation != nil && rpl > *p.MaxRevenuePerLocation {
			return false
		}
	}

	return conditions > 0
}

// scoreDataQuality returns the populated ratio of a fixed profile checklist
// and the matching completeness label.
func (e *Engine) scoreDataQuality(buyer *model.Buyer, deal *model.Deal) (float64, model.Completeness) {
	checks := []bool{
		buyer.Name != "",
		buyer.Website != "",
		buyer.ContactName != "" || buyer.ContactEmail != "" || buyer.ContactPhone != "",
		strings.TrimSpace(buyer.Thesis) != "",
		buyer.ThesisConfidence != "",
		buyer.MinRevenue != nil || buyer.MaxRevenue != nil || buyer.MinEBITDA != nil || buyer.MaxEBITDA != nil,
		len(buyer.Geography) > 0 || buyer.HQState != "",
		len(buyer.Services) > 0 || len(buyer.RequiredServices) > 0 || len(buyer.PreferredServices) > 0,
		len(buyer.ExtractionSources) > 0,
		deal.Revenue != nil,
		deal.EBITDA != nil,
		len(deal.Geography) > 0 || deal.HQState != "",
		len(deal.ServiceMix) > 0,
	}

	var have int
	for _, ok := range checks {
		if ok {
			have++
		}
	}
	ratio := float64(have) / float64(len(checks))

	switch {
	case ratio >= e.cfg.CompletenessHigh:
		return ratio, model.CompletenessHigh
	case ratio >= e.cfg.CompletenessMedium:
		return ratio, model.CompletenessMedium
	default:
		return ratio, model.CompletenessLow
	}
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
