// Package model defines the buyer-universe records shared by the scorer,
// store, importers and API.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Strictness controls how hard a geography miss is penalized.
type Strictness string

const (
	StrictnessStrict   Strictness = "strict"
	StrictnessModerate Strictness = "moderate"
	StrictnessRelaxed  Strictness = "relaxed"
)

// Importance controls how much an out-of-range deal size is forgiven.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// Tracker is a saved buyer-search configuration for one industry vertical.
type Tracker struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Industry           string         `json:"industry,omitempty"`
	SizeCriteria       string         `json:"size_criteria,omitempty"`
	ServiceCriteria    string         `json:"service_criteria,omitempty"`
	GeographyCriteria  string         `json:"geography_criteria,omitempty"`
	BuyerTypesCriteria string         `json:"buyer_types_criteria,omitempty"`
	Hints              *CriteriaHints `json:"hints,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CriteriaHints are structured signals parsed (usually by an LLM) from the
// tracker's free-text criteria. Every field is optional.
type CriteriaHints struct {
	GeographyStrictness Strictness `json:"geography_strictness,omitempty" yaml:"geography_strictness,omitempty"`
	SizeImportance      Importance `json:"size_importance,omitempty" yaml:"size_importance,omitempty"`
	SizeHardGate        bool       `json:"size_hard_gate,omitempty" yaml:"size_hard_gate,omitempty"`

	// Tracker-wide size bounds in USD millions, used when a buyer has none.
	MinRevenue *float64 `json:"min_revenue,omitempty" yaml:"min_revenue,omitempty"`
	MaxRevenue *float64 `json:"max_revenue,omitempty" yaml:"max_revenue,omitempty"`
	MinEBITDA  *float64 `json:"min_ebitda,omitempty" yaml:"min_ebitda,omitempty"`
	MaxEBITDA  *float64 `json:"max_ebitda,omitempty" yaml:"max_ebitda,omitempty"`

	RequiredServices  []string `json:"required_services,omitempty" yaml:"required_services,omitempty"`
	PreferredServices []string `json:"preferred_services,omitempty" yaml:"preferred_services,omitempty"`
	ExcludedServices  []string `json:"excluded_services,omitempty" yaml:"excluded_services,omitempty"`

	TargetGeographies []string `json:"target_geographies,omitempty" yaml:"target_geographies,omitempty"`

	BuyerTypeProfiles []BuyerTypeProfile `json:"buyer_type_profiles,omitempty" yaml:"buyer_type_profiles,omitempty"`
}

// BuyerTypeProfile describes a priority buyer archetype, e.g. "Large MSO".
// A buyer matches when every populated condition holds.
type BuyerTypeProfile struct {
	Name       string      `json:"name" yaml:"name"`
	BuyerTypes []BuyerType `json:"buyer_types,omitempty" yaml:"buyer_types,omitempty"`
	// MinLocations is checked against the buyer's own location count.
	MinLocations *int `json:"min_locations,omitempty" yaml:"min_locations,omitempty"`
	// Revenue per location window (USD millions) checked against the deal.
	MinRevenuePerLocation *float64 `json:"min_revenue_per_location,omitempty" yaml:"min_revenue_per_location,omitempty"`
	MaxRevenuePerLocation *float64 `json:"max_revenue_per_location,omitempty" yaml:"max_revenue_per_location,omitempty"`
}

// IsEmpty reports whether the hints carry no structured signal at all.
func (h *CriteriaHints) IsEmpty() bool {
	if h == nil {
		return true
	}
	return h.GeographyStrictness == "" &&
		h.SizeImportance == "" &&
		!h.SizeHardGate &&
		h.MinRevenue == nil && h.MaxRevenue == nil &&
		h.MinEBITDA == nil && h.MaxEBITDA == nil &&
		len(h.RequiredServices) == 0 &&
		len(h.PreferredServices) == 0 &&
		len(h.ExcludedServices) == 0 &&
		len(h.TargetGeographies) == 0 &&
		len(h.BuyerTypeProfiles) == 0
}

// Validate checks enum values and bound ordering.
func (h *CriteriaHints) Validate() error {
	if h == nil {
		return nil
	}
	var errs []string

	switch h.GeographyStrictness {
	case "", StrictnessStrict, StrictnessModerate, StrictnessRelaxed:
	default:
		errs = append(errs, "geography_strictness must be strict, moderate or relaxed")
	}
	switch h.SizeImportance {
	case "", ImportanceHigh, ImportanceMedium, ImportanceLow:
	default:
		errs = append(errs, "size_importance must be high, medium or low")
	}
	if inverted(h.MinRevenue, h.MaxRevenue) {
		errs = append(errs, "min_revenue must be <= max_revenue")
	}
	if inverted(h.MinEBITDA, h.MaxEBITDA) {
		errs = append(errs, "min_ebitda must be <= max_ebitda")
	}
	for _, p := range h.BuyerTypeProfiles {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, "buyer_type_profiles entries need a name")
		}
		if inverted(p.MinRevenuePerLocation, p.MaxRevenuePerLocation) {
			errs = append(errs, "profile "+p.Name+": min_revenue_per_location must be <= max_revenue_per_location")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("model: invalid criteria hints: %s", strings.Join(errs, "; "))
	}
	return nil
}

// HasCriteriaText reports whether any of the size/service/geography text
// criteria is populated.
func (t *Tracker) HasCriteriaText() bool {
	return strings.TrimSpace(t.SizeCriteria) != "" ||
		strings.TrimSpace(t.ServiceCriteria) != "" ||
		strings.TrimSpace(t.GeographyCriteria) != ""
}

func inverted(min, max *float64) bool {
	return min != nil && max != nil && *min > *max
}
