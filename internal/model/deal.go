package model

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/provenance"
)

// Deal field keys.
const (
	DealFieldName       = "name"
	DealFieldDomain     = "domain"
	DealFieldRevenue    = "revenue"
	DealFieldEBITDA     = "ebitda"
	DealFieldGeography  = "geography"
	DealFieldHQState    = "hq_state"
	DealFieldLocations  = "locations"
	DealFieldServiceMix = "service_mix"
)

// DealFields lists every field key Deal.ApplyField understands.
var DealFields = []string{
	DealFieldName, DealFieldDomain, DealFieldRevenue, DealFieldEBITDA,
	DealFieldGeography, DealFieldHQState, DealFieldLocations, DealFieldServiceMix,
}

// Deal is a target company opportunity scoped to one tracker.
type Deal struct {
	ID        string `json:"id"`
	TrackerID string `json:"tracker_id"`
	CompanyID string `json:"company_id,omitempty"`
	Name      string `json:"name"`
	Domain    string `json:"domain,omitempty"`

	Revenue *float64 `json:"revenue,omitempty"`
	EBITDA  *float64 `json:"ebitda,omitempty"`

	Geography  []string `json:"geography,omitempty"`
	HQState    string   `json:"hq_state,omitempty"`
	Locations  *int     `json:"locations,omitempty"`
	ServiceMix []string `json:"service_mix,omitempty"`

	ExtractionSources provenance.Entries `json:"extraction_sources,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// States returns the deal's geography including its HQ state.
func (d *Deal) States() []string {
	if d.HQState == "" {
		return d.Geography
	}
	out := make([]string, 0, len(d.Geography)+1)
	out = append(out, d.HQState)
	return append(out, d.Geography...)
}

// ApplyField sets one deal field from an ingested value. It returns false
// when the key is unknown or the value could not be converted.
func (d *Deal) ApplyField(key string, v any) bool {
	switch key {
	case DealFieldName:
		return setString(&d.Name, v)
	case DealFieldDomain:
		s := NormalizeDomain(ToString(v))
		if s == "" {
			return false
		}
		d.Domain = s
	case DealFieldRevenue:
		return setMillions(&d.Revenue, v)
	case DealFieldEBITDA:
		return setMillions(&d.EBITDA, v)
	case DealFieldGeography:
		return setList(&d.Geography, v)
	case DealFieldHQState:
		return setString(&d.HQState, v)
	case DealFieldLocations:
		return setCount(&d.Locations, v)
	case DealFieldServiceMix:
		return setList(&d.ServiceMix, v)
	default:
		zap.L().Debug("model: unmapped deal field", zap.String("key", key))
		return false
	}
	return true
}
