package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/provenance"
)

// BuyerType classifies a candidate acquirer.
type BuyerType string

const (
	BuyerTypePlatform  BuyerType = "platform"
	BuyerTypePEFirm    BuyerType = "pe_firm"
	BuyerTypeStrategic BuyerType = "strategic"
)

// ParseBuyerType normalizes free-form buyer type labels.
func ParseBuyerType(raw string) BuyerType {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "platform"), strings.Contains(s, "portfolio"):
		return BuyerTypePlatform
	case s == "pe", s == "pe_firm", strings.HasPrefix(s, "pe "),
		strings.Contains(s, "private equity"), strings.Contains(s, "sponsor"):
		return BuyerTypePEFirm
	case strings.Contains(s, "strategic"), strings.Contains(s, "corporate"):
		return BuyerTypeStrategic
	default:
		return BuyerType(s)
	}
}

// Confidence tags how trustworthy an extracted thesis is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Buyer field keys. These are the names recorded in provenance entries and
// accepted by ApplyField.
const (
	BuyerFieldName              = "name"
	BuyerFieldType              = "type"
	BuyerFieldPEFirmName        = "pe_firm_name"
	BuyerFieldWebsite           = "website"
	BuyerFieldContactName       = "contact_name"
	BuyerFieldContactEmail      = "contact_email"
	BuyerFieldContactPhone      = "contact_phone"
	BuyerFieldMinRevenue        = "min_revenue"
	BuyerFieldMaxRevenue        = "max_revenue"
	BuyerFieldMinEBITDA         = "min_ebitda"
	BuyerFieldMaxEBITDA         = "max_ebitda"
	BuyerFieldGeography         = "geography"
	BuyerFieldHQState           = "hq_state"
	BuyerFieldLocations         = "locations"
	BuyerFieldServices          = "services"
	BuyerFieldRequiredServices  = "required_services"
	BuyerFieldPreferredServices = "preferred_services"
	BuyerFieldExcludedServices  = "excluded_services"
	BuyerFieldThesis            = "thesis"
	BuyerFieldThesisConfidence  = "thesis_confidence"
)

// BuyerFields lists every field key ApplyField understands.
var BuyerFields = []string{
	BuyerFieldName, BuyerFieldType, BuyerFieldPEFirmName, BuyerFieldWebsite,
	BuyerFieldContactName, BuyerFieldContactEmail, BuyerFieldContactPhone,
	BuyerFieldMinRevenue, BuyerFieldMaxRevenue, BuyerFieldMinEBITDA, BuyerFieldMaxEBITDA,
	BuyerFieldGeography, BuyerFieldHQState, BuyerFieldLocations,
	BuyerFieldServices, BuyerFieldRequiredServices, BuyerFieldPreferredServices, BuyerFieldExcludedServices,
	BuyerFieldThesis, BuyerFieldThesisConfidence,
}

// Buyer is a candidate acquirer scoped to one tracker. Money is in USD millions.
type Buyer struct {
	ID           string    `json:"id"`
	TrackerID    string    `json:"tracker_id"`
	Name         string    `json:"name"`
	Type         BuyerType `json:"type,omitempty"`
	PEFirmName   string    `json:"pe_firm_name,omitempty"`
	Website      string    `json:"website,omitempty"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`

	MinRevenue *float64 `json:"min_revenue,omitempty"`
	MaxRevenue *float64 `json:"max_revenue,omitempty"`
	MinEBITDA  *float64 `json:"min_ebitda,omitempty"`
	MaxEBITDA  *float64 `json:"max_ebitda,omitempty"`

	Geography []string `json:"geography,omitempty"`
	HQState   string   `json:"hq_state,omitempty"`
	Locations *int     `json:"locations,omitempty"`

	Services          []string `json:"services,omitempty"`
	RequiredServices  []string `json:"required_services,omitempty"`
	PreferredServices []string `json:"preferred_services,omitempty"`
	ExcludedServices  []string `json:"excluded_services,omitempty"`

	Thesis           string     `json:"thesis,omitempty"`
	ThesisConfidence Confidence `json:"thesis_confidence,omitempty"`

	ExtractionSources provenance.Entries `json:"extraction_sources,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the buyer's size window is ordered.
func (b *Buyer) Validate() error {
	var errs []string
	if inverted(b.MinRevenue, b.MaxRevenue) {
		errs = append(errs, "min_revenue must be <= max_revenue")
	}
	if inverted(b.MinEBITDA, b.MaxEBITDA) {
		errs = append(errs, "min_ebitda must be <= max_ebitda")
	}
	if len(errs) > 0 {
		return eris.Errorf("model: invalid buyer %s: %s", b.ID, strings.Join(errs, "; "))
	}
	return nil
}

// ApplyField sets one buyer field from an ingested value. It returns false
// when the key is unknown or the value could not be converted, in which case
// the buyer is left unchanged.
func (b *Buyer) ApplyField(key string, v any) bool {
	switch key {
	case BuyerFieldName:
		return setString(&b.Name, v)
	case BuyerFieldType:
		t := ParseBuyerType(ToString(v))
		if t == "" {
			return false
		}
		b.Type = t
	case BuyerFieldPEFirmName:
		return setString(&b.PEFirmName, v)
	case BuyerFieldWebsite:
		return setString(&b.Website, v)
	case BuyerFieldContactName:
		return setString(&b.ContactName, v)
	case BuyerFieldContactEmail:
		return setString(&b.ContactEmail, v)
	case BuyerFieldContactPhone:
		return setString(&b.ContactPhone, v)
	case BuyerFieldMinRevenue:
		return setMillions(&b.MinRevenue, v)
	case BuyerFieldMaxRevenue:
		return setMillions(&b.MaxRevenue, v)
	case BuyerFieldMinEBITDA:
		return setMillions(&b.MinEBITDA, v)
	case BuyerFieldMaxEBITDA:
		return setMillions(&b.MaxEBITDA, v)
	case BuyerFieldGeography:
		return setList(&b.Geography, v)
	case BuyerFieldHQState:
		return setString(&b.HQState, v)
	case BuyerFieldLocations:
		return setCount(&b.Locations, v)
	case BuyerFieldServices:
		return setList(&b.Services, v)
	case BuyerFieldRequiredServices:
		return setList(&b.RequiredServices, v)
	case BuyerFieldPreferredServices:
		return setList(&b.PreferredServices, v)
	case BuyerFieldExcludedServices:
		return setList(&b.ExcludedServices, v)
	case BuyerFieldThesis:
		return setString(&b.Thesis, v)
	case BuyerFieldThesisConfidence:
		c := Confidence(strings.ToLower(ToString(v)))
		switch c {
		case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
			b.ThesisConfidence = c
		default:
			return false
		}
	default:
		zap.L().Debug("model: unmapped buyer field", zap.String("key", key))
		return false
	}
	return true
}

func setString(dst *string, v any) bool {
	s := ToString(v)
	if s == "" {
		return false
	}
	*dst = s
	return true
}

func setMillions(dst **float64, v any) bool {
	f, ok := ToMillions(v)
	if !ok || f < 0 {
		return false
	}
	*dst = &f
	return true
}

func setCount(dst **int, v any) bool {
	n, ok := ToInt(v)
	if !ok || n < 0 {
		return false
	}
	*dst = &n
	return true
}

func setList(dst *[]string, v any) bool {
	l := ToStringSlice(v)
	if len(l) == 0 {
		return false
	}
	*dst = l
	return true
}
