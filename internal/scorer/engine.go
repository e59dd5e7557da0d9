package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/config"
	"github.com/sells-group/buyer-universe/internal/model"
)

// Disqualification codes. Only these conditions make a pair ineligible.
const (
	CodeExcludedService  = "excluded_service"
	CodeSizeBelowMinimum = "size_below_minimum"
	CodeSizeAboveMaximum = "size_above_maximum"
)

// Component keys used in Result.Components.
const (
	ComponentSize        = "size"
	ComponentService     = "service"
	ComponentGeography   = "geography"
	ComponentBuyerType   = "buyer_type"
	ComponentDataQuality = "data_quality"
)

// ValidationError reports an input the engine refuses to score.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scorer: invalid %s: %s", e.Field, e.Reason)
}

// Result is the fit evaluation of one buyer/deal pair.
type Result struct {
	BuyerID string            `json:"buyer_id"`
	DealID  string            `json:"deal_id"`
	Status  model.ScoreStatus `json:"status"`
	// Composite is nil when the pair could not be evaluated and 0 when
	// disqualified. Check Status before ranking on it.
	Composite         *int                     `json:"composite,omitempty"`
	Subscores         model.Subscores          `json:"subscores"`
	Components        map[string]float64       `json:"components,omitempty"`
	Disqualified      bool                     `json:"disqualified"`
	Disqualifications []model.Disqualification `json:"disqualifications,omitempty"`
	Reasons           []string                 `json:"reasons,omitempty"`
	Completeness      model.Completeness       `json:"data_completeness,omitempty"`
	MissingCriteria   []string                 `json:"missing_criteria,omitempty"`
}

// Record converts the result into the persisted score shape. User flags are
// left zero; the store preserves existing flags on upsert.
func (r *Result) Record(trackerID string, now time.Time) model.BuyerDealScore {
	return model.BuyerDealScore{
		BuyerID:           r.BuyerID,
		DealID:            r.DealID,
		TrackerID:         trackerID,
		Status:            r.Status,
		Composite:         r.Composite,
		Subscores:         r.Subscores,
		Disqualified:      r.Disqualified,
		Disqualifications: r.Disqualifications,
		Reasons:           r.Reasons,
		Completeness:      r.Completeness,
		MissingCriteria:   r.MissingCriteria,
		ScoredAt:          now,
		UpdatedAt:         now,
	}
}

// Engine scores buyer/deal pairs against tracker criteria. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	cfg config.FitConfig
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg config.FitConfig) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's rule table.
func (e *Engine) Config() config.FitConfig {
	return e.cfg
}

// Score evaluates buyer against deal under tracker's criteria. It returns a
// *ValidationError when identities are missing or the criteria hints are
// malformed. Missing optional data never fails; it scores zero.
func (e *Engine) Score(buyer *model.Buyer, deal *model.Deal, tracker *model.Tracker) (*Result, error) {
	if err := validateInputs(buyer, deal, tracker); err != nil {
		return nil, err
	}

	res := &Result{BuyerID: buyer.ID, DealID: deal.ID}

	if missing := missingCriteria(tracker); missing != nil {
		res.Status = model.StatusInsufficientData
		res.MissingCriteria = missing
		res.Reasons = []string{"tracker criteria are not defined yet: " + strings.Join(missing, ", ")}
		return res, nil
	}

	var hints model.CriteriaHints
	if tracker.Hints != nil {
		hints = *tracker.Hints
	}

	var sc scoreCard
	size := e.scoreSize(buyer, deal, &hints, &sc)
	service := e.scoreService(buyer, deal, &hints, &sc)
	geo := e.scoreGeography(buyer, deal, &hints, &sc)
	buyerType := scoreBuyerType(buyer, deal, tracker, &sc)
	quality, completeness := e.scoreDataQuality(buyer, deal)

	res.Components = map[string]float64{
		ComponentSize:        size,
		ComponentService:     service,
		ComponentGeography:   geo,
		ComponentBuyerType:   buyerType,
		ComponentDataQuality: quality,
	}
	res.Subscores = model.Subscores{
		Size:        round2(size * e.cfg.SizeWeight),
		Service:     round2(service * e.cfg.ServiceWeight),
		Geography:   round2(geo * e.cfg.GeographyWeight),
		BuyerType:   round2(buyerType * e.cfg.BuyerTypeWeight),
		DataQuality: round2(quality * e.cfg.DataQualityWeight),
	}
	res.Completeness = completeness
	if completeness == model.CompletenessLow {
		sc.reason("data completeness is low; treat this score with caution")
	}
	res.Reasons = sc.reasons

	if len(sc.disqualifications) > 0 {
		res.Status = model.StatusDisqualified
		res.Disqualified = true
		res.Disqualifications = sc.disqualifications
		zero := 0
		res.Composite = &zero
		return res, nil
	}

	composite := int(math.Round(clamp(res.Subscores.Total(), 0, 100)))
	res.Status = model.StatusScored
	res.Composite = &composite

	zap.L().Debug("scorer: scored pair",
		zap.String("buyer_id", buyer.ID),
		zap.String("deal_id", deal.ID),
		zap.Int("composite", composite),
	)
	return res, nil
}

func validateInputs(buyer *model.Buyer, deal *model.Deal, tracker *model.Tracker) error {
	if buyer == nil || strings.TrimSpace(buyer.ID) == "" {
		return &ValidationError{Field: "buyer_id", Reason: "is required"}
	}
	if deal == nil || strings.TrimSpace(deal.ID) == "" {
		return &ValidationError{Field: "deal_id", Reason: "is required"}
	}
	if err := buyer.Validate(); err != nil {
		return &ValidationError{Field: "buyer_size", Reason: err.Error()}
	}
	if buyer.TrackerID != "" && deal.TrackerID != "" && buyer.TrackerID != deal.TrackerID {
		return &ValidationError{Field: "tracker_id", Reason: "buyer and deal belong to different trackers"}
	}
	if tracker != nil {
		if err := tracker.Hints.Validate(); err != nil {
			return &ValidationError{Field: "criteria", Reason: err.Error()}
		}
	}
	return nil
}

// missingCriteria returns nil when the tracker carries enough signal to score
// against, otherwise the names of the absent criteria.
func missingCriteria(t *model.Tracker) []string {
	if t != nil && (t.HasCriteriaText() || !t.Hints.IsEmpty()) {
		return nil
	}
	return []string{"size_criteria", "service_criteria", "geography_criteria"}
}

// scoreCard collects reasons and disqualifications while components run.
type scoreCard struct {
	reasons           []string
	disqualifications []model.Disqualification
}

func (s *scoreCard) reason(format string, args ...any) {
	s.reasons = append(s.reasons, fmt.Sprintf(format, args...))
}

func (s *scoreCard) disqualify(code, format string, args ...any) {
	detail := fmt.Sprintf(format, args...)
	s.disqualifications = append(s.disqualifications, model.Disqualification{Code: code, Detail: detail})
	s.reasons = append(s.reasons, "disqualified: "+detail)
}

// Rank orders results for display: scored pairs by composite descending,
// then disqualified, then unevaluated. Ties fall back to buyer ID so the
// order is deterministic.
func Rank(results []*Result) {
	bucket := func(r *Result) int {
		switch r.Status {
		case model.StatusScored:
			return 0
		case model.StatusDisqualified:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		bi, bj := bucket(results[i]), bucket(results[j])
		if bi != bj {
			return bi < bj
		}
		if bi == 0 && *results[i].Composite != *results[j].Composite {
			return *results[i].Composite > *results[j].Composite
		}
		return results[i].BuyerID < results[j].BuyerID
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
