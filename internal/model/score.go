package model

import "time"

// ScoreStatus is the evaluation state of a buyer/deal pair.
type ScoreStatus string

const (
	StatusScored           ScoreStatus = "scored"
	StatusDisqualified     ScoreStatus = "disqualified"
	StatusInsufficientData ScoreStatus = "insufficient_data"
)

// Completeness labels how much of a buyer/deal profile is populated.
type Completeness string

const (
	CompletenessHigh   Completeness = "high"
	CompletenessMedium Completeness = "medium"
	CompletenessLow    Completeness = "low"
)

// Subscores are the weighted point contributions of each scoring component.
type Subscores struct {
	Size        float64 `json:"size"`
	Service     float64 `json:"service"`
	Geography   float64 `json:"geography"`
	BuyerType   float64 `json:"buyer_type"`
	DataQuality float64 `json:"data_quality"`
}

// Total sums every component.
func (s Subscores) Total() float64 {
	return s.Size + s.Service + s.Geography + s.BuyerType + s.DataQuality
}

// Disqualification is one enumerated reason a pair is not eligible.
type Disqualification struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// ScoreFlags are user decisions about a pair. Rescoring never touches them.
type ScoreFlags struct {
	Interested bool   `json:"interested"`
	Passed     bool   `json:"passed"`
	Approved   bool   `json:"approved"`
	PassReason string `json:"pass_reason,omitempty"`
}

// BuyerDealScore is the persisted fit result for one (buyer, deal) pair.
// Composite is nil when the pair could not be evaluated.
type BuyerDealScore struct {
	BuyerID           string             `json:"buyer_id"`
	DealID            string             `json:"deal_id"`
	TrackerID         string             `json:"tracker_id"`
	Status            ScoreStatus        `json:"status"`
	Composite         *int               `json:"composite,omitempty"`
	Subscores         Subscores          `json:"subscores"`
	Disqualified      bool               `json:"disqualified"`
	Disqualifications []Disqualification `json:"disqualifications,omitempty"`
	Reasons           []string           `json:"reasons,omitempty"`
	Completeness      Completeness       `json:"data_completeness,omitempty"`
	MissingCriteria   []string           `json:"missing_criteria,omitempty"`
	Flags             ScoreFlags         `json:"flags"`
	ScoredAt          time.Time          `json:"scored_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Rankable reports whether Composite may be used to order buyers. Disqualified
// and unevaluated pairs are never ranked.
func (s BuyerDealScore) Rankable() bool {
	return s.Status == StatusScored && s.Composite != nil
}
