// Package store persists trackers, buyers, deals, companies and fit scores.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/buyer-universe/internal/config"
	"github.com/sells-group/buyer-universe/internal/model"
)

// ErrNotFound is returned (wrapped) when an entity does not exist.
var ErrNotFound = eris.New("store: not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}

// Store defines the persistence interface for the buyer universe.
type Store interface {
	// Trackers
	CreateTracker(ctx context.Context, t *model.Tracker) error
	GetTracker(ctx context.Context, id string) (*model.Tracker, error)
	UpdateTracker(ctx context.Context, t *model.Tracker) error
	ListTrackers(ctx context.Context) ([]model.Tracker, error)
	// DeleteTracker removes the tracker and cascades to its buyers, deals
	// and their scores.
	DeleteTracker(ctx context.Context, id string) error

	// Buyers
	CreateBuyer(ctx context.Context, b *model.Buyer) error
	GetBuyer(ctx context.Context, id string) (*model.Buyer, error)
	UpdateBuyer(ctx context.Context, b *model.Buyer) error
	ListBuyers(ctx context.Context, trackerID string) ([]model.Buyer, error)
	DeleteBuyer(ctx context.Context, id string) error

	// Deals
	CreateDeal(ctx context.Context, d *model.Deal) error
	GetDeal(ctx context.Context, id string) (*model.Deal, error)
	UpdateDeal(ctx context.Context, d *model.Deal) error
	ListDeals(ctx context.Context, trackerID string) ([]model.Deal, error)
	DeleteDeal(ctx context.Context, id string) error

	// Companies
	FindOrCreateCompany(ctx context.Context, name, domain string) (*model.Company, error)

	// Scores. UpsertScores overwrites score columns and preserves user flags.
	UpsertScores(ctx context.Context, scores []model.BuyerDealScore) error
	GetScore(ctx context.Context, buyerID, dealID string) (*model.BuyerDealScore, error)
	ListScoresForDeal(ctx context.Context, dealID string) ([]model.BuyerDealScore, error)
	ListScoresForBuyer(ctx context.Context, buyerID string) ([]model.BuyerDealScore, error)
	UpdateScoreFlags(ctx context.Context, buyerID, dealID string, flags model.ScoreFlags) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// scoreDetail is the JSON column holding the explanatory parts of a score.
type scoreDetail struct {
	Subscores         model.Subscores          `json:"subscores"`
	Disqualifications []model.Disqualification `json:"disqualifications,omitempty"`
	Reasons           []string                 `json:"reasons,omitempty"`
	Completeness      model.Completeness       `json:"data_completeness,omitempty"`
	MissingCriteria   []string                 `json:"missing_criteria,omitempty"`
}

func encodeScoreDetail(s *model.BuyerDealScore) ([]byte, error) {
	data, err := json.Marshal(scoreDetail{
		Subscores:         s.Subscores,
		Disqualifications: s.Disqualifications,
		Reasons:           s.Reasons,
		Completeness:      s.Completeness,
		MissingCriteria:   s.MissingCriteria,
	})
	return data, eris.Wrap(err, "store: marshal score detail")
}

func decodeScoreDetail(data []byte, s *model.BuyerDealScore) error {
	var d scoreDetail
	if err := json.Unmarshal(data, &d); err != nil {
		return eris.Wrap(err, "store: unmarshal score detail")
	}
	s.Subscores = d.Subscores
	s.Disqualifications = d.Disqualifications
	s.Reasons = d.Reasons
	s.Completeness = d.Completeness
	s.MissingCriteria = d.MissingCriteria
	return nil
}

// stampNew assigns an ID when missing and sets both timestamps.
func stampNew(id *string, created, updated *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	now := time.Now().UTC()
	*created = now
	*updated = now
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

// scoreOrder ranks scored pairs first by composite, then disqualified, then
// unevaluated.
const scoreOrder = `ORDER BY CASE status WHEN 'scored' THEN 0 WHEN 'disqualified' THEN 1 ELSE 2 END, composite DESC, buyer_id`

type scannable interface {
	Scan(dest ...any) error
}
