// Package universe is the application layer of the buyer universe: it loads
// trackers, buyers and deals from the store, runs the fit scorer over them,
// applies ingested field values through the provenance gate and persists
// the results.
package universe

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/buyer-universe/internal/criteria"
	"github.com/sells-group/buyer-universe/internal/extract"
	"github.com/sells-group/buyer-universe/internal/llm"
	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/provenance"
	"github.com/sells-group/buyer-universe/internal/resilience"
	"github.com/sells-group/buyer-universe/internal/scorer"
	"github.com/sells-group/buyer-universe/internal/store"
	"github.com/sells-group/buyer-universe/internal/website"
)

// ErrInvalidInput is wrapped by every input validation failure.
var ErrInvalidInput = eris.New("universe: invalid input")

// ErrLLMUnavailable is returned by operations that need the model API when
// no Anthropic key is configured.
var ErrLLMUnavailable = eris.New("universe: llm not configured")

// ErrFetchUnavailable is returned by website extraction when no page
// fetcher is configured.
var ErrFetchUnavailable = eris.New("universe: website fetching not configured")

// ErrFetchFailed is returned when no scraper could retrieve a website.
var ErrFetchFailed = eris.New("universe: website fetch failed")

func invalid(format string, args ...any) error {
	return eris.Wrapf(ErrInvalidInput, format, args...)
}

// IsInvalid reports whether err is a validation failure, either from the
// service or from the scoring engine.
func IsInvalid(err error) bool {
	var ve *scorer.ValidationError
	return eris.Is(err, ErrInvalidInput) || errors.As(err, &ve)
}

// Options carries the optional collaborators of a Service.
type Options struct {
	// Caller enables criteria parsing, extraction and LLM column mapping.
	Caller *llm.Caller
	// Pages fetches websites for website-source extraction.
	Pages PageFetcher
	// InterItemDelay spaces bulk scoring items.
	InterItemDelay time.Duration
}

// PageFetcher fetches a website as text.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*website.Page, error)
}

// Service exposes the buyer universe operations.
type Service struct {
	store     store.Store
	engine    *scorer.Engine
	caller    *llm.Caller
	parser    *criteria.Parser
	extractor *extract.Extractor
	pages     PageFetcher
	delay     time.Duration
	now       func() time.Time
}

// New builds a Service. opts.Caller may be nil.
func New(st store.Store, engine *scorer.Engine, opts Options) *Service {
	s := &Service{
		store:  st,
		engine: engine,
		caller: opts.Caller,
		pages:  opts.Pages,
		delay:  opts.InterItemDelay,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if opts.Caller != nil {
		s.parser = criteria.NewParser(opts.Caller)
		s.extractor = extract.New(opts.Caller)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() store.Store { return s.store }

// CircuitStates reports the per-phase LLM breaker states, or nil when no LLM
// is configured.
func (s *Service) CircuitStates() map[string]string {
	if s.caller == nil {
		return nil
	}
	return s.caller.Breakers().States()
}

// limiter spaces bulk items by the configured delay.
func (s *Service) limiter() *rate.Limiter {
	if s.delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(s.delay), 1)
}

// CreateTracker validates and stores a new tracker.
func (s *Service) CreateTracker(ctx context.Context, t *model.Tracker) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return invalid("tracker name is required")
	}
	if err := t.Hints.Validate(); err != nil {
		return invalid("tracker hints: %v", err)
	}
	if err := s.store.CreateTracker(ctx, t); err != nil {
		return eris.Wrap(err, "universe: create tracker")
	}
	zap.L().Info("universe: tracker created", zap.String("tracker_id", t.ID), zap.String("name", t.Name))
	return nil
}

// ParseTrackerCriteria asks the model to turn the tracker's free-text
// criteria into structured hints and saves them.
func (s *Service) ParseTrackerCriteria(ctx context.Context, trackerID string) (*model.Tracker, model.TokenUsage, error) {
	if s.parser == nil {
		return nil, model.TokenUsage{}, ErrLLMUnavailable
	}
	t, err := s.store.GetTracker(ctx, trackerID)
	if err != nil {
		return nil, model.TokenUsage{}, eris.Wrap(err, "universe: load tracker")
	}
	if !t.HasCriteriaText() {
		return nil, model.TokenUsage{}, invalid("tracker %s has no criteria text", trackerID)
	}
	hints, usage, err := s.parser.Parse(ctx, t)
	if err != nil {
		return nil, usage, err
	}
	t.Hints = hints
	if err := s.store.UpdateTracker(ctx, t); err != nil {
		return nil, usage, eris.Wrap(err, "universe: save tracker hints")
	}
	return t, usage, nil
}

// CreateBuyer creates a buyer in trackerID from raw field values, recording
// source for every field it sets.
func (s *Service) CreateBuyer(ctx context.Context, trackerID string, source provenance.Source, values map[string]any) (*model.Buyer, *UpdateReport, error) {
	if _, err := s.store.GetTracker(ctx, trackerID); err != nil {
		return nil, nil, eris.Wrap(err, "universe: load tracker")
	}
	b := &model.Buyer{TrackerID: trackerID}
	rep := s.applyValues(&b.ExtractionSources, source, values, b.ApplyField)
	if strings.TrimSpace(b.Name) == "" {
		return nil, nil, invalid("buyer name is required")
	}
	if err := s.store.CreateBuyer(ctx, b); err != nil {
		return nil, nil, eris.Wrap(err, "universe: create buyer")
	}
	return b, rep, nil
}

// CreateDeal creates a deal in trackerID from raw field values and links it
// to the company matching its domain, creating the company if needed.
func (s *Service) CreateDeal(ctx context.Context, trackerID string, source provenance.Source, values map[string]any) (*model.Deal, *UpdateReport, error) {
	if _, err := s.store.GetTracker(ctx, trackerID); err != nil {
		return nil, nil, eris.Wrap(err, "universe: load tracker")
	}
	d := &model.Deal{TrackerID: trackerID}
	rep := s.applyValues(&d.ExtractionSources, source, values, d.ApplyField)
	if strings.TrimSpace(d.Name) == "" {
		return nil, nil, invalid("deal name is required")
	}
	if d.Domain != "" {
		c, err := s.store.FindOrCreateCompany(ctx, d.Name, d.Domain)
		if err != nil {
			return nil, nil, eris.Wrap(err, "universe: link company")
		}
		d.CompanyID = c.ID
	}
	if err := s.store.CreateDeal(ctx, d); err != nil {
		return nil, nil, eris.Wrap(err, "universe: create deal")
	}
	return d, rep, nil
}

// SetScoreFlags records the user's decision on a pair.
func (s *Service) SetScoreFlags(ctx context.Context, buyerID, dealID string, flags model.ScoreFlags) (*model.BuyerDealScore, error) {
	if flags.Passed && flags.Approved {
		return nil, invalid("a pair cannot be both passed and approved")
	}
	if !flags.Passed {
		flags.PassReason = ""
	}
	if err := s.store.UpdateScoreFlags(ctx, buyerID, dealID, flags); err != nil {
		return nil, eris.Wrap(err, "universe: update score flags")
	}
	return s.store.GetScore(ctx, buyerID, dealID)
}

// ProvenanceView is the audit picture of one record's field sources.
type ProvenanceView struct {
	Entries   provenance.Entries           `json:"extraction_sources"`
	Effective map[string]provenance.Source `json:"effective"`
	// Protected lists, per source, the fields that source may no longer write.
	Protected map[provenance.Source][]string `json:"protected"`
}

func newProvenanceView(entries provenance.Entries) *ProvenanceView {
	v := &ProvenanceView{
		Entries:   entries,
		Effective: provenance.Snapshot(entries),
		Protected: make(map[provenance.Source][]string),
	}
	for _, src := range provenance.Sources() {
		if p := provenance.ProtectedFields(entries, src); len(p) > 0 {
			v.Protected[src] = p
		}
	}
	return v
}

// BuyerProvenance returns the field source view for a buyer.
func (s *Service) BuyerProvenance(ctx context.Context, buyerID string) (*ProvenanceView, error) {
	b, err := s.store.GetBuyer(ctx, buyerID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load buyer")
	}
	return newProvenanceView(b.ExtractionSources), nil
}

// DealProvenance returns the field source view for a deal.
func (s *Service) DealProvenance(ctx context.Context, dealID string) (*ProvenanceView, error) {
	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load deal")
	}
	return newProvenanceView(d.ExtractionSources), nil
}

// failureSummary counts failures by error type for logging.
func failureSummary(failures []resilience.Failure) map[string]int {
	out := make(map[string]int)
	for _, f := range failures {
		out[f.ErrorType]++
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
