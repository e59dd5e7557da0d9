package universe

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/resilience"
	"github.com/sells-group/buyer-universe/internal/scorer"
)

// BatchReport summarizes a bulk scoring run.
type BatchReport struct {
	TrackerID    string `json:"tracker_id"`
	Scored       int    `json:"scored"`
	Disqualified int    `json:"disqualified"`
	Insufficient int    `json:"insufficient_data"`
	// Results are ranked with scorer.Rank.
	Results  []*scorer.Result     `json:"results"`
	Failures []resilience.Failure `json:"failures,omitempty"`
}

func (r *BatchReport) add(res *scorer.Result) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case model.StatusScored:
		r.Scored++
	case model.StatusDisqualified:
		r.Disqualified++
	default:
		r.Insufficient++
	}
}

// ScoreDeal scores every buyer in the deal's tracker against the deal and
// saves the scores. Items are processed one at a time, spaced by the
// configured delay. Pairs the engine rejects are reported as failures and
// do not stop the run. On cancellation the scores computed so far are saved
// and the context error is returned.
func (s *Service) ScoreDeal(ctx context.Context, dealID string) (*BatchReport, error) {
	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load deal")
	}

	var (
		tracker *model.Tracker
		buyers  []model.Buyer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.store.GetTracker(gctx, deal.TrackerID)
		if err != nil {
			return eris.Wrap(err, "universe: load tracker")
		}
		tracker = t
		return nil
	})
	g.Go(func() error {
		bs, err := s.store.ListBuyers(gctx, deal.TrackerID)
		if err != nil {
			return eris.Wrap(err, "universe: list buyers")
		}
		buyers = bs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairs := make([]pair, len(buyers))
	for i := range buyers {
		pairs[i] = pair{buyer: &buyers[i], deal: deal, itemID: buyers[i].ID}
	}
	return s.scoreBatch(ctx, tracker, pairs, zap.String("deal_id", dealID))
}

// ScoreBuyer scores a buyer against every deal in its tracker.
func (s *Service) ScoreBuyer(ctx context.Context, buyerID string) (*BatchReport, error) {
	buyer, err := s.store.GetBuyer(ctx, buyerID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load buyer")
	}

	var (
		tracker *model.Tracker
		deals   []model.Deal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.store.GetTracker(gctx, buyer.TrackerID)
		if err != nil {
			return eris.Wrap(err, "universe: load tracker")
		}
		tracker = t
		return nil
	})
	g.Go(func() error {
		ds, err := s.store.ListDeals(gctx, buyer.TrackerID)
		if err != nil {
			return eris.Wrap(err, "universe: list deals")
		}
		deals = ds
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairs := make([]pair, len(deals))
	for i := range deals {
		pairs[i] = pair{buyer: buyer, deal: &deals[i], itemID: deals[i].ID}
	}
	return s.scoreBatch(ctx, tracker, pairs, zap.String("buyer_id", buyerID))
}

// ScorePair scores and saves a single buyer/deal pair.
func (s *Service) ScorePair(ctx context.Context, buyerID, dealID string) (*scorer.Result, error) {
	var (
		buyer *model.Buyer
		deal  *model.Deal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.store.GetBuyer(gctx, buyerID)
		if err != nil {
			return eris.Wrap(err, "universe: load buyer")
		}
		buyer = b
		return nil
	})
	g.Go(func() error {
		d, err := s.store.GetDeal(gctx, dealID)
		if err != nil {
			return eris.Wrap(err, "universe: load deal")
		}
		deal = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tracker, err := s.store.GetTracker(ctx, deal.TrackerID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: load tracker")
	}
	res, err := s.engine.Score(buyer, deal, tracker)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertScores(ctx, []model.BuyerDealScore{res.Record(tracker.ID, s.now())}); err != nil {
		return nil, eris.Wrap(err, "universe: save score")
	}
	return res, nil
}

type pair struct {
	buyer  *model.Buyer
	deal   *model.Deal
	itemID string
}

func (s *Service) scoreBatch(ctx context.Context, tracker *model.Tracker, pairs []pair, subject zap.Field) (*BatchReport, error) {
	log := zap.L().With(subject, zap.String("tracker_id", tracker.ID))
	log.Info("universe: scoring batch", zap.Int("pairs", len(pairs)))

	rep := &BatchReport{TrackerID: tracker.ID}
	records := make([]model.BuyerDealScore, 0, len(pairs))
	lim := s.limiter()

	var runErr error
	for _, p := range pairs {
		if err := lim.Wait(ctx); err != nil {
			runErr = eris.Wrap(err, "universe: scoring interrupted")
			break
		}
		res, err := s.engine.Score(p.buyer, p.deal, tracker)
		if err != nil {
			var ve *scorer.ValidationError
			if !errors.As(err, &ve) {
				runErr = eris.Wrap(err, "universe: score pair")
				break
			}
			rep.Failures = append(rep.Failures, resilience.NewFailure(p.itemID, "score", err, s.now()))
			log.Warn("universe: pair rejected", zap.String("item_id", p.itemID), zap.Error(err))
			continue
		}
		rep.add(res)
		records = append(records, res.Record(tracker.ID, s.now()))
	}

	if len(records) > 0 {
		// Partial work is saved even when ctx was cancelled.
		if err := s.store.UpsertScores(context.WithoutCancel(ctx), records); err != nil {
			return nil, eris.Wrap(err, "universe: save scores")
		}
	}
	scorer.Rank(rep.Results)

	log.Info("universe: batch complete",
		zap.Int("scored", rep.Scored),
		zap.Int("disqualified", rep.Disqualified),
		zap.Int("insufficient_data", rep.Insufficient),
		zap.Any("failures", failureSummary(rep.Failures)),
	)
	if runErr != nil {
		return rep, runErr
	}
	return rep, nil
}

// RankedScores returns the saved scores for a deal in display order.
func (s *Service) RankedScores(ctx context.Context, dealID string) ([]model.BuyerDealScore, error) {
	if _, err := s.store.GetDeal(ctx, dealID); err != nil {
		return nil, eris.Wrap(err, "universe: load deal")
	}
	scores, err := s.store.ListScoresForDeal(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "universe: list scores")
	}
	return scores, nil
}
