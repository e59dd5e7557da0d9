package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/config"
	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/provenance"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptr[T any](v T) *T { return &v }

// seedUniverse creates a tracker with one buyer and one deal.
func seedUniverse(t *testing.T, st Store) (*model.Tracker, *model.Buyer, *model.Deal) {
	t.Helper()
	ctx := context.Background()

	tr := &model.Tracker{Name: "HVAC Roll-up", ServiceCriteria: "commercial HVAC"}
	require.NoError(t, st.CreateTracker(ctx, tr))

	b := &model.Buyer{
		TrackerID:  tr.ID,
		Name:       "Comfort Partners",
		Type:       model.BuyerTypePlatform,
		Website:    "https://www.comfortpartners.com/",
		MinRevenue: ptr(5.0),
		Geography:  []string{"TX", "OK"},
		ExtractionSources: provenance.Entries{
			{Source: provenance.SourceTranscript, Timestamp: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), Fields: []string{"min_revenue"}},
		},
	}
	require.NoError(t, st.CreateBuyer(ctx, b))

	d := &model.Deal{TrackerID: tr.ID, Name: "Lone Star Air", Domain: "lonestarair.com", Revenue: ptr(12.0), HQState: "TX"}
	require.NoError(t, st.CreateDeal(ctx, d))
	return tr, b, d
}

func TestSQLite_TrackerCRUD(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tr := &model.Tracker{
		Name:              "Collision Repair",
		GeographyCriteria: "Southeast",
		Hints:             &model.CriteriaHints{GeographyStrictness: model.StrictnessStrict},
	}
	require.NoError(t, st.CreateTracker(ctx, tr))
	require.NotEmpty(t, tr.ID)
	assert.False(t, tr.CreatedAt.IsZero())

	got, err := st.GetTracker(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Collision Repair", got.Name)
	require.NotNil(t, got.Hints)
	assert.Equal(t, model.StrictnessStrict, got.Hints.GeographyStrictness)

	got.SizeCriteria = "$5-25M revenue"
	require.NoError(t, st.UpdateTracker(ctx, got))
	again, err := st.GetTracker(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "$5-25M revenue", again.SizeCriteria)

	list, err := st.ListTrackers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, st.DeleteTracker(ctx, tr.ID))
	_, err = st.GetTracker(ctx, tr.ID)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetBuyer(ctx, "missing")
	assert.True(t, IsNotFound(err))
	_, err = st.GetDeal(ctx, "missing")
	assert.True(t, IsNotFound(err))
	err = st.UpdateBuyer(ctx, &model.Buyer{ID: "missing", Name: "x"})
	assert.True(t, IsNotFound(err))
	err = st.DeleteDeal(ctx, "missing")
	assert.True(t, IsNotFound(err))
	_, err = st.GetScore(ctx, "b", "d")
	assert.True(t, IsNotFound(err))
	err = st.UpdateScoreFlags(ctx, "b", "d", model.ScoreFlags{Interested: true})
	assert.True(t, IsNotFound(err))
}

func TestSQLite_BuyerRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	tr, b, _ := seedUniverse(t, st)

	got, err := st.GetBuyer(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.TrackerID)
	assert.Equal(t, 5.0, *got.MinRevenue)
	assert.Equal(t, []string{"TX", "OK"}, got.Geography)
	require.Len(t, got.ExtractionSources, 1)
	assert.Equal(t, provenance.SourceTranscript, got.ExtractionSources[0].Source)

	buyers, err := st.ListBuyers(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, buyers, 1)
	assert.Equal(t, "Comfort Partners", buyers[0].Name)

	other, err := st.ListBuyers(ctx, "other-tracker")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLite_BuyerRequiresTracker(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.CreateBuyer(context.Background(), &model.Buyer{TrackerID: "nope", Name: "Orphan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert buyer")
}

func TestSQLite_FindOrCreateCompany_Dedupes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.FindOrCreateCompany(ctx, "Lone Star Air", "https://www.LoneStarAir.com/about")
	require.NoError(t, err)
	assert.Equal(t, "lonestarair.com", a.Domain)

	b, err := st.FindOrCreateCompany(ctx, "Lone Star Air Inc", "lonestarair.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "Lone Star Air", b.Name)

	_, err = st.FindOrCreateCompany(ctx, "No Domain", "  ")
	require.Error(t, err)
}

func TestSQLite_UpsertScores_PreservesFlags(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	tr, b, d := seedUniverse(t, st)

	now := time.Now().UTC()
	first := model.BuyerDealScore{
		BuyerID: b.ID, DealID: d.ID, TrackerID: tr.ID,
		Status:       model.StatusScored,
		Composite:    ptr(72),
		Subscores:    model.Subscores{Size: 40, Service: 20, Geography: 12},
		Reasons:      []string{"revenue within range"},
		Completeness: model.CompletenessMedium,
		ScoredAt:     now, UpdatedAt: now,
	}
	require.NoError(t, st.UpsertScores(ctx, []model.BuyerDealScore{first}))
	require.NoError(t, st.UpdateScoreFlags(ctx, b.ID, d.ID, model.ScoreFlags{Interested: true, Approved: true}))

	rescored := first
	rescored.Composite = ptr(0)
	rescored.Status = model.StatusDisqualified
	rescored.Disqualified = true
	rescored.Disqualifications = []model.Disqualification{{Code: "excluded_service", Detail: "deal offers residential"}}
	require.NoError(t, st.UpsertScores(ctx, []model.BuyerDealScore{rescored}))

	got, err := st.GetScore(ctx, b.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDisqualified, got.Status)
	assert.Equal(t, 0, *got.Composite)
	assert.True(t, got.Disqualified)
	require.Len(t, got.Disqualifications, 1)
	assert.Equal(t, "excluded_service", got.Disqualifications[0].Code)
	assert.Equal(t, 40.0, got.Subscores.Size)
	assert.True(t, got.Flags.Interested)
	assert.True(t, got.Flags.Approved)
}

func TestSQLite_UpsertScores_FlagsOnFirstInsertOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	tr, b, d := seedUniverse(t, st)

	now := time.Now().UTC()
	sc := model.BuyerDealScore{
		BuyerID: b.ID, DealID: d.ID, TrackerID: tr.ID,
		Status:    model.StatusScored,
		Composite: ptr(55),
		Flags:     model.ScoreFlags{Passed: true, PassReason: "too far north"},
		ScoredAt:  now, UpdatedAt: now,
	}
	require.NoError(t, st.UpsertScores(ctx, []model.BuyerDealScore{sc}))

	sc.Composite = ptr(61)
	sc.Flags = model.ScoreFlags{}
	require.NoError(t, st.UpsertScores(ctx, []model.BuyerDealScore{sc}))

	got, err := st.GetScore(ctx, b.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 61, *got.Composite)
	assert.True(t, got.Flags.Passed)
	assert.Equal(t, "too far north", got.Flags.PassReason)
}

func TestSQLite_ListScoresForDeal_Order(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	tr, b1, d := seedUniverse(t, st)

	b2 := &model.Buyer{TrackerID: tr.ID, Name: "Second"}
	b3 := &model.Buyer{TrackerID: tr.ID, Name: "Third"}
	b4 := &model.Buyer{TrackerID: tr.ID, Name: "Fourth"}
	for _, b := range []*model.Buyer{b2, b3, b4} {
		require.NoError(t, st.CreateBuyer(ctx, b))
	}

	now := time.Now().UTC()
	scores := []model.BuyerDealScore{
		{BuyerID: b1.ID, DealID: d.ID, TrackerID: tr.ID, Status: model.StatusScored, Composite: ptr(55), ScoredAt: now, UpdatedAt: now},
		{BuyerID: b2.ID, DealID: d.ID, TrackerID: tr.ID, Status: model.StatusDisqualified, Composite: ptr(0), Disqualified: true, ScoredAt: now, UpdatedAt: now},
		{BuyerID: b3.ID, DealID: d.ID, TrackerID: tr.ID, Status: model.StatusInsufficientData, ScoredAt: now, UpdatedAt: now},
		{BuyerID: b4.ID, DealID: d.ID, TrackerID: tr.ID, Status: model.StatusScored, Composite: ptr(90), ScoredAt: now, UpdatedAt: now},
	}
	require.NoError(t, st.UpsertScores(ctx, scores))

	got, err := st.ListScoresForDeal(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, b4.ID, got[0].BuyerID)
	assert.Equal(t, b1.ID, got[1].BuyerID)
	assert.Equal(t, b2.ID, got[2].BuyerID)
	assert.Equal(t, b3.ID, got[3].BuyerID)
	assert.Nil(t, got[3].Composite)

	byBuyer, err := st.ListScoresForBuyer(ctx, b1.ID)
	require.NoError(t, err)
	assert.Len(t, byBuyer, 1)
}

func TestSQLite_DeleteTracker_Cascades(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	tr, b, d := seedUniverse(t, st)

	now := time.Now().UTC()
	require.NoError(t, st.UpsertScores(ctx, []model.BuyerDealScore{
		{BuyerID: b.ID, DealID: d.ID, TrackerID: tr.ID, Status: model.StatusScored, Composite: ptr(80), ScoredAt: now, UpdatedAt: now},
	}))

	require.NoError(t, st.DeleteTracker(ctx, tr.ID))

	_, err := st.GetBuyer(ctx, b.ID)
	assert.True(t, IsNotFound(err))
	_, err = st.GetDeal(ctx, d.ID)
	assert.True(t, IsNotFound(err))
	_, err = st.GetScore(ctx, b.ID, d.ID)
	assert.True(t, IsNotFound(err))
}

func TestSQLite_DeleteBuyer_CascadesScores(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	tr, b, d := seedUniverse(t, st)

	now := time.Now().UTC()
	require.NoError(t, st.UpsertScores(ctx, []model.BuyerDealScore{
		{BuyerID: b.ID, DealID: d.ID, TrackerID: tr.ID, Status: model.StatusScored, Composite: ptr(80), ScoredAt: now, UpdatedAt: now},
	}))
	require.NoError(t, st.DeleteBuyer(ctx, b.ID))

	scores, err := st.ListScoresForDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, scores)

	_, err = st.GetDeal(ctx, d.ID)
	assert.NoError(t, err)
}

func TestSQLite_DealCompanyLink(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, _, d := seedUniverse(t, st)

	c, err := st.FindOrCreateCompany(ctx, d.Name, d.Domain)
	require.NoError(t, err)
	d.CompanyID = c.ID
	require.NoError(t, st.UpdateDeal(ctx, d))

	got, err := st.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.CompanyID)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
}
