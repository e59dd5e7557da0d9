package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/config"
	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/scorer"
	"github.com/sells-group/buyer-universe/internal/store"
	"github.com/sells-group/buyer-universe/internal/universe"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	engine, err := scorer.NewEngine(scorer.DefaultFitConfig())
	require.NoError(t, err)

	srv := httptest.NewServer(New(universe.New(st, engine, universe.Options{}), config.ServerConfig{}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	var body healthResponse
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body.Status)
	assert.Nil(t, body.Circuits)
}

func TestTrackerLifecycle(t *testing.T) {
	srv := newTestServer(t)

	var tr model.Tracker
	status := do(t, srv, http.MethodPost, "/trackers", map[string]any{
		"name":             "Commercial HVAC",
		"service_criteria": "Commercial HVAC",
		"hints":            map[string]any{"geography_strictness": "moderate"},
	}, &tr)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, tr.ID)

	var got model.Tracker
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/trackers/"+tr.ID, nil, &got))
	assert.Equal(t, "Commercial HVAC", got.Name)

	var list []model.Tracker
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/trackers", nil, &list))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/trackers/"+tr.ID, nil, nil))

	var e errorBody
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/trackers/"+tr.ID, nil, &e))
	assert.Equal(t, "not_found", e.Error)
}

func TestCreateTracker_BadRequest(t *testing.T) {
	srv := newTestServer(t)
	var e errorBody
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/trackers", map[string]any{"name": ""}, &e))
	assert.Equal(t, "invalid_request", e.Error)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/trackers", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParseTracker_NoLLM(t *testing.T) {
	srv := newTestServer(t)
	var tr model.Tracker
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/trackers",
		map[string]any{"name": "X", "size_criteria": "$5-20M revenue"}, &tr))

	var e errorBody
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodPost, "/trackers/"+tr.ID+"/parse", nil, &e))
	assert.Equal(t, "llm_unavailable", e.Error)
}

type created struct {
	Buyer  *model.Buyer           `json:"buyer"`
	Deal   *model.Deal            `json:"deal"`
	Report *universe.UpdateReport `json:"report"`
}

func TestScoringFlow(t *testing.T) {
	srv := newTestServer(t)

	var tr model.Tracker
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/trackers", map[string]any{
		"name": "Commercial HVAC", "service_criteria": "Commercial HVAC",
	}, &tr))

	var b created
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/trackers/"+tr.ID+"/buyers", map[string]any{
		"fields": map[string]any{
			"name": "Comfort Partners", "services": "commercial hvac",
			"min_revenue": 5, "max_revenue": 40, "geography": "TX",
		},
	}, &b))
	assert.Equal(t, "manual", string(b.Report.Source))

	var d created
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/trackers/"+tr.ID+"/deals", map[string]any{
		"source": "notes",
		"fields": map[string]any{"name": "Lone Star Air", "revenue": "$12M", "hq_state": "TX", "service_mix": "Commercial HVAC"},
	}, &d))
	require.NotNil(t, d.Deal)

	var rep universe.BatchReport
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/deals/"+d.Deal.ID+"/score", nil, &rep))
	assert.Equal(t, 1, rep.Scored)

	var scores []model.BuyerDealScore
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/deals/"+d.Deal.ID+"/scores", nil, &scores))
	require.Len(t, scores, 1)
	assert.True(t, scores[0].Rankable())

	var flagged model.BuyerDealScore
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPatch, "/scores/"+b.Buyer.ID+"/"+d.Deal.ID,
		model.ScoreFlags{Passed: true, PassReason: "too small"}, &flagged))
	assert.True(t, flagged.Flags.Passed)
	assert.Equal(t, "too small", flagged.Flags.PassReason)

	var pair scorer.Result
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/scores/"+b.Buyer.ID+"/"+d.Deal.ID, nil, &pair))
	assert.Equal(t, model.StatusScored, pair.Status)

	var e errorBody
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPatch, "/scores/"+b.Buyer.ID+"/"+d.Deal.ID,
		model.ScoreFlags{Passed: true, Approved: true}, &e))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/deals/missing/score", nil, &e))
}

func TestExtractions(t *testing.T) {
	srv := newTestServer(t)

	var tr model.Tracker
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/trackers", map[string]any{"name": "T"}, &tr))
	var b created
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/trackers/"+tr.ID+"/buyers", map[string]any{
		"fields": map[string]any{"name": "Comfort Partners"},
	}, &b))
	path := "/buyers/" + b.Buyer.ID

	var rep universe.UpdateReport
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, path+"/extractions", map[string]any{
		"source": "transcript", "fields": map[string]any{"hq_state": "TX"},
	}, &rep))
	assert.Equal(t, []string{"hq_state"}, rep.Applied)

	rep = universe.UpdateReport{}
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, path+"/extractions", map[string]any{
		"source": "csv", "fields": map[string]any{"hq_state": "OK", "name": "Comfort"},
	}, &rep))
	assert.Equal(t, []string{"name"}, rep.Applied)
	assert.Equal(t, []string{"hq_state"}, rep.Protected)

	var view universe.ProvenanceView
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, path+"/provenance", nil, &view))
	assert.Len(t, view.Entries, 3)
	assert.Equal(t, "transcript", string(view.Effective["hq_state"]))
	assert.Equal(t, "csv", string(view.Effective["name"]))

	var e errorBody
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, path+"/extractions", map[string]any{
		"source": "gossip", "text": "hello",
	}, &e))
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, path+"/extractions", map[string]any{
		"source": "notes",
	}, &e))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodPost, path+"/extractions", map[string]any{
		"source": "notes", "text": "They now have 14 locations.",
	}, &e))

	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodPost, path+"/website", nil, &e))
	assert.Equal(t, "llm_unavailable", e.Error)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, path+"/website", "not an object", &e))
}
