package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/provenance"
)

// Trackers

func (s *Server) listTrackers(w http.ResponseWriter, r *http.Request) {
	ts, err := s.svc.Store().ListTrackers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) createTracker(w http.ResponseWriter, r *http.Request) {
	var t model.Tracker
	if !decodeBody(w, r, &t) {
		return
	}
	t.ID = ""
	if err := s.svc.CreateTracker(r.Context(), &t); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTracker(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Store().GetTracker(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTracker(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store().DeleteTracker(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type parseResponse struct {
	Tracker *model.Tracker   `json:"tracker"`
	Usage   model.TokenUsage `json:"usage"`
}

func (s *Server) parseTracker(w http.ResponseWriter, r *http.Request) {
	t, usage, err := s.svc.ParseTrackerCriteria(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, parseResponse{Tracker: t, Usage: usage})
}

// Buyers and deals

// recordRequest creates or updates a buyer or deal from raw field values.
type recordRequest struct {
	Source provenance.Source `json:"source"`
	Fields map[string]any    `json:"fields"`
}

func (req *recordRequest) source(fallback provenance.Source) (provenance.Source, bool) {
	if req.Source == "" {
		return fallback, true
	}
	src, err := provenance.ParseSource(string(req.Source))
	return src, err == nil
}

func (s *Server) listBuyers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.svc.Store().GetTracker(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	bs, err := s.svc.Store().ListBuyers(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

func (s *Server) createBuyer(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	src, ok := req.source(provenance.SourceManual)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_source", "unknown source "+string(req.Source))
		return
	}
	b, rep, err := s.svc.CreateBuyer(r.Context(), chi.URLParam(r, "id"), src, req.Fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"buyer": b, "report": rep})
}

func (s *Server) getBuyer(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Store().GetBuyer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) deleteBuyer(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store().DeleteBuyer(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDeals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.svc.Store().GetTracker(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	ds, err := s.svc.Store().ListDeals(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) createDeal(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	src, ok := req.source(provenance.SourceManual)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_source", "unknown source "+string(req.Source))
		return
	}
	d, rep, err := s.svc.CreateDeal(r.Context(), chi.URLParam(r, "id"), src, req.Fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"deal": d, "report": rep})
}

func (s *Server) getDeal(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Store().GetDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteDeal(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store().DeleteDeal(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Extractions

// extractionRequest carries either raw text for the model or field values
// already extracted elsewhere.
type extractionRequest struct {
	Source provenance.Source `json:"source"`
	Text   string            `json:"text,omitempty"`
	Fields map[string]any    `json:"fields,omitempty"`
}

func (req *extractionRequest) validate() (provenance.Source, string) {
	src, err := provenance.ParseSource(string(req.Source))
	if err != nil {
		return "", "source must be one of transcript, notes, website, csv, manual"
	}
	hasText := strings.TrimSpace(req.Text) != ""
	if hasText == (len(req.Fields) > 0) {
		return "", "provide exactly one of text or fields"
	}
	return src, ""
}

func (s *Server) buyerExtraction(w http.ResponseWriter, r *http.Request) {
	var req extractionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	src, problem := req.validate()
	if problem != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", problem)
		return
	}
	id := chi.URLParam(r, "id")

	var (
		rep any
		err error
	)
	if len(req.Fields) > 0 {
		rep, err = s.svc.ApplyBuyerUpdate(r.Context(), id, src, req.Fields)
	} else {
		rep, err = s.svc.ExtractBuyer(r.Context(), id, src, req.Text)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) dealExtraction(w http.ResponseWriter, r *http.Request) {
	var req extractionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	src, problem := req.validate()
	if problem != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", problem)
		return
	}
	id := chi.URLParam(r, "id")

	var (
		rep any
		err error
	)
	if len(req.Fields) > 0 {
		rep, err = s.svc.ApplyDealUpdate(r.Context(), id, src, req.Fields)
	} else {
		rep, err = s.svc.ExtractDeal(r.Context(), id, src, req.Text)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// websiteRequest optionally overrides the record's own website.
type websiteRequest struct {
	URL string `json:"url,omitempty"`
}

func decodeWebsite(w http.ResponseWriter, r *http.Request) (websiteRequest, bool) {
	var req websiteRequest
	if r.ContentLength == 0 {
		return req, true
	}
	return req, decodeBody(w, r, &req)
}

func (s *Server) buyerWebsite(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWebsite(w, r)
	if !ok {
		return
	}
	rep, err := s.svc.ExtractBuyerWebsite(r.Context(), chi.URLParam(r, "id"), req.URL)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) dealWebsite(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWebsite(w, r)
	if !ok {
		return
	}
	rep, err := s.svc.ExtractDealWebsite(r.Context(), chi.URLParam(r, "id"), req.URL)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) buyerProvenance(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.BuyerProvenance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) dealProvenance(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.DealProvenance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Scores

func (s *Server) scoreDeal(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.ScoreDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) scoreBuyer(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.ScoreBuyer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) scorePair(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ScorePair(r.Context(), chi.URLParam(r, "buyerID"), chi.URLParam(r, "dealID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listDealScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.svc.RankedScores(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *Server) updateScoreFlags(w http.ResponseWriter, r *http.Request) {
	var flags model.ScoreFlags
	if !decodeBody(w, r, &flags) {
		return
	}
	score, err := s.svc.SetScoreFlags(r.Context(), chi.URLParam(r, "buyerID"), chi.URLParam(r, "dealID"), flags)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}
