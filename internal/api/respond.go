package api

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/resilience"
	"github.com/sells-group/buyer-universe/internal/store"
	"github.com/sells-group/buyer-universe/internal/universe"
)

// maxBodyBytes caps request bodies. Transcripts are the largest payload.
const maxBodyBytes = 4 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeServiceError maps a service error onto an HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case universe.IsInvalid(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case eris.Is(err, universe.ErrLLMUnavailable):
		writeError(w, http.StatusServiceUnavailable, "llm_unavailable", "no model API key is configured")
	case eris.Is(err, universe.ErrFetchUnavailable):
		writeError(w, http.StatusServiceUnavailable, "fetch_unavailable", "website fetching is not configured")
	case eris.Is(err, universe.ErrFetchFailed):
		writeError(w, http.StatusBadGateway, "fetch_failed", err.Error())
	case eris.Is(err, resilience.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "circuit_open", err.Error())
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return false
	}
	return true
}
