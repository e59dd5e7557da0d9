// Package api serves the buyer universe over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/config"
	"github.com/sells-group/buyer-universe/internal/universe"
)

// Server holds the HTTP handlers.
type Server struct {
	svc     *universe.Service
	cfg     config.ServerConfig
	started time.Time
}

// New returns a Server for svc.
func New(svc *universe.Service, cfg config.ServerConfig) *Server {
	return &Server{svc: svc, cfg: cfg, started: time.Now()}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/trackers", func(r chi.Router) {
		r.Get("/", s.listTrackers)
		r.Post("/", s.createTracker)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getTracker)
			r.Delete("/", s.deleteTracker)
			r.Post("/parse", s.parseTracker)
			r.Get("/buyers", s.listBuyers)
			r.Post("/buyers", s.createBuyer)
			r.Get("/deals", s.listDeals)
			r.Post("/deals", s.createDeal)
		})
	})

	r.Route("/buyers/{id}", func(r chi.Router) {
		r.Get("/", s.getBuyer)
		r.Delete("/", s.deleteBuyer)
		r.Post("/extractions", s.buyerExtraction)
		r.Post("/website", s.buyerWebsite)
		r.Get("/provenance", s.buyerProvenance)
		r.Post("/score", s.scoreBuyer)
	})

	r.Route("/deals/{id}", func(r chi.Router) {
		r.Get("/", s.getDeal)
		r.Delete("/", s.deleteDeal)
		r.Post("/extractions", s.dealExtraction)
		r.Post("/website", s.dealWebsite)
		r.Get("/provenance", s.dealProvenance)
		r.Post("/score", s.scoreDeal)
		r.Get("/scores", s.listDealScores)
	})

	r.Route("/scores/{buyerID}/{dealID}", func(r chi.Router) {
		r.Post("/", s.scorePair)
		r.Patch("/", s.updateScoreFlags)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("api: starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "api: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("api: shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "api: shutdown")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type healthResponse struct {
	Status   string            `json:"status"`
	Uptime   string            `json:"uptime"`
	Circuits map[string]string `json:"circuits,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.started).Truncate(time.Second).String(),
		Circuits: s.svc.CircuitStates(),
	})
}
