// Package api serves the court inventory over a read-only JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/store"
)

// Store is the read surface the API serves from.
type Store interface {
	SearchCourts(ctx context.Context, f store.CourtFilter) ([]model.Court, error)
	CourtPoints(ctx context.Context, f store.CourtFilter) ([]model.Court, error)
	CourtCounts(ctx context.Context) (*store.CourtCounts, error)
	GetRun(ctx context.Context, runID string) (*model.InventoryRun, error)
	LatestRun(ctx context.Context) (*model.InventoryRun, error)
	ListRuns(ctx context.Context, f store.RunFilter) ([]model.InventoryRun, error)
	ListLogs(ctx context.Context, runID string, limit int) ([]model.RunLogEntry, error)
	UsageSummary(ctx context.Context, since time.Time) (*store.UsageSummary, error)
}

// Server holds the API dependencies.
type Server struct {
	store   Store
	origins []string
	log     *zap.Logger
}

// NewServer creates an API server. An empty origins list allows any origin.
func NewServer(st Store, origins []string) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		store:   st,
		origins: origins,
		log:     zap.L().With(zap.String("component", "api")),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/courts", s.listCourts)
		r.Get("/courts/counts", s.courtCounts)
		r.Get("/courts/points", s.courtPoints)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/latest", s.latestRun)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/runs/{id}/logs", s.runLogs)
		r.Get("/usage", s.usage)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a store error onto a response. Not-found errors become 404;
// anything else is logged and reported as 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}
