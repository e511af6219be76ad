// Package ops exposes the operational HTTP surface: health and a read-only
// view of recent execution results.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/RedbringerS/vfs-bot/internal/store"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Results interface {
	RecentResults(ctx context.Context, userID int64, limit int) ([]store.ExecutionResult, error)
}

type Server struct {
	DB      Pinger
	Results Results
	Log     *slog.Logger
}

func (s *Server) Routes() http.Handler {
	if s.Log == nil {
		s.Log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/results/{userID}", s.handleResults)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.Ping(r.Context()); err != nil {
		http.Error(w, "db unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	results, err := s.Results.RecentResults(r.Context(), userID, 20)
	if err != nil {
		s.Log.Error("recent results", "user_id", userID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	type item struct {
		Result        string    `json:"result"`
		ExecutionTime time.Time `json:"execution_time"`
	}
	out := make([]item, 0, len(results))
	for _, res := range results {
		out = append(out, item{Result: res.Result, ExecutionTime: res.ExecutionTime})
	}

	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(out)
}
