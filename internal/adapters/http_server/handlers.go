// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"reviewsync/internal/app"
	"reviewsync/internal/domain"
)

// Queries is the read side the handlers need.
type Queries interface {
	ListReviews(ctx context.Context, q domain.ReviewsQuery, forceRefresh bool) ([]domain.ReviewView, error)
	Stats(ctx context.Context) (domain.StatsView, error)
}

// LastRunner reports the last committed refresh; optional.
type LastRunner interface {
	LastRun() time.Time
}

// defaultMinRating applies when the caller sends no minRating.
const defaultMinRating = 4

type Handlers struct {
	Q       Queries
	Refresh LastRunner
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", h.healthz)
	s.mux.Get("/reviews", h.listReviews)
	s.mux.Get("/reviews/stats", h.stats)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not encode response")
		return
	}
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.Refresh != nil {
		if t := h.Refresh.LastRun(); !t.IsZero() {
			resp["lastRefresh"] = t.UTC().Format(time.RFC3339)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := domain.ReviewsQuery{Category: qs.Get("category"), MinRating: defaultMinRating}

	if s := qs.Get("minRating"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 5 {
			writeProblem(w, http.StatusBadRequest, "Invalid minRating", "minRating must be an integer between 1 and 5")
			return
		}
		q.MinRating = n
	}
	if s := qs.Get("source"); s != "" {
		src, err := domain.ParseSource(s)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid source", err.Error())
			return
		}
		q.Source = src
	}
	refresh := false
	if s := qs.Get("refresh"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid refresh", "refresh must be true or false")
			return
		}
		refresh = b
	}

	out, err := h.Q.ListReviews(r.Context(), q, refresh)
	switch {
	case errors.Is(err, app.ErrRefreshFailed):
		log.Warn().Err(err).Msg("forced refresh failed")
		writeProblem(w, http.StatusBadGateway, "Refresh Failed", "review sources could not be refreshed; previous data is unchanged")
		return
	case err != nil:
		log.Error().Err(err).Msg("list reviews failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not load reviews")
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("stats failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not load stats")
		return
	}
	writeCached(w, r, out)
}
