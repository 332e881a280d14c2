package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feedhub/internal/curation"
	"feedhub/pkg/types"
)

// handleFeed serves GET /api/feed: one curated page for polling clients.
// The same pipeline backs live sessions; this endpoint just skips the hub.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authn.Resolve(bearer(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credential")
		return
	}

	params, limit, cursor, err := parseFeedQuery(r, userID, s.defaultLimit, s.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.feeds.GetFeed(r.Context(), params, cursor, limit)
	if err != nil {
		s.writeFeedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) writeFeedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, curation.ErrInvalidCursor),
		errors.Is(err, curation.ErrInvalidLimit),
		errors.Is(err, types.ErrInvalidUserID),
		errors.Is(err, types.ErrInvalidVariant),
		errors.Is(err, types.ErrInvalidKind),
		errors.Is(err, types.ErrInvalidDiversity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "feed temporarily unavailable")
	default:
		s.log.Error().Err(err).Msg("feed request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleHealth serves GET /api/health. Unreachable storage reports 503 so
// load balancers can rotate the instance out.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sessions, rooms := s.hub.Stats()
	body := map[string]any{
		"status":    "healthy",
		"sessions":  sessions,
		"rooms":     rooms,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("store unreachable")
		body["status"] = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func parseFeedQuery(r *http.Request, userID string, defaultLimit, maxLimit int) (types.CurationParams, int, string, error) {
	q := r.URL.Query()

	params := types.CurationParams{
		UserID:  userID,
		Variant: types.VariantHome,
	}
	if v := q.Get("variant"); v != "" {
		params.Variant = types.FeedVariant(v)
	}
	if kinds := q.Get("kinds"); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			params.Kinds = append(params.Kinds, types.ContentKind(strings.TrimSpace(k)))
		}
	}
	if d := q.Get("diversity"); d != "" {
		f, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return params, 0, "", types.ErrInvalidDiversity
		}
		params.DiversityFactor = f
	}
	if age := q.Get("max_age"); age != "" {
		dur, err := time.ParseDuration(age)
		if err != nil || dur < 0 {
			return params, 0, "", errors.New("max_age must be a non-negative duration")
		}
		params.MaxAge = dur
	}
	if promoted := q.Get("promoted"); promoted != "" {
		b, err := strconv.ParseBool(promoted)
		if err != nil {
			return params, 0, "", errors.New("promoted must be a boolean")
		}
		params.IncludePromoted = b
	}

	limit := defaultLimit
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return params, 0, "", curation.ErrInvalidLimit
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return params, limit, q.Get("cursor"), nil
}

func bearer(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
