package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/store"
)

const (
	defaultOutcomeLimit = 200
	maxOutcomeLimit     = 5000
)

type outcomesResponse struct {
	Entries []ir.MemoryEntry `json:"entries"`
	Count   int              `json:"count"`
}

// handleOutcomes lists history entries. Query parameters:
// since (duration like 48h, or RFC 3339), outcome (comma separated),
// record, review (true for entries needing attention) and limit.
func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	entries, err := s.history.Search(r.Context(), f)
	if err != nil {
		s.log.Error("history search failed", "error", err)
		respondError(w, http.StatusInternalServerError, "history_error", err.Error())
		return
	}
	if entries == nil {
		entries = []ir.MemoryEntry{}
	}
	respondJSON(w, http.StatusOK, outcomesResponse{Entries: entries, Count: len(entries)})
}

func parseFilter(r *http.Request, now time.Time) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{Limit: defaultOutcomeLimit}

	if v := strings.TrimSpace(q.Get("since")); v != "" {
		since, err := ParseSince(v, now)
		if err != nil {
			return f, err
		}
		f.Since = since
	}
	if v := strings.TrimSpace(q.Get("outcome")); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.ToUpper(strings.TrimSpace(o)); o != "" {
				f.Outcomes = append(f.Outcomes, ir.Outcome(o))
			}
		}
	}
	f.RecordID = strings.TrimSpace(q.Get("record"))
	if v := q.Get("review"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("review: %w", err)
		}
		f.Attention = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("limit must be a positive integer")
		}
		f.Limit = min(n, maxOutcomeLimit)
	}
	return f, nil
}

// ParseSince reads a lookback duration ("48h") or an RFC 3339 instant.
func ParseSince(v string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(v); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("since: negative duration %s", v)
		}
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("since: want a duration like 48h or an RFC 3339 time, got %q", v)
}
