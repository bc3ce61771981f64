package server

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridpulse/gridpulse-ui/internal/alerts"
	"github.com/gridpulse/gridpulse-ui/internal/feed"
)

const defaultAlertLimit = 100

// handleAlerts handles GET /api/v1/alerts?limit=N.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list := s.manager.List(limit)

	type alertsResponse struct {
		Alerts []alerts.Alert `json:"alerts"`
		Meta   struct {
			Total  int `json:"total"`
			Active int `json:"active"`
		} `json:"meta"`
	}
	resp := alertsResponse{Alerts: list}
	resp.Meta.Total = len(list)
	resp.Meta.Active = s.manager.ActiveCount()

	s.writeJSON(w, resp)
}

// handleAlertStats handles GET /api/v1/alerts/stats?hours=H. Local counts
// cover this process's lifetime; the upstream aggregates cover the full
// trailing window and are attached best-effort.
func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	hours := 3
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 168 {
			writeError(w, http.StatusBadRequest, "hours must be between 1 and 168")
			return
		}
		hours = n
	}

	type statsResponse struct {
		Active   int                     `json:"active"`
		Counts   map[alerts.Severity]int `json:"counts"`
		Upstream *feed.AlertStats        `json:"upstream,omitempty"`
	}
	resp := statsResponse{
		Active: s.manager.ActiveCount(),
		Counts: s.manager.CountsBySeverity(),
	}
	if s.feed != nil {
		up, err := s.feed.FetchAlertStats(r.Context(), hours)
		if err != nil {
			s.logger.Debug("upstream alert stats unavailable", "error", err)
		} else {
			resp.Upstream = up
		}
	}
	s.writeJSON(w, resp)
}

// handleAlertTimeline handles GET /api/v1/alerts/timeline?hours=H&interval=I
// where interval is the bucket width in minutes.
func (s *Server) handleAlertTimeline(w http.ResponseWriter, r *http.Request) {
	hours := 3
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 168 {
			writeError(w, http.StatusBadRequest, "hours must be between 1 and 168")
			return
		}
		hours = n
	}
	intervalMin := 5
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "interval must be a positive integer")
			return
		}
		intervalMin = n
	}

	buckets := s.manager.Timeline(
		time.Duration(intervalMin)*time.Minute,
		time.Duration(hours)*time.Hour,
	)
	if s.feed != nil {
		entries, err := s.feed.FetchAlertTimeline(r.Context(), hours, intervalMin)
		if err != nil {
			s.logger.Debug("upstream alert timeline unavailable", "error", err)
		} else {
			buckets = mergeTimeline(buckets, entries)
		}
	}

	type timelineResponse struct {
		Buckets []alerts.TimelineBucket `json:"buckets"`
	}
	if buckets == nil {
		buckets = []alerts.TimelineBucket{}
	}
	s.writeJSON(w, timelineResponse{Buckets: buckets})
}

// mergeTimeline folds upstream timeline entries into the locally computed
// buckets. A locally synthesized alert is normally also reported upstream,
// so per-severity counts take the maximum of the two sources rather than
// their sum.
func mergeTimeline(local []alerts.TimelineBucket, upstream []feed.TimelineEntry) []alerts.TimelineBucket {
	byStart := make(map[int64]*alerts.TimelineBucket, len(local)+len(upstream))
	for i := range local {
		b := local[i]
		byStart[b.Start.Unix()] = &b
	}
	for _, e := range upstream {
		b, ok := byStart[e.Start.Unix()]
		if !ok {
			b = &alerts.TimelineBucket{Start: e.Start, Counts: make(map[alerts.Severity]int)}
			byStart[e.Start.Unix()] = b
		}
		for sev, n := range e.Counts {
			if n > b.Counts[sev] {
				b.Counts[sev] = n
			}
		}
		b.Targets = unionTargets(b.Targets, e.Targets)
	}

	merged := make([]alerts.TimelineBucket, 0, len(byStart))
	for _, b := range byStart {
		total := 0
		for _, n := range b.Counts {
			total += n
		}
		b.Total = total
		merged = append(merged, *b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Start.Before(merged[j].Start) })
	return merged
}

func unionTargets(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// handleAcknowledge handles POST /api/v1/alerts/{id}/acknowledge. The local
// manager is authoritative; the upstream service is notified best-effort so
// other dashboard instances converge on the next sync.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.manager.Acknowledge(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	if s.feed != nil {
		if err := s.feed.Acknowledge(r.Context(), id); err != nil {
			s.logger.Warn("upstream acknowledge failed", "alert_id", id, "error", err)
		}
	}

	s.writeJSON(w, map[string]string{"status": "acknowledged"})
}

// handleResolve handles POST /api/v1/alerts/{id}/resolve.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.manager.Resolve(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	if s.feed != nil {
		if err := s.feed.Resolve(r.Context(), id); err != nil {
			s.logger.Warn("upstream resolve failed", "alert_id", id, "error", err)
		}
	}

	s.writeJSON(w, map[string]string{"status": "resolved"})
}
