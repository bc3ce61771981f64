package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gridpulse/gridpulse-ui/internal/feeder"
	"github.com/gridpulse/gridpulse-ui/internal/grid"
	"github.com/gridpulse/gridpulse-ui/internal/prefs"
)

// handleGetPrefs handles GET /api/v1/prefs.
func (s *Server) handleGetPrefs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.prefs.Get())
}

// handleSetPrefs handles POST /api/v1/prefs. The body carries the full
// preference set; persistence failure is surfaced in the log but the
// in-memory state still advances so the UI stays responsive.
func (s *Server) handleSetPrefs(w http.ResponseWriter, r *http.Request) {
	var p prefs.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences body")
		return
	}

	if err := s.prefs.Set(p); err != nil {
		s.logger.Warn("persisting preferences failed", "error", err)
	}
	s.writeJSON(w, s.prefs.Get())
}

// handleFeederImpact handles GET /api/v1/feeder/impact.
// Query parameters:
//   - phase: restrict the analysis to one phase (A, B or C)
//   - prosumer: restrict to the runs a single prosumer participates in
//   - max_span: bound how far downstream an origin is followed
func (s *Server) handleFeederImpact(w http.ResponseWriter, r *http.Request) {
	opts := feeder.Options{}

	if v := r.URL.Query().Get("phase"); v != "" {
		switch grid.Phase(v) {
		case grid.PhaseA, grid.PhaseB, grid.PhaseC:
			opts.Phase = grid.Phase(v)
		default:
			writeError(w, http.StatusBadRequest, "phase must be A, B or C")
			return
		}
	}
	if v := r.URL.Query().Get("max_span"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "max_span must be a non-negative integer")
			return
		}
		opts.MaxSpan = n
	}

	snap := s.store.Snapshot()
	var result *feeder.AnalysisResult
	if id := r.URL.Query().Get("prosumer"); id != "" {
		result = feeder.AnalyzeForProsumer(snap, id, opts)
	} else {
		result = feeder.Analyze(snap, opts)
	}

	s.writeJSON(w, result)
}
