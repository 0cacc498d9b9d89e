package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ditm/internal/domain"
	"github.com/aristath/ditm/internal/modules/analytics"
	"github.com/aristath/ditm/internal/modules/presets"
	"github.com/aristath/ditm/internal/modules/scan"
	"github.com/aristath/ditm/internal/modules/watchlist"
)

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var gwErr *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &gwErr):
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		s.log.Error().Err(err).Msg("Request failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// handleScan runs a full scan. Tickers, capital and preset all fall back
// to server defaults when the request body omits them.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scan.Request
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.badRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	if len(req.Tickers) == 0 {
		tickers, err := s.cfg.Watchlist.Tickers()
		if err != nil {
			s.writeError(w, err)
			return
		}
		if len(tickers) == 0 {
			s.badRequest(w, "no tickers given and watchlist is empty")
			return
		}
		req.Tickers = tickers
	}
	if req.TargetCapital <= 0 {
		req.TargetCapital = s.cfg.TargetCapital
	}
	if req.PresetName == "" {
		req.PresetName = s.cfg.DefaultPreset
	}

	result, err := s.cfg.Scans.Run(r.Context(), req)
	if err != nil {
		var cfgErr *domain.PresetConfigError
		if errors.As(err, &cfgErr) || errors.Is(err, domain.ErrNotFound) {
			s.badRequest(w, err.Error())
			return
		}
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLatestScan(w http.ResponseWriter, r *http.Request) {
	result, err := s.cfg.ScanCache.Latest()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	scans, err := s.cfg.ScanRepo.ListScans(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"scans": scans})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sc, err := s.cfg.ScanRepo.GetScan(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	candidates, err := s.cfg.ScanRepo.GetCandidates(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scan":       sc,
		"candidates": candidates,
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	q := analytics.Query{
		Preset: r.URL.Query().Get("preset"),
		Ticker: r.URL.Query().Get("ticker"),
	}

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.badRequest(w, "from must be YYYY-MM-DD")
			return
		}
		q.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.badRequest(w, "to must be YYYY-MM-DD")
			return
		}
		q.To = &t
	}

	report, err := s.cfg.Analytics.Report(q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	status := domain.RecommendationStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.StatusOpen, domain.StatusClosed, domain.StatusExpired:
	default:
		s.badRequest(w, "status must be open, closed or expired")
		return
	}

	recs, err := s.cfg.Tracking.List(status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"positions": recs})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := s.cfg.Analytics.Detail(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

type closeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Reason == "" {
		s.badRequest(w, "reason is required")
		return
	}

	rec, err := s.cfg.Tracking.Close(id, req.Reason)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.writeError(w, err)
			return
		}
		s.badRequest(w, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRefreshPositions(w http.ResponseWriter, r *http.Request) {
	result, err := s.cfg.Tracking.RefreshAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTickers(w http.ResponseWriter, r *http.Request) {
	entries, err := s.cfg.Watchlist.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tickers": entries})
}

type tickerRequest struct {
	Ticker string `json:"ticker"`
}

func (s *Server) handleAddTicker(w http.ResponseWriter, r *http.Request) {
	var req tickerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	entry, err := s.cfg.Watchlist.Add(req.Ticker)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleRemoveTicker(w http.ResponseWriter, r *http.Request) {
	ticker, err := watchlist.Normalize(chi.URLParam(r, "ticker"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.cfg.Watchlist.Remove(ticker); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"removed": ticker})
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	all := s.cfg.Presets.All()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"presets": all,
		"default": s.cfg.Presets.Default().Name,
	})
}

// handleExplainPreset evaluates a posted candidate against one preset and
// reports every criterion with its pass/fail outcome.
func (s *Server) handleExplainPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	preset, err := s.cfg.Presets.Get(name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var candidate domain.Candidate
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"preset":   preset.Name,
		"matches":  presets.Matches(candidate, preset.Thresholds),
		"criteria": presets.Explain(candidate, preset.Thresholds),
		"reasons":  presets.MismatchReasons(candidate, preset.Thresholds),
	})
}
