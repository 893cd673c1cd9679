package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vanillastudio/console/internal/language"
)

const defaultSlot = "default"

type submitRequest struct {
	Slot      string `json:"slot"`
	Language  string `json:"language"`
	Code      string `json:"code"`
	TimeoutMs int    `json:"timeoutMs"`
}

type submitResponse struct {
	JobID string `json:"jobId"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Slot == "" {
		req.Slot = defaultSlot
	}

	jobID, err := s.manager.Submit(req.Slot, req.Language, req.Code, time.Duration(req.TimeoutMs)*time.Millisecond)
	if err != nil {
		if errors.Is(err, language.ErrUnsupportedLanguage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("failed to submit run", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(submitResponse{JobID: jobID})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.manager.Jobs())
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	snap, err := s.manager.Job(jobID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if _, err := s.manager.Job(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	s.manager.Cancel(jobID)
	w.WriteHeader(http.StatusNoContent)
}

type languageSummary struct {
	ID       string `json:"id"`
	Compiled bool   `json:"compiled"`
	Timeout  string `json:"timeout"`
}

func (s *Server) listLanguages(w http.ResponseWriter, r *http.Request) {
	profiles := s.registry.List()
	out := make([]languageSummary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, languageSummary{
			ID:       p.ID,
			Compiled: p.Compiled(),
			Timeout:  p.Timeout.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
