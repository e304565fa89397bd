package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/blotterfeed/blotterfeed/internal/models"
	"github.com/blotterfeed/blotterfeed/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
}

// handleListInstruments returns the catalog, optionally filtered by
// securityType, currency, status or rating query parameters.
func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list := s.store.ListFunc(func(in *models.Instrument) bool {
		if v := q.Get("securityType"); v != "" && string(in.SecurityType) != v {
			return false
		}
		if v := q.Get("currency"); v != "" && in.Currency != v {
			return false
		}
		if v := q.Get("status"); v != "" && string(in.Status) != v {
			return false
		}
		if v := q.Get("rating"); v != "" && in.Rating != v {
			return false
		}
		return true
	})
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	in, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// handleCreateInstrument inserts a new instrument and derives its
// correlation rows against the existing catalog.
func (s *Server) handleCreateInstrument(w http.ResponseWriter, r *http.Request) {
	var in models.Instrument
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed instrument: " + err.Error()})
		return
	}
	if in.Status == "" {
		in.Status = models.StatusActive
	}
	existing, err := s.store.InsertReturningExisting(&in)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.graph.Add(&in, existing)
	if s.metrics != nil {
		s.metrics.Instruments.Set(float64(s.store.Count()))
	}
	log.Info().Str("instrument", in.ID).Str("type", string(in.SecurityType)).Msg("instrument added")
	writeJSON(w, http.StatusCreated, &in)
}

// handleUpdateInstrument merges a flat field map (wire form) into the
// current state.
func (s *Server) handleUpdateInstrument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed field map: " + err.Error()})
		return
	}
	if err := s.store.Merge(id, fields); err != nil {
		writeStoreError(w, err)
		return
	}
	in, err := s.store.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.Remove(id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.graph.Remove(id)
	if s.metrics != nil {
		s.metrics.Instruments.Set(float64(s.store.Count()))
	}
	log.Info().Str("instrument", id).Msg("instrument removed")
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status      string `json:"status"`
	Instruments int    `json:"instruments"`
	Sessions    int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Instruments: s.store.Count(),
		Sessions:    sessionsGauge(s),
	})
}

func sessionsGauge(s *Server) int {
	if s.metrics == nil {
		return 0
	}
	return int(s.metrics.CounterValue("blotterfeed_active_sessions"))
}
