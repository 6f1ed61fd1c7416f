package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"droneMissionEngine/internal/simulator"
)

func (s *Server) startSimulation(w http.ResponseWriter, r *http.Request) {
	st, err := s.sims.Start(r.Context(), chi.URLParam(r, "missionId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Simulation started", Data: st})
}

func (s *Server) stopSimulation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionId")
	if err := s.sims.Stop(id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Simulation stopping"})
}

func (s *Server) getSimulation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionId")
	st, found := s.sims.Status(id)
	if !found {
		s.fail(w, r, fmt.Errorf("%w: mission %s", simulator.ErrNotRunning, id))
		return
	}
	ok(w, http.StatusOK, st)
}

func (s *Server) listSimulations(w http.ResponseWriter, r *http.Request) {
	ok(w, http.StatusOK, s.sims.Active())
}
