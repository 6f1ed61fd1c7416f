package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

// listDrones accepts ?status=&q=&minBattery=&after=&limit=.
func (s *Server) listDrones(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var p repository.ListDronesParams
	if raw := q.Get("status"); raw != "" {
		st := models.DroneStatus(strings.ToUpper(raw))
		if !st.Valid() {
			s.fail(w, r, fmt.Errorf("%w: unknown drone status %q", errBadRequest, raw))
			return
		}
		p.Status = &st
	}
	if raw := strings.TrimSpace(q.Get("q")); raw != "" {
		p.NameOrSerial = &raw
	}
	if raw := q.Get("minBattery"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: minBattery must be a number", errBadRequest))
			return
		}
		p.MinBattery = &v
	}
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: after must be an integer", errBadRequest))
			return
		}
		p.AfterID = v
	}
	var err error
	if p.PageSize, err = intParam(q.Get("limit")); err != nil {
		s.fail(w, r, err)
		return
	}

	out, err := s.drones.List(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if out == nil {
		out = []models.Drone{}
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) droneParam(r *http.Request) (*models.Drone, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: drone id must be an integer", errBadRequest)
	}
	d, err := s.drones.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: drone %d", errNotFound, id)
	}
	return d, nil
}

func (s *Server) getDrone(w http.ResponseWriter, r *http.Request) {
	d, err := s.droneParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, d)
}

// recoverDrone returns a RETURNING drone whose mission has ended to the pool.
func (s *Server) recoverDrone(w http.ResponseWriter, r *http.Request) {
	d, err := s.droneParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recovered, err := s.drones.Recover(r.Context(), d.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if recovered == nil {
		s.fail(w, r, fmt.Errorf("%w: drone %d is %s and cannot be recovered yet", errConflict, d.ID, d.Status))
		return
	}
	s.log.WithField("drone_id", d.ID).Info("drone recovered")
	ok(w, http.StatusOK, recovered)
}
