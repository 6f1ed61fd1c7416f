package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/models"
)

// createMissionRequest keeps locations optional so a missing one is a 400
// rather than the point (0, 0).
type createMissionRequest struct {
	OrderID          string     `json:"orderId"`
	PickupLocation   *geo.Point `json:"pickupLocation"`
	DeliveryLocation *geo.Point `json:"deliveryLocation"`
}

func (s *Server) createMission(w http.ResponseWriter, r *http.Request) {
	var body createMissionRequest
	if err := decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.PickupLocation == nil || body.DeliveryLocation == nil {
		s.fail(w, r, fmt.Errorf("%w: pickupLocation and deliveryLocation are required", errBadRequest))
		return
	}
	m, err := s.missions.Create(r.Context(), mission.CreateRequest{
		OrderID:          body.OrderID,
		PickupLocation:   *body.PickupLocation,
		DeliveryLocation: *body.DeliveryLocation,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.opts.AutoStartSimulation && s.sims != nil {
		if _, err := s.sims.Start(r.Context(), m.ID); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"mission_id": m.ID}).Warn("auto-start simulation")
		}
	}
	ok(w, http.StatusCreated, m)
}

func (s *Server) getMission(w http.ResponseWriter, r *http.Request) {
	m, err := s.missions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, m)
}

// listMissions accepts ?status=A,B&droneId=&limit=&offset=.
func (s *Server) listMissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f mission.Filter
	if raw := q.Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, models.MissionStatus(strings.ToUpper(strings.TrimSpace(st))))
		}
	}
	if raw := q.Get("droneId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: droneId must be an integer", errBadRequest))
			return
		}
		f.DroneID = &id
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		s.fail(w, r, err)
		return
	}

	out, err := s.missions.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if out == nil {
		out = []models.Mission{}
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) updateMissionStatus(w http.ResponseWriter, r *http.Request) {
	var u mission.StatusUpdate
	if err := decode(w, r, &u); err != nil {
		s.fail(w, r, err)
		return
	}
	u.Status = models.MissionStatus(strings.ToUpper(strings.TrimSpace(string(u.Status))))
	m, err := s.missions.ApplyStatus(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, m)
}

// cancelMission is a logical delete: the mission fails and keeps its history.
func (s *Server) cancelMission(w http.ResponseWriter, r *http.Request) {
	m, err := s.missions.Cancel(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("reason"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.sims != nil {
		_ = s.sims.Stop(m.ID)
	}
	ok(w, http.StatusOK, m)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", errBadRequest, raw)
	}
	return n, nil
}
