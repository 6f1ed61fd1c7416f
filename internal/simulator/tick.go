package simulator

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"droneMissionEngine/internal/broadcast"
	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/models"
)

// BatteryDepletedReason is the failure reason recorded when a drone runs dry.
const BatteryDepletedReason = "Ran out of battery"

// tick advances r by one step and reports whether the loop should end.
// Store errors are logged and the step is retried on the next tick.
func (s *Simulator) tick(r *run) bool {
	// Ticks finish their writes even while the simulator shuts down.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.TickTimeout)
	defer cancel()
	log := s.log.WithFields(logrus.Fields{"mission_id": r.missionID, "drone_id": r.droneID})

	m, err := s.lifecycle.Get(ctx, r.missionID)
	if errors.Is(err, mission.ErrNotFound) {
		log.Warn("mission disappeared, ending simulation")
		return true
	}
	if err != nil {
		log.WithError(err).Warn("load mission")
		return false
	}
	if m.Status.Terminal() {
		log.WithField("status", m.Status).Info("mission finished externally")
		return true
	}

	d, err := s.drones.GetByID(ctx, r.droneID)
	if err != nil {
		log.WithError(err).Warn("load drone")
		return false
	}
	if d == nil || !d.HeldBy(m.ID) {
		log.Warn("drone no longer held by mission, ending simulation")
		return true
	}

	// The mission may have been marked delivered out of band.
	if r.phase == PhaseDelivery && m.Status == models.MissionStatusDelivered {
		s.beginReturn(r, d.Location)
	}

	r.mu.Lock()
	path, phase := r.path, r.phase
	r.mu.Unlock()

	step := s.cfg.SpeedKps * s.cfg.TickInterval.Seconds()
	pos, reached := geo.AdvanceAlongPath(path, d.Location, step)

	updated, err := s.drones.ApplyTick(ctx, d.ID, m.ID, pos, s.cfg.BatteryDrainPerTick)
	if err != nil {
		log.WithError(err).Warn("persist tick")
		return false
	}
	if updated == nil {
		log.Warn("drone released during tick, ending simulation")
		return true
	}
	s.metrics.Tick()

	r.mu.Lock()
	r.position = updated.Location
	r.battery = updated.BatteryLevel
	r.ticks++
	r.mu.Unlock()

	s.hub.Broadcast(broadcast.DroneUpdate{
		DroneID:   updated.ID,
		Location:  updated.Location,
		Battery:   updated.BatteryLevel,
		Status:    updated.Status,
		MissionID: m.ID,
	})

	if updated.BatteryLevel <= 0 {
		_, err := s.lifecycle.Fail(ctx, m.ID, mission.EventBatteryDepleted, BatteryDepletedReason)
		return s.settled(log, err, "battery depleted")
	}
	if !reached {
		return false
	}

	if phase == PhaseDelivery {
		_, err := s.lifecycle.ReachedDeliveryPoint(ctx, m.ID)
		if err != nil {
			return s.settled(log, err, "reached delivery point")
		}
		s.beginReturn(r, updated.Location)
		log.Info("delivery point reached, returning to pickup")
		return false
	}

	_, err = s.lifecycle.ReachedHomeBase(ctx, m.ID)
	if err != nil {
		return s.settled(log, err, "reached home base")
	}
	log.Info("drone back at base")
	return true
}

// settled reports whether a lifecycle call leaves nothing more to simulate.
// A rejected transition means the mission moved on elsewhere; any other error
// is retried on the next tick.
func (s *Simulator) settled(log logrus.FieldLogger, err error, what string) bool {
	switch {
	case err == nil:
		log.Info(what)
		return true
	case errors.Is(err, mission.ErrInvalidTransition), errors.Is(err, mission.ErrNotFound):
		log.WithError(err).Info(what + ": mission already moved on")
		return true
	default:
		log.WithError(err).Warn(what + ": will retry")
		return false
	}
}

func (s *Simulator) beginReturn(r *run, from geo.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseReturn
	r.path = geo.InterpolatePath(from, r.pickup, s.cfg.PathSteps)
}
