package mission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

// Event is a lifecycle trigger.
type Event string

const (
	EventReachedDeliveryPoint Event = "reachedDeliveryPoint"
	EventReachedHomeBase      Event = "reachedHomeBase"
	EventBatteryDepleted      Event = "batteryDepleted"
	EventExternalFailure      Event = "externalFailure"
	EventCancel               Event = "cancel"
)

// rule describes one row of the transition table.
type rule struct {
	from        []models.MissionStatus
	to          models.MissionStatus
	drone       models.DroneStatus
	clearRef    bool
	message     string
	idempotent  bool // a retry against a mission already in `to` is a no-op
	setsReason  bool
	defaultText string
}

var rules = map[Event]rule{
	EventReachedDeliveryPoint: {
		from:       []models.MissionStatus{models.MissionStatusInProgress},
		to:         models.MissionStatusDelivered,
		drone:      models.DroneStatusReturning,
		message:    "Package delivered, returning to base",
		idempotent: true,
	},
	EventReachedHomeBase: {
		from:       []models.MissionStatus{models.MissionStatusDelivered},
		to:         models.MissionStatusReturned,
		drone:      models.DroneStatusIdle,
		clearRef:   true,
		message:    "Drone returned to base",
		idempotent: true,
	},
	EventBatteryDepleted: {
		from:        []models.MissionStatus{models.MissionStatusInProgress, models.MissionStatusDelivered},
		to:          models.MissionStatusFailed,
		drone:       models.DroneStatusReturning,
		message:     "Mission failed",
		idempotent:  true,
		setsReason:  true,
		defaultText: "Ran out of battery",
	},
	EventExternalFailure: {
		from:        []models.MissionStatus{models.MissionStatusInProgress, models.MissionStatusDelivered},
		to:          models.MissionStatusFailed,
		drone:       models.DroneStatusReturning,
		message:     "Mission failed",
		idempotent:  true,
		setsReason:  true,
		defaultText: "External failure",
	},
	EventCancel: {
		from:        []models.MissionStatus{models.MissionStatusPending, models.MissionStatusInProgress},
		to:          models.MissionStatusFailed,
		drone:       models.DroneStatusReturning,
		message:     "Mission cancelled",
		setsReason:  true,
		defaultText: "Cancelled by operator",
	},
}

func (r rule) allows(s models.MissionStatus) bool {
	for _, f := range r.from {
		if f == s {
			return true
		}
	}
	return false
}

// ReachedDeliveryPoint marks the package as delivered; the drone starts returning.
func (s *Service) ReachedDeliveryPoint(ctx context.Context, id string) (*models.Mission, error) {
	return s.apply(ctx, id, EventReachedDeliveryPoint, "", "")
}

// ReachedHomeBase completes the mission and frees the drone.
func (s *Service) ReachedHomeBase(ctx context.Context, id string) (*models.Mission, error) {
	return s.apply(ctx, id, EventReachedHomeBase, "", "")
}

// Fail moves an active mission to FAILED. The event must be
// EventBatteryDepleted or EventExternalFailure.
func (s *Service) Fail(ctx context.Context, id string, event Event, reason string) (*models.Mission, error) {
	if event != EventBatteryDepleted && event != EventExternalFailure {
		return nil, fmt.Errorf("%w: %q is not a failure event", ErrInvalidInput, event)
	}
	return s.apply(ctx, id, event, reason, "")
}

// Cancel aborts a mission that has not delivered yet. Cancelling a delivered
// or finished mission is an ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*models.Mission, error) {
	return s.apply(ctx, id, EventCancel, reason, "")
}

// StatusUpdate is an externally requested status change.
type StatusUpdate struct {
	Status        models.MissionStatus `json:"status"`
	FailureReason string               `json:"failureReason,omitempty"`
	Message       string               `json:"message,omitempty"`
}

// ApplyStatus maps a requested target status onto the matching lifecycle event.
func (s *Service) ApplyStatus(ctx context.Context, id string, u StatusUpdate) (*models.Mission, error) {
	var ev Event
	switch u.Status {
	case models.MissionStatusDelivered:
		ev = EventReachedDeliveryPoint
	case models.MissionStatusReturned:
		ev = EventReachedHomeBase
	case models.MissionStatusFailed:
		ev = EventExternalFailure
	case models.MissionStatusPending, models.MissionStatusInProgress:
		return nil, fmt.Errorf("%w: status %s is set only at creation", ErrInvalidTransition, u.Status)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, u.Status)
	}
	return s.apply(ctx, id, ev, u.FailureReason, u.Message)
}

func (s *Service) apply(ctx context.Context, id string, ev Event, reason, message string) (*models.Mission, error) {
	r, ok := rules[ev]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidInput, ev)
	}
	log := s.log.WithFields(logrus.Fields{"mission_id": id, "event": string(ev)})

	for attempt := 0; ; attempt++ {
		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.idempotent && m.Status == r.to {
			log.Debug("transition already applied")
			return m, nil
		}
		if !r.allows(m.Status) {
			return nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, m.Status)
		}

		now := s.now()
		t := repository.Transition{
			MissionID:     m.ID,
			From:          m.Status,
			Entry:         models.HistoryEntry{Status: r.to, Message: r.message, Timestamp: now},
			DroneID:       m.DroneID,
			DroneStatus:   r.drone,
			ClearDroneRef: r.clearRef,
		}
		if r.setsReason {
			if strings.TrimSpace(reason) == "" {
				reason = r.defaultText
			}
			t.FailureReason = &reason
			t.Entry.Message = r.message + ": " + reason
		}
		if message != "" {
			t.Entry.Message = message
		}
		switch r.to {
		case models.MissionStatusDelivered:
			t.DeliveredAt = &now
		case models.MissionStatusReturned, models.MissionStatusFailed:
			t.CompletedAt = &now
		}

		err = s.missions.Transition(ctx, t)
		if errors.Is(err, repository.ErrStaleStatus) && attempt < maxCASRetries {
			log.WithField("from", m.Status).Debug("mission moved concurrently, re-evaluating")
			continue
		}
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: %s lost a concurrent update", ErrInvalidTransition, ev)
		}
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", ev, err)
		}

		s.metrics.Transition(string(r.to))
		updated, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"from": m.Status, "to": r.to, "drone_id": m.DroneID}).Info("mission transitioned")
		s.notify(ctx, updated, m.Status)
		return updated, nil
	}
}
