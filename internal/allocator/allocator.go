// Package allocator picks and reserves drones for new missions.
package allocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"droneMissionEngine/internal/metrics"
	"droneMissionEngine/models"
)

// DefaultMinBattery is the level a drone must exceed to be eligible.
const DefaultMinBattery = 25.0

// ErrNoCapacity is returned when no drone is eligible for a reservation.
var ErrNoCapacity = errors.New("no drone available")

// Store is the subset of the drone store the allocator needs.
type Store interface {
	ReserveBest(ctx context.Context, minBattery float64, missionID string) (*models.Drone, error)
	Release(ctx context.Context, droneID int64, missionID string) (bool, error)
}

// Allocator reserves the best eligible drone: IDLE, battery above MinBattery,
// highest battery first, lowest id on ties.
type Allocator struct {
	store      Store
	minBattery float64
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

// New returns an Allocator. A negative minBattery selects DefaultMinBattery.
func New(store Store, minBattery float64, log logrus.FieldLogger, m *metrics.Metrics) *Allocator {
	if minBattery < 0 {
		minBattery = DefaultMinBattery
	}
	return &Allocator{store: store, minBattery: minBattery, log: log, metrics: m}
}

// Reserve claims a drone for missionID. The returned drone is RESERVED and
// references the mission. ErrNoCapacity means nothing was reserved.
func (a *Allocator) Reserve(ctx context.Context, missionID string) (*models.Drone, error) {
	d, err := a.store.ReserveBest(ctx, a.minBattery, missionID)
	if err != nil {
		a.metrics.Reservation("error")
		return nil, fmt.Errorf("reserve drone: %w", err)
	}
	if d == nil {
		a.metrics.Reservation("no_capacity")
		a.log.WithField("mission_id", missionID).Warn("no eligible drone for mission")
		return nil, ErrNoCapacity
	}
	a.metrics.Reservation("reserved")
	a.log.WithFields(logrus.Fields{
		"mission_id": missionID,
		"drone_id":   d.ID,
		"battery":    d.BatteryLevel,
	}).Info("drone reserved")
	return d, nil
}

// Release rolls back a reservation that did not turn into a mission. It is a
// no-op when the drone has already moved on.
func (a *Allocator) Release(ctx context.Context, droneID int64, missionID string) error {
	released, err := a.store.Release(ctx, droneID, missionID)
	if err != nil {
		return fmt.Errorf("release drone %d: %w", droneID, err)
	}
	if released {
		a.metrics.Reservation("released")
		a.log.WithFields(logrus.Fields{"mission_id": missionID, "drone_id": droneID}).Info("reservation released")
	}
	return nil
}
