package models

import (
	"time"

	"droneMissionEngine/internal/geo"
)

// DroneStatus represents the flight status of a drone.
type DroneStatus string

const (
	DroneStatusIdle       DroneStatus = "IDLE"
	DroneStatusReserved   DroneStatus = "RESERVED"
	DroneStatusDelivering DroneStatus = "DELIVERING"
	DroneStatusReturning  DroneStatus = "RETURNING"
)

// Valid reports whether s is a known drone status.
func (s DroneStatus) Valid() bool {
	switch s {
	case DroneStatusIdle, DroneStatusReserved, DroneStatusDelivering, DroneStatusReturning:
		return true
	}
	return false
}

// Drone represents a delivery drone.
// MissionID is a weak back-reference to the mission currently holding the drone
// (nullable when the drone is idle).
type Drone struct {
	ID           int64       `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	SerialNumber string      `db:"serial_number" json:"serialNumber"`
	BatteryLevel float64     `db:"battery_level" json:"batteryLevel"`
	Location     geo.Point   `json:"location"`
	Status       DroneStatus `db:"status" json:"status"`
	MissionID    *string     `db:"mission_id" json:"missionId,omitempty"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updatedAt"`
}

// HeldBy reports whether the drone is currently held by the given mission.
func (d *Drone) HeldBy(missionID string) bool {
	return d != nil && d.MissionID != nil && *d.MissionID == missionID
}
