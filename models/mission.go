package models

import (
	"time"

	"droneMissionEngine/internal/geo"
)

// MissionStatus represents the current progress of a mission.
type MissionStatus string

const (
	MissionStatusPending    MissionStatus = "PENDING"
	MissionStatusInProgress MissionStatus = "IN_PROGRESS"
	MissionStatusDelivered  MissionStatus = "DELIVERED"
	MissionStatusReturned   MissionStatus = "RETURNED"
	MissionStatusFailed     MissionStatus = "FAILED"
)

// Valid reports whether s is a known mission status.
func (s MissionStatus) Valid() bool {
	switch s {
	case MissionStatusPending, MissionStatusInProgress, MissionStatusDelivered,
		MissionStatusReturned, MissionStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s MissionStatus) Terminal() bool {
	return s == MissionStatusReturned || s == MissionStatusFailed
}

// HistoryEntry is one append-only record of a mission status change.
type HistoryEntry struct {
	Status    MissionStatus `db:"status" json:"status"`
	Message   string        `db:"message" json:"message"`
	Timestamp time.Time     `db:"created_at" json:"timestamp"`
}

// Mission is one drone's assignment to ferry an order from pickup to delivery and back.
// The mission holds its drone's RESERVED/DELIVERING/RETURNING status for its lifetime.
type Mission struct {
	ID                  string         `db:"id" json:"id"`
	OrderID             string         `db:"order_id" json:"orderId"`
	DroneID             int64          `db:"drone_id" json:"droneId"`
	PickupLocation      geo.Point      `json:"pickupLocation"`
	DeliveryLocation    geo.Point      `json:"deliveryLocation"`
	Path                []geo.Point    `db:"path" json:"path"`
	Status              MissionStatus  `db:"status" json:"status"`
	History             []HistoryEntry `json:"history"`
	EstimatedTravelTime *int64         `db:"estimated_travel_time" json:"estimatedTravelTime,omitempty"` // seconds
	DeliveredAt         *time.Time     `db:"delivered_at" json:"deliveredAt,omitempty"`
	CompletedAt         *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
	FailureReason       *string        `db:"failure_reason" json:"failureReason,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updatedAt"`
}

// LastEntry returns the most recent history entry, if any.
func (m *Mission) LastEntry() (HistoryEntry, bool) {
	if m == nil || len(m.History) == 0 {
		return HistoryEntry{}, false
	}
	return m.History[len(m.History)-1], true
}
