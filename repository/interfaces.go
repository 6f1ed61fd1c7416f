package repository

import (
	"context"
	"errors"
	"time"

	"droneMissionEngine/internal/geo"
	"droneMissionEngine/models"
)

var (
	// ErrDuplicateOrder is returned when a mission already exists for the order.
	ErrDuplicateOrder = errors.New("mission already exists for order")
	// ErrStaleStatus is returned when a mission left the expected status before a transition committed.
	ErrStaleStatus = errors.New("mission status changed concurrently")
	// ErrDroneNotHeld is returned when a drone is no longer held by the mission writing to it.
	ErrDroneNotHeld = errors.New("drone is not held by mission")
)

// DroneStore defines operations on Drone records.
type DroneStore interface {
	Create(ctx context.Context, d *models.Drone) (*models.Drone, error)
	GetByID(ctx context.Context, id int64) (*models.Drone, error)
	GetBySerial(ctx context.Context, serial string) (*models.Drone, error)
	List(ctx context.Context, p ListDronesParams) ([]models.Drone, error)
	ReserveBest(ctx context.Context, minBattery float64, missionID string) (*models.Drone, error)
	Release(ctx context.Context, droneID int64, missionID string) (bool, error)
	ApplyTick(ctx context.Context, droneID int64, missionID string, loc geo.Point, drain float64) (*models.Drone, error)
	Recover(ctx context.Context, droneID int64) (*models.Drone, error)
	SetBattery(ctx context.Context, droneID int64, level float64) error
}

// MissionStore defines operations on Mission records and their history.
type MissionStore interface {
	CreateDispatched(ctx context.Context, m *models.Mission) error
	GetByID(ctx context.Context, id string) (*models.Mission, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Mission, error)
	List(ctx context.Context, p ListMissionsParams) ([]models.Mission, error)
	Transition(ctx context.Context, t Transition) error
}

// Transition is one mission status change committed together with its drone side effect.
type Transition struct {
	MissionID string
	From      models.MissionStatus
	Entry     models.HistoryEntry // Entry.Status is the target status

	DroneID       int64
	DroneStatus   models.DroneStatus
	ClearDroneRef bool

	DeliveredAt   *time.Time
	CompletedAt   *time.Time
	FailureReason *string
}
