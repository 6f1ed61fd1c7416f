// Package mission implements the mission lifecycle state machine.
//
// Every transition is validated against the current mission status, appends
// exactly one history entry and commits the mission and drone changes in one
// store transaction guarded by a compare-and-swap on the prior status.
package mission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/metrics"
	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

var (
	// ErrInvalidTransition is returned when an event is not allowed from the mission's status.
	ErrInvalidTransition = errors.New("invalid mission transition")
	// ErrNotFound is returned when the mission does not exist.
	ErrNotFound = errors.New("mission not found")
	// ErrDuplicateOrder is returned when a mission already exists for the order.
	ErrDuplicateOrder = errors.New("mission already exists for order")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid mission input")
)

// maxCASRetries bounds how often a transition re-reads a mission that moved concurrently.
const maxCASRetries = 3

// Reserver reserves drones for new missions and rolls reservations back.
type Reserver interface {
	Reserve(ctx context.Context, missionID string) (*models.Drone, error)
	Release(ctx context.Context, droneID int64, missionID string) error
}

// Listener is notified after a transition has been committed.
type Listener interface {
	MissionTransitioned(ctx context.Context, m *models.Mission, from models.MissionStatus)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, m *models.Mission, from models.MissionStatus)

func (f ListenerFunc) MissionTransitioned(ctx context.Context, m *models.Mission, from models.MissionStatus) {
	f(ctx, m, from)
}

// Config holds the parameters used when planning a mission.
type Config struct {
	PathSteps int     // segments in the interpolated delivery path
	SpeedKps  float64 // cruise speed used for the ETA
}

// Service owns mission creation and every status transition.
type Service struct {
	missions repository.MissionStore
	alloc    Reserver
	cfg      Config
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

// New returns a lifecycle Service.
func New(missions repository.MissionStore, alloc Reserver, cfg Config, log logrus.FieldLogger, m *metrics.Metrics) *Service {
	if cfg.PathSteps < 1 {
		cfg.PathSteps = 20
	}
	if cfg.SpeedKps <= 0 {
		cfg.SpeedKps = 0.05
	}
	return &Service{
		missions: missions,
		alloc:    alloc,
		cfg:      cfg,
		log:      log,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddListener registers l for committed transitions.
func (s *Service) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Service) notify(ctx context.Context, m *models.Mission, from models.MissionStatus) {
	s.mu.RLock()
	ls := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range ls {
		l.MissionTransitioned(ctx, m, from)
	}
}

// CreateRequest describes a new delivery.
type CreateRequest struct {
	OrderID          string    `json:"orderId"`
	PickupLocation   geo.Point `json:"pickupLocation"`
	DeliveryLocation geo.Point `json:"deliveryLocation"`
}

func (r CreateRequest) validate() error {
	if strings.TrimSpace(r.OrderID) == "" {
		return fmt.Errorf("%w: orderId is required", ErrInvalidInput)
	}
	if !r.PickupLocation.Valid() {
		return fmt.Errorf("%w: invalid pickupLocation", ErrInvalidInput)
	}
	if !r.DeliveryLocation.Valid() {
		return fmt.Errorf("%w: invalid deliveryLocation", ErrInvalidInput)
	}
	return nil
}

// Create reserves a drone and persists a mission that is already IN_PROGRESS.
// The reservation is released if the mission cannot be written.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Mission, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if err := req.validate(); err != nil {
		return nil, err
	}
	existing, err := s.missions.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("lookup order %s: %w", req.OrderID, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: order %s has mission %s", ErrDuplicateOrder, req.OrderID, existing.ID)
	}

	id := uuid.NewString()
	drone, err := s.alloc.Reserve(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	eta := int64(geo.TravelTime(geo.Distance(req.PickupLocation, req.DeliveryLocation), s.cfg.SpeedKps) / time.Second)
	m := &models.Mission{
		ID:               id,
		OrderID:          req.OrderID,
		DroneID:          drone.ID,
		PickupLocation:   req.PickupLocation,
		DeliveryLocation: req.DeliveryLocation,
		Path:             geo.InterpolatePath(req.PickupLocation, req.DeliveryLocation, s.cfg.PathSteps),
		Status:           models.MissionStatusInProgress,
		History: []models.HistoryEntry{
			{Status: models.MissionStatusPending, Message: "Mission created", Timestamp: now},
			{Status: models.MissionStatusInProgress, Message: fmt.Sprintf("Drone %s dispatched", drone.SerialNumber), Timestamp: now},
		},
		EstimatedTravelTime: &eta,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.missions.CreateDispatched(ctx, m); err != nil {
		// The reservation must not outlive a mission that was never written.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if relErr := s.alloc.Release(relCtx, drone.ID, id); relErr != nil {
			s.log.WithError(relErr).WithFields(logrus.Fields{"mission_id": id, "drone_id": drone.ID}).Error("release after failed create")
		}
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return nil, fmt.Errorf("%w: order %s", ErrDuplicateOrder, req.OrderID)
		}
		return nil, fmt.Errorf("create mission: %w", err)
	}

	s.metrics.Transition(string(models.MissionStatusInProgress))
	s.log.WithFields(logrus.Fields{
		"mission_id": m.ID,
		"order_id":   m.OrderID,
		"drone_id":   m.DroneID,
		"eta_s":      eta,
	}).Info("mission dispatched")
	s.notify(ctx, m, models.MissionStatusPending)
	return m, nil
}

// Get returns a mission with its history.
func (s *Service) Get(ctx context.Context, id string) (*models.Mission, error) {
	m, err := s.missions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get mission %s: %w", id, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// GetByOrderID returns the mission created for an order.
func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*models.Mission, error) {
	m, err := s.missions.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get mission for order %s: %w", orderID, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return m, nil
}

// Filter narrows List results.
type Filter struct {
	Statuses []models.MissionStatus
	DroneID  *int64
	Limit    int
	Offset   int
}

// List returns missions newest first, without history.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Mission, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, st)
		}
	}
	out, err := s.missions.List(ctx, repository.ListMissionsParams{
		Statuses: f.Statuses,
		DroneID:  f.DroneID,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	return out, nil
}
