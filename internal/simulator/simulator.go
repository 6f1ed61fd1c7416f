// Package simulator flies missions: one goroutine per mission advances its
// drone along the mission path on a fixed tick and drives the lifecycle.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"droneMissionEngine/internal/broadcast"
	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/metrics"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/models"
)

var (
	// ErrAlreadyRunning is returned when the mission already has an active simulation.
	ErrAlreadyRunning = errors.New("simulation already running")
	// ErrNotRunning is returned when stopping a mission that is not simulated.
	ErrNotRunning = errors.New("simulation not running")
	// ErrNotFlyable is returned for missions that are not IN_PROGRESS or DELIVERED.
	ErrNotFlyable = errors.New("mission cannot be simulated in its current status")
	// ErrShutdown is returned by Start after Shutdown.
	ErrShutdown = errors.New("simulator is shut down")
)

// Phase is the leg of the flight a simulation is on.
type Phase string

const (
	PhaseDelivery Phase = "DELIVERY_LEG"
	PhaseReturn   Phase = "RETURN_LEG"
)

// Lifecycle is the part of the mission service the simulator drives.
type Lifecycle interface {
	Get(ctx context.Context, id string) (*models.Mission, error)
	ReachedDeliveryPoint(ctx context.Context, id string) (*models.Mission, error)
	ReachedHomeBase(ctx context.Context, id string) (*models.Mission, error)
	Fail(ctx context.Context, id string, event mission.Event, reason string) (*models.Mission, error)
}

// DroneStore reads drones and persists tick updates.
type DroneStore interface {
	GetByID(ctx context.Context, id int64) (*models.Drone, error)
	ApplyTick(ctx context.Context, droneID int64, missionID string, loc geo.Point, drain float64) (*models.Drone, error)
}

// Broadcaster receives the drone state after every tick.
type Broadcaster interface {
	Broadcast(u broadcast.DroneUpdate)
}

// Config controls flight physics and pacing.
type Config struct {
	TickInterval        time.Duration
	SpeedKps            float64
	BatteryDrainPerTick float64
	PathSteps           int
	TickTimeout         time.Duration // bound on the store work of one tick
}

// DefaultConfig returns the reference flight parameters.
func DefaultConfig() Config {
	return Config{
		TickInterval:        2 * time.Second,
		SpeedKps:            0.05,
		BatteryDrainPerTick: 0.2,
		PathSteps:           20,
		TickTimeout:         5 * time.Second,
	}
}

// Status is a point-in-time view of one simulation.
type Status struct {
	MissionID string    `json:"missionId"`
	DroneID   int64     `json:"droneId"`
	Phase     Phase     `json:"phase"`
	Position  geo.Point `json:"position"`
	Battery   float64   `json:"battery"`
	Ticks     int       `json:"ticks"`
	StartedAt time.Time `json:"startedAt"`
	Stopping  bool      `json:"stopping"`
}

// run is the in-memory state of one mission's flight. Only the mission's
// goroutine mutates the flight fields; mu guards them for Status readers.
type run struct {
	missionID string
	droneID   int64
	pickup    geo.Point

	mu       sync.Mutex
	phase    Phase
	path     []geo.Point
	position geo.Point
	battery  float64
	ticks    int
	started  time.Time
	stopping bool

	stop     chan struct{}
	stopOnce sync.Once
}

func (r *run) snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		MissionID: r.missionID,
		DroneID:   r.droneID,
		Phase:     r.phase,
		Position:  r.position,
		Battery:   r.battery,
		Ticks:     r.ticks,
		StartedAt: r.started,
		Stopping:  r.stopping,
	}
}

func (r *run) requestStop() {
	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *run) stopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping
}

// Simulator owns the registry of active simulations.
type Simulator struct {
	cfg       Config
	lifecycle Lifecycle
	drones    DroneStore
	hub       Broadcaster
	log       logrus.FieldLogger
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
}

// New returns a Simulator. Zero config fields take DefaultConfig values.
func New(cfg Config, lc Lifecycle, drones DroneStore, hub Broadcaster, log logrus.FieldLogger, m *metrics.Metrics) *Simulator {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.SpeedKps <= 0 {
		cfg.SpeedKps = def.SpeedKps
	}
	if cfg.BatteryDrainPerTick < 0 {
		cfg.BatteryDrainPerTick = def.BatteryDrainPerTick
	}
	if cfg.PathSteps < 1 {
		cfg.PathSteps = def.PathSteps
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = def.TickTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Simulator{
		cfg:       cfg,
		lifecycle: lc,
		drones:    drones,
		hub:       hub,
		log:       log,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[string]*run),
	}
}

// Start launches the tick loop for missionID. A DELIVERED mission resumes on
// the return leg from the drone's current position.
func (s *Simulator) Start(ctx context.Context, missionID string) (Status, error) {
	r, err := s.prepare(ctx, missionID)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Status{}, ErrShutdown
	}
	if _, ok := s.runs[missionID]; ok {
		return Status{}, fmt.Errorf("%w: mission %s", ErrAlreadyRunning, missionID)
	}
	s.runs[missionID] = r
	s.wg.Add(1)
	s.metrics.SimulationStarted()
	go s.loop(r)

	s.log.WithFields(logrus.Fields{
		"mission_id": missionID,
		"drone_id":   r.droneID,
		"phase":      r.phase,
	}).Info("simulation started")
	return r.snapshot(), nil
}

// prepare loads the mission and drone and builds the flight state.
func (s *Simulator) prepare(ctx context.Context, missionID string) (*run, error) {
	m, err := s.lifecycle.Get(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MissionStatusInProgress && m.Status != models.MissionStatusDelivered {
		return nil, fmt.Errorf("%w: mission %s is %s", ErrNotFlyable, m.ID, m.Status)
	}
	d, err := s.drones.GetByID(ctx, m.DroneID)
	if err != nil {
		return nil, fmt.Errorf("load drone %d: %w", m.DroneID, err)
	}
	if d == nil || !d.HeldBy(m.ID) {
		return nil, fmt.Errorf("%w: drone %d is not held by mission %s", ErrNotFlyable, m.DroneID, m.ID)
	}

	r := &run{
		missionID: m.ID,
		droneID:   d.ID,
		pickup:    m.PickupLocation,
		phase:     PhaseDelivery,
		path:      m.Path,
		position:  d.Location,
		battery:   d.BatteryLevel,
		started:   time.Now().UTC(),
		stop:      make(chan struct{}),
	}
	if m.Status == models.MissionStatusDelivered {
		r.phase = PhaseReturn
		r.path = geo.InterpolatePath(d.Location, m.PickupLocation, s.cfg.PathSteps)
	}
	return r, nil
}

// Stop asks the mission's loop to exit. The loop finishes any in-flight tick
// and is removed from the registry when it returns.
func (s *Simulator) Stop(missionID string) error {
	s.mu.Lock()
	r, ok := s.runs[missionID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: mission %s", ErrNotRunning, missionID)
	}
	r.requestStop()
	s.log.WithField("mission_id", missionID).Info("simulation stop requested")
	return nil
}

// Status reports the simulation of missionID, if active.
func (s *Simulator) Status(missionID string) (Status, bool) {
	s.mu.Lock()
	r, ok := s.runs[missionID]
	s.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return r.snapshot(), true
}

// Active lists running simulations ordered by start time.
func (s *Simulator) Active() []Status {
	s.mu.Lock()
	out := make([]Status, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r.snapshot())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].MissionID < out[j].MissionID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Shutdown stops every loop and waits for them to exit or for ctx to end.
// Simulation state is in-memory only and is not resumed on restart.
func (s *Simulator) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) loop(r *run) {
	log := s.log.WithFields(logrus.Fields{"mission_id": r.missionID, "drone_id": r.droneID})
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer func() {
		ticker.Stop()
		s.mu.Lock()
		delete(s.runs, r.missionID)
		s.mu.Unlock()
		s.metrics.SimulationEnded()
		s.wg.Done()
		log.Info("simulation ended")
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if r.stopRequested() {
				return
			}
			if finished := s.tick(r); finished {
				return
			}
		}
	}
}
