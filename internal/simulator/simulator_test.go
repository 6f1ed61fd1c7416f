package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneMissionEngine/internal/allocator"
	"droneMissionEngine/internal/broadcast"
	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/internal/testutil"
	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

var (
	pickup   = geo.Point{Lat: 10.0, Lng: 106.0}
	delivery = geo.Point{Lat: 10.1, Lng: 106.1}
)

type updates struct {
	mu  sync.Mutex
	got []broadcast.DroneUpdate
}

func (u *updates) Broadcast(d broadcast.DroneUpdate) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.got = append(u.got, d)
}

func (u *updates) all() []broadcast.DroneUpdate {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]broadcast.DroneUpdate(nil), u.got...)
}

type fixture struct {
	sim     *Simulator
	svc     *mission.Service
	drones  *repository.DroneRepository
	updates *updates
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	d := testutil.OpenInMemoryDB(t)
	drones := repository.NewDroneRepository(d)
	missions := repository.NewMissionRepository(d)
	log, _ := testutil.NullLogger()
	m := testutil.Metrics()
	svc := mission.New(missions, allocator.New(drones, allocator.DefaultMinBattery, log, m),
		mission.Config{PathSteps: cfg.PathSteps, SpeedKps: cfg.SpeedKps}, log, m)
	u := &updates{}
	sim := New(cfg, svc, drones, u, log, m)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sim.Shutdown(ctx)
	})
	return &fixture{sim: sim, svc: svc, drones: drones, updates: u}
}

func (f *fixture) dispatch(t *testing.T, battery float64) *models.Mission {
	t.Helper()
	testutil.SeedDrone(t, f.drones, "SN-1", battery, pickup)
	m, err := f.svc.Create(context.Background(), mission.CreateRequest{OrderID: "order-1", PickupLocation: pickup, DeliveryLocation: delivery})
	require.NoError(t, err)
	return m
}

// fly runs ticks synchronously until the loop would end.
func (f *fixture) fly(t *testing.T, r *run, maxTicks int) int {
	t.Helper()
	for i := 1; i <= maxTicks; i++ {
		if f.sim.tick(r) {
			return i
		}
	}
	t.Fatalf("simulation did not finish within %d ticks", maxTicks)
	return 0
}

func TestTick_FullDeliveryAndReturn(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	m := f.dispatch(t, 90)
	ctx := context.Background()

	r, err := f.sim.prepare(ctx, m.ID)
	require.NoError(t, err)
	ticks := f.fly(t, r, 1000)
	// ~15.6 km each way at 0.1 km per tick.
	assert.InDelta(t, 313, ticks, 4)

	got, err := f.svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MissionStatusReturned, got.Status)
	var seen []models.MissionStatus
	for _, h := range got.History {
		seen = append(seen, h.Status)
	}
	assert.Equal(t, []models.MissionStatus{
		models.MissionStatusPending, models.MissionStatusInProgress,
		models.MissionStatusDelivered, models.MissionStatusReturned,
	}, seen)

	d, err := f.drones.GetByID(ctx, m.DroneID)
	require.NoError(t, err)
	assert.Equal(t, models.DroneStatusIdle, d.Status)
	assert.Nil(t, d.MissionID)
	assert.InDelta(t, pickup.Lat, d.Location.Lat, 1e-9)
	assert.InDelta(t, pickup.Lng, d.Location.Lng, 1e-9)

	ups := f.updates.all()
	require.Len(t, ups, ticks)
	for i := 1; i < len(ups); i++ {
		assert.LessOrEqual(t, ups[i].Battery, ups[i-1].Battery)
		assert.GreaterOrEqual(t, ups[i].Battery, 0.0)
	}
	assert.Equal(t, models.DroneStatusDelivering, ups[0].Status)
	assert.Equal(t, models.DroneStatusReturning, ups[len(ups)-1].Status)
}

func TestTick_BatteryDepletion(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	m := f.dispatch(t, 90)
	ctx := context.Background()
	require.NoError(t, f.drones.SetBattery(ctx, m.DroneID, 0.3))

	r, err := f.sim.prepare(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.fly(t, r, 10))

	got, err := f.svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MissionStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, BatteryDepletedReason, *got.FailureReason)

	d, err := f.drones.GetByID(ctx, m.DroneID)
	require.NoError(t, err)
	assert.Equal(t, models.DroneStatusReturning, d.Status)
	assert.Equal(t, 0.0, d.BatteryLevel)
}

func TestTick_EndsWhenMissionCancelled(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	m := f.dispatch(t, 90)
	ctx := context.Background()

	r, err := f.sim.prepare(ctx, m.ID)
	require.NoError(t, err)
	require.False(t, f.sim.tick(r))
	_, err = f.svc.Cancel(ctx, m.ID, "")
	require.NoError(t, err)
	assert.True(t, f.sim.tick(r))
}

func TestPrepare_ResumesDeliveredMissionOnReturnLeg(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	m := f.dispatch(t, 90)
	ctx := context.Background()
	_, err := f.svc.ReachedDeliveryPoint(ctx, m.ID)
	require.NoError(t, err)

	r, err := f.sim.prepare(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseReturn, r.phase)

	_, err = f.svc.ReachedHomeBase(ctx, m.ID)
	require.NoError(t, err)
	_, err = f.sim.prepare(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFlyable)

	_, err = f.sim.Start(ctx, "missing")
	assert.ErrorIs(t, err, mission.ErrNotFound)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.SpeedKps = 0.001
	cfg.BatteryDrainPerTick = 0.01
	return cfg
}

func TestStart_SecondStartIsConflict(t *testing.T) {
	f := newFixture(t, fastConfig())
	m := f.dispatch(t, 90)
	ctx := context.Background()

	_, err := f.sim.Start(ctx, m.ID)
	require.NoError(t, err)
	_, err = f.sim.Start(ctx, m.ID)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Len(t, f.sim.Active(), 1)

	require.Eventually(t, func() bool {
		st, ok := f.sim.Status(m.ID)
		return ok && st.Ticks >= 3
	}, 3*time.Second, 5*time.Millisecond)
}

func TestStop_RemovesEntryAfterLoopExits(t *testing.T) {
	f := newFixture(t, fastConfig())
	m := f.dispatch(t, 90)
	ctx := context.Background()

	require.ErrorIs(t, f.sim.Stop(m.ID), ErrNotRunning)
	_, err := f.sim.Start(ctx, m.ID)
	require.NoError(t, err)
	require.NoError(t, f.sim.Stop(m.ID))

	require.Eventually(t, func() bool {
		_, ok := f.sim.Status(m.ID)
		return !ok
	}, 3*time.Second, 5*time.Millisecond)
	assert.Empty(t, f.sim.Active())

	// Once stopped, no further updates arrive and the mission can be resumed.
	n := len(f.updates.all())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(f.updates.all()))
	_, err = f.sim.Start(ctx, m.ID)
	require.NoError(t, err)
}

func TestShutdown_StopsAllAndRejectsStart(t *testing.T) {
	f := newFixture(t, fastConfig())
	m := f.dispatch(t, 90)
	ctx := context.Background()

	_, err := f.sim.Start(ctx, m.ID)
	require.NoError(t, err)

	sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	require.NoError(t, f.sim.Shutdown(sctx))
	assert.Empty(t, f.sim.Active())

	_, err = f.sim.Start(ctx, m.ID)
	assert.ErrorIs(t, err, ErrShutdown)
}
