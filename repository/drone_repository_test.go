package repository_test

import (
	"context"
	"sync"
	"testing"

	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/testutil"
	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

var home = geo.Point{Lat: 10.0, Lng: 106.0}

func TestDroneRepository_CRUD_And_List(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	drones := repository.NewDroneRepository(d)
	ctx := context.Background()

	dr, err := drones.Create(ctx, &models.Drone{SerialNumber: "S-1", Name: "alpha", Location: home})
	if err != nil {
		t.Fatalf("create drone: %v", err)
	}
	if dr.ID == 0 || dr.Status != models.DroneStatusIdle || dr.BatteryLevel != 100 {
		t.Fatalf("unexpected defaults: %+v", dr)
	}
	if _, err := drones.Create(ctx, &models.Drone{SerialNumber: "S-bad", Location: geo.Point{Lat: 91}}); err == nil {
		t.Fatalf("expected invalid location to be rejected")
	}

	if got, _ := drones.GetBySerial(ctx, "S-1"); got == nil || got.ID != dr.ID {
		t.Fatalf("GetBySerial mismatch: %+v", got)
	}
	if got, _ := drones.GetByID(ctx, 9999); got != nil {
		t.Fatalf("expected nil for missing drone, got %+v", got)
	}

	if err := drones.SetBattery(ctx, dr.ID, 42); err != nil {
		t.Fatalf("set battery: %v", err)
	}
	if err := drones.SetBattery(ctx, dr.ID, 142); err == nil {
		t.Fatalf("expected out-of-range battery to be rejected")
	}
	testutil.SeedDrone(t, drones, "S-2", 90, home)

	idle := models.DroneStatusIdle
	minBattery := 50.0
	list, err := drones.List(ctx, repository.ListDronesParams{Status: &idle, MinBattery: &minBattery})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].SerialNumber != "S-2" {
		t.Fatalf("filtered list mismatch: %+v", list)
	}

	if err := drones.Delete(ctx, dr.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gone, _ := drones.GetByID(ctx, dr.ID); gone != nil {
		t.Fatalf("expected drone deleted, got: %+v", gone)
	}
}

func TestReserveBest_PicksHighestBatteryThenLowestID(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	drones := repository.NewDroneRepository(d)
	ctx := context.Background()

	low := testutil.SeedDrone(t, drones, "LOW", 30, home)
	high1 := testutil.SeedDrone(t, drones, "HIGH-1", 80, home)
	testutil.SeedDrone(t, drones, "HIGH-2", 80, home)
	testutil.SeedDrone(t, drones, "FLAT", 10, home)

	got, err := drones.ReserveBest(ctx, 25, "m-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got == nil || got.ID != high1.ID {
		t.Fatalf("expected HIGH-1 (id %d), got %+v", high1.ID, got)
	}
	if got.Status != models.DroneStatusReserved || !got.HeldBy("m-1") {
		t.Fatalf("reservation not applied: %+v", got)
	}

	second, _ := drones.ReserveBest(ctx, 25, "m-2")
	third, _ := drones.ReserveBest(ctx, 25, "m-3")
	if second == nil || second.SerialNumber != "HIGH-2" || third == nil || third.ID != low.ID {
		t.Fatalf("unexpected order: second=%+v third=%+v", second, third)
	}
	// Only the 10% drone is left and it is below the threshold.
	if none, err := drones.ReserveBest(ctx, 25, "m-4"); err != nil || none != nil {
		t.Fatalf("expected no eligible drone, got %+v err=%v", none, err)
	}
}

func TestReserveBest_ConcurrentAttemptsNeverShareADrone(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	drones := repository.NewDroneRepository(d)
	testutil.SeedDrone(t, drones, "ONLY", 90, home)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan *models.Drone, attempts)
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dr, err := drones.ReserveBest(context.Background(), 25, "mission-"+string(rune('a'+i)))
			if err != nil {
				errs <- err
				return
			}
			results <- dr
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		t.Fatalf("reserve error: %v", err)
	}
	won := 0
	for dr := range results {
		if dr != nil {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one successful reservation, got %d", won)
	}
}

func TestRelease_OnlyForHoldingMission(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	drones := repository.NewDroneRepository(d)
	ctx := context.Background()
	testutil.SeedDrone(t, drones, "R-1", 90, home)

	dr, _ := drones.ReserveBest(ctx, 25, "m-1")
	if ok, err := drones.Release(ctx, dr.ID, "other"); err != nil || ok {
		t.Fatalf("release by non-holder should be a no-op: ok=%v err=%v", ok, err)
	}
	if ok, err := drones.Release(ctx, dr.ID, "m-1"); err != nil || !ok {
		t.Fatalf("release by holder: ok=%v err=%v", ok, err)
	}
	got, _ := drones.GetByID(ctx, dr.ID)
	if got.Status != models.DroneStatusIdle || got.MissionID != nil {
		t.Fatalf("drone not rolled back: %+v", got)
	}
}

func TestApplyTick_FloorsBatteryAndRequiresHolder(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	drones := repository.NewDroneRepository(d)
	ctx := context.Background()
	testutil.SeedDrone(t, drones, "T-1", 90, home)
	dr, _ := drones.ReserveBest(ctx, 25, "m-1")
	if err := drones.SetBattery(ctx, dr.ID, 0.3); err != nil {
		t.Fatalf("set battery: %v", err)
	}

	next := geo.Point{Lat: 10.01, Lng: 106.01}
	got, err := drones.ApplyTick(ctx, dr.ID, "m-1", next, 0.2)
	if err != nil || got == nil {
		t.Fatalf("apply tick: %+v err=%v", got, err)
	}
	if got.Location != next {
		t.Fatalf("location not updated: %+v", got.Location)
	}
	got, _ = drones.ApplyTick(ctx, dr.ID, "m-1", next, 0.2)
	if got.BatteryLevel != 0 {
		t.Fatalf("battery should floor at 0, got %v", got.BatteryLevel)
	}
	if other, err := drones.ApplyTick(ctx, dr.ID, "m-2", next, 0.2); err != nil || other != nil {
		t.Fatalf("tick by non-holder should not apply: %+v err=%v", other, err)
	}
}
