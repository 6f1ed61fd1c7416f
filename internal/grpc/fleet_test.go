package grpcserver

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"droneMissionEngine/internal/allocator"
	"droneMissionEngine/internal/auth"
	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/internal/testutil"
	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

const secret = "grpc-secret"

type stops struct{ ids []string }

func (s *stops) Stop(id string) error {
	s.ids = append(s.ids, id)
	return nil
}

type fixture struct {
	client *FleetClient
	svc    *mission.Service
	drones *repository.DroneRepository
	stops  *stops
	conn   *grpc.ClientConn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := testutil.OpenInMemoryDB(t)
	drones := repository.NewDroneRepository(d)
	log, _ := testutil.NullLogger()
	m := testutil.Metrics()
	svc := mission.New(repository.NewMissionRepository(d), allocator.New(drones, allocator.DefaultMinBattery, log, m), mission.Config{}, log, m)
	st := &stops{}

	srv, _ := NewServer(secret, &FleetServer{Missions: svc, Drones: drones, Sims: st, Log: log})
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &fixture{client: NewFleetClient(conn), svc: svc, drones: drones, stops: st, conn: conn}
}

func asKind(t *testing.T, name, kind string) context.Context {
	t.Helper()
	tok := testutil.GenerateJWTHS256(t, secret, name, kind)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func (f *fixture) dispatch(t *testing.T, serial, order string) *models.Mission {
	t.Helper()
	testutil.SeedDrone(t, f.drones, serial, 90, geo.Point{Lat: 10, Lng: 106})
	m, err := f.svc.Create(context.Background(), mission.CreateRequest{
		OrderID:          order,
		PickupLocation:   geo.Point{Lat: 10, Lng: 106},
		DeliveryLocation: geo.Point{Lat: 10.1, Lng: 106.1},
	})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}

func TestHealthIsUnauthenticated(t *testing.T) {
	f := newFixture(t)
	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: FleetServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", resp.GetStatus())
	}
}

func TestGetMission(t *testing.T) {
	f := newFixture(t)
	m := f.dispatch(t, "SN-1", "order-1")

	if _, err := f.client.GetMission(context.Background(), &GetMissionRequest{MissionID: m.ID}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	ctx := asKind(t, "ops", auth.KindDispatcher)
	resp, err := f.client.GetMission(ctx, &GetMissionRequest{OrderID: "order-1"})
	if err != nil {
		t.Fatalf("get by order: %v", err)
	}
	if resp.Mission.ID != m.ID || resp.Mission.Status != models.MissionStatusInProgress {
		t.Fatalf("unexpected mission %+v", resp.Mission)
	}

	if _, err := f.client.GetMission(ctx, &GetMissionRequest{MissionID: "missing"}); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := f.client.GetMission(ctx, &GetMissionRequest{}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestListDronesPaginates(t *testing.T) {
	f := newFixture(t)
	for _, sn := range []string{"SN-1", "SN-2", "SN-3"} {
		testutil.SeedDrone(t, f.drones, sn, 80, geo.Point{Lat: 10, Lng: 106})
	}
	ctx := asKind(t, "SN-1", "drone")

	first, err := f.client.ListDrones(ctx, &ListDronesRequest{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Drones) != 2 {
		t.Fatalf("page size = %d", len(first.Drones))
	}
	rest, err := f.client.ListDrones(ctx, &ListDronesRequest{PageSize: 2, AfterID: first.NextAfterID})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(rest.Drones) != 1 || rest.Drones[0].SerialNumber != "SN-3" {
		t.Fatalf("unexpected second page %+v", rest.Drones)
	}

	if _, err := f.client.ListDrones(ctx, &ListDronesRequest{Status: "flying"}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestCancelMission(t *testing.T) {
	f := newFixture(t)
	m := f.dispatch(t, "SN-1", "order-1")

	if _, err := f.client.CancelMission(asKind(t, "SN-1", "drone"), &CancelMissionRequest{MissionID: m.ID}); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}

	ctx := asKind(t, "root", "admin")
	resp, err := f.client.CancelMission(ctx, &CancelMissionRequest{MissionID: m.ID, Reason: "customer request"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if resp.Mission.Status != models.MissionStatusFailed {
		t.Fatalf("status = %s", resp.Mission.Status)
	}
	if len(f.stops.ids) != 1 || f.stops.ids[0] != m.ID {
		t.Fatalf("simulation not stopped: %v", f.stops.ids)
	}

	if _, err := f.client.CancelMission(ctx, &CancelMissionRequest{MissionID: m.ID}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestReportFaultAndAssignment(t *testing.T) {
	f := newFixture(t)
	m := f.dispatch(t, "SN-1", "order-1")
	ctx := asKind(t, "SN-1", "drone")

	got, err := f.client.GetAssignment(ctx, &GetAssignmentRequest{})
	if err != nil {
		t.Fatalf("assignment: %v", err)
	}
	if got.Mission.ID != m.ID {
		t.Fatalf("assignment = %s, want %s", got.Mission.ID, m.ID)
	}

	resp, err := f.client.ReportFault(ctx, &ReportFaultRequest{Reason: "rotor failure"})
	if err != nil {
		t.Fatalf("report fault: %v", err)
	}
	if resp.Mission.Status != models.MissionStatusFailed || resp.Mission.FailureReason == nil || *resp.Mission.FailureReason != "rotor failure" {
		t.Fatalf("unexpected mission %+v", resp.Mission)
	}

	d, err := f.drones.GetBySerial(context.Background(), "SN-1")
	if err != nil {
		t.Fatalf("get drone: %v", err)
	}
	if d.Status != models.DroneStatusReturning {
		t.Fatalf("drone status = %s", d.Status)
	}

	if _, err := f.client.ReportFault(asKind(t, "ghost", "drone"), &ReportFaultRequest{}); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	testutil.SeedDrone(t, f.drones, "SN-2", 90, geo.Point{Lat: 10, Lng: 106})
	if _, err := f.client.ReportFault(asKind(t, "SN-2", "drone"), &ReportFaultRequest{}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}
