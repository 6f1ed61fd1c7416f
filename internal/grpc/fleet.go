package grpcserver

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"droneMissionEngine/internal/allocator"
	"droneMissionEngine/internal/auth"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/internal/simulator"
	"droneMissionEngine/models"
	"droneMissionEngine/repository"
)

// Missions is the part of the mission service the Fleet service uses.
type Missions interface {
	Get(ctx context.Context, id string) (*models.Mission, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Mission, error)
	Cancel(ctx context.Context, id, reason string) (*models.Mission, error)
	Fail(ctx context.Context, id string, event mission.Event, reason string) (*models.Mission, error)
}

// Drones reads the fleet.
type Drones interface {
	GetBySerial(ctx context.Context, serial string) (*models.Drone, error)
	List(ctx context.Context, p repository.ListDronesParams) ([]models.Drone, error)
}

// Stopper halts a running simulation.
type Stopper interface {
	Stop(missionID string) error
}

// FleetServer implements FleetServiceServer.
type FleetServer struct {
	Missions Missions
	Drones   Drones
	Sims     Stopper
	Log      logrus.FieldLogger
}

var _ FleetServiceServer = (*FleetServer)(nil)

// toStatus maps domain errors to gRPC codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mission.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, mission.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, mission.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, mission.ErrDuplicateOrder):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, allocator.ErrNoCapacity):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *FleetServer) GetMission(ctx context.Context, req *GetMissionRequest) (*GetMissionResponse, error) {
	if _, err := auth.RequirePrincipal(ctx); err != nil {
		return nil, err
	}
	var (
		m   *models.Mission
		err error
	)
	switch {
	case strings.TrimSpace(req.MissionID) != "":
		m, err = s.Missions.Get(ctx, req.MissionID)
	case strings.TrimSpace(req.OrderID) != "":
		m, err = s.Missions.GetByOrderID(ctx, req.OrderID)
	default:
		return nil, status.Error(codes.InvalidArgument, "missionId or orderId is required")
	}
	if err != nil {
		return nil, s.fail(err, "get mission")
	}
	return &GetMissionResponse{Mission: m}, nil
}

func (s *FleetServer) ListDrones(ctx context.Context, req *ListDronesRequest) (*ListDronesResponse, error) {
	if _, err := auth.RequirePrincipal(ctx); err != nil {
		return nil, err
	}
	p := repository.ListDronesParams{PageSize: req.PageSize, AfterID: req.AfterID}
	if req.Status != "" {
		st := models.DroneStatus(strings.ToUpper(req.Status))
		if !st.Valid() {
			return nil, status.Errorf(codes.InvalidArgument, "invalid drone status %q", req.Status)
		}
		p.Status = &st
	}
	list, err := s.Drones.List(ctx, p)
	if err != nil {
		return nil, s.fail(err, "list drones")
	}
	resp := &ListDronesResponse{Drones: list}
	if n := len(list); n > 0 {
		resp.NextAfterID = list[n-1].ID
	}
	return resp, nil
}

func (s *FleetServer) CancelMission(ctx context.Context, req *CancelMissionRequest) (*CancelMissionResponse, error) {
	p, err := auth.RequireOperator(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.MissionID) == "" {
		return nil, status.Error(codes.InvalidArgument, "missionId is required")
	}
	m, err := s.Missions.Cancel(ctx, req.MissionID, req.Reason)
	if err != nil {
		return nil, s.fail(err, "cancel mission")
	}
	s.stop(m.ID)
	s.Log.WithFields(logrus.Fields{"mission_id": m.ID, "by": p.Name}).Info("mission cancelled over grpc")
	return &CancelMissionResponse{Mission: m}, nil
}

// ReportFault fails the calling drone's mission with an external failure.
func (s *FleetServer) ReportFault(ctx context.Context, req *ReportFaultRequest) (*ReportFaultResponse, error) {
	d, err := s.resolveDrone(ctx)
	if err != nil {
		return nil, err
	}
	if d.MissionID == nil {
		return nil, status.Error(codes.FailedPrecondition, "drone has no active mission")
	}
	m, err := s.Missions.Fail(ctx, *d.MissionID, mission.EventExternalFailure, strings.TrimSpace(req.Reason))
	if err != nil {
		return nil, s.fail(err, "report fault")
	}
	s.stop(m.ID)
	s.Log.WithFields(logrus.Fields{"mission_id": m.ID, "drone_id": d.ID}).Warn("drone reported fault")
	return &ReportFaultResponse{Mission: m}, nil
}

// GetAssignment returns the mission currently held by the calling drone.
func (s *FleetServer) GetAssignment(ctx context.Context, _ *GetAssignmentRequest) (*GetAssignmentResponse, error) {
	d, err := s.resolveDrone(ctx)
	if err != nil {
		return nil, err
	}
	if d.MissionID == nil {
		return nil, status.Error(codes.NotFound, "no mission assigned")
	}
	m, err := s.Missions.Get(ctx, *d.MissionID)
	if err != nil {
		return nil, s.fail(err, "get assignment")
	}
	return &GetAssignmentResponse{Mission: m}, nil
}

// resolveDrone maps the drone principal (its serial number) to a fleet record.
func (s *FleetServer) resolveDrone(ctx context.Context) (*models.Drone, error) {
	p, err := auth.RequireDrone(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.Drones.GetBySerial(ctx, p.Name)
	if err != nil {
		return nil, s.fail(err, "resolve drone")
	}
	if d == nil {
		return nil, status.Error(codes.NotFound, "drone not found")
	}
	return d, nil
}

func (s *FleetServer) stop(missionID string) {
	if s.Sims == nil {
		return
	}
	if err := s.Sims.Stop(missionID); err != nil && !errors.Is(err, simulator.ErrNotRunning) {
		s.Log.WithError(err).WithField("mission_id", missionID).Warn("stop simulation")
	}
}

func (s *FleetServer) fail(err error, what string) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal {
		s.Log.WithError(err).Error(what)
	}
	return st
}
