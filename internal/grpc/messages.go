package grpcserver

import "droneMissionEngine/models"

// GetMissionRequest looks a mission up by id or, when MissionID is empty, by order id.
type GetMissionRequest struct {
	MissionID string `json:"missionId,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
}

type GetMissionResponse struct {
	Mission *models.Mission `json:"mission"`
}

type ListDronesRequest struct {
	Status   string `json:"status,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
	AfterID  int64  `json:"afterId,omitempty"`
}

type ListDronesResponse struct {
	Drones      []models.Drone `json:"drones"`
	NextAfterID int64          `json:"nextAfterId,omitempty"`
}

type CancelMissionRequest struct {
	MissionID string `json:"missionId"`
	Reason    string `json:"reason,omitempty"`
}

type CancelMissionResponse struct {
	Mission *models.Mission `json:"mission"`
}

// ReportFaultRequest is sent by a drone that can no longer complete its mission.
type ReportFaultRequest struct {
	Reason string `json:"reason"`
}

type ReportFaultResponse struct {
	Mission *models.Mission `json:"mission"`
}

type GetAssignmentRequest struct{}

type GetAssignmentResponse struct {
	Mission *models.Mission `json:"mission"`
}
