package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"droneMissionEngine/internal/db"
	"droneMissionEngine/internal/geo"
	"droneMissionEngine/models"
)

const droneColumns = `id, name, serial_number, battery_level, lat, lng, status, mission_id, updated_at`

type DroneRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDroneRepository(db *sql.DB) *DroneRepository {
	return &DroneRepository{db: db, now: time.Now}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrone(row rowScanner) (*models.Drone, error) {
	var d models.Drone
	var status, updated string
	var mission sql.NullString
	if err := row.Scan(&d.ID, &d.Name, &d.SerialNumber, &d.BatteryLevel, &d.Location.Lat, &d.Location.Lng, &status, &mission, &updated); err != nil {
		return nil, err
	}
	d.Status = models.DroneStatus(status)
	if mission.Valid {
		v := mission.String
		d.MissionID = &v
	}
	t, err := db.ParseTime(updated)
	if err != nil {
		return nil, err
	}
	d.UpdatedAt = t
	return &d, nil
}

// queryDrone runs a single-row query and maps sql.ErrNoRows to nil, nil.
func (r *DroneRepository) queryDrone(ctx context.Context, query string, args ...any) (*models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := scanDrone(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// Create inserts a new drone. Status defaults to IDLE if empty and battery to full if zero.
func (r *DroneRepository) Create(ctx context.Context, d *models.Drone) (*models.Drone, error) {
	if d == nil {
		return nil, errors.New("drone is nil")
	}
	if d.Status == "" {
		d.Status = models.DroneStatusIdle
	}
	if !d.Status.Valid() {
		return nil, errors.New("invalid drone status")
	}
	if !d.Location.Valid() {
		return nil, errors.New("invalid drone location")
	}
	if d.BatteryLevel == 0 {
		d.BatteryLevel = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var mission any
	if d.MissionID != nil {
		mission = *d.MissionID
	}
	d.UpdatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx, `INSERT INTO drones (name, serial_number, battery_level, lat, lng, status, mission_id, updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		d.Name, d.SerialNumber, d.BatteryLevel, d.Location.Lat, d.Location.Lng, string(d.Status), mission, db.FormatTime(d.UpdatedAt))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

func (r *DroneRepository) GetByID(ctx context.Context, id int64) (*models.Drone, error) {
	return r.queryDrone(ctx, `SELECT `+droneColumns+` FROM drones WHERE id = ?`, id)
}

func (r *DroneRepository) GetBySerial(ctx context.Context, serial string) (*models.Drone, error) {
	return r.queryDrone(ctx, `SELECT `+droneColumns+` FROM drones WHERE serial_number = ?`, serial)
}

// GetByMissionID returns the drone currently held by the mission, if any.
func (r *DroneRepository) GetByMissionID(ctx context.Context, missionID string) (*models.Drone, error) {
	return r.queryDrone(ctx, `SELECT `+droneColumns+` FROM drones WHERE mission_id = ?`, missionID)
}

// ReserveBest atomically claims the eligible drone with the highest battery
// (ties broken by lowest id) for missionID and flips it to RESERVED.
// Selection and update are a single statement, so two concurrent callers can
// never obtain the same drone. Returns nil, nil when no drone is eligible.
func (r *DroneRepository) ReserveBest(ctx context.Context, minBattery float64, missionID string) (*models.Drone, error) {
	return r.queryDrone(ctx, `
UPDATE drones SET status = 'RESERVED', mission_id = ?, updated_at = ?
WHERE id = (
    SELECT id FROM drones
    WHERE status = 'IDLE' AND mission_id IS NULL AND battery_level > ?
    ORDER BY battery_level DESC, id ASC
    LIMIT 1
) AND status = 'IDLE'
RETURNING `+droneColumns, missionID, db.FormatTime(r.now()), minBattery)
}

// Release rolls a reservation back to IDLE and clears the mission reference.
// It only applies while the drone is still RESERVED for missionID.
func (r *DroneRepository) Release(ctx context.Context, droneID int64, missionID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE drones SET status = 'IDLE', mission_id = NULL, updated_at = ? WHERE id = ? AND mission_id = ? AND status = 'RESERVED'`,
		db.FormatTime(r.now()), droneID, missionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ApplyTick persists one simulation step: the new location and the battery
// drained by drain, floored at zero. It only applies while the drone is held
// by missionID and returns nil, nil otherwise.
func (r *DroneRepository) ApplyTick(ctx context.Context, droneID int64, missionID string, loc geo.Point, drain float64) (*models.Drone, error) {
	if !loc.Valid() {
		return nil, errors.New("invalid drone location")
	}
	if drain < 0 {
		drain = 0
	}
	return r.queryDrone(ctx, `
UPDATE drones SET lat = ?, lng = ?, battery_level = MAX(0, battery_level - ?), updated_at = ?
WHERE id = ? AND mission_id = ?
RETURNING `+droneColumns, loc.Lat, loc.Lng, drain, db.FormatTime(r.now()), droneID, missionID)
}

// Recover returns a RETURNING drone to IDLE once no live mission holds it.
// Returns nil, nil when the drone is missing or not recoverable.
func (r *DroneRepository) Recover(ctx context.Context, droneID int64) (*models.Drone, error) {
	return r.queryDrone(ctx, `
UPDATE drones SET status = 'IDLE', mission_id = NULL, updated_at = ?
WHERE id = ? AND status = 'RETURNING'
  AND (mission_id IS NULL OR NOT EXISTS (
      SELECT 1 FROM missions m WHERE m.id = drones.mission_id AND m.status IN ('PENDING','IN_PROGRESS','DELIVERED')
  ))
RETURNING `+droneColumns, db.FormatTime(r.now()), droneID)
}

// SetBattery sets the battery level, e.g. after an external charging cycle.
func (r *DroneRepository) SetBattery(ctx context.Context, droneID int64, level float64) error {
	if level < 0 || level > 100 {
		return errors.New("battery level must be between 0 and 100")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE drones SET battery_level = ?, updated_at = ? WHERE id = ?`, level, db.FormatTime(r.now()), droneID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a drone from the fleet. The schema refuses while a live mission holds it.
func (r *DroneRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM drones WHERE id = ?`, id)
	return err
}

// ListDronesParams contains filters and pagination for List.
type ListDronesParams struct {
	Status       *models.DroneStatus
	NameOrSerial *string
	MinBattery   *float64
	PageSize     int
	AfterID      int64
}

// List returns drones matching filters ordered by id asc with keyset pagination by id.
func (r *DroneRepository) List(ctx context.Context, p ListDronesParams) ([]models.Drone, error) {
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	where := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if p.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.NameOrSerial != nil && strings.TrimSpace(*p.NameOrSerial) != "" {
		like := "%" + strings.TrimSpace(*p.NameOrSerial) + "%"
		where = append(where, "(name LIKE ? OR serial_number LIKE ?)")
		args = append(args, like, like)
	}
	if p.MinBattery != nil {
		where = append(where, "battery_level >= ?")
		args = append(args, *p.MinBattery)
	}
	if p.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, p.AfterID)
	}

	query := "SELECT " + droneColumns + " FROM drones"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC LIMIT ?"
	args = append(args, p.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Drone
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
