package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"droneMissionEngine/internal/db"
	"droneMissionEngine/internal/geo"
	"droneMissionEngine/models"
)

const missionColumns = `id, order_id, drone_id, pickup_lat, pickup_lng, delivery_lat, delivery_lng, path, status, estimated_travel_time, delivered_at, completed_at, failure_reason, created_at, updated_at`

// MissionRepository is the core repository for Mission entities and their history.
type MissionRepository struct {
	db *sql.DB
}

// NewMissionRepository creates a new MissionRepository.
func NewMissionRepository(db *sql.DB) *MissionRepository {
	return &MissionRepository{db: db}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateDispatched inserts a mission together with its history and moves the
// reserved drone to DELIVERING, all in one transaction. The drone must be
// RESERVED for the mission, otherwise nothing is written and ErrDroneNotHeld
// is returned. A second mission for the same order yields ErrDuplicateOrder.
func (r *MissionRepository) CreateDispatched(ctx context.Context, m *models.Mission) error {
	if m == nil {
		return errors.New("mission is nil")
	}
	if len(m.History) == 0 {
		return errors.New("mission history is empty")
	}
	path, err := json.Marshal(m.Path)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO missions (id, order_id, drone_id, pickup_lat, pickup_lng, delivery_lat, delivery_lng, path, status, estimated_travel_time, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.OrderID, m.DroneID, m.PickupLocation.Lat, m.PickupLocation.Lng, m.DeliveryLocation.Lat, m.DeliveryLocation.Lng,
		string(path), string(m.Status), m.EstimatedTravelTime, db.FormatTime(m.CreatedAt), db.FormatTime(m.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return err
	}
	for _, h := range m.History {
		if err := appendHistory(ctx, tx, m.ID, h); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `UPDATE drones SET status = 'DELIVERING', updated_at = ? WHERE id = ? AND mission_id = ? AND status = 'RESERVED'`,
		db.FormatTime(m.UpdatedAt), m.DroneID, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrDroneNotHeld
	}
	return tx.Commit()
}

// Transition commits a mission status change, its history entry and the drone
// side effect as one unit. The mission update is a compare-and-swap on t.From;
// if the mission has moved on, ErrStaleStatus is returned and nothing is written.
func (r *MissionRepository) Transition(ctx context.Context, t Transition) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	now := db.FormatTime(t.Entry.Timestamp)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE missions SET
    status = ?,
    updated_at = ?,
    delivered_at = COALESCE(delivered_at, ?),
    completed_at = COALESCE(completed_at, ?),
    failure_reason = COALESCE(failure_reason, ?)
WHERE id = ? AND status = ?`,
		string(t.Entry.Status), now, nullableTime(t.DeliveredAt), nullableTime(t.CompletedAt), t.FailureReason,
		t.MissionID, string(t.From))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrStaleStatus
	}
	if err := appendHistory(ctx, tx, t.MissionID, t.Entry); err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx, `
UPDATE drones SET
    status = ?,
    mission_id = CASE WHEN ? THEN NULL ELSE mission_id END,
    updated_at = ?
WHERE id = ? AND mission_id = ?`,
		string(t.DroneStatus), t.ClearDroneRef, now, t.DroneID, t.MissionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrDroneNotHeld
	}
	return tx.Commit()
}

// appendHistory inserts one history row. History rows are never updated or deleted.
func appendHistory(ctx context.Context, tx *sql.Tx, missionID string, h models.HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO mission_history (mission_id, status, message, created_at) VALUES (?,?,?,?)`,
		missionID, string(h.Status), h.Message, db.FormatTime(h.Timestamp))
	return err
}

// GetByID fetches a mission with its full history.
func (r *MissionRepository) GetByID(ctx context.Context, id string) (*models.Mission, error) {
	return r.getOne(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = ?`, id)
}

// GetByOrderID fetches the mission for an external order id.
func (r *MissionRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Mission, error) {
	return r.getOne(ctx, `SELECT `+missionColumns+` FROM missions WHERE order_id = ?`, orderID)
}

func (r *MissionRepository) getOne(ctx context.Context, query string, arg any) (*models.Mission, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	m, err := scanMission(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if m.History, err = loadHistory(ctx, r.db, m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

func loadHistory(ctx context.Context, q queryer, missionID string) ([]models.HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT status, message, created_at FROM mission_history WHERE mission_id = ? ORDER BY id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.HistoryEntry
	for rows.Next() {
		var h models.HistoryEntry
		var status, ts string
		if err := rows.Scan(&status, &h.Message, &ts); err != nil {
			return nil, err
		}
		h.Status = models.MissionStatus(status)
		if h.Timestamp, err = db.ParseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListMissionsParams represents filters and pagination for List.
type ListMissionsParams struct {
	Statuses []models.MissionStatus
	DroneID  *int64
	Limit    int
	Offset   int
}

// List returns missions matching filters, newest first. History is not loaded.
func (r *MissionRepository) List(ctx context.Context, p ListMissionsParams) ([]models.Mission, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var where []string
	var args []any
	if len(p.Statuses) > 0 {
		placeholders := make([]string, len(p.Statuses))
		for i, s := range p.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if p.DroneID != nil {
		where = append(where, "drone_id = ?")
		args = append(args, *p.DroneID)
	}

	query := `SELECT ` + missionColumns + ` FROM missions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, p.Limit, p.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanMission(row rowScanner) (*models.Mission, error) {
	var m models.Mission
	var status, path, created, updated string
	var eta sql.NullInt64
	var delivered, completed, reason sql.NullString
	if err := row.Scan(&m.ID, &m.OrderID, &m.DroneID,
		&m.PickupLocation.Lat, &m.PickupLocation.Lng, &m.DeliveryLocation.Lat, &m.DeliveryLocation.Lng,
		&path, &status, &eta, &delivered, &completed, &reason, &created, &updated); err != nil {
		return nil, err
	}
	m.Status = models.MissionStatus(status)
	var waypoints []geo.Point
	if err := json.Unmarshal([]byte(path), &waypoints); err != nil {
		return nil, fmt.Errorf("decode path of mission %s: %w", m.ID, err)
	}
	m.Path = waypoints
	if eta.Valid {
		v := eta.Int64
		m.EstimatedTravelTime = &v
	}
	var err error
	if m.DeliveredAt, err = parseNullTime(delivered); err != nil {
		return nil, err
	}
	if m.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, err
	}
	if reason.Valid {
		v := reason.String
		m.FailureReason = &v
	}
	if m.CreatedAt, err = db.ParseTime(created); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = db.ParseTime(updated); err != nil {
		return nil, err
	}
	return &m, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := db.ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return db.FormatTime(*t)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
