package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SlotStatus is the lifecycle state of a time slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotInAuction SlotStatus = "in_auction"
	SlotBooked    SlotStatus = "booked"
)

// Resource is a bookable room.
type Resource struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	ResourceType string            `json:"resource_type"`
	Location     string            `json:"location"`
	Capacity     int               `json:"capacity"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	IsActive     bool              `json:"is_active"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TimeSlot is a half-open [start, end) interval on a resource.
type TimeSlot struct {
	ID         string     `json:"id"`
	ResourceID string     `json:"resource_id"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	Status     SlotStatus `json:"status"`
}

// InsertResource stores a resource, assigning id/created_at if unset.
func (s *Store) InsertResource(r *Resource) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ResourceType == "" {
		r.ResourceType = "room"
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	var attrs any
	if r.Attributes != nil {
		b, _ := json.Marshal(r.Attributes)
		attrs = string(b)
	}
	_, err := s.q.Exec(`
		INSERT INTO resources (id, name, resource_type, location, capacity, attributes, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.ResourceType, r.Location, r.Capacity, attrs, r.IsActive, fmtTime(r.CreatedAt))
	return err
}

const resourceCols = "id, name, resource_type, location, capacity, attributes, is_active, created_at"

func scanResource(row interface{ Scan(...any) error }) (*Resource, error) {
	var r Resource
	var attrs sql.NullString
	var createdAt string
	if err := row.Scan(&r.ID, &r.Name, &r.ResourceType, &r.Location, &r.Capacity, &attrs, &r.IsActive, &createdAt); err != nil {
		return nil, err
	}
	if attrs.Valid && attrs.String != "" {
		json.Unmarshal([]byte(attrs.String), &r.Attributes)
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

// GetResource returns the resource or nil when unknown.
func (s *Store) GetResource(id string) (*Resource, error) {
	r, err := scanResource(s.q.QueryRow("SELECT "+resourceCols+" FROM resources WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// FindResourceByNameLocation matches the ingest identity (name, location).
func (s *Store) FindResourceByNameLocation(name, location string) (*Resource, error) {
	r, err := scanResource(s.q.QueryRow(
		"SELECT "+resourceCols+" FROM resources WHERE name = ? AND location = ?", name, location))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListResources returns resources, optionally active ones only.
func (s *Store) ListResources(activeOnly bool) ([]*Resource, error) {
	query := "SELECT " + resourceCols + " FROM resources"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY location, name"
	rows, err := s.q.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertTimeSlot stores a slot, assigning an id if unset.
func (s *Store) InsertTimeSlot(ts *TimeSlot) error {
	if ts.ID == "" {
		ts.ID = uuid.NewString()
	}
	if ts.Status == "" {
		ts.Status = SlotAvailable
	}
	_, err := s.q.Exec(`
		INSERT INTO time_slots (id, resource_id, start_time, end_time, status)
		VALUES (?, ?, ?, ?, ?)
	`, ts.ID, ts.ResourceID, fmtTime(ts.StartTime), fmtTime(ts.EndTime), string(ts.Status))
	return err
}

func scanSlot(row interface{ Scan(...any) error }) (*TimeSlot, error) {
	var ts TimeSlot
	var start, end, status string
	if err := row.Scan(&ts.ID, &ts.ResourceID, &start, &end, &status); err != nil {
		return nil, err
	}
	ts.StartTime = parseTime(start)
	ts.EndTime = parseTime(end)
	ts.Status = SlotStatus(status)
	return &ts, nil
}

const slotCols = "id, resource_id, start_time, end_time, status"

// GetTimeSlot returns the slot or nil when unknown.
func (s *Store) GetTimeSlot(id string) (*TimeSlot, error) {
	ts, err := scanSlot(s.q.QueryRow("SELECT "+slotCols+" FROM time_slots WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ts, err
}

// FindSlot matches a slot by resource and exact start time.
func (s *Store) FindSlot(resourceID string, start time.Time) (*TimeSlot, error) {
	ts, err := scanSlot(s.q.QueryRow(
		"SELECT "+slotCols+" FROM time_slots WHERE resource_id = ? AND start_time = ?",
		resourceID, fmtTime(start)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ts, err
}

// UpdateSlotStatus moves a slot to the given status.
func (s *Store) UpdateSlotStatus(slotID string, status SlotStatus) error {
	_, err := s.q.Exec("UPDATE time_slots SET status = ? WHERE id = ?", string(status), slotID)
	return err
}

// ListSlotsInWindow returns slots with start_time in (from, to], ordered by
// start. When excludeBooked is set, booked slots are skipped.
func (s *Store) ListSlotsInWindow(from, to time.Time, excludeBooked bool) ([]*TimeSlot, error) {
	query := "SELECT " + slotCols + " FROM time_slots WHERE start_time > ? AND start_time <= ?"
	args := []any{fmtTime(from), fmtTime(to)}
	if excludeBooked {
		query += " AND status != ?"
		args = append(args, string(SlotBooked))
	}
	query += " ORDER BY start_time, id"
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TimeSlot
	for rows.Next() {
		ts, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// ListAllSlots returns every slot ordered by start time.
func (s *Store) ListAllSlots() ([]*TimeSlot, error) {
	rows, err := s.q.Query("SELECT " + slotCols + " FROM time_slots ORDER BY start_time, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TimeSlot
	for rows.Next() {
		ts, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// CountSlots returns total slots and slots in the given status.
func (s *Store) CountSlots(status SlotStatus) (total, matching int, err error) {
	if err = s.q.QueryRow("SELECT COUNT(*) FROM time_slots").Scan(&total); err != nil {
		return 0, 0, err
	}
	if err = s.q.QueryRow("SELECT COUNT(*) FROM time_slots WHERE status = ?", string(status)).Scan(&matching); err != nil {
		return 0, 0, err
	}
	return total, matching, nil
}
