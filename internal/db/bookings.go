package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Booking lifecycle and split states.
const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"

	SplitNone     = "none"
	SplitPending  = "pending"
	SplitAccepted = "accepted"
	SplitRejected = "rejected"
)

// Booking ties an agent to a slot through the winning bid. Price is what this
// participant actually paid (the member contribution for group bids).
type Booking struct {
	ID               string          `json:"id"`
	TimeSlotID       string          `json:"time_slot_id"`
	AgentID          string          `json:"agent_id"`
	BidID            string          `json:"bid_id"`
	Price            decimal.Decimal `json:"price"`
	Status           string          `json:"status"`
	SplitWithAgentID string          `json:"split_with_agent_id,omitempty"`
	SplitStatus      string          `json:"split_status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// InsertBooking stores a booking, assigning id/created_at if unset.
func (s *Store) InsertBooking(b *Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BookingConfirmed
	}
	if b.SplitStatus == "" {
		b.SplitStatus = SplitNone
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	var split any
	if b.SplitWithAgentID != "" {
		split = b.SplitWithAgentID
	}
	_, err := s.q.Exec(`
		INSERT INTO bookings (id, time_slot_id, agent_id, bid_id, price, status, split_with_agent_id, split_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.TimeSlotID, b.AgentID, b.BidID, b.Price.String(), b.Status, split, b.SplitStatus, fmtTime(b.CreatedAt))
	return err
}

const bookingCols = "id, time_slot_id, agent_id, bid_id, price, status, split_with_agent_id, split_status, created_at"

func scanBooking(row interface{ Scan(...any) error }) (*Booking, error) {
	var b Booking
	var price, createdAt string
	var split sql.NullString
	if err := row.Scan(&b.ID, &b.TimeSlotID, &b.AgentID, &b.BidID, &price, &b.Status, &split, &b.SplitStatus, &createdAt); err != nil {
		return nil, err
	}
	b.Price = parseDecimal(price)
	b.SplitWithAgentID = split.String
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

// GetBooking returns the booking or nil when unknown.
func (s *Store) GetBooking(id string) (*Booking, error) {
	b, err := scanBooking(s.q.QueryRow("SELECT "+bookingCols+" FROM bookings WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// GetBookingByAgentSlot returns the agent's confirmed booking on a slot, or nil.
func (s *Store) GetBookingByAgentSlot(agentID, slotID string) (*Booking, error) {
	b, err := scanBooking(s.q.QueryRow(
		"SELECT "+bookingCols+" FROM bookings WHERE agent_id = ? AND time_slot_id = ? AND status = ?",
		agentID, slotID, BookingConfirmed))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// CountBookingsForSlot counts confirmed bookings on one slot.
func (s *Store) CountBookingsForSlot(slotID string) (int, error) {
	var n int
	err := s.q.QueryRow("SELECT COUNT(*) FROM bookings WHERE time_slot_id = ? AND status = ?",
		slotID, BookingConfirmed).Scan(&n)
	return n, err
}

// CountBookingsForAgent counts confirmed bookings held by one agent.
func (s *Store) CountBookingsForAgent(agentID string) (int, error) {
	var n int
	err := s.q.QueryRow("SELECT COUNT(*) FROM bookings WHERE agent_id = ? AND status = ?",
		agentID, BookingConfirmed).Scan(&n)
	return n, err
}

// CountAllBookings counts all confirmed bookings.
func (s *Store) CountAllBookings() (int, error) {
	var n int
	err := s.q.QueryRow("SELECT COUNT(*) FROM bookings WHERE status = ?", BookingConfirmed).Scan(&n)
	return n, err
}

// HasOverlap reports whether the agent has a confirmed booking on a different
// resource starting at the same instant.
func (s *Store) HasOverlap(agentID string, start time.Time, excludeSlotID string) (bool, error) {
	var n int
	err := s.q.QueryRow(`
		SELECT COUNT(*)
		  FROM bookings b
		  JOIN time_slots ts ON ts.id = b.time_slot_id
		 WHERE b.agent_id = ? AND b.status = ? AND ts.start_time = ?
		   AND ts.resource_id != (SELECT resource_id FROM time_slots WHERE id = ?)
	`, agentID, BookingConfirmed, fmtTime(start), excludeSlotID).Scan(&n)
	return n > 0, err
}

// ListBookingsForAgent returns the agent's bookings, newest first.
func (s *Store) ListBookingsForAgent(agentID string) ([]*Booking, error) {
	rows, err := s.q.Query(
		"SELECT "+bookingCols+" FROM bookings WHERE agent_id = ? ORDER BY created_at DESC, id", agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListBookingsForSlot returns confirmed bookings on one slot.
func (s *Store) ListBookingsForSlot(slotID string) ([]*Booking, error) {
	rows, err := s.q.Query(
		"SELECT "+bookingCols+" FROM bookings WHERE time_slot_id = ? AND status = ? ORDER BY created_at, id",
		slotID, BookingConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBookingStatus moves a booking between confirmed and cancelled.
func (s *Store) UpdateBookingStatus(bookingID, status string) error {
	_, err := s.q.Exec("UPDATE bookings SET status = ? WHERE id = ?", status, bookingID)
	return err
}

// UpdateBookingSplitStatus records the outcome of a split offer.
func (s *Store) UpdateBookingSplitStatus(bookingID, splitStatus string) error {
	_, err := s.q.Exec("UPDATE bookings SET split_status = ? WHERE id = ?", splitStatus, bookingID)
	return err
}
