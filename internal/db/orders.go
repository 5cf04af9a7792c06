package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Limit order lifecycle states.
const (
	OrderPending   = "pending"
	OrderExecuted  = "executed"
	OrderCancelled = "cancelled"
	OrderExpired   = "expired"
)

// LimitOrder is a standing buy order on a slot: execute when the auction
// price drops to MaxPrice or below.
type LimitOrder struct {
	ID         string          `json:"id"`
	AgentID    string          `json:"agent_id"`
	TimeSlotID string          `json:"time_slot_id"`
	MaxPrice   decimal.Decimal `json:"max_price"`
	Status     string          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	BidID      string          `json:"bid_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty"`
}

// InsertLimitOrder stores an order, assigning id/created_at if unset.
func (s *Store) InsertLimitOrder(o *LimitOrder) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = OrderPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(`
		INSERT INTO limit_orders (id, agent_id, time_slot_id, max_price, status, reason, bid_id, created_at, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.AgentID, o.TimeSlotID, o.MaxPrice.String(), o.Status, nullStr(o.Reason), nullStr(o.BidID),
		fmtTime(o.CreatedAt), fmtNullTime(o.ExecutedAt))
	return err
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

const orderCols = "id, agent_id, time_slot_id, max_price, status, reason, bid_id, created_at, executed_at"

func scanOrder(row interface{ Scan(...any) error }) (*LimitOrder, error) {
	var o LimitOrder
	var maxPrice, createdAt string
	var reason, bidID, executedAt sql.NullString
	if err := row.Scan(&o.ID, &o.AgentID, &o.TimeSlotID, &maxPrice, &o.Status, &reason, &bidID, &createdAt, &executedAt); err != nil {
		return nil, err
	}
	o.MaxPrice = parseDecimal(maxPrice)
	o.Reason = reason.String
	o.BidID = bidID.String
	o.CreatedAt = parseTime(createdAt)
	o.ExecutedAt = parseNullTime(executedAt)
	return &o, nil
}

// GetLimitOrder returns the order or nil when unknown.
func (s *Store) GetLimitOrder(id string) (*LimitOrder, error) {
	o, err := scanOrder(s.q.QueryRow("SELECT "+orderCols+" FROM limit_orders WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// UpdateLimitOrder overwrites status, reason, bid link and execution time.
func (s *Store) UpdateLimitOrder(o *LimitOrder) error {
	_, err := s.q.Exec(`
		UPDATE limit_orders SET status = ?, reason = ?, bid_id = ?, executed_at = ?
		WHERE id = ?
	`, o.Status, nullStr(o.Reason), nullStr(o.BidID), fmtNullTime(o.ExecutedAt), o.ID)
	return err
}

// ListPendingOrdersForSlot returns pending orders on a slot in arrival order.
func (s *Store) ListPendingOrdersForSlot(slotID string) ([]*LimitOrder, error) {
	rows, err := s.q.Query(
		"SELECT "+orderCols+" FROM limit_orders WHERE time_slot_id = ? AND status = ? ORDER BY created_at, id",
		slotID, OrderPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LimitOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListOrdersForAgent returns an agent's orders, newest first.
func (s *Store) ListOrdersForAgent(agentID string) ([]*LimitOrder, error) {
	rows, err := s.q.Query(
		"SELECT "+orderCols+" FROM limit_orders WHERE agent_id = ? ORDER BY created_at DESC, id", agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LimitOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
