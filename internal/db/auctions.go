package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionActive    AuctionStatus = "active"
	AuctionCompleted AuctionStatus = "completed"
	AuctionCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (st AuctionStatus) Terminal() bool {
	return st == AuctionCompleted || st == AuctionCancelled
}

// BidStatus is the lifecycle state of a bid.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// Auction is a descending-price sale of one time slot.
type Auction struct {
	ID              string        `json:"id"`
	TimeSlotID      string        `json:"time_slot_id"`
	AuctionType     string        `json:"auction_type"`
	Status          AuctionStatus `json:"status"`
	StartPrice      float64       `json:"start_price"`
	CurrentPrice    float64       `json:"current_price"`
	MinPrice        float64       `json:"min_price"`
	PriceStep       float64       `json:"price_step"`
	TickIntervalSec float64       `json:"tick_interval_sec"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	LastTickAt      *time.Time    `json:"last_tick_at,omitempty"`
}

// Bid is an offer against an auction at its current price or above.
type Bid struct {
	ID               string          `json:"id"`
	AuctionID        string          `json:"auction_id"`
	AgentID          string          `json:"agent_id"`
	Amount           decimal.Decimal `json:"amount"`
	IsGroupBid       bool            `json:"is_group_bid"`
	SplitWithAgentID string          `json:"split_with_agent_id,omitempty"`
	Status           BidStatus       `json:"status"`
	PlacedAt         time.Time       `json:"placed_at"`
}

// GroupBidMember is one contributor to a group bid.
type GroupBidMember struct {
	ID           string          `json:"id"`
	BidID        string          `json:"bid_id"`
	AgentID      string          `json:"agent_id"`
	Contribution decimal.Decimal `json:"contribution"`
}

// PricePoint is one sample of an auction's price curve.
type PricePoint struct {
	ID         int64     `json:"id"`
	AuctionID  string    `json:"auction_id,omitempty"`
	TimeSlotID string    `json:"time_slot_id,omitempty"`
	Price      float64   `json:"price"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AuctionFilter narrows ListAuctions.
type AuctionFilter struct {
	Status     AuctionStatus
	ResourceID string
}

// InsertAuction stores an auction, assigning id/created_at if unset.
func (s *Store) InsertAuction(a *Auction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AuctionType == "" {
		a.AuctionType = "dutch"
	}
	if a.Status == "" {
		a.Status = AuctionPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(`
		INSERT INTO auctions (id, time_slot_id, auction_type, status, start_price, current_price,
			min_price, price_step, tick_interval_sec, created_at, started_at, ended_at, last_tick_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.TimeSlotID, a.AuctionType, string(a.Status), a.StartPrice, a.CurrentPrice,
		a.MinPrice, a.PriceStep, a.TickIntervalSec, fmtTime(a.CreatedAt),
		fmtNullTime(a.StartedAt), fmtNullTime(a.EndedAt), fmtNullTime(a.LastTickAt))
	return err
}

const auctionCols = `id, time_slot_id, auction_type, status, start_price, current_price,
	min_price, price_step, tick_interval_sec, created_at, started_at, ended_at, last_tick_at`

func scanAuction(row interface{ Scan(...any) error }) (*Auction, error) {
	var a Auction
	var status, createdAt string
	var startedAt, endedAt, lastTickAt sql.NullString
	if err := row.Scan(&a.ID, &a.TimeSlotID, &a.AuctionType, &status, &a.StartPrice, &a.CurrentPrice,
		&a.MinPrice, &a.PriceStep, &a.TickIntervalSec, &createdAt, &startedAt, &endedAt, &lastTickAt); err != nil {
		return nil, err
	}
	a.Status = AuctionStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.StartedAt = parseNullTime(startedAt)
	a.EndedAt = parseNullTime(endedAt)
	a.LastTickAt = parseNullTime(lastTickAt)
	return &a, nil
}

// GetAuction returns the auction or nil when unknown.
func (s *Store) GetAuction(id string) (*Auction, error) {
	a, err := scanAuction(s.q.QueryRow("SELECT "+auctionCols+" FROM auctions WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// UpdateAuction overwrites the mutable auction fields.
func (s *Store) UpdateAuction(a *Auction) error {
	_, err := s.q.Exec(`
		UPDATE auctions SET status = ?, start_price = ?, current_price = ?, min_price = ?,
			price_step = ?, tick_interval_sec = ?, started_at = ?, ended_at = ?, last_tick_at = ?
		WHERE id = ?
	`, string(a.Status), a.StartPrice, a.CurrentPrice, a.MinPrice,
		a.PriceStep, a.TickIntervalSec, fmtNullTime(a.StartedAt), fmtNullTime(a.EndedAt),
		fmtNullTime(a.LastTickAt), a.ID)
	return err
}

// ListAuctions returns auctions matching the filter, oldest first.
func (s *Store) ListAuctions(f AuctionFilter) ([]*Auction, error) {
	query := "SELECT " + auctionCols + " FROM auctions"
	var args []any
	var where []string
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ResourceID != "" {
		where = append(where, "time_slot_id IN (SELECT id FROM time_slots WHERE resource_id = ?)")
		args = append(args, f.ResourceID)
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY created_at, id"
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetOpenAuctionBySlot returns the slot's non-terminal auction, or nil.
// At most one exists at any instant.
func (s *Store) GetOpenAuctionBySlot(slotID string) (*Auction, error) {
	a, err := scanAuction(s.q.QueryRow(
		"SELECT "+auctionCols+" FROM auctions WHERE time_slot_id = ? AND status IN (?, ?) ORDER BY created_at DESC LIMIT 1",
		slotID, string(AuctionPending), string(AuctionActive)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// InsertBid stores a bid, assigning id/placed_at if unset.
func (s *Store) InsertBid(b *Bid) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BidPending
	}
	if b.PlacedAt.IsZero() {
		b.PlacedAt = time.Now().UTC()
	}
	var split any
	if b.SplitWithAgentID != "" {
		split = b.SplitWithAgentID
	}
	_, err := s.q.Exec(`
		INSERT INTO bids (id, auction_id, agent_id, amount, is_group_bid, split_with_agent_id, status, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.AuctionID, b.AgentID, b.Amount.String(), b.IsGroupBid, split, string(b.Status), fmtTime(b.PlacedAt))
	return err
}

func scanBid(row interface{ Scan(...any) error }) (*Bid, error) {
	var b Bid
	var amount, status, placedAt string
	var split sql.NullString
	if err := row.Scan(&b.ID, &b.AuctionID, &b.AgentID, &amount, &b.IsGroupBid, &split, &status, &placedAt); err != nil {
		return nil, err
	}
	b.Amount = parseDecimal(amount)
	b.SplitWithAgentID = split.String
	b.Status = BidStatus(status)
	b.PlacedAt = parseTime(placedAt)
	return &b, nil
}

const bidCols = "id, auction_id, agent_id, amount, is_group_bid, split_with_agent_id, status, placed_at"

// GetBid returns the bid or nil when unknown.
func (s *Store) GetBid(id string) (*Bid, error) {
	b, err := scanBid(s.q.QueryRow("SELECT "+bidCols+" FROM bids WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// CountAcceptedBids counts accepted bids on one auction.
func (s *Store) CountAcceptedBids(auctionID string) (int, error) {
	var n int
	err := s.q.QueryRow("SELECT COUNT(*) FROM bids WHERE auction_id = ? AND status = ?",
		auctionID, string(BidAccepted)).Scan(&n)
	return n, err
}

// InsertGroupMembers stores the contribution rows for a group bid.
func (s *Store) InsertGroupMembers(bidID string, members []GroupBidMember) error {
	for i := range members {
		members[i].ID = uuid.NewString()
		members[i].BidID = bidID
		if _, err := s.q.Exec(`
			INSERT INTO group_bid_members (id, bid_id, agent_id, contribution)
			VALUES (?, ?, ?, ?)
		`, members[i].ID, bidID, members[i].AgentID, members[i].Contribution.String()); err != nil {
			return err
		}
	}
	return nil
}

// ListGroupMembers returns the members of a group bid.
func (s *Store) ListGroupMembers(bidID string) ([]GroupBidMember, error) {
	rows, err := s.q.Query(
		"SELECT id, bid_id, agent_id, contribution FROM group_bid_members WHERE bid_id = ? ORDER BY id", bidID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GroupBidMember
	for rows.Next() {
		var m GroupBidMember
		var contribution string
		if err := rows.Scan(&m.ID, &m.BidID, &m.AgentID, &contribution); err != nil {
			return nil, err
		}
		m.Contribution = parseDecimal(contribution)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendPricePoint records a price sample for an auction.
func (s *Store) AppendPricePoint(auctionID, slotID string, price float64, at time.Time) error {
	var aid, sid any
	if auctionID != "" {
		aid = auctionID
	}
	if slotID != "" {
		sid = slotID
	}
	_, err := s.q.Exec(`
		INSERT INTO price_history (auction_id, time_slot_id, price, recorded_at)
		VALUES (?, ?, ?, ?)
	`, aid, sid, price, fmtTime(at))
	return err
}

// MinRecordedPrice returns the lowest price ever sampled for an auction.
// ok is false when the auction has no samples yet.
func (s *Store) MinRecordedPrice(auctionID string) (min float64, ok bool, err error) {
	var v sql.NullFloat64
	if err := s.q.QueryRow("SELECT MIN(price) FROM price_history WHERE auction_id = ?", auctionID).Scan(&v); err != nil {
		return 0, false, err
	}
	return v.Float64, v.Valid, nil
}

// GetPriceHistory returns an auction's samples in recording order.
func (s *Store) GetPriceHistory(auctionID string) ([]PricePoint, error) {
	rows, err := s.q.Query(`
		SELECT id, COALESCE(auction_id, ''), COALESCE(time_slot_id, ''), price, recorded_at
		  FROM price_history
		 WHERE auction_id = ?
		 ORDER BY id
	`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		var recordedAt string
		if err := rows.Scan(&p.ID, &p.AuctionID, &p.TimeSlotID, &p.Price, &recordedAt); err != nil {
			return nil, err
		}
		p.RecordedAt = parseTime(recordedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentPriceHistory returns the newest samples across all auctions.
func (s *Store) RecentPriceHistory(limit int) ([]PricePoint, error) {
	rows, err := s.q.Query(`
		SELECT id, COALESCE(auction_id, ''), COALESCE(time_slot_id, ''), price, recorded_at
		  FROM price_history
		 ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		var recordedAt string
		if err := rows.Scan(&p.ID, &p.AuctionID, &p.TimeSlotID, &p.Price, &recordedAt); err != nil {
			return nil, err
		}
		p.RecordedAt = parseTime(recordedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
