package market

import (
	"time"

	"slotmarket/internal/config"
	"slotmarket/internal/db"

	"github.com/shopspring/decimal"
)

// BidRequest is the input to bid placement. Solo bids use AgentID+Amount;
// group bids carry per-member contributions summing to Amount.
type BidRequest struct {
	AgentID          string               `json:"agent_id"`
	Amount           decimal.Decimal      `json:"amount"`
	IsGroup          bool                 `json:"is_group"`
	Members          []db.GroupBidMember  `json:"members,omitempty"`
	SplitWithAgentID string               `json:"split_with_agent_id,omitempty"`
}

// strategy is the capability set of one auction type. The map below is the
// closed dispatch table; adding a type means adding a row here.
type strategy struct {
	Start    func(tx *db.Tx, a *db.Auction, now time.Time) error
	Tick     func(tx *db.Tx, a *db.Auction, now time.Time) error
	PlaceBid func(tx *db.Tx, a *db.Auction, req BidRequest, now time.Time) (*db.Bid, error)
	Resolve  func(tx *db.Tx, a *db.Auction, clearing float64, now time.Time) error
}

var strategies map[string]strategy

func init() {
	strategies = map[string]strategy{
		"dutch": {
			Start:    dutchStart,
			Tick:     dutchTick,
			PlaceBid: dutchPlaceBid,
			Resolve:  dutchResolve,
		},
	}
}

func strategyFor(auctionType string) (strategy, error) {
	s, ok := strategies[auctionType]
	if !ok {
		return strategy{}, fail(ErrValidation, "unknown auction type %q", auctionType)
	}
	return s, nil
}

// CreateAuction opens a pending auction over a slot using config defaults
// for any zero-valued parameter. Booked slots and slots with an open
// auction are refused.
func CreateAuction(tx *db.Tx, cfg *config.Config, slotID string, startPrice, minPrice, step, tickSec float64) (*db.Auction, error) {
	slot, err := tx.GetTimeSlot(slotID)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, fail(ErrNotFound, "time slot %s", slotID)
	}
	if slot.Status == db.SlotBooked {
		return nil, fail(ErrStateInvalid, "slot %s is booked", slotID)
	}
	open, err := tx.GetOpenAuctionBySlot(slotID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, fail(ErrStateInvalid, "slot %s already has auction %s", slotID, open.ID)
	}

	if startPrice <= 0 {
		startPrice = cfg.DutchStartPrice
	}
	if minPrice <= 0 {
		minPrice = cfg.DutchMinPrice
	}
	if step <= 0 {
		step = cfg.DutchPriceStep
	}
	if tickSec <= 0 {
		tickSec = cfg.DutchTickIntervalSec
	}
	if minPrice > startPrice {
		return nil, fail(ErrValidation, "min price %.2f above start price %.2f", minPrice, startPrice)
	}

	a := &db.Auction{
		TimeSlotID:      slotID,
		AuctionType:     cfg.DefaultAuctionType,
		Status:          db.AuctionPending,
		StartPrice:      startPrice,
		CurrentPrice:    startPrice,
		MinPrice:        minPrice,
		PriceStep:       step,
		TickIntervalSec: tickSec,
	}
	if err := tx.InsertAuction(a); err != nil {
		return nil, err
	}
	return a, nil
}

// TickDue reports whether the auction's next scheduled price update has
// arrived.
func TickDue(a *db.Auction, now time.Time) bool {
	if a.Status != db.AuctionActive {
		return false
	}
	last := a.LastTickAt
	if last == nil {
		last = a.StartedAt
	}
	if last == nil {
		return true
	}
	return now.Sub(*last) >= time.Duration(a.TickIntervalSec*float64(time.Second))
}

func dutchStart(tx *db.Tx, a *db.Auction, now time.Time) error {
	if a.Status == db.AuctionActive {
		// Idempotent: starting a running auction is a no-op.
		return nil
	}
	if a.Status != db.AuctionPending {
		return fail(ErrStateInvalid, "cannot start auction in state %s", a.Status)
	}
	a.Status = db.AuctionActive
	a.StartedAt = &now
	if err := tx.UpdateAuction(a); err != nil {
		return err
	}
	if err := tx.AppendPricePoint(a.ID, a.TimeSlotID, a.CurrentPrice, now); err != nil {
		return err
	}
	return tx.UpdateSlotStatus(a.TimeSlotID, db.SlotInAuction)
}

// dutchTick moves the price one step. The price descends clamped at
// min_price; once the floor has been touched, every later tick climbs
// back up as a scarcity signal. Every tick leaves a price history sample.
func dutchTick(tx *db.Tx, a *db.Auction, now time.Time) error {
	if a.Status != db.AuctionActive {
		return fail(ErrStateInvalid, "cannot tick auction in state %s", a.Status)
	}
	lowest, sampled, err := tx.MinRecordedPrice(a.ID)
	if err != nil {
		return err
	}
	rebounding := (sampled && lowest <= a.MinPrice) || a.CurrentPrice <= a.MinPrice
	if rebounding {
		a.CurrentPrice += a.PriceStep
	} else {
		next := a.CurrentPrice - a.PriceStep
		if next < a.MinPrice {
			next = a.MinPrice
		}
		a.CurrentPrice = next
	}
	a.LastTickAt = &now
	if err := tx.UpdateAuction(a); err != nil {
		return err
	}
	return tx.AppendPricePoint(a.ID, a.TimeSlotID, a.CurrentPrice, now)
}

// dutchPlaceBid admits a bid at or above the current price, debits every
// participant, and settles the winning bid into bookings. Any settlement
// failure propagates to the caller, which rolls back the transaction.
func dutchPlaceBid(tx *db.Tx, a *db.Auction, req BidRequest, now time.Time) (*db.Bid, error) {
	if a.Status.Terminal() {
		return nil, fail(ErrStateInvalid, "auction closed")
	}
	if a.Status != db.AuctionActive {
		return nil, fail(ErrStateInvalid, "cannot bid on auction in state %s", a.Status)
	}
	if !req.Amount.IsPositive() {
		return nil, fail(ErrValidation, "bid amount must be positive")
	}

	current := decimal.NewFromFloat(a.CurrentPrice)
	var participants []Participant
	if req.IsGroup {
		if len(req.Members) == 0 {
			return nil, fail(ErrValidation, "group bid has no members")
		}
		sum := decimal.Zero
		for _, m := range req.Members {
			if m.Contribution.IsNegative() {
				return nil, fail(ErrValidation, "negative contribution from agent %s", m.AgentID)
			}
			sum = sum.Add(m.Contribution)
			participants = append(participants, Participant{AgentID: m.AgentID, Paid: m.Contribution})
		}
		if !sum.Equal(req.Amount) {
			return nil, fail(ErrValidation, "contributions %s do not sum to bid amount %s", sum, req.Amount)
		}
		if sum.LessThan(current) {
			return nil, fail(ErrValidation, "group bid %s below current price %s", sum, current)
		}
	} else {
		if req.Amount.LessThan(current) {
			return nil, fail(ErrValidation, "bid %s below current price %s", req.Amount, current)
		}
		participants = []Participant{{AgentID: req.AgentID, Paid: req.Amount}}
	}

	// Check every balance before any debit so a failure leaves nothing to
	// unwind inside the transaction.
	agents := make(map[string]*db.Agent, len(participants))
	for _, p := range participants {
		agent, err := tx.GetAgent(p.AgentID)
		if err != nil {
			return nil, err
		}
		if agent == nil {
			return nil, fail(ErrNotFound, "agent %s", p.AgentID)
		}
		if agent.TokenBalance.LessThan(p.Paid) {
			return nil, fail(ErrInsufficientFunds, "agent %s has %s, needs %s", agent.Name, agent.TokenBalance, p.Paid)
		}
		agents[p.AgentID] = agent
	}

	bid := &db.Bid{
		AuctionID:        a.ID,
		AgentID:          req.AgentID,
		Amount:           req.Amount,
		IsGroupBid:       req.IsGroup,
		SplitWithAgentID: req.SplitWithAgentID,
		Status:           db.BidAccepted,
		PlacedAt:         now,
	}
	if err := tx.InsertBid(bid); err != nil {
		return nil, err
	}
	if req.IsGroup {
		if err := tx.InsertGroupMembers(bid.ID, req.Members); err != nil {
			return nil, err
		}
	}

	for _, p := range participants {
		agent := agents[p.AgentID]
		if err := tx.UpdateAgentBalance(agent.ID, agent.TokenBalance.Sub(p.Paid)); err != nil {
			return nil, err
		}
		if err := tx.InsertTransaction(&db.Transaction{
			AgentID:     agent.ID,
			Amount:      p.Paid.Neg(),
			Kind:        db.TxBidPayment,
			ReferenceID: bid.ID,
			CreatedAt:   now,
		}); err != nil {
			return nil, err
		}
	}

	if err := settleBid(tx, a, bid, participants, now); err != nil {
		return nil, err
	}
	return bid, nil
}

// dutchResolve completes the auction at the clearing price. The history of
// a completed auction always ends at exactly that price.
func dutchResolve(tx *db.Tx, a *db.Auction, clearing float64, now time.Time) error {
	if a.Status.Terminal() {
		return nil
	}
	if a.CurrentPrice != clearing {
		a.CurrentPrice = clearing
		if err := tx.AppendPricePoint(a.ID, a.TimeSlotID, clearing, now); err != nil {
			return err
		}
	}
	a.Status = db.AuctionCompleted
	a.EndedAt = &now
	return tx.UpdateAuction(a)
}
