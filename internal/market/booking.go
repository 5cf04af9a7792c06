package market

import (
	"time"

	"slotmarket/internal/db"

	"github.com/shopspring/decimal"
)

// sellBackRefundRate is the fraction of the paid price returned on sell-back.
const sellBackRefundRate = "0.8"

// splitShare is the fraction of the booking price a split partner covers.
const splitShare = "0.5"

// Participant is one agent paying a share of a winning bid.
type Participant struct {
	AgentID string
	Paid    decimal.Decimal
}

// settleBid turns an accepted bid into bookings inside the caller's
// transaction. Capacity, duplicate, overlap and quota violations reject the
// settlement; the caller rolls back, undoing the debits with it.
func settleBid(tx *db.Tx, a *db.Auction, bid *db.Bid, participants []Participant, now time.Time) error {
	slot, err := tx.GetTimeSlot(a.TimeSlotID)
	if err != nil {
		return err
	}
	if slot == nil {
		return fail(ErrNotFound, "time slot %s", a.TimeSlotID)
	}
	if slot.Status == db.SlotBooked {
		return fail(ErrStateInvalid, "slot %s is already booked", slot.ID)
	}
	resource, err := tx.GetResource(slot.ResourceID)
	if err != nil {
		return err
	}
	if resource == nil {
		return fail(ErrNotFound, "resource %s", slot.ResourceID)
	}

	existing, err := tx.CountBookingsForSlot(slot.ID)
	if err != nil {
		return err
	}

	// Participants already holding a booking on this slot are skipped
	// rather than double-booked. A bid where everyone is skipped is a
	// duplicate, not a silent no-op.
	var toBook []Participant
	for _, p := range participants {
		dup, err := tx.GetBookingByAgentSlot(p.AgentID, slot.ID)
		if err != nil {
			return err
		}
		if dup != nil {
			continue
		}
		toBook = append(toBook, p)
	}
	if len(toBook) == 0 {
		return fail(ErrDuplicateBooking, "all participants already booked on slot %s", slot.ID)
	}

	for _, p := range toBook {
		overlap, err := tx.HasOverlap(p.AgentID, slot.StartTime, slot.ID)
		if err != nil {
			return err
		}
		if overlap {
			return fail(ErrOverlapBooking, "agent %s already booked at %s", p.AgentID, slot.StartTime.Format(time.RFC3339))
		}
	}

	if existing+len(toBook) > resource.Capacity {
		return fail(ErrCapacityExceeded, "slot %s capacity %d, existing %d, incoming %d",
			slot.ID, resource.Capacity, existing, len(toBook))
	}

	for _, p := range toBook {
		agent, err := tx.GetAgent(p.AgentID)
		if err != nil {
			return err
		}
		if agent == nil {
			return fail(ErrNotFound, "agent %s", p.AgentID)
		}
		count, err := tx.CountBookingsForAgent(p.AgentID)
		if err != nil {
			return err
		}
		if count+1 > agent.MaxBookings {
			return fail(ErrQuotaExceeded, "agent %s at booking limit %d", agent.Name, agent.MaxBookings)
		}
	}

	for _, p := range toBook {
		b := &db.Booking{
			TimeSlotID: slot.ID,
			AgentID:    p.AgentID,
			BidID:      bid.ID,
			Price:      p.Paid,
			Status:     db.BookingConfirmed,
			CreatedAt:  now,
		}
		if p.AgentID == bid.AgentID && bid.SplitWithAgentID != "" {
			b.SplitWithAgentID = bid.SplitWithAgentID
			b.SplitStatus = db.SplitPending
		}
		if err := tx.InsertBooking(b); err != nil {
			return err
		}
	}

	if existing+len(toBook) >= resource.Capacity {
		if err := tx.UpdateSlotStatus(slot.ID, db.SlotBooked); err != nil {
			return err
		}
	}

	s, err := strategyFor(a.AuctionType)
	if err != nil {
		return err
	}
	return s.Resolve(tx, a, bid.Amount.InexactFloat64(), now)
}

// sellBack refunds 80% of the paid price, cancels the booking, and reopens
// the slot with a fresh active auction at the last clearing price. A
// completed auction is never resurrected. Repeating a sell-back on a
// cancelled booking returns the current state.
func sellBack(tx *db.Tx, bookingID, agentID string, now time.Time) (*db.Booking, error) {
	booking, err := tx.GetBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fail(ErrNotFound, "booking %s", bookingID)
	}
	if booking.AgentID != agentID {
		return nil, fail(ErrValidation, "agent %s does not own booking %s", agentID, bookingID)
	}
	if booking.Status == db.BookingCancelled {
		return booking, nil
	}

	agent, err := tx.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fail(ErrNotFound, "agent %s", agentID)
	}

	refund := booking.Price.Mul(decimal.RequireFromString(sellBackRefundRate))
	if err := tx.UpdateAgentBalance(agent.ID, agent.TokenBalance.Add(refund)); err != nil {
		return nil, err
	}
	if err := tx.InsertTransaction(&db.Transaction{
		AgentID:     agent.ID,
		Amount:      refund,
		Kind:        db.TxSellBackRefund,
		ReferenceID: booking.ID,
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	if err := tx.UpdateBookingStatus(booking.ID, db.BookingCancelled); err != nil {
		return nil, err
	}
	booking.Status = db.BookingCancelled

	if err := tx.UpdateSlotStatus(booking.TimeSlotID, db.SlotInAuction); err != nil {
		return nil, err
	}

	// Reopen at the old clearing price, keeping the completed auction's
	// price band.
	old, err := tx.GetBid(booking.BidID)
	if err != nil {
		return nil, err
	}
	start, min, step, tickSec := 0.0, 0.0, 0.0, 0.0
	clearing := booking.Price.InexactFloat64()
	if old != nil {
		if prev, err := tx.GetAuction(old.AuctionID); err != nil {
			return nil, err
		} else if prev != nil {
			start, min, step, tickSec = prev.StartPrice, prev.MinPrice, prev.PriceStep, prev.TickIntervalSec
			clearing = prev.CurrentPrice
		}
	}
	if start <= 0 || start < clearing {
		start = clearing
	}
	if min <= 0 || min > clearing {
		min = clearing
	}
	if step <= 0 {
		step = 1
	}
	if tickSec <= 0 {
		tickSec = 10
	}

	next := &db.Auction{
		TimeSlotID:      booking.TimeSlotID,
		AuctionType:     "dutch",
		Status:          db.AuctionActive,
		StartPrice:      start,
		CurrentPrice:    clearing,
		MinPrice:        min,
		PriceStep:       step,
		TickIntervalSec: tickSec,
		StartedAt:       &now,
	}
	if err := tx.InsertAuction(next); err != nil {
		return nil, err
	}
	if err := tx.AppendPricePoint(next.ID, booking.TimeSlotID, clearing, now); err != nil {
		return nil, err
	}
	return booking, nil
}

// acceptSplit transfers half the booking price from the partner to the
// owner and marks the split accepted. Repeating an accepted split returns
// the current state; accepting a rejected split is invalid.
func acceptSplit(tx *db.Tx, bookingID, partnerID string, now time.Time) (*db.Booking, error) {
	booking, err := tx.GetBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fail(ErrNotFound, "booking %s", bookingID)
	}
	if booking.SplitWithAgentID == "" || booking.SplitWithAgentID != partnerID {
		return nil, fail(ErrValidation, "agent %s is not the split partner of booking %s", partnerID, bookingID)
	}
	switch booking.SplitStatus {
	case db.SplitAccepted:
		return booking, nil
	case db.SplitRejected:
		return nil, fail(ErrStateInvalid, "split already rejected")
	case db.SplitPending:
	default:
		return nil, fail(ErrStateInvalid, "booking %s has no pending split", bookingID)
	}

	partner, err := tx.GetAgent(partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, fail(ErrNotFound, "agent %s", partnerID)
	}
	owner, err := tx.GetAgent(booking.AgentID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fail(ErrNotFound, "agent %s", booking.AgentID)
	}

	half := booking.Price.Mul(decimal.RequireFromString(splitShare))
	if partner.TokenBalance.LessThan(half) {
		return nil, fail(ErrInsufficientFunds, "partner %s has %s, needs %s", partner.Name, partner.TokenBalance, half)
	}

	if err := tx.UpdateAgentBalance(partner.ID, partner.TokenBalance.Sub(half)); err != nil {
		return nil, err
	}
	if err := tx.InsertTransaction(&db.Transaction{
		AgentID: partner.ID, Amount: half.Neg(), Kind: db.TxSplitPayment,
		ReferenceID: booking.ID, CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	if err := tx.UpdateAgentBalance(owner.ID, owner.TokenBalance.Add(half)); err != nil {
		return nil, err
	}
	if err := tx.InsertTransaction(&db.Transaction{
		AgentID: owner.ID, Amount: half, Kind: db.TxSplitReimbursement,
		ReferenceID: booking.ID, CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	if err := tx.UpdateBookingSplitStatus(booking.ID, db.SplitAccepted); err != nil {
		return nil, err
	}
	booking.SplitStatus = db.SplitAccepted
	return booking, nil
}

// rejectSplit marks a pending split rejected. Repeating a rejection returns
// the current state; rejecting an accepted split is invalid.
func rejectSplit(tx *db.Tx, bookingID, partnerID string) (*db.Booking, error) {
	booking, err := tx.GetBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fail(ErrNotFound, "booking %s", bookingID)
	}
	if booking.SplitWithAgentID == "" || booking.SplitWithAgentID != partnerID {
		return nil, fail(ErrValidation, "agent %s is not the split partner of booking %s", partnerID, bookingID)
	}
	switch booking.SplitStatus {
	case db.SplitRejected:
		return booking, nil
	case db.SplitAccepted:
		return nil, fail(ErrStateInvalid, "split already accepted")
	case db.SplitPending:
	default:
		return nil, fail(ErrStateInvalid, "booking %s has no pending split", bookingID)
	}

	if err := tx.UpdateBookingSplitStatus(booking.ID, db.SplitRejected); err != nil {
		return nil, err
	}
	booking.SplitStatus = db.SplitRejected
	return booking, nil
}
