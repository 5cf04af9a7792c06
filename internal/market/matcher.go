package market

import (
	"errors"
	"fmt"
	"time"

	"slotmarket/internal/db"
	"slotmarket/internal/logger"

	"github.com/shopspring/decimal"
)

// MatchResult summarizes one matcher pass over an auction's slot.
type MatchResult struct {
	Executed *db.LimitOrder   `json:"executed,omitempty"`
	Expired  []*db.LimitOrder `json:"expired,omitempty"`
}

// settlementKinds are the failures that expire a limit order instead of
// aborting the matcher.
func isSettlementReject(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrDuplicateBooking) ||
		errors.Is(err, ErrOverlapBooking) ||
		errors.Is(err, ErrQuotaExceeded)
}

// RunMatcher walks the slot's pending limit orders in arrival order and
// executes the first one whose threshold the current price has crossed and
// whose agent can pay. Each attempt is its own transaction so a rejected
// settlement expires only that order. At most one order executes per
// auction; the rest stay pending for future auctions on the slot.
func RunMatcher(d *db.DB, auctionID string, now time.Time) (*MatchResult, error) {
	a, err := d.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fail(ErrNotFound, "auction %s", auctionID)
	}
	result := &MatchResult{}
	if a.Status != db.AuctionActive {
		return result, nil
	}

	orders, err := d.ListPendingOrdersForSlot(a.TimeSlotID)
	if err != nil {
		return nil, err
	}
	current := decimal.NewFromFloat(a.CurrentPrice)

	for _, order := range orders {
		if order.MaxPrice.LessThan(current) {
			continue
		}
		agent, err := d.GetAgent(order.AgentID)
		if err != nil {
			return nil, err
		}
		if agent == nil || !agent.IsActive || agent.TokenBalance.LessThan(current) {
			continue
		}

		bidErr := d.WithTx(func(tx *db.Tx) error {
			fresh, err := tx.GetAuction(a.ID)
			if err != nil {
				return err
			}
			if fresh == nil || fresh.Status != db.AuctionActive {
				return fail(ErrStateInvalid, "auction closed")
			}
			s, err := strategyFor(fresh.AuctionType)
			if err != nil {
				return err
			}
			bid, err := s.PlaceBid(tx, fresh, BidRequest{AgentID: order.AgentID, Amount: current}, now)
			if err != nil {
				return err
			}
			order.Status = db.OrderExecuted
			order.BidID = bid.ID
			order.ExecutedAt = &now
			return tx.UpdateLimitOrder(order)
		})
		if bidErr == nil {
			result.Executed = order
			logger.Success("MATCHER", fmt.Sprintf("Limit order %s executed at %s", order.ID, current))
			break
		}
		if isSettlementReject(bidErr) {
			var me *MarketError
			reason := bidErr.Error()
			if errors.As(bidErr, &me) {
				reason = me.Code()
			}
			order.Status = db.OrderExpired
			order.Reason = reason
			if err := d.UpdateLimitOrder(order); err != nil {
				return nil, err
			}
			result.Expired = append(result.Expired, order)
			continue
		}
		if errors.Is(bidErr, ErrInsufficientFunds) || errors.Is(bidErr, ErrStateInvalid) {
			// Balance raced away or the auction closed under us; the
			// order stays pending for a later pass.
			continue
		}
		return nil, bidErr
	}
	return result, nil
}
