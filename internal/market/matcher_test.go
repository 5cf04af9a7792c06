package market

import (
	"errors"
	"testing"
	"time"

	"slotmarket/internal/db"

	"github.com/shopspring/decimal"
)

func TestLimitOrderCrossing(t *testing.T) {
	svc, d := newTestService(t, 1)
	room := mkRoom(t, d, "Room 101", "Main Library", 1)
	slot := mkSlot(t, d, room.ID, time.Date(2026, 2, 16, 14, 0, 0, 0, time.UTC))
	agent := mkAgent(t, svc, "alice", 100)

	a := mkActiveAuction(t, svc, slot.ID, 80, 5, 5)
	order, err := svc.CreateLimitOrder(a.ID, agent.ID, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// 80 -> 75 -> 70 -> 65 -> 60 -> 55: above the threshold, nothing fires.
	for i := 0; i < 5; i++ {
		_, match, err := svc.TickAuction(a.ID)
		if err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
		if match.Executed != nil {
			t.Fatalf("order fired early at tick %d", i+1)
		}
	}

	// 55 -> 50 crosses max_price.
	after, match, err := svc.TickAuction(a.ID)
	if err != nil {
		t.Fatalf("crossing tick: %v", err)
	}
	if match.Executed == nil || match.Executed.ID != order.ID {
		t.Fatalf("match = %+v, want order executed", match)
	}

	got, _ := d.GetLimitOrder(order.ID)
	if got.Status != db.OrderExecuted || got.BidID == "" || got.ExecutedAt == nil {
		t.Fatalf("order after execute = %+v", got)
	}
	bid, _ := d.GetBid(got.BidID)
	if !bid.Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("synthesized bid amount = %s, want 50", bid.Amount)
	}

	gotAgent, _ := d.GetAgent(agent.ID)
	if !gotAgent.TokenBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance = %s, want 50", gotAgent.TokenBalance)
	}
	if after.Status != db.AuctionCompleted {
		t.Errorf("auction status = %s, want completed", after.Status)
	}
	if n, _ := d.CountBookingsForSlot(slot.ID); n != 1 {
		t.Errorf("bookings = %d, want 1", n)
	}
}

func TestLimitOrderArrivalOrderAndSingleExecution(t *testing.T) {
	svc, d := newTestService(t, 1)
	room := mkRoom(t, d, "Room 201", "Annex", 1)
	slot := mkSlot(t, d, room.ID, time.Date(2026, 2, 16, 15, 0, 0, 0, time.UTC))
	alice := mkAgent(t, svc, "alice", 100)
	bob := mkAgent(t, svc, "bob", 100)

	a := mkActiveAuction(t, svc, slot.ID, 60, 5, 10)
	first, err := svc.CreateLimitOrder(a.ID, alice.ID, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("first order: %v", err)
	}
	// Bob's threshold is higher but he arrived second.
	second := &db.LimitOrder{
		AgentID: bob.ID, TimeSlotID: slot.ID, MaxPrice: decimal.NewFromInt(55),
		CreatedAt: first.CreatedAt.Add(time.Millisecond),
	}
	if err := d.InsertLimitOrder(second); err != nil {
		t.Fatalf("second order: %v", err)
	}

	// 60 -> 55: only Bob's threshold crossed.
	_, match, err := svc.TickAuction(a.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if match.Executed == nil || match.Executed.ID != second.ID {
		t.Fatalf("match = %+v, want second order", match.Executed)
	}

	// Capacity one: the first order stays pending for a future auction.
	gotFirst, _ := d.GetLimitOrder(first.ID)
	if gotFirst.Status != db.OrderPending {
		t.Errorf("first order status = %s, want pending", gotFirst.Status)
	}
}

func TestLimitOrderExpiresOnSettlementReject(t *testing.T) {
	svc, d := newTestService(t, 1)
	room := mkRoom(t, d, "Room 301", "Annex", 1)
	slot := mkSlot(t, d, room.ID, time.Date(2026, 2, 16, 16, 0, 0, 0, time.UTC))
	other := mkSlot(t, d, room.ID, time.Date(2026, 2, 16, 17, 0, 0, 0, time.UTC))
	alice, err := svc.CreateAgent(CreateAgentRequest{Name: "alice", InitialBalance: 200, MaxBookings: 1})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	bob := mkAgent(t, svc, "bob", 100)

	// Alice exhausts her quota elsewhere.
	a1 := mkActiveAuction(t, svc, other.ID, 40, 5, 5)
	if _, err := svc.PlaceBid(a1.ID, BidRequest{AgentID: alice.ID, Amount: decimal.NewFromInt(40)}); err != nil {
		t.Fatalf("alice bid: %v", err)
	}

	a2 := mkActiveAuction(t, svc, slot.ID, 60, 5, 10)
	aliceOrder, err := svc.CreateLimitOrder(a2.ID, alice.ID, decimal.NewFromInt(55))
	if err != nil {
		t.Fatalf("alice order: %v", err)
	}
	bobOrder := &db.LimitOrder{
		AgentID: bob.ID, TimeSlotID: slot.ID, MaxPrice: decimal.NewFromInt(55),
		CreatedAt: aliceOrder.CreatedAt.Add(time.Millisecond),
	}
	if err := d.InsertLimitOrder(bobOrder); err != nil {
		t.Fatalf("bob order: %v", err)
	}

	// 60 -> 50: Alice's order fails quota and expires; Bob's executes.
	_, match, err := svc.TickAuction(a2.ID)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	gotAlice, _ := d.GetLimitOrder(aliceOrder.ID)
	if gotAlice.Status != db.OrderExpired || gotAlice.Reason != "quota_exceeded" {
		t.Errorf("alice order = %+v, want expired quota_exceeded", gotAlice)
	}
	if match.Executed == nil || match.Executed.ID != bobOrder.ID {
		t.Fatalf("match = %+v, want bob's order", match.Executed)
	}

	// Alice's balance was untouched by her failed settlement.
	got, _ := d.GetAgent(alice.ID)
	if !got.TokenBalance.Equal(decimal.NewFromInt(160)) {
		t.Errorf("alice balance = %s, want 160", got.TokenBalance)
	}
}

func TestLimitOrderCancellation(t *testing.T) {
	svc, d := newTestService(t, 1)
	room := mkRoom(t, d, "Room 401", "Annex", 1)
	slot := mkSlot(t, d, room.ID, time.Date(2026, 2, 16, 18, 0, 0, 0, time.UTC))
	alice := mkAgent(t, svc, "alice", 100)
	bob := mkAgent(t, svc, "bob", 100)

	a := mkActiveAuction(t, svc, slot.ID, 60, 5, 5)
	order, err := svc.CreateLimitOrder(a.ID, alice.ID, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := svc.CancelLimitOrder(order.ID, bob.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("non-owner cancel err = %v, want ErrValidation", err)
	}

	cancelled, err := svc.CancelLimitOrder(order.ID, alice.ID)
	if err != nil || cancelled.Status != db.OrderCancelled {
		t.Fatalf("cancel = %+v, err %v", cancelled, err)
	}
	// Repeating the terminal transition returns the current state.
	again, err := svc.CancelLimitOrder(order.ID, alice.ID)
	if err != nil || again.Status != db.OrderCancelled {
		t.Fatalf("repeat cancel = %+v, err %v", again, err)
	}

	// An executed order cannot be cancelled.
	order2, _ := svc.CreateLimitOrder(a.ID, alice.ID, decimal.NewFromInt(55))
	if _, match, err := svc.TickAuction(a.ID); err != nil || match.Executed == nil {
		t.Fatalf("tick = %+v, err %v", match, err)
	}
	if _, err := svc.CancelLimitOrder(order2.ID, alice.ID); !errors.Is(err, ErrStateInvalid) {
		t.Errorf("cancel executed err = %v, want ErrStateInvalid", err)
	}
}
