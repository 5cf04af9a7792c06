package db

import (
	"database/sql"
	"testing"
	"time"

	"slotmarket/internal/config"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// openTestDB opens an in-memory SQLite DB and runs migrations (for testing only).
func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	d := &DB{sql: sqlDB, Store: Store{q: sqlDB}}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func mustInsertResource(t *testing.T, d *DB, name, location string, capacity int) *Resource {
	t.Helper()
	r := &Resource{Name: name, Location: location, Capacity: capacity, IsActive: true}
	if err := d.InsertResource(r); err != nil {
		t.Fatalf("InsertResource: %v", err)
	}
	return r
}

func mustInsertSlot(t *testing.T, d *DB, resourceID string, start time.Time) *TimeSlot {
	t.Helper()
	ts := &TimeSlot{ResourceID: resourceID, StartTime: start, EndTime: start.Add(time.Hour), Status: SlotInAuction}
	if err := d.InsertTimeSlot(ts); err != nil {
		t.Fatalf("InsertTimeSlot: %v", err)
	}
	return ts
}

func mustInsertAgent(t *testing.T, d *DB, name string, balance float64) *Agent {
	t.Helper()
	a := &Agent{Name: name, TokenBalance: decimal.NewFromFloat(balance), IsActive: true, MaxBookings: 10}
	if err := d.InsertAgent(a); err != nil {
		t.Fatalf("InsertAgent: %v", err)
	}
	return a
}

func TestDB_ResourceAndSlotRoundTrip(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	r := mustInsertResource(t, d, "Room 101", "Main Library", 4)
	got, err := d.GetResource(r.ID)
	if err != nil || got == nil {
		t.Fatalf("GetResource: %v", err)
	}
	if got.Name != "Room 101" || got.Location != "Main Library" || got.Capacity != 4 {
		t.Errorf("resource = %+v", got)
	}

	byName, err := d.FindResourceByNameLocation("Room 101", "Main Library")
	if err != nil || byName == nil || byName.ID != r.ID {
		t.Errorf("FindResourceByNameLocation = %+v, err %v", byName, err)
	}

	start := time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)
	ts := mustInsertSlot(t, d, r.ID, start)
	found, err := d.FindSlot(r.ID, start)
	if err != nil || found == nil || found.ID != ts.ID {
		t.Fatalf("FindSlot = %+v, err %v", found, err)
	}
	if !found.StartTime.Equal(start) || !found.EndTime.Equal(start.Add(time.Hour)) {
		t.Errorf("slot times = %v..%v", found.StartTime, found.EndTime)
	}

	if err := d.UpdateSlotStatus(ts.ID, SlotBooked); err != nil {
		t.Fatalf("UpdateSlotStatus: %v", err)
	}
	total, booked, err := d.CountSlots(SlotBooked)
	if err != nil {
		t.Fatalf("CountSlots: %v", err)
	}
	if total != 1 || booked != 1 {
		t.Errorf("CountSlots = %d total, %d booked", total, booked)
	}
}

func TestDB_SlotWindowQuery(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	r := mustInsertResource(t, d, "Room 201", "Annex", 2)
	base := time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		mustInsertSlot(t, d, r.ID, base.Add(time.Duration(i)*time.Hour))
	}

	// Window is half-open on the left: starts strictly after from.
	slots, err := d.ListSlotsInWindow(base, base.Add(2*time.Hour), false)
	if err != nil {
		t.Fatalf("ListSlotsInWindow: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("window slots = %d, want 2", len(slots))
	}
	if !slots[0].StartTime.Equal(base.Add(time.Hour)) {
		t.Errorf("first slot start = %v", slots[0].StartTime)
	}
}

func TestDB_AgentBalanceAndPreferences(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	a := mustInsertAgent(t, d, "alice", 100)
	got, err := d.GetAgent(a.ID)
	if err != nil || got == nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if !got.TokenBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100", got.TokenBalance)
	}

	if err := d.UpdateAgentBalance(a.ID, decimal.NewFromFloat(42.5)); err != nil {
		t.Fatalf("UpdateAgentBalance: %v", err)
	}
	got, _ = d.GetAgent(a.ID)
	if !got.TokenBalance.Equal(decimal.NewFromFloat(42.5)) {
		t.Errorf("balance after update = %s, want 42.5", got.TokenBalance)
	}

	prefs, err := d.ReplacePreferences(a.ID, []AgentPreference{
		{PreferenceType: "location", PreferenceValue: "Main Library", Weight: 0.8},
		{PreferenceType: "time", PreferenceValue: "14", Weight: 0.6},
	})
	if err != nil {
		t.Fatalf("ReplacePreferences: %v", err)
	}
	if len(prefs) != 2 {
		t.Fatalf("prefs = %d, want 2", len(prefs))
	}
	listed, err := d.ListPreferences(a.ID)
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListPreferences = %d, err %v", len(listed), err)
	}
	if listed[0].PreferenceType != "location" || listed[0].Weight != 0.8 {
		t.Errorf("pref[0] = %+v", listed[0])
	}

	// Replace drops the old rows.
	d.ReplacePreferences(a.ID, []AgentPreference{{PreferenceType: "time", PreferenceValue: "10", Weight: 0.5}})
	listed, _ = d.ListPreferences(a.ID)
	if len(listed) != 1 {
		t.Errorf("prefs after replace = %d, want 1", len(listed))
	}
}

func TestDB_AgentBehaviorRoundTrip(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	a := &Agent{
		Name:         "sim-agent-1",
		TokenBalance: decimal.NewFromInt(50),
		IsActive:     true,
		MaxBookings:  5,
		Behavior: &AgentBehavior{
			Risk:             0.4,
			PriceSensitivity: 0.7,
			PreferredDays:    []int{1, 3},
			PreferredHours:   []int{10, 14},
			TimeWeight:       0.3,
		},
	}
	if err := d.InsertAgent(a); err != nil {
		t.Fatalf("InsertAgent: %v", err)
	}
	got, _ := d.GetAgent(a.ID)
	if got.Behavior == nil {
		t.Fatal("behavior not persisted")
	}
	if got.Behavior.PriceSensitivity != 0.7 || len(got.Behavior.PreferredHours) != 2 {
		t.Errorf("behavior = %+v", got.Behavior)
	}
}

func TestDB_AuctionLifecycleRoundTrip(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	r := mustInsertResource(t, d, "Room 301", "Annex", 1)
	ts := mustInsertSlot(t, d, r.ID, time.Date(2026, 2, 17, 13, 0, 0, 0, time.UTC))

	a := &Auction{
		TimeSlotID:      ts.ID,
		AuctionType:     "dutch",
		Status:          AuctionActive,
		StartPrice:      100,
		CurrentPrice:    100,
		MinPrice:        10,
		PriceStep:       5,
		TickIntervalSec: 10,
	}
	if err := d.InsertAuction(a); err != nil {
		t.Fatalf("InsertAuction: %v", err)
	}

	open, err := d.GetOpenAuctionBySlot(ts.ID)
	if err != nil || open == nil || open.ID != a.ID {
		t.Fatalf("GetOpenAuctionBySlot = %+v, err %v", open, err)
	}

	a.CurrentPrice = 95
	now := time.Now().UTC()
	a.LastTickAt = &now
	if err := d.UpdateAuction(a); err != nil {
		t.Fatalf("UpdateAuction: %v", err)
	}
	got, _ := d.GetAuction(a.ID)
	if got.CurrentPrice != 95 || got.LastTickAt == nil {
		t.Errorf("auction after tick = %+v", got)
	}

	a.Status = AuctionCompleted
	ended := time.Now().UTC()
	a.EndedAt = &ended
	d.UpdateAuction(a)
	if open, _ := d.GetOpenAuctionBySlot(ts.ID); open != nil {
		t.Error("completed auction should not be open")
	}
}

func TestDB_BidsAndGroupMembers(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	r := mustInsertResource(t, d, "Room 401", "Main Library", 2)
	ts := mustInsertSlot(t, d, r.ID, time.Date(2026, 2, 18, 15, 0, 0, 0, time.UTC))
	alice := mustInsertAgent(t, d, "alice", 100)
	bob := mustInsertAgent(t, d, "bob", 100)

	auc := &Auction{TimeSlotID: ts.ID, AuctionType: "dutch", Status: AuctionActive,
		StartPrice: 80, CurrentPrice: 60, MinPrice: 10, PriceStep: 5, TickIntervalSec: 10}
	if err := d.InsertAuction(auc); err != nil {
		t.Fatalf("InsertAuction: %v", err)
	}

	bid := &Bid{AuctionID: auc.ID, AgentID: alice.ID, Amount: decimal.NewFromInt(60),
		IsGroupBid: true, Status: BidAccepted}
	if err := d.InsertBid(bid); err != nil {
		t.Fatalf("InsertBid: %v", err)
	}
	if err := d.InsertGroupMembers(bid.ID, []GroupBidMember{
		{AgentID: alice.ID, Contribution: decimal.NewFromInt(30)},
		{AgentID: bob.ID, Contribution: decimal.NewFromInt(30)},
	}); err != nil {
		t.Fatalf("InsertGroupMembers: %v", err)
	}

	members, err := d.ListGroupMembers(bid.ID)
	if err != nil || len(members) != 2 {
		t.Fatalf("ListGroupMembers = %d, err %v", len(members), err)
	}
	if !members[0].Contribution.Equal(decimal.NewFromInt(30)) {
		t.Errorf("contribution = %s", members[0].Contribution)
	}

	n, err := d.CountAcceptedBids(auc.ID)
	if err != nil || n != 1 {
		t.Errorf("CountAcceptedBids = %d, err %v", n, err)
	}
}

func TestDB_PriceHistoryOrder(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	r := mustInsertResource(t, d, "Room 501", "Annex", 1)
	ts := mustInsertSlot(t, d, r.ID, time.Date(2026, 2, 19, 11, 0, 0, 0, time.UTC))
	auc := &Auction{TimeSlotID: ts.ID, AuctionType: "dutch", Status: AuctionActive,
		StartPrice: 80, CurrentPrice: 80, MinPrice: 10, PriceStep: 3, TickIntervalSec: 10}
	if err := d.InsertAuction(auc); err != nil {
		t.Fatalf("InsertAuction: %v", err)
	}

	at := time.Now().UTC()
	for _, p := range []float64{80, 77, 74} {
		if err := d.AppendPricePoint(auc.ID, ts.ID, p, at); err != nil {
			t.Fatalf("AppendPricePoint(%v): %v", p, err)
		}
	}

	hist, err := d.GetPriceHistory(auc.ID)
	if err != nil {
		t.Fatalf("GetPriceHistory: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3", len(hist))
	}
	for i, want := range []float64{80, 77, 74} {
		if hist[i].Price != want {
			t.Errorf("history[%d] = %v, want %v", i, hist[i].Price, want)
		}
	}
}

func TestDB_BookingOverlapAndCounts(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	r1 := mustInsertResource(t, d, "Room A", "Main Library", 1)
	r2 := mustInsertResource(t, d, "Room B", "Main Library", 1)
	start := time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)
	s1 := mustInsertSlot(t, d, r1.ID, start)
	s2 := mustInsertSlot(t, d, r2.ID, start)
	alice := mustInsertAgent(t, d, "alice", 100)

	auc := &Auction{TimeSlotID: s1.ID, AuctionType: "dutch", Status: AuctionActive,
		StartPrice: 50, CurrentPrice: 40, MinPrice: 10, PriceStep: 5, TickIntervalSec: 10}
	d.InsertAuction(auc)
	bid := &Bid{AuctionID: auc.ID, AgentID: alice.ID, Amount: decimal.NewFromInt(40), Status: BidAccepted}
	d.InsertBid(bid)

	b := &Booking{TimeSlotID: s1.ID, AgentID: alice.ID, BidID: bid.ID, Price: decimal.NewFromInt(40)}
	if err := d.InsertBooking(b); err != nil {
		t.Fatalf("InsertBooking: %v", err)
	}

	// The booked resource does not conflict with itself; a different
	// resource at the same start time does.
	if ov, _ := d.HasOverlap(alice.ID, start, s1.ID); ov {
		t.Error("booked slot itself reported as overlap")
	}
	if ov, _ := d.HasOverlap(alice.ID, start, s2.ID); !ov {
		t.Error("conflicting slot not reported as overlap")
	}
	// A second slot row on the same resource at the same start is still the
	// same resource, not a conflict.
	s1dup := mustInsertSlot(t, d, r1.ID, start)
	if ov, _ := d.HasOverlap(alice.ID, start, s1dup.ID); ov {
		t.Error("same-resource slot reported as overlap")
	}

	if n, _ := d.CountBookingsForAgent(alice.ID); n != 1 {
		t.Errorf("CountBookingsForAgent = %d, want 1", n)
	}
	if n, _ := d.CountBookingsForSlot(s1.ID); n != 1 {
		t.Errorf("CountBookingsForSlot = %d, want 1", n)
	}

	// Cancelled bookings drop out of every count.
	if err := d.UpdateBookingStatus(b.ID, BookingCancelled); err != nil {
		t.Fatalf("UpdateBookingStatus: %v", err)
	}
	if n, _ := d.CountBookingsForAgent(alice.ID); n != 0 {
		t.Errorf("count after cancel = %d, want 0", n)
	}
	if ov, _ := d.HasOverlap(alice.ID, start, s2.ID); ov {
		t.Error("cancelled booking still reported as overlap")
	}
}

func TestDB_TransactionsAndVolume(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	alice := mustInsertAgent(t, d, "alice", 0)

	entries := []*Transaction{
		{AgentID: alice.ID, Amount: decimal.NewFromInt(100), Kind: TxAllocation},
		{AgentID: alice.ID, Amount: decimal.NewFromInt(-60), Kind: TxBidPayment},
		{AgentID: alice.ID, Amount: decimal.NewFromInt(48), Kind: TxSellBackRefund},
	}
	for _, e := range entries {
		if err := d.InsertTransaction(e); err != nil {
			t.Fatalf("InsertTransaction(%s): %v", e.Kind, err)
		}
	}

	list, err := d.ListTransactions(alice.ID, 0)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListTransactions = %d, err %v", len(list), err)
	}

	vol, err := d.TokenVolume()
	if err != nil {
		t.Fatalf("TokenVolume: %v", err)
	}
	if !vol.Equal(decimal.NewFromInt(60)) {
		t.Errorf("TokenVolume = %s, want 60", vol)
	}

	if n, _ := d.CountTransactions(TxAllocation); n != 1 {
		t.Errorf("allocation count = %d, want 1", n)
	}
}

func TestDB_LimitOrderRoundTrip(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	r := mustInsertResource(t, d, "Room C", "Annex", 1)
	ts := mustInsertSlot(t, d, r.ID, time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC))
	alice := mustInsertAgent(t, d, "alice", 100)
	bob := mustInsertAgent(t, d, "bob", 100)

	first := &LimitOrder{AgentID: alice.ID, TimeSlotID: ts.ID, MaxPrice: decimal.NewFromInt(30)}
	if err := d.InsertLimitOrder(first); err != nil {
		t.Fatalf("InsertLimitOrder: %v", err)
	}
	// Arrival order must survive same-timestamp inserts.
	second := &LimitOrder{AgentID: bob.ID, TimeSlotID: ts.ID, MaxPrice: decimal.NewFromInt(50),
		CreatedAt: first.CreatedAt.Add(time.Millisecond)}
	if err := d.InsertLimitOrder(second); err != nil {
		t.Fatalf("InsertLimitOrder: %v", err)
	}

	pending, err := d.ListPendingOrdersForSlot(ts.ID)
	if err != nil || len(pending) != 2 {
		t.Fatalf("ListPendingOrdersForSlot = %d, err %v", len(pending), err)
	}
	if pending[0].ID != first.ID {
		t.Error("orders not in arrival order")
	}

	now := time.Now().UTC()
	first.Status = OrderExecuted
	first.ExecutedAt = &now
	if err := d.UpdateLimitOrder(first); err != nil {
		t.Fatalf("UpdateLimitOrder: %v", err)
	}
	got, _ := d.GetLimitOrder(first.ID)
	if got.Status != OrderExecuted || got.ExecutedAt == nil {
		t.Errorf("order after execute = %+v", got)
	}
	if !got.MaxPrice.Equal(decimal.NewFromInt(30)) {
		t.Errorf("max price = %s, want 30", got.MaxPrice)
	}

	pending, _ = d.ListPendingOrdersForSlot(ts.ID)
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Errorf("pending after execute = %d", len(pending))
	}
}

func TestDB_ConfigRoundTrip(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	cfg := config.Default()
	cfg.TokenStartingAmount = 150
	cfg.TokenFrequencyDays = 7
	cfg.MaxBookingsPerAgent = 3
	cfg.DutchPriceStep = 2.5
	cfg.LocationPopularity = map[string]float64{"Main Library": 0.9}
	cfg.TimePopularity = map[string]float64{"1-14": 0.8}
	cfg.CurrentSimulationDate = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg.PricingModelVersion = 4

	if err := d.SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got := d.LoadConfig()
	if got.TokenStartingAmount != 150 || got.TokenFrequencyDays != 7 {
		t.Errorf("token config = %v / %v", got.TokenStartingAmount, got.TokenFrequencyDays)
	}
	if got.MaxBookingsPerAgent != 3 || got.DutchPriceStep != 2.5 {
		t.Errorf("quota/step = %d / %v", got.MaxBookingsPerAgent, got.DutchPriceStep)
	}
	if got.LocationPopularity["Main Library"] != 0.9 || got.TimePopularity["1-14"] != 0.8 {
		t.Errorf("popularity = %v / %v", got.LocationPopularity, got.TimePopularity)
	}
	if !got.CurrentSimulationDate.Equal(cfg.CurrentSimulationDate) {
		t.Errorf("sim date = %v", got.CurrentSimulationDate)
	}
	if got.PricingModelVersion != 4 {
		t.Errorf("pricing version = %d", got.PricingModelVersion)
	}
}

func TestDB_WithTxRollback(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	alice := mustInsertAgent(t, d, "alice", 100)

	wantErr := sql.ErrTxDone
	err := d.WithTx(func(tx *Tx) error {
		if err := tx.UpdateAgentBalance(alice.ID, decimal.NewFromInt(1)); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("WithTx err = %v, want %v", err, wantErr)
	}

	got, _ := d.GetAgent(alice.ID)
	if !got.TokenBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance after rollback = %s, want 100", got.TokenBalance)
	}
}

func TestDB_ResetMarketData(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	r := mustInsertResource(t, d, "Room D", "Annex", 1)
	ts := mustInsertSlot(t, d, r.ID, time.Date(2026, 2, 22, 10, 0, 0, 0, time.UTC))
	alice := mustInsertAgent(t, d, "alice", 100)

	auc := &Auction{TimeSlotID: ts.ID, AuctionType: "dutch", Status: AuctionActive,
		StartPrice: 50, CurrentPrice: 40, MinPrice: 10, PriceStep: 5, TickIntervalSec: 10}
	d.InsertAuction(auc)
	bid := &Bid{AuctionID: auc.ID, AgentID: alice.ID, Amount: decimal.NewFromInt(40), Status: BidAccepted}
	d.InsertBid(bid)
	d.InsertBooking(&Booking{TimeSlotID: ts.ID, AgentID: alice.ID, BidID: bid.ID, Price: decimal.NewFromInt(40)})
	d.InsertTransaction(&Transaction{AgentID: alice.ID, Amount: decimal.NewFromInt(-40), Kind: TxBidPayment})
	d.AppendPricePoint(auc.ID, ts.ID, 40, time.Now().UTC())
	d.UpdateSlotStatus(ts.ID, SlotBooked)

	if err := d.ResetMarketData(); err != nil {
		t.Fatalf("ResetMarketData: %v", err)
	}

	if got, _ := d.GetAuction(auc.ID); got != nil {
		t.Error("auction survived reset")
	}
	if n, _ := d.CountBookingsForAgent(alice.ID); n != 0 {
		t.Errorf("bookings after reset = %d", n)
	}
	if n, _ := d.CountTransactions(""); n != 0 {
		t.Errorf("transactions after reset = %d", n)
	}

	// Catalogue and agents survive; slots return to available.
	slot, _ := d.GetTimeSlot(ts.ID)
	if slot == nil || slot.Status != SlotAvailable {
		t.Errorf("slot after reset = %+v", slot)
	}
	if got, _ := d.GetAgent(alice.ID); got == nil {
		t.Error("agent deleted by reset")
	}
}
