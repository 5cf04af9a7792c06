package market

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"slotmarket/internal/config"
	"slotmarket/internal/db"
	"slotmarket/internal/logger"

	"github.com/shopspring/decimal"
)

// repriceHorizonDays is how far ahead the pricing engine looks on each
// clock advance.
const repriceHorizonDays = 30

// Service is the facade over the market engines. It owns the config
// snapshot: many readers, one writer, version bumped on reprice.
type Service struct {
	db  *db.DB
	rng *rand.Rand

	mu  sync.RWMutex
	cfg *config.Config
}

// NewService loads the persisted config and wires the engines around it.
// The rng feeds pricing noise and preference generation; tests and the
// simulator pass a seeded source.
func NewService(d *db.DB, rng *rand.Rand) *Service {
	return &Service{db: d, rng: rng, cfg: d.LoadConfig()}
}

// Config returns a snapshot safe for concurrent readers.
func (s *Service) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// UpdateConfig applies a mutation under the single-writer lock and
// persists the result.
func (s *Service) UpdateConfig(mutate func(*config.Config)) (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(s.cfg)
	if err := s.db.SaveConfig(s.cfg); err != nil {
		return nil, err
	}
	return s.cfg.Clone(), nil
}

// ResetAndReloadDefaults restores the factory config, keeping market data.
func (s *Service) ResetAndReloadDefaults() (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = config.Default()
	if err := s.db.SaveConfig(s.cfg); err != nil {
		return nil, err
	}
	logger.Warn("ADMIN", "Config reset to defaults")
	return s.cfg.Clone(), nil
}

// Now returns the simulated current time. Most read paths prefer it over
// wall time.
func (s *Service) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.CurrentSimulationDate
}

// ImportResources ingests a schedule CSV and refreshes learned popularity.
func (s *Service) ImportResources(data []byte) (*ImportSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ImportResources(s.db, s.cfg, data, s.cfg.CurrentSimulationDate, s.rng)
}

// Reprice runs the pricing engine over the default horizon.
func (s *Service) Reprice() (*RepriceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Reprice(s.db, s.cfg, s.rng, s.cfg.CurrentSimulationDate, repriceHorizonDays)
}

// --- market operations ---

// CreateAuction opens a pending auction over a slot. Zero-valued
// parameters fall back to the config defaults.
func (s *Service) CreateAuction(slotID string, startPrice, minPrice, step, tickSec float64) (*db.Auction, error) {
	cfg := s.Config()
	var out *db.Auction
	err := s.db.WithTx(func(tx *db.Tx) error {
		var err error
		out, err = CreateAuction(tx, cfg, slotID, startPrice, minPrice, step, tickSec)
		return err
	})
	return out, err
}

// ListAuctions returns auctions matching the filter.
func (s *Service) ListAuctions(f db.AuctionFilter) ([]*db.Auction, error) {
	return s.db.ListAuctions(f)
}

// GetAuction returns one auction.
func (s *Service) GetAuction(id string) (*db.Auction, error) {
	a, err := s.db.GetAuction(id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fail(ErrNotFound, "auction %s", id)
	}
	return a, nil
}

// StartAuction moves a pending auction to active.
func (s *Service) StartAuction(id string) (*db.Auction, error) {
	now := s.Now()
	var out *db.Auction
	err := s.db.WithTx(func(tx *db.Tx) error {
		a, err := tx.GetAuction(id)
		if err != nil {
			return err
		}
		if a == nil {
			return fail(ErrNotFound, "auction %s", id)
		}
		st, err := strategyFor(a.AuctionType)
		if err != nil {
			return err
		}
		if err := st.Start(tx, a, now); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// TickAuction advances one auction's price and runs the limit-order
// matcher against the new price.
func (s *Service) TickAuction(id string) (*db.Auction, *MatchResult, error) {
	now := s.Now()
	err := s.db.WithTx(func(tx *db.Tx) error {
		a, err := tx.GetAuction(id)
		if err != nil {
			return err
		}
		if a == nil {
			return fail(ErrNotFound, "auction %s", id)
		}
		st, err := strategyFor(a.AuctionType)
		if err != nil {
			return err
		}
		return st.Tick(tx, a, now)
	})
	if err != nil {
		return nil, nil, err
	}
	match, err := RunMatcher(s.db, id, now)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.db.GetAuction(id)
	if err != nil {
		return nil, nil, err
	}
	return a, match, nil
}

// PlaceBid routes a bid through the auction's strategy. Settlement failure
// rolls the whole attempt back; the bidder's balance is untouched.
func (s *Service) PlaceBid(auctionID string, req BidRequest) (*db.Bid, error) {
	now := s.Now()
	var out *db.Bid
	err := s.db.WithTx(func(tx *db.Tx) error {
		a, err := tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		if a == nil {
			return fail(ErrNotFound, "auction %s", auctionID)
		}
		st, err := strategyFor(a.AuctionType)
		if err != nil {
			return err
		}
		out, err = st.PlaceBid(tx, a, req, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Success("AUCTION", fmt.Sprintf("Bid %s accepted at %s on auction %s", out.ID, out.Amount, auctionID))
	// Standing orders on the slot get a look at the post-bid state. When the
	// bid completed the auction this is a no-op.
	if _, err := RunMatcher(s.db, auctionID, now); err != nil && !errors.Is(err, ErrNotFound) {
		logger.Warn("MATCHER", fmt.Sprintf("Post-bid match on %s: %v", auctionID, err))
	}
	return out, nil
}

// GetPriceHistory returns the auction's full price curve.
func (s *Service) GetPriceHistory(auctionID string) ([]db.PricePoint, error) {
	a, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fail(ErrNotFound, "auction %s", auctionID)
	}
	return s.db.GetPriceHistory(auctionID)
}

// CreateLimitOrder places a standing buy order on the auction's slot.
func (s *Service) CreateLimitOrder(auctionID, agentID string, maxPrice decimal.Decimal) (*db.LimitOrder, error) {
	if !maxPrice.IsPositive() {
		return nil, fail(ErrValidation, "max price must be positive")
	}
	a, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fail(ErrNotFound, "auction %s", auctionID)
	}
	agent, err := s.db.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fail(ErrNotFound, "agent %s", agentID)
	}
	order := &db.LimitOrder{
		AgentID:    agentID,
		TimeSlotID: a.TimeSlotID,
		MaxPrice:   maxPrice,
		Status:     db.OrderPending,
		CreatedAt:  s.Now(),
	}
	if err := s.db.InsertLimitOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelLimitOrder cancels a pending order. Cancelling twice returns the
// current state; executed and expired orders are terminal.
func (s *Service) CancelLimitOrder(orderID, agentID string) (*db.LimitOrder, error) {
	order, err := s.db.GetLimitOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fail(ErrNotFound, "limit order %s", orderID)
	}
	if order.AgentID != agentID {
		return nil, fail(ErrValidation, "agent %s does not own order %s", agentID, orderID)
	}
	switch order.Status {
	case db.OrderCancelled:
		return order, nil
	case db.OrderExecuted, db.OrderExpired:
		return nil, fail(ErrStateInvalid, "order %s is %s", orderID, order.Status)
	}
	order.Status = db.OrderCancelled
	if err := s.db.UpdateLimitOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// MarketState is the market-wide dashboard snapshot.
type MarketState struct {
	SimulatedTime       time.Time `json:"simulated_time"`
	TotalSlots          int       `json:"total_slots"`
	SlotsInAuction      int       `json:"slots_in_auction"`
	SlotsBooked         int       `json:"slots_booked"`
	ActiveAuctions      int       `json:"active_auctions"`
	CompletedAuctions   int       `json:"completed_auctions"`
	Agents              int       `json:"agents"`
	AvgCurrentPrice     float64   `json:"avg_current_price"`
	PricingModelVersion int64     `json:"pricing_model_version"`
}

// State summarizes the market.
func (s *Service) State() (*MarketState, error) {
	cfg := s.Config()
	st := &MarketState{SimulatedTime: cfg.CurrentSimulationDate, PricingModelVersion: cfg.PricingModelVersion}

	total, inAuction, err := s.db.CountSlots(db.SlotInAuction)
	if err != nil {
		return nil, err
	}
	_, booked, err := s.db.CountSlots(db.SlotBooked)
	if err != nil {
		return nil, err
	}
	st.TotalSlots = total
	st.SlotsInAuction = inAuction
	st.SlotsBooked = booked

	active, err := s.db.ListAuctions(db.AuctionFilter{Status: db.AuctionActive})
	if err != nil {
		return nil, err
	}
	st.ActiveAuctions = len(active)
	sum := 0.0
	for _, a := range active {
		sum += a.CurrentPrice
	}
	if len(active) > 0 {
		st.AvgCurrentPrice = sum / float64(len(active))
	}

	completed, err := s.db.ListAuctions(db.AuctionFilter{Status: db.AuctionCompleted})
	if err != nil {
		return nil, err
	}
	st.CompletedAuctions = len(completed)

	isActive := true
	agents, err := s.db.ListAgents(&isActive)
	if err != nil {
		return nil, err
	}
	st.Agents = len(agents)
	return st, nil
}

// --- agent operations ---

// CreateAgentRequest carries the inputs for agent creation.
type CreateAgentRequest struct {
	Name                string  `json:"name"`
	InitialBalance      float64 `json:"initial_balance"`
	MaxBookings         int     `json:"max_bookings"`
	GeneratePreferences bool    `json:"generate_preferences"`
}

// CreateAgent registers a market participant. The initial balance is the
// seed: it is not ledgered, so the transaction-sum invariant starts at zero.
func (s *Service) CreateAgent(req CreateAgentRequest) (*db.Agent, error) {
	if req.Name == "" {
		return nil, fail(ErrValidation, "agent name required")
	}
	if req.InitialBalance < 0 {
		return nil, fail(ErrValidation, "initial balance cannot be negative")
	}
	cfg := s.Config()
	if req.MaxBookings <= 0 {
		req.MaxBookings = cfg.MaxBookingsPerAgent
	}
	agent := &db.Agent{
		Name:         req.Name,
		TokenBalance: decimal.NewFromFloat(req.InitialBalance),
		IsActive:     true,
		MaxBookings:  req.MaxBookings,
	}
	var prefs []db.AgentPreference
	if req.GeneratePreferences {
		s.mu.Lock()
		prefs = GeneratePreferences(s.cfg, s.rng)
		s.mu.Unlock()
	}
	err := s.db.WithTx(func(tx *db.Tx) error {
		if err := tx.InsertAgent(agent); err != nil {
			return err
		}
		if len(prefs) > 0 {
			if _, err := tx.ReplacePreferences(agent.ID, prefs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// BulkCreateAgents creates count agents named prefix-1..count.
func (s *Service) BulkCreateAgents(count int, prefix string, initialBalance float64, maxBookings int, generatePreferences bool) ([]*db.Agent, error) {
	if count <= 0 {
		return nil, fail(ErrValidation, "count must be positive")
	}
	if prefix == "" {
		prefix = "agent"
	}
	agents := make([]*db.Agent, 0, count)
	for i := 1; i <= count; i++ {
		a, err := s.CreateAgent(CreateAgentRequest{
			Name:                fmt.Sprintf("%s-%d", prefix, i),
			InitialBalance:      initialBalance,
			MaxBookings:         maxBookings,
			GeneratePreferences: generatePreferences,
		})
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	logger.Info("AGENTS", fmt.Sprintf("Created %d agents with prefix %q", count, prefix))
	return agents, nil
}

// GetAgent returns one agent.
func (s *Service) GetAgent(id string) (*db.Agent, error) {
	a, err := s.db.GetAgent(id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fail(ErrNotFound, "agent %s", id)
	}
	return a, nil
}

// ListAgents returns agents, optionally only active ones.
func (s *Service) ListAgents(activeOnly bool) ([]*db.Agent, error) {
	if activeOnly {
		t := true
		return s.db.ListAgents(&t)
	}
	return s.db.ListAgents(nil)
}

// UpdateAgent overwrites the agent's mutable fields.
func (s *Service) UpdateAgent(a *db.Agent) error {
	if _, err := s.GetAgent(a.ID); err != nil {
		return err
	}
	return s.db.UpdateAgent(a)
}

// DeactivateAgent takes the agent out of the market without losing its
// ledger history.
func (s *Service) DeactivateAgent(id string) error {
	a, err := s.GetAgent(id)
	if err != nil {
		return err
	}
	a.IsActive = false
	return s.db.UpdateAgent(a)
}

// GetPreferences returns the agent's preference rows.
func (s *Service) GetPreferences(agentID string) ([]db.AgentPreference, error) {
	if _, err := s.GetAgent(agentID); err != nil {
		return nil, err
	}
	return s.db.ListPreferences(agentID)
}

// SetPreferences replaces the agent's preference rows.
func (s *Service) SetPreferences(agentID string, prefs []db.AgentPreference) ([]db.AgentPreference, error) {
	if _, err := s.GetAgent(agentID); err != nil {
		return nil, err
	}
	for _, p := range prefs {
		if p.PreferenceType != "location" && p.PreferenceType != "time" {
			return nil, fail(ErrValidation, "unknown preference type %q", p.PreferenceType)
		}
		if p.Weight < 0 || p.Weight > 1 {
			return nil, fail(ErrValidation, "preference weight %v outside [0,1]", p.Weight)
		}
	}
	return s.db.ReplacePreferences(agentID, prefs)
}

// ListBookings returns the agent's bookings.
func (s *Service) ListBookings(agentID string) ([]*db.Booking, error) {
	if _, err := s.GetAgent(agentID); err != nil {
		return nil, err
	}
	return s.db.ListBookingsForAgent(agentID)
}

// ListTransactions returns the agent's ledger entries.
func (s *Service) ListTransactions(agentID string, limit int) ([]*db.Transaction, error) {
	if _, err := s.GetAgent(agentID); err != nil {
		return nil, err
	}
	return s.db.ListTransactions(agentID, limit)
}

// ListLimitOrders returns the agent's limit orders.
func (s *Service) ListLimitOrders(agentID string) ([]*db.LimitOrder, error) {
	if _, err := s.GetAgent(agentID); err != nil {
		return nil, err
	}
	return s.db.ListOrdersForAgent(agentID)
}

// --- booking operations ---

// SellBack returns a booking to the market for an 80% refund.
func (s *Service) SellBack(bookingID, agentID string) (*db.Booking, error) {
	now := s.Now()
	var out *db.Booking
	err := s.db.WithTx(func(tx *db.Tx) error {
		var err error
		out, err = sellBack(tx, bookingID, agentID, now)
		return err
	})
	return out, err
}

// AcceptSplit settles the partner's half of a split booking.
func (s *Service) AcceptSplit(bookingID, partnerID string) (*db.Booking, error) {
	now := s.Now()
	var out *db.Booking
	err := s.db.WithTx(func(tx *db.Tx) error {
		var err error
		out, err = acceptSplit(tx, bookingID, partnerID, now)
		return err
	})
	return out, err
}

// RejectSplit declines a pending split offer.
func (s *Service) RejectSplit(bookingID, partnerID string) (*db.Booking, error) {
	var out *db.Booking
	err := s.db.WithTx(func(tx *db.Tx) error {
		var err error
		out, err = rejectSplit(tx, bookingID, partnerID)
		return err
	})
	return out, err
}

// --- simulation operations ---

// AdvanceHour moves simulated time forward one hour and reprices.
func (s *Service) AdvanceHour() (time.Time, error) {
	return s.advance(time.Hour)
}

// AdvanceDay moves simulated time forward one day and reprices.
func (s *Service) AdvanceDay() (time.Time, error) {
	return s.advance(24 * time.Hour)
}

func (s *Service) advance(d time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.CurrentSimulationDate = s.cfg.CurrentSimulationDate.Add(d)
	if _, err := Reprice(s.db, s.cfg, s.rng, s.cfg.CurrentSimulationDate, repriceHorizonDays); err != nil {
		return time.Time{}, err
	}
	return s.cfg.CurrentSimulationDate, nil
}

// ResetTime returns the simulated clock to the canonical start.
func (s *Service) ResetTime() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.CurrentSimulationDate = config.SimEpoch
	if err := s.db.SaveConfig(s.cfg); err != nil {
		return time.Time{}, err
	}
	return s.cfg.CurrentSimulationDate, nil
}

// AllocateTokens grants the configured allowance to every active agent.
func (s *Service) AllocateTokens() (*AllocationResult, error) {
	cfg := s.Config()
	return AllocateTokens(s.db, cfg, s.Now())
}

// RoundSummary reports one synchronous tick round over all active auctions.
type RoundSummary struct {
	Ticked         int `json:"ticked"`
	Completed      int `json:"completed"`
	OrdersExecuted int `json:"orders_executed"`
}

// RunRound ticks every active auction once, running the matcher after each
// tick. Auctions that close mid-round are skipped, not errors.
func (s *Service) RunRound() (*RoundSummary, error) {
	active, err := s.db.ListAuctions(db.AuctionFilter{Status: db.AuctionActive})
	if err != nil {
		return nil, err
	}
	summary := &RoundSummary{}
	for _, a := range active {
		after, match, err := s.TickAuction(a.ID)
		if errors.Is(err, ErrStateInvalid) {
			// Closed between the listing and the tick; not a round failure.
			continue
		}
		if err != nil {
			return nil, err
		}
		summary.Ticked++
		if match != nil && match.Executed != nil {
			summary.OrdersExecuted++
		}
		if after != nil && after.Status == db.AuctionCompleted {
			summary.Completed++
		}
	}
	return summary, nil
}

// ResultsSummary is the simulation outcome readout.
type ResultsSummary struct {
	TotalSlots       int             `json:"total_slots"`
	BookedSlots      int             `json:"booked_slots"`
	Utilization      float64         `json:"utilization"`
	Bookings         int             `json:"bookings"`
	ClearingPrices   []float64       `json:"clearing_prices"`
	AvgClearingPrice float64         `json:"avg_clearing_price"`
	TokenVolume      decimal.Decimal `json:"token_volume"`
}

// Results summarizes bookings, utilization and clearing prices so far.
func (s *Service) Results() (*ResultsSummary, error) {
	out := &ResultsSummary{}

	total, booked, err := s.db.CountSlots(db.SlotBooked)
	if err != nil {
		return nil, err
	}
	out.TotalSlots = total
	out.BookedSlots = booked
	if total > 0 {
		out.Utilization = float64(booked) / float64(total)
	}

	out.Bookings, err = s.db.CountAllBookings()
	if err != nil {
		return nil, err
	}

	completed, err := s.db.ListAuctions(db.AuctionFilter{Status: db.AuctionCompleted})
	if err != nil {
		return nil, err
	}
	sum := 0.0
	for _, a := range completed {
		out.ClearingPrices = append(out.ClearingPrices, a.CurrentPrice)
		sum += a.CurrentPrice
	}
	if len(completed) > 0 {
		out.AvgClearingPrice = sum / float64(len(completed))
	}

	out.TokenVolume, err = s.db.TokenVolume()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResetSimulation wipes market activity, reseeds agent balances, rewinds
// the clock and opens fresh auctions over the surviving inventory.
func (s *Service) ResetSimulation() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seed := decimal.NewFromFloat(s.cfg.TokenStartingAmount)
	err := s.db.WithTx(func(tx *db.Tx) error {
		if err := tx.ResetMarketData(); err != nil {
			return err
		}
		agents, err := tx.ListAgents(nil)
		if err != nil {
			return err
		}
		for _, a := range agents {
			if err := tx.UpdateAgentBalance(a.ID, seed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.CurrentSimulationDate = config.SimEpoch
	if _, err := Reprice(s.db, s.cfg, s.rng, s.cfg.CurrentSimulationDate, repriceHorizonDays); err != nil {
		return err
	}
	logger.Warn("SIM", "Simulation reset: market data cleared, balances reseeded")
	return nil
}

// SemesterReport summarizes a compressed multi-week run.
type SemesterReport struct {
	Days        int     `json:"days"`
	Allocations int     `json:"allocations"`
	BidsPlaced  int     `json:"bids_placed"`
	Bookings    int     `json:"bookings"`
	Utilization float64 `json:"utilization"`
}

// semesterTicksPerDay bounds the synchronous tick loop for one simulated day.
const semesterTicksPerDay = 12

// SimulateSemester drives behavior-vector agents through weeks of
// compressed days: allocate, auction, auto-bid, advance.
func (s *Service) SimulateSemester(weeks int) (*SemesterReport, error) {
	if weeks <= 0 {
		return nil, fail(ErrValidation, "weeks must be positive")
	}
	report := &SemesterReport{Days: weeks * 7}
	freq := int(s.Config().TokenFrequencyDays)
	if freq <= 0 {
		freq = 7
	}

	for day := 0; day < report.Days; day++ {
		if day%freq == 0 {
			if _, err := s.AllocateTokens(); err != nil {
				return nil, err
			}
			report.Allocations++
		}
		if _, err := s.Reprice(); err != nil {
			return nil, err
		}

		for tick := 0; tick < semesterTicksPerDay; tick++ {
			active, err := s.db.ListAuctions(db.AuctionFilter{Status: db.AuctionActive})
			if err != nil {
				return nil, err
			}
			if len(active) == 0 {
				break
			}

			isActive := true
			agents, err := s.db.ListAgents(&isActive)
			if err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.rng.Shuffle(len(agents), func(i, j int) { agents[i], agents[j] = agents[j], agents[i] })
			s.mu.Unlock()

			for _, agent := range agents {
				if agent.Behavior == nil {
					continue
				}
				for _, a := range active {
					if a.Status != db.AuctionActive {
						continue
					}
					ok, err := s.behaviorWantsBid(agent, a)
					if err != nil {
						return nil, err
					}
					if !ok {
						continue
					}
					report.BidsPlaced++
					var bid *db.Bid
					for attempt := 0; attempt < 3; attempt++ {
						bid, err = s.PlaceBid(a.ID, BidRequest{
							AgentID: agent.ID,
							Amount:  decimal.NewFromFloat(a.CurrentPrice),
						})
						if errors.Is(err, ErrConflict) {
							continue
						}
						break
					}
					if err != nil {
						continue
					}
					if bid != nil {
						report.Bookings++
						a.Status = db.AuctionCompleted
					}
					break
				}
			}

			if _, err := s.RunRound(); err != nil {
				return nil, err
			}
		}

		if _, err := s.AdvanceDay(); err != nil {
			return nil, err
		}
	}

	total, booked, err := s.db.CountSlots(db.SlotBooked)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		report.Utilization = float64(booked) / float64(total)
	}
	logger.Stats("Semester days", report.Days)
	logger.Stats("Semester bookings", report.Bookings)
	return report, nil
}

// behaviorWantsBid is the auto-bidding utility rule for behavior-vector
// agents: preference-weighted willingness to pay discounted by price
// sensitivity.
func (s *Service) behaviorWantsBid(agent *db.Agent, a *db.Auction) (bool, error) {
	slot, err := s.db.GetTimeSlot(a.TimeSlotID)
	if err != nil {
		return false, err
	}
	if slot == nil {
		return false, nil
	}
	b := agent.Behavior

	weight := 0.3
	dow := int(slot.StartTime.Weekday())
	for _, d := range b.PreferredDays {
		if d == dow {
			weight += b.DayWeight
			break
		}
	}
	hour := slot.StartTime.Hour()
	for _, h := range b.PreferredHours {
		if h == hour {
			weight += b.TimeWeight
			break
		}
	}

	cfg := s.Config()
	wtp := cfg.DutchStartPrice * weight * (0.7 + 0.6*b.Risk)
	threshold := wtp * (1 - 0.5*b.PriceSensitivity)
	if a.CurrentPrice > threshold {
		return false, nil
	}
	return !agent.TokenBalance.LessThan(decimal.NewFromFloat(a.CurrentPrice)), nil
}
