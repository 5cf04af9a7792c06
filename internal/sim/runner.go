package sim

import "math/rand"

// simAuction is one Dutch auction in the fast loop. Capacity is one seat.
type simAuction struct {
	Room          int
	Slot          int
	Price         float64
	Done          bool
	Winner        int
	ClearingPrice float64
}

// DayResult is the per-day breakdown surfaced in reports and best_daily.
type DayResult struct {
	Day              int     `json:"day"`
	Offered          int     `json:"offered"`
	Booked           int     `json:"booked"`
	Utilization      float64 `json:"utilization"`
	AvgClearingPrice float64 `json:"avg_clearing_price"`
	AttemptedBids    int     `json:"attempted_bids"`
	UnmetAgents      int     `json:"unmet_agents"`
	HighDemand       bool    `json:"high_demand"`
}

// RunResult carries one deterministic run: the daily breakdown plus the
// aggregate stability metrics.
type RunResult struct {
	Config  SimulationConfig `json:"config"`
	Days    []DayResult      `json:"days"`
	Metrics StabilityMetrics `json:"metrics"`
}

// highDemandDay reports whether day falls inside any configured inclusive
// range.
func highDemandDay(cfg *SimulationConfig, day int) bool {
	for _, r := range cfg.HighDemandDays {
		if day >= r[0] && day <= r[1] {
			return true
		}
	}
	return false
}

// Run executes one simulation. All randomness flows through a single
// source seeded from cfg.Seed, so identical configs replay bit for bit.
func Run(cfg SimulationConfig) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	agents := generateAgents(&cfg, rng)

	res := &RunResult{Config: cfg, Days: make([]DayResult, 0, cfg.MaxDays)}
	var (
		clearingPrices []float64
		surplusSum     float64
		bothMatches    int
		locMatches     int
		timeMatches    int
		totalBooked    int
		totalOffered   int
		totalAttempted int
	)

	order := make([]*simAgent, len(agents))
	copy(order, agents)

	for day := 0; day < cfg.MaxDays; day++ {
		highDemand := highDemandDay(&cfg, day)
		if day%cfg.TokenFrequency == 0 {
			for _, a := range agents {
				a.Balance += cfg.TokenAmount
			}
		}

		auctions := make([]*simAuction, 0, cfg.NumRooms*cfg.SlotsPerRoomPerDay)
		for room := 0; room < cfg.NumRooms; room++ {
			for slot := 0; slot < cfg.SlotsPerRoomPerDay; slot++ {
				auctions = append(auctions, &simAuction{Room: room, Slot: slot, Price: cfg.StartPrice, Winner: -1})
			}
		}

		dr := DayResult{Day: day, Offered: len(auctions), HighDemand: highDemand}
		wanted := make(map[int]bool)
		bookedToday := make(map[int]bool)
		clearedSum := 0.0

		for tick := 0; tick < cfg.MaxTicksPerDay; tick++ {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
			for _, ag := range order {
				for _, idx := range rng.Perm(len(auctions)) {
					auc := auctions[idx]
					if auc.Done {
						continue
					}
					wtp := ag.willingness(auc.Room == ag.PreferredRoom, auc.Slot == ag.PreferredSlot, highDemand)
					if !ag.shouldBid(auc.Price, wtp) {
						continue
					}
					wanted[ag.Index] = true
					dr.AttemptedBids++
					ag.Balance -= auc.Price
					ag.Bookings++
					auc.Done = true
					auc.Winner = ag.Index
					auc.ClearingPrice = auc.Price
					clearingPrices = append(clearingPrices, auc.Price)
					clearedSum += auc.Price
					surplusSum += wtp - auc.Price
					if auc.Room == ag.PreferredRoom {
						locMatches++
					}
					if auc.Slot == ag.PreferredSlot {
						timeMatches++
					}
					if auc.Room == ag.PreferredRoom && auc.Slot == ag.PreferredSlot {
						bothMatches++
					}
					dr.Booked++
					bookedToday[ag.Index] = true
					break
				}
			}

			allDone := true
			for _, auc := range auctions {
				if !auc.Done {
					allDone = false
					break
				}
			}
			if allDone {
				break
			}
			for _, auc := range auctions {
				if auc.Done {
					continue
				}
				auc.Price -= cfg.PriceStep
				if auc.Price < cfg.MinPrice {
					auc.Price = cfg.MinPrice
				}
			}
		}

		if dr.Offered > 0 {
			dr.Utilization = float64(dr.Booked) / float64(dr.Offered)
		}
		if dr.Booked > 0 {
			dr.AvgClearingPrice = clearedSum / float64(dr.Booked)
		}
		for idx := range wanted {
			if !bookedToday[idx] {
				dr.UnmetAgents++
			}
		}

		totalBooked += dr.Booked
		totalOffered += dr.Offered
		totalAttempted += dr.AttemptedBids
		res.Days = append(res.Days, dr)
	}

	bookings := make([]int, len(agents))
	for i, a := range agents {
		bookings[i] = a.Bookings
	}
	res.Metrics = computeMetrics(metricsInput{
		NumAgents:      len(agents),
		BookingCounts:  bookings,
		ClearingPrices: clearingPrices,
		SurplusSum:     surplusSum,
		BothMatches:    bothMatches,
		LocMatches:     locMatches,
		TimeMatches:    timeMatches,
		TotalBooked:    totalBooked,
		TotalOffered:   totalOffered,
		TotalAttempted: totalAttempted,
	})
	return res, nil
}
