package config

import "time"

// SimEpoch is the canonical start of simulated time. Resetting the clock
// returns to this instant.
var SimEpoch = time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

// Config holds the admin-tunable market settings (in-memory representation).
// Persistence is handled by internal/db. Readers work on snapshots obtained
// via Clone; the service layer is the single writer and bumps
// PricingModelVersion on every successful reprice.
type Config struct {
	// Token economy.
	TokenStartingAmount float64 `json:"token_starting_amount"`
	TokenFrequencyDays  float64 `json:"token_frequency_days"`
	TokenInflationRate  float64 `json:"token_inflation_rate"`
	MaxBookingsPerAgent int     `json:"max_bookings_per_agent"`

	// Dutch auction defaults.
	DefaultAuctionType   string  `json:"default_auction_type"`
	DutchStartPrice      float64 `json:"dutch_start_price"`
	DutchMinPrice        float64 `json:"dutch_min_price"`
	DutchPriceStep       float64 `json:"dutch_price_step"`
	DutchTickIntervalSec float64 `json:"dutch_tick_interval_sec"`

	// Learned demand signals: location -> booked ratio, "dow-hour" -> booked ratio.
	LocationPopularity map[string]float64 `json:"location_popularity"`
	TimePopularity     map[string]float64 `json:"time_popularity"`

	// Pricing sensitivities.
	CapacityWeight      float64 `json:"capacity_weight"`
	LocationWeight      float64 `json:"location_weight"`
	TimeOfDayWeight     float64 `json:"time_of_day_weight"`
	DayOfWeekWeight     float64 `json:"day_of_week_weight"`
	GlobalPriceModifier float64 `json:"global_price_modifier"`
	LeadTimeSensitivity float64 `json:"lead_time_sensitivity"`

	// Simulation state.
	CurrentSimulationDate time.Time `json:"current_simulation_date"`
	PricingModelVersion   int64     `json:"pricing_model_version"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		TokenStartingAmount:   100,
		TokenFrequencyDays:    7,
		TokenInflationRate:    0,
		MaxBookingsPerAgent:   10,
		DefaultAuctionType:    "dutch",
		DutchStartPrice:       100,
		DutchMinPrice:         10,
		DutchPriceStep:        5,
		DutchTickIntervalSec:  10,
		CapacityWeight:        1,
		LocationWeight:        1,
		TimeOfDayWeight:       1,
		DayOfWeekWeight:       1,
		GlobalPriceModifier:   1,
		LeadTimeSensitivity:   1,
		CurrentSimulationDate: SimEpoch,
		PricingModelVersion:   1,
	}
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (c *Config) Clone() *Config {
	out := *c
	if c.LocationPopularity != nil {
		out.LocationPopularity = make(map[string]float64, len(c.LocationPopularity))
		for k, v := range c.LocationPopularity {
			out.LocationPopularity[k] = v
		}
	}
	if c.TimePopularity != nil {
		out.TimePopularity = make(map[string]float64, len(c.TimePopularity))
		for k, v := range c.TimePopularity {
			out.TimePopularity[k] = v
		}
	}
	return &out
}
