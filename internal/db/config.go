package db

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"slotmarket/internal/config"
)

// LoadConfig reads config from SQLite. If empty, returns defaults.
func (s *Store) LoadConfig() *config.Config {
	cfg := config.Default()

	rows, err := s.q.Query("SELECT key, value FROM config")
	if err != nil {
		return cfg
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var k, v string
		rows.Scan(&k, &v)
		m[k] = v
	}

	if len(m) == 0 {
		return cfg
	}

	if v, ok := m["token_starting_amount"]; ok {
		cfg.TokenStartingAmount, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["token_frequency_days"]; ok {
		cfg.TokenFrequencyDays, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["token_inflation_rate"]; ok {
		cfg.TokenInflationRate, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["max_bookings_per_agent"]; ok {
		cfg.MaxBookingsPerAgent, _ = strconv.Atoi(v)
	}
	if v, ok := m["default_auction_type"]; ok {
		cfg.DefaultAuctionType = v
	}
	if v, ok := m["dutch_start_price"]; ok {
		cfg.DutchStartPrice, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["dutch_min_price"]; ok {
		cfg.DutchMinPrice, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["dutch_price_step"]; ok {
		cfg.DutchPriceStep, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["dutch_tick_interval_sec"]; ok {
		cfg.DutchTickIntervalSec, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["location_popularity"]; ok {
		var pop map[string]float64
		if err := json.Unmarshal([]byte(v), &pop); err == nil {
			cfg.LocationPopularity = pop
		}
	}
	if v, ok := m["time_popularity"]; ok {
		var pop map[string]float64
		if err := json.Unmarshal([]byte(v), &pop); err == nil {
			cfg.TimePopularity = pop
		}
	}
	if v, ok := m["capacity_weight"]; ok {
		cfg.CapacityWeight, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["location_weight"]; ok {
		cfg.LocationWeight, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["time_of_day_weight"]; ok {
		cfg.TimeOfDayWeight, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["day_of_week_weight"]; ok {
		cfg.DayOfWeekWeight, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["global_price_modifier"]; ok {
		cfg.GlobalPriceModifier, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["lead_time_sensitivity"]; ok {
		cfg.LeadTimeSensitivity, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["current_simulation_date"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			cfg.CurrentSimulationDate = t
		}
	}
	if v, ok := m["pricing_model_version"]; ok {
		cfg.PricingModelVersion, _ = strconv.ParseInt(v, 10, 64)
	}

	return cfg
}

// SaveConfig writes config to SQLite (upsert all fields).
func (s *Store) SaveConfig(cfg *config.Config) error {
	locJSON := "{}"
	if b, err := json.Marshal(cfg.LocationPopularity); err == nil && cfg.LocationPopularity != nil {
		locJSON = string(b)
	}
	timeJSON := "{}"
	if b, err := json.Marshal(cfg.TimePopularity); err == nil && cfg.TimePopularity != nil {
		timeJSON = string(b)
	}

	pairs := map[string]string{
		"token_starting_amount":   fmt.Sprintf("%g", cfg.TokenStartingAmount),
		"token_frequency_days":    fmt.Sprintf("%g", cfg.TokenFrequencyDays),
		"token_inflation_rate":    fmt.Sprintf("%g", cfg.TokenInflationRate),
		"max_bookings_per_agent":  strconv.Itoa(cfg.MaxBookingsPerAgent),
		"default_auction_type":    cfg.DefaultAuctionType,
		"dutch_start_price":       fmt.Sprintf("%g", cfg.DutchStartPrice),
		"dutch_min_price":         fmt.Sprintf("%g", cfg.DutchMinPrice),
		"dutch_price_step":        fmt.Sprintf("%g", cfg.DutchPriceStep),
		"dutch_tick_interval_sec": fmt.Sprintf("%g", cfg.DutchTickIntervalSec),
		"location_popularity":     locJSON,
		"time_popularity":         timeJSON,
		"capacity_weight":         fmt.Sprintf("%g", cfg.CapacityWeight),
		"location_weight":         fmt.Sprintf("%g", cfg.LocationWeight),
		"time_of_day_weight":      fmt.Sprintf("%g", cfg.TimeOfDayWeight),
		"day_of_week_weight":      fmt.Sprintf("%g", cfg.DayOfWeekWeight),
		"global_price_modifier":   fmt.Sprintf("%g", cfg.GlobalPriceModifier),
		"lead_time_sensitivity":   fmt.Sprintf("%g", cfg.LeadTimeSensitivity),
		"current_simulation_date": cfg.CurrentSimulationDate.UTC().Format(time.RFC3339),
		"pricing_model_version":   strconv.FormatInt(cfg.PricingModelVersion, 10),
	}

	for k, v := range pairs {
		if _, err := s.q.Exec("INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)", k, v); err != nil {
			return err
		}
	}
	return nil
}
