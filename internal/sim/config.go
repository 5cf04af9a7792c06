package sim

import (
	"errors"
	"fmt"
	"math"
)

// AgentProfile is one tier of the synthetic population. Ranges are sampled
// uniformly per agent.
type AgentProfile struct {
	Name                 string  `yaml:"name" json:"name"`
	Share                float64 `yaml:"share" json:"share"`
	UrgencyMin           float64 `yaml:"urgency_min" json:"urgency_min"`
	UrgencyMax           float64 `yaml:"urgency_max" json:"urgency_max"`
	BudgetSensitivityMin float64 `yaml:"budget_sensitivity_min" json:"budget_sensitivity_min"`
	BudgetSensitivityMax float64 `yaml:"budget_sensitivity_max" json:"budget_sensitivity_max"`
	BaseValueMin         float64 `yaml:"base_value_min" json:"base_value_min"`
	BaseValueMax         float64 `yaml:"base_value_max" json:"base_value_max"`
}

// SimulationConfig drives one deterministic run. Identical config and seed
// produce bit-identical metrics.
type SimulationConfig struct {
	NumAgents          int            `yaml:"num_agents" json:"num_agents"`
	NumRooms           int            `yaml:"num_rooms" json:"num_rooms"`
	SlotsPerRoomPerDay int            `yaml:"slots_per_room_per_day" json:"slots_per_room_per_day"`
	MaxDays            int            `yaml:"max_days" json:"max_days"`
	TokenAmount        float64        `yaml:"token_amount" json:"token_amount"`
	TokenFrequency     int            `yaml:"token_frequency" json:"token_frequency"`
	StartPrice         float64        `yaml:"start_price" json:"start_price"`
	MinPrice           float64        `yaml:"min_price" json:"min_price"`
	PriceStep          float64        `yaml:"price_step" json:"price_step"`
	MaxTicksPerDay     int            `yaml:"max_ticks_per_day" json:"max_ticks_per_day"`
	HighDemandDays     [][2]int       `yaml:"high_demand_day_ranges" json:"high_demand_day_ranges"`
	AgentProfiles      []AgentProfile `yaml:"agent_profiles" json:"agent_profiles"`
	LocationWeights    []float64      `yaml:"location_weights" json:"location_weights"`
	TimeWeights        []float64      `yaml:"time_weights" json:"time_weights"`
	Seed               int64          `yaml:"seed" json:"seed"`
}

// DefaultProfiles is the Heavy/Moderate/Light population split.
func DefaultProfiles() []AgentProfile {
	return []AgentProfile{
		{Name: "heavy", Share: 0.20, UrgencyMin: 0.7, UrgencyMax: 1.0,
			BudgetSensitivityMin: 0.1, BudgetSensitivityMax: 0.4, BaseValueMin: 80, BaseValueMax: 120},
		{Name: "moderate", Share: 0.30, UrgencyMin: 0.4, UrgencyMax: 0.7,
			BudgetSensitivityMin: 0.3, BudgetSensitivityMax: 0.6, BaseValueMin: 50, BaseValueMax: 90},
		{Name: "light", Share: 0.50, UrgencyMin: 0.1, UrgencyMax: 0.4,
			BudgetSensitivityMin: 0.5, BudgetSensitivityMax: 0.9, BaseValueMin: 30, BaseValueMax: 60},
	}
}

// DefaultConfig returns a four-week baseline run.
func DefaultConfig() SimulationConfig {
	return SimulationConfig{
		NumAgents:          30,
		NumRooms:           5,
		SlotsPerRoomPerDay: 3,
		MaxDays:            28,
		TokenAmount:        100,
		TokenFrequency:     7,
		StartPrice:         100,
		MinPrice:           10,
		PriceStep:          5,
		MaxTicksPerDay:     20,
		AgentProfiles:      DefaultProfiles(),
		Seed:               42,
	}
}

// shareTolerance bounds the allowed drift of profile shares from 1.
const shareTolerance = 0.01

// Validate rejects configs that cannot run deterministically.
func (c *SimulationConfig) Validate() error {
	if c.NumAgents <= 0 {
		return errors.New("num_agents must be positive")
	}
	if c.NumRooms <= 0 {
		return errors.New("num_rooms must be positive")
	}
	if c.SlotsPerRoomPerDay < 1 || c.SlotsPerRoomPerDay > 3 {
		return errors.New("slots_per_room_per_day must be 1, 2 or 3")
	}
	if c.MaxDays <= 0 {
		return errors.New("max_days must be positive")
	}
	if c.TokenFrequency <= 0 {
		return errors.New("token_frequency must be positive")
	}
	if c.MinPrice < 0 || c.StartPrice < c.MinPrice {
		return errors.New("prices must satisfy 0 <= min_price <= start_price")
	}
	if c.PriceStep <= 0 {
		return errors.New("price_step must be positive")
	}
	if c.MaxTicksPerDay <= 0 {
		return errors.New("max_ticks_per_day must be positive")
	}
	if len(c.AgentProfiles) == 0 {
		return errors.New("at least one agent profile required")
	}
	total := 0.0
	for _, p := range c.AgentProfiles {
		if p.Share < 0 {
			return fmt.Errorf("profile %q has negative share", p.Name)
		}
		total += p.Share
	}
	if math.Abs(total-1) > shareTolerance {
		return fmt.Errorf("profile shares sum to %.3f, want 1", total)
	}
	return nil
}

// GridSearchConfig sweeps token policy over a Cartesian grid. Each combo
// runs NumSeeds times with seed = Base.Seed + k.
type GridSearchConfig struct {
	Base             SimulationConfig `yaml:"base" json:"base"`
	TokenAmounts     []float64        `yaml:"token_amounts" json:"token_amounts"`
	TokenFrequencies []int            `yaml:"token_frequencies" json:"token_frequencies"`
	NumSeeds         int              `yaml:"num_seeds" json:"num_seeds"`
	Workers          int              `yaml:"workers" json:"workers"`
}

// Validate rejects empty sweep axes.
func (c *GridSearchConfig) Validate() error {
	if err := c.Base.Validate(); err != nil {
		return err
	}
	if len(c.TokenAmounts) == 0 {
		return errors.New("token_amounts is empty")
	}
	if len(c.TokenFrequencies) == 0 {
		return errors.New("token_frequencies is empty")
	}
	for _, f := range c.TokenFrequencies {
		if f <= 0 {
			return errors.New("token frequencies must be positive")
		}
	}
	if c.NumSeeds <= 0 {
		return errors.New("num_seeds must be positive")
	}
	return nil
}
