package sim

import "math/rand"

// simAgent is the in-memory population member. Fields are fixed at
// generation time; balance and bookings mutate during the run.
type simAgent struct {
	Index             int
	Profile           string
	Urgency           float64
	BudgetSensitivity float64
	BaseValue         float64
	PreferredRoom     int
	PreferredSlot     int

	Balance  float64
	Bookings int
}

// sample draws uniformly from [min, max) using the run's rng.
func sample(rng *rand.Rand, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rng.Float64()*(max-min)
}

// weightedIndex picks an index proportional to weights, falling back to a
// uniform draw over n when the weights do not cover the axis.
func weightedIndex(rng *rand.Rand, weights []float64, n int) int {
	if len(weights) != n || n == 0 {
		if n == 0 {
			return 0
		}
		return rng.Intn(n)
	}
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return rng.Intn(n)
	}
	r := rng.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		r -= w
		if r < 0 {
			return i
		}
	}
	return n - 1
}

// generateAgents builds the population tier by tier. The integer share of
// each tier rounds down; the remainder lands in the last tier so the
// population always has exactly NumAgents members.
func generateAgents(cfg *SimulationConfig, rng *rand.Rand) []*simAgent {
	agents := make([]*simAgent, 0, cfg.NumAgents)
	for pi, p := range cfg.AgentProfiles {
		count := int(p.Share * float64(cfg.NumAgents))
		if pi == len(cfg.AgentProfiles)-1 {
			count = cfg.NumAgents - len(agents)
		}
		for i := 0; i < count && len(agents) < cfg.NumAgents; i++ {
			agents = append(agents, &simAgent{
				Index:             len(agents),
				Profile:           p.Name,
				Urgency:           sample(rng, p.UrgencyMin, p.UrgencyMax),
				BudgetSensitivity: sample(rng, p.BudgetSensitivityMin, p.BudgetSensitivityMax),
				BaseValue:         sample(rng, p.BaseValueMin, p.BaseValueMax),
				PreferredRoom:     weightedIndex(rng, cfg.LocationWeights, cfg.NumRooms),
				PreferredSlot:     weightedIndex(rng, cfg.TimeWeights, cfg.SlotsPerRoomPerDay),
			})
		}
	}
	return agents
}

// willingness returns the agent's willingness to pay for an auction under
// the current demand conditions.
func (a *simAgent) willingness(locMatch, timeMatch, highDemand bool) float64 {
	locMult := 0.5
	if locMatch {
		locMult = 1.0
	}
	timeMult := 0.6
	if timeMatch {
		timeMult = 1.0
	}
	urgMult := 0.7 + 0.6*a.Urgency
	hdMult := 1.0
	if highDemand {
		hdMult = 1.4
	}
	needMult := 1.5 - 0.1*float64(a.Bookings)
	if needMult < 1.0 {
		needMult = 1.0
	}
	return a.BaseValue * locMult * timeMult * urgMult * hdMult * needMult
}

// shouldBid applies the budget-discounted threshold and the balance check.
func (a *simAgent) shouldBid(price float64, wtp float64) bool {
	threshold := wtp * (1 - 0.5*a.BudgetSensitivity)
	return price <= threshold && a.Balance >= price
}
