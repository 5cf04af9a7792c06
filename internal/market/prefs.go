package market

import (
	"math/rand"
	"sort"
	"strconv"

	"slotmarket/internal/config"
	"slotmarket/internal/db"
)

// weightedChoice draws one key with probability proportional to its weight.
// Keys are walked in sorted order so a seeded rng reproduces the draw.
func weightedChoice(weights map[string]float64, rng *rand.Rand) string {
	keys := make([]string, 0, len(weights))
	total := 0.0
	for k, w := range weights {
		if w <= 0 {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	for _, k := range keys {
		total += weights[k]
	}
	target := rng.Float64() * total
	for _, k := range keys {
		target -= weights[k]
		if target <= 0 {
			return k
		}
	}
	return keys[len(keys)-1]
}

// GeneratePreferences draws a location and a time preference from the
// learned popularity maps, so synthetic agents want what real demand
// wanted. Falls back to the pricing peak curve when nothing is learned yet.
func GeneratePreferences(cfg *config.Config, rng *rand.Rand) []db.AgentPreference {
	var prefs []db.AgentPreference

	if loc := weightedChoice(cfg.LocationPopularity, rng); loc != "" {
		prefs = append(prefs, db.AgentPreference{
			PreferenceType:  "location",
			PreferenceValue: loc,
			Weight:          0.5 + 0.5*rng.Float64(),
		})
	}

	timeWeights := cfg.TimePopularity
	if len(timeWeights) == 0 {
		timeWeights = make(map[string]float64)
		for h := 8; h <= 20; h++ {
			timeWeights[strconv.Itoa(h)] = peakCurve(h)
		}
	}
	if t := weightedChoice(timeWeights, rng); t != "" {
		prefs = append(prefs, db.AgentPreference{
			PreferenceType:  "time",
			PreferenceValue: t,
			Weight:          0.5 + 0.5*rng.Float64(),
		})
	}
	return prefs
}
