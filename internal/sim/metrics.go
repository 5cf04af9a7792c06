package sim

import (
	"math"
	"sort"
)

// StabilityMetrics summarizes one run (or an average across seeds).
// StabilityScore is a penalty, lower is better.
type StabilityMetrics struct {
	AccessRate          float64 `json:"access_rate"`
	PreferenceMatchRate float64 `json:"preference_match_rate"`
	AvgConsumerSurplus  float64 `json:"avg_consumer_surplus"`
	Utilization         float64 `json:"utilization"`
	PriceVolatility     float64 `json:"price_volatility"`
	GiniCoefficient     float64 `json:"gini_coefficient"`
	SupplyDemandRatio   float64 `json:"supply_demand_ratio"`
	StabilityScore      float64 `json:"stability_score"`
	AvgSatisfaction     float64 `json:"avg_satisfaction"`
}

type metricsInput struct {
	NumAgents      int
	BookingCounts  []int
	ClearingPrices []float64
	SurplusSum     float64
	BothMatches    int
	LocMatches     int
	TimeMatches    int
	TotalBooked    int
	TotalOffered   int
	TotalAttempted int
}

// gini computes the Gini coefficient of the booking distribution. Zero is
// perfect equality; an all-zero distribution counts as equal.
func gini(counts []int) float64 {
	n := len(counts)
	if n == 0 {
		return 0
	}
	sorted := make([]int, n)
	copy(sorted, counts)
	sort.Ints(sorted)

	total := 0.0
	cumSum := 0.0
	running := 0.0
	for _, c := range sorted {
		running += float64(c)
		cumSum += running
		total += float64(c)
	}
	if total == 0 {
		return 0
	}
	return 1 + 1/float64(n) - 2*cumSum/(float64(n)*total)
}

// volatility is the population coefficient of variation of clearing
// prices. Fewer than two prices carry no spread.
func volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(prices))
	return math.Sqrt(variance) / mean
}

func computeMetrics(in metricsInput) StabilityMetrics {
	var m StabilityMetrics

	if in.NumAgents > 0 {
		served := 0
		for _, c := range in.BookingCounts {
			if c > 0 {
				served++
			}
		}
		m.AccessRate = float64(served) / float64(in.NumAgents)
	}

	if in.TotalBooked > 0 {
		// A full match scores 1, a single-dimension match 0.5.
		single := (in.LocMatches - in.BothMatches) + (in.TimeMatches - in.BothMatches)
		m.PreferenceMatchRate = (float64(in.BothMatches) + 0.5*float64(single)) / float64(in.TotalBooked)
		m.AvgConsumerSurplus = in.SurplusSum / float64(in.TotalBooked)
	}

	if in.TotalOffered > 0 {
		m.Utilization = float64(in.TotalBooked) / float64(in.TotalOffered)
	}
	m.PriceVolatility = volatility(in.ClearingPrices)
	m.GiniCoefficient = gini(in.BookingCounts)

	if in.TotalAttempted > 0 {
		m.SupplyDemandRatio = float64(in.TotalOffered) / float64(in.TotalAttempted)
	} else {
		m.SupplyDemandRatio = math.Inf(1)
	}

	m.StabilityScore = 4*(1-m.AccessRate) +
		2*(1-m.PreferenceMatchRate) +
		2*m.GiniCoefficient +
		1*(1-m.Utilization) +
		0.5*m.PriceVolatility
	m.AvgSatisfaction = 0.35*m.AccessRate +
		0.25*m.PreferenceMatchRate +
		0.20*(1-m.GiniCoefficient) +
		0.10*m.Utilization +
		0.10*math.Max(0, 1-m.PriceVolatility)
	return m
}

// averageMetrics folds per-seed metrics into their arithmetic mean. The
// stability score and satisfaction are recomputed as means of the per-seed
// values, not from the averaged components.
func averageMetrics(runs []StabilityMetrics) StabilityMetrics {
	var avg StabilityMetrics
	if len(runs) == 0 {
		return avg
	}
	n := float64(len(runs))
	for _, m := range runs {
		avg.AccessRate += m.AccessRate
		avg.PreferenceMatchRate += m.PreferenceMatchRate
		avg.AvgConsumerSurplus += m.AvgConsumerSurplus
		avg.Utilization += m.Utilization
		avg.PriceVolatility += m.PriceVolatility
		avg.GiniCoefficient += m.GiniCoefficient
		avg.SupplyDemandRatio += m.SupplyDemandRatio
		avg.StabilityScore += m.StabilityScore
		avg.AvgSatisfaction += m.AvgSatisfaction
	}
	avg.AccessRate /= n
	avg.PreferenceMatchRate /= n
	avg.AvgConsumerSurplus /= n
	avg.Utilization /= n
	avg.PriceVolatility /= n
	avg.GiniCoefficient /= n
	avg.SupplyDemandRatio /= n
	avg.StabilityScore /= n
	avg.AvgSatisfaction /= n
	return avg
}
