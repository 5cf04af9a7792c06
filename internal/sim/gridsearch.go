package sim

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ComboResult is one (token_amount, token_frequency) cell averaged across
// its seeds.
type ComboResult struct {
	TokenAmount    float64          `json:"token_amount"`
	TokenFrequency int              `json:"token_frequency"`
	Seeds          int              `json:"seeds"`
	Metrics        StabilityMetrics `json:"metrics"`
}

// GridSearchResult ranks all completed combos by ascending stability
// score. Heatmap rows follow TokenFrequencies, columns TokenAmounts;
// cells for combos cancelled mid-sweep hold NaN.
type GridSearchResult struct {
	Ranking   []ComboResult `json:"ranking"`
	Best      *ComboResult  `json:"best"`
	BestDaily []DayResult   `json:"best_daily"`
	Heatmap   [][]float64   `json:"heatmap"`
	Amounts   []float64     `json:"amounts"`
	Freqs     []int         `json:"frequencies"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
}

// ProgressFunc receives completed and total run counts as the sweep
// advances. Calls are serialized.
type ProgressFunc func(completed, total int)

// GridSearch sweeps the token policy grid in parallel. Each combo runs
// NumSeeds simulations with seed = Base.Seed + k and averages the metrics.
// Cancelling ctx stops scheduling new combos and returns the ranking over
// whatever finished, with ctx.Err() so callers can tell the sweep was cut
// short.
func GridSearch(ctx context.Context, cfg GridSearchConfig, progress ProgressFunc) (*GridSearchResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	type cell struct {
		fi, ai int
		result ComboResult
	}
	combos := make([]cell, 0, len(cfg.TokenFrequencies)*len(cfg.TokenAmounts))
	for fi, freq := range cfg.TokenFrequencies {
		for ai, amount := range cfg.TokenAmounts {
			combos = append(combos, cell{fi: fi, ai: ai, result: ComboResult{
				TokenAmount:    amount,
				TokenFrequency: freq,
			}})
		}
	}

	totalRuns := len(combos) * cfg.NumSeeds
	var completedRuns atomic.Int64
	var progressMu sync.Mutex
	report := func() {
		if progress == nil {
			return
		}
		progressMu.Lock()
		progress(int(completedRuns.Load()), totalRuns)
		progressMu.Unlock()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var resultMu sync.Mutex
	done := make([]ComboResult, 0, len(combos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range combos {
		c := &combos[i]
		g.Go(func() error {
			perSeed := make([]StabilityMetrics, 0, cfg.NumSeeds)
			for k := 0; k < cfg.NumSeeds; k++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				runCfg := cfg.Base
				runCfg.TokenAmount = c.result.TokenAmount
				runCfg.TokenFrequency = c.result.TokenFrequency
				runCfg.Seed = cfg.Base.Seed + int64(k)
				out, err := Run(runCfg)
				if err != nil {
					return err
				}
				perSeed = append(perSeed, out.Metrics)
				completedRuns.Add(1)
				report()
			}
			c.result.Seeds = len(perSeed)
			c.result.Metrics = averageMetrics(perSeed)
			resultMu.Lock()
			done = append(done, c.result)
			resultMu.Unlock()
			return nil
		})
	}
	waitErr := g.Wait()
	if waitErr != nil && ctx.Err() == nil &&
		!errors.Is(waitErr, context.Canceled) && !errors.Is(waitErr, context.DeadlineExceeded) {
		return nil, waitErr
	}

	res := &GridSearchResult{
		Amounts:   cfg.TokenAmounts,
		Freqs:     cfg.TokenFrequencies,
		Completed: int(completedRuns.Load()),
		Total:     totalRuns,
	}

	res.Heatmap = make([][]float64, len(cfg.TokenFrequencies))
	for fi := range res.Heatmap {
		row := make([]float64, len(cfg.TokenAmounts))
		for ai := range row {
			row[ai] = math.NaN()
		}
		res.Heatmap[fi] = row
	}
	for _, c := range combos {
		if c.result.Seeds == cfg.NumSeeds {
			res.Heatmap[c.fi][c.ai] = c.result.Metrics.StabilityScore
		}
	}

	sort.SliceStable(done, func(i, j int) bool {
		a, b := done[i], done[j]
		if a.Metrics.StabilityScore != b.Metrics.StabilityScore {
			return a.Metrics.StabilityScore < b.Metrics.StabilityScore
		}
		if a.TokenFrequency != b.TokenFrequency {
			return a.TokenFrequency < b.TokenFrequency
		}
		return a.TokenAmount < b.TokenAmount
	})
	res.Ranking = done
	if len(done) > 0 {
		best := done[0]
		res.Best = &best

		// Daily breakdown of the winning combo, replayed on the base seed.
		bestCfg := cfg.Base
		bestCfg.TokenAmount = best.TokenAmount
		bestCfg.TokenFrequency = best.TokenFrequency
		bestCfg.Seed = cfg.Base.Seed
		if out, err := Run(bestCfg); err == nil {
			res.BestDaily = out.Days
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, nil
}
