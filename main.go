package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"gopkg.in/yaml.v3"

	"slotmarket/internal/config"
	"slotmarket/internal/db"
	"slotmarket/internal/logger"
	"slotmarket/internal/market"
	"slotmarket/internal/sim"
)

var version = "dev"

func main() {
	flag.Usage = usage
	flag.Parse()

	logger.Banner(version)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "import":
		err = runImport(args[1:])
	case "simulate":
		err = runSimulate(args[1:])
	case "sweep":
		err = runSweep(args[1:])
	case "run":
		err = runScheduler(args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("CLI", err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: slotmarket <command> [flags]

Commands:
  import    load a schedule CSV and open auctions over future slots
  simulate  run one deterministic simulation and print its metrics
  sweep     grid-search token policies across seeds
  run       tick live auctions until interrupted

Run "slotmarket <command> -h" for command flags.
`)
}

func openService(path string) (*db.DB, *market.Service, error) {
	var (
		d   *db.DB
		err error
	)
	if path == "" {
		d, err = db.Open()
	} else {
		d, err = db.OpenAt(path)
	}
	if err != nil {
		return nil, nil, err
	}
	return d, market.NewService(d, rand.New(rand.NewSource(time.Now().UnixNano()))), nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dbPath := fs.String("db", "", "database path (default ./slotmarket.db)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("import needs exactly one CSV file argument")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read schedule: %w", err)
	}
	d, svc, err := openService(*dbPath)
	if err != nil {
		return err
	}
	defer d.Close()

	summary, err := svc.ImportResources(data)
	if err != nil {
		return err
	}
	logger.Section("Import")
	logger.Stats("Rows", summary.Rows)
	logger.Stats("Resources created", summary.ResourcesCreated)
	logger.Stats("Slots created", summary.SlotsCreated)
	logger.Stats("Auctions opened", summary.AuctionsCreated)
	return nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func runSimulate(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "simulation config YAML (default built-in baseline)")
	seed := fs.Int64("seed", -1, "override the config seed")
	fs.Parse(args)

	cfg := sim.DefaultConfig()
	if *cfgPath != "" {
		if err := loadYAML(*cfgPath, &cfg); err != nil {
			return err
		}
	}
	if *seed >= 0 {
		cfg.Seed = *seed
	}

	out, err := sim.Run(cfg)
	if err != nil {
		return err
	}

	logger.Section("Simulation")
	logger.Stats("Days", len(out.Days))
	logger.Stats("Agents", cfg.NumAgents)
	logger.Stats("Seed", cfg.Seed)
	m := out.Metrics
	logger.Stats("Access rate", fmt.Sprintf("%.3f", m.AccessRate))
	logger.Stats("Preference match", fmt.Sprintf("%.3f", m.PreferenceMatchRate))
	logger.Stats("Avg surplus", fmt.Sprintf("%.2f", m.AvgConsumerSurplus))
	logger.Stats("Utilization", fmt.Sprintf("%.3f", m.Utilization))
	logger.Stats("Volatility", fmt.Sprintf("%.3f", m.PriceVolatility))
	logger.Stats("Gini", fmt.Sprintf("%.3f", m.GiniCoefficient))
	logger.Stats("Supply/demand", fmt.Sprintf("%.3f", m.SupplyDemandRatio))
	logger.Stats("Stability score", fmt.Sprintf("%.4f", m.StabilityScore))
	logger.Stats("Avg satisfaction", fmt.Sprintf("%.4f", m.AvgSatisfaction))
	return nil
}

func runSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfgPath := fs.String("config", "", "grid search config YAML (required)")
	dbPath := fs.String("db", "", "database path, used with -apply")
	apply := fs.Bool("apply", false, "write the winning policy into the market config")
	fs.Parse(args)
	if *cfgPath == "" {
		return fmt.Errorf("sweep needs -config")
	}

	cfg := sim.GridSearchConfig{Base: sim.DefaultConfig()}
	if err := loadYAML(*cfgPath, &cfg); err != nil {
		return err
	}

	reg := sim.NewJobRegistry()
	id, err := reg.Start(cfg)
	if err != nil {
		return err
	}
	logger.Info("SWEEP", fmt.Sprintf("Job %s started: %d amounts x %d frequencies x %d seeds",
		id, len(cfg.TokenAmounts), len(cfg.TokenFrequencies), cfg.NumSeeds))

	// Ctrl-C cancels the sweep but keeps the partial ranking.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		reg.Cancel(id)
	}()

	job, err := reg.Wait(id)
	if err != nil {
		return err
	}
	switch job.Status {
	case sim.JobFailed:
		return fmt.Errorf("sweep failed: %s", job.Error)
	case sim.JobCancelled:
		logger.Warn("SWEEP", fmt.Sprintf("Cancelled after %d of %d runs", job.Completed, job.Total))
	}
	res := job.Result
	if res == nil || len(res.Ranking) == 0 {
		return fmt.Errorf("sweep produced no ranked combos")
	}

	logger.Section("Ranking")
	for i, c := range res.Ranking {
		logger.Stats(fmt.Sprintf("#%d amount=%.0f freq=%dd", i+1, c.TokenAmount, c.TokenFrequency),
			fmt.Sprintf("stability %.4f satisfaction %.4f", c.Metrics.StabilityScore, c.Metrics.AvgSatisfaction))
	}
	best := res.Best
	logger.Success("SWEEP", fmt.Sprintf("Best policy: %.0f tokens every %d days (stability %.4f)",
		best.TokenAmount, best.TokenFrequency, best.Metrics.StabilityScore))

	if *apply {
		d, svc, err := openService(*dbPath)
		if err != nil {
			return err
		}
		defer d.Close()
		err = reg.ApplyBest(id, func(amount float64, freq int) error {
			_, err := svc.UpdateConfig(func(c *config.Config) {
				c.TokenStartingAmount = amount
				c.TokenFrequencyDays = float64(freq)
			})
			return err
		})
		if err != nil {
			return err
		}
		logger.Success("SWEEP", "Winning policy written to market config")
	}
	return nil
}

func runScheduler(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dbPath := fs.String("db", "", "database path (default ./slotmarket.db)")
	maxTicks := fs.Float64("max-ticks", 50, "auction ticks per second")
	poll := fs.Duration("poll", time.Second, "due-auction poll interval")
	fs.Parse(args)

	d, svc, err := openService(*dbPath)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sched := market.NewScheduler(svc, *maxTicks, *poll)
	logger.Info("SCHED", "Ticking live auctions, Ctrl-C to stop")
	return sched.Run(ctx)
}
