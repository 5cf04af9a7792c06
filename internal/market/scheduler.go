package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotmarket/internal/db"
	"slotmarket/internal/logger"

	"golang.org/x/time/rate"
)

// Scheduler drives auction ticks in real time. Each poll finds active
// auctions whose tick interval has elapsed and ticks them, paced by a rate
// limiter so a large catalogue cannot stampede the store.
type Scheduler struct {
	svc     *Service
	limiter *rate.Limiter
	poll    time.Duration
}

// NewScheduler builds a scheduler ticking at most maxTicksPerSec across
// all auctions, polling for due work every poll interval.
func NewScheduler(svc *Service, maxTicksPerSec float64, poll time.Duration) *Scheduler {
	if maxTicksPerSec <= 0 {
		maxTicksPerSec = 50
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Scheduler{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(maxTicksPerSec), int(maxTicksPerSec)),
		poll:    poll,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	logger.Info("SCHED", fmt.Sprintf("Tick scheduler running, poll %s", s.poll))
	for {
		select {
		case <-ctx.Done():
			logger.Warn("SCHED", "Tick scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.pass(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Error("SCHED", fmt.Sprintf("Tick pass failed: %v", err))
			}
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) error {
	now := time.Now().UTC()
	active, err := s.svc.ListAuctions(db.AuctionFilter{Status: db.AuctionActive})
	if err != nil {
		return err
	}
	for _, a := range active {
		if !TickDue(a, now) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, _, err := s.svc.TickAuction(a.ID); err != nil {
			if errors.Is(err, ErrStateInvalid) {
				continue
			}
			logger.Error("SCHED", fmt.Sprintf("Tick %s: %v", a.ID, err))
		}
	}
	return nil
}
