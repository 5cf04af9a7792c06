package market

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"slotmarket/internal/config"
	"slotmarket/internal/db"
	"slotmarket/internal/logger"
)

// peakCurve is the fallback hour score when no learned time popularity
// exists: demand peaks at 14:00 and decays linearly, floored at 0.2.
func peakCurve(hour int) float64 {
	return math.Max(0.2, 1-math.Abs(float64(hour)-14)/10)
}

// SlotPrice computes the demand-driven base price for one slot. Noise is
// drawn from rng so seeded callers get reproducible prices.
func SlotPrice(cfg *config.Config, res *db.Resource, slot *db.TimeSlot, now time.Time, rng *rand.Rand) float64 {
	locScore := 0.5
	if v, ok := cfg.LocationPopularity[res.Location]; ok {
		locScore = v
	}

	dow := int(slot.StartTime.Weekday())
	hour := slot.StartTime.Hour()
	hourScore := peakCurve(hour)
	if v, ok := cfg.TimePopularity[fmt.Sprintf("%d-%d", dow, hour)]; ok {
		hourScore = v
	}

	capScore := math.Min(float64(res.Capacity), 100) / 100

	leadDays := slot.StartTime.Sub(now).Hours() / 24
	if leadDays < 0 {
		leadDays = 0
	}
	leadRatio := math.Min(1, leadDays/30)
	leadMult := 1 + cfg.LeadTimeSensitivity*(1.1-leadRatio)

	noise := 0.95 + rng.Float64()*0.1

	demand := (capScore*cfg.CapacityWeight*0.5 +
		locScore*cfg.LocationWeight*2.0 +
		hourScore*cfg.TimeOfDayWeight*2.5 +
		hourScore*cfg.DayOfWeekWeight*1.5) / 5

	price := 15 * cfg.GlobalPriceModifier * leadMult * demand * noise
	return math.Min(500, math.Max(5, price))
}

// RepriceResult summarizes one pricing pass.
type RepriceResult struct {
	SlotsScanned    int   `json:"slots_scanned"`
	AuctionsUpdated int   `json:"auctions_updated"`
	AuctionsCreated int   `json:"auctions_created"`
	ModelVersion    int64 `json:"model_version"`
}

// Reprice scans future unbooked slots in (now, now+horizonDays] and sets
// each one's open auction to the freshly computed price band, creating an
// active auction where none exists. Bumps the pricing model version.
func Reprice(d *db.DB, cfg *config.Config, rng *rand.Rand, now time.Time, horizonDays int) (*RepriceResult, error) {
	res := &RepriceResult{}

	err := d.WithTx(func(tx *db.Tx) error {
		slots, err := tx.ListSlotsInWindow(now, now.AddDate(0, 0, horizonDays), true)
		if err != nil {
			return err
		}
		res.SlotsScanned = len(slots)

		for _, slot := range slots {
			resource, err := tx.GetResource(slot.ResourceID)
			if err != nil {
				return err
			}
			if resource == nil || !resource.IsActive {
				continue
			}

			price := SlotPrice(cfg, resource, slot, now, rng)

			open, err := tx.GetOpenAuctionBySlot(slot.ID)
			if err != nil {
				return err
			}
			if open != nil {
				open.StartPrice = 1.6 * price
				open.CurrentPrice = price
				open.MinPrice = 0.4 * price
				if err := tx.UpdateAuction(open); err != nil {
					return err
				}
				if err := tx.AppendPricePoint(open.ID, slot.ID, price, now); err != nil {
					return err
				}
				res.AuctionsUpdated++
				continue
			}

			a := &db.Auction{
				TimeSlotID:      slot.ID,
				AuctionType:     cfg.DefaultAuctionType,
				Status:          db.AuctionActive,
				StartPrice:      1.6 * price,
				CurrentPrice:    price,
				MinPrice:        0.4 * price,
				PriceStep:       cfg.DutchPriceStep,
				TickIntervalSec: cfg.DutchTickIntervalSec,
				StartedAt:       &now,
			}
			if err := tx.InsertAuction(a); err != nil {
				return err
			}
			if err := tx.AppendPricePoint(a.ID, slot.ID, price, now); err != nil {
				return err
			}
			if slot.Status == db.SlotAvailable {
				if err := tx.UpdateSlotStatus(slot.ID, db.SlotInAuction); err != nil {
					return err
				}
			}
			res.AuctionsCreated++
		}

		cfg.PricingModelVersion++
		res.ModelVersion = cfg.PricingModelVersion
		return tx.SaveConfig(cfg)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("PRICING", fmt.Sprintf("Repriced %d slots (%d updated, %d created), model v%d",
		res.SlotsScanned, res.AuctionsUpdated, res.AuctionsCreated, res.ModelVersion))
	return res, nil
}
