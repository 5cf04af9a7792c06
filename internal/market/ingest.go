package market

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"slotmarket/internal/config"
	"slotmarket/internal/db"
	"slotmarket/internal/logger"
)

// ImportSummary reports what a CSV ingest created.
type ImportSummary struct {
	Rows             int `json:"rows"`
	ResourcesCreated int `json:"resources_created"`
	SlotsCreated     int `json:"slots_created"`
	AuctionsCreated  int `json:"auctions_created"`
}

type ingestRow struct {
	building string
	room     string
	capacity int
	start    time.Time
	booked   bool
}

var requiredColumns = []string{"building", "room name", "capacity", "date", "time", "status"}

// parseScheduleCSV validates the header and rows of a schedule export.
// Unknown columns are ignored; column order is irrelevant.
func parseScheduleCSV(data []byte) ([]ingestRow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fail(ErrValidation, "empty CSV")
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fail(ErrValidation, "unreadable CSV header: %v", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fail(ErrValidation, "missing column %q", col)
		}
	}

	var rows []ingestRow
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fail(ErrValidation, "line %d: %v", line, err)
		}

		capacity, err := strconv.Atoi(strings.TrimSpace(record[idx["capacity"]]))
		if err != nil || capacity < 1 {
			return nil, fail(ErrValidation, "line %d: bad capacity %q", line, record[idx["capacity"]])
		}
		date := strings.TrimSpace(record[idx["date"]])
		clock := strings.TrimSpace(record[idx["time"]])
		start, err := time.Parse("2006-01-02 15:04", date+" "+clock)
		if err != nil {
			return nil, fail(ErrValidation, "line %d: bad date/time %q %q", line, date, clock)
		}
		status := strings.ToLower(strings.TrimSpace(record[idx["status"]]))
		if status != "available" && status != "booked" {
			return nil, fail(ErrValidation, "line %d: bad status %q", line, record[idx["status"]])
		}

		rows = append(rows, ingestRow{
			building: strings.TrimSpace(record[idx["building"]]),
			room:     strings.TrimSpace(record[idx["room name"]]),
			capacity: capacity,
			start:    start.UTC(),
			booked:   status == "booked",
		})
	}
	if len(rows) == 0 {
		return nil, fail(ErrValidation, "CSV has no data rows")
	}
	return rows, nil
}

// learnPopularity folds the ingest rows into booked/total demand ratios per
// location and per "dow-hour" bucket, writing them into cfg.
func learnPopularity(cfg *config.Config, rows []ingestRow) {
	locTotal := make(map[string]int)
	locBooked := make(map[string]int)
	timeTotal := make(map[string]int)
	timeBooked := make(map[string]int)

	for _, row := range rows {
		key := fmt.Sprintf("%d-%d", int(row.start.Weekday()), row.start.Hour())
		locTotal[row.building]++
		timeTotal[key]++
		if row.booked {
			locBooked[row.building]++
			timeBooked[key]++
		}
	}

	if cfg.LocationPopularity == nil {
		cfg.LocationPopularity = make(map[string]float64)
	}
	if cfg.TimePopularity == nil {
		cfg.TimePopularity = make(map[string]float64)
	}
	for loc, total := range locTotal {
		cfg.LocationPopularity[loc] = float64(locBooked[loc]) / float64(total)
	}
	for key, total := range timeTotal {
		cfg.TimePopularity[key] = float64(timeBooked[key]) / float64(total)
	}
}

// ImportResources ingests a schedule CSV: learns demand popularity, creates
// resources and slots, and opens priced auctions over future available
// slots. Historical booked rows become BOOKED slots with no auction.
func ImportResources(d *db.DB, cfg *config.Config, data []byte, now time.Time, rng *rand.Rand) (*ImportSummary, error) {
	rows, err := parseScheduleCSV(data)
	if err != nil {
		return nil, err
	}

	learnPopularity(cfg, rows)

	summary := &ImportSummary{Rows: len(rows)}
	err = d.WithTx(func(tx *db.Tx) error {
		for _, row := range rows {
			resource, err := tx.FindResourceByNameLocation(row.room, row.building)
			if err != nil {
				return err
			}
			if resource == nil {
				resource = &db.Resource{
					Name:     row.room,
					Location: row.building,
					Capacity: row.capacity,
					IsActive: true,
				}
				if err := tx.InsertResource(resource); err != nil {
					return err
				}
				summary.ResourcesCreated++
			}

			slot, err := tx.FindSlot(resource.ID, row.start)
			if err != nil {
				return err
			}
			if slot != nil {
				continue
			}
			slot = &db.TimeSlot{
				ResourceID: resource.ID,
				StartTime:  row.start,
				EndTime:    row.start.Add(time.Hour),
				Status:     db.SlotAvailable,
			}
			if row.booked {
				slot.Status = db.SlotBooked
			}
			if err := tx.InsertTimeSlot(slot); err != nil {
				return err
			}
			summary.SlotsCreated++

			if row.booked || !row.start.After(now) {
				continue
			}

			// Future inventory goes straight to auction.
			price := SlotPrice(cfg, resource, slot, now, rng)
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
			if err := tx.UpdateSlotStatus(slot.ID, db.SlotInAuction); err != nil {
				return err
			}
			summary.AuctionsCreated++
		}
		return tx.SaveConfig(cfg)
	})
	if err != nil {
		return nil, err
	}

	logger.Success("INGEST", fmt.Sprintf("Imported %d rows: %d resources, %d slots, %d auctions",
		summary.Rows, summary.ResourcesCreated, summary.SlotsCreated, summary.AuctionsCreated))
	return summary, nil
}
