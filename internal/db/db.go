package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"slotmarket/internal/logger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx so every entity accessor
// can run standalone or inside a settlement transaction.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store holds the entity accessors. It is embedded by both DB and Tx.
type Store struct {
	q querier
}

// DB wraps a SQLite database connection.
type DB struct {
	sql *sql.DB
	Store
}

// Tx is a transaction-scoped view of the store.
type Tx struct {
	tx *sql.Tx
	Store
}

func dbPath() string {
	// Prefer working directory so the DB is stable across go run / go build.
	// Fall back to executable directory for deployed builds.
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "slotmarket.db")
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "slotmarket.db")
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open() (*DB, error) {
	return OpenAt(dbPath())
}

// OpenAt opens the database at an explicit path.
func OpenAt(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB, Store: Store{q: sqlDB}}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Opened %s", path))
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// SqlDB exposes the raw handle for callers that need it (tests, vacuum).
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}

// WithTx runs fn inside a transaction. Any error rolls everything back;
// this is the only settlement path, so commits are the observation points.
func (d *DB) WithTx(fn func(tx *Tx) error) error {
	t, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	wrapped := &Tx{tx: t, Store: Store{q: t}}
	if err := fn(wrapped); err != nil {
		t.Rollback()
		return err
	}
	return t.Commit()
}

func (d *DB) migrate() error {
	version := 0
	// Try to read current version
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS config (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS resources (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				resource_type TEXT NOT NULL DEFAULT 'room',
				location      TEXT NOT NULL,
				capacity      INTEGER NOT NULL DEFAULT 1,
				attributes    TEXT,
				is_active     INTEGER NOT NULL DEFAULT 1,
				created_at    TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS time_slots (
				id          TEXT PRIMARY KEY,
				resource_id TEXT NOT NULL REFERENCES resources(id),
				start_time  TEXT NOT NULL,
				end_time    TEXT NOT NULL,
				status      TEXT NOT NULL DEFAULT 'available'
			);
			CREATE INDEX IF NOT EXISTS idx_slots_resource ON time_slots(resource_id);
			CREATE INDEX IF NOT EXISTS idx_slots_start ON time_slots(start_time);

			CREATE TABLE IF NOT EXISTS auctions (
				id                TEXT PRIMARY KEY,
				time_slot_id      TEXT NOT NULL REFERENCES time_slots(id),
				auction_type      TEXT NOT NULL DEFAULT 'dutch',
				status            TEXT NOT NULL DEFAULT 'pending',
				start_price       REAL NOT NULL,
				current_price     REAL NOT NULL,
				min_price         REAL NOT NULL,
				price_step        REAL NOT NULL,
				tick_interval_sec REAL NOT NULL,
				created_at        TEXT NOT NULL,
				started_at        TEXT,
				ended_at          TEXT,
				last_tick_at      TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_auctions_slot ON auctions(time_slot_id);
			CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status);

			CREATE TABLE IF NOT EXISTS bids (
				id                  TEXT PRIMARY KEY,
				auction_id          TEXT NOT NULL REFERENCES auctions(id),
				agent_id            TEXT NOT NULL REFERENCES agents(id),
				amount              TEXT NOT NULL,
				is_group_bid        INTEGER NOT NULL DEFAULT 0,
				split_with_agent_id TEXT,
				status              TEXT NOT NULL DEFAULT 'pending',
				placed_at           TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids(auction_id);

			CREATE TABLE IF NOT EXISTS group_bid_members (
				id           TEXT PRIMARY KEY,
				bid_id       TEXT NOT NULL REFERENCES bids(id),
				agent_id     TEXT NOT NULL REFERENCES agents(id),
				contribution TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_group_members_bid ON group_bid_members(bid_id);

			CREATE TABLE IF NOT EXISTS agents (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				token_balance TEXT NOT NULL DEFAULT '0',
				is_active     INTEGER NOT NULL DEFAULT 1,
				max_bookings  INTEGER NOT NULL DEFAULT 10,
				behavior      TEXT,
				created_at    TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS agent_preferences (
				id               TEXT PRIMARY KEY,
				agent_id         TEXT NOT NULL REFERENCES agents(id),
				preference_type  TEXT NOT NULL,
				preference_value TEXT NOT NULL,
				weight           REAL NOT NULL DEFAULT 0.5
			);
			CREATE INDEX IF NOT EXISTS idx_prefs_agent ON agent_preferences(agent_id);

			CREATE TABLE IF NOT EXISTS bookings (
				id                  TEXT PRIMARY KEY,
				time_slot_id        TEXT NOT NULL REFERENCES time_slots(id),
				agent_id            TEXT NOT NULL REFERENCES agents(id),
				bid_id              TEXT NOT NULL REFERENCES bids(id),
				price               TEXT NOT NULL DEFAULT '0',
				status              TEXT NOT NULL DEFAULT 'confirmed',
				split_with_agent_id TEXT,
				split_status        TEXT NOT NULL DEFAULT 'none',
				created_at          TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(time_slot_id);
			CREATE INDEX IF NOT EXISTS idx_bookings_agent ON bookings(agent_id);

			CREATE TABLE IF NOT EXISTS transactions (
				id           TEXT PRIMARY KEY,
				agent_id     TEXT NOT NULL REFERENCES agents(id),
				amount       TEXT NOT NULL,
				kind         TEXT NOT NULL,
				reference_id TEXT,
				created_at   TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_transactions_agent ON transactions(agent_id);

			CREATE TABLE IF NOT EXISTS price_history (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				auction_id   TEXT REFERENCES auctions(id),
				time_slot_id TEXT REFERENCES time_slots(id),
				price        REAL NOT NULL,
				recorded_at  TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_price_history_auction ON price_history(auction_id);

			CREATE TABLE IF NOT EXISTS limit_orders (
				id           TEXT PRIMARY KEY,
				agent_id     TEXT NOT NULL REFERENCES agents(id),
				time_slot_id TEXT NOT NULL REFERENCES time_slots(id),
				max_price    TEXT NOT NULL,
				status       TEXT NOT NULL DEFAULT 'pending',
				reason       TEXT,
				bid_id       TEXT,
				created_at   TEXT NOT NULL,
				executed_at  TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_limit_orders_slot ON limit_orders(time_slot_id);
			CREATE INDEX IF NOT EXISTS idx_limit_orders_agent ON limit_orders(agent_id);

			INSERT OR REPLACE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return err
		}
	}
	return nil
}

// --- column helpers ---

const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Older rows may carry second precision.
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
