package infra

import (
	"fmt"
	"strings"

	"sarnabroker/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sqlitePrefix selects the embedded SQLite driver, e.g. "sqlite:sarna.db" or
// "sqlite::memory:". Anything else is handed to the Postgres driver.
const sqlitePrefix = "sqlite:"

// NewDatabase opens the ledger store, migrates it and applies the idempotent
// patches AutoMigrate cannot express.
func NewDatabase(dsn string) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		isSQLite  bool
	)
	if strings.HasPrefix(dsn, sqlitePrefix) {
		dialector = sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
		isSQLite = true
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if isSQLite {
		// One writer at a time; SQLite serializes anyway and this keeps
		// ":memory:" on a single shared connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if !isSQLite {
		if err := applySchemaPatches(db); err != nil {
			return nil, fmt.Errorf("schema patches: %w", err)
		}
	}
	return db, nil
}

// Migrate creates or updates every table and seeds the booking counter.
// Tests call it directly on an in-memory database.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.StockListing{},
		&model.StockHistory{},
		&model.Booking{},
		&model.LoadingInvoice{},
		&model.Payment{},
		&model.OrderSequence{},
		&model.Contact{},
		&model.SMSMessage{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}

	seed := model.OrderSequence{Name: model.BookingSequence, Value: model.BookingSequenceSeed}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("seed order sequence: %w", err)
	}
	return nil
}

// applySchemaPatches runs Postgres-only DDL. Every statement is guarded so
// re-running on a patched database is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"listing quantities never negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_stock_listings_qty') THEN
    ALTER TABLE stock_listings
      ADD CONSTRAINT chk_stock_listings_qty CHECK (quantity >= 0 AND reserved_qty >= 0);
  END IF;
END $$`},
		{"loaded never exceeds booked", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_bookings_loaded') THEN
    ALTER TABLE bookings
      ADD CONSTRAINT chk_bookings_loaded CHECK (loaded_qty >= 0 AND loaded_qty <= quantity);
  END IF;
END $$`},
		{"open market partial index", `
CREATE INDEX IF NOT EXISTS idx_stock_listings_market
    ON stock_listings (crop, created_at DESC)
    WHERE status = 'open' AND quantity > 0`},
		{"sms retry partial index", `
CREATE INDEX IF NOT EXISTS idx_sms_messages_pending_retry
    ON sms_messages (next_retry_at)
    WHERE status = 'pending' AND next_retry_at IS NOT NULL`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
