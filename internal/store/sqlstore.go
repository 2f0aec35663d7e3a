package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// Predefined errors for store operations
var (
	ErrItemNotFound     = errors.New("store: item not found")
	ErrLocationNotFound = errors.New("store: location not found")
	ErrEventNotFound    = errors.New("store: sale event not found")
	ErrInvalidQuantity  = errors.New("store: invalid sale quantity")
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Defaults assigned to catalog records upserted with the field blank.
const (
	DefaultUnitOfSale       = "ea"
	DefaultStoreCategory    = "retail"
	DefaultLocationCategory = "store"
)

// SQLStore implements the CatalogStorer and EventStorer interfaces over a
// SQL database. Production deployments run PostgreSQL (lib/pq); local and
// test runs use the pure-Go SQLite driver (modernc.org/sqlite). The queries
// are written to the portable subset both engines support; only the schema
// DDL differs per driver.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewPostgresStore creates a SQLStore backed by PostgreSQL.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, driver: DriverPostgres, now: func() time.Time { return time.Now().UTC() }}
}

// NewSQLiteStore creates a SQLStore backed by SQLite.
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, driver: DriverSQLite, now: func() time.Time { return time.Now().UTC() }}
}

// InitSchema creates the three relations and their secondary indexes if they
// do not exist. The indexes mirror the performance orderings the query
// engine relies on: (locid), (itemid), (year,month,day) for sale_events,
// (name)/(storecategory)/(locationcategory)/(latitude,longitude) for
// locations and (name) for items.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	idColumn := "id BIGSERIAL PRIMARY KEY"
	timestampType := "TIMESTAMPTZ"
	if s.driver == DriverSQLite {
		idColumn = "id INTEGER PRIMARY KEY AUTOINCREMENT"
		timestampType = "TIMESTAMP"
	}

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS item (
				itemid TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				unitofsale TEXT NOT NULL DEFAULT 'ea',
				created_at %[1]s NOT NULL,
				updated_at %[1]s NOT NULL
			);`, timestampType),
		`CREATE INDEX IF NOT EXISTS idx_item_name ON item (name);`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS locations (
				locid TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				address TEXT NOT NULL DEFAULT '',
				contact TEXT NOT NULL DEFAULT '',
				latitude TEXT NOT NULL DEFAULT '',
				longitude TEXT NOT NULL DEFAULT '',
				storecategory TEXT NOT NULL DEFAULT 'retail',
				locationcategory TEXT NOT NULL DEFAULT 'store',
				storecategorynote TEXT NOT NULL DEFAULT '',
				locationcategorynote TEXT NOT NULL DEFAULT '',
				created_at %[1]s NOT NULL,
				updated_at %[1]s NOT NULL
			);`, timestampType),
		`CREATE INDEX IF NOT EXISTS idx_locations_name ON locations (name);`,
		`CREATE INDEX IF NOT EXISTS idx_locations_storecategory ON locations (storecategory);`,
		`CREATE INDEX IF NOT EXISTS idx_locations_locationcategory ON locations (locationcategory);`,
		`CREATE INDEX IF NOT EXISTS idx_locations_coords ON locations (latitude, longitude);`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS sale_events (
				%s,
				locid TEXT NOT NULL DEFAULT '',
				itemid TEXT NOT NULL DEFAULT '',
				saleqty DOUBLE PRECISION NOT NULL DEFAULT 0,
				year INTEGER NOT NULL,
				month INTEGER NOT NULL,
				day INTEGER NOT NULL,
				hour INTEGER NOT NULL,
				minute INTEGER NOT NULL,
				second INTEGER NOT NULL,
				event_timezone TEXT NOT NULL DEFAULT '',
				created_at %s NOT NULL
			);`, idColumn, timestampType),
		`CREATE INDEX IF NOT EXISTS idx_sale_events_locid ON sale_events (locid);`,
		`CREATE INDEX IF NOT EXISTS idx_sale_events_itemid ON sale_events (itemid);`,
		`CREATE INDEX IF NOT EXISTS idx_sale_events_date ON sale_events (year, month, day);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: InitSchema failed: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		log.Println("INFO: Closing database connection pool...")
		if err := s.db.Close(); err != nil {
			log.Printf("ERROR: Failed to close database connection pool: %v", err)
			return err
		}
		log.Println("INFO: Database connection pool closed successfully.")
	}
	return nil
}
