// loadcatalog seeds the item and location catalogs from JSON files. Each
// record is upserted; a record whose created_at equals its updated_at after
// the write was newly inserted, otherwise it already existed and was
// refreshed.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"sales-event-service/internal/config"
	"sales-event-service/internal/domain"
	"sales-event-service/internal/store"
)

type itemsFile struct {
	Items []domain.Item `json:"items"`
}

type locationsFile struct {
	Locations []domain.Location `json:"locations"`
}

func main() {
	itemsPath := flag.String("items", "items.json", "path to the items JSON file (empty to skip)")
	locationsPath := flag.String("locations", "locations.json", "path to the locations JSON file (empty to skip)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("INFO: No .env file found or failed to load, relying on system environment")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Error loading configuration: %v", err)
	}

	db, catalog, err := openStore(&cfg.Database)
	if err != nil {
		log.Fatalf("FATAL: Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := catalog.InitSchema(ctx); err != nil {
		log.Fatalf("FATAL: Failed to initialize schema: %v", err)
	}

	if *itemsPath != "" {
		inserted, updated, errCount := loadItems(ctx, catalog, *itemsPath)
		fmt.Printf("items: inserted=%d updated=%d errors=%d\n", inserted, updated, errCount)
	}
	if *locationsPath != "" {
		inserted, updated, errCount := loadLocations(ctx, catalog, *locationsPath)
		fmt.Printf("locations: inserted=%d updated=%d errors=%d\n", inserted, updated, errCount)
	}
}

func openStore(cfg *config.DatabaseConfig) (*sql.DB, *store.SQLStore, error) {
	switch cfg.Driver {
	case store.DriverPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		return db, store.NewPostgresStore(db), nil
	case store.DriverSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(1)
		return db, store.NewSQLiteStore(db), nil
	default:
		return nil, nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

func loadItems(ctx context.Context, catalog store.CatalogStorer, path string) (inserted, updated, errCount int) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("FATAL: Items file not readable: %v", err)
	}
	var file itemsFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Fatalf("FATAL: Items file not valid JSON: %v", err)
	}

	for i := range file.Items {
		item := file.Items[i]
		upserted, err := catalog.UpsertItem(ctx, &item)
		if err != nil {
			log.Printf("ERROR: processing item %q: %v", item.ItemID, err)
			errCount++
			continue
		}
		if upserted.CreatedAt.Equal(upserted.UpdatedAt) {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, errCount
}

func loadLocations(ctx context.Context, catalog store.CatalogStorer, path string) (inserted, updated, errCount int) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("FATAL: Locations file not readable: %v", err)
	}
	var file locationsFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Fatalf("FATAL: Locations file not valid JSON: %v", err)
	}

	for i := range file.Locations {
		loc := file.Locations[i]
		upserted, err := catalog.UpsertLocation(ctx, &loc)
		if err != nil {
			log.Printf("ERROR: processing location %q: %v", loc.LocID, err)
			errCount++
			continue
		}
		if upserted.CreatedAt.Equal(upserted.UpdatedAt) {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, errCount
}
