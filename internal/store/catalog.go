package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sales-event-service/internal/domain"
)

// --- CatalogStorer implementation ---

// UpsertItem creates or replaces the item keyed by its itemid. The server
// timestamp is bound from Go so that created_at is written exactly once and
// updated_at advances on every write, on either database driver.
func (s *SQLStore) UpsertItem(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	unitOfSale := item.UnitOfSale
	if unitOfSale == "" {
		unitOfSale = DefaultUnitOfSale
	}

	query := `
		INSERT INTO item (itemid, name, description, unitofsale, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (itemid) DO UPDATE
		SET name = EXCLUDED.name,
			description = EXCLUDED.description,
			unitofsale = EXCLUDED.unitofsale,
			updated_at = EXCLUDED.updated_at
		RETURNING itemid, name, description, unitofsale, created_at, updated_at;
	`
	now := s.now()
	row := s.db.QueryRowContext(ctx, query, item.ItemID, item.Name, item.Description, unitOfSale, now, now)

	var upserted domain.Item
	err := row.Scan(
		&upserted.ItemID,
		&upserted.Name,
		&upserted.Description,
		&upserted.UnitOfSale,
		&upserted.CreatedAt,
		&upserted.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: UpsertItem failed to scan row: %w", err)
	}
	return &upserted, nil
}

func (s *SQLStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	query := `
		SELECT itemid, name, description, unitofsale, created_at, updated_at
		FROM item
		WHERE itemid = $1;
	`
	var item domain.Item
	err := s.db.QueryRowContext(ctx, query, itemID).Scan(
		&item.ItemID,
		&item.Name,
		&item.Description,
		&item.UnitOfSale,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("store: GetItem failed to scan row: %w", err)
	}
	return &item, nil
}

// ListItems retrieves a paginated list of items ordered by name, with the
// identity as a deterministic tie-break.
func (s *SQLStore) ListItems(ctx context.Context, params ListParams) ([]domain.Item, int, error) {
	countQuery := `SELECT COUNT(*) FROM item;`
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListItems failed to count items: %w", err)
	}

	if totalCount == 0 {
		return []domain.Item{}, 0, nil
	}

	query := `
		SELECT itemid, name, description, unitofsale, created_at, updated_at
		FROM item
		ORDER BY name ASC, itemid ASC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.db.QueryContext(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListItems failed to query items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0, params.Limit)
	for rows.Next() {
		var i domain.Item
		if err := rows.Scan(&i.ItemID, &i.Name, &i.Description, &i.UnitOfSale, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("store: ListItems failed to scan item row: %w", err)
		}
		items = append(items, i)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListItems iteration error: %w", err)
	}

	return items, totalCount, nil
}

// DeleteItem removes a catalog record. Sale events referencing the item are
// left untouched; their dangling reference is surfaced at query time.
func (s *SQLStore) DeleteItem(ctx context.Context, itemID string) error {
	query := `DELETE FROM item WHERE itemid = $1;`
	result, err := s.db.ExecContext(ctx, query, itemID)
	if err != nil {
		return fmt.Errorf("store: DeleteItem failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteItem failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// UpsertLocation creates or replaces the location keyed by its locid.
// Latitude and longitude are stored as the caller's exact decimal text.
// Blank category fields take the catalog defaults.
func (s *SQLStore) UpsertLocation(ctx context.Context, loc *domain.Location) (*domain.Location, error) {
	storeCategory := loc.StoreCategory
	if storeCategory == "" {
		storeCategory = DefaultStoreCategory
	}
	locationCategory := loc.LocationCategory
	if locationCategory == "" {
		locationCategory = DefaultLocationCategory
	}

	query := `
		INSERT INTO locations (locid, name, description, address, contact, latitude, longitude,
			storecategory, locationcategory, storecategorynote, locationcategorynote, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (locid) DO UPDATE
		SET name = EXCLUDED.name,
			description = EXCLUDED.description,
			address = EXCLUDED.address,
			contact = EXCLUDED.contact,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			storecategory = EXCLUDED.storecategory,
			locationcategory = EXCLUDED.locationcategory,
			storecategorynote = EXCLUDED.storecategorynote,
			locationcategorynote = EXCLUDED.locationcategorynote,
			updated_at = EXCLUDED.updated_at
		RETURNING locid, name, description, address, contact, latitude, longitude,
			storecategory, locationcategory, storecategorynote, locationcategorynote, created_at, updated_at;
	`
	now := s.now()
	row := s.db.QueryRowContext(ctx, query,
		loc.LocID, loc.Name, loc.Description, loc.Address, loc.Contact, loc.Latitude, loc.Longitude,
		storeCategory, locationCategory, loc.StoreCategoryNote, loc.LocationCategoryNote, now, now,
	)

	var upserted domain.Location
	err := row.Scan(
		&upserted.LocID,
		&upserted.Name,
		&upserted.Description,
		&upserted.Address,
		&upserted.Contact,
		&upserted.Latitude,
		&upserted.Longitude,
		&upserted.StoreCategory,
		&upserted.LocationCategory,
		&upserted.StoreCategoryNote,
		&upserted.LocationCategoryNote,
		&upserted.CreatedAt,
		&upserted.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: UpsertLocation failed to scan row: %w", err)
	}
	return &upserted, nil
}

func (s *SQLStore) GetLocation(ctx context.Context, locID string) (*domain.Location, error) {
	query := `
		SELECT locid, name, description, address, contact, latitude, longitude,
			storecategory, locationcategory, storecategorynote, locationcategorynote, created_at, updated_at
		FROM locations
		WHERE locid = $1;
	`
	var loc domain.Location
	err := s.db.QueryRowContext(ctx, query, locID).Scan(
		&loc.LocID,
		&loc.Name,
		&loc.Description,
		&loc.Address,
		&loc.Contact,
		&loc.Latitude,
		&loc.Longitude,
		&loc.StoreCategory,
		&loc.LocationCategory,
		&loc.StoreCategoryNote,
		&loc.LocationCategoryNote,
		&loc.CreatedAt,
		&loc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, fmt.Errorf("store: GetLocation failed to scan row: %w", err)
	}
	return &loc, nil
}

func (s *SQLStore) ListLocations(ctx context.Context, params ListParams) ([]domain.Location, int, error) {
	countQuery := `SELECT COUNT(*) FROM locations;`
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListLocations failed to count locations: %w", err)
	}

	if totalCount == 0 {
		return []domain.Location{}, 0, nil
	}

	query := `
		SELECT locid, name, description, address, contact, latitude, longitude,
			storecategory, locationcategory, storecategorynote, locationcategorynote, created_at, updated_at
		FROM locations
		ORDER BY name ASC, locid ASC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.db.QueryContext(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListLocations failed to query locations: %w", err)
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, params.Limit)
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(
			&l.LocID, &l.Name, &l.Description, &l.Address, &l.Contact, &l.Latitude, &l.Longitude,
			&l.StoreCategory, &l.LocationCategory, &l.StoreCategoryNote, &l.LocationCategoryNote,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("store: ListLocations failed to scan location row: %w", err)
		}
		locations = append(locations, l)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListLocations iteration error: %w", err)
	}

	return locations, totalCount, nil
}

func (s *SQLStore) DeleteLocation(ctx context.Context, locID string) error {
	query := `DELETE FROM locations WHERE locid = $1;`
	result, err := s.db.ExecContext(ctx, query, locID)
	if err != nil {
		return fmt.Errorf("store: DeleteLocation failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteLocation failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLocationNotFound
	}
	return nil
}
