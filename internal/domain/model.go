package domain

import (
	"time"

	"sales-event-service/internal/timelocal"
)

// Item is a catalog entry for something that can be sold. Identity is the
// caller-supplied itemid; records are upserted in place and never
// hard-deleted by the event store core.
type Item struct {
	ItemID      string    `json:"itemid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UnitOfSale  string    `json:"unitofsale"` // defaults to "ea"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Location is a catalog entry for a place where sales happen. Latitude and
// longitude are kept as decimal-string text to preserve the exact external
// representation; the geo filter parses them best-effort at read time.
type Location struct {
	LocID                string    `json:"locid"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	Address              string    `json:"address"`
	Contact              string    `json:"contact"`
	Latitude             string    `json:"latitude"`
	Longitude            string    `json:"longitude"`
	StoreCategory        string    `json:"storecategory"`    // Warehouse, Kiosk, Event, Exhibition, ...
	LocationCategory     string    `json:"locationcategory"` // Mall, Event, Festival, ...
	StoreCategoryNote    string    `json:"storecategorynote"`
	LocationCategoryNote string    `json:"locationcategorynote"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// SaleEvent is one immutable recorded sale. LocID and ItemID are soft
// references: they are not required to exist in the catalogs at write time,
// and dangling references are surfaced as diagnostics at query time.
// The decomposed time fields plus EventTimezone are stored verbatim;
// CreatedAt is the ingestion-time server timestamp, distinct from the
// event's own business time.
type SaleEvent struct {
	ID            int64     `json:"id"`
	LocID         string    `json:"locid"`
	ItemID        string    `json:"itemid"`
	SaleQty       float64   `json:"saleqty"`
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	Day           int       `json:"day"`
	Hour          int       `json:"hour"`
	Minute        int       `json:"minute"`
	Second        int       `json:"second"`
	EventTimezone string    `json:"event_timezone"`
	CreatedAt     time.Time `json:"created_at"`
}

// LocalTime returns the event's decomposed business time.
func (e SaleEvent) LocalTime() timelocal.Fields {
	return timelocal.Fields{
		Year:   e.Year,
		Month:  e.Month,
		Day:    e.Day,
		Hour:   e.Hour,
		Minute: e.Minute,
		Second: e.Second,
	}
}

// EventDate returns the calendar-date prefix of the event's business time.
func (e SaleEvent) EventDate() timelocal.Date {
	return e.LocalTime().Date()
}

// EventView is a SaleEvent as returned by queries, optionally carrying the
// unknown-reference diagnostics. The flags reflect a point-in-time check
// against the catalogs, not a guarantee.
type EventView struct {
	SaleEvent
	UnknownLocation bool `json:"unknown_location,omitempty"`
	UnknownItem     bool `json:"unknown_item,omitempty"`
}

// AggregateRow is one group of a sum-of-quantity aggregation. Only the
// dimensions that were grouped on are set; empty groups are never emitted.
type AggregateRow struct {
	LocID    *string         `json:"locid,omitempty"`
	ItemID   *string         `json:"itemid,omitempty"`
	Date     *timelocal.Date `json:"date,omitempty"`
	TotalQty float64         `json:"total_qty"`
}
