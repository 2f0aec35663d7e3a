package store

import (
	"context"

	"sales-event-service/internal/domain"
	"sales-event-service/internal/geo"
	"sales-event-service/internal/timelocal"
)

// ListParams holds pagination parameters for catalog listing.
type ListParams struct {
	Limit  int
	Offset int
}

// CatalogStorer defines the database operations for the item and location
// catalogs. Upserts are create-or-replace keyed by the caller-supplied
// identity: created_at is set on first write and held forever, updated_at
// is refreshed on every write.
type CatalogStorer interface {
	UpsertItem(ctx context.Context, item *domain.Item) (*domain.Item, error)
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)
	ListItems(ctx context.Context, params ListParams) ([]domain.Item, int, error) // Returns items and total count for pagination
	DeleteItem(ctx context.Context, itemID string) error

	UpsertLocation(ctx context.Context, loc *domain.Location) (*domain.Location, error)
	GetLocation(ctx context.Context, locID string) (*domain.Location, error)
	ListLocations(ctx context.Context, params ListParams) ([]domain.Location, int, error)
	DeleteLocation(ctx context.Context, locID string) error
}

// AppendEventParams holds the caller-supplied fields of a new sale event.
// LocID and ItemID are soft references and are deliberately not checked
// against the catalogs at ingestion time.
type AppendEventParams struct {
	LocID    string
	ItemID   string
	SaleQty  float64
	Time     timelocal.Fields
	Timezone string
}

// QueryEventsParams holds the optional filters of an event range query.
// Date bounds are inclusive and compared on the decomposed (year,month,day)
// prefix, zone-agnostic. A bounding box is resolved to the set of matching
// catalog locations before the event scan.
type QueryEventsParams struct {
	LocID     *string
	ItemID    *string
	DateFrom  *timelocal.Date
	DateTo    *timelocal.Date
	Box       *geo.BoundingBox
	CheckRefs bool // annotate rows with unknown-reference diagnostics
	Limit     int  // 0 means no limit
	Offset    int
}

// GroupBy selects the dimensions of an aggregation.
type GroupBy struct {
	Location bool
	Item     bool
	Date     bool
}

// AggregateParams holds the filters and grouping of a sum-of-quantity
// aggregation. The filter fields mean the same as in QueryEventsParams.
type AggregateParams struct {
	LocID    *string
	ItemID   *string
	DateFrom *timelocal.Date
	DateTo   *timelocal.Date
	Box      *geo.BoundingBox
	GroupBy  GroupBy
}

// EventSeq is a lazy, finite sequence of query results ordered by ascending
// event id. It may be abandoned at any point; Close releases the underlying
// cursor.
type EventSeq interface {
	Next() bool
	Event() domain.EventView
	Err() error
	Close() error
}

// EventStorer defines the database operations for sale events: append-only
// ingestion plus the range/aggregation query engine.
type EventStorer interface {
	AppendEvent(ctx context.Context, params AppendEventParams) (*domain.SaleEvent, error)
	// BulkAppendEvents appends a whole batch in one transaction; one invalid
	// event rejects the batch and nothing is persisted.
	BulkAppendEvents(ctx context.Context, batch []AppendEventParams) ([]domain.SaleEvent, error)
	GetSaleEvent(ctx context.Context, id int64) (*domain.SaleEvent, error)
	QueryEvents(ctx context.Context, params QueryEventsParams) (EventSeq, error)
	CountEvents(ctx context.Context, params QueryEventsParams) (int, error)
	// QueryEventsByInstant is the explicit normalize-to-UTC read path. Rows
	// whose stored zone cannot be resolved are excluded; the second return
	// value reports how many were dropped. Limit/Offset page the
	// instant-ordered result, not the underlying id-ordered scan.
	QueryEventsByInstant(ctx context.Context, params QueryEventsParams) ([]domain.EventView, int, error)
	Aggregate(ctx context.Context, params AggregateParams) ([]domain.AggregateRow, error)
}
