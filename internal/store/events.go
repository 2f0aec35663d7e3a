package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"sales-event-service/internal/domain"
	"sales-event-service/internal/timelocal"
)

// --- Event ingestion ---

// AppendEvent validates and appends one sale event. Validation order:
// quantity must be finite and non-negative, then the decomposed time must
// denote a real calendar moment. Referential existence of LocID/ItemID is
// deliberately not checked here; dangling references are a query-time
// diagnostic. The single INSERT assigns the next surrogate id and maintains
// the secondary indexes atomically, so no reader ever observes an id
// without its index entries.
func (s *SQLStore) AppendEvent(ctx context.Context, params AppendEventParams) (*domain.SaleEvent, error) {
	if err := validateAppendParams(params); err != nil {
		return nil, err
	}

	event := newSaleEvent(params, s.now())
	err := s.db.QueryRowContext(ctx, insertSaleEventSQL,
		event.LocID, event.ItemID, event.SaleQty,
		event.Year, event.Month, event.Day, event.Hour, event.Minute, event.Second,
		event.EventTimezone, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return nil, fmt.Errorf("store: AppendEvent failed to insert event: %w", err)
	}
	return &event, nil
}

// BulkAppendEvents appends a batch of sale events in a single transaction.
// Every event is validated up front and one invalid entry rejects the whole
// batch, so a partial batch is never persisted. Ids are assigned in batch
// order.
func (s *SQLStore) BulkAppendEvents(ctx context.Context, batch []AppendEventParams) ([]domain.SaleEvent, error) {
	now := s.now()
	events := make([]domain.SaleEvent, 0, len(batch))
	for i, params := range batch {
		if err := validateAppendParams(params); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, newSaleEvent(params, now))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: BulkAppendEvents failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range events {
		e := &events[i]
		err := tx.QueryRowContext(ctx, insertSaleEventSQL,
			e.LocID, e.ItemID, e.SaleQty,
			e.Year, e.Month, e.Day, e.Hour, e.Minute, e.Second,
			e.EventTimezone, e.CreatedAt,
		).Scan(&e.ID)
		if err != nil {
			return nil, fmt.Errorf("store: BulkAppendEvents failed to insert event %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: BulkAppendEvents failed to commit: %w", err)
	}
	return events, nil
}

const insertSaleEventSQL = `
	INSERT INTO sale_events (locid, itemid, saleqty, year, month, day, hour, minute, second, event_timezone, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING id;
`

func validateAppendParams(params AppendEventParams) error {
	if math.IsNaN(params.SaleQty) || math.IsInf(params.SaleQty, 0) || params.SaleQty < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, params.SaleQty)
	}
	return timelocal.Validate(params.Time)
}

func newSaleEvent(params AppendEventParams, createdAt time.Time) domain.SaleEvent {
	return domain.SaleEvent{
		LocID:         params.LocID,
		ItemID:        params.ItemID,
		SaleQty:       params.SaleQty,
		Year:          params.Time.Year,
		Month:         params.Time.Month,
		Day:           params.Time.Day,
		Hour:          params.Time.Hour,
		Minute:        params.Time.Minute,
		Second:        params.Time.Second,
		EventTimezone: params.Timezone,
		CreatedAt:     createdAt,
	}
}

const saleEventColumns = `id, locid, itemid, saleqty, year, month, day, hour, minute, second, event_timezone, created_at`

func scanSaleEvent(row *sql.Row, e *domain.SaleEvent) error {
	return row.Scan(
		&e.ID, &e.LocID, &e.ItemID, &e.SaleQty,
		&e.Year, &e.Month, &e.Day, &e.Hour, &e.Minute, &e.Second,
		&e.EventTimezone, &e.CreatedAt,
	)
}

func (s *SQLStore) GetSaleEvent(ctx context.Context, id int64) (*domain.SaleEvent, error) {
	query := `
		SELECT ` + saleEventColumns + `
		FROM sale_events
		WHERE id = $1;
	`
	var event domain.SaleEvent
	if err := scanSaleEvent(s.db.QueryRowContext(ctx, query, id), &event); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("store: GetSaleEvent failed to scan row: %w", err)
	}
	return &event, nil
}

// --- EventSeq implementations ---

// rowsSeq streams query results off a live cursor. Abandoning the sequence
// via Close releases the cursor without draining it.
type rowsSeq struct {
	rows      *sql.Rows
	checkRefs bool
	current   domain.EventView
	err       error
}

func (q *rowsSeq) Next() bool {
	if q.err != nil || !q.rows.Next() {
		if q.err == nil {
			q.err = q.rows.Err()
		}
		return false
	}

	var view domain.EventView
	var unknownLoc, unknownItem int
	dest := []interface{}{
		&view.ID, &view.LocID, &view.ItemID, &view.SaleQty,
		&view.Year, &view.Month, &view.Day, &view.Hour, &view.Minute, &view.Second,
		&view.EventTimezone, &view.CreatedAt,
	}
	if q.checkRefs {
		dest = append(dest, &unknownLoc, &unknownItem)
	}
	if err := q.rows.Scan(dest...); err != nil {
		q.err = fmt.Errorf("store: QueryEvents failed to scan event row: %w", err)
		return false
	}
	view.UnknownLocation = unknownLoc == 1
	view.UnknownItem = unknownItem == 1
	q.current = view
	return true
}

func (q *rowsSeq) Event() domain.EventView { return q.current }
func (q *rowsSeq) Err() error              { return q.err }
func (q *rowsSeq) Close() error            { return q.rows.Close() }

// sliceSeq serves a fixed, already-materialized result set. It backs
// bounding-box queries that matched no locations.
type sliceSeq struct {
	events []domain.EventView
	pos    int
}

// NewSliceSeq returns an EventSeq over a fixed slice.
func NewSliceSeq(events []domain.EventView) EventSeq {
	return &sliceSeq{events: events}
}

func (q *sliceSeq) Next() bool {
	if q.pos >= len(q.events) {
		return false
	}
	q.pos++
	return true
}

func (q *sliceSeq) Event() domain.EventView { return q.events[q.pos-1] }
func (q *sliceSeq) Err() error              { return nil }
func (q *sliceSeq) Close() error            { return nil }

// Collect drains and closes a sequence.
func Collect(seq EventSeq) ([]domain.EventView, error) {
	defer seq.Close()
	events := []domain.EventView{}
	for seq.Next() {
		events = append(events, seq.Event())
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
