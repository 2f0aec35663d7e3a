package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"sales-event-service/internal/domain"
	"sales-event-service/internal/geo"
	"sales-event-service/internal/timelocal"
)

// eventFilter is the WHERE fragment shared by QueryEvents, CountEvents and
// Aggregate. noMatch short-circuits queries whose bounding box matched no
// catalog location.
type eventFilter struct {
	clauses []string
	args    []interface{}
	argID   int
	noMatch bool
}

func (f *eventFilter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// addDateBound expands an inclusive decomposed date bound into the
// three-clause prefix comparison over (year, month, day). strict/orEqual are
// ">"/">=" for the lower bound and "<"/"<=" for the upper bound.
func (f *eventFilter) addDateBound(d timelocal.Date, strict, orEqual string) {
	y, m, day := f.argID, f.argID+1, f.argID+2
	f.clauses = append(f.clauses, fmt.Sprintf(
		"(e.year %[1]s $%[3]d OR (e.year = $%[3]d AND e.month %[1]s $%[4]d) OR (e.year = $%[3]d AND e.month = $%[4]d AND e.day %[2]s $%[5]d))",
		strict, orEqual, y, m, day,
	))
	f.args = append(f.args, d.Year, d.Month, d.Day)
	f.argID += 3
}

func (s *SQLStore) buildEventFilter(ctx context.Context, locID, itemID *string, dateFrom, dateTo *timelocal.Date, box *geo.BoundingBox) (*eventFilter, error) {
	f := &eventFilter{argID: 1}

	if locID != nil {
		f.clauses = append(f.clauses, fmt.Sprintf("e.locid = $%d", f.argID))
		f.args = append(f.args, *locID)
		f.argID++
	}
	if itemID != nil {
		f.clauses = append(f.clauses, fmt.Sprintf("e.itemid = $%d", f.argID))
		f.args = append(f.args, *itemID)
		f.argID++
	}
	if dateFrom != nil {
		if err := timelocal.ValidateDate(*dateFrom); err != nil {
			return nil, err
		}
		f.addDateBound(*dateFrom, ">", ">=")
	}
	if dateTo != nil {
		if err := timelocal.ValidateDate(*dateTo); err != nil {
			return nil, err
		}
		f.addDateBound(*dateTo, "<", "<=")
	}
	if box != nil {
		locIDs, err := s.locationIDsWithin(ctx, *box)
		if err != nil {
			return nil, err
		}
		if len(locIDs) == 0 {
			f.noMatch = true
			return f, nil
		}
		placeholders := make([]string, len(locIDs))
		for i, id := range locIDs {
			placeholders[i] = fmt.Sprintf("$%d", f.argID+i)
			f.args = append(f.args, id)
		}
		f.clauses = append(f.clauses, fmt.Sprintf("e.locid IN (%s)", strings.Join(placeholders, ",")))
		f.argID += len(locIDs)
	}
	return f, nil
}

// locationIDsWithin resolves a bounding box to the identities of catalog
// locations whose textual coordinates parse and fall inside it. This is a
// full scan of the locations relation; there is no spatial index and none is
// needed at expected catalog sizes. Unparsable coordinates exclude the
// location, never the query.
func (s *SQLStore) locationIDsWithin(ctx context.Context, box geo.BoundingBox) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT locid, latitude, longitude FROM locations;`)
	if err != nil {
		return nil, fmt.Errorf("store: locationIDsWithin failed to query locations: %w", err)
	}
	defer rows.Close()

	var locIDs []string
	for rows.Next() {
		var locID, lat, lon string
		if err := rows.Scan(&locID, &lat, &lon); err != nil {
			return nil, fmt.Errorf("store: locationIDsWithin failed to scan location row: %w", err)
		}
		if box.Contains(lat, lon) {
			locIDs = append(locIDs, locID)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: locationIDsWithin iteration error: %w", err)
	}
	return locIDs, nil
}

// QueryEvents returns matching events as a lazy sequence ordered by
// ascending event id. With CheckRefs set, each row carries a point-in-time
// diagnostic of whether its locid/itemid resolves in the catalogs,
// implemented as read-time LEFT JOINs rather than enforced keys.
func (s *SQLStore) QueryEvents(ctx context.Context, params QueryEventsParams) (EventSeq, error) {
	f, err := s.buildEventFilter(ctx, params.LocID, params.ItemID, params.DateFrom, params.DateTo, params.Box)
	if err != nil {
		return nil, err
	}
	if f.noMatch {
		return NewSliceSeq(nil), nil
	}

	columns := `e.id, e.locid, e.itemid, e.saleqty, e.year, e.month, e.day, e.hour, e.minute, e.second, e.event_timezone, e.created_at`
	from := `FROM sale_events e`
	if params.CheckRefs {
		columns += `,
			CASE WHEN l.locid IS NULL THEN 1 ELSE 0 END,
			CASE WHEN i.itemid IS NULL THEN 1 ELSE 0 END`
		from = `FROM sale_events e
			LEFT JOIN locations l ON l.locid = e.locid
			LEFT JOIN item i ON i.itemid = e.itemid`
	}

	query := fmt.Sprintf("SELECT %s %s%s ORDER BY e.id ASC", columns, from, f.where())
	args := f.args
	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", f.argID, f.argID+1)
		args = append(args, params.Limit, params.Offset)
	}
	query += ";"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: QueryEvents failed to query events: %w", err)
	}
	return &rowsSeq{rows: rows, checkRefs: params.CheckRefs}, nil
}

// CountEvents counts the events matching the query filters, ignoring
// pagination.
func (s *SQLStore) CountEvents(ctx context.Context, params QueryEventsParams) (int, error) {
	f, err := s.buildEventFilter(ctx, params.LocID, params.ItemID, params.DateFrom, params.DateTo, params.Box)
	if err != nil {
		return 0, err
	}
	if f.noMatch {
		return 0, nil
	}

	query := "SELECT COUNT(*) FROM sale_events e" + f.where() + ";"
	var count int
	if err := s.db.QueryRowContext(ctx, query, f.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: CountEvents failed to count events: %w", err)
	}
	return count, nil
}

// QueryEventsByInstant is the explicit opt-in normalization path. It
// materializes the local-field matches, resolves each event's zone to an
// absolute instant and orders by (instant, id). Events whose stored zone
// identifier cannot be resolved are excluded from the result and counted,
// never failing the query as a whole. Limit/Offset page the instant-ordered
// result, so the scan always covers the full match set and the slice is
// taken after sorting; applying them to the id-ordered scan would make the
// ordering hold only within a page.
func (s *SQLStore) QueryEventsByInstant(ctx context.Context, params QueryEventsParams) ([]domain.EventView, int, error) {
	scan := params
	scan.Limit = 0
	scan.Offset = 0
	seq, err := s.QueryEvents(ctx, scan)
	if err != nil {
		return nil, 0, err
	}
	matched, err := Collect(seq)
	if err != nil {
		return nil, 0, err
	}

	type resolved struct {
		view    domain.EventView
		instant time.Time
	}
	kept := make([]resolved, 0, len(matched))
	excluded := 0
	for _, view := range matched {
		instant, err := timelocal.ToInstant(view.LocalTime(), view.EventTimezone)
		if err != nil {
			if errors.Is(err, timelocal.ErrUnresolvableZone) {
				log.Printf("WARN: excluding event %d from instant-ordered result: %v", view.ID, err)
				excluded++
				continue
			}
			return nil, 0, err
		}
		kept = append(kept, resolved{view: view, instant: instant})
	}

	sort.Slice(kept, func(i, j int) bool {
		if !kept[i].instant.Equal(kept[j].instant) {
			return kept[i].instant.Before(kept[j].instant)
		}
		return kept[i].view.ID < kept[j].view.ID
	})

	views := make([]domain.EventView, len(kept))
	for i, r := range kept {
		views[i] = r.view
	}

	if params.Offset > 0 {
		if params.Offset >= len(views) {
			views = views[:0]
		} else {
			views = views[params.Offset:]
		}
	}
	if params.Limit > 0 && params.Limit < len(views) {
		views = views[:params.Limit]
	}
	return views, excluded, nil
}

// Aggregate sums saleqty grouped by the requested subset of
// {location, item, date}. Group-key equality is exact on the stored fields;
// no timezone normalization is applied. Empty groups are omitted, and group
// ordering is deterministic.
func (s *SQLStore) Aggregate(ctx context.Context, params AggregateParams) ([]domain.AggregateRow, error) {
	f, err := s.buildEventFilter(ctx, params.LocID, params.ItemID, params.DateFrom, params.DateTo, params.Box)
	if err != nil {
		return nil, err
	}
	if f.noMatch {
		return []domain.AggregateRow{}, nil
	}

	var dims []string
	if params.GroupBy.Location {
		dims = append(dims, "e.locid")
	}
	if params.GroupBy.Item {
		dims = append(dims, "e.itemid")
	}
	if params.GroupBy.Date {
		dims = append(dims, "e.year", "e.month", "e.day")
	}

	selectList := "SUM(e.saleqty)"
	groupClause := ""
	if len(dims) > 0 {
		dimList := strings.Join(dims, ", ")
		selectList = dimList + ", " + selectList
		groupClause = " GROUP BY " + dimList + " ORDER BY " + dimList
	}

	query := fmt.Sprintf("SELECT %s FROM sale_events e%s%s;", selectList, f.where(), groupClause)
	rows, err := s.db.QueryContext(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("store: Aggregate failed to query events: %w", err)
	}
	defer rows.Close()

	results := []domain.AggregateRow{}
	for rows.Next() {
		var (
			row    domain.AggregateRow
			locID  string
			itemID string
			date   timelocal.Date
			sum    sql.NullFloat64
			dest   []interface{}
		)
		if params.GroupBy.Location {
			dest = append(dest, &locID)
		}
		if params.GroupBy.Item {
			dest = append(dest, &itemID)
		}
		if params.GroupBy.Date {
			dest = append(dest, &date.Year, &date.Month, &date.Day)
		}
		dest = append(dest, &sum)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("store: Aggregate failed to scan group row: %w", err)
		}
		if !sum.Valid {
			// SUM over zero rows in an ungrouped query; nothing matched.
			continue
		}
		if params.GroupBy.Location {
			row.LocID = &locID
		}
		if params.GroupBy.Item {
			row.ItemID = &itemID
		}
		if params.GroupBy.Date {
			row.Date = &date
		}
		row.TotalQty = sum.Float64
		results = append(results, row)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: Aggregate iteration error: %w", err)
	}
	return results, nil
}
