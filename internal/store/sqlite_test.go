package store

// End-to-end properties of the store exercised against a real in-memory
// SQLite database (pure-Go driver), complementing the sqlmock unit tests.

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"sales-event-service/internal/domain"
	"sales-event-service/internal/geo"
	"sales-event-service/internal/timelocal"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A single connection keeps the in-memory database alive and serializes
	// writes under the pure-Go driver.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := NewSQLiteStore(db)
	require.NoError(t, s.InitSchema(context.Background()))
	return s
}

func appendAt(t *testing.T, s *SQLStore, locID, itemID string, qty float64, y, mo, d int) *domain.SaleEvent {
	t.Helper()
	event, err := s.AppendEvent(context.Background(), AppendEventParams{
		LocID:    locID,
		ItemID:   itemID,
		SaleQty:  qty,
		Time:     timelocal.Fields{Year: y, Month: mo, Day: d, Hour: 12, Minute: 0, Second: 0},
		Timezone: "UTC",
	})
	require.NoError(t, err)
	return event
}

func TestSQLite_WriteThenReadVisibility(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	event := appendAt(t, s, "L1", "I1", 2, 2024, 3, 15)

	seq, err := s.QueryEvents(ctx, QueryEventsParams{
		LocID:    PtrTo("L1"),
		ItemID:   PtrTo("I1"),
		DateFrom: &timelocal.Date{Year: 2024, Month: 3, Day: 15},
		DateTo:   &timelocal.Date{Year: 2024, Month: 3, Day: 15},
	})
	require.NoError(t, err)
	events, err := Collect(seq)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
	assert.Equal(t, "L1", events[0].LocID)
	assert.Equal(t, 2.0, events[0].SaleQty)
	assert.Equal(t, "UTC", events[0].EventTimezone)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestSQLite_ZeroQuantityIsAValidLoggedEvent(t *testing.T) {
	s := newSQLiteStore(t)

	event := appendAt(t, s, "L1", "I1", 0, 2024, 1, 1)
	assert.Greater(t, event.ID, int64(0))

	fetched, err := s.GetSaleEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fetched.SaleQty)
}

func TestSQLite_DateRangeBoundsAreInclusive(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	appendAt(t, s, "L1", "I1", 1, 2023, 12, 31)
	first := appendAt(t, s, "L1", "I1", 1, 2024, 1, 1)
	appendAt(t, s, "L1", "I1", 1, 2024, 1, 15)
	last := appendAt(t, s, "L1", "I1", 1, 2024, 1, 31)
	appendAt(t, s, "L1", "I1", 1, 2024, 2, 1)

	seq, err := s.QueryEvents(ctx, QueryEventsParams{
		DateFrom: &timelocal.Date{Year: 2024, Month: 1, Day: 1},
		DateTo:   &timelocal.Date{Year: 2024, Month: 1, Day: 31},
	})
	require.NoError(t, err)
	events, err := Collect(seq)
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, first.ID, events[0].ID, "results ordered by ascending id")
	assert.Equal(t, last.ID, events[2].ID)
}

func TestSQLite_UpsertItemLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	created, err := s.UpsertItem(ctx, testItem("widget-1", "Widget", "first", ""))
	require.NoError(t, err)
	assert.Equal(t, "ea", created.UnitOfSale)
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	time.Sleep(10 * time.Millisecond)

	updated, err := s.UpsertItem(ctx, testItem("widget-1", "Widget v2", "second", "box"))
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", updated.Name)
	assert.Equal(t, "box", updated.UnitOfSale)
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt), "created_at is held forever")
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt), "updated_at strictly advances")
}

func TestSQLite_UpsertLocationLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	loc := &domain.Location{
		LocID:     "L1",
		Name:      "Main Street",
		Latitude:  "41.8781",
		Longitude: "-87.6298",
	}
	created, err := s.UpsertLocation(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, "41.8781", created.Latitude, "coordinate text preserved verbatim")
	assert.Equal(t, "retail", created.StoreCategory)
	assert.Equal(t, "store", created.LocationCategory)

	fetched, err := s.GetLocation(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "-87.6298", fetched.Longitude)

	_, err = s.GetLocation(ctx, "L2")
	assert.True(t, errors.Is(err, ErrLocationNotFound))
}

func TestSQLite_UnknownReferenceFlag(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	appendAt(t, s, "L1", "I1", 1, 2024, 5, 1)

	query := QueryEventsParams{LocID: PtrTo("L1"), CheckRefs: true}

	seq, err := s.QueryEvents(ctx, query)
	require.NoError(t, err)
	events, err := Collect(seq)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].UnknownLocation, "no catalog row for L1 yet")
	assert.True(t, events[0].UnknownItem)

	_, err = s.UpsertLocation(ctx, &domain.Location{LocID: "L1", Name: "Pop-up"})
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, testItem("I1", "Widget", "", ""))
	require.NoError(t, err)

	seq, err = s.QueryEvents(ctx, query)
	require.NoError(t, err)
	events, err = Collect(seq)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].UnknownLocation, "reference resolves after catalog write")
	assert.False(t, events[0].UnknownItem)
}

func TestSQLite_AggregateMatchesFullScan(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	items := []string{"I1", "I2", "I3"}
	for day := 1; day <= 5; day++ {
		for i, itemID := range items {
			appendAt(t, s, "L1", itemID, float64(day*(i+1)), 2024, 4, day)
		}
	}
	// Outside the aggregation range.
	appendAt(t, s, "L1", "I1", 100, 2024, 5, 1)

	dateFrom := &timelocal.Date{Year: 2024, Month: 4, Day: 1}
	dateTo := &timelocal.Date{Year: 2024, Month: 4, Day: 30}

	rows, err := s.Aggregate(ctx, AggregateParams{
		DateFrom: dateFrom,
		DateTo:   dateTo,
		GroupBy:  GroupBy{Item: true},
	})
	require.NoError(t, err)
	require.Len(t, rows, len(items))

	// Cross-check: the grouped sums must equal sums computed from a raw scan
	// over the same filters.
	seq, err := s.QueryEvents(ctx, QueryEventsParams{DateFrom: dateFrom, DateTo: dateTo})
	require.NoError(t, err)
	events, err := Collect(seq)
	require.NoError(t, err)

	manual := map[string]float64{}
	for _, e := range events {
		manual[e.ItemID] += e.SaleQty
	}

	for _, row := range rows {
		require.NotNil(t, row.ItemID)
		assert.InDelta(t, manual[*row.ItemID], row.TotalQty, 1e-9, "group %s", *row.ItemID)
	}
}

func TestSQLite_AggregateByItemAndDate(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	appendAt(t, s, "L1", "I1", 1, 2024, 4, 1)
	appendAt(t, s, "L1", "I1", 2, 2024, 4, 1)
	appendAt(t, s, "L1", "I1", 5, 2024, 4, 2)

	rows, err := s.Aggregate(ctx, AggregateParams{GroupBy: GroupBy{Item: true, Date: true}})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "I1", *rows[0].ItemID)
	assert.Equal(t, timelocal.Date{Year: 2024, Month: 4, Day: 1}, *rows[0].Date)
	assert.InDelta(t, 3.0, rows[0].TotalQty, 1e-9)
	assert.Equal(t, timelocal.Date{Year: 2024, Month: 4, Day: 2}, *rows[1].Date)
	assert.InDelta(t, 5.0, rows[1].TotalQty, 1e-9)
}

func TestSQLite_AggregateOmitsEmptyGroups(t *testing.T) {
	s := newSQLiteStore(t)

	appendAt(t, s, "L1", "I1", 1, 2024, 4, 1)

	rows, err := s.Aggregate(context.Background(), AggregateParams{
		ItemID:  PtrTo("I9"),
		GroupBy: GroupBy{Item: true},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Ungrouped sum over no matches yields no row rather than a zero row.
	rows, err = s.Aggregate(context.Background(), AggregateParams{ItemID: PtrTo("I9")})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLite_BoundingBoxExcludesUnparsableCoordinates(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	locations := []*domain.Location{
		{LocID: "inside", Name: "Inside", Latitude: "5.0", Longitude: "5.0"},
		{LocID: "outside", Name: "Outside", Latitude: "50.0", Longitude: "50.0"},
		{LocID: "broken", Name: "Broken", Latitude: "unknown", Longitude: "5.0"},
	}
	for _, loc := range locations {
		_, err := s.UpsertLocation(ctx, loc)
		require.NoError(t, err)
	}
	appendAt(t, s, "inside", "I1", 1, 2024, 4, 1)
	appendAt(t, s, "outside", "I1", 1, 2024, 4, 1)
	appendAt(t, s, "broken", "I1", 1, 2024, 4, 1)

	seq, err := s.QueryEvents(ctx, QueryEventsParams{
		Box: &geo.BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10},
	})
	require.NoError(t, err)
	events, err := Collect(seq)
	require.NoError(t, err)

	require.Len(t, events, 1, "unparsable coordinates exclude the location, not the query")
	assert.Equal(t, "inside", events[0].LocID)
}

func TestSQLite_InstantOrderingFailsClosedPerRecord(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	appendEvent := func(tz string, hour int) *domain.SaleEvent {
		event, err := s.AppendEvent(ctx, AppendEventParams{
			LocID:    "L1",
			ItemID:   "I1",
			SaleQty:  1,
			Time:     timelocal.Fields{Year: 2024, Month: 6, Day: 1, Hour: hour},
			Timezone: tz,
		})
		require.NoError(t, err)
		return event
	}

	// Same calendar day: 09:00 Tokyo is the earliest instant even though its
	// local fields sort after 08:00 New York.
	newYork := appendEvent("America/New_York", 8)
	tokyo := appendEvent("Asia/Tokyo", 9)
	appendEvent("Mars/OlympusMons", 10)
	appendEvent("", 11)

	views, excluded, err := s.QueryEventsByInstant(ctx, QueryEventsParams{LocID: PtrTo("L1")})
	require.NoError(t, err)

	assert.Equal(t, 2, excluded, "unresolvable and unspecified zones are dropped, not fatal")
	require.Len(t, views, 2)
	assert.Equal(t, tokyo.ID, views[0].ID)
	assert.Equal(t, newYork.ID, views[1].ID)
}

func TestSQLite_InstantOrderingPaginatesAfterSort(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	appendHour := func(hour int) *domain.SaleEvent {
		event, err := s.AppendEvent(ctx, AppendEventParams{
			LocID:    "L1",
			ItemID:   "I1",
			SaleQty:  1,
			Time:     timelocal.Fields{Year: 2024, Month: 6, Day: 1, Hour: hour},
			Timezone: "UTC",
		})
		require.NoError(t, err)
		return event
	}

	// Instant order (noon, midnight, 01:00) inverts id order, so a page
	// taken off the id-ordered scan would return the wrong events.
	noon := appendHour(12)
	midnight := appendHour(0)
	one := appendHour(1)

	views, excluded, err := s.QueryEventsByInstant(ctx, QueryEventsParams{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, excluded)
	require.Len(t, views, 2)
	assert.Equal(t, midnight.ID, views[0].ID, "page 1 holds the globally earliest instants")
	assert.Equal(t, one.ID, views[1].ID)

	views, _, err = s.QueryEventsByInstant(ctx, QueryEventsParams{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, noon.ID, views[0].ID)

	views, _, err = s.QueryEventsByInstant(ctx, QueryEventsParams{Limit: 2, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, views, "offset past the end yields an empty page, not an error")
}

func TestSQLite_BulkAppendEvents(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	events, err := s.BulkAppendEvents(ctx, []AppendEventParams{
		{LocID: "L1", ItemID: "I1", SaleQty: 1, Time: timelocal.Fields{Year: 2024, Month: 1, Day: 1, Hour: 9}, Timezone: "UTC"},
		{LocID: "L1", ItemID: "I2", SaleQty: 2, Time: timelocal.Fields{Year: 2024, Month: 1, Day: 2, Hour: 9}, Timezone: "UTC"},
		{LocID: "L2", ItemID: "I1", SaleQty: 3, Time: timelocal.Fields{Year: 2024, Month: 1, Day: 3, Hour: 9}, Timezone: "UTC"},
	})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Greater(t, events[1].ID, events[0].ID, "ids assigned in batch order")
	assert.Greater(t, events[2].ID, events[1].ID)

	count, err := s.CountEvents(ctx, QueryEventsParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLite_BulkAppendEvents_NothingPersistedOnInvalidEntry(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.BulkAppendEvents(ctx, []AppendEventParams{
		{LocID: "L1", ItemID: "I1", SaleQty: 1, Time: timelocal.Fields{Year: 2024, Month: 1, Day: 1}},
		{LocID: "L1", ItemID: "I1", SaleQty: -5, Time: timelocal.Fields{Year: 2024, Month: 1, Day: 2}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	count, err := s.CountEvents(ctx, QueryEventsParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, count, "the valid entry must not survive the rejected batch")
}

func TestSQLite_SurrogateIDsAreUniqueUnderConcurrentAppends(t *testing.T) {
	s := newSQLiteStore(t)

	const workers = 4
	const perWorker = 25

	var mu sync.Mutex
	seen := map[int64]bool{}
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				event, err := s.AppendEvent(context.Background(), AppendEventParams{
					LocID:   "L1",
					ItemID:  "I1",
					SaleQty: 1,
					Time:    timelocal.Fields{Year: 2024, Month: 1, Day: 1, Hour: 1},
				})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[event.ID], "id %d assigned twice", event.ID)
				seen[event.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestSQLite_SequenceIsAbandonable(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		appendAt(t, s, "L1", "I1", 1, 2024, 1, 1)
	}

	seq, err := s.QueryEvents(ctx, QueryEventsParams{})
	require.NoError(t, err)
	require.True(t, seq.Next())
	require.NoError(t, seq.Close(), "abandoning mid-sequence releases the cursor")

	// The store remains fully usable afterwards.
	appendAt(t, s, "L1", "I1", 1, 2024, 1, 2)
	count, err := s.CountEvents(ctx, QueryEventsParams{})
	require.NoError(t, err)
	assert.Equal(t, 11, count)
}

func TestSQLite_QueryWithLimitOffsetIsRestartable(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 7; i++ {
		ids = append(ids, appendAt(t, s, "L1", "I1", 1, 2024, 1, 1+i).ID)
	}

	var paged []int64
	for offset := 0; ; offset += 3 {
		seq, err := s.QueryEvents(ctx, QueryEventsParams{Limit: 3, Offset: offset})
		require.NoError(t, err)
		events, err := Collect(seq)
		require.NoError(t, err)
		if len(events) == 0 {
			break
		}
		for _, e := range events {
			paged = append(paged, e.ID)
		}
	}

	assert.Equal(t, ids, paged, "paging restarts yield the full sequence in order")
}
