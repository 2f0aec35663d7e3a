package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-event-service/internal/domain"
	"sales-event-service/internal/metrics"
	"sales-event-service/internal/store"
	"sales-event-service/internal/timelocal"
)

// fakeAppender records appended params and fails on demand.
type fakeAppender struct {
	appended []store.AppendEventParams
	err      error
}

func (f *fakeAppender) AppendEvent(_ context.Context, params store.AppendEventParams) (*domain.SaleEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.appended = append(f.appended, params)
	return &domain.SaleEvent{ID: int64(len(f.appended))}, nil
}

func newTestConsumer(appender *fakeAppender) (*Consumer, *metrics.Registry) {
	registry := metrics.NewRegistry()
	// The reader is nil on purpose; handleMessage never touches it.
	return &Consumer{events: appender, metrics: registry}, registry
}

func TestHandleMessage_AppendsValidEvent(t *testing.T) {
	appender := &fakeAppender{}
	consumer, registry := newTestConsumer(appender)

	consumer.handleMessage(context.Background(), []byte(`{
		"locid": "L1", "itemid": "I1", "saleqty": 2.5,
		"year": 2024, "month": 3, "day": 15, "hour": 14, "minute": 30,
		"event_timezone": "America/Chicago"
	}`))

	require.Len(t, appender.appended, 1)
	got := appender.appended[0]
	assert.Equal(t, "L1", got.LocID)
	assert.Equal(t, 2.5, got.SaleQty)
	assert.Equal(t, timelocal.Fields{Year: 2024, Month: 3, Day: 15, Hour: 14, Minute: 30}, got.Time)
	assert.Equal(t, "America/Chicago", got.Timezone)
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.EventsAppended))
}

func TestHandleMessage_SkipsMalformedJSON(t *testing.T) {
	appender := &fakeAppender{}
	consumer, registry := newTestConsumer(appender)

	consumer.handleMessage(context.Background(), []byte(`{not json`))

	assert.Empty(t, appender.appended)
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.EventsRejected.WithLabelValues("malformed")))
}

func TestHandleMessage_CountsRejections(t *testing.T) {
	tests := []struct {
		name       string
		storeErr   error
		wantReason string
	}{
		{"invalid calendar", timelocal.ErrInvalidCalendar, "invalid_calendar"},
		{"invalid quantity", store.ErrInvalidQuantity, "invalid_quantity"},
		{"storage failure", errors.New("connection refused"), "store_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appender := &fakeAppender{err: tt.storeErr}
			consumer, registry := newTestConsumer(appender)

			consumer.handleMessage(context.Background(), []byte(`{"saleqty": 1, "year": 2024, "month": 1, "day": 1}`))

			assert.Empty(t, appender.appended)
			assert.Equal(t, 1.0, testutil.ToFloat64(registry.EventsRejected.WithLabelValues(tt.wantReason)))
			assert.Equal(t, 0.0, testutil.ToFloat64(registry.EventsAppended))
		})
	}
}
