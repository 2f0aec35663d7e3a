// Package ingest bridges a Kafka topic into the event store. Each message
// is one JSON-encoded sale event; messages failing validation are logged,
// counted and skipped so a poison message can never stall the consumer.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"

	"sales-event-service/internal/config"
	"sales-event-service/internal/domain"
	"sales-event-service/internal/metrics"
	"sales-event-service/internal/store"
	"sales-event-service/internal/timelocal"
)

// EventAppender is the slice of the event store the consumer needs.
type EventAppender interface {
	AppendEvent(ctx context.Context, params store.AppendEventParams) (*domain.SaleEvent, error)
}

// eventMessage mirrors the HTTP append payload.
type eventMessage struct {
	LocID         string  `json:"locid"`
	ItemID        string  `json:"itemid"`
	SaleQty       float64 `json:"saleqty"`
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	Day           int     `json:"day"`
	Hour          int     `json:"hour"`
	Minute        int     `json:"minute"`
	Second        int     `json:"second"`
	EventTimezone string  `json:"event_timezone"`
}

// Consumer reads sale events from a topic and appends them to the store.
type Consumer struct {
	reader  *kafka.Reader
	events  EventAppender
	metrics *metrics.Registry
}

func NewConsumer(cfg config.KafkaConfig, events EventAppender, m *metrics.Registry) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, events: events, metrics: m}
}

// Run consumes until ctx is canceled. Only transport errors are returned;
// per-message failures are absorbed.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	log.Printf("INFO: Kafka consumer started on topic %q", c.reader.Config().Topic)

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("INFO: Kafka consumer stopping.")
				return nil
			}
			return fmt.Errorf("ingest: read message: %w", err)
		}
		c.handleMessage(ctx, msg.Value)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, value []byte) {
	var msg eventMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		log.Printf("WARN: skipping malformed event message: %v", err)
		c.metrics.EventsRejected.WithLabelValues("malformed").Inc()
		return
	}

	_, err := c.events.AppendEvent(ctx, store.AppendEventParams{
		LocID:   msg.LocID,
		ItemID:  msg.ItemID,
		SaleQty: msg.SaleQty,
		Time: timelocal.Fields{
			Year:   msg.Year,
			Month:  msg.Month,
			Day:    msg.Day,
			Hour:   msg.Hour,
			Minute: msg.Minute,
			Second: msg.Second,
		},
		Timezone: msg.EventTimezone,
	})
	switch {
	case err == nil:
		c.metrics.EventsAppended.Inc()
	case errors.Is(err, timelocal.ErrInvalidCalendar):
		log.Printf("WARN: skipping event with invalid calendar fields: %v", err)
		c.metrics.EventsRejected.WithLabelValues("invalid_calendar").Inc()
	case errors.Is(err, store.ErrInvalidQuantity):
		log.Printf("WARN: skipping event with invalid quantity: %v", err)
		c.metrics.EventsRejected.WithLabelValues("invalid_quantity").Inc()
	default:
		// Storage failure: worth surfacing loudly, but the message is
		// already committed by the reader group, so log and move on.
		log.Printf("ERROR: failed to append event from topic: %v", err)
		c.metrics.EventsRejected.WithLabelValues("store_error").Inc()
	}
}
