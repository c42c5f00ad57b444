// Package publish sends completed day reports to Kafka.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"streetlight_monitor/internal/apperr"
	"streetlight_monitor/internal/engine"
	"streetlight_monitor/internal/logging"
)

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per day report, keyed by entity id.
type Kafka struct {
	w     MessageWriter
	topic string
	log   zerolog.Logger
}

// NewWriter returns a synchronous writer that waits for the leader ack.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		WriteTimeout: 10 * time.Second,
	}
}

func NewKafka(w MessageWriter, topic string) *Kafka {
	return &Kafka{w: w, topic: topic, log: logging.Component("publish")}
}

// Publish implements engine.Sink.
func (k *Kafka) Publish(ctx context.Context, r engine.DayReport) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report %s: %w", r.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(r.Entity),
		Value: value,
		Headers: []kafka.Header{
			{Key: "report_id", Value: []byte(r.ID)},
			{Key: "area", Value: []byte(r.Area)},
			{Key: "date", Value: []byte(r.Date)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return apperr.ExternalService("kafka", err)
	}
	k.log.Debug().Str("topic", k.topic).Str("entity", r.Entity).Str("date", r.Date).Msg("report published")
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}

var _ engine.Sink = (*Kafka)(nil)
