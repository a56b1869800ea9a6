// Package kafka publishes ingested points of interest to a Kafka topic so
// downstream consumers can follow catalog changes without polling the store.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/poimap-etl/internal/config"
	"github.com/couchcryptid/poimap-etl/internal/domain"
)

// messageWriter is the part of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per record to the configured topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes and writes records in a single WriteMessages call.
// Keys are record IDs, so a consumer sees each record on one partition.
func (p *Publisher) Publish(ctx context.Context, records []domain.PointOfInterest) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	p.logger.Debug("published records", "count", len(msgs), "category", records[0].Category)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a PointOfInterest into a Kafka message.
func serializeToMessage(poi domain.PointOfInterest) (kafkago.Message, error) {
	data, err := json.Marshal(poi)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize point of interest: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(poi.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(poi.Category)},
			{Key: "ingested_at", Value: []byte(poi.IngestedAt.Format(time.RFC3339))},
		},
	}, nil
}
