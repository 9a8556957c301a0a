package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/config"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes each run's newly normalized records to a Kafka topic.
type Writer struct {
	writer    messageWriter
	batchSize int
	logger    *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, batchSize: cfg.BatchSize, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Load serializes every record of the run and publishes them in chunks of
// the configured batch size. Messages are keyed by natural key so updates to
// one record land on one partition in order.
func (w *Writer) Load(ctx context.Context, batch domain.RunBatch) error {
	if batch.Len() == 0 {
		return nil
	}
	processedAt := domain.Now()

	msgs := make([]kafkago.Message, 0, batch.Len())
	for i := range batch.Weather {
		msg, err := serializeToMessage(domain.WeatherDataset, batch.RunID, batch.Weather[i].Key(), batch.Weather[i], processedAt)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	for i := range batch.Collisions {
		msg, err := serializeToMessage(domain.CollisionDataset, batch.RunID, batch.Collisions[i].Key(), batch.Collisions[i], processedAt)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	size := max(w.batchSize, 1)
	for start := 0; start < len(msgs); start += size {
		end := min(start+size, len(msgs))
		if err := w.writer.WriteMessages(ctx, msgs[start:end]...); err != nil {
			return fmt.Errorf("publish messages %d-%d: %w", start, end, err)
		}
	}
	w.logger.Info("records published", "run_id", batch.RunID, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one record into a Kafka message.
func serializeToMessage(ds domain.Dataset, runID, key string, record any, processedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s record %s: %w", ds, key, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "domain", Value: []byte(ds)},
			{Key: "run_id", Value: []byte(runID)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}
