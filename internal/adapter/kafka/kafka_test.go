package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	calls [][]kafkago.Message
	err   error
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, msgs)
	return nil
}

func (r *recordingWriter) Close() error { return nil }

func testWriter(mw messageWriter, batchSize int) *Writer {
	return &Writer{writer: mw, batchSize: batchSize, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func testBatch(t *testing.T) domain.RunBatch {
	t.Helper()
	weather, _ := domain.NormalizeWeather(domain.RawBatch{Rows: []domain.RawRow{
		{"region": "MANHATTAN", "timestamp": "2024-01-15T08:00", "rain": "1"},
		{"region": "QUEENS", "timestamp": "2024-01-15T08:00"},
	}})
	collisions, _ := domain.NormalizeCollisions(domain.RawBatch{Rows: []domain.RawRow{
		{"collision_id": "4700001", "crash_date": "2024-01-15", "crash_time": "17:40", "borough": "BROOKLYN", "number_of_persons_killed": "1"},
	}})
	return domain.RunBatch{RunID: "20240116_060000", Weather: weather, Collisions: collisions}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC)
	rec := testBatch(t).Collisions[0]

	msg, err := serializeToMessage(domain.CollisionDataset, "run-1", rec.Key(), rec, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("4700001"), msg.Key)
	assert.Contains(t, string(msg.Value), `"severity_level":"FATAL"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "domain", msg.Headers[0].Key)
	assert.Equal(t, []byte("collisions"), msg.Headers[0].Value)
	assert.Equal(t, "run_id", msg.Headers[1].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[1].Value)
	assert.Equal(t, "processed_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestLoad_PublishesAllRecordsInChunks(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	rw := &recordingWriter{}
	w := testWriter(rw, 2)

	require.NoError(t, w.Load(context.Background(), testBatch(t)))

	require.Len(t, rw.calls, 2)
	assert.Len(t, rw.calls[0], 2)
	assert.Len(t, rw.calls[1], 1)

	weatherMsg := rw.calls[0][0]
	assert.Equal(t, "MANHATTAN|2024-01-15T13:00:00Z", string(weatherMsg.Key))
	var body map[string]any
	require.NoError(t, json.Unmarshal(weatherMsg.Value, &body))
	assert.Equal(t, "RAIN", body["weather_category"])
	assert.Equal(t, "MANHATTAN", body["region"])

	assert.Equal(t, []byte("collisions"), rw.calls[1][0].Headers[0].Value)
}

func TestLoad_EmptyBatchSkipsWrite(t *testing.T) {
	rw := &recordingWriter{err: errors.New("should not be called")}
	w := testWriter(rw, 10)

	require.NoError(t, w.Load(context.Background(), domain.RunBatch{RunID: "empty"}))
	assert.Empty(t, rw.calls)
}

func TestLoad_WriteError(t *testing.T) {
	rw := &recordingWriter{err: errors.New("broker unavailable")}
	w := testWriter(rw, 10)

	err := w.Load(context.Background(), testBatch(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Equal(t, "kafka", w.Name())
}
