package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/smartcrawl"
	smartkafka "github.com/fwojciec/smartcrawl/kafka"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter records written messages.
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	t.Run("writes the event as json keyed by session", func(t *testing.T) {
		t.Parallel()

		w := &fakeWriter{}
		pub := smartkafka.NewPublisherWithWriter(w, slog.New(slog.DiscardHandler))
		at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		err := pub.Publish(context.Background(), smartcrawl.SessionEvent{
			Type:      smartcrawl.EventURLFinished,
			SessionID: "s1",
			Status:    smartcrawl.StatusRunning,
			Counters:  smartcrawl.Counters{Discovered: 4, Completed: 1},
			Outcome: &smartcrawl.EventOutcome{
				URL:            "https://example.com/",
				Status:         smartcrawl.OutcomeCompleted,
				StatusCode:     200,
				Classification: "success",
			},
			At: at,
		})

		require.NoError(t, err)
		require.Len(t, w.msgs, 1)
		msg := w.msgs[0]
		assert.Equal(t, "s1", string(msg.Key))
		assert.Equal(t, at, msg.Time)
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "type", msg.Headers[0].Key)
		assert.Equal(t, "url.finished", string(msg.Headers[0].Value))

		var body map[string]any
		require.NoError(t, json.Unmarshal(msg.Value, &body))
		assert.Equal(t, "url.finished", body["type"])
		assert.Equal(t, "s1", body["session_id"])
		assert.Equal(t, "running", body["status"])
		assert.InDelta(t, 4, body["counters"].(map[string]any)["discovered"], 0)
		assert.Equal(t, "https://example.com/", body["outcome"].(map[string]any)["url"])
		assert.NotContains(t, body, "reason")
	})

	t.Run("stamps events without a time", func(t *testing.T) {
		t.Parallel()

		w := &fakeWriter{}
		pub := smartkafka.NewPublisherWithWriter(w, slog.New(slog.DiscardHandler))

		require.NoError(t, pub.Publish(context.Background(), smartcrawl.SessionEvent{Type: smartcrawl.EventSessionStarted, SessionID: "s1"}))

		require.Len(t, w.msgs, 1)
		assert.False(t, w.msgs[0].Time.IsZero())
	})

	t.Run("returns write errors", func(t *testing.T) {
		t.Parallel()

		w := &fakeWriter{err: errors.New("leader not available")}
		pub := smartkafka.NewPublisherWithWriter(w, slog.New(slog.DiscardHandler))

		err := pub.Publish(context.Background(), smartcrawl.SessionEvent{Type: smartcrawl.EventSessionStarted, SessionID: "s1"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "session.started")
		assert.Contains(t, err.Error(), "leader not available")
	})
}

func TestPublisher_Close(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	pub := smartkafka.NewPublisherWithWriter(w, slog.New(slog.DiscardHandler))

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestNewPublisher(t *testing.T) {
	t.Parallel()

	pub := smartkafka.NewPublisher(smartkafka.Config{Brokers: []string{"localhost:9092"}}, slog.New(slog.DiscardHandler))

	assert.NoError(t, pub.Close())
}
