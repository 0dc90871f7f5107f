package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "booking-events", quietLogger())
	assert.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "", quietLogger())
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "booking-events", quietLogger())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "booking-events", quietLogger())

	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), Event{
		ID:          "evt-1",
		Type:        TypeBookingUpdated,
		BookingID:   "booking-1",
		DepartureID: "dep-1",
		Trigger:     "payment_succeeded",
		OccurredAt:  occurred,
	})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "booking-1", string(msg.Key))
	assert.Equal(t, occurred, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeBookingUpdated, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "payment_succeeded", decoded.Trigger)
	assert.Equal(t, "dep-1", decoded.DepartureID)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	t.Run("missing booking id", func(t *testing.T) {
		p := newKafkaPublisher(&fakeWriter{}, "booking-events", quietLogger())
		assert.Error(t, p.Publish(context.Background(), Event{Type: TypeBookingCreated}))
	})

	t.Run("writer failure is wrapped", func(t *testing.T) {
		cause := errors.New("broker down")
		p := newKafkaPublisher(&fakeWriter{err: cause}, "booking-events", quietLogger())
		err := p.Publish(context.Background(), Event{Type: TypeBookingCreated, BookingID: "b"})
		assert.ErrorIs(t, err, cause)
	})

	t.Run("closed", func(t *testing.T) {
		w := &fakeWriter{}
		p := newKafkaPublisher(w, "booking-events", quietLogger())
		require.NoError(t, p.Close())
		require.NoError(t, p.Close())
		assert.True(t, w.closed)
		assert.ErrorIs(t, p.Publish(context.Background(), Event{Type: TypeBookingCreated, BookingID: "b"}), ErrPublisherClosed)
	})
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
