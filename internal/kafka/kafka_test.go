package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 16, zaptest.NewLogger(t))
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish(context.Background(), []byte("k"), []byte{byte(i)}))
	}
	p.Close()
	p.Close()
	p.WaitClosed()

	assert.Len(t, w.msgs, 5)
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), nil, nil), ErrProducerClosed)
}

func TestProducerPublishRespectsContext(t *testing.T) {
	p := newProducer(&fakeWriter{}, 0, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, nil, nil), context.Canceled)
}

type recordingSink struct {
	key     []byte
	value   []byte
	headers []kafka.Header
}

func (s *recordingSink) Publish(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	s.key, s.value, s.headers = key, value, headers
	return nil
}

func TestPublisherWrapsEnvelope(t *testing.T) {
	orders := &recordingSink{}
	pub := NewPublisher("booking-api", map[string]Sink{TopicOrders: orders}, zaptest.NewLogger(t))

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := pub.Publish(context.Background(), booking.Event{
		Type:        booking.EventOrderStatusChanged,
		Aggregate:   booking.AggregateOrder,
		AggregateID: "ord_1",
		OccurredAt:  at,
		Payload: booking.OrderStatusChangedPayload{
			OrderID: "ord_1", From: booking.OrderPending, To: booking.OrderConfirmed,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("ord_1"), orders.key)
	require.Len(t, orders.headers, 2)
	assert.Equal(t, booking.EventOrderStatusChanged, string(orders.headers[0].Value))

	env, err := DecodeEnvelope(orders.value)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "booking-api", env.Producer)
	assert.Equal(t, "ord_1", env.CorrelationID)
	assert.True(t, at.Equal(env.OccurredAt))

	p, err := UnwrapPayload[booking.OrderStatusChangedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, booking.OrderConfirmed, p.To)
}

func TestPublisherUnknownRoute(t *testing.T) {
	pub := NewPublisher("svc", map[string]Sink{}, zaptest.NewLogger(t))

	err := pub.Publish(context.Background(), booking.Event{Aggregate: "invoice"})
	assert.Error(t, err)

	err = pub.Publish(context.Background(), booking.Event{Aggregate: booking.AggregateProduct, Payload: struct{}{}})
	assert.Error(t, err)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Key: []byte("a"), Offset: 1, Value: []byte("ok")},
		{Key: []byte("a"), Offset: 2, Value: []byte("fail")},
		{Key: []byte("b"), Offset: 3, Value: []byte("ok")},
	}}
	c := newConsumer(r, 2, zaptest.NewLogger(t))
	c.backoff = time.Millisecond

	var (
		mu   sync.Mutex
		seen int
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			seen++
			n := seen
			mu.Unlock()
			if n == 3 {
				defer cancel()
			}
			if string(m.Value) == "fail" {
				return errors.New("boom")
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.NotContains(t, r.committed, int64(2))
	assert.Contains(t, r.committed, int64(1))
}

func TestConsumerLaneIsStable(t *testing.T) {
	c := newConsumer(&fakeReader{}, 4, zaptest.NewLogger(t))
	assert.Equal(t, c.lane([]byte("ord_1")), c.lane([]byte("ord_1")))
	assert.Equal(t, 0, newConsumer(&fakeReader{}, 0, zaptest.NewLogger(t)).lane([]byte("x")))
}

func TestEnvelopeJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte("{"))
	assert.Error(t, err)

	_, err = UnwrapPayload[booking.OrderCreatedPayload](json.RawMessage(`[]`))
	assert.Error(t, err)
}
