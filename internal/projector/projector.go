// Package projector keeps the Redis order status cache in step with the
// order events on the booking.orders topic.
package projector

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
	kafkax "github.com/ariefcatur/go-tour-booking/internal/kafka"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
)

type StatusWriter interface {
	Set(ctx context.Context, e redisx.StatusEntry) error
}

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Service struct {
	Cache StatusWriter
	Dedup Deduper
	Log   *zap.Logger
}

// HandleOrderEvent is the consumer handler. It returns an error only when
// the message should be retried.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// a malformed message will never decode; skip it
		s.Log.Error("drop undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		return nil
	}

	var entry redisx.StatusEntry
	switch env.EventType {
	case booking.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[booking.OrderCreatedPayload](env.Payload)
		if err != nil || p.Order == nil {
			s.Log.Error("drop bad order.created payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		entry = redisx.StatusEntry{
			OrderID:    p.Order.ID,
			Status:     p.Order.Status,
			CustomerID: p.Order.CustomerID,
			MerchantID: p.Order.MerchantID,
			UpdatedAt:  p.Order.UpdatedAt,
		}
	case booking.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[booking.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			s.Log.Error("drop bad order.status_changed payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		entry = redisx.StatusEntry{
			OrderID:    p.OrderID,
			Status:     p.To,
			CustomerID: p.CustomerID,
			MerchantID: p.MerchantID,
			UpdatedAt:  env.OccurredAt,
		}
	default:
		return nil
	}

	if err := s.Cache.Set(ctx, entry); err != nil {
		return fmt.Errorf("cache order status: %w", err)
	}
	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		s.Log.Warn("dedup mark failed", zap.String("event_id", env.EventID), zap.Error(err))
	}
	s.Log.Debug("order status projected",
		zap.String("order_id", entry.OrderID),
		zap.String("status", string(entry.Status)),
		zap.String("event_id", env.EventID))
	return nil
}
