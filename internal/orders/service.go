// Package orders is the order lifecycle controller. Orders start pending
// and move to confirmed, rejected or cancelled; only confirmed orders can
// complete. Rejecting or cancelling hands the order's seats back to its
// calendar entry in the same transaction as the status change.
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tour-booking/internal/access"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-tour-booking/internal/orders")

type ListFilter struct {
	Status    booking.OrderStatus
	ProductID string
}

type Service struct {
	repo   booking.OrderRepo
	events booking.EventPublisher
	log    *zap.Logger
	clock  func() time.Time
}

func NewService(repo booking.OrderRepo, events booking.EventPublisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		events: events,
		log:    log.Named("orders"),
		clock:  time.Now,
	}
}

// Get returns the order when the actor may see it, booking.ErrNotFound otherwise.
func (s *Service) Get(ctx context.Context, actor booking.Actor, id string) (*booking.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanSeeOrder(actor, o) {
		return nil, fmt.Errorf("%w: order %s", booking.ErrNotFound, id)
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, actor booking.Actor, f ListFilter) ([]*booking.Order, error) {
	scope, err := access.OrderScope(actor)
	if err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", booking.ErrInvalid, f.Status)
	}
	return s.repo.List(ctx, booking.OrderFilter{Scope: scope, Status: f.Status, ProductID: f.ProductID})
}

func (s *Service) Confirm(ctx context.Context, actor booking.Actor, id string) (*booking.Order, error) {
	return s.transition(ctx, actor, id, access.OrderConfirm, booking.OrderConfirmed, "")
}

func (s *Service) Reject(ctx context.Context, actor booking.Actor, id, reason string) (*booking.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required to reject", booking.ErrInvalid)
	}
	return s.transition(ctx, actor, id, access.OrderReject, booking.OrderRejected, reason)
}

func (s *Service) Cancel(ctx context.Context, actor booking.Actor, id, reason string) (*booking.Order, error) {
	return s.transition(ctx, actor, id, access.OrderCancel, booking.OrderCancelled, strings.TrimSpace(reason))
}

func (s *Service) Complete(ctx context.Context, actor booking.Actor, id string) (*booking.Order, error) {
	return s.transition(ctx, actor, id, access.OrderComplete, booking.OrderCompleted, "")
}

func (s *Service) transition(
	ctx context.Context,
	actor booking.Actor,
	id string,
	action access.Action,
	to booking.OrderStatus,
	reason string,
) (_ *booking.Order, err error) {
	ctx, span := tracer.Start(ctx, string(action))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("order.id", id), attribute.String("actor.role", string(actor.Role)))

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	res := access.Resource{MerchantID: o.MerchantID, CustomerID: o.CustomerID}
	if err = access.Authorize(actor, action, res); err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", booking.ErrIllegalTransition, o.Status, to)
	}

	updated, err := s.repo.Transition(ctx, booking.StatusChange[booking.OrderStatus]{
		ID:     id,
		From:   o.Status,
		To:     to,
		Reason: reason,
		At:     s.clock().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("transition order: %w", err)
	}

	restored := 0
	if to.RestoresStock() {
		restored = updated.PeopleCount
	}
	s.log.Info("order status changed",
		zap.String("order_id", id),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
		zap.Int("restored_stock", restored),
		zap.String("actor_id", actor.ID),
	)
	s.publish(ctx, booking.OrderStatusChangedPayload{
		OrderID:       id,
		Number:        updated.Number,
		CustomerID:    updated.CustomerID,
		MerchantID:    updated.MerchantID,
		From:          o.Status,
		To:            to,
		Reason:        reason,
		RestoredStock: restored,
		ActorID:       actor.ID,
	})
	return updated, nil
}

func (s *Service) publish(ctx context.Context, payload booking.OrderStatusChangedPayload) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, booking.Event{
		Type:        booking.EventOrderStatusChanged,
		Aggregate:   booking.AggregateOrder,
		AggregateID: payload.OrderID,
		OccurredAt:  s.clock().UTC(),
		Payload:     payload,
	})
	if err != nil {
		s.log.Warn("publish order event failed", zap.String("order_id", payload.OrderID), zap.Error(err))
	}
}
