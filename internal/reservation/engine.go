// Package reservation turns available calendar stock into pending orders.
//
// Reads before the write are plain validations. The write itself is a
// single storage transaction that locks the calendar row, re-checks stock
// and price under the lock, decrements stock and inserts the order.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tour-booking/internal/access"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/idgen"
)

const (
	idPrefix = "ord_"
	// MaxPeople caps a single booking.
	MaxPeople = 500
)

// DefaultEpsilon is the largest accepted gap between the caller's expected
// total and the computed one.
var DefaultEpsilon = decimal.RequireFromString("0.01")

var tracer = otel.Tracer("github.com/ariefcatur/go-tour-booking/internal/reservation")

type Request struct {
	ProductID string `json:"product_id"`
	Date      string `json:"date"`
	// Fares maps a fare category (adult, child, ...) to a head count.
	Fares         map[string]int  `json:"fares"`
	ExpectedTotal decimal.Decimal `json:"expected_total"`
	CustomerID    string          `json:"customer_id"`
}

type Numberer interface {
	Generate(ctx context.Context, kind idgen.Kind) (string, error)
	Attempts() int
}

type Engine struct {
	products booking.ProductRepo
	calendar booking.CalendarRepo
	orders   booking.OrderRepo
	numbers  Numberer
	events   booking.EventPublisher
	log      *zap.Logger
	epsilon  decimal.Decimal
	clock    func() time.Time
	newID    func() string
}

type Option func(*Engine)

func WithEpsilon(eps decimal.Decimal) Option {
	return func(e *Engine) {
		if !eps.IsNegative() {
			e.epsilon = eps
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func NewEngine(
	products booking.ProductRepo,
	calendar booking.CalendarRepo,
	orders booking.OrderRepo,
	numbers Numberer,
	events booking.EventPublisher,
	log *zap.Logger,
	opts ...Option,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		products: products,
		calendar: calendar,
		orders:   orders,
		numbers:  numbers,
		events:   events,
		log:      log.Named("reservation"),
		epsilon:  DefaultEpsilon,
		clock:    time.Now,
		newID:    func() string { return idPrefix + ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reserve books req.Fares seats on one day of an approved product and
// returns the pending order. Stock is never oversold: the final check runs
// under the calendar row lock.
func (e *Engine) Reserve(ctx context.Context, actor booking.Actor, req Request) (_ *booking.Order, err error) {
	ctx, span := tracer.Start(ctx, "reservation.reserve")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("product.id", req.ProductID), attribute.String("travel.date", req.Date))

	if err = access.Authorize(actor, access.OrderPlace, access.Resource{CustomerID: req.CustomerID}); err != nil {
		return nil, err
	}
	day, fares, people, err := validate(req)
	if err != nil {
		return nil, err
	}

	p, err := e.products.Get(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p.Status != booking.ProductApproved {
		return nil, fmt.Errorf("%w: product is %s, not bookable", booking.ErrInvalid, p.Status)
	}

	entry, err := e.calendar.Get(ctx, p.ID, day)
	if errors.Is(err, booking.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s on %s", booking.ErrNoAvailability, p.ID, day)
	}
	if err != nil {
		return nil, fmt.Errorf("get calendar entry: %w", err)
	}
	if entry.AvailableStock < people {
		return nil, &booking.InsufficientStockError{Available: entry.AvailableStock, Requested: people}
	}

	total := entry.Price.Mul(decimal.NewFromInt(int64(people)))
	if req.ExpectedTotal.Sub(total).Abs().GreaterThan(e.epsilon) {
		return nil, fmt.Errorf("%w: expected %s, computed %s", booking.ErrPriceMismatch, req.ExpectedTotal, total)
	}

	now := e.clock().UTC()
	o := &booking.Order{
		ID:          e.newID(),
		ProductID:   p.ID,
		CustomerID:  req.CustomerID,
		MerchantID:  p.MerchantID,
		TravelDate:  day,
		Fares:       fares,
		PeopleCount: people,
		UnitPrice:   entry.Price,
		TotalPrice:  total,
		Status:      booking.OrderPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	remaining, err := e.place(ctx, o)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Int("stock.remaining", remaining))

	e.log.Info("order reserved",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
		zap.String("product_id", o.ProductID),
		zap.Stringer("travel_date", o.TravelDate),
		zap.Int("people", o.PeopleCount),
		zap.Int("remaining_stock", remaining),
		zap.String("customer_id", o.CustomerID),
	)
	e.publish(ctx, o, remaining)

	return o, nil
}

// place commits the order, drawing a fresh number whenever a concurrent
// writer claimed the previous one first.
func (e *Engine) place(ctx context.Context, o *booking.Order) (int, error) {
	for attempt := 1; ; attempt++ {
		number, err := e.numbers.Generate(ctx, idgen.KindOrder)
		if err != nil {
			return 0, fmt.Errorf("order number: %w", err)
		}
		o.Number = number

		remaining, err := e.orders.Place(ctx, o)
		if err == nil {
			return remaining, nil
		}
		if !errors.Is(err, booking.ErrDuplicateNumber) {
			return 0, fmt.Errorf("place order: %w", err)
		}
		if attempt >= e.numbers.Attempts() {
			return 0, fmt.Errorf("%w: order number kept colliding", booking.ErrExhaustedRetries)
		}
		e.log.Debug("order number collided, regenerating", zap.String("number", number))
	}
}

func (e *Engine) publish(ctx context.Context, o *booking.Order, remaining int) {
	if e.events == nil {
		return
	}
	err := e.events.Publish(ctx, booking.Event{
		Type:        booking.EventOrderCreated,
		Aggregate:   booking.AggregateOrder,
		AggregateID: o.ID,
		OccurredAt:  o.CreatedAt,
		Payload:     booking.OrderCreatedPayload{Order: o, RemainingStock: remaining},
	})
	if err != nil {
		e.log.Warn("publish order event failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func validate(req Request) (booking.Date, map[string]int, int, error) {
	if strings.TrimSpace(req.ProductID) == "" {
		return booking.Date{}, nil, 0, fmt.Errorf("%w: product_id is required", booking.ErrInvalid)
	}
	day, err := booking.ParseDate(req.Date)
	if err != nil {
		return booking.Date{}, nil, 0, err
	}
	if req.ExpectedTotal.IsNegative() {
		return booking.Date{}, nil, 0, fmt.Errorf("%w: expected_total must be >= 0", booking.ErrInvalid)
	}

	fares := make(map[string]int, len(req.Fares))
	people := 0
	for category, n := range req.Fares {
		category = strings.ToLower(strings.TrimSpace(category))
		if category == "" {
			return booking.Date{}, nil, 0, fmt.Errorf("%w: fare category is required", booking.ErrInvalid)
		}
		if n < 0 {
			return booking.Date{}, nil, 0, fmt.Errorf("%w: %s count must be >= 0", booking.ErrInvalid, category)
		}
		if n == 0 {
			continue
		}
		fares[category] += n
		people += n
	}
	if people == 0 {
		return booking.Date{}, nil, 0, fmt.Errorf("%w: at least one person is required", booking.ErrInvalid)
	}
	if people > MaxPeople {
		return booking.Date{}, nil, 0, fmt.Errorf("%w: at most %d people per booking", booking.ErrInvalid, MaxPeople)
	}
	return day, fares, people, nil
}
