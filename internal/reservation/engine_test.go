package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/booking/bookingtest"
	"github.com/ariefcatur/go-tour-booking/internal/idgen"
	"github.com/ariefcatur/go-tour-booking/internal/memstore"
)

var (
	customer = booking.Actor{Role: booking.RoleCustomer, ID: "c1"}
	merchant = booking.Actor{Role: booking.RoleMerchant, ID: "m1"}
	travel   = booking.NewDate(2026, time.August, 17)
)

type fixture struct {
	store  *memstore.Store
	engine *Engine
	events *bookingtest.Recorder
}

func setup(t *testing.T, status booking.ProductStatus, price string, stock int, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Products().Create(ctx, &booking.Product{
		ID: "prd_1", Number: "P1", MerchantID: "m1", Title: "Island hopping", Status: status,
	}))
	require.NoError(t, store.Calendar().Save(ctx, "prd_1", []booking.CalendarEntry{
		{Date: travel, Price: decimal.RequireFromString(price), TotalStock: stock},
	}, booking.WriteCreate))

	rec := &bookingtest.Recorder{}
	numbers := idgen.New(store.Products(), store.Orders())
	engine := NewEngine(store.Products(), store.Calendar(), store.Orders(), numbers, rec, zaptest.NewLogger(t), opts...)
	return &fixture{store: store, engine: engine, events: rec}
}

func request(fares map[string]int, total string) Request {
	return Request{
		ProductID:     "prd_1",
		Date:          "2026-08-17",
		Fares:         fares,
		ExpectedTotal: decimal.RequireFromString(total),
		CustomerID:    "c1",
	}
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	e, err := f.store.Calendar().Get(context.Background(), "prd_1", travel)
	require.NoError(t, err)
	return e.AvailableStock
}

func TestReserve(t *testing.T) {
	f := setup(t, booking.ProductApproved, "100", 10)

	o, err := f.engine.Reserve(context.Background(), customer, request(map[string]int{"Adult": 2, "child": 1}, "300"))
	require.NoError(t, err)

	assert.Regexp(t, `^ord_`, o.ID)
	assert.Regexp(t, `^T\d{16}$`, o.Number)
	assert.Equal(t, booking.OrderPending, o.Status)
	assert.Equal(t, 3, o.PeopleCount)
	assert.Equal(t, map[string]int{"adult": 2, "child": 1}, o.Fares)
	assert.Equal(t, "m1", o.MerchantID)
	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 7, f.available(t))

	require.Len(t, f.events.Events(), 1)
	payload := f.events.Events()[0].Payload.(booking.OrderCreatedPayload)
	assert.Equal(t, 7, payload.RemainingStock)
}

func TestReserveAcceptsRfc3339Date(t *testing.T) {
	f := setup(t, booking.ProductApproved, "100", 10)
	req := request(map[string]int{"adult": 1}, "100")
	req.Date = "2026-08-17T23:59:00+09:00"

	o, err := f.engine.Reserve(context.Background(), customer, req)
	require.NoError(t, err)
	assert.Equal(t, travel, o.TravelDate)
}

func TestReservePriceMismatch(t *testing.T) {
	f := setup(t, booking.ProductApproved, "100", 10)

	_, err := f.engine.Reserve(context.Background(), customer, request(map[string]int{"adult": 2}, "150"))
	assert.ErrorIs(t, err, booking.ErrPriceMismatch)
	assert.Equal(t, 10, f.available(t))
	assert.Empty(t, f.events.Events())
}

func TestReserveEpsilon(t *testing.T) {
	f := setup(t, booking.ProductApproved, "33.33", 10)

	_, err := f.engine.Reserve(context.Background(), customer, request(map[string]int{"adult": 3}, "100.00"))
	require.NoError(t, err)

	strict := setup(t, booking.ProductApproved, "33.33", 10, WithEpsilon(decimal.Zero))
	_, err = strict.engine.Reserve(context.Background(), customer, request(map[string]int{"adult": 3}, "100.00"))
	assert.ErrorIs(t, err, booking.ErrPriceMismatch)
}

func TestReserveRejectsUnapprovedProduct(t *testing.T) {
	for _, status := range []booking.ProductStatus{
		booking.ProductDraft, booking.ProductPending, booking.ProductRejected, booking.ProductArchived,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := setup(t, status, "100", 10)
			_, err := f.engine.Reserve(context.Background(), customer, request(map[string]int{"adult": 1}, "100"))
			assert.ErrorIs(t, err, booking.ErrInvalid)
		})
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	f := setup(t, booking.ProductApproved, "100", 3)

	_, err := f.engine.Reserve(context.Background(), customer, request(map[string]int{"adult": 4}, "400"))
	require.ErrorIs(t, err, booking.ErrInsufficientStock)
	var stock *booking.InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, 3, stock.Available)
	assert.Equal(t, 4, stock.Requested)
}

func TestReserveValidation(t *testing.T) {
	f := setup(t, booking.ProductApproved, "100", 1000)
	ctx := context.Background()

	cases := map[string]Request{
		"no people":      request(map[string]int{"adult": 0}, "0"),
		"negative count": request(map[string]int{"adult": 2, "child": -1}, "100"),
		"blank category": request(map[string]int{" ": 1}, "100"),
		"bad date":       func() Request { r := request(map[string]int{"adult": 1}, "100"); r.Date = "17/08/2026"; return r }(),
		"too many":       request(map[string]int{"adult": MaxPeople + 1}, "50100"),
		"no product":     func() Request { r := request(map[string]int{"adult": 1}, "100"); r.ProductID = ""; return r }(),
		"negative total": request(map[string]int{"adult": 1}, "-1"),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Reserve(ctx, customer, req)
			assert.ErrorIs(t, err, booking.ErrInvalid)
		})
	}
}

func TestReserveNoAvailability(t *testing.T) {
	f := setup(t, booking.ProductApproved, "100", 10)
	req := request(map[string]int{"adult": 1}, "100")
	req.Date = "2026-08-18"

	_, err := f.engine.Reserve(context.Background(), customer, req)
	assert.ErrorIs(t, err, booking.ErrNoAvailability)
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestReserveForbidden(t *testing.T) {
	f := setup(t, booking.ProductApproved, "100", 10)
	ctx := context.Background()

	_, err := f.engine.Reserve(ctx, merchant, request(map[string]int{"adult": 1}, "100"))
	assert.ErrorIs(t, err, booking.ErrForbidden)

	req := request(map[string]int{"adult": 1}, "100")
	req.CustomerID = "c2"
	_, err = f.engine.Reserve(ctx, customer, req)
	assert.ErrorIs(t, err, booking.ErrForbidden)
}

// Two 8-person reservations race for 10 seats: exactly one wins.
func TestReserveNeverOversells(t *testing.T) {
	f := setup(t, booking.ProductApproved, "100", 10)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		wins  int
		short int
	)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := f.engine.Reserve(ctx, customer, request(map[string]int{"adult": 8}, "800"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, booking.ErrInsufficientStock):
				short++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, short)
	assert.Equal(t, 2, f.available(t))
}

func TestConcurrentReservationsGetUniqueNumbers(t *testing.T) {
	const n = 50
	f := setup(t, booking.ProductApproved, "10", n)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		numbers = map[string]bool{}
	)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			o, err := f.engine.Reserve(ctx, customer, request(map[string]int{"adult": 1}, "10"))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			numbers[o.Number] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, numbers, n)
	assert.Equal(t, 0, f.available(t))
}

type scriptedNumbers struct {
	mu    sync.Mutex
	queue []string
}

func (s *scriptedNumbers) Generate(context.Context, idgen.Kind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.queue[0]
	if len(s.queue) > 1 {
		s.queue = s.queue[1:]
	}
	return n, nil
}

func (s *scriptedNumbers) Attempts() int { return 3 }

// A number that passed the pre-check but lost the insert race is replaced.
func TestReserveRegeneratesCollidingNumber(t *testing.T) {
	f := setup(t, booking.ProductApproved, "100", 10)
	ctx := context.Background()
	script := &scriptedNumbers{queue: []string{"T1", "T1", "T2"}}
	f.engine.numbers = script

	first, err := f.engine.Reserve(ctx, customer, request(map[string]int{"adult": 1}, "100"))
	require.NoError(t, err)
	assert.Equal(t, "T1", first.Number)

	second, err := f.engine.Reserve(ctx, customer, request(map[string]int{"adult": 1}, "100"))
	require.NoError(t, err)
	assert.Equal(t, "T2", second.Number)
	assert.Equal(t, 8, f.available(t))

	script.queue = []string{"T2"}
	_, err = f.engine.Reserve(ctx, customer, request(map[string]int{"adult": 1}, "100"))
	assert.ErrorIs(t, err, booking.ErrExhaustedRetries)
	assert.Equal(t, 8, f.available(t))
}
