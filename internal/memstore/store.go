// Package memstore keeps products, calendar entries and orders in process
// memory behind the same repository ports as the PostgreSQL store. Every
// operation runs under one store-wide lock, so multi-row writes are atomic.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

var (
	_ booking.ProductRepo  = (*ProductRepo)(nil)
	_ booking.CalendarRepo = (*CalendarRepo)(nil)
	_ booking.OrderRepo    = (*OrderRepo)(nil)
)

type calendarKey struct {
	productID string
	day       booking.Date
}

type Store struct {
	mu       sync.Mutex
	products map[string]*booking.Product
	entries  map[calendarKey]*booking.CalendarEntry
	orders   map[string]*booking.Order
	numbers  map[string]string
}

func New() *Store {
	return &Store{
		products: map[string]*booking.Product{},
		entries:  map[calendarKey]*booking.CalendarEntry{},
		orders:   map[string]*booking.Order{},
		numbers:  map[string]string{},
	}
}

func (s *Store) Products() *ProductRepo { return &ProductRepo{s: s} }
func (s *Store) Calendar() *CalendarRepo { return &CalendarRepo{s: s} }
func (s *Store) Orders() *OrderRepo { return &OrderRepo{s: s} }

func (s *Store) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	return nil
}

func (s *Store) hasLiveOrders(match func(o *booking.Order) bool) bool {
	for _, o := range s.orders {
		if slices.Contains(booking.LiveOrderStatuses, o.Status) && match(o) {
			return true
		}
	}
	return false
}

type ProductRepo struct{ s *Store }

func (r *ProductRepo) Create(ctx context.Context, p *booking.Product) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.numbers[p.Number]; ok {
		return booking.ErrDuplicateNumber
	}
	if _, ok := r.s.products[p.ID]; ok {
		return fmt.Errorf("%w: product %s already exists", booking.ErrConflict, p.ID)
	}
	r.s.products[p.ID] = cloneProduct(p)
	r.s.numbers[p.Number] = p.ID
	return nil
}

func (r *ProductRepo) Get(ctx context.Context, id string) (*booking.Product, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", booking.ErrNotFound, id)
	}
	return cloneProduct(p), nil
}

func (r *ProductRepo) UpdateDetails(ctx context.Context, p *booking.Product) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	cur, ok := r.s.products[p.ID]
	if !ok {
		return fmt.Errorf("%w: product %s", booking.ErrNotFound, p.ID)
	}
	if cur.Status != p.Status {
		return fmt.Errorf("%w: product is %s", booking.ErrIllegalTransition, cur.Status)
	}
	cur.Title = p.Title
	cur.Description = p.Description
	cur.PosterURL = p.PosterURL
	cur.BasePrice = p.BasePrice
	cur.UpdatedAt = p.UpdatedAt
	return nil
}

func (r *ProductRepo) UpdateStatus(ctx context.Context, ch booking.StatusChange[booking.ProductStatus]) (*booking.Product, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	cur, ok := r.s.products[ch.ID]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", booking.ErrNotFound, ch.ID)
	}
	if cur.Status != ch.From {
		return nil, fmt.Errorf("%w: product is %s, not %s", booking.ErrIllegalTransition, cur.Status, ch.From)
	}
	cur.Status = ch.To
	cur.RejectionReason = ""
	if ch.To == booking.ProductRejected {
		cur.RejectionReason = ch.Reason
	}
	cur.UpdatedAt = ch.At
	return cloneProduct(cur), nil
}

func (r *ProductRepo) Delete(ctx context.Context, id string, from booking.ProductStatus) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	cur, ok := r.s.products[id]
	if !ok {
		return fmt.Errorf("%w: product %s", booking.ErrNotFound, id)
	}
	if cur.Status != from {
		return fmt.Errorf("%w: product is %s", booking.ErrIllegalTransition, cur.Status)
	}
	for _, o := range r.s.orders {
		if o.ProductID == id {
			return fmt.Errorf("%w: product %s has orders", booking.ErrConflict, id)
		}
	}
	for k := range r.s.entries {
		if k.productID == id {
			delete(r.s.entries, k)
		}
	}
	delete(r.s.numbers, cur.Number)
	delete(r.s.products, id)
	return nil
}

func (r *ProductRepo) List(ctx context.Context, f booking.ProductFilter) ([]*booking.Product, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*booking.Product
	for _, p := range r.s.products {
		if !f.Scope.MatchesProduct(p) {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	slices.SortFunc(out, func(a, b *booking.Product) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (r *ProductRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	if err := r.s.lock(ctx); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()
	_, ok := r.s.numbers[number]
	return ok, nil
}

type CalendarRepo struct{ s *Store }

func (r *CalendarRepo) Save(ctx context.Context, productID string, entries []booking.CalendarEntry, mode booking.WriteMode) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[productID]; !ok {
		return fmt.Errorf("%w: product %s", booking.ErrNotFound, productID)
	}

	// validate the whole batch before touching anything
	for _, e := range entries {
		cur, exists := r.s.entries[calendarKey{productID, e.Date}]
		switch {
		case exists && mode == booking.WriteCreate:
			return fmt.Errorf("%w: %s already has an entry", booking.ErrConflict, e.Date)
		case !exists && mode == booking.WriteUpdate:
			return fmt.Errorf("%w: no entry on %s", booking.ErrNotFound, e.Date)
		case exists && e.TotalStock < cur.Reserved():
			return fmt.Errorf("%w: %s has %d seats reserved, total stock %d is too low",
				booking.ErrConflict, e.Date, cur.Reserved(), e.TotalStock)
		}
	}

	for _, e := range entries {
		key := calendarKey{productID, e.Date}
		if cur, ok := r.s.entries[key]; ok {
			cur.AvailableStock = e.TotalStock - cur.Reserved()
			cur.TotalStock = e.TotalStock
			cur.Price = e.Price
			cur.UpdatedAt = e.UpdatedAt
			continue
		}
		created := e
		created.ProductID = productID
		created.AvailableStock = e.TotalStock
		r.s.entries[key] = &created
	}
	return nil
}

func (r *CalendarRepo) Get(ctx context.Context, productID string, day booking.Date) (*booking.CalendarEntry, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	e, ok := r.s.entries[calendarKey{productID, day}]
	if !ok {
		return nil, fmt.Errorf("%w: product %s on %s", booking.ErrNotFound, productID, day)
	}
	cp := *e
	return &cp, nil
}

func (r *CalendarRepo) List(ctx context.Context, productID string, from, to booking.Date) ([]*booking.CalendarEntry, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*booking.CalendarEntry
	for k, e := range r.s.entries {
		if k.productID != productID {
			continue
		}
		if !from.IsZero() && k.day.Before(from) {
			continue
		}
		if !to.IsZero() && k.day.After(to) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *booking.CalendarEntry) int {
		return a.Date.Time().Compare(b.Date.Time())
	})
	return out, nil
}

func (r *CalendarRepo) Delete(ctx context.Context, productID string, day booking.Date) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	key := calendarKey{productID, day}
	if _, ok := r.s.entries[key]; !ok {
		return fmt.Errorf("%w: product %s on %s", booking.ErrNotFound, productID, day)
	}
	if r.s.hasLiveOrders(func(o *booking.Order) bool {
		return o.ProductID == productID && o.TravelDate == day
	}) {
		return fmt.Errorf("%w: live orders reference %s", booking.ErrConflict, day)
	}
	delete(r.s.entries, key)
	return nil
}

type OrderRepo struct{ s *Store }

func (r *OrderRepo) Place(ctx context.Context, o *booking.Order) (int, error) {
	if err := r.s.lock(ctx); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()

	p, ok := r.s.products[o.ProductID]
	if !ok {
		return 0, fmt.Errorf("%w: product %s", booking.ErrNotFound, o.ProductID)
	}
	if p.Status != booking.ProductApproved {
		return 0, fmt.Errorf("%w: product is %s, not bookable", booking.ErrInvalid, p.Status)
	}
	e, ok := r.s.entries[calendarKey{o.ProductID, o.TravelDate}]
	if !ok {
		return 0, fmt.Errorf("%w: product %s on %s", booking.ErrNoAvailability, o.ProductID, o.TravelDate)
	}
	if !e.Price.Equal(o.UnitPrice) {
		return 0, fmt.Errorf("%w: price changed to %s", booking.ErrPriceMismatch, e.Price)
	}
	if e.AvailableStock < o.PeopleCount {
		return 0, &booking.InsufficientStockError{Available: e.AvailableStock, Requested: o.PeopleCount}
	}
	if _, ok := r.s.numbers[o.Number]; ok {
		return 0, booking.ErrDuplicateNumber
	}
	if _, ok := r.s.orders[o.ID]; ok {
		return 0, fmt.Errorf("%w: order %s already exists", booking.ErrConflict, o.ID)
	}

	e.AvailableStock -= o.PeopleCount
	r.s.orders[o.ID] = cloneOrder(o)
	r.s.numbers[o.Number] = o.ID
	return e.AvailableStock, nil
}

func (r *OrderRepo) Get(ctx context.Context, id string) (*booking.Order, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", booking.ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (r *OrderRepo) Transition(ctx context.Context, ch booking.StatusChange[booking.OrderStatus]) (*booking.Order, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[ch.ID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", booking.ErrNotFound, ch.ID)
	}
	if o.Status != ch.From {
		return nil, fmt.Errorf("%w: order is %s, not %s", booking.ErrIllegalTransition, o.Status, ch.From)
	}
	if ch.To.RestoresStock() {
		if e, ok := r.s.entries[calendarKey{o.ProductID, o.TravelDate}]; ok {
			e.AvailableStock = min(e.AvailableStock+o.PeopleCount, e.TotalStock)
		}
	}
	o.Status = ch.To
	o.Reason = ch.Reason
	o.UpdatedAt = ch.At
	return cloneOrder(o), nil
}

func (r *OrderRepo) List(ctx context.Context, f booking.OrderFilter) ([]*booking.Order, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*booking.Order
	for _, o := range r.s.orders {
		if !f.Scope.MatchesOrder(o) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.ProductID != "" && o.ProductID != f.ProductID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	slices.SortFunc(out, func(a, b *booking.Order) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (r *OrderRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	if err := r.s.lock(ctx); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()
	_, ok := r.s.numbers[number]
	return ok, nil
}

func cloneProduct(p *booking.Product) *booking.Product {
	cp := *p
	return &cp
}

func cloneOrder(o *booking.Order) *booking.Order {
	cp := *o
	cp.Fares = maps.Clone(o.Fares)
	return &cp
}

func newestFirst(a, b time.Time, aID, bID string) int {
	if c := b.Compare(a); c != 0 {
		return c
	}
	switch {
	case aID < bID:
		return -1
	case aID > bID:
		return 1
	}
	return 0
}
