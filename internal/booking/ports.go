package booking

import (
	"context"
	"time"
)

type ProductFilter struct {
	Scope  Scope
	Status ProductStatus
}

type OrderFilter struct {
	Scope     Scope
	Status    OrderStatus
	ProductID string
}

// StatusChange is a compare-and-set on an aggregate's status.
type StatusChange[S ~string] struct {
	ID     string
	From   S
	To     S
	Reason string
	At     time.Time
}

type ProductRepo interface {
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	// UpdateDetails rewrites the editable fields while the status is still p.Status.
	UpdateDetails(ctx context.Context, p *Product) error
	UpdateStatus(ctx context.Context, ch StatusChange[ProductStatus]) (*Product, error)
	// Delete removes the product while its status is still from.
	Delete(ctx context.Context, id string, from ProductStatus) error
	List(ctx context.Context, f ProductFilter) ([]*Product, error)
	NumberExists(ctx context.Context, number string) (bool, error)
}

type CalendarRepo interface {
	// Save writes a batch atomically: either every entry is applied or none.
	// Updates keep reserved seats: available = new total - reserved.
	Save(ctx context.Context, productID string, entries []CalendarEntry, mode WriteMode) error
	Get(ctx context.Context, productID string, day Date) (*CalendarEntry, error)
	// List returns entries in [from, to]; a zero bound is open.
	List(ctx context.Context, productID string, from, to Date) ([]*CalendarEntry, error)
	// Delete fails with ErrConflict while live orders reference the day.
	Delete(ctx context.Context, productID string, day Date) error
}

type OrderRepo interface {
	// Place locks the calendar entry for (o.ProductID, o.TravelDate), re-checks
	// stock and price under the lock, decrements available stock and inserts o,
	// all in one transaction. It returns the stock left after the decrement.
	Place(ctx context.Context, o *Order) (remaining int, err error)
	Get(ctx context.Context, id string) (*Order, error)
	// Transition applies the status change and, when ch.To restores stock,
	// returns the order's seats to its calendar entry in the same transaction.
	Transition(ctx context.Context, ch StatusChange[OrderStatus]) (*Order, error)
	List(ctx context.Context, f OrderFilter) ([]*Order, error)
	NumberExists(ctx context.Context, number string) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
