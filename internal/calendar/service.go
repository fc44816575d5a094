// Package calendar maintains the per-product, per-day price and stock
// entries. Raw dates from callers are normalised to booking.Date here and
// nowhere else.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tour-booking/internal/access"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

// MaxBatch bounds the number of days written in one call.
const MaxBatch = 366

// EntryInput is one day of a batch write as received from a caller.
type EntryInput struct {
	Date       string          `json:"date"`
	Price      decimal.Decimal `json:"price"`
	TotalStock int             `json:"total_stock"`
}

type Service struct {
	repo     booking.CalendarRepo
	products booking.ProductRepo
	events   booking.EventPublisher
	log      *zap.Logger
	clock    func() time.Time
}

func NewService(
	repo booking.CalendarRepo,
	products booking.ProductRepo,
	events booking.EventPublisher,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		products: products,
		events:   events,
		log:      log.Named("calendar"),
		clock:    time.Now,
	}
}

// Upsert writes the same price and stock to every listed day.
func (s *Service) Upsert(ctx context.Context, actor booking.Actor, productID string, dates []string, price decimal.Decimal, stock int, mode booking.WriteMode) ([]booking.Date, error) {
	in := make([]EntryInput, 0, len(dates))
	for _, d := range dates {
		in = append(in, EntryInput{Date: d, Price: price, TotalStock: stock})
	}
	return s.Write(ctx, actor, productID, in, mode)
}

// CreateIfAbsent adds new days; it fails with booking.ErrConflict when any
// day already has an entry.
func (s *Service) CreateIfAbsent(ctx context.Context, actor booking.Actor, productID string, in []EntryInput) ([]booking.Date, error) {
	return s.Write(ctx, actor, productID, in, booking.WriteCreate)
}

// SetPriceStock changes existing days. Seats already reserved stay reserved:
// available stock is re-derived from the new total.
func (s *Service) SetPriceStock(ctx context.Context, actor booking.Actor, productID string, in []EntryInput) ([]booking.Date, error) {
	return s.Write(ctx, actor, productID, in, booking.WriteUpdate)
}

func (s *Service) Write(ctx context.Context, actor booking.Actor, productID string, in []EntryInput, mode booking.WriteMode) ([]booking.Date, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown write mode %q", booking.ErrInvalid, mode)
	}
	entries, err := normalise(in, s.clock().UTC())
	if err != nil {
		return nil, err
	}

	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if err = access.Authorize(actor, access.CalendarWrite, access.Resource{MerchantID: p.MerchantID}); err != nil {
		return nil, err
	}

	if err = s.repo.Save(ctx, productID, entries, mode); err != nil {
		return nil, fmt.Errorf("save calendar: %w", err)
	}

	dates := make([]booking.Date, len(entries))
	for i, e := range entries {
		dates[i] = e.Date
	}

	s.log.Info("calendar written",
		zap.String("product_id", productID),
		zap.String("mode", string(mode)),
		zap.Int("days", len(dates)),
		zap.String("actor_id", actor.ID),
	)
	s.publish(ctx, booking.CalendarChangedPayload{ProductID: productID, Dates: dates, Mode: mode})

	return dates, nil
}

// Entry is an exact-match lookup on the normalised day.
func (s *Service) Entry(ctx context.Context, productID string, day booking.Date) (*booking.CalendarEntry, error) {
	return s.repo.Get(ctx, productID, day)
}

// GetEntry normalises a raw date before the lookup.
func (s *Service) GetEntry(ctx context.Context, productID, rawDate string) (*booking.CalendarEntry, error) {
	day, err := booking.ParseDate(rawDate)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, productID, day)
}

// ListEntries returns the days in [from, to] of a product the actor may see.
// Empty bounds are open.
func (s *Service) ListEntries(ctx context.Context, actor booking.Actor, productID, from, to string) ([]*booking.CalendarEntry, error) {
	var lo, hi booking.Date
	var err error
	if from != "" {
		if lo, err = booking.ParseDate(from); err != nil {
			return nil, err
		}
	}
	if to != "" {
		if hi, err = booking.ParseDate(to); err != nil {
			return nil, err
		}
	}
	if !lo.IsZero() && !hi.IsZero() && hi.Before(lo) {
		return nil, fmt.Errorf("%w: range ends before it starts", booking.ErrInvalid)
	}

	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !access.CanSeeProduct(actor, p) {
		return nil, fmt.Errorf("%w: product %s", booking.ErrNotFound, productID)
	}
	return s.repo.List(ctx, productID, lo, hi)
}

// DeleteEntry removes one day; it fails with booking.ErrConflict while
// pending, confirmed or completed orders reference it.
func (s *Service) DeleteEntry(ctx context.Context, actor booking.Actor, productID, rawDate string) error {
	day, err := booking.ParseDate(rawDate)
	if err != nil {
		return err
	}
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if err = access.Authorize(actor, access.CalendarWrite, access.Resource{MerchantID: p.MerchantID}); err != nil {
		return err
	}
	if err = s.repo.Delete(ctx, productID, day); err != nil {
		return fmt.Errorf("delete calendar entry: %w", err)
	}

	s.log.Info("calendar entry deleted",
		zap.String("product_id", productID),
		zap.Stringer("date", day),
		zap.String("actor_id", actor.ID),
	)
	s.publish(ctx, booking.CalendarChangedPayload{ProductID: productID, Dates: []booking.Date{day}, Deleted: true})
	return nil
}

func (s *Service) publish(ctx context.Context, payload booking.CalendarChangedPayload) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, booking.Event{
		Type:        booking.EventCalendarChanged,
		Aggregate:   booking.AggregateCalendar,
		AggregateID: payload.ProductID,
		OccurredAt:  s.clock().UTC(),
		Payload:     payload,
	})
	if err != nil {
		s.log.Warn("publish calendar event failed", zap.String("product_id", payload.ProductID), zap.Error(err))
	}
}

func normalise(in []EntryInput, now time.Time) ([]booking.CalendarEntry, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: at least one date is required", booking.ErrInvalid)
	}
	if len(in) > MaxBatch {
		return nil, fmt.Errorf("%w: at most %d dates per batch", booking.ErrInvalid, MaxBatch)
	}

	seen := make(map[booking.Date]bool, len(in))
	out := make([]booking.CalendarEntry, 0, len(in))
	var errs []error
	for i, e := range in {
		day, err := booking.ParseDate(e.Date)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		if e.Price.IsNegative() {
			errs = append(errs, fmt.Errorf("entry %d: %w: price must be >= 0", i, booking.ErrInvalid))
		}
		if !e.Price.Equal(e.Price.Round(2)) {
			errs = append(errs, fmt.Errorf("entry %d: %w: price has more than two decimals", i, booking.ErrInvalid))
		}
		if e.TotalStock < 0 {
			errs = append(errs, fmt.Errorf("entry %d: %w: stock must be >= 0", i, booking.ErrInvalid))
		}
		if seen[day] {
			return nil, fmt.Errorf("%w: %s appears twice in the batch", booking.ErrConflict, day)
		}
		seen[day] = true
		out = append(out, booking.CalendarEntry{
			Date:           day,
			Price:          e.Price,
			TotalStock:     e.TotalStock,
			AvailableStock: e.TotalStock,
			UpdatedAt:      now,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
