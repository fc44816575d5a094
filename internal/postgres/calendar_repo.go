package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

var _ booking.CalendarRepo = (*CalendarRepo)(nil)

const calendarColumns = `product_id, day, price::text, total_stock, available_stock, updated_at`

type CalendarRepo struct{ s *Store }

func scanEntry(row rowScanner) (*booking.CalendarEntry, error) {
	var (
		e     booking.CalendarEntry
		day   time.Time
		price string
	)
	if err := row.Scan(&e.ProductID, &day, &price, &e.TotalStock, &e.AvailableStock, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Date = booking.DateOf(day)
	var err error
	if e.Price, err = parseMoney(price); err != nil {
		return nil, err
	}
	return &e, nil
}

// Save locks every touched row in date order so concurrent batches cannot
// deadlock on each other.
func (r *CalendarRepo) Save(ctx context.Context, productID string, entries []booking.CalendarEntry, mode booking.WriteMode) error {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b booking.CalendarEntry) int {
		return a.Date.Time().Compare(b.Date.Time())
	})

	return r.s.inTx(ctx, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM products WHERE id = $1 FOR SHARE`, productID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: product %s", booking.ErrNotFound, productID)
		}
		if err != nil {
			return err
		}

		for _, e := range sorted {
			var total, available int
			err := tx.QueryRow(ctx, `
				SELECT total_stock, available_stock
				  FROM calendar_entries
				 WHERE product_id = $1 AND day = $2
				   FOR UPDATE`,
				productID, e.Date.Time(),
			).Scan(&total, &available)
			exists := err == nil
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}

			switch {
			case exists && mode == booking.WriteCreate:
				return fmt.Errorf("%w: %s already has an entry", booking.ErrConflict, e.Date)
			case !exists && mode == booking.WriteUpdate:
				return fmt.Errorf("%w: no entry on %s", booking.ErrNotFound, e.Date)
			case !exists:
				_, err = tx.Exec(ctx, `
					INSERT INTO calendar_entries (product_id, day, price, total_stock, available_stock, updated_at)
					VALUES ($1, $2, $3::text::numeric, $4, $4, $5)`,
					productID, e.Date.Time(), e.Price.String(), e.TotalStock, e.UpdatedAt,
				)
				if err != nil {
					return err
				}
				continue
			}

			reserved := total - available
			if e.TotalStock < reserved {
				return fmt.Errorf("%w: %s has %d seats reserved, total stock %d is too low",
					booking.ErrConflict, e.Date, reserved, e.TotalStock)
			}
			_, err = tx.Exec(ctx, `
				UPDATE calendar_entries
				   SET price = $3::text::numeric, total_stock = $4, available_stock = $5, updated_at = $6
				 WHERE product_id = $1 AND day = $2`,
				productID, e.Date.Time(), e.Price.String(), e.TotalStock, e.TotalStock-reserved, e.UpdatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *CalendarRepo) Get(ctx context.Context, productID string, day booking.Date) (*booking.CalendarEntry, error) {
	e, err := scanEntry(r.s.DB.QueryRow(ctx,
		`SELECT `+calendarColumns+` FROM calendar_entries WHERE product_id = $1 AND day = $2`,
		productID, day.Time(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s on %s", booking.ErrNotFound, productID, day)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return e, nil
}

func (r *CalendarRepo) List(ctx context.Context, productID string, from, to booking.Date) ([]*booking.CalendarEntry, error) {
	var w where
	w.add("product_id = %s", productID)
	if !from.IsZero() {
		w.add("day >= %s", from.Time())
	}
	if !to.IsZero() {
		w.add("day <= %s", to.Time())
	}

	rows, err := r.s.DB.Query(ctx, `SELECT `+calendarColumns+` FROM calendar_entries`+w.String()+` ORDER BY day`, w.args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*booking.CalendarEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, e)
	}
	return out, mapError(rows.Err())
}

func (r *CalendarRepo) Delete(ctx context.Context, productID string, day booking.Date) error {
	return r.s.inTx(ctx, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `
			SELECT 1 FROM calendar_entries
			 WHERE product_id = $1 AND day = $2
			   FOR UPDATE`,
			productID, day.Time(),
		).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: product %s on %s", booking.ErrNotFound, productID, day)
		}
		if err != nil {
			return err
		}

		var live bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM orders
				 WHERE product_id = $1 AND travel_date = $2 AND status = ANY($3)
			)`,
			productID, day.Time(), liveStatuses(),
		).Scan(&live)
		if err != nil {
			return err
		}
		if live {
			return fmt.Errorf("%w: live orders reference %s", booking.ErrConflict, day)
		}

		_, err = tx.Exec(ctx, `DELETE FROM calendar_entries WHERE product_id = $1 AND day = $2`, productID, day.Time())
		return err
	})
}
