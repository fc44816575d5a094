package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

var _ booking.OrderRepo = (*OrderRepo)(nil)

const orderColumns = `id, number, product_id, customer_id, merchant_id, travel_date, fares,
       people_count, unit_price::text, total_price::text, status, reason, created_at, updated_at`

type OrderRepo struct{ s *Store }

func scanOrder(row rowScanner) (*booking.Order, error) {
	var (
		o                 booking.Order
		travel            time.Time
		unitPrice, totalP string
	)
	if err := row.Scan(
		&o.ID, &o.Number, &o.ProductID, &o.CustomerID, &o.MerchantID, &travel, &o.Fares,
		&o.PeopleCount, &unitPrice, &totalP, &o.Status, &o.Reason, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.TravelDate = booking.DateOf(travel)
	var err error
	if o.UnitPrice, err = parseMoney(unitPrice); err != nil {
		return nil, err
	}
	if o.TotalPrice, err = parseMoney(totalP); err != nil {
		return nil, err
	}
	return &o, nil
}

// Place is the reservation transaction: lock the calendar row, re-check,
// decrement, insert. A losing concurrent caller sees the committed stock.
func (r *OrderRepo) Place(ctx context.Context, o *booking.Order) (int, error) {
	var remaining int
	err := r.s.inTx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM products WHERE id = $1 FOR SHARE`, o.ProductID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: product %s", booking.ErrNotFound, o.ProductID)
		}
		if err != nil {
			return err
		}
		if booking.ProductStatus(status) != booking.ProductApproved {
			return fmt.Errorf("%w: product is %s, not bookable", booking.ErrInvalid, status)
		}

		var (
			price     string
			available int
		)
		err = tx.QueryRow(ctx, `
			SELECT price::text, available_stock
			  FROM calendar_entries
			 WHERE product_id = $1 AND day = $2
			   FOR UPDATE`,
			o.ProductID, o.TravelDate.Time(),
		).Scan(&price, &available)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: product %s on %s", booking.ErrNoAvailability, o.ProductID, o.TravelDate)
		}
		if err != nil {
			return err
		}

		current, err := parseMoney(price)
		if err != nil {
			return err
		}
		if !current.Equal(o.UnitPrice) {
			return fmt.Errorf("%w: price changed to %s", booking.ErrPriceMismatch, current)
		}
		if available < o.PeopleCount {
			return &booking.InsufficientStockError{Available: available, Requested: o.PeopleCount}
		}

		_, err = tx.Exec(ctx, `
			UPDATE calendar_entries
			   SET available_stock = available_stock - $3, updated_at = $4
			 WHERE product_id = $1 AND day = $2`,
			o.ProductID, o.TravelDate.Time(), o.PeopleCount, o.CreatedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO orders (id, number, product_id, customer_id, merchant_id, travel_date, fares,
			                    people_count, unit_price, total_price, status, reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::text::numeric, $10::text::numeric, $11, $12, $13, $14)`,
			o.ID, o.Number, o.ProductID, o.CustomerID, o.MerchantID, o.TravelDate.Time(), o.Fares,
			o.PeopleCount, o.UnitPrice.String(), o.TotalPrice.String(), string(o.Status), o.Reason,
			o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return err
		}
		remaining = available - o.PeopleCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (r *OrderRepo) Get(ctx context.Context, id string) (*booking.Order, error) {
	o, err := scanOrder(r.s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", booking.ErrNotFound, id)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return o, nil
}

// Transition locks the order row, then (for rejections and cancellations)
// the calendar row. Place never locks existing orders, so the two cannot
// wait on each other in a cycle.
func (r *OrderRepo) Transition(ctx context.Context, ch booking.StatusChange[booking.OrderStatus]) (*booking.Order, error) {
	var updated *booking.Order
	err := r.s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			productID string
			travel    time.Time
			people    int
			status    string
		)
		err := tx.QueryRow(ctx, `
			SELECT product_id, travel_date, people_count, status
			  FROM orders
			 WHERE id = $1
			   FOR UPDATE`, ch.ID,
		).Scan(&productID, &travel, &people, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: order %s", booking.ErrNotFound, ch.ID)
		}
		if err != nil {
			return err
		}
		if booking.OrderStatus(status) != ch.From {
			return fmt.Errorf("%w: order is %s, not %s", booking.ErrIllegalTransition, status, ch.From)
		}

		if ch.To.RestoresStock() {
			_, err = tx.Exec(ctx, `
				UPDATE calendar_entries
				   SET available_stock = LEAST(available_stock + $3, total_stock), updated_at = $4
				 WHERE product_id = $1 AND day = $2`,
				productID, travel, people, ch.At,
			)
			if err != nil {
				return err
			}
		}

		updated, err = scanOrder(tx.QueryRow(ctx, `
			UPDATE orders
			   SET status = $2, reason = $3, updated_at = $4
			 WHERE id = $1
			RETURNING `+orderColumns,
			ch.ID, string(ch.To), ch.Reason, ch.At,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *OrderRepo) List(ctx context.Context, f booking.OrderFilter) ([]*booking.Order, error) {
	var w where
	orderScope(&w, f.Scope)
	if f.Status != "" {
		w.add("status = %s", string(f.Status))
	}
	if f.ProductID != "" {
		w.add("product_id = %s", f.ProductID)
	}

	rows, err := r.s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders`+w.String()+
		` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*booking.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, o)
	}
	return out, mapError(rows.Err())
}

func (r *OrderRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE number = $1)`, number).Scan(&exists)
	return exists, mapError(err)
}
