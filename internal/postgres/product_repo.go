package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

var _ booking.ProductRepo = (*ProductRepo)(nil)

const productColumns = `id, number, merchant_id, title, description, poster_url,
       base_price::text, status, rejection_reason, created_at, updated_at`

type ProductRepo struct{ s *Store }

func scanProduct(row rowScanner) (*booking.Product, error) {
	var (
		p     booking.Product
		price string
	)
	if err := row.Scan(
		&p.ID, &p.Number, &p.MerchantID, &p.Title, &p.Description, &p.PosterURL,
		&price, &p.Status, &p.RejectionReason, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if p.BasePrice, err = parseMoney(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) Create(ctx context.Context, p *booking.Product) error {
	_, err := r.s.DB.Exec(ctx, `
		INSERT INTO products (id, number, merchant_id, title, description, poster_url,
		                      base_price, status, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9, $10, $11)`,
		p.ID, p.Number, p.MerchantID, p.Title, p.Description, p.PosterURL,
		p.BasePrice.String(), string(p.Status), p.RejectionReason, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (r *ProductRepo) Get(ctx context.Context, id string) (*booking.Product, error) {
	p, err := scanProduct(r.s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", booking.ErrNotFound, id)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (r *ProductRepo) UpdateDetails(ctx context.Context, p *booking.Product) error {
	ct, err := r.s.DB.Exec(ctx, `
		UPDATE products
		   SET title = $3, description = $4, poster_url = $5,
		       base_price = $6::text::numeric, updated_at = $7
		 WHERE id = $1 AND status = $2`,
		p.ID, string(p.Status), p.Title, p.Description, p.PosterURL, p.BasePrice.String(), p.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if ct.RowsAffected() == 0 {
		return r.explainMiss(ctx, p.ID)
	}
	return nil
}

func (r *ProductRepo) UpdateStatus(ctx context.Context, ch booking.StatusChange[booking.ProductStatus]) (*booking.Product, error) {
	reason := ""
	if ch.To == booking.ProductRejected {
		reason = ch.Reason
	}
	p, err := scanProduct(r.s.DB.QueryRow(ctx, `
		UPDATE products
		   SET status = $3, rejection_reason = $4, updated_at = $5
		 WHERE id = $1 AND status = $2
		RETURNING `+productColumns,
		ch.ID, string(ch.From), string(ch.To), reason, ch.At,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.explainMiss(ctx, ch.ID)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (r *ProductRepo) Delete(ctx context.Context, id string, from booking.ProductStatus) error {
	ct, err := r.s.DB.Exec(ctx, `DELETE FROM products WHERE id = $1 AND status = $2`, id, string(from))
	if err != nil {
		return mapError(err)
	}
	if ct.RowsAffected() == 0 {
		return r.explainMiss(ctx, id)
	}
	return nil
}

func (r *ProductRepo) List(ctx context.Context, f booking.ProductFilter) ([]*booking.Product, error) {
	var w where
	productScope(&w, f.Scope)
	if f.Status != "" {
		w.add("status = %s", string(f.Status))
	}

	rows, err := r.s.DB.Query(ctx, `SELECT `+productColumns+` FROM products`+w.String()+
		` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*booking.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, p)
	}
	return out, mapError(rows.Err())
}

func (r *ProductRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE number = $1)`, number).Scan(&exists)
	return exists, mapError(err)
}

// explainMiss tells a missing product from one whose status moved on.
func (r *ProductRepo) explainMiss(ctx context.Context, id string) error {
	var status string
	err := r.s.DB.QueryRow(ctx, `SELECT status FROM products WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: product %s", booking.ErrNotFound, id)
	}
	if err != nil {
		return mapError(err)
	}
	return fmt.Errorf("%w: product is now %s", booking.ErrIllegalTransition, status)
}
