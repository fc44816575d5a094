// Package redisx holds the Redis-backed helpers: reservation idempotency,
// the order status cache and consumer de-duplication. Redis is never the
// source of truth; every read has a repository fallback.
package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

// pendingClaim marks an idempotency key whose reservation is still running.
const pendingClaim = "-"

var ErrInFlight = errors.New("redisx: request with this idempotency key is in flight")

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Idempotency maps a client-supplied key to the order it produced.
type Idempotency struct {
	rdb redis.Cmdable
}

func NewIdempotency(rdb redis.Cmdable) *Idempotency { return &Idempotency{rdb: rdb} }

// Claim reserves key for a new request. It returns the stored order id when
// the key already completed, ErrInFlight while another request holds it, and
// ("", nil) when the caller now owns the key.
func (i *Idempotency) Claim(ctx context.Context, key string) (string, error) {
	ok, err := i.rdb.SetNX(ctx, key, pendingClaim, TTLIdempotency).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}
	v, err := i.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return i.Claim(ctx, key)
	}
	if err != nil {
		return "", err
	}
	if v == pendingClaim {
		return "", ErrInFlight
	}
	return v, nil
}

func (i *Idempotency) Complete(ctx context.Context, key, orderID string) error {
	return i.rdb.Set(ctx, key, orderID, TTLIdempotency).Err()
}

// Release drops a claim whose request failed so the client may retry.
func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.rdb.Del(ctx, key).Err()
}

// StatusEntry is the cached view of an order: enough to answer a status
// read and to apply visibility rules without the database.
type StatusEntry struct {
	OrderID    string              `json:"order_id"`
	Status     booking.OrderStatus `json:"status"`
	CustomerID string              `json:"customer_id"`
	MerchantID string              `json:"merchant_id"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

type StatusCache struct {
	rdb redis.Cmdable
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache { return &StatusCache{rdb: rdb} }

// Get returns (nil, nil) on a miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (*StatusEntry, error) {
	b, err := c.rdb.Get(ctx, OrderStatusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e StatusEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode status entry: %w", err)
	}
	return &e, nil
}

// Set stores e unless the cache already holds a newer entry for the order.
// Events may arrive late after a consumer restart.
func (c *StatusCache) Set(ctx context.Context, e StatusEntry) error {
	cur, err := c.Get(ctx, e.OrderID)
	if err != nil {
		return err
	}
	if cur != nil && cur.UpdatedAt.After(e.UpdatedAt) {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, OrderStatusKey(e.OrderID), b, TTLStatusCache).Err()
}

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	rdb     redis.Cmdable
	service string
}

func NewDedup(rdb redis.Cmdable, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.rdb, DedupKey(d.service, eventID))
}

// Mark records eventID as processed. Call it after the side effect succeeded.
func (d *Dedup) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, DedupKey(d.service, eventID), "1", TTLDedup).Err()
}
