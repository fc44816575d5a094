package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestIdempotencyLifecycle(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	idem := NewIdempotency(rdb)
	key := IdemReservationKey("cus_1", "abc")

	got, err := idem.Claim(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = idem.Claim(ctx, key)
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, idem.Complete(ctx, key, "ord_1"))
	got, err = idem.Claim(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "ord_1", got)
	assert.InDelta(t, TTLIdempotency.Seconds(), mr.TTL(key).Seconds(), 1)
}

func TestIdempotencyRelease(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestClient(t)
	idem := NewIdempotency(rdb)

	_, err := idem.Claim(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, idem.Release(ctx, "k"))

	got, err := idem.Claim(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStatusCacheKeepsNewest(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestClient(t)
	cache := NewStatusCache(rdb)

	miss, err := cache.Get(ctx, "ord_1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Set(ctx, StatusEntry{
		OrderID: "ord_1", Status: booking.OrderConfirmed, CustomerID: "c1", MerchantID: "m1", UpdatedAt: t0,
	}))
	require.NoError(t, cache.Set(ctx, StatusEntry{
		OrderID: "ord_1", Status: booking.OrderPending, CustomerID: "c1", MerchantID: "m1", UpdatedAt: t0.Add(-time.Minute),
	}))

	e, err := cache.Get(ctx, "ord_1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, booking.OrderConfirmed, e.Status)
	assert.Equal(t, "m1", e.MerchantID)
}

func TestDedup(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestClient(t)
	d := NewDedup(rdb, "projector")

	seen, err := d.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "ev-1"))
	seen, err = d.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, seen)

	other := NewDedup(rdb, "audit")
	seen, err = other.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen)
}
