package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/calendar"
	"github.com/ariefcatur/go-tour-booking/internal/idgen"
	"github.com/ariefcatur/go-tour-booking/internal/memstore"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/products"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
	"github.com/ariefcatur/go-tour-booking/internal/reservation"
)

var (
	admin    = booking.Actor{Role: booking.RoleAdmin, ID: "adm_1"}
	merchant = booking.Actor{Role: booking.RoleMerchant, ID: "mer_1"}
	customer = booking.Actor{Role: booking.RoleCustomer, ID: "cus_1"}
	stranger = booking.Actor{Role: booking.RoleCustomer, ID: "cus_2"}
)

type testServer struct {
	t     *testing.T
	srv   *httptest.Server
	redis *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := memstore.New()
	numbers := idgen.New(store.Products(), store.Orders())

	h := NewHandler(
		products.NewService(store.Products(), numbers, nil, log),
		calendar.NewService(store.Calendar(), store.Products(), nil, log),
		reservation.NewEngine(store.Products(), store.Calendar(), store.Orders(), numbers, nil, log),
		orders.NewService(store.Orders(), nil, log),
		log,
	)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h.Idempotency = redisx.NewIdempotency(rdb)
	h.StatusCache = redisx.NewStatusCache(rdb)

	r := NewRouter(log)
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, redis: mr}
}

func (s *testServer) do(actor booking.Actor, method, path string, body any, headers ...string) (*http.Response, map[string]any) {
	s.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	require.NoError(s.t, err)
	if actor.Role != "" {
		req.Header.Set(HeaderActorRole, string(actor.Role))
		req.Header.Set(HeaderActorID, actor.ID)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var raw any
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&raw))
		if m, ok := raw.(map[string]any); ok {
			out = m
		} else {
			out = map[string]any{"items": raw}
		}
	}
	return resp, out
}

// approvedProduct creates, submits and approves a product with one day of
// stock on 2026-12-01 at 100.00.
func (s *testServer) approvedProduct(stock int) string {
	s.t.Helper()
	resp, body := s.do(merchant, http.MethodPost, "/products", map[string]any{
		"title": "Sunrise trek", "base_price": "100.00",
	})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)

	resp, _ = s.do(merchant, http.MethodPost, "/products/"+id+"/submit", nil)
	require.Equal(s.t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(admin, http.MethodPost, "/products/"+id+"/decide", map[string]any{"outcome": "approve"})
	require.Equal(s.t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(merchant, http.MethodPut, "/products/"+id+"/calendar", map[string]any{
		"mode":        "create",
		"dates":       []string{"2026-12-01"},
		"price":       "100.00",
		"total_stock": stock,
	})
	require.Equal(s.t, http.StatusOK, resp.StatusCode)
	return id
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(booking.Actor{}, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMissingActor(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(booking.Actor{}, http.MethodGet, "/products", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["code"])
}

func TestReservationFlow(t *testing.T) {
	s := newTestServer(t)
	id := s.approvedProduct(10)

	resp, body := s.do(customer, http.MethodPost, "/products/"+id+"/reservations", map[string]any{
		"date": "2026-12-01", "fares": map[string]int{"adult": 2}, "expected_total": "200.00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	orderID := body["id"].(string)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "cus_1", body["customer_id"])

	resp, body = s.do(customer, http.MethodGet, "/orders/"+orderID+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "cache", body["source"])

	resp, _ = s.do(stranger, http.MethodGet, "/orders/"+orderID+"/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(merchant, http.MethodPost, "/orders/"+orderID+"/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", body["status"])

	resp, body = s.do(merchant, http.MethodPost, "/orders/"+orderID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "illegal_transition", body["code"])

	resp, body = s.do(customer, http.MethodGet, "/orders/"+orderID+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", body["status"])

	resp, body = s.do(customer, http.MethodGet, "/products/"+id+"/calendar?from=2026-12-01&to=2026-12-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, 8, items[0].(map[string]any)["available_stock"])
}

func TestReservationErrors(t *testing.T) {
	s := newTestServer(t)
	id := s.approvedProduct(3)
	path := "/products/" + id + "/reservations"

	resp, body := s.do(customer, http.MethodPost, path, map[string]any{
		"date": "2026-12-01", "fares": map[string]int{"adult": 5}, "expected_total": "500",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "insufficient_stock", body["code"])
	assert.EqualValues(t, 3, body["available_stock"])

	resp, body = s.do(customer, http.MethodPost, path, map[string]any{
		"date": "2026-12-01", "fares": map[string]int{"adult": 2}, "expected_total": "150",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "price_mismatch", body["code"])

	resp, _ = s.do(customer, http.MethodPost, path, map[string]any{
		"date": "2026-12-02", "fares": map[string]int{"adult": 1}, "expected_total": "100",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(customer, http.MethodPost, path, map[string]any{
		"date": "first of december", "fares": map[string]int{"adult": 1}, "expected_total": "100",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(merchant, http.MethodPost, path, map[string]any{
		"date": "2026-12-01", "fares": map[string]int{"adult": 1}, "expected_total": "100",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, s.srv.URL+path, strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set(HeaderActorRole, "customer")
	req.Header.Set(HeaderActorID, "cus_1")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestReservationIdempotencyReplay(t *testing.T) {
	s := newTestServer(t)
	id := s.approvedProduct(10)
	body := map[string]any{"date": "2026-12-01", "fares": map[string]int{"adult": 1, "child": 1}, "expected_total": "200"}

	first, b1 := s.do(customer, http.MethodPost, "/products/"+id+"/reservations", body, HeaderIdempotencyKey, "req-1")
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second, b2 := s.do(customer, http.MethodPost, "/products/"+id+"/reservations", body, HeaderIdempotencyKey, "req-1")
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get(HeaderReplayed))
	assert.Equal(t, b1["id"], b2["id"])

	_, cal := s.do(customer, http.MethodGet, "/products/"+id+"/calendar", nil)
	assert.EqualValues(t, 8, cal["items"].([]any)[0].(map[string]any)["available_stock"])
}

func TestFailedReservationReleasesIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	id := s.approvedProduct(1)
	path := "/products/" + id + "/reservations"

	resp, _ := s.do(customer, http.MethodPost, path,
		map[string]any{"date": "2026-12-01", "fares": map[string]int{"adult": 2}, "expected_total": "200"},
		HeaderIdempotencyKey, "k")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = s.do(customer, http.MethodPost, path,
		map[string]any{"date": "2026-12-01", "fares": map[string]int{"adult": 1}, "expected_total": "100"},
		HeaderIdempotencyKey, "k")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCancelRestoresStock(t *testing.T) {
	s := newTestServer(t)
	id := s.approvedProduct(4)

	_, o := s.do(customer, http.MethodPost, "/products/"+id+"/reservations", map[string]any{
		"date": "2026-12-01", "fares": map[string]int{"adult": 4}, "expected_total": "400",
	})
	orderID := o["id"].(string)

	resp, body := s.do(customer, http.MethodPost, "/orders/"+orderID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])

	_, cal := s.do(customer, http.MethodGet, "/products/"+id+"/calendar", nil)
	assert.EqualValues(t, 4, cal["items"].([]any)[0].(map[string]any)["available_stock"])
}

func TestProductLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	resp, p := s.do(merchant, http.MethodPost, "/products", map[string]any{"title": "Reef dive", "base_price": 80})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := p["id"].(string)
	assert.Regexp(t, `^P\d{16}$`, p["number"])

	resp, _ = s.do(customer, http.MethodGet, "/products/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(merchant, http.MethodPost, "/products/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(admin, http.MethodPost, "/products/"+id+"/decide", map[string]any{"outcome": "reject"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid", body["code"])

	resp, body = s.do(admin, http.MethodPost, "/products/"+id+"/decide", map[string]any{"outcome": "reject", "reason": "blurry poster"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rejected", body["status"])

	resp, body = s.do(merchant, http.MethodPatch, "/products/"+id, map[string]any{"poster_url": "https://cdn.example/p.jpg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://cdn.example/p.jpg", body["poster_url"])

	resp, _ = s.do(merchant, http.MethodPost, "/products/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(merchant, http.MethodPost, "/products/"+id+"/decide", map[string]any{"outcome": "approve"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = s.do(admin, http.MethodPost, "/products/"+id+"/decide", map[string]any{"outcome": "approve"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(merchant, http.MethodDelete, "/products/"+id, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = s.do(customer, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)
}

func TestCalendarDeleteWithLiveOrder(t *testing.T) {
	s := newTestServer(t)
	id := s.approvedProduct(5)

	resp, _ := s.do(customer, http.MethodPost, "/products/"+id+"/reservations", map[string]any{
		"date": "2026-12-01", "fares": map[string]int{"adult": 1}, "expected_total": "100",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := s.do(merchant, http.MethodDelete, "/products/"+id+"/calendar/2026-12-01", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", body["code"])

	resp, body = s.do(merchant, http.MethodGet, "/products/"+id+"/calendar/2026-12-01T23:30:00+07:00", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2026-12-01", body["date"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{booking.ErrNoAvailability, http.StatusNotFound},
		{&booking.InsufficientStockError{Available: 1, Requested: 2}, http.StatusConflict},
		{booking.ErrPriceMismatch, http.StatusUnprocessableEntity},
		{booking.ErrBusy, http.StatusServiceUnavailable},
		{booking.ErrExhaustedRetries, http.StatusServiceUnavailable},
		{redisx.ErrInFlight, http.StatusConflict},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, _ := statusFor(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
