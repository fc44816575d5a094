package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tour-booking/internal/calendar"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/products"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
	"github.com/ariefcatur/go-tour-booking/internal/reservation"
)

// Idempotency is the replay store behind the Idempotency-Key header.
type Idempotency interface {
	Claim(ctx context.Context, key string) (string, error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (*redisx.StatusEntry, error)
	Set(ctx context.Context, e redisx.StatusEntry) error
}

type Handler struct {
	Products     *products.Service
	Calendar     *calendar.Service
	Reservations *reservation.Engine
	Orders       *orders.Service

	// Optional; nil disables the feature.
	Idempotency Idempotency
	StatusCache StatusCache

	log *zap.Logger
}

func NewHandler(
	p *products.Service,
	c *calendar.Service,
	res *reservation.Engine,
	o *orders.Service,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Products: p, Calendar: c, Reservations: res, Orders: o, log: log.Named("http")}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requireActor)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.createProduct)
			r.Get("/", h.listProducts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getProduct)
				r.Patch("/", h.editProduct)
				r.Delete("/", h.deleteProduct)
				r.Post("/submit", h.submitProduct)
				r.Post("/decide", h.decideProduct)
				r.Post("/archive", h.archiveProduct)
				r.Post("/resubmit", h.resubmitProduct)

				r.Put("/calendar", h.writeCalendar)
				r.Get("/calendar", h.listCalendar)
				r.Get("/calendar/{date}", h.getCalendarEntry)
				r.Delete("/calendar/{date}", h.deleteCalendarEntry)

				r.Post("/reservations", h.reserve)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Get("/status", h.orderStatus)
				r.Post("/confirm", h.confirmOrder)
				r.Post("/reject", h.rejectOrder)
				r.Post("/cancel", h.cancelOrder)
				r.Post("/complete", h.completeOrder)
			})
		})
	})
}

func urlID(r *http.Request) string { return chi.URLParam(r, "id") }
