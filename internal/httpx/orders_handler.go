package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-tour-booking/internal/access"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
	"github.com/ariefcatur/go-tour-booking/internal/reservation"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

type reasonReq struct {
	Reason string `json:"reason"`
}

type statusResp struct {
	OrderID string              `json:"order_id"`
	Status  booking.OrderStatus `json:"status"`
	Source  string              `json:"source"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx, actor := r.Context(), actorFrom(r.Context())

	var req reservation.Request
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.ProductID = urlID(r)
	if req.CustomerID == "" && actor.Role == booking.RoleCustomer {
		req.CustomerID = actor.ID
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || h.Idempotency == nil {
		h.placeReservation(w, r, actor, req, "")
		return
	}

	key = redisx.IdemReservationKey(actor.ID, key)
	prior, err := h.Idempotency.Claim(ctx, key)
	switch {
	case errors.Is(err, redisx.ErrInFlight):
		h.writeError(w, r, err)
		return
	case err != nil:
		// Redis is an optimisation; carry on without replay protection.
		h.log.Warn("idempotency claim failed", zap.Error(err))
		key = ""
	case prior != "":
		o, err := h.Orders.Get(ctx, actor, prior)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set(HeaderReplayed, "true")
		writeJSON(w, http.StatusOK, o)
		return
	}
	h.placeReservation(w, r, actor, req, key)
}

func (h *Handler) placeReservation(w http.ResponseWriter, r *http.Request, actor booking.Actor, req reservation.Request, idemKey string) {
	ctx := r.Context()
	o, err := h.Reservations.Reserve(ctx, actor, req)
	if err != nil {
		if idemKey != "" {
			if rerr := h.Idempotency.Release(context.WithoutCancel(ctx), idemKey); rerr != nil {
				h.log.Warn("idempotency release failed", zap.Error(rerr))
			}
		}
		h.writeError(w, r, err)
		return
	}
	if idemKey != "" {
		if err := h.Idempotency.Complete(context.WithoutCancel(ctx), idemKey, o.ID); err != nil {
			h.log.Warn("idempotency complete failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Orders.List(r.Context(), actorFrom(r.Context()), orders.ListFilter{
		Status:    booking.OrderStatus(q.Get("status")),
		ProductID: q.Get("product_id"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*booking.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), actorFrom(r.Context()), urlID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// orderStatus answers from the cache when it can; the cached owner fields
// keep visibility rules intact without a database read.
func (h *Handler) orderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, actor, id := r.Context(), actorFrom(r.Context()), urlID(r)

	if h.StatusCache != nil {
		e, err := h.StatusCache.Get(ctx, id)
		if err != nil {
			h.log.Warn("status cache read failed", zap.String("order_id", id), zap.Error(err))
		}
		if e != nil {
			owner := &booking.Order{CustomerID: e.CustomerID, MerchantID: e.MerchantID}
			if !access.CanSeeOrder(actor, owner) {
				h.writeError(w, r, booking.ErrNotFound)
				return
			}
			writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: e.Status, Source: "cache"})
			return
		}
	}

	o, err := h.Orders.Get(ctx, actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusResp{OrderID: o.ID, Status: o.Status, Source: "store"})
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Confirm(r.Context(), actorFrom(r.Context()), urlID(r))
	h.orderMove(w, r, o, err)
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Complete(r.Context(), actorFrom(r.Context()), urlID(r))
	h.orderMove(w, r, o, err)
}

func (h *Handler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonReq
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.Orders.Reject(r.Context(), actorFrom(r.Context()), urlID(r), req.Reason)
	h.orderMove(w, r, o, err)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonReq
	if err := decode(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.Orders.Cancel(r.Context(), actorFrom(r.Context()), urlID(r), req.Reason)
	h.orderMove(w, r, o, err)
}

func (h *Handler) orderMove(w http.ResponseWriter, r *http.Request, o *booking.Order, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

// cacheStatus writes through after a committed change so reads do not wait
// for the projector.
func (h *Handler) cacheStatus(ctx context.Context, o *booking.Order) {
	if h.StatusCache == nil {
		return
	}
	err := h.StatusCache.Set(context.WithoutCancel(ctx), redisx.StatusEntry{
		OrderID:    o.ID,
		Status:     o.Status,
		CustomerID: o.CustomerID,
		MerchantID: o.MerchantID,
		UpdatedAt:  o.UpdatedAt,
	})
	if err != nil {
		h.log.Warn("status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}
