package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/products"
)

type decideReq struct {
	Outcome products.Outcome `json:"outcome"`
	Reason  string           `json:"reason"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req products.CreateInput
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Products.Create(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	status := booking.ProductStatus(r.URL.Query().Get("status"))
	ps, err := h.Products.List(r.Context(), actorFrom(r.Context()), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ps == nil {
		ps = []*booking.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Get(r.Context(), actorFrom(r.Context()), urlID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) editProduct(w http.ResponseWriter, r *http.Request) {
	var patch products.Patch
	if err := decode(r, &patch, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Products.Edit(r.Context(), actorFrom(r.Context()), urlID(r), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Delete(r.Context(), actorFrom(r.Context()), urlID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submitProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Submit(r.Context(), actorFrom(r.Context()), urlID(r))
	h.productMove(w, r, p, err)
}

func (h *Handler) archiveProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Archive(r.Context(), actorFrom(r.Context()), urlID(r))
	h.productMove(w, r, p, err)
}

func (h *Handler) resubmitProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Resubmit(r.Context(), actorFrom(r.Context()), urlID(r))
	h.productMove(w, r, p, err)
}

func (h *Handler) decideProduct(w http.ResponseWriter, r *http.Request) {
	var req decideReq
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Products.Decide(r.Context(), actorFrom(r.Context()), urlID(r), req.Outcome, req.Reason)
	h.productMove(w, r, p, err)
}

func (h *Handler) productMove(w http.ResponseWriter, r *http.Request, p *booking.Product, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
