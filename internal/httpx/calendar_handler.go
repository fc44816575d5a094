package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/calendar"
)

// calendarReq accepts either per-day entries or one price and stock applied
// to a list of dates.
type calendarReq struct {
	Mode       booking.WriteMode     `json:"mode"`
	Entries    []calendar.EntryInput `json:"entries"`
	Dates      []string              `json:"dates"`
	Price      decimal.Decimal       `json:"price"`
	TotalStock int                   `json:"total_stock"`
}

type calendarResp struct {
	ProductID string         `json:"product_id"`
	Mode      string         `json:"mode"`
	Dates     []booking.Date `json:"dates"`
}

func (h *Handler) writeCalendar(w http.ResponseWriter, r *http.Request) {
	var req calendarReq
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Mode == "" {
		req.Mode = booking.WriteUpsert
	}

	ctx, actor, id := r.Context(), actorFrom(r.Context()), urlID(r)
	var (
		dates []booking.Date
		err   error
	)
	if len(req.Dates) > 0 {
		dates, err = h.Calendar.Upsert(ctx, actor, id, req.Dates, req.Price, req.TotalStock, req.Mode)
	} else {
		dates, err = h.Calendar.Write(ctx, actor, id, req.Entries, req.Mode)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarResp{ProductID: id, Mode: string(req.Mode), Dates: dates})
}

func (h *Handler) listCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.Calendar.ListEntries(r.Context(), actorFrom(r.Context()), urlID(r), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*booking.CalendarEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getCalendarEntry(w http.ResponseWriter, r *http.Request) {
	ctx, id := r.Context(), urlID(r)
	// the product read applies visibility before the entry is exposed
	if _, err := h.Products.Get(ctx, actorFrom(ctx), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	e, err := h.Calendar.GetEntry(ctx, id, chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) deleteCalendarEntry(w http.ResponseWriter, r *http.Request) {
	err := h.Calendar.DeleteEntry(r.Context(), actorFrom(r.Context()), urlID(r), chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
