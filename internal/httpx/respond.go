package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
)

const maxBody = 1 << 20

type errorBody struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	AvailableStock *int   `json:"available_stock,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: invalid json: %v", booking.ErrInvalid, err)
	}
	return nil
}

// statusFor maps the booking error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrInvalid):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, booking.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, booking.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, booking.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, redisx.ErrInFlight):
		return http.StatusConflict, "in_flight"
	case errors.Is(err, booking.ErrPriceMismatch):
		return http.StatusUnprocessableEntity, "price_mismatch"
	case errors.Is(err, booking.ErrExhaustedRetries):
		return http.StatusServiceUnavailable, "exhausted_retries"
	case errors.Is(err, booking.ErrBusy):
		return http.StatusServiceUnavailable, "busy"
	}
	return http.StatusInternalServerError, "internal"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, name := statusFor(err)
	body := errorBody{Error: err.Error(), Code: name}

	var stock *booking.InsufficientStockError
	if errors.As(err, &stock) {
		body.AvailableStock = &stock.Available
	}
	if errors.Is(err, booking.ErrBusy) {
		w.Header().Set("Retry-After", "1")
	}
	if code == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}
