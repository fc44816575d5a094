package postgres

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

// where collects AND-ed conditions with positional arguments. Each cond
// holds one %s standing for its argument's placeholder.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func productScope(w *where, s booking.Scope) {
	switch {
	case s.All:
	case s.MerchantID != "":
		w.add("merchant_id = %s", s.MerchantID)
	case s.ApprovedOnly:
		w.add("status = %s", string(booking.ProductApproved))
	default:
		w.raw("FALSE")
	}
}

func orderScope(w *where, s booking.Scope) {
	switch {
	case s.All:
	case s.MerchantID != "":
		w.add("merchant_id = %s", s.MerchantID)
	case s.CustomerID != "":
		w.add("customer_id = %s", s.CustomerID)
	default:
		w.raw("FALSE")
	}
}

func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return d, nil
}

func liveStatuses() []string {
	out := make([]string, len(booking.LiveOrderStatuses))
	for i, s := range booking.LiveOrderStatuses {
		out[i] = string(s)
	}
	return out
}
