// Package access holds the capability rules consulted by every lifecycle
// transition and the read-side visibility scopes.
package access

import (
	"fmt"
	"strings"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

type Action string

const (
	ProductCreate   Action = "product.create"
	ProductEdit     Action = "product.edit"
	ProductDelete   Action = "product.delete"
	ProductSubmit   Action = "product.submit"
	ProductResubmit Action = "product.resubmit"
	ProductDecide   Action = "product.decide"
	ProductArchive  Action = "product.archive"
	CalendarWrite   Action = "calendar.write"
	OrderPlace      Action = "order.place"
	OrderConfirm    Action = "order.confirm"
	OrderReject     Action = "order.reject"
	OrderComplete   Action = "order.complete"
	OrderCancel     Action = "order.cancel"
)

// Resource carries the ownership fields a rule may inspect.
type Resource struct {
	MerchantID string
	CustomerID string
}

type rule func(a booking.Actor, r Resource) bool

func admin(a booking.Actor, _ Resource) bool { return a.Role == booking.RoleAdmin }

func owningMerchant(a booking.Actor, r Resource) bool {
	return a.Role == booking.RoleMerchant && r.MerchantID != "" && r.MerchantID == a.ID
}

func owningCustomer(a booking.Actor, r Resource) bool {
	return a.Role == booking.RoleCustomer && r.CustomerID != "" && r.CustomerID == a.ID
}

func anyOf(rules ...rule) rule {
	return func(a booking.Actor, r Resource) bool {
		for _, fn := range rules {
			if fn(a, r) {
				return true
			}
		}
		return false
	}
}

var rules = map[Action]rule{
	ProductCreate:   owningMerchant,
	ProductEdit:     owningMerchant,
	ProductDelete:   anyOf(owningMerchant, admin),
	ProductSubmit:   owningMerchant,
	ProductResubmit: owningMerchant,
	ProductDecide:   admin,
	ProductArchive:  anyOf(owningMerchant, admin),
	CalendarWrite:   anyOf(owningMerchant, admin),
	OrderPlace:      owningCustomer,
	OrderConfirm:    anyOf(owningMerchant, admin),
	OrderReject:     anyOf(owningMerchant, admin),
	OrderComplete:   anyOf(owningMerchant, admin),
	OrderCancel:     anyOf(owningCustomer, admin),
}

func validActor(a booking.Actor) bool {
	return a.Role.Valid() && strings.TrimSpace(a.ID) != ""
}

// Authorize returns nil when actor may perform action on a resource with
// the given ownership, and an error wrapping booking.ErrForbidden otherwise.
func Authorize(actor booking.Actor, action Action, res Resource) error {
	if !validActor(actor) {
		return fmt.Errorf("%w: unknown actor", booking.ErrForbidden)
	}
	allow, ok := rules[action]
	if !ok || !allow(actor, res) {
		return fmt.Errorf("%w: %s %s may not %s", booking.ErrForbidden, actor.Role, actor.ID, action)
	}
	return nil
}

// OrderScope restricts order reads: admins see all, merchants their own
// products' orders, customers their own orders.
func OrderScope(actor booking.Actor) (booking.Scope, error) {
	if !validActor(actor) {
		return booking.Scope{}, fmt.Errorf("%w: unknown actor", booking.ErrForbidden)
	}
	switch actor.Role {
	case booking.RoleAdmin:
		return booking.ScopeAll, nil
	case booking.RoleMerchant:
		return booking.Scope{MerchantID: actor.ID}, nil
	default:
		return booking.Scope{CustomerID: actor.ID}, nil
	}
}

// ProductScope restricts product reads: admins see all, merchants their own,
// customers only approved products.
func ProductScope(actor booking.Actor) (booking.Scope, error) {
	if !validActor(actor) {
		return booking.Scope{}, fmt.Errorf("%w: unknown actor", booking.ErrForbidden)
	}
	switch actor.Role {
	case booking.RoleAdmin:
		return booking.ScopeAll, nil
	case booking.RoleMerchant:
		return booking.Scope{MerchantID: actor.ID}, nil
	default:
		return booking.Scope{ApprovedOnly: true}, nil
	}
}

func CanSeeOrder(actor booking.Actor, o *booking.Order) bool {
	scope, err := OrderScope(actor)
	return err == nil && scope.MatchesOrder(o)
}

func CanSeeProduct(actor booking.Actor, p *booking.Product) bool {
	scope, err := ProductScope(actor)
	return err == nil && scope.MatchesProduct(p)
}
