package booking

type ProductStatus string

const (
	ProductDraft    ProductStatus = "draft"
	ProductPending  ProductStatus = "pending"
	ProductApproved ProductStatus = "approved"
	ProductRejected ProductStatus = "rejected"
	ProductArchived ProductStatus = "archived"
)

var productNext = map[ProductStatus]map[ProductStatus]bool{
	ProductDraft:    {ProductPending: true},
	ProductPending:  {ProductApproved: true, ProductRejected: true},
	ProductRejected: {ProductPending: true},
	ProductApproved: {ProductArchived: true},
	ProductArchived: {ProductPending: true},
}

func (s ProductStatus) Valid() bool {
	_, ok := productNext[s]
	return ok
}

func (s ProductStatus) CanTransition(to ProductStatus) bool {
	return productNext[s][to]
}

// Editable reports whether title, price and poster fields may change.
func (s ProductStatus) Editable() bool {
	return s == ProductDraft || s == ProductRejected || s == ProductArchived
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderRejected  OrderStatus = "rejected"
	OrderCancelled OrderStatus = "cancelled"
	OrderCompleted OrderStatus = "completed"
)

var orderNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderConfirmed: true, OrderRejected: true, OrderCancelled: true},
	OrderConfirmed: {OrderCompleted: true},
	OrderRejected:  {},
	OrderCancelled: {},
	OrderCompleted: {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderNext[s]
	return ok
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return orderNext[s][to]
}

// LiveOrderStatuses hold a claim on a calendar slot.
var LiveOrderStatuses = []OrderStatus{OrderPending, OrderConfirmed, OrderCompleted}

// RestoresStock reports whether entering s hands the order's seats back
// to the calendar entry.
func (s OrderStatus) RestoresStock() bool {
	return s == OrderRejected || s == OrderCancelled
}
