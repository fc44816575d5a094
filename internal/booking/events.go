package booking

import (
	"time"
)

const (
	EventOrderCreated         = "order.created"
	EventOrderStatusChanged   = "order.status_changed"
	EventProductStatusChanged = "product.status_changed"
	EventCalendarChanged      = "calendar.changed"
)

// Aggregate names used to route events.
const (
	AggregateOrder    = "order"
	AggregateProduct  = "product"
	AggregateCalendar = "calendar"
)

type Event struct {
	Type        string
	Aggregate   string
	AggregateID string
	OccurredAt  time.Time
	Payload     any
}

type OrderCreatedPayload struct {
	Order          *Order `json:"order"`
	RemainingStock int    `json:"remaining_stock"`
}

type OrderStatusChangedPayload struct {
	OrderID       string      `json:"order_id"`
	Number        string      `json:"number"`
	CustomerID    string      `json:"customer_id"`
	MerchantID    string      `json:"merchant_id"`
	From          OrderStatus `json:"from"`
	To            OrderStatus `json:"to"`
	Reason        string      `json:"reason,omitempty"`
	RestoredStock int         `json:"restored_stock,omitempty"`
	ActorID       string      `json:"actor_id"`
}

type ProductStatusChangedPayload struct {
	ProductID string        `json:"product_id"`
	Number    string        `json:"number"`
	From      ProductStatus `json:"from,omitempty"`
	To        ProductStatus `json:"to"`
	Reason    string        `json:"reason,omitempty"`
	ActorID   string        `json:"actor_id"`
}

type CalendarChangedPayload struct {
	ProductID string    `json:"product_id"`
	Dates     []Date    `json:"dates"`
	Mode      WriteMode `json:"mode,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
}
