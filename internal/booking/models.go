package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	MerchantID      string          `json:"merchant_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	PosterURL       string          `json:"poster_url,omitempty"`
	BasePrice       decimal.Decimal `json:"base_price"`
	Status          ProductStatus   `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type CalendarEntry struct {
	ProductID      string          `json:"product_id"`
	Date           Date            `json:"date"`
	Price          decimal.Decimal `json:"price"`
	TotalStock     int             `json:"total_stock"`
	AvailableStock int             `json:"available_stock"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Reserved is the number of seats currently held by orders.
func (e CalendarEntry) Reserved() int { return e.TotalStock - e.AvailableStock }

type Order struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	ProductID   string          `json:"product_id"`
	CustomerID  string          `json:"customer_id"`
	MerchantID  string          `json:"merchant_id"`
	TravelDate  Date            `json:"travel_date"`
	Fares       map[string]int  `json:"fares"`
	PeopleCount int             `json:"people_count"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Status      OrderStatus     `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WriteMode selects how a calendar batch treats dates that already exist.
type WriteMode string

const (
	// WriteCreate fails with ErrConflict when any date already exists.
	WriteCreate WriteMode = "create"
	// WriteUpdate fails with ErrNotFound when any date is missing.
	WriteUpdate WriteMode = "update"
	// WriteUpsert creates missing dates and updates existing ones.
	WriteUpsert WriteMode = "upsert"
)

func (m WriteMode) Valid() bool {
	return m == WriteCreate || m == WriteUpdate || m == WriteUpsert
}
