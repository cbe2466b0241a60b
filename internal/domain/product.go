package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable menu item together with its stock counters.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	// TotalStocked is the sum of every quantity ever added through AddProduct or Restock.
	TotalStocked int       `json:"total_stocked"`
	Available    bool      `json:"available"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AcceptsReservations reports whether new reservations may be placed.
func (p *Product) AcceptsReservations() bool {
	return p.Available
}

// HasStock reports whether quantity units can be taken from stock.
func (p *Product) HasStock(quantity int) bool {
	return quantity <= p.StockQuantity
}
