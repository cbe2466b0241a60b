package domain

import "time"

// OrderSummaryView is the compact shape used in listings.
type OrderSummaryView struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"order_number"`
	Status      OrderStatus `json:"status"`
	Type        OrderType   `json:"type"`
	TotalAmount string      `json:"total_amount"`
	ItemCount   int         `json:"item_count"`
	CreatedAt   time.Time   `json:"created_at"`
}

// OrderLineView is one line of OrderDetailView.
type OrderLineView struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

// OrderDetailView is the full shape returned after submit and on lookup.
type OrderDetailView struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    string          `json:"customer_id"`
	Status        OrderStatus     `json:"status"`
	Type          OrderType       `json:"type"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentID     string          `json:"payment_id,omitempty"`
	Lines         []OrderLineView `json:"lines"`
	TotalAmount   string          `json:"total_amount"`
	FailureCode   string          `json:"failure_code,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderStatusView answers status polls.
type OrderStatusView struct {
	ID        string      `json:"id"`
	Status    OrderStatus `json:"status"`
	Terminal  bool        `json:"terminal"`
	UpdatedAt time.Time   `json:"updated_at,omitzero"`
}

// ProductView is the public shape of a product.
type ProductView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
	Available     bool   `json:"available"`
	InStock       bool   `json:"in_stock"`
}

// NewOrderSummaryView builds the summary shape of o.
func NewOrderSummaryView(o *Order) OrderSummaryView {
	return OrderSummaryView{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Type:        o.Type,
		TotalAmount: o.TotalAmount.StringFixed(2),
		ItemCount:   o.ItemCount(),
		CreatedAt:   o.CreatedAt,
	}
}

// NewOrderDetailView builds the detail shape of o.
func NewOrderDetailView(o *Order) OrderDetailView {
	lines := make([]OrderLineView, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineView{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			Subtotal:    l.Subtotal().StringFixed(2),
		})
	}
	return OrderDetailView{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		Status:        o.Status,
		Type:          o.Type,
		PaymentMethod: o.PaymentMethod,
		PaymentID:     o.PaymentID,
		Lines:         lines,
		TotalAmount:   o.TotalAmount.StringFixed(2),
		FailureCode:   o.FailureCode,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// NewOrderStatusView builds the status shape of o.
func NewOrderStatusView(o *Order) OrderStatusView {
	return OrderStatusView{
		ID:        o.ID,
		Status:    o.Status,
		Terminal:  o.Status.IsTerminal(),
		UpdatedAt: o.UpdatedAt,
	}
}

// NewProductView builds the public shape of p.
func NewProductView(p *Product) ProductView {
	return ProductView{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price.StringFixed(2),
		StockQuantity: p.StockQuantity,
		Available:     p.Available,
		InStock:       p.Available && p.StockQuantity > 0,
	}
}
