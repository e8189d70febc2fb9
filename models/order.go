package models

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderProcessing     OrderStatus = "processing"
	OrderShipped        OrderStatus = "shipped"
	OrderCompleted      OrderStatus = "completed"
	OrderFailed         OrderStatus = "failed"
	OrderCancelled      OrderStatus = "cancelled"
)

func (s OrderStatus) Known() bool {
	switch s {
	case OrderPendingPayment, OrderPaid, OrderProcessing, OrderShipped,
		OrderCompleted, OrderFailed, OrderCancelled:
		return true
	}
	return false
}

type OrderItem struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image,omitempty"`
	Price        float64 `json:"price"`
	Quantity     int     `json:"quantity"`
}

// Order is the upstream order snapshot rendered before payment. Orders are
// never deleted, only transitioned, and this service never mutates them
// directly; the gateway callback does that server-side.
type Order struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Items          []OrderItem `json:"items"`
	TotalAmount    float64     `json:"total_amount"`
	Status         OrderStatus `json:"status"`
	PhoneNumber    string      `json:"phone_number"`
	PaymentMethod  string      `json:"payment_method"`
	DeliveryMethod string      `json:"delivery_method"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Validate checks the decoded shape at the network boundary.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order: missing id")
	}
	if !o.Status.Known() {
		return fmt.Errorf("order %s: unknown status %q", o.ID, o.Status)
	}
	if o.TotalAmount < 0 {
		return fmt.Errorf("order %s: negative total", o.ID)
	}
	for i, item := range o.Items {
		if item.ProductID == "" {
			return fmt.Errorf("order %s: item %d missing product_id", o.ID, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("order %s: item %d has non-positive quantity", o.ID, i)
		}
	}
	return nil
}

type OrderList struct {
	Orders []Order `json:"orders"`
}

func (l *OrderList) Validate() error {
	for i := range l.Orders {
		if err := l.Orders[i].Validate(); err != nil {
			return fmt.Errorf("orders[%d]: %w", i, err)
		}
	}
	return nil
}
