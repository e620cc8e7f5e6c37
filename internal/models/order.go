package models

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderFailed     OrderStatus = "failed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type Address struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// All money amounts are integer cents.
type Order struct {
	ID              string        `json:"id"`
	Number          string        `json:"number"`
	CustomerID      string        `json:"customer_id,omitempty"` // empty for guest checkout
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	SubtotalCents   int64         `json:"subtotal_cents"`
	DiscountCents   int64         `json:"discount_cents"`
	ShippingCents   int64         `json:"shipping_cents"`
	TotalCents      int64         `json:"total_cents"`
	CouponCode      string        `json:"coupon_code,omitempty"`
	Items           []OrderItem   `json:"items"`
	ShippingAddress Address       `json:"shipping_address"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// OrderEvent is a human-readable status note appended as the order moves
// through the pipeline.
type OrderEvent struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}
