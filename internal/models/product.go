package models

import "time"

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	TrackStock  bool      `json:"track_stock"`
	WeightGrams int       `json:"weight_grams"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StockReservation holds units of a product against a specific order. The
// (order_id, product_id) pair is unique, which is what makes reservation
// idempotent across pipeline retries.
type StockReservation struct {
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}
