package models

import "time"

type CouponType string

const (
	CouponFixed        CouponType = "fixed"
	CouponPercentage   CouponType = "percentage"
	CouponFreeShipping CouponType = "free_shipping"
)

type Coupon struct {
	ID   string     `json:"id"`
	Code string     `json:"code"`
	Type CouponType `json:"type"`
	// Value is cents for fixed coupons and whole percent for percentage
	// coupons; unused for free_shipping.
	Value            int64      `json:"value"`
	MinSubtotalCents int64      `json:"min_subtotal_cents"`
	MaxDiscountCents int64      `json:"max_discount_cents"` // 0 = no ceiling
	Active           bool       `json:"active"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
