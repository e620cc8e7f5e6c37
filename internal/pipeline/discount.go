package pipeline

import (
	"fmt"
	"time"

	"github.com/shohag/orderpipe/internal/models"
)

type CouponPolicy string

const (
	// CouponLenient applies zero discount when a coupon is missing, expired
	// or otherwise unusable.
	CouponLenient CouponPolicy = "lenient"
	// CouponStrict fails the pipeline run instead.
	CouponStrict CouponPolicy = "strict"
)

func ParseCouponPolicy(s string) (CouponPolicy, error) {
	switch CouponPolicy(s) {
	case CouponLenient, CouponStrict:
		return CouponPolicy(s), nil
	case "":
		return CouponLenient, nil
	}
	return "", fmt.Errorf("unknown coupon failure policy: %q", s)
}

// ComputeDiscount returns the discount in cents and whether the coupon
// zeroes the shipping amount instead. The error reports why the coupon is
// unusable; the caller decides whether that fails the run.
func ComputeDiscount(c *models.Coupon, subtotalCents int64, now time.Time) (discountCents int64, freeShipping bool, err error) {
	if !c.Active {
		return 0, false, fmt.Errorf("coupon %s is inactive", c.Code)
	}
	if c.Expired(now) {
		return 0, false, fmt.Errorf("coupon %s expired at %s", c.Code, c.ExpiresAt.Format(time.RFC3339))
	}
	if subtotalCents < c.MinSubtotalCents {
		return 0, false, fmt.Errorf("coupon %s requires a subtotal of at least %d cents", c.Code, c.MinSubtotalCents)
	}

	switch c.Type {
	case models.CouponFixed:
		d := c.Value
		if d > subtotalCents {
			d = subtotalCents
		}
		return d, false, nil

	case models.CouponPercentage:
		d := subtotalCents * c.Value / 100
		if c.MaxDiscountCents > 0 && d > c.MaxDiscountCents {
			d = c.MaxDiscountCents
		}
		return d, false, nil

	case models.CouponFreeShipping:
		return 0, true, nil
	}

	return 0, false, fmt.Errorf("coupon %s has unknown type %q", c.Code, c.Type)
}
