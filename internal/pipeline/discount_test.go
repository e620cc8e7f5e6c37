package pipeline

import (
	"testing"
	"time"

	"github.com/shohag/orderpipe/internal/models"
)

func TestParseCouponPolicy(t *testing.T) {
	if p, err := ParseCouponPolicy(""); err != nil || p != CouponLenient {
		t.Fatalf("empty policy: %v, %v", p, err)
	}
	if p, err := ParseCouponPolicy("strict"); err != nil || p != CouponStrict {
		t.Fatalf("strict policy: %v, %v", p, err)
	}
	if _, err := ParseCouponPolicy("whatever"); err == nil {
		t.Fatal("unknown policy accepted")
	}
}

func TestComputeDiscount(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)

	cases := []struct {
		name         string
		coupon       models.Coupon
		subtotal     int64
		want         int64
		freeShipping bool
		wantErr      bool
	}{
		{
			name:     "fixed amount",
			coupon:   models.Coupon{Code: "DEZ", Type: models.CouponFixed, Value: 1000, Active: true},
			subtotal: 5000,
			want:     1000,
		},
		{
			name:     "fixed clamps to subtotal",
			coupon:   models.Coupon{Code: "GRANDE", Type: models.CouponFixed, Value: 9000, Active: true},
			subtotal: 5000,
			want:     5000,
		},
		{
			name:     "percentage",
			coupon:   models.Coupon{Code: "DEZPORCENTO", Type: models.CouponPercentage, Value: 10, Active: true},
			subtotal: 15000,
			want:     1500,
		},
		{
			name:     "percentage hits ceiling",
			coupon:   models.Coupon{Code: "METADE", Type: models.CouponPercentage, Value: 50, MaxDiscountCents: 2000, Active: true},
			subtotal: 10000,
			want:     2000,
		},
		{
			name:         "free shipping",
			coupon:       models.Coupon{Code: "FRETE", Type: models.CouponFreeShipping, Active: true},
			subtotal:     5000,
			freeShipping: true,
		},
		{
			name:     "inactive",
			coupon:   models.Coupon{Code: "VELHO", Type: models.CouponFixed, Value: 1000},
			subtotal: 5000,
			wantErr:  true,
		},
		{
			name:     "expired",
			coupon:   models.Coupon{Code: "EXPIRADO", Type: models.CouponFixed, Value: 1000, Active: true, ExpiresAt: &past},
			subtotal: 5000,
			wantErr:  true,
		},
		{
			name:     "below minimum subtotal",
			coupon:   models.Coupon{Code: "MINIMO", Type: models.CouponFixed, Value: 1000, MinSubtotalCents: 10000, Active: true},
			subtotal: 5000,
			wantErr:  true,
		},
		{
			name:     "unknown type",
			coupon:   models.Coupon{Code: "ESTRANHO", Type: "bogus", Active: true},
			subtotal: 5000,
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, free, err := ComputeDiscount(&tc.coupon, tc.subtotal, now)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("discount = %d, want %d", got, tc.want)
			}
			if free != tc.freeShipping {
				t.Fatalf("freeShipping = %v, want %v", free, tc.freeShipping)
			}
		})
	}
}
