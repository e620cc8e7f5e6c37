package pipeline

import "errors"

var (
	ErrShippingUnavailable = errors.New("no shipping method available")
	ErrCouponInvalid       = errors.New("coupon invalid")
	ErrPaymentDeclined     = errors.New("payment declined")
)
