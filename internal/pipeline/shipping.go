package pipeline

import (
	"fmt"
	"strings"

	"github.com/shohag/orderpipe/internal/config"
	"github.com/shohag/orderpipe/internal/models"
)

// Estimator picks a shipping method from a configured table: the first
// method whose weight limit covers the order wins.
type Estimator struct {
	methods          []config.ShippingMethodConfig
	freeOverCents    int64
	allowedCountries map[string]bool // empty = ship anywhere
}

func NewEstimator(cfg config.ShippingConfig) *Estimator {
	allowed := make(map[string]bool, len(cfg.AllowedCountries))
	for _, c := range cfg.AllowedCountries {
		allowed[strings.ToUpper(c)] = true
	}
	return &Estimator{
		methods:          cfg.Methods,
		freeOverCents:    cfg.FreeOverCents,
		allowedCountries: allowed,
	}
}

// Estimate returns the shipping amount in cents and the method name.
func (e *Estimator) Estimate(addr models.Address, weightGrams int, subtotalCents int64) (int64, string, error) {
	if len(e.allowedCountries) > 0 && !e.allowedCountries[strings.ToUpper(addr.Country)] {
		return 0, "", fmt.Errorf("%w: no methods ship to %s", ErrShippingUnavailable, addr.Country)
	}

	for _, m := range e.methods {
		if m.MaxWeightGrams > 0 && weightGrams > m.MaxWeightGrams {
			continue
		}
		if e.freeOverCents > 0 && subtotalCents >= e.freeOverCents {
			return 0, m.Name, nil
		}
		return m.RateCents, m.Name, nil
	}

	return 0, "", fmt.Errorf("%w: order weight %dg exceeds all method limits", ErrShippingUnavailable, weightGrams)
}
