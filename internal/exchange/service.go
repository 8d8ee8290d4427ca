// Package exchange looks up currency rates and normalizes claim amounts into
// a company's base currency.
package exchange

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRateUnavailable is returned when no usable rate exists for a pair.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

var errInvalidNonPositiveRate = errors.New("conversion rate must be positive")

// Rate is the number of quote-currency units per one base-currency unit,
// published on Date.
type Rate struct {
	Value decimal.Decimal
	Date  time.Time
}

// RateProvider returns the rate between two currencies as of a point in time.
type RateProvider interface {
	RateAt(ctx context.Context, from, to string, at time.Time) (Rate, error)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateConversionRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return errInvalidNonPositiveRate
	}
	return nil
}
