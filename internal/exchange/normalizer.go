package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// DefaultStalenessWindow is how old a rate may be relative to the claim date.
// It covers weekends and a public holiday on either side.
const DefaultStalenessWindow = 96 * time.Hour

// LastKnownSource exposes the most recent rate seen for a pair.
type LastKnownSource interface {
	LastKnown(from, to string) (Rate, bool)
}

// Normalizer converts claim amounts into a company's base currency.
type Normalizer struct {
	provider  RateProvider
	staleness time.Duration
}

// NewNormalizer creates a Normalizer. A non-positive staleness uses
// DefaultStalenessWindow.
func NewNormalizer(provider RateProvider, staleness time.Duration) *Normalizer {
	if staleness <= 0 {
		staleness = DefaultStalenessWindow
	}
	return &Normalizer{provider: provider, staleness: staleness}
}

// Normalize converts amount from sourceCurrency into companyCurrency using the
// rate published as of asOf. It fails with ErrRateUnavailable when no rate
// within the staleness window can be obtained.
func (n *Normalizer) Normalize(
	ctx context.Context,
	amount decimal.Decimal,
	sourceCurrency, companyCurrency string,
	asOf time.Time,
) (models.RateSnapshot, error) {
	source := normalizeCode(sourceCurrency)
	target := normalizeCode(companyCurrency)
	if source == "" || target == "" {
		return models.RateSnapshot{}, errors.New("source and company currencies are required")
	}
	if !amount.IsPositive() {
		return models.RateSnapshot{}, errors.New("amount must be positive")
	}

	if source == target {
		return models.RateSnapshot{
			Amount:   amount.Round(2),
			Currency: target,
			Rate:     decimal.NewFromInt(1),
			RateDate: asOf.UTC(),
		}, nil
	}

	if n.provider == nil {
		return models.RateSnapshot{}, fmt.Errorf("%w: no rate provider configured", ErrRateUnavailable)
	}

	rate, err := n.provider.RateAt(ctx, source, target, asOf)
	if err != nil {
		return models.RateSnapshot{}, fmt.Errorf("%w: %s->%s: %w", ErrRateUnavailable, source, target, err)
	}
	if err := validateConversionRate(rate.Value); err != nil {
		return models.RateSnapshot{}, fmt.Errorf("%w: %w", ErrRateUnavailable, err)
	}
	if !asOf.IsZero() && asOf.Sub(rate.Date) > n.staleness {
		return models.RateSnapshot{}, fmt.Errorf("%w: rate dated %s is older than %s",
			ErrRateUnavailable, rate.Date.Format(frankfurterDateLayout), n.staleness)
	}

	return snapshot(amount, target, rate), nil
}

// LastKnown converts with the most recent cached rate, ignoring staleness.
// It is the fallback for callers that accept an outdated rate.
func (n *Normalizer) LastKnown(amount decimal.Decimal, sourceCurrency, companyCurrency string) (models.RateSnapshot, error) {
	src, ok := n.provider.(LastKnownSource)
	if !ok {
		return models.RateSnapshot{}, fmt.Errorf("%w: no cached rates", ErrRateUnavailable)
	}
	target := normalizeCode(companyCurrency)
	rate, ok := src.LastKnown(sourceCurrency, target)
	if !ok {
		return models.RateSnapshot{}, fmt.Errorf("%w: no rate seen for %s->%s",
			ErrRateUnavailable, normalizeCode(sourceCurrency), target)
	}
	return snapshot(amount, target, rate), nil
}

func snapshot(amount decimal.Decimal, target string, rate Rate) models.RateSnapshot {
	return models.RateSnapshot{
		Amount:   amount.Mul(rate.Value).Round(2),
		Currency: target,
		Rate:     rate.Value,
		RateDate: rate.Date,
	}
}
