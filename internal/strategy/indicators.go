package strategy

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bourse/internal/domain"
)

// ErrNoData signals that an instrument lacks the history a rule needs.
// Callers skip the rule and retry on a later event.
var ErrNoData = errors.New("not enough price history")

// trailingAverage computes the simple moving average over the last window
// points of the price history.
func trailingAverage(history []domain.PricePoint, window int) (decimal.Decimal, error) {
	if window <= 0 {
		window = domain.DefaultTrailingWindow
	}
	if len(history) < window {
		return decimal.Decimal{}, errors.Wrapf(ErrNoData, "need %d points, got %d", window, len(history))
	}

	closes := make([]float64, 0, window)
	for _, p := range history[len(history)-window:] {
		closes = append(closes, p.Price.InexactFloat64())
	}

	sma := trend.NewSmaWithPeriod[float64](window)
	values := helper.ChanToSlice(sma.Compute(helper.SliceToChan(closes)))
	if len(values) == 0 {
		return decimal.Decimal{}, errors.Wrap(ErrNoData, "sma produced no values")
	}

	return decimal.NewFromFloat(values[len(values)-1]), nil
}
