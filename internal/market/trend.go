package market

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bourse/internal/domain"
	"go.uber.org/zap"
)

const (
	trendIntervalMin   = 30 * time.Second
	trendIntervalMax   = 60 * time.Second
	trendIntervalFloor = 250 * time.Millisecond

	// Per-tick bias fractions drawn on each trend change.
	trendBiasMin = 0.0005 // 0.05%
	trendBiasMax = 0.0020 // 0.20%
)

// runTrendGenerator mutates the exchange-wide trend on a randomized
// interval. While the exchange is closed or paused it idles without
// consuming an interval.
func runTrendGenerator(ctx context.Context, store *Store, logger *zap.Logger) {
	logger.Debug("trend generator started")
	defer logger.Debug("trend generator stopped")

	for {
		if store.Halted() {
			if !sleep(ctx, idleRecheckInterval) {
				return
			}
			continue
		}

		base := trendIntervalMin + time.Duration(rand.Int64N(int64(trendIntervalMax-trendIntervalMin)))
		if !sleep(ctx, scaleInterval(base, store.Speed(), trendIntervalFloor)) {
			return
		}
		if store.Halted() {
			continue
		}

		trend, bias := drawTrend()
		store.SetTrend(trend, bias)
		logger.Info("market trend changed",
			zap.String("trend", trend.String()),
			zap.String("bias", bias.String()))
	}
}

// drawTrend picks a trend uniformly and a bias within the trend's range.
func drawTrend() (domain.Trend, decimal.Decimal) {
	magnitude := trendBiasMin + rand.Float64()*(trendBiasMax-trendBiasMin)
	switch rand.IntN(3) {
	case 0:
		return domain.TrendBullish, decimal.NewFromFloat(magnitude)
	case 1:
		return domain.TrendBearish, decimal.NewFromFloat(-magnitude)
	default:
		return domain.TrendNeutral, decimal.Zero
	}
}
