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
	workerBaseIntervalMin = 1 * time.Second
	workerBaseIntervalMax = 3 * time.Second
	workerIntervalFloor   = 50 * time.Millisecond
	idleRecheckInterval   = 250 * time.Millisecond

	// maxTickMove bounds the combined per-tick move after noise and biases.
	maxTickMove = 0.05
	// baseNoise is the half-range of the raw per-tick noise before volatility scaling.
	baseNoise = 0.05

	volumeBaseLot    = 1_000
	volumeLotSpread  = 10_000
	volumeMoveFactor = 20.0
)

// runWorker evolves one ticker's price until ctx is cancelled. It idles
// while the exchange is closed or paused and re-checks that state after
// every wait, so a pause taking effect mid-interval suppresses the tick.
func runWorker(ctx context.Context, store *Store, ticker string, logger *zap.Logger) {
	logger.Debug("price worker started", zap.String("ticker", ticker))
	defer logger.Debug("price worker stopped", zap.String("ticker", ticker))

	for {
		if store.Halted() {
			if !sleep(ctx, idleRecheckInterval) {
				return
			}
			continue
		}

		if !sleep(ctx, tickInterval(store.Speed())) {
			return
		}
		if store.Halted() {
			continue
		}

		snap, ok := store.Get(ticker)
		if !ok {
			logger.Warn("worker ticker missing from store", zap.String("ticker", ticker))
			return
		}

		noise := (rand.Float64()*2 - 1) * baseNoise
		lot := volumeBaseLot + rand.Int64N(volumeLotSpread)
		next := evolveSnapshot(snap, noise, store.TrendBias(), store.SectorBias(snap.Sector), lot, time.Now())
		store.Set(ticker, next)
	}
}

// tickInterval draws the randomized wait, inversely scaled by speed.
func tickInterval(speed float64) time.Duration {
	base := workerBaseIntervalMin + time.Duration(rand.Int64N(int64(workerBaseIntervalMax-workerBaseIntervalMin)))
	return scaleInterval(base, speed, workerIntervalFloor)
}

// scaleInterval divides an interval by the simulation speed, bounded below.
func scaleInterval(base time.Duration, speed float64, floor time.Duration) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	scaled := time.Duration(float64(base) / speed)
	if scaled < floor {
		return floor
	}
	return scaled
}

// sleep waits d or until cancellation. Returns false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// evolveSnapshot computes the next snapshot for one tick. The combined move
// (noise×volatility + trend bias + sector bias) is clamped to ±5% and the
// resulting price never drops below domain.MinPrice.
func evolveSnapshot(snap domain.InstrumentSnapshot, noise float64, trendBias, sectorBias decimal.Decimal, lot int64, now time.Time) domain.InstrumentSnapshot {
	move := noise*snap.Volatility.InexactFloat64() + trendBias.InexactFloat64() + sectorBias.InexactFloat64()
	if move > maxTickMove {
		move = maxTickMove
	}
	if move < -maxTickMove {
		move = -maxTickMove
	}

	price := snap.Price.Mul(decimal.NewFromFloat(1 + move))
	if price.LessThan(domain.MinPrice) {
		price = domain.MinPrice
	}

	next := snap
	next.Price = price
	if price.GreaterThan(next.High) {
		next.High = price
	}
	if price.LessThan(next.Low) {
		next.Low = price
	}
	next.Change = price.Sub(next.Open)
	next.ChangePercent = decimal.Zero
	if next.Open.IsPositive() {
		next.ChangePercent = next.Change.Div(next.Open).Mul(decimal.NewFromInt(100))
	}

	moveMagnitude := move
	if moveMagnitude < 0 {
		moveMagnitude = -moveMagnitude
	}
	next.Volume = snap.Volume + int64(float64(lot)*(1+volumeMoveFactor*moveMagnitude))

	history := make([]domain.PricePoint, len(snap.History), len(snap.History)+1)
	copy(history, snap.History)
	history = append(history, domain.PricePoint{Time: now, Price: price})
	if len(history) > domain.MaxHistoryPoints {
		history = history[len(history)-domain.MaxHistoryPoints:]
	}
	next.History = history

	return next
}
