package market

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bourse/internal/domain"
	"go.uber.org/zap"
)

const (
	newsIntervalMin   = 8 * time.Second
	newsIntervalMax   = 15 * time.Second
	newsIntervalFloor = 200 * time.Millisecond

	newsBiasResetMin = 20 * time.Second
	newsBiasResetMax = 40 * time.Second

	// maxNewsImpact is the headline impact half-range (fraction).
	maxNewsImpact = 0.04
	// maxSectorBias clamps the derived per-tick sector bias (fraction).
	maxSectorBias = 0.01
)

var positiveHeadlines = []string{
	"%s sector beats earnings expectations",
	"analysts upgrade outlook for %s stocks",
	"%s demand surges on strong quarterly reports",
	"regulators approve favourable rules for %s",
}

var negativeHeadlines = []string{
	"%s sector hit by supply chain disruption",
	"analysts cut forecasts for %s stocks",
	"%s profits squeezed by rising costs",
	"regulatory probe weighs on %s shares",
}

// runNewsGenerator emits sector news on a randomized interval and applies a
// decaying per-tick sector bias. Each bias is scheduled to reset to zero by
// an independent timer goroutine so overlapping headlines do not leak bias.
func runNewsGenerator(ctx context.Context, store *Store, logger *zap.Logger) {
	logger.Debug("news generator started")
	defer logger.Debug("news generator stopped")

	sectors := store.Sectors()
	if len(sectors) == 0 {
		logger.Warn("news generator has no sectors to report on")
		return
	}

	for {
		if store.Halted() {
			if !sleep(ctx, idleRecheckInterval) {
				return
			}
			continue
		}

		base := newsIntervalMin + time.Duration(rand.Int64N(int64(newsIntervalMax-newsIntervalMin)))
		if !sleep(ctx, scaleInterval(base, store.Speed(), newsIntervalFloor)) {
			return
		}
		if store.Halted() {
			continue
		}

		sector := sectors[rand.IntN(len(sectors))]
		impact := (rand.Float64()*2 - 1) * maxNewsImpact

		event := domain.NewsEvent{
			Time:     time.Now(),
			Sector:   sector,
			Headline: renderHeadline(sector, impact),
			Impact:   decimal.NewFromFloat(impact),
		}
		store.PushNews(event)

		bias := sectorBiasFor(impact)
		store.SetSectorBias(sector, bias)
		logger.Info("sector news published",
			zap.String("sector", sector),
			zap.String("headline", event.Headline),
			zap.String("bias", bias.String()))

		resetAfter := newsBiasResetMin + time.Duration(rand.Int64N(int64(newsBiasResetMax-newsBiasResetMin)))
		resetAfter = scaleInterval(resetAfter, store.Speed(), newsIntervalFloor)
		scheduleBiasReset(store, sector, resetAfter, logger)
	}
}

// scheduleBiasReset zeroes a sector bias after the decay window. The timer
// runs independently of the generator's context: stopping the generator
// (pause or close) must not strand a bias that was promised to decay.
func scheduleBiasReset(store *Store, sector string, after time.Duration, logger *zap.Logger) {
	go func() {
		<-time.After(after)
		store.SetSectorBias(sector, decimal.Zero)
		logger.Debug("sector bias expired", zap.String("sector", sector))
	}()
}

// sectorBiasFor derives the per-tick bias from a headline impact: the
// magnitude scales with |impact|/maxNewsImpact, clamped to ±maxSectorBias.
func sectorBiasFor(impact float64) decimal.Decimal {
	magnitude := impact / maxNewsImpact * maxSectorBias
	if magnitude > maxSectorBias {
		magnitude = maxSectorBias
	}
	if magnitude < -maxSectorBias {
		magnitude = -maxSectorBias
	}
	return decimal.NewFromFloat(magnitude)
}

func renderHeadline(sector string, impact float64) string {
	if impact >= 0 {
		return fmt.Sprintf(positiveHeadlines[rand.IntN(len(positiveHeadlines))], sector)
	}
	return fmt.Sprintf(negativeHeadlines[rand.IntN(len(negativeHeadlines))], sector)
}
