package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxNewsEvents caps the exchange-wide news feed.
const MaxNewsEvents = 20

// Simulation speed bounds.
const (
	MinSpeed = 0.25
	MaxSpeed = 10.0
)

// Trend is the exchange-wide market trend.
type Trend int

const (
	TrendNeutral Trend = iota
	TrendBullish
	TrendBearish
)

// trend string constants to avoid magic strings
const (
	trendStringNeutral = "neutral"
	trendStringBullish = "bullish"
	trendStringBearish = "bearish"
)

// String returns the string representation of the trend.
func (t Trend) String() string {
	switch t {
	case TrendNeutral:
		return trendStringNeutral
	case TrendBullish:
		return trendStringBullish
	case TrendBearish:
		return trendStringBearish
	default:
		return "unknown"
	}
}

// NewsEvent is a single sector headline emitted by the news generator.
// Impact is the headline's fractional price impact (0.04 = +4%).
type NewsEvent struct {
	Time     time.Time       `json:"ts"`
	Sector   string          `json:"sector"`
	Headline string          `json:"headline"`
	Impact   decimal.Decimal `json:"impact"`
}

// ExchangeState is the full exchange-wide state published to subscribers.
// Bias values are per-tick fractions (0.001 = 0.1% per tick).
type ExchangeState struct {
	Time        time.Time                  `json:"ts"`
	Open        bool                       `json:"open"`
	Paused      bool                       `json:"paused"`
	Speed       float64                    `json:"speed"`
	Trend       Trend                      `json:"trend"`
	TrendBias   decimal.Decimal            `json:"trend_bias"`
	SectorBias  map[string]decimal.Decimal `json:"sector_bias,omitempty"`
	News        []NewsEvent                `json:"news,omitempty"`
	Instruments []InstrumentSnapshot       `json:"instruments"`
}

// Halted reports whether trading activity is suspended.
func (s ExchangeState) Halted() bool {
	return !s.Open || s.Paused
}

// ClampSpeed bounds a requested simulation speed.
func ClampSpeed(speed float64) float64 {
	if speed < MinSpeed {
		return MinSpeed
	}
	if speed > MaxSpeed {
		return MaxSpeed
	}
	return speed
}
