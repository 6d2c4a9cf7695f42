// Package domain defines core data structures used throughout the simulator.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxHistoryPoints caps the per-instrument price history.
const MaxHistoryPoints = 100

// MinPrice is the floor below which a simulated price never falls.
var MinPrice = decimal.NewFromFloat(0.01)

// PricePoint is a single point of an instrument's price history.
type PricePoint struct {
	Time  time.Time       `json:"ts"`
	Price decimal.Decimal `json:"price"`
}

// InstrumentSnapshot is an immutable point-in-time view of one instrument.
// Holders must not mutate History; workers replace the whole snapshot.
type InstrumentSnapshot struct {
	Ticker        string          `json:"ticker"`
	Name          string          `json:"name"`
	Sector        string          `json:"sector"`
	Volatility    decimal.Decimal `json:"volatility"`
	Price         decimal.Decimal `json:"price"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        int64           `json:"volume"`
	History       []PricePoint    `json:"history,omitempty"`
}

// NewInstrumentSnapshot seeds a snapshot at its starting price.
func NewInstrumentSnapshot(name, ticker, sector string, price, volatility decimal.Decimal, now time.Time) InstrumentSnapshot {
	if price.LessThan(MinPrice) {
		price = MinPrice
	}
	return InstrumentSnapshot{
		Ticker:        ticker,
		Name:          name,
		Sector:        sector,
		Volatility:    volatility,
		Price:         price,
		Open:          price,
		High:          price,
		Low:           price,
		Change:        decimal.Zero,
		ChangePercent: decimal.Zero,
		History:       []PricePoint{{Time: now, Price: price}},
	}
}
