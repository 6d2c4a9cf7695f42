package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is an open position in the portfolio. AvgCost is the weighted
// average cost per share computed from net (commission-inclusive) buy
// amounts. A holding is removed when its quantity reaches zero.
type Holding struct {
	Ticker   string          `json:"ticker"`
	Quantity int64           `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avg_cost"`
}

// PositionValuation is a holding valued against the current market price.
type PositionValuation struct {
	Ticker     string          `json:"ticker"`
	Quantity   int64           `json:"quantity"`
	AvgCost    decimal.Decimal `json:"avg_cost"`
	Price      decimal.Decimal `json:"price"`
	Invested   decimal.Decimal `json:"invested"`
	Value      decimal.Decimal `json:"value"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPercent decimal.Decimal `json:"pnl_percent"`
}

// PortfolioState is the committed view of the ledger: cash, holdings, the
// transaction log and the derived valuation. Valuation fields are
// recomputed on every change, never stored authoritatively.
type PortfolioState struct {
	Time         time.Time           `json:"ts"`
	Cash         decimal.Decimal     `json:"cash"`
	Holdings     []Holding           `json:"holdings,omitempty"`
	Positions    []PositionValuation `json:"positions,omitempty"`
	Transactions []Transaction       `json:"transactions,omitempty"`
	Invested     decimal.Decimal     `json:"invested"`
	Value        decimal.Decimal     `json:"value"`
	PnL          decimal.Decimal     `json:"pnl"`
	PnLPercent   decimal.Decimal     `json:"pnl_percent"`
}

// Holding returns the holding for a ticker, if present.
func (s PortfolioState) Holding(ticker string) (Holding, bool) {
	for _, h := range s.Holdings {
		if h.Ticker == ticker {
			return h, true
		}
	}
	return Holding{}, false
}

// PnLPercentOf computes pnl/invested×100, or zero when invested is zero.
func PnLPercentOf(pnl, invested decimal.Decimal) decimal.Decimal {
	if invested.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(invested).Mul(decimal.NewFromInt(100))
}
