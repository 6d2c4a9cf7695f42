package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StrategyKind selects the automated trading behaviour of a rule.
type StrategyKind int

const (
	// StrategyDipBuy buys when price drops a configured percent below a reference.
	StrategyDipBuy StrategyKind = iota
	// StrategyTakeProfit sells part of a position once its P&L% reaches a target.
	StrategyTakeProfit
	// StrategyStopLoss sells part of a position once its P&L% falls below a limit.
	StrategyStopLoss
)

const (
	strategyStringDipBuy     = "dip_buy"
	strategyStringTakeProfit = "take_profit"
	strategyStringStopLoss   = "stop_loss"
)

// String returns the string representation of the strategy kind.
func (k StrategyKind) String() string {
	switch k {
	case StrategyDipBuy:
		return strategyStringDipBuy
	case StrategyTakeProfit:
		return strategyStringTakeProfit
	case StrategyStopLoss:
		return strategyStringStopLoss
	default:
		return "unknown"
	}
}

// ReferenceBasis selects the reference price for dip-buy rules.
type ReferenceBasis int

const (
	// BasisOpen compares against the session open price.
	BasisOpen ReferenceBasis = iota
	// BasisHigh compares against the session high.
	BasisHigh
	// BasisTrailingAverage compares against the trailing-N average price.
	BasisTrailingAverage
)

const (
	basisStringOpen     = "open"
	basisStringHigh     = "high"
	basisStringTrailing = "trailing_average"
)

// String returns the string representation of the basis.
func (b ReferenceBasis) String() string {
	switch b {
	case BasisOpen:
		return basisStringOpen
	case BasisHigh:
		return basisStringHigh
	case BasisTrailingAverage:
		return basisStringTrailing
	default:
		return "unknown"
	}
}

// DefaultTrailingWindow is the history window for BasisTrailingAverage
// when a rule does not set its own.
const DefaultTrailingWindow = 20

// StrategyRule is an automated trading rule. Ticker empty means the rule
// applies to every instrument. LastFired is maintained by the engine and
// advances only on successful orders.
type StrategyRule struct {
	ID       string        `json:"id"`
	Kind     StrategyKind  `json:"kind"`
	Ticker   string        `json:"ticker,omitempty"`
	Enabled  bool          `json:"enabled"`
	Cooldown time.Duration `json:"cooldown"`

	// dip-buy parameters
	DropPercent    decimal.Decimal `json:"drop_percent,omitempty"`
	Basis          ReferenceBasis  `json:"basis,omitempty"`
	TrailingWindow int             `json:"trailing_window,omitempty"`
	Budget         decimal.Decimal `json:"budget,omitempty"`

	// take-profit / stop-loss parameters
	ProfitPercent decimal.Decimal `json:"profit_percent,omitempty"`
	LossPercent   decimal.Decimal `json:"loss_percent,omitempty"`
	SellFraction  decimal.Decimal `json:"sell_fraction,omitempty"`

	LastFired time.Time `json:"last_fired,omitzero"`
}

// Validate checks the variant-specific parameters of the rule.
func (r StrategyRule) Validate() error {
	if r.Cooldown < 0 {
		return errors.New("cooldown must not be negative")
	}
	switch r.Kind {
	case StrategyDipBuy:
		if r.DropPercent.LessThanOrEqual(decimal.Zero) {
			return errors.New("drop percent must be positive")
		}
		if r.Budget.LessThanOrEqual(decimal.Zero) {
			return errors.New("budget must be positive")
		}
		if r.Basis == BasisTrailingAverage && r.TrailingWindow < 0 {
			return errors.New("trailing window must not be negative")
		}
	case StrategyTakeProfit:
		if r.ProfitPercent.LessThanOrEqual(decimal.Zero) {
			return errors.New("profit percent must be positive")
		}
		if !fractionValid(r.SellFraction) {
			return errors.New("sell fraction must be in (0, 1]")
		}
	case StrategyStopLoss:
		if r.LossPercent.LessThanOrEqual(decimal.Zero) {
			return errors.New("loss percent must be positive")
		}
		if !fractionValid(r.SellFraction) {
			return errors.New("sell fraction must be in (0, 1]")
		}
	default:
		return errors.Errorf("unknown strategy kind %d", r.Kind)
	}
	return nil
}

func fractionValid(f decimal.Decimal) bool {
	return f.GreaterThan(decimal.Zero) && f.LessThanOrEqual(decimal.NewFromInt(1))
}

// AppliesTo reports whether the rule watches the given ticker.
func (r StrategyRule) AppliesTo(ticker string) bool {
	return r.Ticker == "" || r.Ticker == ticker
}

// StrategyTrigger is an immutable record of an automated action taken.
type StrategyTrigger struct {
	RuleID   string          `json:"rule_id"`
	Kind     StrategyKind    `json:"kind"`
	Ticker   string          `json:"ticker"`
	Side     Side            `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"ts"`
	Message  string          `json:"message"`
}
