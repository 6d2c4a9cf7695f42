package domain

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// CommissionRate is the commission charged on every order: 0.5% of gross.
var CommissionRate = decimal.NewFromFloat(0.005)

// Side represents the direction of an executed order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

const (
	sideStringBuy  = "buy"
	sideStringSell = "sell"
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return sideStringBuy
	case SideSell:
		return sideStringSell
	default:
		return "unknown"
	}
}

// OrderPreview is the pure cost breakdown of a prospective order.
type OrderPreview struct {
	Ticker     string          `json:"ticker"`
	Side       Side            `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
}

// NewOrderPreview computes gross, commission and net for an order.
// Net is gross+commission for buys and gross-commission for sells.
func NewOrderPreview(ticker string, side Side, quantity int64, price decimal.Decimal) OrderPreview {
	gross := price.Mul(decimal.NewFromInt(quantity))
	commission := gross.Mul(CommissionRate)
	net := gross.Add(commission)
	if side == SideSell {
		net = gross.Sub(commission)
	}
	return OrderPreview{
		Ticker:     ticker,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Gross:      gross,
		Commission: commission,
		Net:        net,
	}
}

// Transaction is an immutable record of an executed order. The log it lives
// in is append-only; records are never mutated or deleted.
type Transaction struct {
	ID         int64           `json:"id"`
	Time       time.Time       `json:"ts"`
	Side       Side            `json:"side"`
	Ticker     string          `json:"ticker"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
}

// NewTransaction builds a transaction from a preview and validates its
// accounting invariants. A violation here is a defect, not a user error.
func NewTransaction(id int64, ts time.Time, p OrderPreview) (Transaction, error) {
	tx := Transaction{
		ID:         id,
		Time:       ts,
		Side:       p.Side,
		Ticker:     p.Ticker,
		Quantity:   p.Quantity,
		Price:      p.Price,
		Gross:      p.Gross,
		Commission: p.Commission,
		Net:        p.Net,
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Validate checks gross = price×quantity and net = gross ± commission.
func (t Transaction) Validate() error {
	if t.Quantity <= 0 {
		return errors.Errorf("transaction %d: non-positive quantity %d", t.ID, t.Quantity)
	}
	wantGross := t.Price.Mul(decimal.NewFromInt(t.Quantity))
	if !t.Gross.Equal(wantGross) {
		return errors.Errorf("transaction %d: gross %s does not match price×quantity %s", t.ID, t.Gross, wantGross)
	}
	wantNet := t.Gross.Add(t.Commission)
	if t.Side == SideSell {
		wantNet = t.Gross.Sub(t.Commission)
	}
	if !t.Net.Equal(wantNet) {
		return errors.Errorf("transaction %d: net %s does not match gross±commission %s", t.ID, t.Net, wantNet)
	}
	return nil
}

// String returns a human-readable string representation.
func (t Transaction) String() string {
	return fmt.Sprintf("#%d %s %d %s @ %s net %s", t.ID, t.Side, t.Quantity, t.Ticker, t.Price, t.Net)
}
