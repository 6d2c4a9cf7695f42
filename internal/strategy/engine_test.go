package strategy

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/bourse/internal/domain"
	"github.com/vadiminshakov/bourse/internal/market"
)

type fakeMarket struct {
	open   bool
	paused bool
}

func (m *fakeMarket) IsOpen() bool   { return m.open }
func (m *fakeMarket) IsPaused() bool { return m.paused }

func (m *fakeMarket) SubscribeUpdates() chan market.PriceUpdate {
	return make(chan market.PriceUpdate, 1)
}

func (m *fakeMarket) UnsubscribeUpdates(ch chan market.PriceUpdate) {}

type order struct {
	side   domain.Side
	ticker string
	qty    int64
}

type fakeExecutor struct {
	holdings map[string]domain.Holding
	orders   []order
	buyErr   error
	sellErr  error
	nextID   int64
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{holdings: make(map[string]domain.Holding)}
}

func (f *fakeExecutor) Buy(ticker string, qty int64) (domain.Transaction, error) {
	if f.buyErr != nil {
		return domain.Transaction{}, f.buyErr
	}
	f.orders = append(f.orders, order{side: domain.SideBuy, ticker: ticker, qty: qty})
	f.nextID++
	return domain.NewTransaction(f.nextID, time.Now(),
		domain.NewOrderPreview(ticker, domain.SideBuy, qty, decimal.NewFromInt(100)))
}

func (f *fakeExecutor) Sell(ticker string, qty int64) (domain.Transaction, error) {
	if f.sellErr != nil {
		return domain.Transaction{}, f.sellErr
	}
	f.orders = append(f.orders, order{side: domain.SideSell, ticker: ticker, qty: qty})
	f.nextID++
	return domain.NewTransaction(f.nextID, time.Now(),
		domain.NewOrderPreview(ticker, domain.SideSell, qty, decimal.NewFromInt(100)))
}

func (f *fakeExecutor) Holding(ticker string) (domain.Holding, bool) {
	h, ok := f.holdings[ticker]
	return h, ok
}

func dipUpdate(ticker string, open, price float64) market.PriceUpdate {
	return market.PriceUpdate{
		Ticker: ticker,
		Snapshot: domain.InstrumentSnapshot{
			Ticker: ticker,
			Open:   decimal.NewFromFloat(open),
			High:   decimal.NewFromFloat(open),
			Price:  decimal.NewFromFloat(price),
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeExecutor, *fakeMarket) {
	t.Helper()
	m := &fakeMarket{open: true}
	exec := newFakeExecutor()
	return NewEngine(m, exec, nil, nil), exec, m
}

func TestUpsertRuleValidatesAndAssignsID(t *testing.T) {
	e, _, _ := newTestEngine(t)

	rule, err := e.UpsertRule(domain.StrategyRule{
		Kind:        domain.StrategyDipBuy,
		DropPercent: decimal.NewFromInt(3),
		Budget:      decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	require.NotEmpty(t, rule.ID)
	require.True(t, rule.Enabled)

	_, err = e.UpsertRule(domain.StrategyRule{Kind: domain.StrategyDipBuy})
	require.Error(t, err)
}

func TestUpsertRulePreservesLastFired(t *testing.T) {
	e, exec, _ := newTestEngine(t)

	rule, err := e.UpsertRule(domain.StrategyRule{
		Kind:        domain.StrategyDipBuy,
		Ticker:      "NBS",
		Cooldown:    time.Hour,
		DropPercent: decimal.NewFromInt(3),
		Budget:      decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Len(t, exec.orders, 1)

	// editing the rule must not reset the cooldown clock
	rule.Budget = decimal.NewFromInt(2000)
	_, err = e.UpsertRule(rule)
	require.NoError(t, err)

	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Len(t, exec.orders, 1, "edited rule must stay on cooldown")
}

func TestDipBuyFiresAndSizesByBudget(t *testing.T) {
	e, exec, _ := newTestEngine(t)

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:        domain.StrategyDipBuy,
		Ticker:      "NBS",
		DropPercent: decimal.NewFromInt(3),
		Basis:       domain.BasisOpen,
		Budget:      decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	// 2% below open: no fire
	e.evaluate(dipUpdate("NBS", 100, 98))
	require.Empty(t, exec.orders)

	// 4% below open: fire, quantity floor(1000/96) = 10
	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Len(t, exec.orders, 1)
	require.Equal(t, order{side: domain.SideBuy, ticker: "NBS", qty: 10}, exec.orders[0])

	triggers := e.Triggers()
	require.Len(t, triggers, 1)
	require.Equal(t, domain.StrategyDipBuy, triggers[0].Kind)
}

func TestDipBuySkipsWhenBudgetBelowOneShare(t *testing.T) {
	e, exec, _ := newTestEngine(t)

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:        domain.StrategyDipBuy,
		Ticker:      "NBS",
		DropPercent: decimal.NewFromInt(3),
		Budget:      decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Empty(t, exec.orders)
}

func TestDipBuyCooldown(t *testing.T) {
	e, exec, _ := newTestEngine(t)

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:        domain.StrategyDipBuy,
		Ticker:      "NBS",
		Cooldown:    time.Hour,
		DropPercent: decimal.NewFromInt(3),
		Budget:      decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	e.evaluate(dipUpdate("NBS", 100, 96))
	e.evaluate(dipUpdate("NBS", 100, 95))
	require.Len(t, exec.orders, 1, "second dip within cooldown must not fire")
}

func TestDipBuyRejectedOrderLeavesCooldownUntouched(t *testing.T) {
	e, exec, _ := newTestEngine(t)

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:        domain.StrategyDipBuy,
		Ticker:      "NBS",
		Cooldown:    time.Hour,
		DropPercent: decimal.NewFromInt(3),
		Budget:      decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	exec.buyErr = errors.New("insufficient funds")
	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Empty(t, exec.orders)
	require.Empty(t, e.Triggers())

	// funds arrive, the next event retries immediately
	exec.buyErr = nil
	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Len(t, exec.orders, 1)
}

func TestDipBuyTrailingAverageBasis(t *testing.T) {
	e, exec, _ := newTestEngine(t)

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:           domain.StrategyDipBuy,
		Ticker:         "NBS",
		DropPercent:    decimal.NewFromInt(3),
		Basis:          domain.BasisTrailingAverage,
		TrailingWindow: 4,
		Budget:         decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	u := dipUpdate("NBS", 100, 96)

	// not enough history: skip, no order
	u.Snapshot.History = []domain.PricePoint{{Price: decimal.NewFromInt(100)}}
	e.evaluate(u)
	require.Empty(t, exec.orders)

	// trailing average 100, price 96 is 4% below
	u.Snapshot.History = []domain.PricePoint{
		{Price: decimal.NewFromInt(101)},
		{Price: decimal.NewFromInt(99)},
		{Price: decimal.NewFromInt(102)},
		{Price: decimal.NewFromInt(98)},
	}
	e.evaluate(u)
	require.Len(t, exec.orders, 1)
}

func TestTakeProfitSellsFraction(t *testing.T) {
	e, exec, _ := newTestEngine(t)
	exec.holdings["NBS"] = domain.Holding{Ticker: "NBS", Quantity: 10, AvgCost: decimal.NewFromInt(100)}

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:          domain.StrategyTakeProfit,
		Ticker:        "NBS",
		ProfitPercent: decimal.NewFromInt(5),
		SellFraction:  decimal.NewFromFloat(0.5),
	})
	require.NoError(t, err)

	// +4%: hold
	e.evaluate(dipUpdate("NBS", 100, 104))
	require.Empty(t, exec.orders)

	// +6%: sell half
	e.evaluate(dipUpdate("NBS", 100, 106))
	require.Len(t, exec.orders, 1)
	require.Equal(t, order{side: domain.SideSell, ticker: "NBS", qty: 5}, exec.orders[0])
}

func TestStopLossSellsOnDrawdown(t *testing.T) {
	e, exec, _ := newTestEngine(t)
	exec.holdings["NBS"] = domain.Holding{Ticker: "NBS", Quantity: 10, AvgCost: decimal.NewFromInt(100)}

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:         domain.StrategyStopLoss,
		Ticker:       "NBS",
		LossPercent:  decimal.NewFromInt(4),
		SellFraction: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	e.evaluate(dipUpdate("NBS", 100, 97))
	require.Empty(t, exec.orders, "-3% is inside the loss limit")

	e.evaluate(dipUpdate("NBS", 100, 95))
	require.Len(t, exec.orders, 1)
	require.Equal(t, order{side: domain.SideSell, ticker: "NBS", qty: 10}, exec.orders[0])
}

func TestExitRulesNeedAHolding(t *testing.T) {
	e, exec, _ := newTestEngine(t)

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:          domain.StrategyTakeProfit,
		Ticker:        "NBS",
		ProfitPercent: decimal.NewFromInt(5),
		SellFraction:  decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	e.evaluate(dipUpdate("NBS", 100, 120))
	require.Empty(t, exec.orders)
}

func TestSellFractionClampedToAtLeastOneShare(t *testing.T) {
	e, exec, _ := newTestEngine(t)
	exec.holdings["NBS"] = domain.Holding{Ticker: "NBS", Quantity: 3, AvgCost: decimal.NewFromInt(100)}

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:          domain.StrategyTakeProfit,
		Ticker:        "NBS",
		ProfitPercent: decimal.NewFromInt(5),
		SellFraction:  decimal.NewFromFloat(0.1),
	})
	require.NoError(t, err)

	e.evaluate(dipUpdate("NBS", 100, 110))
	require.Len(t, exec.orders, 1)
	require.Equal(t, int64(1), exec.orders[0].qty)
}

func TestEngineIdleWhileMarketHalted(t *testing.T) {
	e, exec, m := newTestEngine(t)

	_, err := e.UpsertRule(domain.StrategyRule{
		Kind:        domain.StrategyDipBuy,
		Ticker:      "NBS",
		DropPercent: decimal.NewFromInt(3),
		Budget:      decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	m.paused = true
	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Empty(t, exec.orders)

	m.paused = false
	m.open = false
	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Empty(t, exec.orders)
}

func TestDisabledRuleDoesNotFire(t *testing.T) {
	e, exec, _ := newTestEngine(t)

	rule, err := e.UpsertRule(domain.StrategyRule{
		Kind:        domain.StrategyDipBuy,
		Ticker:      "NBS",
		DropPercent: decimal.NewFromInt(3),
		Budget:      decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	require.NoError(t, e.SetEnabled(rule.ID, false))
	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Empty(t, exec.orders)

	require.NoError(t, e.SetEnabled(rule.ID, true))
	e.evaluate(dipUpdate("NBS", 100, 96))
	require.Len(t, exec.orders, 1)
}

func TestRemoveStrategyRule(t *testing.T) {
	e, _, _ := newTestEngine(t)

	rule, err := e.UpsertRule(domain.StrategyRule{
		Kind:        domain.StrategyDipBuy,
		DropPercent: decimal.NewFromInt(3),
		Budget:      decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	require.NoError(t, e.RemoveRule(rule.ID))
	require.ErrorIs(t, e.RemoveRule(rule.ID), ErrRuleNotFound)
	require.Empty(t, e.Rules())
}
