// Package portfolio implements the trading ledger: cash, holdings, the
// append-only transaction log and the derived valuation.
package portfolio

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bourse/internal/domain"
	"github.com/vadiminshakov/bourse/internal/events"
	"github.com/vadiminshakov/bourse/internal/market"
	"go.uber.org/zap"
)

const stateBuffer = 16

// marketReader is the slice of the instrument store the ledger needs.
type marketReader interface {
	Get(ticker string) (domain.InstrumentSnapshot, bool)
	IsOpen() bool
	IsPaused() bool
	SubscribeUpdates() chan market.PriceUpdate
	UnsubscribeUpdates(ch chan market.PriceUpdate)
}

// txJournal receives executed transactions for durable telemetry.
type txJournal interface {
	RecordTransaction(tx domain.Transaction) error
}

// lot accumulates the buy side of an open position. The weighted-average
// cost is always total net buy cost over total quantity bought, so sells
// never shift it. The lot resets when the holding is destroyed.
type lot struct {
	boughtQty int64
	netCost   decimal.Decimal
}

// Ledger executes market orders against live prices under one
// mutual-exclusion domain and publishes a committed state snapshot after
// every mutation. Reads are served from the committed snapshot without the
// write lock.
type Ledger struct {
	logger  *zap.Logger
	market  marketReader
	journal txJournal // optional

	mu           sync.Mutex
	cash         decimal.Decimal
	holdings     map[string]domain.Holding
	lots         map[string]lot
	transactions []domain.Transaction
	nextTxID     int64

	committed atomic.Pointer[domain.PortfolioState]
	broadcast *events.StateBroadcaster[domain.PortfolioState]
}

// NewLedger creates a ledger with the given starting cash. journal may be nil.
func NewLedger(m marketReader, startingCash decimal.Decimal, journal txJournal, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if startingCash.IsNegative() {
		return nil, errors.Errorf("starting cash must not be negative, got %s", startingCash)
	}
	l := &Ledger{
		logger:    logger,
		market:    m,
		journal:   journal,
		cash:      startingCash,
		holdings:  make(map[string]domain.Holding),
		lots:      make(map[string]lot),
		broadcast: events.NewStateBroadcaster[domain.PortfolioState](stateBuffer),
	}
	l.mu.Lock()
	l.commitLocked()
	l.mu.Unlock()
	return l, nil
}

// Run consumes price-change events and revalues the portfolio whenever a
// held ticker moves, until ctx is cancelled.
func (l *Ledger) Run(ctx context.Context) error {
	updates := l.market.SubscribeUpdates()
	defer l.market.UnsubscribeUpdates(updates)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			l.onPriceUpdate(u)
		}
	}
}

// onPriceUpdate revalues held positions. Events for tickers the ledger does
// not hold are filtered on the committed snapshot without taking the lock.
func (l *Ledger) onPriceUpdate(u market.PriceUpdate) {
	state := l.committed.Load()
	if state == nil {
		return
	}
	if _, held := state.Holding(u.Ticker); !held {
		return
	}
	l.mu.Lock()
	l.commitLocked()
	l.mu.Unlock()
}

// PreviewBuy computes the cost of a prospective buy without mutating state.
func (l *Ledger) PreviewBuy(ticker string, qty int64) (domain.OrderPreview, error) {
	preview, err := l.preview(ticker, domain.SideBuy, qty)
	if err != nil {
		return domain.OrderPreview{}, err
	}
	if preview.Net.GreaterThan(l.State().Cash) {
		return domain.OrderPreview{}, errors.Wrapf(domain.ErrInsufficientFunds,
			"buy %d %s needs %s", qty, ticker, preview.Net)
	}
	return preview, nil
}

// PreviewSell computes the proceeds of a prospective sell without mutating state.
func (l *Ledger) PreviewSell(ticker string, qty int64) (domain.OrderPreview, error) {
	return l.preview(ticker, domain.SideSell, qty)
}

func (l *Ledger) preview(ticker string, side domain.Side, qty int64) (domain.OrderPreview, error) {
	if !l.market.IsOpen() || l.market.IsPaused() {
		return domain.OrderPreview{}, domain.ErrMarketUnavailable
	}
	if qty <= 0 {
		return domain.OrderPreview{}, errors.Wrapf(domain.ErrInvalidQuantity, "got %d", qty)
	}
	snap, ok := l.market.Get(ticker)
	if !ok {
		return domain.OrderPreview{}, errors.Wrap(domain.ErrUnknownTicker, ticker)
	}
	return domain.NewOrderPreview(ticker, side, qty, snap.Price), nil
}

// Buy executes a market buy: debits cash by the net (commission-inclusive)
// amount, folds that net cost into the position's buy accumulators and
// appends a transaction. The whole mutation is atomic.
func (l *Ledger) Buy(ticker string, qty int64) (domain.Transaction, error) {
	preview, err := l.preview(ticker, domain.SideBuy, qty)
	if err != nil {
		return domain.Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if preview.Net.GreaterThan(l.cash) {
		return domain.Transaction{}, errors.Wrapf(domain.ErrInsufficientFunds,
			"buy %d %s needs %s, have %s", qty, ticker, preview.Net, l.cash)
	}

	tx, err := domain.NewTransaction(l.nextTxID+1, time.Now(), preview)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "build buy transaction")
	}

	l.cash = l.cash.Sub(preview.Net)

	lt := l.lots[ticker]
	lt.boughtQty += qty
	lt.netCost = lt.netCost.Add(preview.Net)
	l.lots[ticker] = lt

	h := l.holdings[ticker]
	h.Ticker = ticker
	h.Quantity += qty
	h.AvgCost = lt.netCost.Div(decimal.NewFromInt(lt.boughtQty))
	l.holdings[ticker] = h

	l.appendLocked(tx)

	l.logger.Info("buy executed",
		zap.String("ticker", ticker),
		zap.Int64("quantity", qty),
		zap.String("price", preview.Price.String()),
		zap.String("net", preview.Net.String()))
	return tx, nil
}

// Sell executes a market sell: credits cash by the net proceeds, reduces or
// removes the holding and appends a transaction. Atomic like Buy.
func (l *Ledger) Sell(ticker string, qty int64) (domain.Transaction, error) {
	preview, err := l.preview(ticker, domain.SideSell, qty)
	if err != nil {
		return domain.Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	h, held := l.holdings[ticker]
	if !held || h.Quantity < qty {
		return domain.Transaction{}, errors.Wrapf(domain.ErrInsufficientHoldings,
			"sell %d %s, own %d", qty, ticker, h.Quantity)
	}

	tx, err := domain.NewTransaction(l.nextTxID+1, time.Now(), preview)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "build sell transaction")
	}

	l.cash = l.cash.Add(preview.Net)
	h.Quantity -= qty
	if h.Quantity == 0 {
		delete(l.holdings, ticker)
		delete(l.lots, ticker)
	} else {
		l.holdings[ticker] = h
	}
	l.appendLocked(tx)

	l.logger.Info("sell executed",
		zap.String("ticker", ticker),
		zap.Int64("quantity", qty),
		zap.String("price", preview.Price.String()),
		zap.String("net", preview.Net.String()))
	return tx, nil
}

// State returns the latest committed portfolio state.
func (l *Ledger) State() domain.PortfolioState {
	if state := l.committed.Load(); state != nil {
		return *state
	}
	return domain.PortfolioState{}
}

// Holding returns the committed holding for a ticker, if present.
func (l *Ledger) Holding(ticker string) (domain.Holding, bool) {
	return l.State().Holding(ticker)
}

// Transactions returns a copy of the append-only transaction log.
func (l *Ledger) Transactions() []domain.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// Subscribe registers a subscriber for portfolio state broadcasts. The
// latest state is delivered immediately.
func (l *Ledger) Subscribe() chan domain.PortfolioState {
	return l.broadcast.Subscribe()
}

// Unsubscribe removes a state subscriber.
func (l *Ledger) Unsubscribe(ch chan domain.PortfolioState) {
	l.broadcast.Unsubscribe(ch)
}

// appendLocked records an executed transaction and commits the new state.
// Callers must hold mu.
func (l *Ledger) appendLocked(tx domain.Transaction) {
	l.nextTxID = tx.ID
	l.transactions = append(l.transactions, tx)
	l.commitLocked()
	if l.journal != nil {
		if err := l.journal.RecordTransaction(tx); err != nil {
			l.logger.Warn("failed to journal transaction", zap.Error(err))
		}
	}
}

// commitLocked recomputes the valuation, stores the committed snapshot and
// broadcasts it. Callers must hold mu.
func (l *Ledger) commitLocked() {
	state := domain.PortfolioState{
		Time:         time.Now(),
		Cash:         l.cash,
		Transactions: l.transactions,
		Invested:     decimal.Zero,
		Value:        l.cash,
		PnL:          decimal.Zero,
	}

	tickers := make([]string, 0, len(l.holdings))
	for ticker := range l.holdings {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		h := l.holdings[ticker]
		price := h.AvgCost
		if snap, ok := l.market.Get(ticker); ok {
			price = snap.Price
		}
		qty := decimal.NewFromInt(h.Quantity)
		invested := h.AvgCost.Mul(qty)
		value := price.Mul(qty)
		pnl := value.Sub(invested)

		state.Holdings = append(state.Holdings, h)
		state.Positions = append(state.Positions, domain.PositionValuation{
			Ticker:     ticker,
			Quantity:   h.Quantity,
			AvgCost:    h.AvgCost,
			Price:      price,
			Invested:   invested,
			Value:      value,
			PnL:        pnl,
			PnLPercent: domain.PnLPercentOf(pnl, invested),
		})
		state.Invested = state.Invested.Add(invested)
		state.Value = state.Value.Add(value)
	}

	state.PnL = state.Value.Sub(l.cash).Sub(state.Invested)
	state.PnLPercent = domain.PnLPercentOf(state.PnL, state.Invested)

	l.committed.Store(&state)
	l.broadcast.Publish(state)
}
