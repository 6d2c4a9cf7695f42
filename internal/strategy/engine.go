// Package strategy implements the automated trading engine: dip-buy,
// take-profit and stop-loss rules evaluated on every price-change event.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bourse/internal/domain"
	"github.com/vadiminshakov/bourse/internal/market"
	"go.uber.org/zap"
)

// ErrRuleNotFound is returned for operations on an unknown rule id.
var ErrRuleNotFound = errors.New("strategy rule not found")

type marketReader interface {
	IsOpen() bool
	IsPaused() bool
	SubscribeUpdates() chan market.PriceUpdate
	UnsubscribeUpdates(ch chan market.PriceUpdate)
}

// orderExecutor is the slice of the ledger the engine needs.
type orderExecutor interface {
	Buy(ticker string, qty int64) (domain.Transaction, error)
	Sell(ticker string, qty int64) (domain.Transaction, error)
	Holding(ticker string) (domain.Holding, bool)
}

// triggerJournal receives automated actions for durable telemetry.
type triggerJournal interface {
	RecordTrigger(t domain.StrategyTrigger) error
}

// Engine evaluates strategy rules against the price stream and issues
// orders to the ledger. Each rule fires at most once per cooldown window,
// measured from its last successful order; a rejected order leaves the
// cooldown untouched so the next eligible event can retry.
type Engine struct {
	logger   *zap.Logger
	market   marketReader
	executor orderExecutor
	journal  triggerJournal // optional

	mu       sync.Mutex
	rules    map[string]*domain.StrategyRule
	triggers []domain.StrategyTrigger
}

// NewEngine creates an engine. journal may be nil.
func NewEngine(m marketReader, executor orderExecutor, journal triggerJournal, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:   logger,
		market:   m,
		executor: executor,
		journal:  journal,
		rules:    make(map[string]*domain.StrategyRule),
	}
}

// Run consumes price-change events until ctx is cancelled. The controller
// starts and stops this loop with the market; Run is re-entrant across
// those cycles.
func (e *Engine) Run(ctx context.Context) error {
	updates := e.market.SubscribeUpdates()
	defer e.market.UnsubscribeUpdates(updates)

	e.logger.Info("strategy engine started")
	defer e.logger.Info("strategy engine stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			e.evaluate(u)
		}
	}
}

// UpsertRule validates and stores a rule. A missing ID is assigned and the
// rule starts enabled; updating an existing rule preserves its last-fired
// time so an edit cannot bypass the cooldown.
func (e *Engine) UpsertRule(rule domain.StrategyRule) (domain.StrategyRule, error) {
	if err := rule.Validate(); err != nil {
		return domain.StrategyRule{}, errors.Wrap(err, "invalid strategy rule")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
		rule.Enabled = true
	}
	if existing, ok := e.rules[rule.ID]; ok {
		rule.LastFired = existing.LastFired
	}
	stored := rule
	e.rules[rule.ID] = &stored
	e.logger.Info("strategy rule upserted",
		zap.String("id", rule.ID),
		zap.String("kind", rule.Kind.String()),
		zap.String("ticker", rule.Ticker))
	return rule, nil
}

// RemoveRule deletes a rule.
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return errors.Wrap(ErrRuleNotFound, id)
	}
	delete(e.rules, id)
	return nil
}

// SetEnabled enables or disables a rule.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[id]
	if !ok {
		return errors.Wrap(ErrRuleNotFound, id)
	}
	rule.Enabled = enabled
	return nil
}

// Rules returns all rules sorted by id.
func (e *Engine) Rules() []domain.StrategyRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.StrategyRule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, *rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Triggers returns the append-only log of automated actions.
func (e *Engine) Triggers() []domain.StrategyTrigger {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.StrategyTrigger, len(e.triggers))
	copy(out, e.triggers)
	return out
}

// evaluate runs one pass over the rules watching the event's ticker.
func (e *Engine) evaluate(u market.PriceUpdate) {
	if !e.market.IsOpen() || e.market.IsPaused() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for _, rule := range e.rules {
		if !rule.Enabled || !rule.AppliesTo(u.Ticker) {
			continue
		}
		if rule.Cooldown > 0 && !rule.LastFired.IsZero() && now.Sub(rule.LastFired) < rule.Cooldown {
			continue
		}

		switch rule.Kind {
		case domain.StrategyDipBuy:
			e.evalDipBuy(rule, u, now)
		case domain.StrategyTakeProfit, domain.StrategyStopLoss:
			e.evalExit(rule, u, now)
		}
	}
}

func (e *Engine) evalDipBuy(rule *domain.StrategyRule, u market.PriceUpdate, now time.Time) {
	ref, err := referencePrice(*rule, u.Snapshot)
	if err != nil {
		if !errors.Is(err, ErrNoData) {
			e.logger.Warn("dip-buy reference price failed", zap.String("rule", rule.ID), zap.Error(err))
		}
		return
	}
	if !ref.IsPositive() {
		return
	}

	price := u.Snapshot.Price
	drop := rule.DropPercent.Div(decimal.NewFromInt(100))
	target := ref.Mul(decimal.NewFromInt(1).Sub(drop))
	if price.GreaterThan(target) {
		return
	}

	qty := rule.Budget.Div(price).IntPart()
	if qty < 1 {
		return
	}

	tx, err := e.executor.Buy(u.Ticker, qty)
	if err != nil {
		// rejected order: cooldown untouched, retry on the next event
		e.logger.Debug("dip-buy order rejected", zap.String("rule", rule.ID), zap.Error(err))
		return
	}

	rule.LastFired = now
	e.recordTrigger(rule, u.Ticker, tx, now,
		fmt.Sprintf("dip-buy: %s at %s is %s%% below %s reference %s",
			u.Ticker, price, rule.DropPercent, rule.Basis, ref))
}

func (e *Engine) evalExit(rule *domain.StrategyRule, u market.PriceUpdate, now time.Time) {
	h, held := e.executor.Holding(u.Ticker)
	if !held || !h.AvgCost.IsPositive() {
		return
	}

	price := u.Snapshot.Price
	pnlPercent := price.Sub(h.AvgCost).Div(h.AvgCost).Mul(decimal.NewFromInt(100))

	switch rule.Kind {
	case domain.StrategyTakeProfit:
		if pnlPercent.LessThan(rule.ProfitPercent) {
			return
		}
	case domain.StrategyStopLoss:
		if pnlPercent.GreaterThan(rule.LossPercent.Neg()) {
			return
		}
	}

	qty := decimal.NewFromInt(h.Quantity).Mul(rule.SellFraction).Floor().IntPart()
	if qty < 1 {
		qty = 1
	}
	if qty > h.Quantity {
		qty = h.Quantity
	}

	tx, err := e.executor.Sell(u.Ticker, qty)
	if err != nil {
		e.logger.Debug("exit order rejected", zap.String("rule", rule.ID), zap.Error(err))
		return
	}

	rule.LastFired = now
	e.recordTrigger(rule, u.Ticker, tx, now,
		fmt.Sprintf("%s: %s at %s, position P&L %s%%", rule.Kind, u.Ticker, price, pnlPercent.StringFixed(2)))
}

func (e *Engine) recordTrigger(rule *domain.StrategyRule, ticker string, tx domain.Transaction, now time.Time, message string) {
	trigger := domain.StrategyTrigger{
		RuleID:   rule.ID,
		Kind:     rule.Kind,
		Ticker:   ticker,
		Side:     tx.Side,
		Quantity: tx.Quantity,
		Price:    tx.Price,
		Time:     now,
		Message:  message,
	}
	e.triggers = append(e.triggers, trigger)
	e.logger.Info("strategy rule fired",
		zap.String("rule", rule.ID),
		zap.String("kind", rule.Kind.String()),
		zap.String("ticker", ticker),
		zap.Int64("quantity", tx.Quantity))
	if e.journal != nil {
		if err := e.journal.RecordTrigger(trigger); err != nil {
			e.logger.Warn("failed to journal strategy trigger", zap.Error(err))
		}
	}
}

// referencePrice resolves a dip-buy rule's reference per its basis.
func referencePrice(rule domain.StrategyRule, snap domain.InstrumentSnapshot) (decimal.Decimal, error) {
	switch rule.Basis {
	case domain.BasisOpen:
		return snap.Open, nil
	case domain.BasisHigh:
		return snap.High, nil
	case domain.BasisTrailingAverage:
		return trailingAverage(snap.History, rule.TrailingWindow)
	default:
		return decimal.Decimal{}, errors.Errorf("unknown reference basis %d", rule.Basis)
	}
}
