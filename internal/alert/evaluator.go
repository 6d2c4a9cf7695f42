// Package alert evaluates one-shot price alert rules against the
// price-change stream.
package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/bourse/internal/domain"
	"github.com/vadiminshakov/bourse/internal/market"
	"go.uber.org/zap"
)

// ErrRuleNotFound is returned for operations on an unknown rule id.
var ErrRuleNotFound = errors.New("alert rule not found")

type updateSource interface {
	SubscribeUpdates() chan market.PriceUpdate
	UnsubscribeUpdates(ch chan market.PriceUpdate)
}

// alertJournal receives fired alerts for durable telemetry.
type alertJournal interface {
	RecordAlert(a domain.TriggeredAlert) error
}

// Evaluator matches alert rules per ticker on every price-change event.
// Rule edits and event evaluation are mutually exclusive, so a rule can
// never fire concurrently with its own modification.
type Evaluator struct {
	logger  *zap.Logger
	source  updateSource
	journal alertJournal // optional

	mu        sync.Mutex
	rules     map[string]*domain.AlertRule
	triggered []domain.TriggeredAlert
}

// NewEvaluator creates an evaluator. journal may be nil.
func NewEvaluator(source updateSource, journal alertJournal, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		logger:  logger,
		source:  source,
		journal: journal,
		rules:   make(map[string]*domain.AlertRule),
	}
}

// Run consumes price-change events until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) error {
	updates := e.source.SubscribeUpdates()
	defer e.source.UnsubscribeUpdates(updates)

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

// CreateRule registers a rule. A missing ID is assigned; new rules are
// enabled and untriggered regardless of the flags passed in.
func (e *Evaluator) CreateRule(rule domain.AlertRule) (domain.AlertRule, error) {
	if rule.Ticker == "" {
		return domain.AlertRule{}, errors.New("alert rule ticker is required")
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.Enabled = true
	rule.Triggered = false
	rule.TriggeredAt = time.Time{}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[rule.ID]; exists {
		return domain.AlertRule{}, errors.Errorf("alert rule %s already exists", rule.ID)
	}
	stored := rule
	e.rules[rule.ID] = &stored
	e.logger.Info("alert rule created",
		zap.String("id", rule.ID),
		zap.String("ticker", rule.Ticker),
		zap.String("kind", rule.Kind.String()),
		zap.String("threshold", rule.Threshold.String()))
	return rule, nil
}

// RemoveRule deletes a rule.
func (e *Evaluator) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return errors.Wrap(ErrRuleNotFound, id)
	}
	delete(e.rules, id)
	return nil
}

// SetEnabled enables or disables a rule. Enabling re-arms it: the
// triggered flag and timestamp are cleared.
func (e *Evaluator) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[id]
	if !ok {
		return errors.Wrap(ErrRuleNotFound, id)
	}
	rule.Enabled = enabled
	if enabled {
		rule.Triggered = false
		rule.TriggeredAt = time.Time{}
	}
	return nil
}

// Rules returns all rules sorted by id.
func (e *Evaluator) Rules() []domain.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.AlertRule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, *rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Triggered returns the append-only log of fired alerts.
func (e *Evaluator) Triggered() []domain.TriggeredAlert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.TriggeredAlert, len(e.triggered))
	copy(out, e.triggered)
	return out
}

// evaluate runs one pass over the rules for the event's ticker. Each
// matching rule fires at most once and disables itself.
func (e *Evaluator) evaluate(u market.PriceUpdate) {
	price := u.Snapshot.Price
	changePercent := u.Snapshot.ChangePercent

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range e.rules {
		if rule.Ticker != u.Ticker || !rule.Enabled || rule.Triggered {
			continue
		}
		if !rule.Matches(price, changePercent) {
			continue
		}

		now := time.Now()
		rule.Triggered = true
		rule.Enabled = false
		rule.TriggeredAt = now

		fired := domain.TriggeredAlert{
			RuleID:        rule.ID,
			Ticker:        rule.Ticker,
			Kind:          rule.Kind,
			Threshold:     rule.Threshold,
			Price:         price,
			ChangePercent: changePercent,
			Time:          now,
			Message:       domain.RenderAlertMessage(*rule, price, changePercent),
		}
		e.triggered = append(e.triggered, fired)
		e.logger.Info("alert fired",
			zap.String("id", rule.ID),
			zap.String("ticker", rule.Ticker),
			zap.String("message", fired.Message))
		if e.journal != nil {
			if err := e.journal.RecordAlert(fired); err != nil {
				e.logger.Warn("failed to journal alert", zap.Error(err))
			}
		}
	}
}
