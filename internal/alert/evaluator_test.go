package alert

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/bourse/internal/domain"
	"github.com/vadiminshakov/bourse/internal/market"
)

type fakeSource struct{}

func (fakeSource) SubscribeUpdates() chan market.PriceUpdate {
	return make(chan market.PriceUpdate, 1)
}

func (fakeSource) UnsubscribeUpdates(ch chan market.PriceUpdate) {}

type recordingJournal struct {
	alerts []domain.TriggeredAlert
	fail   bool
}

func (j *recordingJournal) RecordAlert(a domain.TriggeredAlert) error {
	if j.fail {
		return errors.New("disk full")
	}
	j.alerts = append(j.alerts, a)
	return nil
}

func update(ticker string, price, changePercent float64) market.PriceUpdate {
	return market.PriceUpdate{
		Ticker: ticker,
		Snapshot: domain.InstrumentSnapshot{
			Ticker:        ticker,
			Price:         decimal.NewFromFloat(price),
			ChangePercent: decimal.NewFromFloat(changePercent),
		},
	}
}

func TestCreateRuleAssignsIDAndArms(t *testing.T) {
	e := NewEvaluator(fakeSource{}, nil, nil)

	rule, err := e.CreateRule(domain.AlertRule{
		Ticker:    "NBS",
		Kind:      domain.AlertPriceAbove,
		Threshold: decimal.NewFromInt(130),
		Enabled:   false,
		Triggered: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rule.ID)
	require.True(t, rule.Enabled, "new rules start armed")
	require.False(t, rule.Triggered)
}

func TestCreateRuleRequiresTicker(t *testing.T) {
	e := NewEvaluator(fakeSource{}, nil, nil)
	_, err := e.CreateRule(domain.AlertRule{Kind: domain.AlertPriceAbove})
	require.Error(t, err)
}

func TestAlertFiresOnceAndDisables(t *testing.T) {
	e := NewEvaluator(fakeSource{}, nil, nil)
	rule, err := e.CreateRule(domain.AlertRule{
		Ticker:    "NBS",
		Kind:      domain.AlertPriceAbove,
		Threshold: decimal.NewFromInt(130),
	})
	require.NoError(t, err)

	e.evaluate(update("NBS", 129.0, 0))
	require.Empty(t, e.Triggered(), "below threshold must not fire")

	e.evaluate(update("NBS", 131.0, 0))
	require.Len(t, e.Triggered(), 1)

	// one-shot: further matches are ignored until re-armed
	e.evaluate(update("NBS", 140.0, 0))
	require.Len(t, e.Triggered(), 1)

	stored := e.Rules()[0]
	require.Equal(t, rule.ID, stored.ID)
	require.True(t, stored.Triggered)
	require.False(t, stored.Enabled)
	require.False(t, stored.TriggeredAt.IsZero())
}

func TestAlertReArm(t *testing.T) {
	e := NewEvaluator(fakeSource{}, nil, nil)
	rule, err := e.CreateRule(domain.AlertRule{
		Ticker:    "NBS",
		Kind:      domain.AlertPriceBelow,
		Threshold: decimal.NewFromInt(120),
	})
	require.NoError(t, err)

	e.evaluate(update("NBS", 118.0, 0))
	require.Len(t, e.Triggered(), 1)

	require.NoError(t, e.SetEnabled(rule.ID, true))
	stored := e.Rules()[0]
	require.True(t, stored.Enabled)
	require.False(t, stored.Triggered)
	require.True(t, stored.TriggeredAt.IsZero())

	e.evaluate(update("NBS", 117.0, 0))
	require.Len(t, e.Triggered(), 2)
}

func TestAlertIgnoresOtherTickers(t *testing.T) {
	e := NewEvaluator(fakeSource{}, nil, nil)
	_, err := e.CreateRule(domain.AlertRule{
		Ticker:    "NBS",
		Kind:      domain.AlertPriceAbove,
		Threshold: decimal.NewFromInt(130),
	})
	require.NoError(t, err)

	e.evaluate(update("ARGO", 500.0, 0))
	require.Empty(t, e.Triggered())
}

func TestChangePercentAlert(t *testing.T) {
	e := NewEvaluator(fakeSource{}, nil, nil)
	_, err := e.CreateRule(domain.AlertRule{
		Ticker:    "NBS",
		Kind:      domain.AlertChangeBelow,
		Threshold: decimal.NewFromInt(-3),
	})
	require.NoError(t, err)

	e.evaluate(update("NBS", 121.0, -2.5))
	require.Empty(t, e.Triggered())

	e.evaluate(update("NBS", 120.0, -3.2))
	require.Len(t, e.Triggered(), 1)
}

func TestRemoveRule(t *testing.T) {
	e := NewEvaluator(fakeSource{}, nil, nil)
	rule, err := e.CreateRule(domain.AlertRule{
		Ticker:    "NBS",
		Kind:      domain.AlertPriceAbove,
		Threshold: decimal.NewFromInt(130),
	})
	require.NoError(t, err)

	require.NoError(t, e.RemoveRule(rule.ID))
	require.ErrorIs(t, e.RemoveRule(rule.ID), ErrRuleNotFound)
	require.ErrorIs(t, e.SetEnabled(rule.ID, true), ErrRuleNotFound)
	require.Empty(t, e.Rules())
}

func TestAlertJournaled(t *testing.T) {
	j := &recordingJournal{}
	e := NewEvaluator(fakeSource{}, j, nil)
	_, err := e.CreateRule(domain.AlertRule{
		Ticker:    "NBS",
		Kind:      domain.AlertPriceAbove,
		Threshold: decimal.NewFromInt(130),
	})
	require.NoError(t, err)

	e.evaluate(update("NBS", 131.0, 0))
	require.Len(t, j.alerts, 1)
	require.Equal(t, "NBS", j.alerts[0].Ticker)

	// journal failure must not lose the in-memory record
	j.fail = true
	second, err := e.CreateRule(domain.AlertRule{
		Ticker:    "NBS",
		Kind:      domain.AlertPriceAbove,
		Threshold: decimal.NewFromInt(140),
	})
	require.NoError(t, err)
	e.evaluate(update("NBS", 141.0, 0))
	require.Len(t, e.Triggered(), 2)
	require.Equal(t, second.ID, e.Triggered()[1].RuleID)
}
