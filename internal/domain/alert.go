package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AlertKind selects what an alert rule compares against its threshold.
type AlertKind int

const (
	// AlertPriceAbove fires when the price reaches or exceeds the threshold.
	AlertPriceAbove AlertKind = iota
	// AlertPriceBelow fires when the price falls to or below the threshold.
	AlertPriceBelow
	// AlertChangeAbove fires when change-from-open percent ≥ threshold.
	AlertChangeAbove
	// AlertChangeBelow fires when change-from-open percent ≤ threshold.
	AlertChangeBelow
)

const (
	alertStringPriceAbove  = "price_above"
	alertStringPriceBelow  = "price_below"
	alertStringChangeAbove = "change_above"
	alertStringChangeBelow = "change_below"
)

// String returns the string representation of the alert kind.
func (k AlertKind) String() string {
	switch k {
	case AlertPriceAbove:
		return alertStringPriceAbove
	case AlertPriceBelow:
		return alertStringPriceBelow
	case AlertChangeAbove:
		return alertStringChangeAbove
	case AlertChangeBelow:
		return alertStringChangeBelow
	default:
		return "unknown"
	}
}

// AlertRule is a one-shot price alert. After it fires it disables itself
// until explicitly re-armed.
type AlertRule struct {
	ID          string          `json:"id"`
	Ticker      string          `json:"ticker"`
	Kind        AlertKind       `json:"kind"`
	Threshold   decimal.Decimal `json:"threshold"`
	Enabled     bool            `json:"enabled"`
	Triggered   bool            `json:"triggered"`
	TriggeredAt time.Time       `json:"triggered_at,omitzero"`
}

// Matches reports whether the observed price/change satisfies the rule.
func (r AlertRule) Matches(price, changePercent decimal.Decimal) bool {
	switch r.Kind {
	case AlertPriceAbove:
		return price.GreaterThanOrEqual(r.Threshold)
	case AlertPriceBelow:
		return price.LessThanOrEqual(r.Threshold)
	case AlertChangeAbove:
		return changePercent.GreaterThanOrEqual(r.Threshold)
	case AlertChangeBelow:
		return changePercent.LessThanOrEqual(r.Threshold)
	default:
		return false
	}
}

// TriggeredAlert is an immutable record of a rule firing.
type TriggeredAlert struct {
	RuleID        string          `json:"rule_id"`
	Ticker        string          `json:"ticker"`
	Kind          AlertKind       `json:"kind"`
	Threshold     decimal.Decimal `json:"threshold"`
	Price         decimal.Decimal `json:"price"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Time          time.Time       `json:"ts"`
	Message       string          `json:"message"`
}

// RenderAlertMessage builds the human-readable firing message.
func RenderAlertMessage(r AlertRule, price, changePercent decimal.Decimal) string {
	switch r.Kind {
	case AlertPriceAbove:
		return fmt.Sprintf("%s reached %s (threshold %s)", r.Ticker, price, r.Threshold)
	case AlertPriceBelow:
		return fmt.Sprintf("%s dropped to %s (threshold %s)", r.Ticker, price, r.Threshold)
	case AlertChangeAbove:
		return fmt.Sprintf("%s is up %s%% since open (threshold %s%%)", r.Ticker, changePercent, r.Threshold)
	case AlertChangeBelow:
		return fmt.Sprintf("%s is down %s%% since open (threshold %s%%)", r.Ticker, changePercent, r.Threshold)
	default:
		return fmt.Sprintf("%s alert fired at %s", r.Ticker, price)
	}
}
