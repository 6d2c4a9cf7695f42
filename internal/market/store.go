// Package market implements the simulated exchange: the instrument store,
// per-ticker price evolution workers, the global trend and news generators
// and the controller that owns their lifecycles.
package market

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bourse/internal/domain"
	"github.com/vadiminshakov/bourse/internal/events"
	"go.uber.org/zap"
)

const (
	stateBuffer  = 16
	updateBuffer = 256
)

// PriceUpdate is emitted on every per-ticker price change.
type PriceUpdate struct {
	Ticker   string
	Snapshot domain.InstrumentSnapshot
}

// Store holds one mutable snapshot per ticker plus the exchange-wide
// controls. Per-ticker snapshots are written by exactly one worker each;
// exchange-wide fields are written by the controller and the generators.
type Store struct {
	logger *zap.Logger

	mu          sync.RWMutex
	instruments map[string]domain.InstrumentSnapshot
	tickers     []string // sorted
	sectors     []string // sorted, derived from the universe
	open        bool
	paused      bool
	speed       float64
	trend       domain.Trend
	trendBias   decimal.Decimal
	sectorBias  map[string]decimal.Decimal
	news        []domain.NewsEvent

	state   *events.StateBroadcaster[domain.ExchangeState]
	updates *events.Broadcaster[PriceUpdate]
}

// NewStore creates a store seeded with the initial instrument universe.
func NewStore(instruments []domain.InstrumentSnapshot, speed float64, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		logger:      logger,
		instruments: make(map[string]domain.InstrumentSnapshot, len(instruments)),
		speed:       domain.ClampSpeed(speed),
		sectorBias:  make(map[string]decimal.Decimal),
		state:       events.NewStateBroadcaster[domain.ExchangeState](stateBuffer),
		updates:     events.NewBroadcaster[PriceUpdate](updateBuffer),
	}
	sectors := make(map[string]struct{})
	for _, ins := range instruments {
		s.instruments[ins.Ticker] = ins
		s.tickers = append(s.tickers, ins.Ticker)
		sectors[ins.Sector] = struct{}{}
	}
	sort.Strings(s.tickers)
	for sector := range sectors {
		s.sectors = append(s.sectors, sector)
	}
	sort.Strings(s.sectors)
	s.state.Publish(s.snapshotState())
	return s
}

// Get returns the current snapshot for a ticker.
func (s *Store) Get(ticker string) (domain.InstrumentSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.instruments[ticker]
	return snap, ok
}

// Set replaces a ticker's snapshot, re-broadcasts the exchange state and
// emits a price-update event. Unknown tickers are ignored; the universe is
// fixed at startup. The state broadcast happens under mu so its latest
// value always reflects the most recent mutation.
func (s *Store) Set(ticker string, snap domain.InstrumentSnapshot) {
	s.mu.Lock()
	if _, ok := s.instruments[ticker]; !ok {
		s.mu.Unlock()
		s.logger.Warn("ignoring snapshot for unknown ticker", zap.String("ticker", ticker))
		return
	}
	s.instruments[ticker] = snap
	s.state.Publish(s.stateLocked())
	s.mu.Unlock()

	s.updates.Publish(PriceUpdate{Ticker: ticker, Snapshot: snap})
}

// Tickers returns the sorted instrument universe.
func (s *Store) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.tickers))
	copy(out, s.tickers)
	return out
}

// Sectors returns the sorted sector list of the universe.
func (s *Store) Sectors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.sectors))
	copy(out, s.sectors)
	return out
}

// IsOpen reports whether the exchange is open.
func (s *Store) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// IsPaused reports whether the simulation is paused.
func (s *Store) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Halted reports whether trading activity is suspended.
func (s *Store) Halted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.open || s.paused
}

// Speed returns the current simulation speed.
func (s *Store) Speed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// TrendBias returns the per-tick trend bias fraction.
func (s *Store) TrendBias() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trendBias
}

// SectorBias returns the per-tick bias fraction for a sector.
func (s *Store) SectorBias(sector string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sectorBias[sector]
}

// SetOpen sets the exchange open flag.
func (s *Store) SetOpen(open bool) {
	s.mutate(func() { s.open = open })
}

// SetPaused sets the pause flag.
func (s *Store) SetPaused(paused bool) {
	s.mutate(func() { s.paused = paused })
}

// SetSpeed clamps and applies the simulation speed. Workers pick the new
// value up on their next cycle; nothing restarts.
func (s *Store) SetSpeed(speed float64) {
	s.mutate(func() { s.speed = domain.ClampSpeed(speed) })
}

// SetTrend applies the global trend and its per-tick bias fraction.
func (s *Store) SetTrend(trend domain.Trend, bias decimal.Decimal) {
	s.mutate(func() {
		s.trend = trend
		s.trendBias = bias
	})
}

// SetSectorBias applies a per-tick bias fraction for a sector. Zero bias
// removes the entry.
func (s *Store) SetSectorBias(sector string, bias decimal.Decimal) {
	s.mutate(func() {
		if bias.IsZero() {
			delete(s.sectorBias, sector)
			return
		}
		s.sectorBias[sector] = bias
	})
}

// PushNews appends a news event, keeping the feed at its cap (newest first).
func (s *Store) PushNews(event domain.NewsEvent) {
	s.mutate(func() {
		s.news = append([]domain.NewsEvent{event}, s.news...)
		if len(s.news) > domain.MaxNewsEvents {
			s.news = s.news[:domain.MaxNewsEvents]
		}
	})
}

// ExchangeState returns a copy of the full exchange-wide state.
func (s *Store) ExchangeState() domain.ExchangeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// SubscribeState registers a subscriber for full-state broadcasts. The
// latest state is delivered immediately.
func (s *Store) SubscribeState() chan domain.ExchangeState {
	return s.state.Subscribe()
}

// UnsubscribeState removes a state subscriber.
func (s *Store) UnsubscribeState(ch chan domain.ExchangeState) {
	s.state.Unsubscribe(ch)
}

// SubscribeUpdates registers a subscriber for per-ticker price updates.
func (s *Store) SubscribeUpdates() chan PriceUpdate {
	return s.updates.Subscribe()
}

// UnsubscribeUpdates removes a price-update subscriber.
func (s *Store) UnsubscribeUpdates(ch chan PriceUpdate) {
	s.updates.Unsubscribe(ch)
}

// mutate applies fn and broadcasts the resulting state before releasing
// mu, keeping the broadcaster's latest value in mutation order.
func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.state.Publish(s.stateLocked())
	s.mu.Unlock()
}

func (s *Store) snapshotState() domain.ExchangeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// stateLocked builds a full state copy. Callers must hold mu.
func (s *Store) stateLocked() domain.ExchangeState {
	state := domain.ExchangeState{
		Time:        time.Now(),
		Open:        s.open,
		Paused:      s.paused,
		Speed:       s.speed,
		Trend:       s.trend,
		TrendBias:   s.trendBias,
		Instruments: make([]domain.InstrumentSnapshot, 0, len(s.tickers)),
	}
	for _, ticker := range s.tickers {
		state.Instruments = append(state.Instruments, s.instruments[ticker])
	}
	if len(s.sectorBias) > 0 {
		state.SectorBias = make(map[string]decimal.Decimal, len(s.sectorBias))
		for sector, bias := range s.sectorBias {
			state.SectorBias[sector] = bias
		}
	}
	if len(s.news) > 0 {
		state.News = make([]domain.NewsEvent, len(s.news))
		copy(state.News, s.news)
	}
	return state
}
