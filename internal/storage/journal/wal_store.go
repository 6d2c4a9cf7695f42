// Package journal persists executed transactions, fired alerts and
// strategy triggers in a WAL for streaming to the presentation layer.
// It is write-only telemetry: nothing is restored from it on startup.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/bourse/internal/domain"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultJournalDir   = "./wal/journal"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100

	transactionKeyPrefix = "txn_"
	alertKeyPrefix       = "alert_"
	strategyKeyPrefix    = "strategy_"
)

// Event kinds exposed by EventsAfter.
const (
	KindTransaction = "transaction"
	KindAlert       = "alert"
	KindStrategy    = "strategy"
)

// Record is one journaled event.
type Record struct {
	Index   uint64          `json:"index"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Store is a WAL-backed append-only event journal.
type Store struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewStore initializes the journal under the provided directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init event journal WAL")
	}

	return &Store{wal: wal}, nil
}

// RecordTransaction journals an executed order.
func (s *Store) RecordTransaction(tx domain.Transaction) error {
	key := fmt.Sprintf("%s%s_%d", transactionKeyPrefix, tx.Ticker, tx.ID)
	return s.write(key, tx)
}

// RecordAlert journals a fired alert.
func (s *Store) RecordAlert(a domain.TriggeredAlert) error {
	key := fmt.Sprintf("%s%s", alertKeyPrefix, a.RuleID)
	return s.write(key, a)
}

// RecordTrigger journals an automated strategy action.
func (s *Store) RecordTrigger(t domain.StrategyTrigger) error {
	key := fmt.Sprintf("%s%s", strategyKeyPrefix, t.RuleID)
	return s.write(key, t)
}

func (s *Store) write(key string, v any) error {
	if s == nil || s.wal == nil {
		return errors.New("event journal is not initialized")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal journal event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// EventsAfter returns all journaled events written after the given index.
func (s *Store) EventsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("event journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		kind := kindFor(key)
		if kind == "" {
			continue
		}
		records = append(records, Record{Index: idx, Kind: kind, Payload: payload})
	}
	return records, nil
}

// Close releases the underlying WAL.
func (s *Store) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}
	return s.wal.Close()
}

func kindFor(key string) string {
	switch {
	case strings.HasPrefix(key, transactionKeyPrefix):
		return KindTransaction
	case strings.HasPrefix(key, alertKeyPrefix):
		return KindAlert
	case strings.HasPrefix(key, strategyKeyPrefix):
		return KindStrategy
	default:
		return ""
	}
}
