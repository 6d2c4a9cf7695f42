// Package web exposes the simulator state to the presentation layer over
// HTTP: SSE streams for exchange and portfolio snapshots plus read paths
// for the transaction log.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vadiminshakov/bourse/internal/domain"
	"github.com/vadiminshakov/bourse/internal/storage/journal"
	"go.uber.org/zap"
)

const (
	heartbeatInterval   = 30 * time.Second
	journalPollInterval = 2 * time.Second
)

type exchangeSource interface {
	SubscribeState() chan domain.ExchangeState
	UnsubscribeState(ch chan domain.ExchangeState)
}

type portfolioSource interface {
	Subscribe() chan domain.PortfolioState
	Unsubscribe(ch chan domain.PortfolioState)
	Transactions() []domain.Transaction
}

type journalReader interface {
	EventsAfter(index uint64) ([]journal.Record, error)
}

// Server serves the SSE streams and JSON read paths.
type Server struct {
	Addr      string
	Exchange  exchangeSource
	Portfolio portfolioSource
	Journal   journalReader // optional
	logger    *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, exchange exchangeSource, portfolio portfolioSource, j journalReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Exchange: exchange, Portfolio: portfolio, Journal: j, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/exchange/stream", s.handleExchangeStream)
	mux.HandleFunc("/portfolio/stream", s.handlePortfolioStream)
	mux.HandleFunc("/journal/stream", s.handleJournalStream)
	mux.HandleFunc("/transactions", s.handleTransactions)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleExchangeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := sseHeaders(w)
	if !ok {
		return
	}

	states := s.Exchange.SubscribeState()
	defer s.Exchange.UnsubscribeState(states)

	streamEvents(r.Context(), w, flusher, "exchange", states, s.logger)
}

func (s *Server) handlePortfolioStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := sseHeaders(w)
	if !ok {
		return
	}

	states := s.Portfolio.Subscribe()
	defer s.Portfolio.Unsubscribe(states)

	streamEvents(r.Context(), w, flusher, "portfolio", states, s.logger)
}

// handleJournalStream replays journaled events from index zero and then
// polls for new ones, so late subscribers see the full history.
func (s *Server) handleJournalStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := sseHeaders(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(journalPollInterval)
	defer poll.Stop()

	lastIndex := uint64(0)
	send := func() error {
		records, err := s.Journal.EventsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: %s\n", record.Kind)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := send(); err != nil {
		s.logger.Error("journal stream initial load failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-poll.C:
			if err := send(); err != nil {
				s.logger.Error("journal stream poll failed", zap.Error(err))
				return
			}
		}
	}
}

// handleTransactions serves the full transaction log as JSON. Collaborators
// build CSV exports from this read path.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Portfolio.Transactions()); err != nil {
		s.logger.Error("failed to encode transactions", zap.Error(err))
	}
}

func sseHeaders(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// streamEvents forwards values from ch as SSE events until the client goes
// away, with comment heartbeats so proxies keep the connection.
func streamEvents[T any](ctx context.Context, w http.ResponseWriter, flusher http.Flusher, event string, ch chan T, logger *zap.Logger) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case v, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(v)
			if err != nil {
				logger.Error("failed to marshal sse payload", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\n", event)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
