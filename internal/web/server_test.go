package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/bourse/internal/domain"
)

type fakeExchange struct {
	ch chan domain.ExchangeState
}

func (f *fakeExchange) SubscribeState() chan domain.ExchangeState     { return f.ch }
func (f *fakeExchange) UnsubscribeState(ch chan domain.ExchangeState) {}

type fakePortfolio struct {
	ch  chan domain.PortfolioState
	txs []domain.Transaction
}

func (f *fakePortfolio) Subscribe() chan domain.PortfolioState     { return f.ch }
func (f *fakePortfolio) Unsubscribe(ch chan domain.PortfolioState) {}
func (f *fakePortfolio) Transactions() []domain.Transaction        { return f.txs }

func TestHandleTransactions(t *testing.T) {
	tx, err := domain.NewTransaction(1, time.Now(),
		domain.NewOrderPreview("NBS", domain.SideBuy, 10, decimal.NewFromFloat(125.0)))
	require.NoError(t, err)

	s := NewServer("", nil, &fakePortfolio{txs: []domain.Transaction{tx}}, nil, nil)

	rec := httptest.NewRecorder()
	s.handleTransactions(rec, httptest.NewRequest(http.MethodGet, "/transactions", nil))

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got []domain.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "NBS", got[0].Ticker)
}

func TestExchangeStreamDeliversStates(t *testing.T) {
	exchange := &fakeExchange{ch: make(chan domain.ExchangeState, 1)}
	exchange.ch <- domain.ExchangeState{Open: true, Speed: 1.0}

	s := NewServer("", exchange, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/exchange/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleExchangeStream(rec, req)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), "event: exchange")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), `"open":true`)
}

func TestJournalStreamUnavailableWithoutJournal(t *testing.T) {
	s := NewServer("", nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	s.handleJournalStream(rec, httptest.NewRequest(http.MethodGet, "/journal/stream", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
