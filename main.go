package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vadiminshakov/bourse/config"
	"github.com/vadiminshakov/bourse/internal/alert"
	"github.com/vadiminshakov/bourse/internal/domain"
	"github.com/vadiminshakov/bourse/internal/market"
	"github.com/vadiminshakov/bourse/internal/portfolio"
	"github.com/vadiminshakov/bourse/internal/setup"
	"github.com/vadiminshakov/bourse/internal/storage/journal"
	"github.com/vadiminshakov/bourse/internal/strategy"
	"github.com/vadiminshakov/bourse/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	if cfg.Setup {
		if err := setup.RunTUI(); err != nil {
			logger.Fatal("setup wizard failed", zap.Error(err))
		}
		return
	}

	now := time.Now()
	instruments := make([]domain.InstrumentSnapshot, 0, len(cfg.Instruments))
	for _, ins := range cfg.Instruments {
		instruments = append(instruments, domain.NewInstrumentSnapshot(ins.Name, ins.Ticker, ins.Sector, ins.Price, ins.Volatility, now))
	}

	store := market.NewStore(instruments, cfg.Speed, logger)

	eventJournal, err := journal.NewStore(cfg.JournalDir)
	if err != nil {
		logger.Fatal("failed to open event journal", zap.Error(err))
	}
	defer eventJournal.Close()

	ledger, err := portfolio.NewLedger(store, cfg.StartingCash, eventJournal, logger)
	if err != nil {
		logger.Fatal("failed to create ledger", zap.Error(err))
	}

	evaluator := alert.NewEvaluator(store, eventJournal, logger)
	engine := strategy.NewEngine(store, ledger, eventJournal, logger)
	controller := market.NewController(store, engine, logger)
	server := web.NewServer(cfg.WebAddr, store, ledger, eventJournal, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return controller.Run(ctx) })
	g.Go(func() error { return ledger.Run(ctx) })
	g.Go(func() error { return evaluator.Run(ctx) })
	g.Go(func() error { return server.Start(ctx) })

	if cfg.OpenAtStart {
		controller.SetOpen(true)
	}
	logger.Info("simulator started",
		zap.Int("instruments", len(instruments)),
		zap.String("cash", cfg.StartingCash.String()),
		zap.Float64("speed", cfg.Speed),
		zap.String("web", cfg.WebAddr))

	if err := g.Wait(); err != nil {
		logger.Error(err.Error())
	}
}
