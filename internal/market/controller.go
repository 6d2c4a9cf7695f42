package market

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

const controllerQueueSize = 64

// Runner is a long-lived component whose lifecycle the controller owns.
// The strategy engine satisfies it.
type Runner interface {
	Run(ctx context.Context) error
}

type workerHandle struct {
	cancel context.CancelFunc
}

// Controller owns the fleet of price workers, the trend/news generators and
// the strategy engine. Every control decision goes through one command
// loop, so overlapping open/pause/close requests cannot race two workers
// onto the same ticker or leak a generator.
type Controller struct {
	store   *Store
	engine  Runner // optional
	logger  *zap.Logger
	cmds    chan func()
	stopped chan struct{}

	// state below is owned by the command loop in Run.
	runCtx       context.Context
	workers      map[string]*workerHandle
	trendCancel  context.CancelFunc
	newsCancel   context.CancelFunc
	engineCancel context.CancelFunc
	wg           sync.WaitGroup
}

// NewController creates a controller. engine may be nil.
func NewController(store *Store, engine Runner, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:   store,
		engine:  engine,
		logger:  logger,
		cmds:    make(chan func(), controllerQueueSize),
		stopped: make(chan struct{}),
		workers: make(map[string]*workerHandle),
	}
}

// Run executes the command loop until ctx is cancelled, then stops every
// child and waits for them to exit.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer func() {
		close(c.stopped)
		c.stopAll()
		c.wg.Wait()
		c.logger.Info("simulation controller stopped")
	}()

	c.logger.Info("simulation controller started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.cmds:
			cmd()
		}
	}
}

// SetOpen opens or closes the exchange and reconciles the fleet.
func (c *Controller) SetOpen(open bool) {
	c.exec(func() {
		c.store.SetOpen(open)
		c.reconcile()
	})
}

// SetPaused pauses or resumes the simulation and reconciles the fleet.
func (c *Controller) SetPaused(paused bool) {
	c.exec(func() {
		c.store.SetPaused(paused)
		c.reconcile()
	})
}

// SetSpeed applies a new simulation speed. Workers read the speed each
// cycle, so nothing restarts.
func (c *Controller) SetSpeed(speed float64) {
	c.exec(func() { c.store.SetSpeed(speed) })
}

// Workers returns the tickers with a running price worker, sorted.
func (c *Controller) Workers() []string {
	var out []string
	c.exec(func() {
		for ticker := range c.workers {
			out = append(out, ticker)
		}
	})
	sort.Strings(out)
	return out
}

// exec runs fn on the command loop and waits for it to complete.
func (c *Controller) exec(fn func()) {
	done := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(done) }:
	case <-c.stopped:
		return
	}
	select {
	case <-done:
	case <-c.stopped:
	}
}

// enqueue submits fn without waiting. Used by children deregistering
// themselves so a finished worker never blocks new starts.
func (c *Controller) enqueue(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.stopped:
	}
}

// reconcile applies the fleet transition rule: closed or paused stops
// everything; otherwise generators, strategy engine and one worker per
// ticker must all be running. Runs on the command loop only.
func (c *Controller) reconcile() {
	if c.store.Halted() {
		c.stopAll()
		return
	}

	if c.trendCancel == nil {
		ctx, cancel := context.WithCancel(c.runCtx)
		c.trendCancel = cancel
		c.spawn(func() { runTrendGenerator(ctx, c.store, c.logger) })
	}
	if c.newsCancel == nil {
		ctx, cancel := context.WithCancel(c.runCtx)
		c.newsCancel = cancel
		c.spawn(func() { runNewsGenerator(ctx, c.store, c.logger) })
	}
	if c.engine != nil && c.engineCancel == nil {
		ctx, cancel := context.WithCancel(c.runCtx)
		c.engineCancel = cancel
		c.spawn(func() {
			if err := c.engine.Run(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("strategy engine exited", zap.Error(err))
			}
		})
	}

	for _, ticker := range c.store.Tickers() {
		if _, ok := c.workers[ticker]; !ok {
			c.startWorker(ticker)
		}
	}
}

func (c *Controller) startWorker(ticker string) {
	ctx, cancel := context.WithCancel(c.runCtx)
	h := &workerHandle{cancel: cancel}
	c.workers[ticker] = h
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		runWorker(ctx, c.store, ticker, c.logger)
		c.enqueue(func() {
			if c.workers[ticker] == h {
				delete(c.workers, ticker)
			}
		})
	}()
}

// stopAll cancels every child. Safe to call repeatedly; cancelling an
// already-stopped fleet is a no-op.
func (c *Controller) stopAll() {
	for ticker, h := range c.workers {
		h.cancel()
		delete(c.workers, ticker)
	}
	if c.trendCancel != nil {
		c.trendCancel()
		c.trendCancel = nil
	}
	if c.newsCancel != nil {
		c.newsCancel()
		c.newsCancel = nil
	}
	if c.engineCancel != nil {
		c.engineCancel()
		c.engineCancel = nil
	}
}

func (c *Controller) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}
