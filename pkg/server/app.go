// Package server runs the supervisor's long-lived components and shuts them down in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeBot/internal/domain/models"
	xhttp "TradeBot/pkg/http"
	pkgkafka "TradeBot/pkg/kafka"
	applogger "TradeBot/pkg/logger"
)

const defaultShutdownTimeout = 15 * time.Second

// Strategies loads and stops the agent set.
type Strategies interface {
	Load(ctx context.Context, specs []models.StrategySpec) error
	Shutdown(ctx context.Context)
}

// Runner blocks until ctx ends, e.g. the heartbeat sweep or the trading loop.
type Runner interface {
	Run(ctx context.Context) error
}

// Service is started once and stopped on shutdown, e.g. queues and consumers.
type Service interface {
	Start() error
	Stop(ctx context.Context) error
}

// Collector consumes a market stream in the background.
type Collector interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type HTTPServer interface {
	Start() error
	Stop(ctx context.Context) error
}

type Option func(*App)

func WithLogger(l *applogger.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithRunner adds a background loop. Runners start after the strategies load.
func WithRunner(name string, r Runner) Option {
	return func(a *App) { a.runners = append(a.runners, namedRunner{name: name, r: r}) }
}

func WithService(name string, s Service) Option {
	return func(a *App) { a.services = append(a.services, namedService{name: name, s: s}) }
}

// WithFillsConsumer registers h on c and runs c as a service.
func WithFillsConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		c.RegisterHandler(h)
		a.services = append(a.services, namedService{name: "kafka consumer " + h.Topic(), s: c})
	}
}

func WithCollector(c Collector) Option {
	return func(a *App) { a.collector = c }
}

func WithHTTPServer(s HTTPServer) Option {
	return func(a *App) { a.http = s }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

type namedRunner struct {
	name string
	r    Runner
}

type namedService struct {
	name string
	s    Service
}

// App owns the lifecycle of every component.
type App struct {
	strategies      Strategies
	specs           []models.StrategySpec
	runners         []namedRunner
	services        []namedService
	collector       Collector
	http            HTTPServer
	shutdownTimeout time.Duration
	log             *applogger.Logger

	wg sync.WaitGroup
}

func New(strategies Strategies, specs []models.StrategySpec, opts ...Option) *App {
	a := &App{
		strategies:      strategies,
		specs:           specs,
		shutdownTimeout: defaultShutdownTimeout,
		log:             applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run loads the strategies, starts everything and blocks until ctx ends.
// Failing to load any strategy aborts startup. Optional components that fail
// to start are logged and skipped.
func (a *App) Run(ctx context.Context) error {
	if err := a.strategies.Load(ctx, a.specs); err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}

	// Runners outlive ctx until intake has stopped.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	if a.collector != nil {
		if err := a.collector.Start(runCtx); err != nil {
			a.log.Warn("market stream unavailable, snapshots use polled prices", applogger.Error(err))
			a.collector = nil
		}
	}

	started := a.services[:0:0]
	for _, s := range a.services {
		if err := s.s.Start(); err != nil {
			a.log.Error("service start failed", applogger.String("service", s.name), applogger.Error(err))
			continue
		}
		started = append(started, s)
		a.log.Info("service started", applogger.String("service", s.name))
	}
	a.services = started

	if a.http != nil {
		if err := a.http.Start(); err != nil {
			a.shutdown(cancel)
			return fmt.Errorf("http server: %w", err)
		}
	}

	for _, r := range a.runners {
		a.wg.Add(1)
		go func(r namedRunner) {
			defer a.wg.Done()
			if err := r.r.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("runner stopped", applogger.String("runner", r.name), applogger.Error(err))
			}
		}(r)
	}

	a.log.Info("tradebot running", applogger.Int("strategies", len(a.specs)), applogger.Int("runners", len(a.runners)))
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown(cancel)
	return nil
}

// shutdown stops intake first (HTTP, queues, consumers, stream), waits for the
// loops, then stops agents. Infrastructure is closed by the caller afterwards.
func (a *App) shutdown(stopRunners context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Warn("http stop", applogger.Error(err))
		}
	}
	for i := len(a.services) - 1; i >= 0; i-- {
		s := a.services[i]
		if err := s.s.Stop(ctx); err != nil {
			a.log.Warn("service stop", applogger.String("service", s.name), applogger.Error(err))
		}
	}
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("market stream close", applogger.Error(err))
		}
	}

	stopRunners()
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("runners did not stop before the shutdown deadline")
	}

	a.strategies.Shutdown(ctx)
	a.log.Info("shutdown complete")
}

var _ HTTPServer = (*xhttp.Server)(nil)
