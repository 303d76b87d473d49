package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/portyard/fleetsim/internal/adapter/memory"
	"github.com/portyard/fleetsim/internal/adapter/otel"
	"github.com/portyard/fleetsim/internal/adapter/postgres"
	"github.com/portyard/fleetsim/internal/adapter/ristretto"
	"github.com/portyard/fleetsim/internal/config"
	"github.com/portyard/fleetsim/internal/logger"
	"github.com/portyard/fleetsim/internal/port/advisor"
	"github.com/portyard/fleetsim/internal/port/notifier"
	"github.com/portyard/fleetsim/internal/port/repository"
	"github.com/portyard/fleetsim/internal/resilience"
	"github.com/portyard/fleetsim/internal/service"
)

const (
	// simTickBase is the wall-clock tick period at simulation speed 1.0.
	simTickBase = 5 * time.Second

	// routeCacheSize bounds the number of routes the cache will hold.
	routeCacheSize = 1024
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	_, logCloser := logger.New(cfg.Logging)
	defer func() { _ = logCloser.Close() }()

	slog.Info("config loaded",
		"store_driver", cfg.Store.Driver,
		"log_level", cfg.Logging.Level,
		"simulation_speed", cfg.Simulation.Speed,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	shutdownMeter, err := otel.InitMeter(ctx, cfg.Telemetry.Endpoint, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMeter(flushCtx); err != nil {
			slog.Error("meter shutdown failed", "error", err)
		}
	}()

	instruments, err := service.NewInstruments()
	if err != nil {
		return fmt.Errorf("instruments: %w", err)
	}

	sink, closeSinks, err := buildNotifier(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	cache, err := ristretto.New(routeCacheSize)
	if err != nil {
		return fmt.Errorf("route cache: %w", err)
	}
	defer cache.Close()

	// --- Services ---

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Cooldown)
	guard := resilience.NewGuard(breaker, cfg.Advisor.Timeout, cfg.Advisor.RetryDelay, slog.Default())
	pool := resilience.NewPool(cfg.Routing.PlanLimit)

	// No advisor ships with the headless build; every service falls
	// back to its local heuristics.
	var adv advisor.Advisor

	var fleetMu sync.Mutex
	routing := service.NewRoutingService(store, adv, guard, pool, cache, cfg.Routing.CacheTTL)
	assignment := service.NewAssignmentService(store, adv, guard, routing, sink, instruments, &fleetMu)
	monitor := service.NewMonitorService(store, adv, guard, sink, instruments, newRand(cfg.Simulation.Seed, 2))
	insights := service.NewInsightsService(store, adv, guard, routing, instruments)

	if cfg.Store.Demo {
		if err := seedDemoFleet(ctx, store); err != nil {
			return fmt.Errorf("demo fleet: %w", err)
		}
	}

	// --- Runtime loops ---

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Simulation.Enabled {
		period := time.Duration(float64(simTickBase) / cfg.Simulation.Speed)
		sim := service.NewSimulator(store, sink, instruments, &fleetMu, newRand(cfg.Simulation.Seed, 1), period)
		g.Go(func() error { return sim.Run(gctx) })
	}

	g.Go(func() error {
		return every(gctx, cfg.Monitor.Interval, "monitor", func(ctx context.Context) error {
			if _, err := insights.ComputeMetrics(ctx); err != nil {
				slog.Warn("fleet metrics refresh failed", "error", err)
			}
			_, err := monitor.CheckFleet(ctx)
			return err
		})
	})

	g.Go(func() error {
		return every(gctx, cfg.Dispatch.Interval, "dispatch", func(ctx context.Context) error {
			assigned, err := assignment.AssignPendingTasks(ctx)
			if err != nil {
				return err
			}
			if assigned > 0 {
				slog.Info("dispatch pass complete", "assigned", assigned)
			}
			return nil
		})
	})

	slog.Info("fleet engine running",
		"simulation", cfg.Simulation.Enabled,
		"dispatch_interval", cfg.Dispatch.Interval,
		"monitor_interval", cfg.Monitor.Interval,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("fleet engine stopped")
	return nil
}

// openStore builds the configured repository. The returned func
// releases the backing resources.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, func(), error) {
	if cfg.Store.Driver == "postgres" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected", "max_conns", cfg.Postgres.MaxConns)
		return postgres.NewStore(pool), pool.Close, nil
	}
	slog.Info("using in-memory store")
	return memory.NewStore(), func() {}, nil
}

// buildNotifier assembles the configured sinks behind one fan-out. The
// journal is always on; the NATS publisher joins when enabled.
func buildNotifier(cfg config.Config) (notifier.Notifier, func(), error) {
	sinks := notifier.Multi{}

	j, err := notifier.New("journal", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("journal notifier: %w", err)
	}
	sinks = append(sinks, j)

	var closers []func() error
	if cfg.NATS.Enabled {
		p, err := notifier.New("nats", map[string]string{"url": cfg.NATS.URL})
		if err != nil {
			return nil, nil, fmt.Errorf("nats notifier: %w", err)
		}
		sinks = append(sinks, p)
		if c, ok := p.(interface{ Close() error }); ok {
			closers = append(closers, c.Close)
		}
		slog.Info("nats publisher connected", "url", cfg.NATS.URL)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Error("notifier close failed", "error", err)
			}
		}
	}
	return sinks, closeAll, nil
}

// every runs fn on a fixed interval until ctx is cancelled. A failing
// pass is logged and the loop keeps going.
func every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info(name + " loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error(name+" pass failed", "error", err)
			}
		}
	}
}

// newRand derives an independent random stream. Seed 0 hands the
// choice to the clock.
func newRand(seed int64, stream uint64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewPCG(uint64(seed), stream))
}
