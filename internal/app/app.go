// Package app is the composition root: it wires the store, simulator, delta
// engine, registry, dispatcher and transports together and owns their
// lifecycle.
package app

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/blotterfeed/blotterfeed/internal/config"
	"github.com/blotterfeed/blotterfeed/internal/delta"
	"github.com/blotterfeed/blotterfeed/internal/dispatch"
	"github.com/blotterfeed/blotterfeed/internal/httpapi"
	"github.com/blotterfeed/blotterfeed/internal/metrics"
	"github.com/blotterfeed/blotterfeed/internal/registry"
	"github.com/blotterfeed/blotterfeed/internal/seed"
	"github.com/blotterfeed/blotterfeed/internal/sim"
	"github.com/blotterfeed/blotterfeed/internal/store"
	"github.com/blotterfeed/blotterfeed/internal/transport"
)

// shutdownGrace bounds the best-effort drain of outstanding dispatches and
// in-flight HTTP requests at shutdown.
const shutdownGrace = 5 * time.Second

// App owns every subsystem of the fan-out service.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Graph      *sim.CorrelationGraph
	Sim        *sim.Engine
	DeltaEng   *delta.Engine
	Registry   *registry.Registry
	Hub        *transport.Hub
	Dispatcher *dispatch.Dispatcher
	HTTP       *httpapi.Server
	Metrics    *metrics.Registry

	deltas chan *delta.Delta
}

// New wires the service from a validated configuration. rng may be nil for a
// time-seeded source.
func New(cfg *config.Config, rng *rand.Rand) (*App, error) {
	a := &App{
		Config:  cfg,
		Store:   store.New(),
		Metrics: metrics.NewRegistry(),
		deltas:  make(chan *delta.Delta, 1024),
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	a.Graph = sim.NewCorrelationGraph(cfg.Simulator.CorrelationStrength, rng)
	a.DeltaEng = delta.NewEngine(a.Store)
	a.Sim = sim.NewEngine(a.Store, a.Graph, cfg.SimParams(), rng, a.emit)
	a.Sim.SetTickObserver(func(d time.Duration) {
		a.Metrics.TicksTotal.Inc()
		a.Metrics.TickDuration.Observe(d.Seconds())
	})
	a.Registry = registry.New(registry.Limits{
		MaxUpdatesPerSecond: cfg.Fanout.MaxUpdatesPerSecond,
		BucketSize:          cfg.Fanout.BucketSize,
	})
	a.Registry.OnPredicateError(a.Metrics.PredicateErrors.Inc)
	a.Hub = transport.NewHub(a.Store, a.Registry, a.Metrics, cfg.Fanout.SendQueueSize)
	a.Dispatcher = dispatch.New(a.Store, a.Registry, a.Hub, a.Metrics)
	a.HTTP = httpapi.NewServer(cfg.Server.Listen, a.Store, a.Graph, a.Hub, a.Metrics)

	if cfg.SeedExamples {
		if err := seed.Load(a.Store, a.Graph); err != nil {
			return nil, err
		}
		a.Metrics.Instruments.Set(float64(a.Store.Count()))
	}
	return a, nil
}

// emit is the simulator sink: it diffs the instrument and queues any
// non-empty delta for dispatch. Emission is immediate per instrument.
func (a *App) emit(id string) {
	d, err := a.DeltaEng.Compute(id)
	if err != nil {
		log.Error().Err(err).Str("instrument", id).Msg("delta computation failed")
		return
	}
	if d == nil {
		return
	}
	a.Metrics.DeltasEmitted.Inc()
	select {
	case a.deltas <- d:
	default:
		// Dispatch backlog full, e.g. mid-shutdown. Dropping here is safe:
		// the published snapshot has advanced, so the next tick re-emits any
		// further change.
		log.Warn().Str("instrument", id).Msg("delta queue full, dropping")
	}
}

// Run starts the ticker, dispatcher and HTTP server and blocks until the
// context is cancelled, then shuts down: ticker first, dispatch drained
// best-effort, sessions closed last.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Sim.Run(ctx) })
	g.Go(func() error { return a.Dispatcher.Run(ctx, a.deltas) })
	g.Go(func() error { return a.HTTP.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown incomplete")
		}
		a.Hub.CloseAll()
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("service stopped")
	return nil
}
