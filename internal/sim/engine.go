// Package sim contains the stochastic market engine: the correlation graph
// between catalog instruments and the tick generator that advances every
// instrument's state on a wall-clock cadence.
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blotterfeed/blotterfeed/internal/models"
	"github.com/blotterfeed/blotterfeed/internal/store"
)

// Params configures the tick generator. Zero values are not usable; callers
// build Params from a validated config.
type Params struct {
	UpdateFrequency       time.Duration
	VolatilityFactor      float64
	Scenario              Scenario
	TimeOfDay             TimeOfDay
	FlashEventProbability float64
	FlashEventMagnitude   float64
}

// Sink receives the id of every instrument the engine mutated. The engine
// calls it immediately after each instrument, with no lock held; there is no
// batch barrier at tick boundaries.
type Sink func(id string)

// Engine advances instrument state per tick using scenario, time-of-day,
// correlation and random draws. It is driven by a single Run goroutine; the
// mutable pct-change map is guarded for the benefit of tests that call Tick
// directly.
type Engine struct {
	store  *store.Store
	graph  *CorrelationGraph
	params Params
	sink   Sink
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
	pct map[string]float64

	// observer, when set, receives the duration of every completed pass.
	observer func(time.Duration)
}

// NewEngine creates a tick generator over the given store and correlation
// graph. sink may be nil when the caller only wants state mutation.
func NewEngine(st *store.Store, graph *CorrelationGraph, params Params, rng *rand.Rand, sink Sink) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		store:  st,
		graph:  graph,
		params: params,
		sink:   sink,
		now:    time.Now,
		rng:    rng,
		pct:    make(map[string]float64),
	}
}

// SetClock overrides the wall clock, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetTickObserver registers a callback receiving each pass duration.
func (e *Engine) SetTickObserver(fn func(time.Duration)) { e.observer = fn }

// Run drives the tick cadence until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.params.UpdateFrequency)
	defer ticker.Stop()
	log.Info().
		Dur("cadence", e.params.UpdateFrequency).
		Str("scenario", string(e.params.Scenario)).
		Str("time_of_day", string(e.params.TimeOfDay)).
		Msg("market simulator started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("market simulator stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick visits every instrument exactly once. A failure on one instrument is
// logged and never halts the pass.
func (e *Engine) Tick() {
	start := time.Now()
	defer func() {
		if e.observer != nil {
			e.observer(time.Since(start))
		}
	}()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.store.IDs() {
		if err := e.tickInstrument(id); err != nil {
			log.Error().Err(err).Str("instrument", id).Msg("tick failed for instrument")
			continue
		}
		if e.sink != nil {
			e.sink(id)
		}
	}
}

// tickInstrument computes this instrument's price delta and applies the
// kind-specific update.
func (e *Engine) tickInstrument(id string) error {
	v := e.effectiveVolatility()
	raw := (e.rng.Float64()-0.5)*v + e.params.Scenario.trendBias()*v
	priceDelta := raw + e.correlatedMove(id)

	// Options read their underlying's state; resolve it before taking the
	// store's write path so lookups never nest inside the update.
	cur, err := e.store.Get(id)
	if err != nil {
		return err
	}
	var underlying *models.Instrument
	underlyingPct := priceDelta
	if cur.Option != nil && cur.Option.UnderlyingID != "" {
		if u, uerr := e.store.Get(cur.Option.UnderlyingID); uerr == nil {
			underlying = u
			underlyingPct = e.pct[u.ID]
		}
	}

	now := e.now()
	err = e.store.Update(id, func(in *models.Instrument) {
		e.applyKindUpdate(in, priceDelta, underlying, underlyingPct, now)
		in.PercentageChange = priceDelta
		in.LastUpdate = now
	})
	if err != nil {
		return err
	}
	e.pct[id] = priceDelta
	return nil
}

// effectiveVolatility shapes the base volatility by time of day, scenario,
// and the rare flash excursion.
func (e *Engine) effectiveVolatility() float64 {
	tod := e.params.TimeOfDay
	if tod == TimeAuto {
		tod = timeOfDayFromClock(e.now())
	}
	v := e.params.VolatilityFactor * tod.multiplier() * e.params.Scenario.multiplier()
	if e.params.FlashEventProbability > 0 && e.rng.Float64() < e.params.FlashEventProbability {
		v *= e.params.FlashEventMagnitude
		log.Warn().Float64("volatility", v).Msg("flash event excursion")
	}
	return v
}

// correlatedMove sums affinity-weighted percentage changes of correlated
// peers. Peer values are whatever was computed most recently, which may be
// the previous tick or earlier in the current visitation order.
func (e *Engine) correlatedMove(id string) float64 {
	var sum float64
	for peer, c := range e.graph.Neighbors(id) {
		sum += c * e.pct[peer]
	}
	return 0.3 * sum
}

// PercentageChange returns the last computed percentage change for an
// instrument, 0 if it has never been ticked.
func (e *Engine) PercentageChange(id string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pct[id]
}
