// Package dispatch routes emitted deltas to the subset of subscribers whose
// interest set, predicate and rate budget admit them.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blotterfeed/blotterfeed/internal/delta"
	"github.com/blotterfeed/blotterfeed/internal/metrics"
	"github.com/blotterfeed/blotterfeed/internal/registry"
	"github.com/blotterfeed/blotterfeed/internal/store"
)

// ErrQueueFull is the transport's back-pressure signal. The dispatcher
// treats it as a pacing skip: the delta is dropped for that session and the
// next one is attempted fresh.
var ErrQueueFull = errors.New("transport send queue full")

// Sender hands a delta to the transport addressed to one session. Sends must
// be non-blocking; a full per-session queue returns ErrQueueFull (possibly
// wrapped).
type Sender interface {
	SendUpdate(sessionID string, d *delta.Delta) error
}

// Dispatcher consumes the delta stream on a single goroutine, which is what
// guarantees per-(session, instrument) ordering.
type Dispatcher struct {
	store    *store.Store
	registry *registry.Registry
	sender   Sender
	metrics  *metrics.Registry
	now      func() time.Time
}

// New creates a dispatcher. metrics may be nil.
func New(st *store.Store, reg *registry.Registry, sender Sender, m *metrics.Registry) *Dispatcher {
	return &Dispatcher{store: st, registry: reg, sender: sender, metrics: m, now: time.Now}
}

// SetClock overrides the wall clock, for tests.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Run consumes deltas until the channel closes or the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, deltas <-chan *delta.Delta) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dl, ok := <-deltas:
			if !ok {
				return nil
			}
			d.Dispatch(dl)
		}
	}
}

// Dispatch fans one delta out to every admitted session.
func (d *Dispatcher) Dispatch(dl *delta.Delta) {
	snapshot, err := d.store.Get(dl.InstrumentID)
	if err != nil {
		// Instrument removed between emission and dispatch.
		log.Debug().Err(err).Str("instrument", dl.InstrumentID).Msg("dropping delta for missing instrument")
		return
	}
	fields := snapshot.FieldMap()

	for _, sessionID := range d.registry.Interested(dl.InstrumentID) {
		now := d.now()
		switch d.registry.Admit(sessionID, dl.InstrumentID, now) {
		case registry.Admitted:
		case registry.RefusedNoToken:
			d.drop(metrics.DropBucket)
			continue
		default:
			d.drop(metrics.DropPacing)
			continue
		}
		if _, ok := d.registry.Match(sessionID, dl.InstrumentID, fields); !ok {
			d.drop(metrics.DropFilter)
			continue
		}
		if err := d.sender.SendUpdate(sessionID, dl); err != nil {
			d.drop(metrics.DropTransport)
			log.Debug().Err(err).
				Str("session", sessionID).
				Str("instrument", dl.InstrumentID).
				Msg("transport rejected update")
			continue
		}
		d.registry.RecordSend(sessionID, dl.InstrumentID, now)
		if d.metrics != nil {
			d.metrics.UpdatesSent.Inc()
		}
	}
}

func (d *Dispatcher) drop(reason string) {
	if d.metrics != nil {
		d.metrics.UpdatesDropped.WithLabelValues(reason).Inc()
	}
}
