// Package delta computes minimal field-level differences between an
// instrument's published snapshot and its current state.
package delta

import (
	"encoding/json"
	"time"

	"github.com/blotterfeed/blotterfeed/internal/models"
	"github.com/blotterfeed/blotterfeed/internal/store"
)

// Delta is the minimal set of changed fields for one instrument. Fields
// absent from the map are unchanged. A Delta is never emitted with an empty
// field map.
type Delta struct {
	InstrumentID string
	Timestamp    time.Time
	Fields       map[string]any
}

// wireDelta is the JSON shape: timestamps as epoch-ms integers, enums as
// string tags.
type wireDelta struct {
	InstrumentID string         `json:"instrumentId"`
	Timestamp    int64          `json:"timestamp"`
	Fields       map[string]any `json:"fields"`
}

// MarshalJSON renders the wire form of the delta.
func (d *Delta) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDelta{
		InstrumentID: d.InstrumentID,
		Timestamp:    d.Timestamp.UnixMilli(),
		Fields:       models.WireFields(d.Fields),
	})
}

// Engine diffs current state against the published snapshot and advances the
// published snapshot on emission.
type Engine struct {
	store *store.Store
	now   func() time.Time
}

// NewEngine creates a delta engine over the store.
func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st, now: time.Now}
}

// SetClock overrides the wall clock, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Compute diffs one instrument. When at least one field changed it advances
// the published snapshot to the current state and returns the delta;
// otherwise it returns (nil, nil) and leaves the published snapshot alone.
func (e *Engine) Compute(id string) (*Delta, error) {
	current, published, err := e.store.Snapshots(id)
	if err != nil {
		return nil, err
	}
	fields := Diff(published, current)
	if len(fields) == 0 {
		return nil, nil
	}
	if err := e.store.ReplacePublished(id, current); err != nil {
		return nil, err
	}
	return &Delta{InstrumentID: id, Timestamp: e.now(), Fields: fields}, nil
}

// Diff returns the fields of next whose values differ from prev.
func Diff(prev, next *models.Instrument) map[string]any {
	prevFields := prev.FieldMap()
	out := make(map[string]any)
	for name, v := range next.FieldMap() {
		if !valueEqual(prevFields[name], v) {
			out[name] = v
		}
	}
	return out
}

// valueEqual applies the delta equality rules: timestamps compare by epoch
// millisecond, arrays element-wise, primitives by plain equality (floats with
// no epsilon).
func valueEqual(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.UnixMilli() == bt.UnixMilli()
	}
	if as, ok := a.([]any); ok {
		bs, ok := b.([]any)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valueEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
