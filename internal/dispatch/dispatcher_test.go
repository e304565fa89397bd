package dispatch

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blotterfeed/blotterfeed/internal/delta"
	"github.com/blotterfeed/blotterfeed/internal/filter"
	"github.com/blotterfeed/blotterfeed/internal/metrics"
	"github.com/blotterfeed/blotterfeed/internal/models"
	"github.com/blotterfeed/blotterfeed/internal/registry"
	"github.com/blotterfeed/blotterfeed/internal/store"
)

// fakeSender records sends and can simulate a full queue per session.
type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]*delta.Delta
	full map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]*delta.Delta), full: make(map[string]bool)}
}

func (f *fakeSender) SendUpdate(sessionID string, d *delta.Delta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full[sessionID] {
		return ErrQueueFull
	}
	f.sent[sessionID] = append(f.sent[sessionID], d)
	return nil
}

func (f *fakeSender) count(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[sessionID])
}

func newFixture(t *testing.T) (*store.Store, *registry.Registry, *fakeSender, *Dispatcher, *metrics.Registry) {
	t.Helper()
	st := store.New()
	require.NoError(t, st.Insert(&models.Instrument{
		ID: "US10Y", SecurityType: models.SecurityBond,
		Currency: "USD", Sector: "Government", Rating: "AAA",
		Status: models.StatusActive, LastUpdate: time.Now(),
		Bond: &models.BondFields{Price: 98.5, BidPrice: 98.45, AskPrice: 98.55},
	}))
	reg := registry.New(registry.Limits{MaxUpdatesPerSecond: 100, BucketSize: 100})
	sender := newFakeSender()
	m := metrics.NewRegistry()
	return st, reg, sender, New(st, reg, sender, m), m
}

func bondDelta(ts time.Time) *delta.Delta {
	return &delta.Delta{
		InstrumentID: "US10Y",
		Timestamp:    ts,
		Fields:       map[string]any{"bidPrice": 98.47},
	}
}

func TestDispatchToInterestedSession(t *testing.T) {
	_, reg, sender, d, m := newFixture(t)
	reg.Register("s1")
	require.NoError(t, reg.AddSubscription("s1", &registry.Subscription{
		ID: "sub1", InstrumentIDs: []string{"US10Y"},
	}))

	d.Dispatch(bondDelta(time.Now()))
	assert.Equal(t, 1, sender.count("s1"))
	assert.Equal(t, 1.0, m.CounterValue("blotterfeed_updates_sent_total"))
}

func TestUninterestedSessionSkipped(t *testing.T) {
	_, reg, sender, d, _ := newFixture(t)
	reg.Register("s1")
	require.NoError(t, reg.AddSubscription("s1", &registry.Subscription{
		ID: "sub1", InstrumentIDs: []string{"ZN-U25"},
	}))

	d.Dispatch(bondDelta(time.Now()))
	assert.Equal(t, 0, sender.count("s1"))
}

func TestPredicateGate(t *testing.T) {
	_, reg, sender, d, m := newFixture(t)
	reg.Register("s1")
	expr, err := filter.Parse(json.RawMessage(`{"==": [{"var":"securityType"}, "Future"]}`))
	require.NoError(t, err)
	require.NoError(t, reg.AddSubscription("s1", &registry.Subscription{
		ID: "sub1", InstrumentIDs: []string{"US10Y"}, Filter: expr,
	}))

	d.Dispatch(bondDelta(time.Now()))
	assert.Equal(t, 0, sender.count("s1"))
	assert.Equal(t, 1.0, m.CounterValue("blotterfeed_updates_dropped_total"))
}

func TestTransportFullIsADrop(t *testing.T) {
	_, reg, sender, d, m := newFixture(t)
	reg.Register("s1")
	require.NoError(t, reg.AddSubscription("s1", &registry.Subscription{
		ID: "sub1", InstrumentIDs: []string{"US10Y"},
	}))
	sender.full["s1"] = true

	d.Dispatch(bondDelta(time.Now()))
	assert.Equal(t, 0, sender.count("s1"))
	assert.Equal(t, 1.0, m.CounterValue("blotterfeed_updates_dropped_total"))

	// The next delta is attempted fresh once the queue recovers.
	sender.full["s1"] = false
	d.Dispatch(bondDelta(time.Now()))
	assert.Equal(t, 1, sender.count("s1"))
}

func TestPacingGateBetweenDeltas(t *testing.T) {
	_, reg, sender, d, _ := newFixture(t)
	reg.Register("s1")
	require.NoError(t, reg.AddSubscription("s1", &registry.Subscription{
		ID: "sub1", InstrumentIDs: []string{"US10Y"}, Frequency: 10,
	}))

	base := time.Now()
	clock := base
	d.SetClock(func() time.Time { return clock })

	d.Dispatch(bondDelta(base))
	clock = base.Add(20 * time.Millisecond)
	d.Dispatch(bondDelta(clock))
	assert.Equal(t, 1, sender.count("s1"), "second delta inside the 100ms window is paced out")

	clock = base.Add(150 * time.Millisecond)
	d.Dispatch(bondDelta(clock))
	assert.Equal(t, 2, sender.count("s1"))
}

func TestOrderingPerSessionInstrument(t *testing.T) {
	_, reg, sender, d, _ := newFixture(t)
	reg.Register("s1")
	require.NoError(t, reg.AddSubscription("s1", &registry.Subscription{
		ID: "sub1", InstrumentIDs: []string{"US10Y"}, Frequency: 1000,
	}))

	base := time.Now()
	clock := base
	d.SetClock(func() time.Time { return clock })
	for i := 0; i < 5; i++ {
		clock = base.Add(time.Duration(i+1) * 10 * time.Millisecond)
		d.Dispatch(bondDelta(clock))
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	got := sender.sent["s1"]
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.True(t, !got[i].Timestamp.Before(got[i-1].Timestamp), "delivery preserves emission order")
	}
}

func TestMissingInstrumentDropsDelta(t *testing.T) {
	st, reg, sender, d, _ := newFixture(t)
	reg.Register("s1")
	require.NoError(t, reg.AddSubscription("s1", &registry.Subscription{
		ID: "sub1", InstrumentIDs: []string{"US10Y"},
	}))
	require.NoError(t, st.Remove("US10Y"))

	d.Dispatch(bondDelta(time.Now()))
	assert.Equal(t, 0, sender.count("s1"))
}
