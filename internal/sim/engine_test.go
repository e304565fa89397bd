package sim

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blotterfeed/blotterfeed/internal/models"
	"github.com/blotterfeed/blotterfeed/internal/store"
)

func testParams() Params {
	return Params{
		UpdateFrequency:       100 * time.Millisecond,
		VolatilityFactor:      0.2,
		Scenario:              ScenarioNormal,
		TimeOfDay:             TimeMorning,
		FlashEventProbability: 0,
		FlashEventMagnitude:   3,
	}
}

func newTestEngine(t *testing.T, st *store.Store, params Params, seed int64) *Engine {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	g := NewCorrelationGraph(0.7, rng)
	return NewEngine(st, g, params, rng, nil)
}

func seedCatalog(t *testing.T, st *store.Store) {
	t.Helper()
	now := time.Now()
	require.NoError(t, st.Insert(&models.Instrument{
		ID: "US10Y", SecurityType: models.SecurityBond,
		Currency: "USD", Sector: "Government", Rating: "AAA",
		Status: models.StatusActive, LastUpdate: now,
		Bond: &models.BondFields{
			Price: 98.5, BidPrice: 98.45, AskPrice: 98.55,
			Yield: 4.25, Duration: 8.2, Convexity: 0.85,
		},
	}))
	require.NoError(t, st.Insert(&models.Instrument{
		ID: "USD-IRS-5Y", SecurityType: models.SecuritySwap,
		Currency: "USD", Sector: "Rates", Rating: "AA",
		Status: models.StatusActive, LastUpdate: now,
		Swap: &models.SwapFields{
			SwapRate: 4.12, FixedDV01: 4650, FloatingDV01: 120,
		},
	}))
	require.NoError(t, st.Insert(&models.Instrument{
		ID: "ZN-U25", SecurityType: models.SecurityFuture,
		Currency: "USD", Sector: "Government", Rating: "AAA",
		Status: models.StatusActive, LastUpdate: now,
		Future: &models.FutureFields{
			Price: 110.5, LastTradePrice: 110.5, OpenInterest: 420000,
		},
	}))
	require.NoError(t, st.Insert(&models.Instrument{
		ID: "ZN-U25-C111", SecurityType: models.SecurityOption,
		Currency: "USD", Sector: "Government", Rating: "AAA",
		Status: models.StatusActive, LastUpdate: now,
		Option: &models.OptionFields{
			Premium: 0.72, Strike: 111, OptionType: models.OptionCall,
			UnderlyingID: "ZN-U25", ImpliedVolatility: 0.065,
			Delta: 0.42, Gamma: 0.18, Theta: -0.011, Vega: 0.16, Rho: 0.05,
		},
	}))
}

func TestTickVisitsEveryInstrument(t *testing.T) {
	st := store.New()
	seedCatalog(t, st)
	visited := make(map[string]int)
	rng := rand.New(rand.NewSource(1))
	e := NewEngine(st, NewCorrelationGraph(0.7, rng), testParams(), rng, func(id string) {
		visited[id]++
	})
	e.Tick()
	assert.Len(t, visited, 4)
	for id, n := range visited {
		assert.Equal(t, 1, n, "instrument %s visited once", id)
	}
}

func TestPriceFloors(t *testing.T) {
	st := store.New()
	now := time.Now()
	require.NoError(t, st.Insert(&models.Instrument{
		ID: "FLOOR-B", SecurityType: models.SecurityBond,
		Currency: "USD", Sector: "Government", Rating: "AAA",
		Status: models.StatusActive, LastUpdate: now,
		Bond: &models.BondFields{Price: 0.11, Yield: 25},
	}))
	require.NoError(t, st.Insert(&models.Instrument{
		ID: "FLOOR-S", SecurityType: models.SecuritySwap,
		Currency: "USD", Sector: "Rates", Rating: "AA",
		Status: models.StatusActive, LastUpdate: now,
		Swap: &models.SwapFields{SwapRate: 0.0011},
	}))
	require.NoError(t, st.Insert(&models.Instrument{
		ID: "FLOOR-F", SecurityType: models.SecurityFuture,
		Currency: "USD", Sector: "Government", Rating: "AAA",
		Status: models.StatusActive, LastUpdate: now,
		Future: &models.FutureFields{Price: 0.02, LastTradePrice: 0.02},
	}))
	require.NoError(t, st.Insert(&models.Instrument{
		ID: "FLOOR-O", SecurityType: models.SecurityOption,
		Currency: "USD", Sector: "Government", Rating: "AAA",
		Status: models.StatusActive, LastUpdate: now,
		Option: &models.OptionFields{
			Premium: 0.002, Strike: 1, OptionType: models.OptionPut,
			UnderlyingID: "FLOOR-F", ImpliedVolatility: 0.01,
			Delta: -0.5, Gamma: 0.2, Theta: -0.5, Vega: 0.1, Rho: -0.1,
		},
	}))

	params := testParams()
	params.VolatilityFactor = 1.0
	params.TimeOfDay = TimeMarketOpen
	params.Scenario = ScenarioHighVol
	e := newTestEngine(t, st, params, 99)

	for i := 0; i < 500; i++ {
		e.Tick()
	}
	b, err := st.Get("FLOOR-B")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.Bond.Price, 0.1)

	sw, err := st.Get("FLOOR-S")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sw.Swap.SwapRate, 0.001)

	f, err := st.Get("FLOOR-F")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f.Future.Price, 0.01)
	assert.GreaterOrEqual(t, f.Future.OpenInterest, 0.0)

	o, err := st.Get("FLOOR-O")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, o.Option.Premium, 0.001)
	assert.Greater(t, o.Option.ImpliedVolatility, 0.0)
	assert.GreaterOrEqual(t, o.Option.IntrinsicValue, 0.0)
	assert.GreaterOrEqual(t, o.Option.TimeValue, 0.0)
}

func TestLastUpdateMonotone(t *testing.T) {
	st := store.New()
	seedCatalog(t, st)
	e := newTestEngine(t, st, testParams(), 5)

	var prev time.Time
	for i := 0; i < 20; i++ {
		e.Tick()
		in, err := st.Get("US10Y")
		require.NoError(t, err)
		assert.True(t, in.LastUpdate.After(prev), "lastUpdate advances per tick")
		prev = in.LastUpdate
	}
}

func TestBondYieldMovesInverse(t *testing.T) {
	st := store.New()
	seedCatalog(t, st)
	e := newTestEngine(t, st, testParams(), 12)

	before, err := st.Get("US10Y")
	require.NoError(t, err)
	e.Tick()
	after, err := st.Get("US10Y")
	require.NoError(t, err)

	priceUp := after.Bond.Price > before.Bond.Price
	yieldDown := after.Bond.Yield < before.Bond.Yield
	assert.Equal(t, priceUp, yieldDown, "yield moves against price")
	assert.Less(t, after.Bond.BidPrice, after.Bond.AskPrice)
}

func TestOptionDeltaBounds(t *testing.T) {
	st := store.New()
	seedCatalog(t, st)
	e := newTestEngine(t, st, testParams(), 21)
	for i := 0; i < 300; i++ {
		e.Tick()
	}
	o, err := st.Get("ZN-U25-C111")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, o.Option.Delta, 0.0)
	assert.LessOrEqual(t, o.Option.Delta, 1.0)
}

func TestOptionIntrinsicFromUnderlying(t *testing.T) {
	st := store.New()
	seedCatalog(t, st)
	e := newTestEngine(t, st, testParams(), 8)
	e.Tick()

	o, err := st.Get("ZN-U25-C111")
	require.NoError(t, err)
	u, err := st.Get("ZN-U25")
	require.NoError(t, err)

	want := u.Future.LastTradePrice - o.Option.Strike
	if want < 0 {
		want = 0
	}
	assert.InDelta(t, want, o.Option.IntrinsicValue, 1e-9)
	assert.InDelta(t, maxFloat(0, o.Option.Premium-o.Option.IntrinsicValue), o.Option.TimeValue, 1e-9)
}

func TestTrendingBias(t *testing.T) {
	stUp := store.New()
	seedCatalog(t, stUp)
	params := testParams()
	params.Scenario = ScenarioTrendingUp
	e := newTestEngine(t, stUp, params, 42)
	for i := 0; i < 400; i++ {
		e.Tick()
	}
	in, err := stUp.Get("US10Y")
	require.NoError(t, err)
	assert.Greater(t, in.Bond.Price, 98.5, "trending_up drifts prices higher over many ticks")
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
