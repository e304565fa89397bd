package sim

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blotterfeed/blotterfeed/internal/models"
)

func govBond(id string) *models.Instrument {
	return &models.Instrument{
		ID:           id,
		SecurityType: models.SecurityBond,
		Currency:     "USD",
		Sector:       "Government",
		Rating:       "AAA",
		Status:       models.StatusActive,
		LastUpdate:   time.Now(),
		Bond:         &models.BondFields{Price: 100, Yield: 4},
	}
}

func TestCorrelationSymmetryAndRange(t *testing.T) {
	g := NewCorrelationGraph(0.7, rand.New(rand.NewSource(7)))
	a, b, c := govBond("A"), govBond("B"), govBond("C")
	g.Add(a, nil)
	g.Add(b, []*models.Instrument{a})
	g.Add(c, []*models.Instrument{a, b})

	ids := []string{"A", "B", "C"}
	for _, i := range ids {
		for _, j := range ids {
			if i == j {
				continue
			}
			cij := g.Coefficient(i, j)
			assert.Equal(t, cij, g.Coefficient(j, i), "c(%s,%s) symmetric", i, j)
			assert.GreaterOrEqual(t, cij, -1.0)
			assert.LessOrEqual(t, cij, 1.0)
			// Same kind, sector and currency: affinity is strongly positive.
			assert.Greater(t, cij, 0.0)
		}
	}
	assert.Equal(t, 3, g.Size())
}

func TestCorrelationDissimilarInstruments(t *testing.T) {
	g := NewCorrelationGraph(1.0, rand.New(rand.NewSource(3)))
	a := govBond("A")
	other := &models.Instrument{
		ID: "X", SecurityType: models.SecuritySwap,
		Currency: "JPY", Sector: "Rates", Rating: "AA",
		Status: models.StatusActive, LastUpdate: time.Now(),
		Swap: &models.SwapFields{SwapRate: 1},
	}
	g.Add(a, nil)
	g.Add(other, []*models.Instrument{a})

	// Nothing shared: only the jitter term remains.
	c := g.Coefficient("A", "X")
	assert.GreaterOrEqual(t, c, -0.1)
	assert.LessOrEqual(t, c, 0.1)
}

func TestCorrelationRemoveErasesRows(t *testing.T) {
	g := NewCorrelationGraph(0.7, rand.New(rand.NewSource(1)))
	a, b, c := govBond("A"), govBond("B"), govBond("C")
	g.Add(a, nil)
	g.Add(b, []*models.Instrument{a})
	g.Add(c, []*models.Instrument{a, b})
	require.Equal(t, 3, g.Size())

	g.Remove("B")
	assert.Equal(t, 1, g.Size())
	assert.Zero(t, g.Coefficient("A", "B"))
	assert.Zero(t, g.Coefficient("C", "B"))
	assert.NotZero(t, g.Coefficient("A", "C"))
}

func TestCorrelationDiagonalUndefined(t *testing.T) {
	g := NewCorrelationGraph(0.7, rand.New(rand.NewSource(1)))
	g.Add(govBond("A"), nil)
	assert.Zero(t, g.Coefficient("A", "A"))
}
