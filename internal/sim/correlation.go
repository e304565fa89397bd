package sim

import (
	"math/rand"
	"sync"

	"github.com/blotterfeed/blotterfeed/internal/models"
)

// pairKey is an unordered instrument-id pair; a is always the lexically
// smaller id so (i,j) and (j,i) address the same coefficient.
type pairKey struct {
	a, b string
}

func keyFor(i, j string) pairKey {
	if j < i {
		i, j = j, i
	}
	return pairKey{a: i, b: j}
}

// CorrelationGraph holds symmetric pairwise affinity coefficients in [-1, 1],
// derived from categorical instrument attributes when an instrument is added.
// The diagonal is undefined.
type CorrelationGraph struct {
	mu       sync.RWMutex
	strength float64
	coeffs   map[pairKey]float64
	rng      *rand.Rand
}

// NewCorrelationGraph creates an empty graph. strength scales every derived
// coefficient and is expected in [0, 1].
func NewCorrelationGraph(strength float64, rng *rand.Rand) *CorrelationGraph {
	return &CorrelationGraph{
		strength: strength,
		coeffs:   make(map[pairKey]float64),
		rng:      rng,
	}
}

// Add derives coefficients between the new instrument and every existing one.
// Affinity accrues from shared kind, sector and currency, plus a small
// uniform jitter, clamped to [-1, 1] before the strength scaling.
func (g *CorrelationGraph) Add(in *models.Instrument, existing []*models.Instrument) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, other := range existing {
		if other.ID == in.ID {
			continue
		}
		c := g.rng.Float64()*0.2 - 0.1
		if other.SecurityType == in.SecurityType {
			c += 0.3
		}
		if other.Sector == in.Sector {
			c += 0.4
		}
		if other.Currency == in.Currency {
			c += 0.2
		}
		c = clamp(c, -1, 1) * g.strength
		g.coeffs[keyFor(in.ID, other.ID)] = c
	}
}

// Remove erases every coefficient involving the instrument.
func (g *CorrelationGraph) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.coeffs {
		if k.a == id || k.b == id {
			delete(g.coeffs, k)
		}
	}
}

// Coefficient returns c(i,j), or 0 for unknown pairs and the diagonal.
func (g *CorrelationGraph) Coefficient(i, j string) float64 {
	if i == j {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.coeffs[keyFor(i, j)]
}

// Neighbors returns the coefficients between id and every correlated peer.
func (g *CorrelationGraph) Neighbors(id string) map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]float64)
	for k, c := range g.coeffs {
		switch id {
		case k.a:
			out[k.b] = c
		case k.b:
			out[k.a] = c
		}
	}
	return out
}

// Size returns the number of stored pairs.
func (g *CorrelationGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.coeffs)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
