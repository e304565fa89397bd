package sim

import (
	"math"
	"time"

	"github.com/blotterfeed/blotterfeed/internal/models"
)

// Kind-specific floors. Prices never cross these regardless of draw.
const (
	bondPriceFloor     = 0.1
	swapRateFloor      = 0.001
	futurePriceFloor   = 0.01
	optionPremiumFloor = 0.001
	impliedVolFloor    = 0.001
)

// applyKindUpdate mutates the kind-specific fields driven by priceDelta.
// underlying is the option's underlying snapshot (nil when unresolved) and
// underlyingPct its most recent percentage change.
func (e *Engine) applyKindUpdate(in *models.Instrument, priceDelta float64, underlying *models.Instrument, underlyingPct float64, now time.Time) {
	switch {
	case in.Bond != nil:
		e.tickBond(in.Bond, priceDelta, now)
	case in.Swap != nil:
		e.tickSwap(in.Swap, priceDelta, now)
	case in.Future != nil:
		e.tickFuture(in.Future, priceDelta, now)
	case in.Option != nil:
		e.tickOption(in.Option, underlying, underlyingPct, now)
	}
}

// quotedSpread widens with the size of the move: coeff·max(0.5, 1+2|delta|).
func quotedSpread(coeff, priceDelta float64) float64 {
	return coeff * math.Max(0.5, 1+2*math.Abs(priceDelta))
}

// nudge applies small multiplicative noise of the given amplitude.
func (e *Engine) nudge(v, amplitude float64) float64 {
	return v * (1 + (e.rng.Float64()-0.5)*amplitude)
}

func (e *Engine) tickBond(b *models.BondFields, priceDelta float64, now time.Time) {
	price := math.Max(bondPriceFloor, b.Price*(1+priceDelta/100))
	b.Price = price
	b.Yield -= priceDelta * 1.2 / 100

	spread := quotedSpread(0.05, priceDelta)
	b.BidPrice = price * (1 - spread/200)
	b.AskPrice = price * (1 + spread/200)

	b.Duration = e.nudge(b.Duration, 0.002)
	b.Convexity = e.nudge(b.Convexity, 0.002)
	b.SpreadBps = e.nudge(b.SpreadBps, 0.01)

	if e.rng.Float64() < 0.10 {
		b.LastTradePrice = price
		b.LastTradeSize = float64(1+e.rng.Intn(10)) * 1e6
		b.LastTradeTime = now
	}
}

func (e *Engine) tickSwap(s *models.SwapFields, priceDelta float64, now time.Time) {
	rate := math.Max(swapRateFloor, s.SwapRate+priceDelta/100)
	s.SwapRate = rate

	spread := quotedSpread(0.02, priceDelta)
	s.BidRate = rate * (1 - spread/200)
	s.AskRate = rate * (1 + spread/200)

	s.FixedDV01 = e.nudge(s.FixedDV01, 0.002)
	s.FloatingDV01 = e.nudge(s.FloatingDV01, 0.002)

	if e.rng.Float64() < 0.05 {
		s.LastTradePrice = rate
		s.LastTradeSize = float64(1+e.rng.Intn(20)) * 5e6
		s.LastTradeTime = now
	}
}

func (e *Engine) tickFuture(f *models.FutureFields, priceDelta float64, now time.Time) {
	// Futures drift off the latest trade print rather than the mid.
	base := f.LastTradePrice
	if base <= 0 {
		base = f.Price
	}
	price := math.Max(futurePriceFloor, base*(1+priceDelta/100))
	f.Price = price
	f.ImpliedRate = 100 - price

	spread := quotedSpread(0.01, priceDelta)
	f.BidPrice = price * (1 - spread/200)
	f.AskPrice = price * (1 + spread/200)

	// Open interest random-walks with a mild upward bias.
	f.OpenInterest = math.Max(0, f.OpenInterest+math.Floor((e.rng.Float64()-0.45)*100))

	if e.rng.Float64() < 0.20 {
		f.LastTradePrice = price
		f.LastTradeSize = float64(1+e.rng.Intn(50)) * 1e5
		f.LastTradeTime = now
		f.Volume += f.LastTradeSize
	}
}

func (e *Engine) tickOption(o *models.OptionFields, underlying *models.Instrument, underlyingPct float64, now time.Time) {
	// Taylor expansion of the premium in the underlying move, decayed by
	// theta, scaled to the underlying's price level.
	u := underlyingPct
	change := o.Delta*u + 0.5*o.Gamma*u*u - o.Theta/365
	mark := underlyingMark(underlying)
	if mark > 0 {
		change *= mark / 100
	}
	premium := math.Max(optionPremiumFloor, o.Premium+change)
	o.Premium = premium

	o.ImpliedVolatility = math.Max(impliedVolFloor, o.ImpliedVolatility+(e.rng.Float64()-0.5)*0.01)

	o.Delta += (e.rng.Float64() - 0.5) * 0.02
	if o.OptionType == models.OptionCall {
		o.Delta = clamp(o.Delta, 0, 1)
	} else {
		o.Delta = clamp(o.Delta, -1, 0)
	}
	o.Gamma = e.nudge(o.Gamma, 0.01)
	o.Vega = e.nudge(o.Vega, 0.01)
	o.Rho = e.nudge(o.Rho, 0.01)
	o.Theta = e.nudge(o.Theta, 0.01)

	if mark > 0 {
		if o.OptionType == models.OptionCall {
			o.IntrinsicValue = math.Max(0, mark-o.Strike)
		} else {
			o.IntrinsicValue = math.Max(0, o.Strike-mark)
		}
	}
	o.TimeValue = math.Max(0, premium-o.IntrinsicValue)

	spread := quotedSpread(0.05, u)
	o.BidPrice = premium * (1 - spread/200)
	o.AskPrice = premium * (1 + spread/200)

	if e.rng.Float64() < 0.05 {
		o.LastTradePrice = premium
		o.LastTradeSize = float64(1+e.rng.Intn(10)) * 100
		o.LastTradeTime = now
	}
}

// underlyingMark returns the current mark of the underlying: the last trade
// print when available, otherwise the quoted price.
func underlyingMark(underlying *models.Instrument) float64 {
	if underlying == nil {
		return 0
	}
	switch {
	case underlying.Bond != nil:
		if underlying.Bond.LastTradePrice > 0 {
			return underlying.Bond.LastTradePrice
		}
		return underlying.Bond.Price
	case underlying.Future != nil:
		if underlying.Future.LastTradePrice > 0 {
			return underlying.Future.LastTradePrice
		}
		return underlying.Future.Price
	case underlying.Swap != nil:
		return underlying.Swap.SwapRate
	}
	return 0
}
