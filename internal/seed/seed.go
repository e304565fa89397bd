// Package seed loads a representative starter catalog so the service streams
// something useful out of the box.
package seed

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blotterfeed/blotterfeed/internal/models"
	"github.com/blotterfeed/blotterfeed/internal/sim"
	"github.com/blotterfeed/blotterfeed/internal/store"
)

// Load inserts the example instruments and wires their correlation rows.
func Load(st *store.Store, graph *sim.CorrelationGraph) error {
	for _, in := range Instruments() {
		existing, err := st.InsertReturningExisting(in)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		graph.Add(in, existing)
	}
	log.Info().Int("instruments", st.Count()).Msg("example catalog seeded")
	return nil
}

// Instruments returns the example catalog: benchmark government bonds, USD
// and EUR swaps, note futures, and options on those futures.
func Instruments() []*models.Instrument {
	now := time.Now()
	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return []*models.Instrument{
		{
			ID: "US10Y", SecurityType: models.SecurityBond,
			Description: "US Treasury 10 Year", Currency: "USD",
			Sector: "Government", Rating: "AAA", Status: models.StatusActive,
			LastUpdate: now,
			Bond: &models.BondFields{
				Price: 98.5, BidPrice: 98.45, AskPrice: 98.55,
				Yield: 4.25, Coupon: 4.0, Duration: 8.2, Convexity: 0.85,
				SpreadBps: 0, FaceValue: 1000,
				MaturityDate: date(2035, time.May, 15),
			},
		},
		{
			ID: "US2Y", SecurityType: models.SecurityBond,
			Description: "US Treasury 2 Year", Currency: "USD",
			Sector: "Government", Rating: "AAA", Status: models.StatusActive,
			LastUpdate: now,
			Bond: &models.BondFields{
				Price: 99.2, BidPrice: 99.17, AskPrice: 99.23,
				Yield: 4.65, Coupon: 4.5, Duration: 1.9, Convexity: 0.05,
				SpreadBps: 0, FaceValue: 1000,
				MaturityDate: date(2027, time.May, 31),
			},
		},
		{
			ID: "DE10Y", SecurityType: models.SecurityBond,
			Description: "German Bund 10 Year", Currency: "EUR",
			Sector: "Government", Rating: "AAA", Status: models.StatusActive,
			LastUpdate: now,
			Bond: &models.BondFields{
				Price: 97.8, BidPrice: 97.74, AskPrice: 97.86,
				Yield: 2.55, Coupon: 2.3, Duration: 8.8, Convexity: 0.92,
				SpreadBps: -45, FaceValue: 1000,
				MaturityDate: date(2035, time.February, 15),
			},
		},
		{
			ID: "XS-CORP-29", SecurityType: models.SecurityBond,
			Description: "Industrial Corp 5.2% 2029", Currency: "USD",
			Sector: "Industrials", Rating: "BBB+", Status: models.StatusActive,
			LastUpdate: now,
			Bond: &models.BondFields{
				Price: 101.3, BidPrice: 101.1, AskPrice: 101.5,
				Yield: 4.9, Coupon: 5.2, Duration: 4.1, Convexity: 0.21,
				SpreadBps: 85, FaceValue: 1000,
				MaturityDate: date(2029, time.September, 1),
			},
		},
		{
			ID: "USD-IRS-5Y", SecurityType: models.SecuritySwap,
			Description: "USD Interest Rate Swap 5Y", Currency: "USD",
			Sector: "Rates", Rating: "AA", Status: models.StatusActive,
			LastUpdate: now,
			Swap: &models.SwapFields{
				SwapRate: 4.12, BidRate: 4.11, AskRate: 4.13,
				FixedRate: 4.12, FloatingIndex: "SOFR", Notional: 10e6,
				FixedDV01: 4650, FloatingDV01: 120,
				EffectiveDate: date(2025, time.June, 1),
				MaturityDate:  date(2030, time.June, 1),
			},
		},
		{
			ID: "EUR-IRS-10Y", SecurityType: models.SecuritySwap,
			Description: "EUR Interest Rate Swap 10Y", Currency: "EUR",
			Sector: "Rates", Rating: "AA", Status: models.StatusActive,
			LastUpdate: now,
			Swap: &models.SwapFields{
				SwapRate: 2.48, BidRate: 2.47, AskRate: 2.49,
				FixedRate: 2.48, FloatingIndex: "ESTR", Notional: 25e6,
				FixedDV01: 9150, FloatingDV01: 260,
				EffectiveDate: date(2025, time.March, 15),
				MaturityDate:  date(2035, time.March, 15),
			},
		},
		{
			ID: "ZN-U25", SecurityType: models.SecurityFuture,
			Description: "10-Year T-Note Future Sep 25", Currency: "USD",
			Sector: "Government", Rating: "AAA", Status: models.StatusActive,
			LastUpdate: now,
			Future: &models.FutureFields{
				Price: 110.5, BidPrice: 110.48, AskPrice: 110.52,
				ImpliedRate: -10.5, OpenInterest: 420000, Volume: 0,
				ContractSize: 100000, TickSize: 0.015625,
				ExpiryDate:     date(2025, time.September, 19),
				LastTradePrice: 110.5,
			},
		},
		{
			ID: "TU-U25", SecurityType: models.SecurityFuture,
			Description: "2-Year T-Note Future Sep 25", Currency: "USD",
			Sector: "Government", Rating: "AAA", Status: models.StatusActive,
			LastUpdate: now,
			Future: &models.FutureFields{
				Price: 102.8, BidPrice: 102.79, AskPrice: 102.81,
				ImpliedRate: -2.8, OpenInterest: 310000, Volume: 0,
				ContractSize: 200000, TickSize: 0.0078125,
				ExpiryDate:     date(2025, time.September, 30),
				LastTradePrice: 102.8,
			},
		},
		{
			ID: "ZN-U25-C111", SecurityType: models.SecurityOption,
			Description: "Call 111 on ZN-U25", Currency: "USD",
			Sector: "Government", Rating: "AAA", Status: models.StatusActive,
			LastUpdate: now,
			Option: &models.OptionFields{
				Premium: 0.72, BidPrice: 0.70, AskPrice: 0.74,
				Strike: 111, OptionType: models.OptionCall, UnderlyingID: "ZN-U25",
				ImpliedVolatility: 0.065, Delta: 0.42, Gamma: 0.18,
				Theta: -0.011, Vega: 0.16, Rho: 0.05,
				IntrinsicValue: 0, TimeValue: 0.72, OpenInterest: 52000,
				ExpiryDate: date(2025, time.August, 22),
			},
		},
		{
			ID: "ZN-U25-P109", SecurityType: models.SecurityOption,
			Description: "Put 109 on ZN-U25", Currency: "USD",
			Sector: "Government", Rating: "AAA", Status: models.StatusActive,
			LastUpdate: now,
			Option: &models.OptionFields{
				Premium: 0.55, BidPrice: 0.53, AskPrice: 0.57,
				Strike: 109, OptionType: models.OptionPut, UnderlyingID: "ZN-U25",
				ImpliedVolatility: 0.071, Delta: -0.31, Gamma: 0.15,
				Theta: -0.009, Vega: 0.14, Rho: -0.04,
				IntrinsicValue: 0, TimeValue: 0.55, OpenInterest: 38000,
				ExpiryDate: date(2025, time.August, 22),
			},
		},
	}
}
