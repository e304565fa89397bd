package models

import (
	"fmt"
	"time"
)

// FieldMap flattens the instrument into the uniform field-name to value view
// the delta engine and filter evaluator operate on. Values are string,
// float64 or time.Time; enumeration fields appear as their string tags.
func (in *Instrument) FieldMap() map[string]any {
	m := map[string]any{
		"securityType":     string(in.SecurityType),
		"description":      in.Description,
		"currency":         in.Currency,
		"sector":           in.Sector,
		"rating":           in.Rating,
		"status":           string(in.Status),
		"percentageChange": in.PercentageChange,
		"lastUpdate":       in.LastUpdate,
	}
	switch {
	case in.Bond != nil:
		b := in.Bond
		m["price"] = b.Price
		m["bidPrice"] = b.BidPrice
		m["askPrice"] = b.AskPrice
		m["yield"] = b.Yield
		m["coupon"] = b.Coupon
		m["duration"] = b.Duration
		m["convexity"] = b.Convexity
		m["spreadBps"] = b.SpreadBps
		m["faceValue"] = b.FaceValue
		m["maturityDate"] = b.MaturityDate
		m["lastTradePrice"] = b.LastTradePrice
		m["lastTradeSize"] = b.LastTradeSize
		m["lastTradeTime"] = b.LastTradeTime
	case in.Swap != nil:
		s := in.Swap
		m["swapRate"] = s.SwapRate
		m["bidRate"] = s.BidRate
		m["askRate"] = s.AskRate
		m["fixedRate"] = s.FixedRate
		m["floatingIndex"] = s.FloatingIndex
		m["notional"] = s.Notional
		m["fixedDV01"] = s.FixedDV01
		m["floatingDV01"] = s.FloatingDV01
		m["effectiveDate"] = s.EffectiveDate
		m["maturityDate"] = s.MaturityDate
		m["lastTradePrice"] = s.LastTradePrice
		m["lastTradeSize"] = s.LastTradeSize
		m["lastTradeTime"] = s.LastTradeTime
	case in.Future != nil:
		f := in.Future
		m["price"] = f.Price
		m["bidPrice"] = f.BidPrice
		m["askPrice"] = f.AskPrice
		m["impliedRate"] = f.ImpliedRate
		m["openInterest"] = f.OpenInterest
		m["volume"] = f.Volume
		m["contractSize"] = f.ContractSize
		m["tickSize"] = f.TickSize
		m["expiryDate"] = f.ExpiryDate
		m["lastTradePrice"] = f.LastTradePrice
		m["lastTradeSize"] = f.LastTradeSize
		m["lastTradeTime"] = f.LastTradeTime
	case in.Option != nil:
		o := in.Option
		m["premium"] = o.Premium
		m["bidPrice"] = o.BidPrice
		m["askPrice"] = o.AskPrice
		m["strike"] = o.Strike
		m["optionType"] = string(o.OptionType)
		m["underlyingId"] = o.UnderlyingID
		m["impliedVolatility"] = o.ImpliedVolatility
		m["delta"] = o.Delta
		m["gamma"] = o.Gamma
		m["theta"] = o.Theta
		m["vega"] = o.Vega
		m["rho"] = o.Rho
		m["intrinsicValue"] = o.IntrinsicValue
		m["timeValue"] = o.TimeValue
		m["openInterest"] = o.OpenInterest
		m["expiryDate"] = o.ExpiryDate
		m["lastTradePrice"] = o.LastTradePrice
		m["lastTradeSize"] = o.LastTradeSize
		m["lastTradeTime"] = o.LastTradeTime
	}
	return m
}

// ApplyFields assigns values into the instrument by field name, the inverse
// of FieldMap. Numbers accept float64 or int64; date fields additionally
// accept epoch-millisecond numbers as they appear on the wire. Unknown field
// names or type mismatches fail without partial effects being rolled back, so
// callers validate first when atomicity matters.
func (in *Instrument) ApplyFields(fields map[string]any) error {
	for name, v := range fields {
		if err := in.applyField(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (in *Instrument) applyField(name string, v any) error {
	switch name {
	case "securityType":
		return fmt.Errorf("field securityType is immutable")
	case "description":
		return assignString(name, v, &in.Description)
	case "currency":
		return assignString(name, v, &in.Currency)
	case "sector":
		return assignString(name, v, &in.Sector)
	case "rating":
		return assignString(name, v, &in.Rating)
	case "status":
		s, ok := v.(string)
		if !ok {
			return typeMismatch(name, v)
		}
		st, err := ParseStatus(s)
		if err != nil {
			return err
		}
		in.Status = st
		return nil
	case "percentageChange":
		return assignNumber(name, v, &in.PercentageChange)
	case "lastUpdate":
		return assignTime(name, v, &in.LastUpdate)
	}

	switch {
	case in.Bond != nil:
		return in.applyBondField(name, v)
	case in.Swap != nil:
		return in.applySwapField(name, v)
	case in.Future != nil:
		return in.applyFutureField(name, v)
	case in.Option != nil:
		return in.applyOptionField(name, v)
	}
	return fmt.Errorf("unknown field %q", name)
}

func (in *Instrument) applyBondField(name string, v any) error {
	b := in.Bond
	switch name {
	case "price":
		return assignNumber(name, v, &b.Price)
	case "bidPrice":
		return assignNumber(name, v, &b.BidPrice)
	case "askPrice":
		return assignNumber(name, v, &b.AskPrice)
	case "yield":
		return assignNumber(name, v, &b.Yield)
	case "coupon":
		return assignNumber(name, v, &b.Coupon)
	case "duration":
		return assignNumber(name, v, &b.Duration)
	case "convexity":
		return assignNumber(name, v, &b.Convexity)
	case "spreadBps":
		return assignNumber(name, v, &b.SpreadBps)
	case "faceValue":
		return assignNumber(name, v, &b.FaceValue)
	case "maturityDate":
		return assignTime(name, v, &b.MaturityDate)
	case "lastTradePrice":
		return assignNumber(name, v, &b.LastTradePrice)
	case "lastTradeSize":
		return assignNumber(name, v, &b.LastTradeSize)
	case "lastTradeTime":
		return assignTime(name, v, &b.LastTradeTime)
	}
	return fmt.Errorf("unknown field %q for bond", name)
}

func (in *Instrument) applySwapField(name string, v any) error {
	s := in.Swap
	switch name {
	case "swapRate":
		return assignNumber(name, v, &s.SwapRate)
	case "bidRate":
		return assignNumber(name, v, &s.BidRate)
	case "askRate":
		return assignNumber(name, v, &s.AskRate)
	case "fixedRate":
		return assignNumber(name, v, &s.FixedRate)
	case "floatingIndex":
		return assignString(name, v, &s.FloatingIndex)
	case "notional":
		return assignNumber(name, v, &s.Notional)
	case "fixedDV01":
		return assignNumber(name, v, &s.FixedDV01)
	case "floatingDV01":
		return assignNumber(name, v, &s.FloatingDV01)
	case "effectiveDate":
		return assignTime(name, v, &s.EffectiveDate)
	case "maturityDate":
		return assignTime(name, v, &s.MaturityDate)
	case "lastTradePrice":
		return assignNumber(name, v, &s.LastTradePrice)
	case "lastTradeSize":
		return assignNumber(name, v, &s.LastTradeSize)
	case "lastTradeTime":
		return assignTime(name, v, &s.LastTradeTime)
	}
	return fmt.Errorf("unknown field %q for swap", name)
}

func (in *Instrument) applyFutureField(name string, v any) error {
	f := in.Future
	switch name {
	case "price":
		return assignNumber(name, v, &f.Price)
	case "bidPrice":
		return assignNumber(name, v, &f.BidPrice)
	case "askPrice":
		return assignNumber(name, v, &f.AskPrice)
	case "impliedRate":
		return assignNumber(name, v, &f.ImpliedRate)
	case "openInterest":
		return assignNumber(name, v, &f.OpenInterest)
	case "volume":
		return assignNumber(name, v, &f.Volume)
	case "contractSize":
		return assignNumber(name, v, &f.ContractSize)
	case "tickSize":
		return assignNumber(name, v, &f.TickSize)
	case "expiryDate":
		return assignTime(name, v, &f.ExpiryDate)
	case "lastTradePrice":
		return assignNumber(name, v, &f.LastTradePrice)
	case "lastTradeSize":
		return assignNumber(name, v, &f.LastTradeSize)
	case "lastTradeTime":
		return assignTime(name, v, &f.LastTradeTime)
	}
	return fmt.Errorf("unknown field %q for future", name)
}

func (in *Instrument) applyOptionField(name string, v any) error {
	o := in.Option
	switch name {
	case "premium":
		return assignNumber(name, v, &o.Premium)
	case "bidPrice":
		return assignNumber(name, v, &o.BidPrice)
	case "askPrice":
		return assignNumber(name, v, &o.AskPrice)
	case "strike":
		return assignNumber(name, v, &o.Strike)
	case "optionType":
		s, ok := v.(string)
		if !ok {
			return typeMismatch(name, v)
		}
		if OptionType(s) != OptionCall && OptionType(s) != OptionPut {
			return fmt.Errorf("unknown option type %q", s)
		}
		o.OptionType = OptionType(s)
		return nil
	case "underlyingId":
		return assignString(name, v, &o.UnderlyingID)
	case "impliedVolatility":
		return assignNumber(name, v, &o.ImpliedVolatility)
	case "delta":
		return assignNumber(name, v, &o.Delta)
	case "gamma":
		return assignNumber(name, v, &o.Gamma)
	case "theta":
		return assignNumber(name, v, &o.Theta)
	case "vega":
		return assignNumber(name, v, &o.Vega)
	case "rho":
		return assignNumber(name, v, &o.Rho)
	case "intrinsicValue":
		return assignNumber(name, v, &o.IntrinsicValue)
	case "timeValue":
		return assignNumber(name, v, &o.TimeValue)
	case "openInterest":
		return assignNumber(name, v, &o.OpenInterest)
	case "expiryDate":
		return assignTime(name, v, &o.ExpiryDate)
	case "lastTradePrice":
		return assignNumber(name, v, &o.LastTradePrice)
	case "lastTradeSize":
		return assignNumber(name, v, &o.LastTradeSize)
	case "lastTradeTime":
		return assignTime(name, v, &o.LastTradeTime)
	}
	return fmt.Errorf("unknown field %q for option", name)
}

func assignString(name string, v any, dst *string) error {
	s, ok := v.(string)
	if !ok {
		return typeMismatch(name, v)
	}
	*dst = s
	return nil
}

func assignNumber(name string, v any, dst *float64) error {
	switch n := v.(type) {
	case float64:
		*dst = n
	case int64:
		*dst = float64(n)
	case int:
		*dst = float64(n)
	default:
		return typeMismatch(name, v)
	}
	return nil
}

func assignTime(name string, v any, dst *time.Time) error {
	switch t := v.(type) {
	case time.Time:
		*dst = t
	case float64:
		*dst = time.UnixMilli(int64(t)).UTC()
	case int64:
		*dst = time.UnixMilli(t).UTC()
	default:
		return typeMismatch(name, v)
	}
	return nil
}

func typeMismatch(name string, v any) error {
	return fmt.Errorf("field %q: unsupported value type %T", name, v)
}

// WireValue converts a field-map value to its wire form: timestamps become
// epoch-millisecond integers, everything else passes through.
func WireValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UnixMilli()
	}
	return v
}

// WireFields converts a whole field map to wire form.
func WireFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = WireValue(v)
	}
	return out
}
