package models

import (
	"fmt"
	"time"
)

// SecurityType discriminates the four instrument kinds carried by the blotter.
type SecurityType string

const (
	SecurityBond   SecurityType = "Bond"
	SecuritySwap   SecurityType = "Swap"
	SecurityFuture SecurityType = "Future"
	SecurityOption SecurityType = "Option"
)

// ParseSecurityType validates a wire tag against the closed kind set.
func ParseSecurityType(s string) (SecurityType, error) {
	switch SecurityType(s) {
	case SecurityBond, SecuritySwap, SecurityFuture, SecurityOption:
		return SecurityType(s), nil
	}
	return "", fmt.Errorf("unknown security type %q", s)
}

// Status represents the trading status of an instrument.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusInactive  Status = "INACTIVE"
)

// ParseStatus validates a wire tag against the closed status set.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusSuspended, StatusInactive:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// Instrument is the authoritative record for one tradeable security. The
// common header is shared by all kinds; exactly one of the payload pointers
// matching SecurityType is non-nil.
type Instrument struct {
	ID               string       `json:"id"`
	SecurityType     SecurityType `json:"securityType"`
	Description      string       `json:"description"`
	Currency         string       `json:"currency"`
	Sector           string       `json:"sector"`
	Rating           string       `json:"rating"`
	Status           Status       `json:"status"`
	PercentageChange float64      `json:"percentageChange"`
	LastUpdate       time.Time    `json:"lastUpdate"`

	Bond   *BondFields   `json:"bond,omitempty"`
	Swap   *SwapFields   `json:"swap,omitempty"`
	Future *FutureFields `json:"future,omitempty"`
	Option *OptionFields `json:"option,omitempty"`
}

// BondFields carries the bond-specific quote and sensitivity state.
type BondFields struct {
	Price          float64   `json:"price"`
	BidPrice       float64   `json:"bidPrice"`
	AskPrice       float64   `json:"askPrice"`
	Yield          float64   `json:"yield"`
	Coupon         float64   `json:"coupon"`
	Duration       float64   `json:"duration"`
	Convexity      float64   `json:"convexity"`
	SpreadBps      float64   `json:"spreadBps"`
	FaceValue      float64   `json:"faceValue"`
	MaturityDate   time.Time `json:"maturityDate"`
	LastTradePrice float64   `json:"lastTradePrice"`
	LastTradeSize  float64   `json:"lastTradeSize"`
	LastTradeTime  time.Time `json:"lastTradeTime"`
}

// SwapFields carries the interest-rate-swap state.
type SwapFields struct {
	SwapRate       float64   `json:"swapRate"`
	BidRate        float64   `json:"bidRate"`
	AskRate        float64   `json:"askRate"`
	FixedRate      float64   `json:"fixedRate"`
	FloatingIndex  string    `json:"floatingIndex"`
	Notional       float64   `json:"notional"`
	FixedDV01      float64   `json:"fixedDV01"`
	FloatingDV01   float64   `json:"floatingDV01"`
	EffectiveDate  time.Time `json:"effectiveDate"`
	MaturityDate   time.Time `json:"maturityDate"`
	LastTradePrice float64   `json:"lastTradePrice"`
	LastTradeSize  float64   `json:"lastTradeSize"`
	LastTradeTime  time.Time `json:"lastTradeTime"`
}

// FutureFields carries the futures-contract state.
type FutureFields struct {
	Price          float64   `json:"price"`
	BidPrice       float64   `json:"bidPrice"`
	AskPrice       float64   `json:"askPrice"`
	ImpliedRate    float64   `json:"impliedRate"`
	OpenInterest   float64   `json:"openInterest"`
	Volume         float64   `json:"volume"`
	ContractSize   float64   `json:"contractSize"`
	TickSize       float64   `json:"tickSize"`
	ExpiryDate     time.Time `json:"expiryDate"`
	LastTradePrice float64   `json:"lastTradePrice"`
	LastTradeSize  float64   `json:"lastTradeSize"`
	LastTradeTime  time.Time `json:"lastTradeTime"`
}

// OptionFields carries the option state including Greeks.
type OptionFields struct {
	Premium           float64    `json:"premium"`
	BidPrice          float64    `json:"bidPrice"`
	AskPrice          float64    `json:"askPrice"`
	Strike            float64    `json:"strike"`
	OptionType        OptionType `json:"optionType"`
	UnderlyingID      string     `json:"underlyingId"`
	ImpliedVolatility float64    `json:"impliedVolatility"`
	Delta             float64    `json:"delta"`
	Gamma             float64    `json:"gamma"`
	Theta             float64    `json:"theta"`
	Vega              float64    `json:"vega"`
	Rho               float64    `json:"rho"`
	IntrinsicValue    float64    `json:"intrinsicValue"`
	TimeValue         float64    `json:"timeValue"`
	OpenInterest      float64    `json:"openInterest"`
	ExpiryDate        time.Time  `json:"expiryDate"`
	LastTradePrice    float64    `json:"lastTradePrice"`
	LastTradeSize     float64    `json:"lastTradeSize"`
	LastTradeTime     time.Time  `json:"lastTradeTime"`
}

// Validate checks that the record is internally consistent: the payload
// matches the discriminant and numeric fields respect their floors.
func (in *Instrument) Validate() error {
	if in.ID == "" {
		return fmt.Errorf("instrument id is required")
	}
	if _, err := ParseSecurityType(string(in.SecurityType)); err != nil {
		return err
	}
	if in.Status != "" {
		if _, err := ParseStatus(string(in.Status)); err != nil {
			return err
		}
	}
	payloads := 0
	for _, set := range []bool{in.Bond != nil, in.Swap != nil, in.Future != nil, in.Option != nil} {
		if set {
			payloads++
		}
	}
	if payloads != 1 {
		return fmt.Errorf("instrument %s must carry exactly one kind payload, has %d", in.ID, payloads)
	}
	switch in.SecurityType {
	case SecurityBond:
		if in.Bond == nil {
			return fmt.Errorf("instrument %s: securityType Bond without bond payload", in.ID)
		}
		if in.Bond.Price < 0 || in.Bond.BidPrice < 0 || in.Bond.AskPrice < 0 {
			return fmt.Errorf("instrument %s: negative bond price", in.ID)
		}
	case SecuritySwap:
		if in.Swap == nil {
			return fmt.Errorf("instrument %s: securityType Swap without swap payload", in.ID)
		}
	case SecurityFuture:
		if in.Future == nil {
			return fmt.Errorf("instrument %s: securityType Future without future payload", in.ID)
		}
		if in.Future.Price < 0 {
			return fmt.Errorf("instrument %s: negative future price", in.ID)
		}
	case SecurityOption:
		if in.Option == nil {
			return fmt.Errorf("instrument %s: securityType Option without option payload", in.ID)
		}
		if in.Option.Premium <= 0 {
			return fmt.Errorf("instrument %s: option premium must be > 0", in.ID)
		}
		if in.Option.ImpliedVolatility <= 0 {
			return fmt.Errorf("instrument %s: implied volatility must be > 0", in.ID)
		}
		if in.Option.OptionType != OptionCall && in.Option.OptionType != OptionPut {
			return fmt.Errorf("instrument %s: unknown option type %q", in.ID, in.Option.OptionType)
		}
	}
	return nil
}

// Clone returns a deep copy. Snapshots handed outside the store are always
// clones so no caller holds a pointer into shared state.
func (in *Instrument) Clone() *Instrument {
	out := *in
	if in.Bond != nil {
		b := *in.Bond
		out.Bond = &b
	}
	if in.Swap != nil {
		s := *in.Swap
		out.Swap = &s
	}
	if in.Future != nil {
		f := *in.Future
		out.Future = &f
	}
	if in.Option != nil {
		o := *in.Option
		out.Option = &o
	}
	return &out
}
