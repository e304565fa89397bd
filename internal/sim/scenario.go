package sim

import (
	"fmt"
	"time"
)

// Scenario selects the market regime the simulator runs under.
type Scenario string

const (
	ScenarioNormal       Scenario = "normal"
	ScenarioHighVol      Scenario = "high_vol"
	ScenarioTrendingUp   Scenario = "trending_up"
	ScenarioTrendingDown Scenario = "trending_down"
	ScenarioFlashEvent   Scenario = "flash_event"
)

// ParseScenario validates a configured scenario name.
func ParseScenario(s string) (Scenario, error) {
	switch Scenario(s) {
	case ScenarioNormal, ScenarioHighVol, ScenarioTrendingUp, ScenarioTrendingDown, ScenarioFlashEvent:
		return Scenario(s), nil
	}
	return "", fmt.Errorf("unknown scenario %q", s)
}

// multiplier returns the scenario's volatility scaling. flash_event carries
// volatility through unchanged; the random flash excursion supplies its
// spikes.
func (s Scenario) multiplier() float64 {
	switch s {
	case ScenarioHighVol:
		return 3
	case ScenarioTrendingUp, ScenarioTrendingDown:
		return 1.5
	default:
		return 1
	}
}

// trendBias returns the directional drift applied to the primary move, as a
// fraction of effective volatility.
func (s Scenario) trendBias() float64 {
	switch s {
	case ScenarioTrendingUp:
		return 0.1
	case ScenarioTrendingDown:
		return -0.1
	default:
		return 0
	}
}

// TimeOfDay selects the intraday volatility phase.
type TimeOfDay string

const (
	TimeMarketOpen  TimeOfDay = "market_open"
	TimeMorning     TimeOfDay = "morning"
	TimeLunch       TimeOfDay = "lunch"
	TimeAfternoon   TimeOfDay = "afternoon"
	TimeMarketClose TimeOfDay = "market_close"
	TimeAfterHours  TimeOfDay = "after_hours"
	// TimeAuto derives the phase from the wall clock on every tick.
	TimeAuto TimeOfDay = "auto"
)

// ParseTimeOfDay validates a configured time-of-day name.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	switch TimeOfDay(s) {
	case TimeMarketOpen, TimeMorning, TimeLunch, TimeAfternoon, TimeMarketClose, TimeAfterHours, TimeAuto:
		return TimeOfDay(s), nil
	}
	return "", fmt.Errorf("unknown time of day %q", s)
}

// multiplier returns the intraday volatility scaling: elevated around the
// open and close, muted over lunch.
func (t TimeOfDay) multiplier() float64 {
	switch t {
	case TimeMarketOpen, TimeMarketClose:
		return 2
	case TimeLunch:
		return 0.5
	default:
		return 1
	}
}

// timeOfDayFromClock maps a wall-clock hour onto the intraday phase.
func timeOfDayFromClock(now time.Time) TimeOfDay {
	switch h := now.Hour(); {
	case h < 9 || h >= 17:
		return TimeAfterHours
	case h == 9:
		return TimeMarketOpen
	case h < 12:
		return TimeMorning
	case h == 12:
		return TimeLunch
	case h < 16:
		return TimeAfternoon
	default:
		return TimeMarketClose
	}
}
