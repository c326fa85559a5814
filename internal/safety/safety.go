// Package safety gates bot executions: per-bot cooldowns, concurrent-trade
// limits, daily counters and the cross-bot family lock.
package safety

import (
	"fmt"
	"time"
)

// Unit is the cooldown time unit.
type Unit string

const (
	UnitSec  Unit = "Sec"
	UnitMin  Unit = "Min"
	UnitHour Unit = "Hour"
)

// Cooldown is a duration expressed as the user configures it.
type Cooldown struct {
	Value int  `json:"value"`
	Unit  Unit `json:"unit"`
}

// Duration converts the pair to a time.Duration. Unknown units count as
// seconds.
func (c Cooldown) Duration() time.Duration {
	v := time.Duration(c.Value)
	switch c.Unit {
	case UnitMin:
		return v * time.Minute
	case UnitHour:
		return v * time.Hour
	default:
		return v * time.Second
	}
}

// Config is the per-bot safety configuration.
type Config struct {
	Cooldown        Cooldown `json:"cooldown"`
	OneTradeAtATime bool     `json:"oneTradeAtATime"`
	MaxTradesPerDay int      `json:"maxTradesPerDay"` // 0 = unlimited
}

// Snapshot is the mutable counter state of one bot at evaluation time.
type Snapshot struct {
	Armed             bool
	LastTriggerTime   time.Time
	ActiveOrdersCount int
	DailyTradeCount   int
	DailyCountDate    string // yyyy-mm-dd of the last counter reset
}

// Decision is the outcome of one safety evaluation.
type Decision struct {
	Allowed    bool
	Reason     string
	ResetDaily bool // caller must zero the daily counter and stamp today
}

// DateOf formats a time the way daily counters store their reset date.
func DateOf(t time.Time) string { return t.Format("2006-01-02") }

// Evaluate runs the ordered checks and short-circuits on the first failure.
// It is pure: callers apply ResetDaily and counter updates themselves.
func Evaluate(cfg Config, s Snapshot, now time.Time) Decision {
	if !s.Armed {
		return Decision{Reason: "bot is not active"}
	}

	if cd := cfg.Cooldown.Duration(); cd > 0 && !s.LastTriggerTime.IsZero() {
		elapsed := now.Sub(s.LastTriggerTime)
		if elapsed < cd {
			return Decision{Reason: fmt.Sprintf("cooldown: %s remaining", (cd - elapsed).Round(time.Second))}
		}
	}

	if cfg.OneTradeAtATime && s.ActiveOrdersCount > 0 {
		return Decision{Reason: fmt.Sprintf("one trade at a time: %d order(s) open", s.ActiveOrdersCount)}
	}

	resetDaily := false
	count := s.DailyTradeCount
	if s.DailyCountDate != DateOf(now) {
		resetDaily = true
		count = 0
	}
	if cfg.MaxTradesPerDay > 0 && count >= cfg.MaxTradesPerDay {
		return Decision{
			Reason:     fmt.Sprintf("daily limit reached: %d/%d", count, cfg.MaxTradesPerDay),
			ResetDaily: resetDaily,
		}
	}

	return Decision{Allowed: true, ResetDaily: resetDaily}
}
