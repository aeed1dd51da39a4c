package config

import (
	"fmt"
	"time"

	"github.com/mtkallio/spotcharge/core/plan"
)

// ChargeConfig expresses the charging need and window for a run. The need is
// either energy plus charger power, or a session duration directly.
type ChargeConfig struct {
	EnergyKWh              float64 `json:"energy_kwh"`
	SessionDurationMinutes int     `json:"session_duration_minutes"`
	ChargerPowerKW         float64 `json:"charger_power_kw"`
	// EarliestStart and Deadline are local clock times (15:04) on the
	// market day. Empty means the day's edges; Deadline accepts "24:00".
	EarliestStart             string `json:"earliest_start"`
	Deadline                  string `json:"deadline"`
	MinContiguousBlockMinutes int    `json:"min_contiguous_block_minutes"`
	MaxSessions               int    `json:"max_sessions"`
}

// Validate checks that the need and window parse.
func (c ChargeConfig) Validate() error {
	if c.SessionDurationMinutes <= 0 && c.EnergyKWh <= 0 {
		return fmt.Errorf("either session_duration_minutes or energy_kwh must be positive")
	}
	if c.SessionDurationMinutes <= 0 && c.ChargerPowerKW <= 0 {
		return fmt.Errorf("charger_power_kw is required with energy_kwh")
	}
	for _, clock := range []string{c.EarliestStart, c.Deadline} {
		if clock == "" || clock == "24:00" {
			continue
		}
		if _, err := time.Parse("15:04", clock); err != nil {
			return fmt.Errorf("clock time %q: %w", clock, err)
		}
	}
	return nil
}

// Constraints resolves the configuration onto the given market day.
func (c ChargeConfig) Constraints(day time.Time) (plan.Constraints, error) {
	out := plan.Constraints{
		EnergyKWh:          c.EnergyKWh,
		SessionDuration:    time.Duration(c.SessionDurationMinutes) * time.Minute,
		ChargerPowerKW:     c.ChargerPowerKW,
		MinContiguousBlock: time.Duration(c.MinContiguousBlockMinutes) * time.Minute,
		MaxSessions:        c.MaxSessions,
	}
	var err error
	if out.EarliestStart, err = onDay(day, c.EarliestStart); err != nil {
		return plan.Constraints{}, err
	}
	if out.Deadline, err = onDay(day, c.Deadline); err != nil {
		return plan.Constraints{}, err
	}
	return out, nil
}

// onDay maps a clock string to an instant on the market day. Empty stays
// zero, leaving the edge to the optimizer.
func onDay(day time.Time, clock string) (time.Time, error) {
	switch clock {
	case "":
		return time.Time{}, nil
	case "24:00":
		return day.AddDate(0, 0, 1), nil
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
