package plan

import (
	"errors"
	"time"
)

// Constraints bound the optimizer's selection for a single run. The charging
// need may be expressed either as energy plus charger power, or directly as a
// session duration; SessionDuration wins when both are set.
type Constraints struct {
	EnergyKWh       float64
	SessionDuration time.Duration
	ChargerPowerKW  float64

	// EarliestStart and Deadline restrict the selection window. A zero
	// value means the corresponding edge of the covered day.
	EarliestStart time.Time
	Deadline      time.Time

	// MinContiguousBlock rejects selections that would leave a charging
	// block shorter than this. Zero disables the constraint.
	MinContiguousBlock time.Duration
	// MaxSessions caps the number of disjoint charging blocks. Zero means
	// unlimited.
	MaxSessions int
}

// RequiredDuration resolves the charging need to a duration.
func (c Constraints) RequiredDuration() (time.Duration, error) {
	if c.SessionDuration > 0 {
		return c.SessionDuration, nil
	}
	if c.EnergyKWh <= 0 {
		return 0, errors.New("either session_duration or energy_kwh must be positive")
	}
	if c.ChargerPowerKW <= 0 {
		return 0, errors.New("charger_power_kw must be positive to convert energy to time")
	}
	hours := c.EnergyKWh / c.ChargerPowerKW
	return time.Duration(hours * float64(time.Hour)), nil
}
