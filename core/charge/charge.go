// Package charge converts a battery state into the time needed to fill it.
package charge

import (
	"errors"
	"fmt"
	"math"
)

// BatteryCapacityKWh is the usable pack capacity the estimate is based on.
const BatteryCapacityKWh = 45.0

// Profile describes the charging connection. It comes from configuration
// and does not change during a run.
type Profile struct {
	CurrentPerPhaseAmps float64 `json:"current_per_phase_amps"`
	PhaseCount          int     `json:"phase_count"`
	NominalVoltage      float64 `json:"nominal_voltage"`
	EfficiencyPercent   float64 `json:"efficiency_percent"`
}

// SetDefaults fills a three phase 230V connection at 80% efficiency.
func (p *Profile) SetDefaults() {
	if p.PhaseCount == 0 {
		p.PhaseCount = 3
	}
	if p.NominalVoltage == 0 {
		p.NominalVoltage = 230
	}
	if p.EfficiencyPercent == 0 {
		p.EfficiencyPercent = 80
	}
}

// Validate rejects profiles that cannot deliver power.
func (p Profile) Validate() error {
	switch {
	case p.CurrentPerPhaseAmps <= 0:
		return errors.New("current_per_phase_amps must be positive")
	case p.PhaseCount <= 0:
		return errors.New("phase_count must be positive")
	case p.NominalVoltage <= 0:
		return errors.New("nominal_voltage must be positive")
	case p.EfficiencyPercent <= 0 || p.EfficiencyPercent > 100:
		return fmt.Errorf("efficiency_percent must be in (0,100], got %g", p.EfficiencyPercent)
	}
	return nil
}

// PowerKW is the effective charging power delivered to the battery.
func (p Profile) PowerKW() float64 {
	return p.CurrentPerPhaseAmps * float64(p.PhaseCount) * p.NominalVoltage * (p.EfficiencyPercent / 100) / 1000
}

// RequiredHours returns the hours needed to go from levelPercent to full,
// rounded to two decimals. Levels outside 0..100 are clamped.
func (p Profile) RequiredHours(levelPercent int) float64 {
	level := min(max(levelPercent, 0), 100)
	power := p.PowerKW()
	if power <= 0 {
		return 0
	}
	energy := BatteryCapacityKWh * float64(100-level) / 100
	return Round2(energy / power)
}

// SlotCount is the number of hourly price points queried for a charge of
// the given length: the whole hours plus one spare slot.
func SlotCount(hours float64) int {
	if hours <= 0 {
		return 1
	}
	return int(math.Ceil(hours)) + 1
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
