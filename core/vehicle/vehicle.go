// Package vehicle declares what the scheduler needs from the car side.
package vehicle

import (
	"context"

	"github.com/kilianp07/smartcharge/core/clock"
)

// Telemetry reads the vehicle state reported by the charging controller.
type Telemetry interface {
	// BatteryLevel returns the state of charge in percent.
	BatteryLevel(ctx context.Context) (int, error)
	// ScheduledStart returns the delayed charge time currently programmed in
	// the vehicle, as reported ("HH:MM" or an ISO-8601 duration).
	ScheduledStart(ctx context.Context) (string, error)
}

// CommandSink programs the delayed charge start. Commands are idempotent.
type CommandSink interface {
	SetChargeStart(ctx context.Context, vin string, start clock.Time) error
}
