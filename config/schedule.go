package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/retry"
)

// ScheduleConfig controls when the daemon triggers a run.
type ScheduleConfig struct {
	// At is the local time of the daily run.
	At       clock.Time `json:"at"`
	Timezone string     `json:"timezone"`
	// Cron replaces the daily At trigger with a standard five-field
	// expression evaluated in Timezone unless it carries its own CRON_TZ.
	Cron string `json:"cron"`
	// Pacing is waited between the stages of a run.
	Pacing time.Duration `json:"pacing"`
}

// SetDefaults uses the Helsinki time zone. The 20:00 trigger time comes from
// the loader defaults.
func (c *ScheduleConfig) SetDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Europe/Helsinki"
	}
	if c.Pacing == 0 {
		c.Pacing = 30 * time.Second
	}
}

// Validate checks that the time zone and the trigger expression are usable.
func (c ScheduleConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Parse(); err != nil {
		return err
	}
	if c.Pacing < 0 {
		return fmt.Errorf("pacing must not be negative")
	}
	return nil
}

// Location loads the configured time zone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Spec is the cron expression of the trigger.
func (c ScheduleConfig) Spec() string {
	if c.Cron != "" {
		return c.Cron
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", c.Timezone, c.At.Minute, c.At.Hour)
}

// Parse compiles Spec. An expression without CRON_TZ runs in Timezone.
func (c ScheduleConfig) Parse() (cron.Schedule, error) {
	spec := c.Spec()
	if c.Cron != "" && !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") && c.Timezone != "" {
		spec = "CRON_TZ=" + c.Timezone + " " + spec
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", c.Spec(), err)
	}
	return sched, nil
}

// RetryConfig holds the attempt budgets of every remote step.
type RetryConfig struct {
	Read   retry.Budget `json:"read"`
	Price  retry.Budget `json:"price"`
	Verify retry.Budget `json:"verify"`
	// Settle is waited between sending the start time and reading it back.
	Settle time.Duration `json:"settle"`
}

func withDefaults(b *retry.Budget, attempts int, delay time.Duration) {
	if b.MaxAttempts == 0 {
		b.MaxAttempts = attempts
	}
	if b.Delay == 0 {
		b.Delay = delay
	}
}

// SetDefaults applies 5 attempts a minute apart for reads and price lookups
// and 5 rounds five minutes apart for verification.
func (c *RetryConfig) SetDefaults() {
	withDefaults(&c.Read, 5, time.Minute)
	withDefaults(&c.Price, 5, time.Minute)
	withDefaults(&c.Verify, 5, 5*time.Minute)
	if c.Settle == 0 {
		c.Settle = 30 * time.Second
	}
}

// Validate checks every budget.
func (c RetryConfig) Validate() error {
	for name, b := range map[string]retry.Budget{"read": c.Read, "price": c.Price, "verify": c.Verify} {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Settle < 0 {
		return fmt.Errorf("settle must not be negative")
	}
	return nil
}
