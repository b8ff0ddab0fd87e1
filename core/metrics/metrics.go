package metrics

import "time"

// JobEvent summarises one scheduling run.
type JobEvent struct {
	RunID         string
	VehicleID     string
	Outcome       string
	RequiredHours float64
	SlotCount     int
	// StartMinute is the committed start as minutes since midnight, -1 when
	// no start time was decided.
	StartMinute   int
	PriceFallback bool
	Verified      bool
	Duration      time.Duration
	Time          time.Time
}

// MetricsSink records run outcomes for observability purposes.
type MetricsSink interface {
	RecordJob(ev JobEvent) error
}

// AttemptEvent is emitted for every attempt of a retried remote call.
type AttemptEvent struct {
	Operation   string
	Attempt     int
	MaxAttempts int
	Success     bool
	Error       string
	Time        time.Time
}

// AttemptRecorder records retried call attempts.
type AttemptRecorder interface {
	RecordAttempt(ev AttemptEvent) error
}

// PriceWindowEvent describes the price run chosen for a night.
type PriceWindowEvent struct {
	VehicleID string
	Points    int
	MinPrice  float64
	MeanPrice float64
	MaxPrice  float64
	Start     time.Time
	Time      time.Time
}

// PriceWindowRecorder records selected price windows.
type PriceWindowRecorder interface {
	RecordPriceWindow(ev PriceWindowEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordJob(JobEvent) error                 { return nil }
func (NopSink) RecordAttempt(AttemptEvent) error         { return nil }
func (NopSink) RecordPriceWindow(PriceWindowEvent) error { return nil }
